// Groups expression results by their string form.

package binning

import (
	"github.com/maruel/facetdb/internal/browsing"
	"github.com/maruel/facetdb/internal/eval"
	"github.com/maruel/facetdb/internal/grid"
)

// Choice is one distinct value with the number of rows or records holding it.
type Choice struct {
	Value string `json:"v"`
	Count int    `json:"c"`
}

// NominalValueGrouper counts distinct values. A row or record holding the
// same value several times counts once for it.
//
// It implements both browsing.RowVisitor and browsing.RecordVisitor.
type NominalValueGrouper struct {
	Evaluable eval.RowEvaluable

	// Choices are in first-seen order.
	Choices    []Choice
	BlankCount int
	ErrorCount int

	index map[string]int
	b     eval.Bindings
}

var (
	_ browsing.RowVisitor    = (*NominalValueGrouper)(nil)
	_ browsing.RecordVisitor = (*NominalValueGrouper)(nil)
)

// Count returns the count of choice, 0 when never seen.
func (n *NominalValueGrouper) Count(choice string) int {
	if i, ok := n.index[choice]; ok {
		return n.Choices[i].Count
	}
	return 0
}

// Start implements browsing.RowVisitor.
func (n *NominalValueGrouper) Start(g *grid.Grid) {
	n.Choices = nil
	n.BlankCount = 0
	n.ErrorCount = 0
	n.index = map[string]int{}
	n.b = eval.CreateBindings(g)
}

// End implements browsing.RowVisitor.
func (n *NominalValueGrouper) End(*grid.Grid) {}

// Visit implements browsing.RowVisitor.
func (n *NominalValueGrouper) Visit(g *grid.Grid, rowIndex int, row *grid.Row) bool {
	u := nominalUnit{}
	u.add(n.Evaluable.Eval(g, rowIndex, row, n.b))
	n.tally(&u)
	return false
}

// VisitRecord implements browsing.RecordVisitor.
func (n *NominalValueGrouper) VisitRecord(g *grid.Grid, rec grid.Record) bool {
	u := nominalUnit{}
	rows := g.Rows()
	for i := rec.FromRowIndex; i < rec.ToRowIndex; i++ {
		u.add(n.Evaluable.Eval(g, i, rows[i], n.b))
	}
	n.tally(&u)
	return false
}

func (n *NominalValueGrouper) tally(u *nominalUnit) {
	if u.blank {
		n.BlankCount++
	}
	if u.errored {
		n.ErrorCount++
	}
	for _, v := range u.values {
		i, ok := n.index[v]
		if !ok {
			i = len(n.Choices)
			n.index[v] = i
			n.Choices = append(n.Choices, Choice{Value: v})
		}
		n.Choices[i].Count++
	}
}

// nominalUnit collects the distinct values of one row or record.
type nominalUnit struct {
	values  []string
	blank   bool
	errored bool
}

func (u *nominalUnit) add(v any) {
	if items, ok := eval.AsSlice(v); ok {
		if len(items) == 0 {
			u.blank = true
		}
		for _, item := range items {
			u.addOne(item)
		}
		return
	}
	u.addOne(v)
}

func (u *nominalUnit) addOne(v any) {
	switch {
	case eval.IsError(v):
		u.errored = true
	case !eval.IsNonBlankData(v):
		u.blank = true
	default:
		s := eval.ToString(v)
		for _, x := range u.values {
			if x == s {
				return
			}
		}
		u.values = append(u.values, s)
	}
}
