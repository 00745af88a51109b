// Package binning computes cached per-column aggregates used by facets.
//
// Indices are immutable once built and published in the column precompute
// cache; any change to the column drops them and the next reader rebuilds.
package binning

import (
	"math"

	"github.com/maruel/facetdb/internal/browsing"
	"github.com/maruel/facetdb/internal/eval"
	"github.com/maruel/facetdb/internal/grid"
)

// DefaultMaxBins bounds the number of histogram bins.
const DefaultMaxBins = 100

// NumericBinIndex is the histogram of one expression over every row or
// record of a grid.
type NumericBinIndex struct {
	Min  float64
	Max  float64
	Step float64
	Bins []int

	NumericValueCount  int
	NumericRowCount    int
	NonNumericRowCount int
	BlankRowCount      int
	ErrorRowCount      int
}

// IsNumeric reports whether at least one numeric value was seen. When false,
// Min and Max are meaningless.
func (n *NumericBinIndex) IsNumeric() bool {
	return n.NumericValueCount > 0
}

// Bin returns the bin d falls in, clamped to the histogram.
func (n *NumericBinIndex) Bin(d float64) int {
	f := n.offset(d)
	switch {
	case !(f >= 0):
		return 0
	case f >= float64(len(n.Bins)):
		return len(n.Bins) - 1
	}
	return int(f)
}

// offset returns the position of d in units of Step from Min. It may be
// negative, past the last bin or NaN.
func (n *NumericBinIndex) offset(d float64) float64 {
	f := (d - n.Min) / n.Step
	if math.IsInf(f, 0) {
		// d-Min overflowed; Step is then large enough to halve exactly.
		f = (d/2 - n.Min/2) / (n.Step / 2)
	}
	return math.Floor(f)
}

// unitFlags accumulates the categories seen in one row or record.
type unitFlags struct {
	numeric, nonNumeric, blank, errored bool
}

// classify records v in f and returns the finite numbers it holds.
func (f *unitFlags) classify(v any, out []float64) []float64 {
	switch {
	case eval.IsError(v):
		f.errored = true
	case eval.IsNonBlankData(v):
		if items, ok := eval.AsSlice(v); ok {
			for _, item := range items {
				out = f.classifyOne(item, out)
			}
			return out
		}
		return f.classifyOne(v, out)
	default:
		f.blank = true
	}
	return out
}

func (f *unitFlags) classifyOne(v any, out []float64) []float64 {
	if eval.IsError(v) {
		f.errored = true
		return out
	}
	if !eval.IsNonBlankData(v) {
		f.blank = true
		return out
	}
	d, ok := eval.AsNumber(v)
	switch {
	case !ok:
		f.nonNumeric = true
	case !eval.IsFiniteNumber(d):
		f.errored = true
	default:
		f.numeric = true
		out = append(out, d)
	}
	return out
}

type numericBuilder struct {
	e      eval.RowEvaluable
	b      eval.Bindings
	values []float64
	idx    NumericBinIndex
}

func (nb *numericBuilder) evalRow(g *grid.Grid, rowIndex int, row *grid.Row, f *unitFlags) {
	nb.values = f.classify(nb.e.Eval(g, rowIndex, row, nb.b), nb.values)
}

func (nb *numericBuilder) tally(f *unitFlags) {
	if f.numeric {
		nb.idx.NumericRowCount++
	}
	if f.nonNumeric {
		nb.idx.NonNumericRowCount++
	}
	if f.blank {
		nb.idx.BlankRowCount++
	}
	if f.errored {
		nb.idx.ErrorRowCount++
	}
}

// NewRowNumericBinIndex scans every row.
func NewRowNumericBinIndex(g *grid.Grid, e eval.RowEvaluable, maxBins int) *NumericBinIndex {
	nb := &numericBuilder{e: e, b: eval.CreateBindings(g)}
	for i, row := range g.Rows() {
		var f unitFlags
		nb.evalRow(g, i, row, &f)
		nb.tally(&f)
	}
	return nb.finish(maxBins)
}

// NewRecordNumericBinIndex scans every record; each record is tallied once
// per category.
func NewRecordNumericBinIndex(g *grid.Grid, e eval.RowEvaluable, maxBins int) *NumericBinIndex {
	nb := &numericBuilder{e: e, b: eval.CreateBindings(g)}
	rows := g.Rows()
	for _, rec := range g.Records() {
		var f unitFlags
		for i := rec.FromRowIndex; i < rec.ToRowIndex; i++ {
			nb.evalRow(g, i, rows[i], &f)
		}
		nb.tally(&f)
	}
	return nb.finish(maxBins)
}

// finish picks a decimal step so the histogram has at most maxBins bins
// aligned on round numbers, then distributes the values.
func (nb *numericBuilder) finish(maxBins int) *NumericBinIndex {
	if maxBins <= 0 {
		maxBins = DefaultMaxBins
	}
	idx := &nb.idx
	idx.NumericValueCount = len(nb.values)
	idx.Min = math.Inf(1)
	idx.Max = math.Inf(-1)
	for _, d := range nb.values {
		idx.Min = min(idx.Min, d)
		idx.Max = max(idx.Max, d)
	}
	if len(nb.values) == 0 {
		idx.Step = 1
		idx.Bins = []int{0}
		return idx
	}
	if idx.Min >= idx.Max {
		idx.Step = 1
		idx.Max = above(idx.Min, idx.Min+idx.Step)
		idx.Bins = []int{len(nb.values)}
		return idx
	}
	if lo, step, n, ok := decimalBins(idx.Min, idx.Max, maxBins); ok {
		idx.Min = lo
		idx.Max = lo + float64(n)*step
		idx.Step = step
		idx.Bins = make([]int, n)
	} else {
		// A single bin holding everything.
		top := above(idx.Max, idx.Max)
		idx.Step = top - idx.Min
		if math.IsInf(idx.Step, 0) {
			idx.Step = math.MaxFloat64
		}
		idx.Max = top
		idx.Bins = []int{0}
	}
	for _, d := range nb.values {
		idx.Bins[idx.Bin(d)]++
	}
	return idx
}

// decimalBins returns a round step and the bins [lo, lo+n*step) covering
// [minV, maxV] with n <= maxBins. ok is false when no finite layout exists.
func decimalBins(minV, maxV float64, maxBins int) (lo, step float64, n int, ok bool) {
	// Half the width stays finite even when maxV-minV overflows.
	half := maxV/2 - minV/2
	if !(half > 0) || math.IsInf(half, 0) {
		return 0, 0, 0, false
	}
	step = 1.0
	if half > 5 {
		for step*50 < half {
			step *= 10
		}
	} else {
		for step > 0 && step*50 > half {
			step /= 10
		}
	}
	if step == 0 || math.IsInf(step, 0) {
		return 0, 0, 0, false
	}
	lo = math.Floor(minV/step) * step
	if lo > minV {
		lo -= step
	}
	count := func(step float64) float64 {
		// The top value must fall inside the half-open range.
		c := math.Ceil(maxV/step - lo/step)
		if lo+c*step <= maxV {
			c++
		}
		return c
	}
	c := count(step)
	for c > float64(maxBins) && !math.IsInf(step, 0) {
		step *= 2
		c = count(step)
	}
	hi := lo + c*step
	if math.IsNaN(c) || c < 1 || c > float64(maxBins) || math.IsInf(lo, 0) || math.IsInf(hi, 0) || lo > minV || hi <= maxV {
		return 0, 0, 0, false
	}
	return lo, step, int(c), true
}

// above returns v when it is greater than x, else the next float after x,
// capped to the largest finite value.
func above(x, v float64) float64 {
	if v > x {
		return v
	}
	if x == math.MaxFloat64 {
		return x
	}
	return math.Nextafter(x, math.Inf(1))
}

// NumericValueBinner re-bins the rows of a live pass against the boundaries
// of a base index.
//
// It implements both browsing.RowVisitor and browsing.RecordVisitor.
type NumericValueBinner struct {
	Evaluable eval.RowEvaluable
	Index     *NumericBinIndex

	Bins            []int
	NumericCount    int
	NonNumericCount int
	BlankCount      int
	ErrorCount      int

	b      eval.Bindings
	values []float64
}

var (
	_ browsing.RowVisitor    = (*NumericValueBinner)(nil)
	_ browsing.RecordVisitor = (*NumericValueBinner)(nil)
)

// Start implements browsing.RowVisitor.
func (nb *NumericValueBinner) Start(g *grid.Grid) {
	nb.Bins = make([]int, len(nb.Index.Bins))
	nb.b = eval.CreateBindings(g)
}

// End implements browsing.RowVisitor.
func (nb *NumericValueBinner) End(*grid.Grid) {}

// Visit implements browsing.RowVisitor.
func (nb *NumericValueBinner) Visit(g *grid.Grid, rowIndex int, row *grid.Row) bool {
	var f unitFlags
	nb.visitRow(g, rowIndex, row, &f)
	nb.tally(&f)
	return false
}

// VisitRecord implements browsing.RecordVisitor.
func (nb *NumericValueBinner) VisitRecord(g *grid.Grid, rec grid.Record) bool {
	var f unitFlags
	rows := g.Rows()
	for i := rec.FromRowIndex; i < rec.ToRowIndex; i++ {
		nb.visitRow(g, i, rows[i], &f)
	}
	nb.tally(&f)
	return false
}

func (nb *NumericValueBinner) visitRow(g *grid.Grid, rowIndex int, row *grid.Row, f *unitFlags) {
	nb.values = f.classify(nb.Evaluable.Eval(g, rowIndex, row, nb.b), nb.values[:0])
	for _, d := range nb.values {
		if off := nb.Index.offset(d); off >= 0 && off < float64(len(nb.Bins)) {
			nb.Bins[int(off)]++
		}
	}
}

func (nb *NumericValueBinner) tally(f *unitFlags) {
	if f.numeric {
		nb.NumericCount++
	}
	if f.nonNumeric {
		nb.NonNumericCount++
	}
	if f.blank {
		nb.BlankCount++
	}
	if f.errored {
		nb.ErrorCount++
	}
}
