// Provides the row marking and removal operations.

package operations

import (
	"fmt"

	"github.com/maruel/facetdb/internal/grid"
	"github.com/maruel/facetdb/internal/history"
	"github.com/maruel/facetdb/internal/history/changes"
)

// Operation kinds.
const (
	KindRowFlag                  = "row-flag"
	KindRowStar                  = "row-star"
	KindRowRemoval               = "row-removal"
	KindSingleCellEdit           = "single-cell-edit"
	KindTextTransform            = "text-transform"
	KindColumnAddition           = "column-addition"
	KindRecon                    = "recon"
	KindReconMatchBestCandidates = "recon-match-best-candidates"
	KindReconDiscardJudgments    = "recon-discard-judgments"
)

func init() {
	Register(KindRowFlag, func() Operation { return &RowFlag{} })
	Register(KindRowStar, func() Operation { return &RowStar{} })
	Register(KindRowRemoval, func() Operation { return &RowRemoval{} })
	Register(KindSingleCellEdit, func() Operation { return &SingleCellEdit{} })
	Register(KindTextTransform, func() Operation { return &TextTransform{} })
	Register(KindColumnAddition, func() Operation { return &ColumnAddition{} })
	Register(KindRecon, func() Operation { return &Recon{} })
	Register(KindReconMatchBestCandidates, func() Operation { return &ReconMatchBestCandidates{} })
	Register(KindReconDiscardJudgments, func() Operation { return &ReconDiscardJudgments{} })
}

// RowFlag sets or clears the flag of every filtered row.
type RowFlag struct {
	Base
	Flagged bool `json:"flagged"`
}

// Kind implements Operation.
func (o *RowFlag) Kind() string { return KindRowFlag }

func (o *RowFlag) brief() string {
	if o.Flagged {
		return "Flag rows"
	}
	return "Unflag rows"
}

func (o *RowFlag) build(g *grid.Grid, e *history.Entry, env *Env) (history.Change, error) {
	rows, err := o.filteredRows(g, env)
	if err != nil {
		return nil, err
	}
	m := &changes.MassChange{}
	for _, i := range rows {
		if r := g.Row(i); r.Flagged != o.Flagged {
			m.Changes = append(m.Changes, changes.NewRowFlagChange(i, r.Flagged, o.Flagged))
		}
	}
	verb := "Flag"
	if !o.Flagged {
		verb = "Unflag"
	}
	e.Description = fmt.Sprintf("%s %d rows", verb, len(m.Changes))
	return m, nil
}

// RowStar sets or clears the star of every filtered row.
type RowStar struct {
	Base
	Starred bool `json:"starred"`
}

// Kind implements Operation.
func (o *RowStar) Kind() string { return KindRowStar }

func (o *RowStar) brief() string {
	if o.Starred {
		return "Star rows"
	}
	return "Unstar rows"
}

func (o *RowStar) build(g *grid.Grid, e *history.Entry, env *Env) (history.Change, error) {
	rows, err := o.filteredRows(g, env)
	if err != nil {
		return nil, err
	}
	m := &changes.MassChange{}
	for _, i := range rows {
		if r := g.Row(i); r.Starred != o.Starred {
			m.Changes = append(m.Changes, changes.NewRowStarChange(i, r.Starred, o.Starred))
		}
	}
	verb := "Star"
	if !o.Starred {
		verb = "Unstar"
	}
	e.Description = fmt.Sprintf("%s %d rows", verb, len(m.Changes))
	return m, nil
}

// RowRemoval deletes every filtered row.
type RowRemoval struct {
	Base
}

// Kind implements Operation.
func (o *RowRemoval) Kind() string { return KindRowRemoval }

func (o *RowRemoval) brief() string { return "Remove rows" }

func (o *RowRemoval) build(g *grid.Grid, e *history.Entry, env *Env) (history.Change, error) {
	rows, err := o.filteredRows(g, env)
	if err != nil {
		return nil, err
	}
	e.Description = fmt.Sprintf("Remove %d rows", len(rows))
	return changes.NewRowRemovalChange(rows), nil
}
