// Provides the reconciliation operations.

package operations

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/maruel/facetdb/internal/facets"
	"github.com/maruel/facetdb/internal/grid"
	"github.com/maruel/facetdb/internal/history"
	"github.com/maruel/facetdb/internal/history/changes"
	"github.com/maruel/facetdb/internal/process"
	"github.com/maruel/facetdb/internal/recon"
	"github.com/maruel/ksid"
)

// Recon reconciles the non-blank cells of a column in the background.
type Recon struct {
	Base
	ColumnName string          `json:"columnName"`
	Config     json.RawMessage `json:"config" jsonschema:"type=object"`
}

// Kind implements Operation.
func (o *Recon) Kind() string { return KindRecon }

func (o *Recon) brief() string {
	return fmt.Sprintf("Reconcile cells in column %s", o.ColumnName)
}

func (o *Recon) task(g *grid.Grid, entryID ksid.ID, env *Env) (process.Task, []process.Action, error) {
	cfg, err := recon.ParseConfig(o.Config)
	if err != nil {
		return nil, nil, err
	}
	if d, ok := cfg.(*recon.DictionaryConfig); ok && d.Batch == 0 {
		d.Batch = env.ReconBatchSize
	}
	saved, err := json.Marshal(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode recon config: %w", err)
	}
	actions, err := o.onDone()
	if err != nil {
		return nil, nil, err
	}
	svc := recon.NewThrottled(cfg, env.ReconRate)
	task := func(ctx context.Context, progress chan<- int) (history.Change, error) {
		groups, err := o.collect(g, cfg, env)
		if err != nil {
			return nil, err
		}
		slog.Info("Reconciling", "column", o.ColumnName, "service", cfg.Service(), "jobs", len(groups))
		if err := recon.Run(ctx, svc, groups, entryID, env.Recon, progress); err != nil {
			return nil, err
		}
		m := changes.MassCellChange{ColumnName: o.ColumnName}
		for _, grp := range groups {
			if grp.Recon == nil {
				continue
			}
			grp.Recon.JudgmentBatchSize = len(grp.Entries)
			for _, en := range grp.Entries {
				m.Changes = append(m.Changes, &changes.CellChange{
					Row:       en.Row,
					CellIndex: en.CellIndex,
					Old:       en.Cell,
					New:       en.Cell.WithRecon(grp.Recon),
				})
			}
		}
		return &changes.ReconChange{MassCellChange: m, NewReconConfig: saved}, nil
	}
	return task, actions, nil
}

// collect snapshots the cells to reconcile under the grid read lock.
func (o *Recon) collect(g *grid.Grid, cfg recon.Config, env *Env) ([]*recon.Group, error) {
	g.RLock()
	defer g.RUnlock()
	col, err := g.Columns().Resolve(o.ColumnName)
	if err != nil {
		return nil, err
	}
	rows, err := o.filteredRows(g, env)
	if err != nil {
		return nil, err
	}
	var entries []recon.Entry
	for _, i := range rows {
		if row := g.Row(i); !row.IsCellBlank(col.CellIndex) {
			entries = append(entries, recon.Entry{Row: i, CellIndex: col.CellIndex, Cell: row.Cell(col.CellIndex)})
		}
	}
	return recon.GroupEntries(cfg, g, o.ColumnName, entries), nil
}

// onDone suggests a judgment facet and a best candidate score facet.
func (o *Recon) onDone() ([]process.Action, error) {
	judgment, err := json.Marshal(facets.ListConfig{
		Type:       facets.ListType,
		Name:       o.ColumnName + ": judgment",
		ColumnName: o.ColumnName,
		Expression: "cell.recon.judgment",
	})
	if err != nil {
		return nil, err
	}
	rc := facets.DefaultRangeConfig()
	rc.Name = o.ColumnName + ": best candidate's score"
	rc.ColumnName = o.ColumnName
	rc.Expression = "cell.recon.best.score"
	score, err := json.Marshal(rc)
	if err != nil {
		return nil, err
	}
	return []process.Action{
		{Action: "createFacet", FacetType: facets.ListType, FacetConfig: judgment},
		{Action: "createFacet", FacetType: facets.RangeType, FacetConfig: score},
	}, nil
}

// ReconMatchBestCandidates matches every reconciled cell to its best
// candidate.
type ReconMatchBestCandidates struct {
	Base
	ColumnName string `json:"columnName"`
}

// Kind implements Operation.
func (o *ReconMatchBestCandidates) Kind() string { return KindReconMatchBestCandidates }

func (o *ReconMatchBestCandidates) brief() string {
	return "Match each cell to its best recon candidate in column " + o.ColumnName
}

func (o *ReconMatchBestCandidates) build(g *grid.Grid, e *history.Entry, env *Env) (history.Change, error) {
	c, err := massRecon(g, &o.Base, o.ColumnName, env, func(r *grid.Recon) *grid.Recon {
		best := r.Best()
		if best == nil {
			return nil
		}
		d := r.Dup(e.ID)
		m := *best
		d.Match = &m
		d.MatchRank = 0
		d.Judgment = grid.JudgmentMatched
		d.JudgmentAction = "mass"
		return d
	})
	if err != nil {
		return nil, err
	}
	e.Description = fmt.Sprintf("Match each of %d cells to its best candidate in column %s", len(c.Changes), o.ColumnName)
	return c, nil
}

// ReconDiscardJudgments clears the judgment of every reconciled cell.
type ReconDiscardJudgments struct {
	Base
	ColumnName string `json:"columnName"`
}

// Kind implements Operation.
func (o *ReconDiscardJudgments) Kind() string { return KindReconDiscardJudgments }

func (o *ReconDiscardJudgments) brief() string {
	return "Discard recon judgments in column " + o.ColumnName
}

func (o *ReconDiscardJudgments) build(g *grid.Grid, e *history.Entry, env *Env) (history.Change, error) {
	c, err := massRecon(g, &o.Base, o.ColumnName, env, func(r *grid.Recon) *grid.Recon {
		d := r.Dup(e.ID)
		d.Match = nil
		d.MatchRank = -1
		d.Judgment = grid.JudgmentNone
		d.JudgmentAction = "mass"
		return d
	})
	if err != nil {
		return nil, err
	}
	e.Description = fmt.Sprintf("Discard recon judgments for %d cells in column %s", len(c.Changes), o.ColumnName)
	return c, nil
}

// massRecon rewrites the recon of each filtered cell with derive. Cells
// sharing a recon keep sharing the derived one, whose batch size counts them.
func massRecon(g *grid.Grid, b *Base, columnName string, env *Env, derive func(*grid.Recon) *grid.Recon) (*changes.ReconChange, error) {
	col, err := g.Columns().Resolve(columnName)
	if err != nil {
		return nil, err
	}
	rows, err := b.filteredRows(g, env)
	if err != nil {
		return nil, err
	}
	dup := map[ksid.ID]*grid.Recon{}
	m := changes.MassCellChange{ColumnName: columnName}
	for _, i := range rows {
		cell := g.Row(i).Cell(col.CellIndex)
		if cell == nil || cell.Recon == nil {
			continue
		}
		nr, ok := dup[cell.Recon.ID]
		if ok {
			if nr == nil {
				continue
			}
			nr.JudgmentBatchSize++
		} else {
			if nr = derive(cell.Recon); nr != nil {
				nr.JudgmentBatchSize = 1
			}
			dup[cell.Recon.ID] = nr
			if nr == nil {
				continue
			}
		}
		m.Changes = append(m.Changes, &changes.CellChange{Row: i, CellIndex: col.CellIndex, Old: cell, New: cell.WithRecon(nr)})
	}
	return &changes.ReconChange{MassCellChange: m, NewReconConfig: col.ReconConfig}, nil
}
