package changes

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/maruel/facetdb/internal/browsing"
	"github.com/maruel/facetdb/internal/browsing/binning"
	"github.com/maruel/facetdb/internal/eval"
	"github.com/maruel/facetdb/internal/grid"
	"github.com/maruel/facetdb/internal/history"
	"github.com/maruel/ksid"
)

func newGrid(t *testing.T) *grid.Grid {
	t.Helper()
	g, err := grid.New([]string{"key", "v"}, []*grid.Row{
		grid.NewRow("a", 1),
		grid.NewRow(nil, 2),
		grid.NewRow("b", 3),
		grid.NewRow("c", nil),
	})
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func dump(t *testing.T, g *grid.Grid) string {
	t.Helper()
	var buf bytes.Buffer
	if _, err := g.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	var marks []byte
	for _, r := range g.Rows() {
		marks = append(marks, '0'+b2i(r.Flagged)+2*b2i(r.Starred))
	}
	return buf.String() + string(marks)
}

func b2i(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func roundTrip(t *testing.T, c history.Change) history.Change {
	t.Helper()
	var buf bytes.Buffer
	w := history.NewWriter(&buf)
	if err := history.WriteChange(w, c); err != nil {
		t.Fatal(err)
	}
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}
	out, err := history.ReadChange(history.NewReader(&buf))
	if err != nil {
		t.Fatalf("%v\n%s", err, buf.String())
	}
	return out
}

func sampleChanges() map[string]func() history.Change {
	rec := grid.NewRecon(ksid.NewID(), "dict")
	rec.Judgment = grid.JudgmentMatched
	return map[string]func() history.Change{
		"cell": func() history.Change {
			return &CellChange{Row: 0, CellIndex: 1, Old: grid.NewCell(int64(1)), New: grid.NewCell("x")}
		},
		"cell key": func() history.Change {
			return &CellChange{Row: 1, CellIndex: 0, Old: nil, New: grid.NewCell("z")}
		},
		"mass cell": func() history.Change {
			return &MassCellChange{ColumnName: "v", Changes: []*CellChange{
				{Row: 0, CellIndex: 1, Old: grid.NewCell(int64(1)), New: grid.NewCell(10.5)},
				{Row: 3, CellIndex: 1, Old: nil, New: grid.NewCell(grid.NewEvalError("bad"))},
			}}
		},
		"mass": func() history.Change {
			return &MassChange{UpdateRowContextDependencies: true, Changes: []history.Change{
				&CellChange{Row: 2, CellIndex: 1, Old: grid.NewCell(int64(3)), New: grid.NewCell("three")},
				NewRowFlagChange(2, false, true),
				NewRowStarChange(0, false, true),
				&MassChange{Changes: []history.Change{NewRowFlagChange(1, false, true)}},
			}}
		},
		"recon": func() history.Change {
			return &ReconChange{
				MassCellChange: MassCellChange{ColumnName: "key", Changes: []*CellChange{
					{Row: 0, CellIndex: 0, Old: grid.NewCell("a"), New: grid.NewCell("a").WithRecon(rec)},
				}},
				NewReconConfig: json.RawMessage(`{"service":"dict"}`),
			}
		},
		"row removal": func() history.Change {
			return NewRowRemovalChange([]int{2, 0, 2})
		},
		"column addition": func() history.Change {
			return NewColumnAdditionChange("extra", 1, []CellAtRow{{Row: 0, Cell: grid.NewCell("e0")}, {Row: 3, Cell: grid.NewCell("e3")}})
		},
	}
}

func TestApplyRevert(t *testing.T) {
	for name, mk := range sampleChanges() {
		t.Run(name, func(t *testing.T) {
			for _, loaded := range []bool{false, true} {
				g := newGrid(t)
				before := dump(t, g)
				want := newGrid(t)
				if err := mk().Apply(want); err != nil {
					t.Fatal(err)
				}
				c := mk()
				if loaded {
					c = roundTrip(t, c)
				}
				if err := c.Apply(g); err != nil {
					t.Fatal(err)
				}
				if got := dump(t, g); got != dump(t, want) {
					t.Fatalf("loaded=%t\ngot  %s\nwant %s", loaded, got, dump(t, want))
				}
				if err := c.Revert(g); err != nil {
					t.Fatal(err)
				}
				if got := dump(t, g); got != before {
					t.Fatalf("loaded=%t revert\ngot  %s\nwant %s", loaded, got, before)
				}
				// Apply again after revert, as redo does.
				if err := c.Apply(g); err != nil {
					t.Fatal(err)
				}
				if got := dump(t, g); got != dump(t, want) {
					t.Fatalf("loaded=%t redo mismatch", loaded)
				}
			}
		})
	}
}

func TestInconsistent(t *testing.T) {
	g := newGrid(t)
	before := dump(t, g)
	m := &MassCellChange{ColumnName: "v", Changes: []*CellChange{
		{Row: 0, CellIndex: 1, Old: grid.NewCell(int64(1)), New: grid.NewCell("x")},
		{Row: 1, CellIndex: 1, Old: grid.NewCell("wrong"), New: grid.NewCell("y")},
	}}
	if err := m.Apply(g); !errors.Is(err, grid.ErrInconsistentCell) {
		t.Fatal(err)
	}
	if dump(t, g) != before {
		t.Fatal("grid partially mutated")
	}
	mc := &MassChange{Changes: []history.Change{
		&CellChange{Row: 0, CellIndex: 1, Old: grid.NewCell(int64(1)), New: grid.NewCell("x")},
		NewRowFlagChange(0, false, true),
		&CellChange{Row: 99, CellIndex: 1},
	}}
	if err := mc.Apply(g); !errors.Is(err, grid.ErrRowOutOfRange) {
		t.Fatal(err)
	}
	if dump(t, g) != before {
		t.Fatal("grid partially mutated")
	}
}

func TestRevertClearsCache(t *testing.T) {
	g := newGrid(t)
	col := g.Columns().ByName("v")
	e, err := eval.NewRowEvaluable(g, "v", eval.MustParse("value"))
	if err != nil {
		t.Fatal(err)
	}
	key := binning.CacheKey(binning.NumericBin, browsing.RowBased, "value")
	c := &CellChange{Row: 0, CellIndex: col.CellIndex, Old: grid.NewCell(int64(1)), New: grid.NewCell(int64(100))}
	if err := c.Apply(g); err != nil {
		t.Fatal(err)
	}
	idx := binning.NumericIndex(g, col, browsing.RowBased, "value", e, binning.DefaultMaxBins)
	if idx.Max <= 100 || col.Precompute(key) == nil {
		t.Fatalf("%+v", idx)
	}
	if err := c.Revert(g); err != nil {
		t.Fatal(err)
	}
	if v := g.Row(0).CellValue(col.CellIndex); v != int64(1) {
		t.Fatalf("%#v", v)
	}
	if col.Precompute(key) != nil {
		t.Fatal("bin index survived revert")
	}
	if idx := binning.NumericIndex(g, col, browsing.RowBased, "value", e, binning.DefaultMaxBins); idx.Max > 10 {
		t.Fatalf("stale index %+v", idx)
	}
}

func TestMassRowMarksClearCache(t *testing.T) {
	tests := []struct {
		name    string
		changes []history.Change
		wantErr bool
	}{
		{"flags", []history.Change{NewRowFlagChange(0, false, true), NewRowFlagChange(2, false, true), NewRowStarChange(3, false, true)}, false},
		{"rollback", []history.Change{NewRowFlagChange(0, false, true), NewRowFlagChange(0, false, true)}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			g := newGrid(t)
			col := g.Columns().ByName("v")
			before := dump(t, g)
			m := &MassChange{Changes: tc.changes}
			col.SetPrecompute("k", 1)
			err := m.Apply(g)
			if (err != nil) != tc.wantErr {
				t.Fatal(err)
			}
			if col.Precompute("k") != nil {
				t.Fatal("cache survived apply")
			}
			if tc.wantErr {
				if got := dump(t, g); got != before {
					t.Fatalf("grid changed:\n%s", got)
				}
				return
			}
			if !g.Row(0).Flagged || !g.Row(2).Flagged || !g.Row(3).Starred {
				t.Fatal("marks not set")
			}
			col.SetPrecompute("k", 1)
			if err := m.Revert(g); err != nil {
				t.Fatal(err)
			}
			if col.Precompute("k") != nil {
				t.Fatal("cache survived revert")
			}
			if got := dump(t, g); got != before {
				t.Fatalf("revert:\n%s", got)
			}
		})
	}
}

func TestReconChangeStats(t *testing.T) {
	g := newGrid(t)
	rec := grid.NewRecon(ksid.NewID(), "dict")
	rec.Judgment = grid.JudgmentNew
	c := &ReconChange{MassCellChange: MassCellChange{ColumnName: "key", Changes: []*CellChange{
		{Row: 2, CellIndex: 0, Old: grid.NewCell("b"), New: grid.NewCell("b").WithRecon(rec)},
	}}}
	if err := c.Apply(g); err != nil {
		t.Fatal(err)
	}
	col := g.Columns().ByName("key")
	if s := col.ReconStats; s == nil || s.NewTopics != 1 || s.NonBlanks != 3 {
		t.Fatalf("%+v", s)
	}
	if err := c.Revert(g); err != nil {
		t.Fatal(err)
	}
	if col.ReconStats != nil {
		t.Fatal("stats not restored")
	}
}

func TestRowRemovalRecords(t *testing.T) {
	g := newGrid(t)
	c := NewRowRemovalChange([]int{0})
	if err := c.Apply(g); err != nil {
		t.Fatal(err)
	}
	// The orphaned continuation row now starts the first record.
	if n := len(g.Records()); n != 3 || g.RowCount() != 3 {
		t.Fatal(n, g.RowCount())
	}
	if err := c.Revert(g); err != nil {
		t.Fatal(err)
	}
	if n := len(g.Records()); n != 3 || g.RowCount() != 4 {
		t.Fatal(n, g.RowCount())
	}
}
