package process

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/maruel/facetdb/internal/grid"
	"github.com/maruel/facetdb/internal/history"
	"github.com/maruel/facetdb/internal/history/changes"
	"github.com/maruel/ksid"
)

func newHistory(t *testing.T) *history.History {
	t.Helper()
	g, err := grid.New([]string{"a"}, []*grid.Row{grid.NewRow("x"), grid.NewRow("y")})
	if err != nil {
		t.Fatal(err)
	}
	return history.New(g, nil)
}

func setCell(row int, was, now string) history.Change {
	return &changes.CellChange{Row: row, CellIndex: 0, Old: grid.NewCell(was), New: grid.NewCell(now)}
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestQuick(t *testing.T) {
	h := newHistory(t)
	m := NewManager(h)
	p := NewQuick("edit", nil, func(*grid.Grid, *history.Entry) (history.Change, error) {
		return setCell(0, "x", "z"), nil
	})
	if err := m.Start(p); err != nil {
		t.Fatal(err)
	}
	if p.Status() != Done || h.Len() != 1 || p.Entry() == nil {
		t.Fatal(p.Status(), h.Len())
	}
	if err := m.Start(p); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatal(err)
	}
	bad := NewQuick("bad", nil, func(*grid.Grid, *history.Entry) (history.Change, error) {
		return setCell(0, "nope", "z"), nil
	})
	if err := m.Start(bad); !errors.Is(err, grid.ErrInconsistentCell) {
		t.Fatal(err)
	}
	if bad.Status() != Failed || h.Len() != 1 {
		t.Fatal(bad.Status(), h.Len())
	}
}

func TestLongRunning(t *testing.T) {
	h := newHistory(t)
	m := NewManager(h)
	entryID := ksid.NewID()
	p := NewLongRunning("long", []byte(`{"op":"x"}`), entryID, func(ctx context.Context, progress chan<- int) (history.Change, error) {
		for i := range 5 {
			progress <- i * 20
		}
		return setCell(1, "y", "w"), nil
	}, []Action{{Action: "createFacet", FacetType: "list"}})
	if err := m.Start(p); err != nil {
		t.Fatal(err)
	}
	if err := p.Wait(waitCtx(t)); err != nil {
		t.Fatal(err)
	}
	if err := m.Wait(waitCtx(t)); err != nil {
		t.Fatal(err)
	}
	r := p.Report()
	if r.Status != Done || r.Progress != 100 || len(r.OnDone) != 1 || r.Immediate {
		t.Fatalf("%+v", r)
	}
	e := h.Entries()
	if len(e) != 1 || e[0].ID != entryID || string(e[0].Operation) != `{"op":"x"}` {
		t.Fatalf("%+v", e)
	}
	if v := h.Grid().Row(1).CellValue(0); v != "w" {
		t.Fatal(v)
	}
}

func TestCancelRunning(t *testing.T) {
	h := newHistory(t)
	m := NewManager(h)
	started := make(chan struct{})
	p := NewLongRunning("slow", nil, ksid.NewID(), func(ctx context.Context, progress chan<- int) (history.Change, error) {
		progress <- 50
		close(started)
		<-ctx.Done()
		// A task that ignores cancellation and returns a change anyway must
		// still not reach the history.
		return setCell(0, "x", "cancelled"), nil
	}, nil)
	if err := m.Start(p); err != nil {
		t.Fatal(err)
	}
	<-started
	if !m.HasPending() {
		t.Fatal("expected running process")
	}
	m.CancelAll()
	if err := p.Wait(waitCtx(t)); !errors.Is(err, ErrCanceled) {
		t.Fatal(err)
	}
	if p.Status() != Canceled || h.Len() != 0 {
		t.Fatal(p.Status(), h.Len())
	}
	if v := h.Grid().Row(0).CellValue(0); v != "x" {
		t.Fatal(v)
	}
	if err := m.Wait(waitCtx(t)); err != nil {
		t.Fatal(err)
	}
}

func TestFailure(t *testing.T) {
	h := newHistory(t)
	m := NewManager(h)
	boom := errors.New("boom")
	tasks := map[string]Task{
		"error": func(context.Context, chan<- int) (history.Change, error) { return nil, boom },
		"panic": func(context.Context, chan<- int) (history.Change, error) { panic("oops") },
		"stale": func(context.Context, chan<- int) (history.Change, error) { return setCell(0, "old", "new"), nil },
	}
	for name, task := range tasks {
		t.Run(name, func(t *testing.T) {
			p := NewLongRunning(name, nil, ksid.NewID(), task, nil)
			if err := m.Start(p); err != nil {
				t.Fatal(err)
			}
			if err := p.Wait(waitCtx(t)); err == nil {
				t.Fatal("expected failure")
			}
			if p.Status() != Failed || h.Len() != 0 || p.Report().Error == "" {
				t.Fatal(p.Status(), h.Len())
			}
		})
	}
}

func TestQueueOrder(t *testing.T) {
	h := newHistory(t)
	m := NewManager(h)
	release := make(chan struct{})
	first := NewLongRunning("first", nil, ksid.NewID(), func(ctx context.Context, _ chan<- int) (history.Change, error) {
		<-release
		return setCell(0, "x", "1"), nil
	}, nil)
	second := NewLongRunning("second", nil, ksid.NewID(), func(ctx context.Context, _ chan<- int) (history.Change, error) {
		return setCell(0, "1", "2"), nil
	}, nil)
	quick := NewQuick("quick", nil, func(*grid.Grid, *history.Entry) (history.Change, error) {
		return setCell(0, "2", "3"), nil
	})
	canceled := NewLongRunning("canceled", nil, ksid.NewID(), func(context.Context, chan<- int) (history.Change, error) {
		t.Error("canceled process ran")
		return nil, nil
	}, nil)
	for _, p := range []*Process{first, second, quick, canceled} {
		if err := m.Start(p); err != nil {
			t.Fatal(err)
		}
	}
	if quick.Status() != Pending || second.Status() != Pending {
		t.Fatal("expected queued processes")
	}
	canceled.Cancel()
	close(release)
	if err := m.Wait(waitCtx(t)); err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, e := range h.Entries() {
		got = append(got, e.Description)
	}
	if len(got) != 3 || got[0] != "first" || got[1] != "second" || got[2] != "quick" {
		t.Fatal(got)
	}
	if canceled.Status() != Canceled {
		t.Fatal(canceled.Status())
	}
	if n := len(m.Reports()); n != 4 {
		t.Fatal(n)
	}
}
