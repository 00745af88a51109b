package recon

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/maruel/facetdb/internal/grid"
	"github.com/maruel/ksid"
)

// countingConfig records every batch it receives.
type countingConfig struct {
	*DictionaryConfig
	mu      sync.Mutex
	batches [][]string
	fail    error
}

func (c *countingConfig) BatchRecon(ctx context.Context, jobs []Job, id ksid.ID) ([]*grid.Recon, error) {
	c.mu.Lock()
	keys := make([]string, len(jobs))
	for i, j := range jobs {
		keys[i] = j.Key()
	}
	c.batches = append(c.batches, keys)
	c.mu.Unlock()
	if c.fail != nil {
		return nil, c.fail
	}
	return c.DictionaryConfig.BatchRecon(ctx, jobs, id)
}

func newDictionary() *DictionaryConfig {
	return &DictionaryConfig{
		ServiceName: "dict",
		AutoMatch:   true,
		Entries: map[string][]grid.ReconCandidate{
			"Paris": {{ID: "p2", Name: "Paris, TX", Score: 40}, {ID: "p1", Name: "Paris", Score: 90}},
			"rome":  {{ID: "r1", Name: "Rome", Score: 50}, {ID: "r2", Name: "Roma", Score: 50}},
		},
	}
}

func newGrid(t *testing.T, values ...any) (*grid.Grid, []Entry) {
	t.Helper()
	rows := make([]*grid.Row, len(values))
	for i, v := range values {
		rows[i] = grid.NewRow(v)
	}
	g, err := grid.New([]string{"city"}, rows)
	if err != nil {
		t.Fatal(err)
	}
	var entries []Entry
	for i, r := range g.Rows() {
		if !r.IsCellBlank(0) {
			entries = append(entries, Entry{Row: i, Cell: r.Cell(0)})
		}
	}
	return g, entries
}

func TestDictionary(t *testing.T) {
	c := newDictionary()
	g, entries := newGrid(t, "paris", " Rome", "Berlin")
	id := ksid.NewID()
	jobs := make([]Job, len(entries))
	for i, e := range entries {
		jobs[i] = c.CreateJob(g, e.Row, g.Row(e.Row), "city", e.Cell)
	}
	recons, err := c.BatchRecon(context.Background(), jobs, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(recons) != 3 {
		t.Fatal(len(recons))
	}
	paris := recons[0]
	if paris.Judgment != grid.JudgmentMatched || paris.Match.ID != "p1" || paris.Best().ID != "p1" || paris.JudgmentHistoryEntry != id {
		t.Fatalf("%+v", paris)
	}
	// Tied candidates are not auto matched.
	if recons[1].Judgment != grid.JudgmentNone || len(recons[1].Candidates) != 2 || recons[1].MatchRank != -1 {
		t.Fatalf("%+v", recons[1])
	}
	if recons[2].Judgment != grid.JudgmentNone || recons[2].Best() != nil {
		t.Fatalf("%+v", recons[2])
	}
}

func TestParseConfig(t *testing.T) {
	raw, err := json.Marshal(newDictionary())
	if err != nil {
		t.Fatal(err)
	}
	c, err := ParseConfig(raw)
	if err != nil {
		t.Fatal(err)
	}
	if c.Mode() != DictionaryMode || c.Service() != "dict" || c.BatchSize() != 10 {
		t.Fatal(c.Mode(), c.Service(), c.BatchSize())
	}
	if _, err := ParseConfig([]byte(`{"mode":"standard-service"}`)); !errors.Is(err, ErrUnknownMode) {
		t.Fatal(err)
	}
	if _, err := ParseConfig([]byte(`[`)); err == nil {
		t.Fatal("expected error")
	}
	th := NewThrottled(c, 100)
	raw2, err := json.Marshal(th)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw2) != string(raw) {
		t.Fatalf("%s != %s", raw2, raw)
	}
	if NewThrottled(c, 0) != c {
		t.Fatal("zero rate must not wrap")
	}
}

// Two rows with equal keys share one job and one recon.
func TestGroupSharedKey(t *testing.T) {
	c := &countingConfig{DictionaryConfig: newDictionary()}
	g, entries := newGrid(t, "Paris", "Rome", "Lyon", "paris")
	groups := GroupEntries(c, g, "city", entries)
	if len(groups) != 3 {
		t.Fatal(len(groups))
	}
	if n := len(groups[0].Entries); n != 2 || groups[0].Entries[1].Row != 3 {
		t.Fatalf("%+v", groups[0].Entries)
	}
	if err := Run(context.Background(), c, groups, ksid.NewID(), RunOptions{}, nil); err != nil {
		t.Fatal(err)
	}
	if len(c.batches) != 1 || len(c.batches[0]) != 3 {
		t.Fatal(c.batches)
	}
	for _, grp := range groups {
		if grp.Recon == nil {
			t.Fatalf("missing recon for %q", grp.Job.Key())
		}
	}
}

func TestRunBatches(t *testing.T) {
	d := newDictionary()
	d.Batch = 2
	c := &countingConfig{DictionaryConfig: d}
	g, entries := newGrid(t, "a", "b", "c", "d", "e")
	groups := GroupEntries(c, g, "city", entries)
	progress := make(chan int, 10)
	opts := RunOptions{Concurrency: 2, BatchDelay: time.Millisecond}
	if err := Run(context.Background(), c, groups, ksid.NewID(), opts, progress); err != nil {
		t.Fatal(err)
	}
	close(progress)
	var got []int
	for p := range progress {
		got = append(got, p)
	}
	if len(got) != 3 || got[0] != 0 || got[1] != 40 || got[2] != 80 {
		t.Fatal(got)
	}
	if len(c.batches) != 3 {
		t.Fatal(c.batches)
	}
}

func TestRunErrors(t *testing.T) {
	boom := errors.New("boom")
	c := &countingConfig{DictionaryConfig: newDictionary(), fail: boom}
	g, entries := newGrid(t, "a", "b")
	groups := GroupEntries(c, g, "city", entries)
	if err := Run(context.Background(), c, groups, ksid.NewID(), RunOptions{}, nil); !errors.Is(err, boom) {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c.fail = nil
	c.batches = nil
	if err := Run(ctx, c, groups, ksid.NewID(), RunOptions{}, nil); !errors.Is(err, context.Canceled) {
		t.Fatal(err)
	}
	if len(c.batches) != 0 {
		t.Fatal(c.batches)
	}
}

func TestThrottled(t *testing.T) {
	c := &countingConfig{DictionaryConfig: newDictionary()}
	th := NewThrottled(c, 1)
	g, entries := newGrid(t, "a")
	jobs := []Job{c.CreateJob(g, 0, g.Row(0), "city", entries[0].Cell)}
	if _, err := th.BatchRecon(context.Background(), jobs, ksid.NewID()); err != nil {
		t.Fatal(err)
	}
	// The burst is spent; the next call must wait about a second and thus
	// fail a short deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := th.BatchRecon(ctx, jobs, ksid.NewID()); err == nil {
		t.Fatal("expected limiter error")
	}
	if len(c.batches) != 1 {
		t.Fatal(c.batches)
	}
}
