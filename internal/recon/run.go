// Groups cells into jobs and runs them in batches.

package recon

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maruel/facetdb/internal/grid"
	"github.com/maruel/ksid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Entry is a cell selected for reconciliation.
type Entry struct {
	Row       int
	CellIndex int
	Cell      *grid.Cell
}

// Group is the set of entries sharing one job.
type Group struct {
	Job     Job
	Entries []Entry
	// Recon is set by Run. It is shared by all entries of the group.
	Recon *grid.Recon
}

// GroupEntries creates one job per entry and merges entries with the same
// job key. Groups are returned in order of first appearance. The caller must
// hold the grid read lock.
func GroupEntries(c Config, g *grid.Grid, columnName string, entries []Entry) []*Group {
	byKey := map[string]*Group{}
	var out []*Group
	for _, e := range entries {
		j := c.CreateJob(g, e.Row, g.Row(e.Row), columnName, e.Cell)
		k := j.Key()
		grp := byKey[k]
		if grp == nil {
			grp = &Group{Job: j}
			byKey[k] = grp
			out = append(out, grp)
		}
		grp.Entries = append(grp.Entries, e)
	}
	return out
}

// RunOptions controls batch execution.
type RunOptions struct {
	// Concurrency is the number of batches in flight. Values below 1 mean 1.
	Concurrency int
	// BatchDelay is the minimum interval between the start of two batches.
	BatchDelay time.Duration
}

// Run performs the jobs of groups in batches of c.BatchSize() and stores the
// results in each Group.Recon. Progress is reported as a percentage of the
// groups submitted so far. Cancellation of ctx stops between batches.
func Run(ctx context.Context, c Config, groups []*Group, historyEntryID ksid.ID, opts RunOptions, progress chan<- int) error {
	size := max(c.BatchSize(), 1)
	limit := rate.Inf
	if opts.BatchDelay > 0 {
		limit = rate.Every(opts.BatchDelay)
	}
	pace := rate.NewLimiter(limit, 1)
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(max(opts.Concurrency, 1))
	for i := 0; i < len(groups); i += size {
		if err := pace.Wait(gctx); err != nil {
			break
		}
		if progress != nil {
			select {
			case progress <- i * 100 / len(groups):
			case <-gctx.Done():
			}
		}
		batch := groups[i:min(i+size, len(groups))]
		eg.Go(func() error {
			jobs := make([]Job, len(batch))
			for k, grp := range batch {
				jobs[k] = grp.Job
			}
			recons, err := c.BatchRecon(gctx, jobs, historyEntryID)
			if err != nil {
				return fmt.Errorf("failed to reconcile batch: %w", err)
			}
			if len(recons) != len(jobs) {
				return fmt.Errorf("recon service %q returned %d results for %d jobs", c.Service(), len(recons), len(jobs))
			}
			for k, grp := range batch {
				grp.Recon = recons[k]
			}
			slog.Debug("Recon batch", "service", c.Service(), "jobs", len(jobs))
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
