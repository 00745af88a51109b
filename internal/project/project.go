// Package project binds a grid, its history and its process manager into one
// unit with an explicit open/close lifecycle.
//
// On disk a project is a directory holding data.jsonl, the base snapshot the
// project was created from, and history.log, the changes applied since.
// Opening a project loads the snapshot and replays the log up to its cursor.
package project

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/maruel/facetdb/internal/facets"
	"github.com/maruel/facetdb/internal/grid"
	"github.com/maruel/facetdb/internal/history"
	"github.com/maruel/facetdb/internal/operations"
	"github.com/maruel/facetdb/internal/process"
	"github.com/maruel/ksid"
)

// File names inside a project directory.
const (
	SnapshotFile = "data.jsonl"
	HistoryFile  = "history.log"
)

// ErrNotFound is returned for an unknown project.
var ErrNotFound = errors.New("project not found")

// Metadata describes a project.
type Metadata struct {
	ID       ksid.ID   `json:"id"`
	Name     string    `json:"name"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`
}

// Clone returns a copy.
func (m *Metadata) Clone() *Metadata {
	c := *m
	return &c
}

// GetID returns the project ID.
func (m *Metadata) GetID() ksid.ID { return m.ID }

// Options controls how a project is opened.
type Options struct {
	// Fsync syncs the history log after every write.
	Fsync bool
	// Env is used for operations. nil means operations.DefaultEnv().
	Env *operations.Env
}

// Project is an open project.
type Project struct {
	mu   sync.Mutex
	meta *Metadata
	dir  string
	env  *operations.Env
	g    *grid.Grid
	h    *history.History
	m    *process.Manager
}

// Create writes a new project into dir from a base grid and opens it.
func Create(dir string, meta *Metadata, g *grid.Grid, opts Options) (*Project, error) {
	if _, err := os.Stat(filepath.Join(dir, SnapshotFile)); err == nil {
		return nil, fmt.Errorf("project already exists in %s", dir)
	}
	if err := g.Save(filepath.Join(dir, SnapshotFile)); err != nil {
		return nil, fmt.Errorf("failed to write project snapshot: %w", err)
	}
	p := newProject(dir, meta, g, history.New(g, history.OpenLog(filepath.Join(dir, HistoryFile), opts.Fsync)), opts)
	slog.Info("Project created", "id", meta.ID, "name", meta.Name, "rows", g.RowCount())
	return p, nil
}

// Open loads the project in dir.
func Open(dir string, meta *Metadata, opts Options) (*Project, error) {
	g, err := grid.Load(filepath.Join(dir, SnapshotFile))
	if err != nil {
		return nil, err
	}
	logPath := filepath.Join(dir, HistoryFile)
	entries, cursor, err := history.LoadLog(logPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load history of %s: %w", meta.ID, err)
	}
	h, err := history.Restore(g, history.OpenLog(logPath, opts.Fsync), entries, cursor)
	if err != nil {
		return nil, err
	}
	slog.Info("Project opened", "id", meta.ID, "name", meta.Name, "entries", len(entries), "cursor", cursor)
	return newProject(dir, meta, g, h, opts), nil
}

func newProject(dir string, meta *Metadata, g *grid.Grid, h *history.History, opts Options) *Project {
	env := opts.Env
	if env == nil {
		env = operations.DefaultEnv()
	}
	return &Project{meta: meta.Clone(), dir: dir, env: env, g: g, h: h, m: process.NewManager(h)}
}

// Metadata returns a copy of the project description.
func (p *Project) Metadata() *Metadata {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.meta.Clone()
}

// Dir returns the project directory.
func (p *Project) Dir() string { return p.dir }

// Grid returns the live grid.
func (p *Project) Grid() *grid.Grid { return p.g }

// History returns the history.
func (p *Project) History() *history.History { return p.h }

// Processes returns the process manager.
func (p *Project) Processes() *process.Manager { return p.m }

// Engine builds a facet engine from its JSON configuration and computes
// every facet under the grid read lock.
func (p *Project) Engine(raw json.RawMessage) (*facets.Engine, error) {
	c, err := facets.ParseEngineConfig(raw)
	if err != nil {
		return nil, err
	}
	p.g.RLock()
	defer p.g.RUnlock()
	e, err := facets.NewEngine(p.g, c, p.env.Facets)
	if err != nil {
		return nil, err
	}
	e.ComputeFacets()
	return e, nil
}

// Apply decodes an operation and starts its process. Immediate processes
// are done when Apply returns; long running ones may still be running.
func (p *Project) Apply(raw json.RawMessage) (*process.Process, error) {
	op, err := operations.Reconstruct(raw)
	if err != nil {
		return nil, err
	}
	return p.Run(op)
}

// Run starts the process of op.
func (p *Project) Run(op operations.Operation) (*process.Process, error) {
	proc, err := operations.CreateProcess(op, p.g, p.env)
	if err != nil {
		return nil, err
	}
	if err := p.m.Start(proc); err != nil {
		return proc, err
	}
	p.mu.Lock()
	p.meta.Modified = time.Now().UTC()
	p.mu.Unlock()
	return proc, nil
}

// Export writes the current rows as a snapshot.
func (p *Project) Export(w io.Writer) error {
	p.g.RLock()
	defer p.g.RUnlock()
	_, err := p.g.WriteTo(w)
	return err
}

// Close cancels every process and waits for the running one to stop.
func (p *Project) Close(ctx context.Context) error {
	err := p.m.Close(ctx)
	slog.Info("Project closed", "id", p.Metadata().ID, "err", err)
	return err
}
