// Provides the registry of projects stored under one directory.

package project

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/maruel/facetdb/internal/grid"
	"github.com/maruel/facetdb/internal/jsonldb"
	"github.com/maruel/ksid"
)

// CatalogFile lists the projects of a workspace.
const CatalogFile = "projects.jsonl"

// Workspace owns the projects under a root directory and the ones currently
// open.
type Workspace struct {
	root    string
	opts    Options
	catalog *jsonldb.Table[*Metadata]

	mu   sync.Mutex
	open map[ksid.ID]*Project
}

// NewWorkspace loads the catalog of root.
func NewWorkspace(root string, opts Options) (*Workspace, error) {
	catalog, err := jsonldb.NewTable[*Metadata](filepath.Join(root, CatalogFile))
	if err != nil {
		return nil, fmt.Errorf("failed to load project catalog: %w", err)
	}
	return &Workspace{root: root, opts: opts, catalog: catalog, open: map[ksid.ID]*Project{}}, nil
}

func (w *Workspace) dir(id ksid.ID) string {
	return filepath.Join(w.root, id.String())
}

// List returns the metadata of every project in creation order.
func (w *Workspace) List() []*Metadata {
	var out []*Metadata
	for m := range w.catalog.All() {
		out = append(out, m)
	}
	return out
}

// Lookup resolves a project ID or a unique project name.
func (w *Workspace) Lookup(ref string) (ksid.ID, error) {
	if id, err := ksid.Parse(ref); err == nil {
		if _, ok := w.catalog.Get(id); ok {
			return id, nil
		}
	}
	var found ksid.ID
	for m := range w.catalog.All() {
		if m.Name != ref {
			continue
		}
		if !found.IsZero() {
			return 0, fmt.Errorf("project name %q is ambiguous", ref)
		}
		found = m.ID
	}
	if found.IsZero() {
		return 0, fmt.Errorf("%w: %q", ErrNotFound, ref)
	}
	return found, nil
}

// Create registers a new project built from g and opens it.
func (w *Workspace) Create(name string, g *grid.Grid) (*Project, error) {
	now := time.Now().UTC()
	meta := &Metadata{ID: ksid.NewID(), Name: name, Created: now, Modified: now}
	p, err := Create(w.dir(meta.ID), meta, g, w.opts)
	if err != nil {
		return nil, err
	}
	if err := w.catalog.Append(meta); err != nil {
		return nil, err
	}
	w.mu.Lock()
	w.open[meta.ID] = p
	w.mu.Unlock()
	return p, nil
}

// Get returns the open project, opening it first if needed.
func (w *Workspace) Get(id ksid.ID) (*Project, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if p := w.open[id]; p != nil {
		return p, nil
	}
	meta, ok := w.catalog.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	p, err := Open(w.dir(id), meta, w.opts)
	if err != nil {
		return nil, err
	}
	w.open[id] = p
	return p, nil
}

// Close closes an open project and records its modification time.
func (w *Workspace) Close(ctx context.Context, id ksid.ID) error {
	w.mu.Lock()
	p := w.open[id]
	delete(w.open, id)
	w.mu.Unlock()
	if p == nil {
		return nil
	}
	err := p.Close(ctx)
	if uerr := w.catalog.Update(p.Metadata()); uerr != nil {
		err = errors.Join(err, uerr)
	}
	return err
}

// CloseAll closes every open project.
func (w *Workspace) CloseAll(ctx context.Context) error {
	w.mu.Lock()
	ids := make([]ksid.ID, 0, len(w.open))
	for id := range w.open {
		ids = append(ids, id)
	}
	w.mu.Unlock()
	var errs []error
	for _, id := range ids {
		errs = append(errs, w.Close(ctx, id))
	}
	return errors.Join(errs...)
}

// Delete closes the project and removes it from disk.
func (w *Workspace) Delete(ctx context.Context, id ksid.ID) error {
	if _, ok := w.catalog.Get(id); !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := w.Close(ctx, id); err != nil {
		return err
	}
	if err := w.catalog.Delete(id); err != nil {
		return err
	}
	if err := os.RemoveAll(w.dir(id)); err != nil {
		return fmt.Errorf("failed to remove project directory: %w", err)
	}
	return nil
}
