// Provides the cursor-tracked entry list with undo and redo.

package history

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/maruel/facetdb/internal/grid"
	"github.com/maruel/ksid"
)

// Entry is one applied or undone mutation. Immutable once created.
type Entry struct {
	ID          ksid.ID         `json:"id"`
	Time        time.Time       `json:"time"`
	Description string          `json:"description"`
	Operation   json.RawMessage `json:"operation,omitempty"`
	Change      Change          `json:"-"`
}

// History is the ordered list of entries of one grid plus the cursor: the
// number of entries currently applied.
//
// Every method takes the grid mutation lock; it is the only synchronization
// used.
type History struct {
	g       *grid.Grid
	log     *Log
	entries []*Entry
	cursor  int
}

// New returns an empty history for g. log may be nil.
func New(g *grid.Grid, log *Log) *History {
	return &History{g: g, log: log}
}

// Restore returns a history over entries and re-applies the first cursor of
// them to g, which must hold the base state.
func Restore(g *grid.Grid, log *Log, entries []*Entry, cursor int) (*History, error) {
	if cursor < 0 || cursor > len(entries) {
		return nil, fmt.Errorf("%w: cursor %d with %d entries", ErrCorruptLog, cursor, len(entries))
	}
	h := &History{g: g, log: log, entries: entries}
	g.Lock()
	defer g.Unlock()
	for ; h.cursor < cursor; h.cursor++ {
		e := entries[h.cursor]
		if err := e.Change.Apply(g); err != nil {
			return nil, fmt.Errorf("%w: replaying entry %s: %w", ErrCorruptLog, e.ID, err)
		}
	}
	return h, nil
}

// Grid returns the grid this history mutates.
func (h *History) Grid() *grid.Grid { return h.g }

// AddEntry applies e.Change and appends e, discarding undone entries.
func (h *History) AddEntry(e *Entry) error {
	h.g.Lock()
	defer h.g.Unlock()
	return h.add(e)
}

// AddEntryWith builds the change under the mutation lock, applies it and
// appends the entry. build receives the entry being created and may refine
// its description.
func (h *History) AddEntryWith(description string, op json.RawMessage, build func(g *grid.Grid, e *Entry) (Change, error)) (*Entry, error) {
	e := &Entry{ID: ksid.NewID(), Description: description, Operation: op}
	h.g.Lock()
	defer h.g.Unlock()
	c, err := build(h.g, e)
	if err != nil {
		return nil, err
	}
	e.Change = c
	if err := h.add(e); err != nil {
		return nil, err
	}
	return e, nil
}

func (h *History) add(e *Entry) error {
	if e.ID.IsZero() {
		e.ID = ksid.NewID()
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	if err := e.Change.Apply(h.g); err != nil {
		return fmt.Errorf("applying %q: %w", e.Description, err)
	}
	if h.cursor < len(h.entries) {
		if err := h.log.writeTruncate(h.cursor); err != nil {
			return h.rollback(e.Change, err)
		}
		slog.Debug("Discarded undone entries", "count", len(h.entries)-h.cursor)
		h.entries = h.entries[:h.cursor]
	}
	if err := h.log.appendEntry(e); err != nil {
		return h.rollback(e.Change, err)
	}
	h.entries = append(h.entries, e)
	h.cursor++
	slog.Info("History entry added", "id", e.ID, "description", e.Description, "cursor", h.cursor)
	return nil
}

func (h *History) rollback(c Change, err error) error {
	if rerr := c.Revert(h.g); rerr != nil {
		slog.Error("Failed to revert after log write failure", "err", rerr)
	}
	return fmt.Errorf("writing history log: %w", err)
}

// Undo reverts the entry before the cursor.
func (h *History) Undo() (*Entry, error) {
	h.g.Lock()
	defer h.g.Unlock()
	if h.cursor == 0 {
		return nil, ErrNothingToUndo
	}
	e := h.entries[h.cursor-1]
	if err := e.Change.Revert(h.g); err != nil {
		return nil, fmt.Errorf("reverting %q: %w", e.Description, err)
	}
	if err := h.log.writeCursor(h.cursor - 1); err != nil {
		if aerr := e.Change.Apply(h.g); aerr != nil {
			slog.Error("Failed to re-apply after log write failure", "err", aerr)
		}
		return nil, fmt.Errorf("writing history log: %w", err)
	}
	h.cursor--
	slog.Info("Undo", "id", e.ID, "cursor", h.cursor)
	return e, nil
}

// Redo re-applies the entry at the cursor.
func (h *History) Redo() (*Entry, error) {
	h.g.Lock()
	defer h.g.Unlock()
	if h.cursor == len(h.entries) {
		return nil, ErrNothingToRedo
	}
	e := h.entries[h.cursor]
	if err := e.Change.Apply(h.g); err != nil {
		return nil, fmt.Errorf("applying %q: %w", e.Description, err)
	}
	if err := h.log.writeCursor(h.cursor + 1); err != nil {
		return nil, h.rollback(e.Change, err)
	}
	h.cursor++
	slog.Info("Redo", "id", e.ID, "cursor", h.cursor)
	return e, nil
}

// UndoRedo moves the cursor so that lastDone is the last applied entry. A
// zero ID undoes everything.
func (h *History) UndoRedo(lastDone ksid.ID) error {
	target := 0
	if !lastDone.IsZero() {
		target = -1
		h.g.RLock()
		for i, e := range h.entries {
			if e.ID == lastDone {
				target = i + 1
				break
			}
		}
		h.g.RUnlock()
		if target < 0 {
			return fmt.Errorf("no history entry %s", lastDone)
		}
	}
	for {
		switch c := h.Cursor(); {
		case c > target:
			if _, err := h.Undo(); err != nil {
				return err
			}
		case c < target:
			if _, err := h.Redo(); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

// Cursor returns the number of applied entries.
func (h *History) Cursor() int {
	h.g.RLock()
	defer h.g.RUnlock()
	return h.cursor
}

// Len returns the number of entries, applied or not.
func (h *History) Len() int {
	h.g.RLock()
	defer h.g.RUnlock()
	return len(h.entries)
}

// Entries returns a copy of every entry.
func (h *History) Entries() []*Entry {
	h.g.RLock()
	defer h.g.RUnlock()
	return append([]*Entry(nil), h.entries...)
}

// Done returns the applied entries; Undone the ones past the cursor.
func (h *History) Done() []*Entry {
	h.g.RLock()
	defer h.g.RUnlock()
	return append([]*Entry(nil), h.entries[:h.cursor]...)
}

// Undone returns the entries past the cursor, next to redo first.
func (h *History) Undone() []*Entry {
	h.g.RLock()
	defer h.g.RUnlock()
	return append([]*Entry(nil), h.entries[h.cursor:]...)
}
