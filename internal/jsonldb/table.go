// Package jsonldb keeps a small set of records in memory, persisted as one
// JSON object per line.
package jsonldb

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"sync"

	"github.com/maruel/ksid"
)

// ErrDuplicateID is returned by Append when the ID is already present.
var ErrDuplicateID = errors.New("duplicate id")

// Row is implemented by the records stored in a Table.
type Row[T any] interface {
	Clone() T
	GetID() ksid.ID
}

// Table handles storage and in-memory caching for a single table in JSONL format.
type Table[T Row[T]] struct {
	path string
	mu   sync.RWMutex

	rows []T
	byID map[ksid.ID]int
}

// NewTable creates a new Table and loads all data from the file.
func NewTable[T Row[T]](path string) (*Table[T], error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:gosec // G301: data directory.
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	t := &Table[T]{path: path}
	if err := t.load(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Table[T]) load() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows = nil
	t.byID = map[ksid.ID]int{}
	f, err := os.Open(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open table file %s: %w", t.path, err)
	}
	defer func() {
		_ = f.Close()
	}()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(nil, 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var row T
		if err := json.Unmarshal(line, &row); err != nil {
			return fmt.Errorf("failed to unmarshal row in %s: %w", t.path, err)
		}
		// A later line for the same ID supersedes the earlier one.
		if i, ok := t.byID[row.GetID()]; ok {
			t.rows[i] = row
			continue
		}
		t.byID[row.GetID()] = len(t.rows)
		t.rows = append(t.rows, row)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read table file %s: %w", t.path, err)
	}
	return nil
}

// Len returns the number of rows.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

// Get returns a clone of the row with the given ID.
func (t *Table[T]) Get(id ksid.ID) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	i, ok := t.byID[id]
	if !ok {
		var zero T
		return zero, false
	}
	return t.rows[i].Clone(), true
}

// All returns an iterator over clones of all rows.
func (t *Table[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		t.mu.RLock()
		defer t.mu.RUnlock()
		for _, row := range t.rows {
			if !yield(row.Clone()) {
				return
			}
		}
	}
}

// Append adds a new row and persists it.
func (t *Table[T]) Append(row T) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.byID[row.GetID()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, row.GetID())
	}
	if err := t.appendLine(row); err != nil {
		return err
	}
	t.byID[row.GetID()] = len(t.rows)
	t.rows = append(t.rows, row.Clone())
	return nil
}

// Update replaces the row with the same ID. The new version is appended to
// the file.
func (t *Table[T]) Update(row T) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	i, ok := t.byID[row.GetID()]
	if !ok {
		return fmt.Errorf("row %s not found", row.GetID())
	}
	if err := t.appendLine(row); err != nil {
		return err
	}
	t.rows[i] = row.Clone()
	return nil
}

// Delete removes the row with the given ID and rewrites the file.
func (t *Table[T]) Delete(id ksid.ID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	i, ok := t.byID[id]
	if !ok {
		return fmt.Errorf("row %s not found", id)
	}
	rows := append(append([]T(nil), t.rows[:i]...), t.rows[i+1:]...)
	if err := t.rewrite(rows); err != nil {
		return err
	}
	t.rows = rows
	t.byID = make(map[ksid.ID]int, len(rows))
	for j, r := range rows {
		t.byID[r.GetID()] = j
	}
	return nil
}

func (t *Table[T]) appendLine(row T) error {
	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("failed to marshal row: %w", err)
	}
	f, err := os.OpenFile(t.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec // G302: not a secret.
	if err != nil {
		return fmt.Errorf("failed to open table file for append: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write row: %w", err)
	}
	return nil
}

// rewrite replaces the file content with rows.
func (t *Table[T]) rewrite(rows []T) error {
	tmp := t.path + ".tmp"
	f, err := os.Create(tmp) //nolint:gosec // G304: path is owned by the table.
	if err != nil {
		return fmt.Errorf("failed to create table file: %w", err)
	}
	w := bufio.NewWriter(f)
	for _, row := range rows {
		data, err := json.Marshal(row)
		if err != nil {
			_ = f.Close()
			return fmt.Errorf("failed to marshal row: %w", err)
		}
		_, _ = w.Write(data)
		_ = w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to flush writer: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close table file: %w", err)
	}
	return os.Rename(tmp, t.path)
}
