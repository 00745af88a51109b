// Defines columns, their precompute cache and the column model.

package grid

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

var (
	// ErrNoSuchColumn is returned when a column name does not resolve.
	ErrNoSuchColumn = errors.New("no such column")
	// ErrDuplicateColumn is returned when adding a column whose name is taken.
	ErrDuplicateColumn = errors.New("duplicate column name")
)

// Column maps a unique name to a stable cell index in every row.
type Column struct {
	CellIndex   int             `json:"cellIndex"`
	Name        string          `json:"name"`
	ReconConfig json.RawMessage `json:"reconConfig,omitempty"`
	ReconStats  *ReconStats     `json:"reconStats,omitempty"`

	mu          sync.Mutex
	precomputes map[string]any
}

// NewColumn returns a column bound to cellIndex.
func NewColumn(cellIndex int, name string) *Column {
	return &Column{CellIndex: cellIndex, Name: name}
}

// Precompute returns the cached object for key, or nil.
func (c *Column) Precompute(key string) any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.precomputes[key]
}

// SetPrecompute publishes v under key. v must not be mutated afterward.
func (c *Column) SetPrecompute(key string, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.precomputes == nil {
		c.precomputes = make(map[string]any)
	}
	c.precomputes[key] = v
}

// ClearPrecomputes drops every cached object of the column.
func (c *Column) ClearPrecomputes() {
	c.mu.Lock()
	n := len(c.precomputes)
	c.precomputes = nil
	c.mu.Unlock()
	if n > 0 {
		slog.Debug("Cleared column precomputes", "column", c.Name, "entries", n)
	}
}

// ColumnModel is the ordered list of columns.
type ColumnModel struct {
	Columns      []*Column `json:"columns"`
	MaxCellIndex int       `json:"maxCellIndex"`
}

// ByName returns the column named name, or nil.
func (m *ColumnModel) ByName(name string) *Column {
	for _, c := range m.Columns {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ByCellIndex returns the column bound to cellIndex, or nil.
func (m *ColumnModel) ByCellIndex(cellIndex int) *Column {
	for _, c := range m.Columns {
		if c.CellIndex == cellIndex {
			return c
		}
	}
	return nil
}

// Resolve returns the column named name or an error wrapping ErrNoSuchColumn.
func (m *ColumnModel) Resolve(name string) (*Column, error) {
	if c := m.ByName(name); c != nil {
		return c, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrNoSuchColumn, name)
}

// Names returns the column names in order.
func (m *ColumnModel) Names() []string {
	names := make([]string, len(m.Columns))
	for i, c := range m.Columns {
		names[i] = c.Name
	}
	return names
}

// KeyCellIndex returns the cell index that delimits records, or -1.
func (m *ColumnModel) KeyCellIndex() int {
	if len(m.Columns) == 0 {
		return -1
	}
	return m.Columns[0].CellIndex
}

// AllocateCellIndex reserves a fresh cell index.
func (m *ColumnModel) AllocateCellIndex() int {
	m.MaxCellIndex++
	return m.MaxCellIndex
}

// Add inserts c at position index (-1 or out of range appends).
func (m *ColumnModel) Add(index int, c *Column) error {
	if m.ByName(c.Name) != nil {
		return fmt.Errorf("%w: %q", ErrDuplicateColumn, c.Name)
	}
	if index < 0 || index > len(m.Columns) {
		index = len(m.Columns)
	}
	m.Columns = slices.Insert(m.Columns, index, c)
	if c.CellIndex > m.MaxCellIndex {
		m.MaxCellIndex = c.CellIndex
	}
	return nil
}

// Remove deletes the column named name and returns its former position.
func (m *ColumnModel) Remove(name string) (int, error) {
	for i, c := range m.Columns {
		if c.Name == name {
			m.Columns = slices.Delete(m.Columns, i, i+1)
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %q", ErrNoSuchColumn, name)
}

// ClearAllPrecomputes drops the caches of every column.
func (m *ColumnModel) ClearAllPrecomputes() {
	for _, c := range m.Columns {
		c.ClearPrecomputes()
	}
}
