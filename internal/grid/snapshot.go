// Loads and saves a grid as JSONL: one schema header line, then one line per row.

package grid

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// currentVersion is the current version of the snapshot format.
const currentVersion = "1.0"

var errSchemaVersionRequired = errors.New("schema version is required")

// schemaHeader is the first line of a snapshot.
type schemaHeader struct {
	Version      string    `json:"version"`
	Columns      []*Column `json:"columns"`
	MaxCellIndex int       `json:"maxCellIndex"`
}

// Validate checks that the schema header is well-formed.
func (h *schemaHeader) Validate() error {
	if h.Version == "" {
		return errSchemaVersionRequired
	}
	seen := make(map[string]bool, len(h.Columns))
	for i, col := range h.Columns {
		if col.Name == "" {
			return fmt.Errorf("column %d: name is required", i)
		}
		if seen[col.Name] {
			return fmt.Errorf("column %d: %w: %q", i, ErrDuplicateColumn, col.Name)
		}
		seen[col.Name] = true
		if col.CellIndex < 0 || col.CellIndex > h.MaxCellIndex {
			return fmt.Errorf("column %q: cell index %d out of range", col.Name, col.CellIndex)
		}
	}
	return nil
}

// WriteTo writes the snapshot to w.
func (g *Grid) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: bufio.NewWriter(w)}
	enc := json.NewEncoder(cw)
	h := schemaHeader{Version: currentVersion, Columns: g.columns.Columns, MaxCellIndex: g.columns.MaxCellIndex}
	if err := enc.Encode(&h); err != nil {
		return cw.n, fmt.Errorf("failed to write schema header: %w", err)
	}
	for i, row := range g.rows {
		if err := enc.Encode(row); err != nil {
			return cw.n, fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}
	return cw.n, cw.w.Flush()
}

// Read parses a snapshot.
func Read(r io.Reader) (*Grid, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	var h *schemaHeader
	var rows []*Row
	line := 0
	for scanner.Scan() {
		line++
		data := scanner.Bytes()
		if len(data) == 0 {
			continue
		}
		if h == nil {
			h = &schemaHeader{}
			if err := json.Unmarshal(data, h); err != nil {
				return nil, fmt.Errorf("failed to unmarshal schema header: %w", err)
			}
			if err := h.Validate(); err != nil {
				return nil, fmt.Errorf("invalid schema header: %w", err)
			}
			continue
		}
		row := &Row{}
		if err := json.Unmarshal(data, row); err != nil {
			return nil, fmt.Errorf("failed to unmarshal row on line %d: %w", line, err)
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	if h == nil {
		return nil, errSchemaVersionRequired
	}
	g := &Grid{columns: &ColumnModel{Columns: h.Columns, MaxCellIndex: h.MaxCellIndex}, rows: rows}
	g.Update()
	return g, nil
}

// Save writes the snapshot to path, replacing any previous file.
func (g *Grid) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp) //nolint:gosec // G304: path is owned by the project directory
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}
	if _, err := g.WriteTo(f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot file: %w", err)
	}
	return os.Rename(tmp, path)
}

// Load reads the snapshot at path.
func Load(path string) (*Grid, error) {
	f, err := os.Open(path) //nolint:gosec // G304: path is owned by the project directory
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot %s: %w", path, err)
	}
	defer func() {
		_ = f.Close()
	}()
	return Read(f)
}

type countingWriter struct {
	w *bufio.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
