// Defines rows.

package grid

// Row is an ordered sequence of cells plus row-level flags.
//
// A nil entry in Cells is an absent cell, which is distinct from a cell
// holding an empty string.
type Row struct {
	Flagged bool    `json:"flagged,omitempty"`
	Starred bool    `json:"starred,omitempty"`
	Cells   []*Cell `json:"cells"`
}

// NewRow returns a row holding one cell per value; nil values are absent cells.
func NewRow(values ...any) *Row {
	r := &Row{Cells: make([]*Cell, len(values))}
	for i, v := range values {
		if v != nil {
			r.Cells[i] = NewCell(v)
		}
	}
	return r
}

// Clone returns a shallow copy; cells are immutable so they are shared.
func (r *Row) Clone() *Row {
	c := *r
	c.Cells = append([]*Cell(nil), r.Cells...)
	return &c
}

// Cell returns the cell at cellIndex, or nil if absent.
func (r *Row) Cell(cellIndex int) *Cell {
	if cellIndex < 0 || cellIndex >= len(r.Cells) {
		return nil
	}
	return r.Cells[cellIndex]
}

// CellValue returns the value at cellIndex, or nil if the cell is absent.
func (r *Row) CellValue(cellIndex int) any {
	if c := r.Cell(cellIndex); c != nil {
		return c.Value
	}
	return nil
}

// IsCellBlank reports whether the cell at cellIndex is absent or blank.
func (r *Row) IsCellBlank(cellIndex int) bool {
	return IsBlank(r.CellValue(cellIndex))
}

// SetCell replaces the cell at cellIndex, growing the row as needed.
//
// Only changes may call this, under the grid mutation lock.
func (r *Row) SetCell(cellIndex int, c *Cell) {
	if cellIndex >= len(r.Cells) {
		if c == nil {
			return
		}
		r.Cells = append(r.Cells, make([]*Cell, cellIndex+1-len(r.Cells))...)
	}
	r.Cells[cellIndex] = c
}

// IsBlank reports whether v is absent or an empty string.
func IsBlank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}
