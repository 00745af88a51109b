// Defines the row/record granularity of a pass.

package browsing

// Mode selects whether facets filter rows or records.
type Mode string

// Modes.
const (
	RowBased    Mode = "row-based"
	RecordBased Mode = "record-based"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == RowBased || m == RecordBased
}
