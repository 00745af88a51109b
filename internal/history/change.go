// Package history records every grid mutation as a reversible change in an
// ordered, cursor-tracked list of entries, persisted as an append-only log.
package history

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/maruel/facetdb/internal/grid"
)

var (
	// ErrNothingToUndo is returned by Undo at cursor 0.
	ErrNothingToUndo = errors.New("nothing to undo")
	// ErrNothingToRedo is returned by Redo when the cursor is at the end.
	ErrNothingToRedo = errors.New("nothing to redo")
	// ErrUnknownChangeType is returned when loading a change kind nobody
	// registered.
	ErrUnknownChangeType = errors.New("unknown change type")
	// ErrCorruptLog is returned when a change block cannot be parsed.
	ErrCorruptLog = errors.New("corrupt change log")
)

// EndMarker terminates every change block.
const EndMarker = "/ec/"

// Change is a reversible grid mutation.
//
// Apply and Revert run under the grid mutation lock. They either fully
// succeed or leave the grid untouched, and they clear the precomputes of
// every column whose cells they touch.
type Change interface {
	Kind() string
	Apply(g *grid.Grid) error
	Revert(g *grid.Grid) error
	// Save writes the fields of the change followed by EndMarker.
	Save(w *Writer) error
}

// Loader reads the fields of a change of one kind, through EndMarker.
type Loader func(r *Reader) (Change, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Loader{}
)

// Register makes a change kind loadable. It panics on duplicates.
func Register(kind string, l Loader) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := registry[kind]; ok {
		panic("history: change kind " + kind + " registered twice")
	}
	registry[kind] = l
}

// WriteChange writes the kind line then the change block.
func WriteChange(w *Writer, c Change) error {
	w.Line(c.Kind())
	if err := c.Save(w); err != nil {
		return err
	}
	return w.Err()
}

// ReadChange reads a kind line then the change block.
func ReadChange(r *Reader) (Change, error) {
	kind, err := r.Line()
	if err != nil {
		return nil, err
	}
	registryMu.RLock()
	l := registry[kind]
	registryMu.RUnlock()
	if l == nil {
		return nil, fmt.Errorf("%w %q at line %d", ErrUnknownChangeType, kind, r.n)
	}
	c, err := l(r)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", kind, err)
	}
	return c, nil
}

// Writer emits the line-oriented change format.
type Writer struct {
	w   *bufio.Writer
	err error
}

// NewWriter returns a Writer. Call Flush when done.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// Line writes one raw line.
func (w *Writer) Line(s string) {
	if w.err != nil {
		return
	}
	if _, err := w.w.WriteString(s); err != nil {
		w.err = err
		return
	}
	w.err = w.w.WriteByte('\n')
}

// Field writes key=value. value must not contain a newline; use String for
// arbitrary text.
func (w *Writer) Field(key, value string) {
	if strings.ContainsAny(value, "\r\n") && w.err == nil {
		w.err = fmt.Errorf("field %s: value contains a newline", key)
		return
	}
	w.Line(key + "=" + value)
}

// String writes key=<JSON string>.
func (w *Writer) String(key, value string) {
	b, _ := json.Marshal(value)
	w.Field(key, string(b))
}

// Int writes key=<decimal>.
func (w *Writer) Int(key string, v int) {
	w.Field(key, strconv.Itoa(v))
}

// Bool writes key=true|false.
func (w *Writer) Bool(key string, v bool) {
	w.Field(key, strconv.FormatBool(v))
}

// JSON writes key=<compact JSON of v>.
func (w *Writer) JSON(key string, v any) {
	if w.err != nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		w.err = fmt.Errorf("field %s: %w", key, err)
		return
	}
	w.Field(key, string(b))
}

// End writes EndMarker.
func (w *Writer) End() {
	w.Line(EndMarker)
}

// Err returns the first error encountered.
func (w *Writer) Err() error {
	return w.err
}

// Flush flushes buffered lines.
func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	return w.w.Flush()
}

// Reader parses the line-oriented change format.
type Reader struct {
	r *bufio.Reader
	n int
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReaderSize(r, 64*1024)}
}

// Line returns the next line without its terminator, or io.EOF.
func (r *Reader) Line() (string, error) {
	s, err := r.r.ReadString('\n')
	if err != nil {
		if err == io.EOF && s != "" {
			err = nil
		} else {
			return "", err
		}
	}
	r.n++
	return strings.TrimSuffix(strings.TrimSuffix(s, "\n"), "\r"), nil
}

// Fields calls fn for every key=value line up to EndMarker. fn may read
// nested change blocks from r.
func (r *Reader) Fields(fn func(key, value string) error) error {
	for {
		line, err := r.Line()
		if err == io.EOF {
			return fmt.Errorf("%w: missing %s", ErrCorruptLog, EndMarker)
		}
		if err != nil {
			return err
		}
		if line == EndMarker {
			return nil
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("%w: line %d: %q", ErrCorruptLog, r.n, line)
		}
		if err := fn(key, value); err != nil {
			return fmt.Errorf("line %d: %w", r.n, err)
		}
	}
}

// ParseInt parses a decimal field.
func ParseInt(value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrCorruptLog, err)
	}
	return n, nil
}

// ParseBool parses a boolean field.
func ParseBool(value string) (bool, error) {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrCorruptLog, err)
	}
	return b, nil
}

// ParseString parses a field written with Writer.String.
func ParseString(value string) (string, error) {
	var s string
	if err := json.Unmarshal([]byte(value), &s); err != nil {
		return "", fmt.Errorf("%w: %w", ErrCorruptLog, err)
	}
	return s, nil
}

// ParseJSON decodes a field written with Writer.JSON.
func ParseJSON(value string, v any) error {
	if err := json.Unmarshal([]byte(value), v); err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptLog, err)
	}
	return nil
}
