// Provides the append-only history log file.

package history

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Log line prefixes.
const (
	entryPrefix    = "entry="
	cursorPrefix   = "cursor="
	truncatePrefix = "truncate="
)

// Log appends history events to a file. A nil *Log discards everything.
//
// Each applied entry is written as an entry= line with the entry JSON
// followed by the change kind and block. Undo and redo write cursor= lines;
// discarding undone entries writes a truncate= line.
type Log struct {
	path  string
	fsync bool
}

// OpenLog returns a log appending to path. The file is created on first
// write.
func OpenLog(path string, fsync bool) *Log {
	return &Log{path: path, fsync: fsync}
}

// Path returns the file path.
func (l *Log) Path() string { return l.path }

func (l *Log) appendEntry(e *Entry) error {
	if l == nil {
		return nil
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.Line(entryPrefix + string(data))
	if err := WriteChange(w, e.Change); err != nil {
		return fmt.Errorf("failed to save change: %w", err)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return l.write(buf.Bytes())
}

func (l *Log) writeCursor(n int) error {
	if l == nil {
		return nil
	}
	return l.write([]byte(cursorPrefix + strconv.Itoa(n) + "\n"))
}

func (l *Log) writeTruncate(n int) error {
	if l == nil {
		return nil
	}
	return l.write([]byte(truncatePrefix + strconv.Itoa(n) + "\n"))
}

func (l *Log) write(data []byte) error {
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open history log for append: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("failed to write history log: %w", err)
	}
	if l.fsync {
		if err := f.Sync(); err != nil {
			return fmt.Errorf("failed to sync history log: %w", err)
		}
	}
	return nil
}

// ReadLog parses a history log and returns the entries and the cursor.
func ReadLog(r io.Reader) ([]*Entry, int, error) {
	var entries []*Entry
	cursor := 0
	lr := NewReader(r)
	for {
		line, err := lr.Line()
		if errors.Is(err, io.EOF) {
			return entries, cursor, nil
		}
		if err != nil {
			return nil, 0, err
		}
		switch {
		case line == "":
		case strings.HasPrefix(line, entryPrefix):
			e := &Entry{}
			if err := json.Unmarshal([]byte(line[len(entryPrefix):]), e); err != nil {
				return nil, 0, fmt.Errorf("%w: line %d: %w", ErrCorruptLog, lr.n, err)
			}
			if e.Change, err = ReadChange(lr); err != nil {
				if errors.Is(err, io.EOF) {
					err = fmt.Errorf("%w: truncated entry %s", ErrCorruptLog, e.ID)
				}
				return nil, 0, err
			}
			entries = append(entries[:cursor], e)
			cursor = len(entries)
		case strings.HasPrefix(line, cursorPrefix), strings.HasPrefix(line, truncatePrefix):
			key, value, _ := strings.Cut(line, "=")
			n, err := ParseInt(value)
			if err != nil {
				return nil, 0, err
			}
			if n < 0 || n > len(entries) {
				return nil, 0, fmt.Errorf("%w: line %d: %s %d out of range", ErrCorruptLog, lr.n, key, n)
			}
			if key+"=" == truncatePrefix {
				entries = entries[:n]
			}
			cursor = n
		default:
			return nil, 0, fmt.Errorf("%w: line %d: unexpected %q", ErrCorruptLog, lr.n, line)
		}
	}
}

// LoadLog reads the log at path. A missing file is an empty history.
func LoadLog(path string) ([]*Entry, int, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open history log: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	return ReadLog(f)
}
