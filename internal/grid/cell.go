// Defines cells, typed cell values and the error marker value.

package grid

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// EvalError marks a value that could not be computed.
//
// It is a value, not a Go error returned up the stack: expression evaluation
// failures are stored in cells and classified into the "error" bucket by
// filters and bin indices.
type EvalError struct {
	Message string `json:"message"`
}

// NewEvalError returns an error marker with a formatted message.
func NewEvalError(format string, args ...any) *EvalError {
	return &EvalError{Message: fmt.Sprintf(format, args...)}
}

func (e *EvalError) Error() string {
	return e.Message
}

// Cell is an immutable value with an optional reconciliation annotation.
//
// Value is one of: string, float64, int64, bool, time.Time or *EvalError.
type Cell struct {
	Value any
	Recon *Recon
}

// NewCell returns a cell holding v with no recon.
func NewCell(v any) *Cell {
	return &Cell{Value: normalizeValue(v)}
}

// WithRecon returns a copy of the cell carrying r.
func (c *Cell) WithRecon(r *Recon) *Cell {
	return &Cell{Value: c.Value, Recon: r}
}

// CellsEqual reports whether two cells hold the same value and the same recon.
//
// nil cells are equal only to nil cells.
func CellsEqual(a, b *Cell) bool {
	if a == nil || b == nil {
		return a == b
	}
	if !valuesEqual(a.Value, b.Value) {
		return false
	}
	if a.Recon == nil || b.Recon == nil {
		return a.Recon == b.Recon
	}
	return a.Recon.ID == b.Recon.ID && a.Recon.Judgment == b.Recon.Judgment
}

func valuesEqual(a, b any) bool {
	switch va := a.(type) {
	case *EvalError:
		vb, ok := b.(*EvalError)
		return ok && va.Message == vb.Message
	case time.Time:
		vb, ok := b.(time.Time)
		return ok && va.Equal(vb)
	case float64:
		vb, ok := b.(float64)
		return ok && (va == vb || (math.IsNaN(va) && math.IsNaN(vb)))
	}
	return a == b
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case float32:
		return float64(t)
	}
	return v
}

// Value kinds used by the JSON encoding.
const (
	kindString = "string"
	kindNumber = "number"
	kindInt    = "int"
	kindBool   = "bool"
	kindDate   = "date"
	kindError  = "error"
)

var errUnknownValueKind = errors.New("unknown cell value kind")

// cellJSON is the on-disk shape of a cell.
type cellJSON struct {
	V any    `json:"v,omitempty"`
	T string `json:"t,omitempty"`
	R *Recon `json:"r,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (c *Cell) MarshalJSON() ([]byte, error) {
	out := cellJSON{R: c.Recon}
	switch v := c.Value.(type) {
	case nil:
	case string:
		out.V, out.T = v, kindString
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			out.V, out.T = fmt.Sprint(v), kindNumber
		} else {
			out.V, out.T = v, kindNumber
		}
	case int64:
		out.V, out.T = v, kindInt
	case bool:
		out.V, out.T = v, kindBool
	case time.Time:
		out.V, out.T = v.Format(time.RFC3339Nano), kindDate
	case *EvalError:
		out.V, out.T = v.Message, kindError
	default:
		return nil, fmt.Errorf("cannot encode cell value of type %T", v)
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Cell) UnmarshalJSON(data []byte) error {
	var raw struct {
		V json.RawMessage `json:"v"`
		T string          `json:"t"`
		R *Recon          `json:"r"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.Recon = raw.R
	c.Value = nil
	if raw.T == "" {
		return nil
	}
	switch raw.T {
	case kindString:
		var s string
		if err := json.Unmarshal(raw.V, &s); err != nil {
			return err
		}
		c.Value = s
	case kindNumber:
		var f float64
		if err := json.Unmarshal(raw.V, &f); err != nil {
			var s string
			if err2 := json.Unmarshal(raw.V, &s); err2 != nil {
				return err
			}
			switch s {
			case "NaN":
				f = math.NaN()
			case "+Inf":
				f = math.Inf(1)
			case "-Inf":
				f = math.Inf(-1)
			default:
				return fmt.Errorf("invalid number %q", s)
			}
		}
		c.Value = f
	case kindInt:
		var i int64
		if err := json.Unmarshal(raw.V, &i); err != nil {
			return err
		}
		c.Value = i
	case kindBool:
		var b bool
		if err := json.Unmarshal(raw.V, &b); err != nil {
			return err
		}
		c.Value = b
	case kindDate:
		var s string
		if err := json.Unmarshal(raw.V, &s); err != nil {
			return err
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return err
		}
		c.Value = t
	case kindError:
		var s string
		if err := json.Unmarshal(raw.V, &s); err != nil {
			return err
		}
		c.Value = &EvalError{Message: s}
	default:
		return fmt.Errorf("%w: %q", errUnknownValueKind, raw.T)
	}
	return nil
}
