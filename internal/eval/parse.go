// Parses the small accessor language used by stored operations.

package eval

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/maruel/facetdb/internal/grid"
)

// ErrSyntax is returned by [Parse] for malformed expressions.
var ErrSyntax = errors.New("expression syntax error")

// Parse compiles src into an Evaluable.
//
// Grammar:
//
//	expr := ["grel:"] term
//	term := string | number | call | path
//	call := ident "(" [expr {"," expr}] ")"
//	path := ident {"." ident}
func Parse(src string) (Evaluable, error) {
	s := strings.TrimSpace(src)
	s = strings.TrimPrefix(s, "grel:")
	p := &parser{src: s}
	e, err := p.term()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, fmt.Errorf("%w: unexpected %q at %d in %q", ErrSyntax, p.src[p.pos:], p.pos, src)
	}
	return e, nil
}

// MustParse is like Parse but panics on error. For tests and constants.
func MustParse(src string) Evaluable {
	e, err := Parse(src)
	if err != nil {
		panic(err)
	}
	return e
}

type parser struct {
	src string
	pos int
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) && unicode.IsSpace(rune(p.src[p.pos])) {
		p.pos++
	}
}

func (p *parser) peek() byte {
	if p.pos < len(p.src) {
		return p.src[p.pos]
	}
	return 0
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s at %d in %q", ErrSyntax, fmt.Sprintf(format, args...), p.pos, p.src)
}

func (p *parser) term() (Evaluable, error) {
	p.skipSpace()
	c := p.peek()
	switch {
	case c == '"' || c == '\'':
		s, err := p.str(c)
		if err != nil {
			return nil, err
		}
		return constant{s}, nil
	case c == '-' || (c >= '0' && c <= '9'):
		return p.number()
	case isIdentStart(c):
		return p.pathOrCall()
	case c == 0:
		return nil, p.errorf("unexpected end")
	}
	return nil, p.errorf("unexpected %q", c)
}

func (p *parser) str(quote byte) (string, error) {
	p.pos++
	var b strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		p.pos++
		switch c {
		case quote:
			return b.String(), nil
		case '\\':
			if p.pos >= len(p.src) {
				return "", p.errorf("dangling escape")
			}
			b.WriteByte(p.src[p.pos])
			p.pos++
		default:
			b.WriteByte(c)
		}
	}
	return "", p.errorf("unterminated string")
}

func (p *parser) number() (Evaluable, error) {
	start := p.pos
	if p.peek() == '-' {
		p.pos++
	}
	for p.pos < len(p.src) && (p.src[p.pos] == '.' || p.src[p.pos] == 'e' || p.src[p.pos] == 'E' || (p.src[p.pos] >= '0' && p.src[p.pos] <= '9')) {
		p.pos++
	}
	f, err := strconv.ParseFloat(p.src[start:p.pos], 64)
	if err != nil {
		return nil, p.errorf("bad number %q", p.src[start:p.pos])
	}
	return constant{f}, nil
}

func (p *parser) ident() string {
	start := p.pos
	for p.pos < len(p.src) && (isIdentStart(p.src[p.pos]) || (p.src[p.pos] >= '0' && p.src[p.pos] <= '9')) {
		p.pos++
	}
	return p.src[start:p.pos]
}

func (p *parser) pathOrCall() (Evaluable, error) {
	name := p.ident()
	p.skipSpace()
	if p.peek() == '(' {
		p.pos++
		var args []Evaluable
		p.skipSpace()
		if p.peek() != ')' {
			for {
				a, err := p.term()
				if err != nil {
					return nil, err
				}
				args = append(args, a)
				p.skipSpace()
				if p.peek() == ',' {
					p.pos++
					continue
				}
				break
			}
		}
		if p.peek() != ')' {
			return nil, p.errorf("expected )")
		}
		p.pos++
		return newCall(name, args, p)
	}
	parts := []string{name}
	for p.peek() == '.' {
		p.pos++
		id := p.ident()
		if id == "" {
			return nil, p.errorf("expected identifier after .")
		}
		parts = append(parts, id)
	}
	return newPath(parts, p)
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

type constant struct{ v any }

func (c constant) Evaluate(Bindings) any { return c.v }

func newPath(parts []string, p *parser) (Evaluable, error) {
	root := parts[0]
	switch root {
	case "value", "rowIndex", "columnName":
		if len(parts) != 1 {
			return nil, p.errorf("%s has no fields", root)
		}
		return EvaluableFunc(func(b Bindings) any { return b[root] }), nil
	case "true", "false":
		return constant{root == "true"}, nil
	case "null":
		return constant{nil}, nil
	case "row":
		if len(parts) != 2 {
			return nil, p.errorf("row needs one field")
		}
		return rowField(parts[1], p)
	case "cell":
		return cellPath(parts[1:], p)
	}
	return nil, p.errorf("unknown variable %q", root)
}

func rowField(field string, p *parser) (Evaluable, error) {
	get := func(b Bindings) *grid.Row {
		r, _ := b["row"].(*grid.Row)
		return r
	}
	switch field {
	case "flagged":
		return EvaluableFunc(func(b Bindings) any {
			if r := get(b); r != nil {
				return r.Flagged
			}
			return nil
		}), nil
	case "starred":
		return EvaluableFunc(func(b Bindings) any {
			if r := get(b); r != nil {
				return r.Starred
			}
			return nil
		}), nil
	case "index":
		return EvaluableFunc(func(b Bindings) any { return b["rowIndex"] }), nil
	case "record":
		return EvaluableFunc(func(b Bindings) any {
			g, _ := b["grid"].(*grid.Grid)
			i, ok := b["rowIndex"].(int)
			if g == nil || !ok {
				return nil
			}
			return int64(g.RecordOfRow(i))
		}), nil
	}
	return nil, p.errorf("unknown row field %q", field)
}

func cellPath(fields []string, p *parser) (Evaluable, error) {
	getCell := func(b Bindings) *grid.Cell {
		c, _ := b["cell"].(*grid.Cell)
		return c
	}
	if len(fields) == 0 {
		return EvaluableFunc(func(b Bindings) any { return getCell(b) }), nil
	}
	switch fields[0] {
	case "value":
		if len(fields) != 1 {
			return nil, p.errorf("cell.value has no fields")
		}
		return EvaluableFunc(func(b Bindings) any {
			if c := getCell(b); c != nil {
				return c.Value
			}
			return nil
		}), nil
	case "recon":
		return reconPath(fields[1:], getCell, p)
	}
	return nil, p.errorf("unknown cell field %q", fields[0])
}

func reconPath(fields []string, getCell func(Bindings) *grid.Cell, p *parser) (Evaluable, error) {
	getRecon := func(b Bindings) *grid.Recon {
		if c := getCell(b); c != nil {
			return c.Recon
		}
		return nil
	}
	if len(fields) == 0 {
		return nil, p.errorf("cell.recon needs a field")
	}
	switch f := fields[0]; f {
	case "judgment", "judgmentAction", "judgmentBatchSize", "service", "matchRank":
		if len(fields) != 1 {
			return nil, p.errorf("cell.recon.%s has no fields", f)
		}
		return EvaluableFunc(func(b Bindings) any {
			r := getRecon(b)
			if r == nil {
				return nil
			}
			switch f {
			case "judgment":
				return string(r.Judgment)
			case "judgmentAction":
				return r.JudgmentAction
			case "judgmentBatchSize":
				return int64(r.JudgmentBatchSize)
			case "service":
				return r.Service
			default:
				return int64(r.MatchRank)
			}
		}), nil
	case "match", "best":
		if len(fields) != 2 {
			return nil, p.errorf("cell.recon.%s needs one field", f)
		}
		field := fields[1]
		switch field {
		case "id", "name", "score":
		default:
			return nil, p.errorf("unknown candidate field %q", field)
		}
		return EvaluableFunc(func(b Bindings) any {
			r := getRecon(b)
			if r == nil {
				return nil
			}
			c := r.Match
			if f == "best" {
				c = r.Best()
			}
			if c == nil {
				return nil
			}
			switch field {
			case "id":
				return c.ID
			case "name":
				return c.Name
			default:
				return c.Score
			}
		}), nil
	}
	return nil, p.errorf("unknown recon field %q", fields[0])
}

// Function is a callable usable in expressions. It sees the caller's bindings
// so it can reach the grid.
type Function func(b Bindings, args []any) any

type function struct {
	arity int
	fn    Function
}

var functions = map[string]function{
	"toNumber":    {1, pure(toNumber)},
	"toString":    {1, pure(func(a []any) any { return ToString(a[0]) })},
	"toLowercase": {1, pure(stringFn(strings.ToLower))},
	"toUppercase": {1, pure(stringFn(strings.ToUpper))},
	"trim":        {1, pure(stringFn(strings.TrimSpace))},
	"length":      {1, pure(length)},
	"split":       {2, pure(split)},
	"isBlank":     {1, pure(func(a []any) any { return a[0] == nil || grid.IsBlank(a[0]) })},
	"isError":     {1, pure(func(a []any) any { return IsError(a[0]) })},
}

// RegisterFunction adds a function to the expression language. It must be
// called from an init function.
func RegisterFunction(name string, arity int, fn Function) {
	if _, ok := functions[name]; ok {
		panic("eval: function " + name + " registered twice")
	}
	functions[name] = function{arity: arity, fn: fn}
}

func pure(f func([]any) any) Function {
	return func(_ Bindings, args []any) any { return f(args) }
}

func newCall(name string, args []Evaluable, p *parser) (Evaluable, error) {
	f, ok := functions[name]
	if !ok {
		return nil, p.errorf("unknown function %q", name)
	}
	if len(args) != f.arity {
		return nil, p.errorf("%s takes %d arguments, got %d", name, f.arity, len(args))
	}
	return EvaluableFunc(func(b Bindings) any {
		vals := make([]any, len(args))
		for i, a := range args {
			vals[i] = a.Evaluate(b)
			if IsError(vals[i]) {
				return vals[i]
			}
		}
		return f.fn(b, vals)
	}), nil
}

func stringFn(f func(string) string) func([]any) any {
	return func(a []any) any {
		if a[0] == nil {
			return nil
		}
		return f(ToString(a[0]))
	}
}

func toNumber(a []any) any {
	v := a[0]
	if n, ok := AsNumber(v); ok {
		return n
	}
	s, ok := v.(string)
	if !ok {
		if v == nil {
			return nil
		}
		return grid.NewEvalError("cannot convert %T to number", v)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) {
		return grid.NewEvalError("cannot parse %q as number", s)
	}
	return f
}

func length(a []any) any {
	if s, ok := AsSlice(a[0]); ok {
		return int64(len(s))
	}
	if s, ok := a[0].(string); ok {
		return int64(len([]rune(s)))
	}
	return grid.NewEvalError("length expects a string or array")
}

func split(a []any) any {
	s, ok := a[0].(string)
	if !ok {
		if a[0] == nil {
			return nil
		}
		return grid.NewEvalError("split expects a string")
	}
	parts := strings.Split(s, ToString(a[1]))
	out := make([]any, len(parts))
	for i, x := range parts {
		out[i] = x
	}
	return out
}
