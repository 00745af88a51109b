// Package operations implements the recorded transformations applied to a
// grid. Each operation serializes to a JSON object carrying "op",
// "description" and "engineConfig" plus its own fields, and turns into a
// process that produces exactly one history entry.
package operations

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/maruel/facetdb/internal/browsing"
	"github.com/maruel/facetdb/internal/eval"
	"github.com/maruel/facetdb/internal/facets"
	"github.com/maruel/facetdb/internal/grid"
	"github.com/maruel/facetdb/internal/history"
	"github.com/maruel/facetdb/internal/process"
	"github.com/maruel/facetdb/internal/recon"
	"github.com/maruel/ksid"
)

// ErrUnknownOp is returned by Reconstruct for an unregistered "op".
var ErrUnknownOp = errors.New("unknown operation")

// Operation is a serializable transformation.
type Operation interface {
	// Kind is the registered "op" name.
	Kind() string
	base() *Base
	brief() string
}

// quickOperation builds its change synchronously under the mutation lock.
type quickOperation interface {
	Operation
	build(g *grid.Grid, e *history.Entry, env *Env) (history.Change, error)
}

// longRunningOperation produces its change from a background task.
type longRunningOperation interface {
	Operation
	task(g *grid.Grid, entryID ksid.ID, env *Env) (process.Task, []process.Action, error)
}

// Base holds the fields shared by every operation.
type Base struct {
	Op           string              `json:"op"`
	Description  string              `json:"description,omitempty"`
	EngineConfig facets.EngineConfig `json:"engineConfig"`
}

func (b *Base) base() *Base { return b }

// Env carries the tunables operations run with.
type Env struct {
	Facets facets.Options
	Recon  recon.RunOptions
	// ReconRate caps recon batches per second. Zero is unlimited.
	ReconRate float64
	// ReconBatchSize applies to recon configs that do not set their own.
	ReconBatchSize int
}

// DefaultEnv returns the defaults used when no configuration is loaded.
func DefaultEnv() *Env {
	return &Env{
		Recon:          recon.RunOptions{Concurrency: 1, BatchDelay: 50 * time.Millisecond},
		ReconBatchSize: 10,
	}
}

var (
	registryMu sync.RWMutex
	registry   = map[string]func() Operation{}
)

// Register makes an operation kind known to Reconstruct.
func Register(kind string, factory func() Operation) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := registry[kind]; ok {
		panic("operations: " + kind + " registered twice")
	}
	registry[kind] = factory
}

// Kinds returns the registered operation names, sorted.
func Kinds() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func factory(kind string) func() Operation {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry[kind]
}

// Reconstruct decodes an operation from its JSON form.
func Reconstruct(raw json.RawMessage) (Operation, error) {
	var head struct {
		Op string `json:"op"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("operation: %w", err)
	}
	f := factory(head.Op)
	if f == nil {
		return nil, fmt.Errorf("%w %q", ErrUnknownOp, head.Op)
	}
	op := f()
	if err := json.Unmarshal(raw, op); err != nil {
		return nil, fmt.Errorf("operation %s: %w", head.Op, err)
	}
	return op, nil
}

// Marshal fills the "op" and default "description" fields and encodes op.
func Marshal(op Operation) (json.RawMessage, error) {
	b := op.base()
	b.Op = op.Kind()
	if b.Description == "" {
		b.Description = op.brief()
	}
	raw, err := json.Marshal(op)
	if err != nil {
		return nil, fmt.Errorf("failed to encode operation %s: %w", b.Op, err)
	}
	return raw, nil
}

// CreateProcess returns the process that applies op to g.
func CreateProcess(op Operation, g *grid.Grid, env *Env) (*process.Process, error) {
	if env == nil {
		env = DefaultEnv()
	}
	raw, err := Marshal(op)
	if err != nil {
		return nil, err
	}
	desc := op.base().Description
	switch o := op.(type) {
	case longRunningOperation:
		id := ksid.NewID()
		task, actions, err := o.task(g, id, env)
		if err != nil {
			return nil, err
		}
		return process.NewLongRunning(desc, raw, id, task, actions), nil
	case quickOperation:
		return process.NewQuick(desc, raw, func(g *grid.Grid, e *history.Entry) (history.Change, error) {
			return o.build(g, e, env)
		}), nil
	}
	return nil, fmt.Errorf("operation %s cannot be run", op.Kind())
}

// filteredRows returns the indices of the rows selected by the operation's
// engine. The caller must hold the grid lock.
func (b *Base) filteredRows(g *grid.Grid, env *Env) ([]int, error) {
	e, err := facets.NewEngine(g, b.EngineConfig, env.Facets)
	if err != nil {
		return nil, err
	}
	return browsing.RowIndices(g, e.AllFilteredRows()), nil
}

// compileExpression binds expression to columnName.
func compileExpression(g *grid.Grid, columnName, expression string) (eval.RowEvaluable, error) {
	ev, err := eval.Parse(expression)
	if err != nil {
		return nil, err
	}
	return eval.NewRowEvaluable(g, columnName, ev)
}

// OnError values decide what an expression error turns into.
const (
	OnErrorKeepOriginal = "keep-original"
	OnErrorSetToBlank   = "set-to-blank"
	OnErrorStoreError   = "store-error"
)

// resultValue turns an expression result into a cell value. ok is false when
// the cell must be left as is.
func resultValue(v any, onError string) (any, bool) {
	if eval.IsError(v) {
		switch onError {
		case OnErrorSetToBlank:
			return nil, true
		case OnErrorStoreError:
			return v, true
		default:
			return nil, false
		}
	}
	switch v.(type) {
	case nil, string, float64, float32, int64, int, int32, bool, time.Time:
		return v, true
	}
	return eval.ToString(v), true
}

func validOnError(s string) error {
	switch s {
	case "", OnErrorKeepOriginal, OnErrorSetToBlank, OnErrorStoreError:
		return nil
	}
	return fmt.Errorf("unknown onError %q", s)
}
