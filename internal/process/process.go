// Package process runs mutations that produce a history entry, either
// synchronously or as cancellable background tasks.
//
// Background tasks never touch the grid's history themselves: they return a
// change, and the process hands it to the history once the task succeeded
// and was not canceled.
package process

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/maruel/facetdb/internal/grid"
	"github.com/maruel/facetdb/internal/history"
	"github.com/maruel/ksid"
)

var (
	// ErrCanceled is returned by Wait for a canceled process.
	ErrCanceled = errors.New("process canceled")
	// ErrAlreadyStarted is returned when starting a process twice.
	ErrAlreadyStarted = errors.New("process already started")
)

// Status is the lifecycle state of a process. Done, Canceled and Failed are
// terminal.
type Status string

// Statuses.
const (
	Pending  Status = "pending"
	Running  Status = "running"
	Done     Status = "done"
	Canceled Status = "canceled"
	Failed   Status = "failed"
)

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	return s == Done || s == Canceled || s == Failed
}

// Task computes the change of a long-running process. It sends progress in
// [0, 100] on progress and returns early with ctx.Err() once ctx is done.
type Task func(ctx context.Context, progress chan<- int) (history.Change, error)

// BuildFunc builds the change of an immediate process under the grid
// mutation lock.
type BuildFunc func(g *grid.Grid, e *history.Entry) (history.Change, error)

// Action is a follow-up suggestion reported once a process completes.
type Action struct {
	Action      string          `json:"action"`
	FacetType   string          `json:"facetType,omitempty"`
	FacetConfig json.RawMessage `json:"facetConfig,omitempty"`
}

// Process is one unit of work bound to one history.
type Process struct {
	id          ksid.ID
	entryID     ksid.ID
	description string
	operation   json.RawMessage
	immediate   bool
	build       BuildFunc
	task        Task
	onDone      []Action

	mu       sync.Mutex
	status   Status
	progress int
	err      error
	entry    *history.Entry
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewQuick returns an immediate process whose change is built and applied in
// one step.
func NewQuick(description string, operation json.RawMessage, build BuildFunc) *Process {
	return &Process{
		id:          ksid.NewID(),
		description: description,
		operation:   operation,
		immediate:   true,
		build:       build,
		status:      Pending,
		done:        make(chan struct{}),
	}
}

// NewLongRunning returns a background process. entryID is the ID the history
// entry will get, so the task can stamp it into the cells it produces.
func NewLongRunning(description string, operation json.RawMessage, entryID ksid.ID, task Task, onDone []Action) *Process {
	return &Process{
		id:          ksid.NewID(),
		entryID:     entryID,
		description: description,
		operation:   operation,
		task:        task,
		onDone:      onDone,
		status:      Pending,
		done:        make(chan struct{}),
	}
}

// ID returns the process ID.
func (p *Process) ID() ksid.ID { return p.id }

// Description returns the human readable description.
func (p *Process) Description() string { return p.description }

// Immediate reports whether the process runs synchronously when possible.
func (p *Process) Immediate() bool { return p.immediate }

// Status returns the current state.
func (p *Process) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Progress returns the last reported progress.
func (p *Process) Progress() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.progress
}

// Err returns the failure, if any.
func (p *Process) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Entry returns the history entry once the process is done.
func (p *Process) Entry() *history.Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.entry
}

// Done is closed once the process reaches a terminal state.
func (p *Process) Done() <-chan struct{} { return p.done }

// Wait blocks until the process ends and returns its outcome.
func (p *Process) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.status {
	case Canceled:
		return ErrCanceled
	case Failed:
		return p.err
	}
	return nil
}

// Cancel requests cancellation. A pending process ends immediately; a
// running one stops at its next safe point.
func (p *Process) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.status {
	case Pending:
		p.status = Canceled
		close(p.done)
		slog.Info("Process canceled", "id", p.id, "description", p.description)
	case Running:
		if p.cancel != nil {
			p.cancel()
		}
	case Done, Canceled, Failed:
	}
}

// run executes the process to a terminal state.
func (p *Process) run(ctx context.Context, h *history.History) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	p.mu.Lock()
	if p.status != Pending {
		p.mu.Unlock()
		return ErrAlreadyStarted
	}
	p.status = Running
	p.cancel = cancel
	p.mu.Unlock()
	defer close(p.done)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Process panic", "id", p.id, "err", r, "stack", string(debug.Stack()))
			p.end(Failed, fmt.Errorf("panic: %v", r), nil)
		}
	}()
	slog.Info("Process started", "id", p.id, "description", p.description, "immediate", p.immediate)
	if p.immediate {
		e, err := h.AddEntryWith(p.description, p.operation, p.build)
		if err != nil {
			return p.end(Failed, err, nil)
		}
		return p.end(Done, nil, e)
	}

	updates := make(chan int)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for v := range updates {
			p.setProgress(v)
		}
	}()
	c, err := func() (history.Change, error) {
		defer func() {
			close(updates)
			<-drained
		}()
		return p.task(ctx, updates)
	}()

	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case ctx.Err() != nil:
		return p.endLocked(Canceled, ErrCanceled, nil)
	case err != nil:
		return p.endLocked(Failed, err, nil)
	}
	// Holding p.mu while appending keeps Cancel from racing the append.
	e := &history.Entry{ID: p.entryID, Description: p.description, Operation: p.operation, Change: c}
	if err := h.AddEntry(e); err != nil {
		return p.endLocked(Failed, err, nil)
	}
	return p.endLocked(Done, nil, e)
}

func (p *Process) setProgress(v int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.progress = max(0, min(v, 100))
}

func (p *Process) end(s Status, err error, e *history.Entry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.endLocked(s, err, e)
}

func (p *Process) endLocked(s Status, err error, e *history.Entry) error {
	if p.status.Terminal() {
		return p.err
	}
	p.status = s
	p.entry = e
	switch s {
	case Failed:
		p.err = err
		slog.Error("Process failed", "id", p.id, "description", p.description, "err", err)
	case Canceled:
		slog.Info("Process canceled", "id", p.id, "description", p.description)
		return ErrCanceled
	case Done:
		p.progress = 100
		slog.Info("Process done", "id", p.id, "description", p.description)
	case Pending, Running:
	}
	return p.err
}

// Report is the externally visible state of a process.
type Report struct {
	ID          ksid.ID  `json:"id"`
	Description string   `json:"description"`
	Immediate   bool     `json:"immediate"`
	Status      Status   `json:"status"`
	Progress    int      `json:"progress"`
	Error       string   `json:"error,omitempty"`
	OnDone      []Action `json:"onDone,omitempty"`
}

// Report returns a snapshot of the process state.
func (p *Process) Report() Report {
	p.mu.Lock()
	defer p.mu.Unlock()
	r := Report{ID: p.id, Description: p.description, Immediate: p.immediate, Status: p.status, Progress: p.progress, OnDone: p.onDone}
	if p.err != nil {
		r.Error = p.err.Error()
	}
	return r
}
