// Provides the per-grid process manager.

package process

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/maruel/facetdb/internal/history"
)

// Manager runs the processes of one history. Long-running processes run one
// at a time in FIFO order on their own goroutine. An immediate process runs
// synchronously in Start unless something is queued, in which case it waits
// its turn.
type Manager struct {
	h      *history.History
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	queue    []*Process
	finished []*Process
	running  bool
	idle     chan struct{}
}

// maxFinished bounds how many completed processes are kept for reporting.
const maxFinished = 32

// NewManager returns a manager appending to h.
func NewManager(h *history.History) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{h: h, ctx: ctx, cancel: cancel}
}

// Start runs or queues p. For an immediate process run synchronously, the
// returned error is its outcome.
func (m *Manager) Start(p *Process) error {
	m.mu.Lock()
	if p.Immediate() && len(m.queue) == 0 {
		m.mu.Unlock()
		err := p.run(m.ctx, m.h)
		m.mu.Lock()
		m.remember(p)
		m.mu.Unlock()
		return err
	}
	if slices.Contains(m.queue, p) || p.Status() != Pending {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.queue = append(m.queue, p)
	if m.idle == nil {
		m.idle = make(chan struct{})
	}
	m.startNextLocked()
	m.mu.Unlock()
	return nil
}

// startNextLocked launches the head of the queue if nothing runs.
func (m *Manager) startNextLocked() {
	if m.running {
		return
	}
	for len(m.queue) > 0 {
		p := m.queue[0]
		if p.Status() != Pending {
			m.queue = m.queue[1:]
			m.remember(p)
			continue
		}
		m.running = true
		go func() {
			_ = p.run(m.ctx, m.h)
			m.onDoneProcess(p)
		}()
		return
	}
	if m.idle != nil {
		close(m.idle)
		m.idle = nil
	}
}

// onDoneProcess is called from the process goroutine once p ended.
func (m *Manager) onDoneProcess(p *Process) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i := slices.Index(m.queue, p); i >= 0 {
		m.queue = slices.Delete(m.queue, i, i+1)
	}
	m.remember(p)
	m.running = false
	m.startNextLocked()
}

func (m *Manager) remember(p *Process) {
	m.finished = append(m.finished, p)
	if n := len(m.finished) - maxFinished; n > 0 {
		m.finished = slices.Delete(m.finished, 0, n)
	}
}

// CancelAll cancels every queued and running process.
func (m *Manager) CancelAll() {
	m.mu.Lock()
	queue := slices.Clone(m.queue)
	m.mu.Unlock()
	for _, p := range queue {
		p.Cancel()
	}
	slog.Info("Canceled all processes", "count", len(queue))
	m.mu.Lock()
	m.startNextLocked()
	m.mu.Unlock()
}

// HasPending reports whether any process is queued or running.
func (m *Manager) HasPending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue) > 0
}

// Wait blocks until the queue is empty.
func (m *Manager) Wait(ctx context.Context) error {
	m.mu.Lock()
	idle := m.idle
	m.mu.Unlock()
	if idle == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-idle:
		return nil
	}
}

// Reports returns the state of queued processes followed by recently
// finished ones.
func (m *Manager) Reports() []Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Report, 0, len(m.queue)+len(m.finished))
	for _, p := range m.queue {
		out = append(out, p.Report())
	}
	for _, p := range m.finished {
		out = append(out, p.Report())
	}
	return out
}

// Close cancels everything and waits for the running process to end.
func (m *Manager) Close(ctx context.Context) error {
	m.CancelAll()
	m.cancel()
	return m.Wait(ctx)
}
