package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-interview/attention/internal/focus"
	"github.com/aura-interview/attention/internal/metrics"
)

type entry struct {
	runner   *focus.Runner
	cancel   context.CancelFunc
	lastSeen time.Time
}

// Registry maps session ids to running focus runners. Each runner gets its own goroutine.
type Registry struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*entry
	idle    time.Duration
	now     func() time.Time
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewRegistry creates a registry. Runners untouched for idle are closed by Sweep; zero keeps them forever.
func NewRegistry(idle time.Duration, logger *zap.Logger, m *metrics.Metrics) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		entries: make(map[uuid.UUID]*entry),
		idle:    idle,
		now:     time.Now,
		logger:  logger,
		metrics: m,
	}
}

// Open starts r for id. An existing runner for id is closed first.
func (reg *Registry) Open(id uuid.UUID, r *focus.Runner) {
	ctx, cancel := context.WithCancel(context.Background())
	reg.mu.Lock()
	old := reg.entries[id]
	reg.entries[id] = &entry{runner: r, cancel: cancel, lastSeen: reg.now()}
	reg.mu.Unlock()

	if old != nil {
		old.runner.Close()
		<-old.runner.Done()
		old.cancel()
	} else {
		reg.metrics.SessionOpened()
	}
	go r.Run(ctx)
	reg.logger.Debug("focus runner opened", zap.String("session_id", id.String()))
}

// GetOrOpen returns the runner for id, or builds and starts one when none is open.
// build runs under the registry lock and must not call back into the registry.
// The second result reports whether a new runner was started.
func (reg *Registry) GetOrOpen(id uuid.UUID, build func() *focus.Runner) (*focus.Runner, bool) {
	reg.mu.Lock()
	if e, ok := reg.entries[id]; ok {
		e.lastSeen = reg.now()
		reg.mu.Unlock()
		return e.runner, false
	}
	r := build()
	ctx, cancel := context.WithCancel(context.Background())
	reg.entries[id] = &entry{runner: r, cancel: cancel, lastSeen: reg.now()}
	reg.mu.Unlock()

	reg.metrics.SessionOpened()
	go r.Run(ctx)
	reg.logger.Debug("focus runner opened", zap.String("session_id", id.String()))
	return r, true
}

// Get returns the runner for id and marks it as used.
func (reg *Registry) Get(id uuid.UUID) (*focus.Runner, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	e, ok := reg.entries[id]
	if !ok {
		return nil, false
	}
	e.lastSeen = reg.now()
	return e.runner, true
}

// Close stops the runner for id after it drains. It reports whether one was running.
func (reg *Registry) Close(id uuid.UUID) bool {
	reg.mu.Lock()
	e, ok := reg.entries[id]
	delete(reg.entries, id)
	reg.mu.Unlock()
	if !ok {
		return false
	}
	e.runner.Close()
	<-e.runner.Done()
	e.cancel()
	reg.metrics.SessionClosed()
	reg.logger.Debug("focus runner closed", zap.String("session_id", id.String()))
	return true
}

// Len returns the number of open runners.
func (reg *Registry) Len() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.entries)
}

// Sweep closes runners idle for longer than the idle timeout and returns their ids.
func (reg *Registry) Sweep() []uuid.UUID {
	if reg.idle <= 0 {
		return nil
	}
	now := reg.now()
	var stale []uuid.UUID
	reg.mu.Lock()
	for id, e := range reg.entries {
		if now.Sub(e.lastSeen) > reg.idle {
			stale = append(stale, id)
		}
	}
	reg.mu.Unlock()
	for _, id := range stale {
		if reg.Close(id) {
			reg.logger.Info("idle focus runner closed", zap.String("session_id", id.String()))
		}
	}
	return stale
}

// RunSweeper calls Sweep periodically until ctx is done.
func (reg *Registry) RunSweeper(ctx context.Context) {
	if reg.idle <= 0 {
		return
	}
	interval := reg.idle / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reg.Sweep()
		}
	}
}

// Shutdown cancels every runner without draining.
func (reg *Registry) Shutdown() {
	reg.mu.Lock()
	entries := reg.entries
	reg.entries = make(map[uuid.UUID]*entry)
	reg.mu.Unlock()
	for _, e := range entries {
		e.cancel()
		reg.metrics.SessionClosed()
	}
}
