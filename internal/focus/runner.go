package focus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// DefaultQueueSize is the sample buffer used when NewRunner gets a non-positive size.
const DefaultQueueSize = 256

// ErrRunnerClosed is returned by Exec after the runner has stopped.
var ErrRunnerClosed = errors.New("focus: runner closed")

type command struct {
	fn   func(*Monitor)
	done chan struct{}
}

// Runner owns a Monitor and applies samples and control operations to it from a
// single goroutine.
type Runner struct {
	monitor *Monitor
	samples chan Sample
	cmds    chan command
	quit    chan struct{}
	done    chan struct{}
	once    sync.Once
	logger  *zap.Logger

	onTransition func(Transition)
	onReject     func(Sample, error)

	processed atomic.Int64
	dropped   atomic.Int64
}

// NewRunner wraps m. Hooks must be set before Run is started.
func NewRunner(m *Monitor, queueSize int, logger *zap.Logger) *Runner {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		monitor: m,
		samples: make(chan Sample, queueSize),
		cmds:    make(chan command),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		logger:  logger,
	}
}

// OnTransition sets the hook invoked for every focus change. It runs on the
// runner goroutine and must not block.
func (r *Runner) OnTransition(fn func(Transition)) { r.onTransition = fn }

// OnReject sets the hook invoked when the monitor refuses a sample.
func (r *Runner) OnReject(fn func(Sample, error)) { r.onReject = fn }

// Submit queues s without blocking. It returns false when the queue is full or
// the runner is closed.
func (r *Runner) Submit(s Sample) bool {
	select {
	case <-r.quit:
		return false
	default:
	}
	select {
	case r.samples <- s:
		return true
	default:
		r.dropped.Add(1)
		return false
	}
}

// Exec runs fn on the runner goroutine after every sample already queued, and
// waits for it to finish.
func (r *Runner) Exec(ctx context.Context, fn func(*Monitor)) error {
	select {
	case <-r.quit:
		return ErrRunnerClosed
	default:
	}
	cmd := command{fn: fn, done: make(chan struct{})}
	select {
	case r.cmds <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return ErrRunnerClosed
	}
	select {
	case <-cmd.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes samples and commands until ctx is cancelled or Close is called.
func (r *Runner) Run(ctx context.Context) {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.quit:
			r.drain()
			return
		case s := <-r.samples:
			r.ingest(s)
		case cmd := <-r.cmds:
			r.drain()
			cmd.fn(r.monitor)
			close(cmd.done)
		}
	}
}

// Close stops the runner after it drains queued samples.
func (r *Runner) Close() {
	r.once.Do(func() { close(r.quit) })
}

// Done is closed when Run returns.
func (r *Runner) Done() <-chan struct{} { return r.done }

// Processed returns the number of samples the monitor accepted.
func (r *Runner) Processed() int64 { return r.processed.Load() }

// Dropped returns the number of samples refused because the queue was full.
func (r *Runner) Dropped() int64 { return r.dropped.Load() }

func (r *Runner) drain() {
	for {
		select {
		case s := <-r.samples:
			r.ingest(s)
		default:
			return
		}
	}
}

func (r *Runner) ingest(s Sample) {
	t, err := r.monitor.Ingest(s)
	if err != nil {
		if r.onReject != nil {
			r.onReject(s, err)
		}
		r.logger.Debug("gaze sample rejected", zap.Int64("timestamp", s.Timestamp), zap.Error(err))
		return
	}
	r.processed.Add(1)
	if t.Changed {
		r.logger.Debug("focus changed", zap.Stringer("to", t.To), zap.Int64("at", t.At))
		if r.onTransition != nil {
			r.onTransition(t)
		}
	}
}
