package reports

import (
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// BreakerSettings configures the storage circuit breaker.
type BreakerSettings struct {
	// MaxRequests allowed through while half-open.
	MaxRequests uint32
	// Timeout is how long the breaker stays open.
	Timeout time.Duration
	// MinFailures is the number of consecutive failures that opens the breaker.
	MinFailures uint32
}

// Breaker guards report uploads. A nil *Breaker runs calls unguarded.
type Breaker struct {
	cb *gobreaker.CircuitBreaker[string]
}

// NewBreaker creates an upload breaker.
func NewBreaker(s BreakerSettings, logger *zap.Logger) *Breaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if s.MinFailures == 0 {
		s.MinFailures = 5
	}
	settings := gobreaker.Settings{
		Name:        "report-upload",
		MaxRequests: s.MaxRequests,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.MinFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker[string](settings)}
}

// Execute runs fn through the breaker. It fails fast with gobreaker.ErrOpenState while open.
func (b *Breaker) Execute(fn func() (string, error)) (string, error) {
	if b == nil || b.cb == nil {
		return fn()
	}
	return b.cb.Execute(fn)
}

// State returns the breaker state name.
func (b *Breaker) State() string {
	if b == nil || b.cb == nil {
		return "disabled"
	}
	return b.cb.State().String()
}
