// Package breaker implements the per-connector circuit breaker: a simple
// consecutive-failure/success state machine guarding calls with an
// in-flight concurrency cap and a per-call timeout.
package breaker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	cherrors "github.com/connectorhost/connectorhost/pkg/errors"
)

// State is one of CLOSED, OPEN, HALF_OPEN.
type State int32

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "CLOSED"
	case Open:
		return "OPEN"
	case HalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Config configures a Breaker. Zero values are replaced with the
// spec-mandated defaults by New.
type Config struct {
	FailureThreshold int
	SuccessThreshold int
	HalfOpenAfter    time.Duration
	MaxConcurrent    int
	Timeout          time.Duration
}

// DefaultConfig returns the host-wide default thresholds.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		HalfOpenAfter:    10 * time.Second,
		MaxConcurrent:    20,
		Timeout:          30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = d.SuccessThreshold
	}
	if c.HalfOpenAfter <= 0 {
		c.HalfOpenAfter = d.HalfOpenAfter
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = d.MaxConcurrent
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	return c
}

// Breaker protects a single connector instance's calls. All counters are
// private to the instance; there is no cross-breaker state.
type Breaker struct {
	config Config
	logger *zap.Logger

	mu          sync.Mutex
	state       State
	failures    int
	successes   int
	openedAt    time.Time
	probing     bool

	inflight int32
}

// New creates a Breaker, starting CLOSED.
func New(config Config, logger *zap.Logger) *Breaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Breaker{
		config: config.withDefaults(),
		logger: logger.With(zap.String("component", "breaker")),
		state:  Closed,
	}
}

// State returns the breaker's current state without mutating it. Note
// that Execute may observe and act on an OPEN->HALF_OPEN transition
// opportunity (half-open probe eligibility) that this snapshot does not
// perform.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Execute runs fn under breaker protection: fast-failing if OPEN or over
// the concurrency cap, and racing fn against the configured timeout.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.acquire(); err != nil {
		return err
	}
	defer b.release()

	callCtx, cancel := context.WithTimeout(ctx, b.config.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(callCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			b.recordFailure()
			return err
		}
		b.recordSuccess()
		return nil
	case <-callCtx.Done():
		b.recordFailure()
		return cherrors.New(cherrors.ErrorTypeBreakerTimeout, "call exceeded breaker timeout")
	}
}

// acquire checks OPEN/HALF_OPEN eligibility and the concurrency cap,
// incrementing inflight on success.
func (b *Breaker) acquire() error {
	isProbe := false

	b.mu.Lock()
	switch b.state {
	case Open:
		if time.Since(b.openedAt) >= b.config.HalfOpenAfter {
			b.state = HalfOpen
			b.failures = 0
			b.successes = 0
			b.probing = true
			isProbe = true
			b.logger.Info("breaker half-open, probing")
		} else {
			b.mu.Unlock()
			return cherrors.New(cherrors.ErrorTypeCircuitOpen, "circuit breaker is open")
		}
	case HalfOpen:
		if b.probing {
			b.mu.Unlock()
			return cherrors.New(cherrors.ErrorTypeCircuitOpen, "circuit breaker is half-open, probe in flight")
		}
		b.probing = true
		isProbe = true
	}
	b.mu.Unlock()

	if atomic.AddInt32(&b.inflight, 1) > int32(b.config.MaxConcurrent) {
		atomic.AddInt32(&b.inflight, -1)
		if isProbe {
			b.mu.Lock()
			b.probing = false
			b.mu.Unlock()
		}
		return cherrors.New(cherrors.ErrorTypeTooManyRequests, "breaker concurrency cap reached")
	}
	return nil
}

func (b *Breaker) release() {
	atomic.AddInt32(&b.inflight, -1)
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		b.failures = 0
	case HalfOpen:
		b.successes++
		b.probing = false
		if b.successes >= b.config.SuccessThreshold {
			b.state = Closed
			b.failures = 0
			b.successes = 0
			b.logger.Info("breaker closed")
		}
	}
}

func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		b.failures++
		if b.failures >= b.config.FailureThreshold {
			b.state = Open
			b.openedAt = time.Now()
			b.successes = 0
			b.logger.Warn("breaker opened", zap.Int("failures", b.failures))
		}
	case HalfOpen:
		b.state = Open
		b.openedAt = time.Now()
		b.failures = 0
		b.successes = 0
		b.probing = false
		b.logger.Warn("breaker re-opened after failed probe")
	}
}

// Inflight returns the current in-flight call count, for metrics.
func (b *Breaker) Inflight() int32 {
	return atomic.LoadInt32(&b.inflight)
}
