// Package breaker implements a circuit breaker for upstream market data
// sources.
package breaker

import (
	"errors"
	"sync"
	"time"
)

// State is the breaker state machine position.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// RetryAfterError carries an upstream-mandated cooldown, typically from a
// rate-limit ban response. The breaker honors it over its own schedule.
type RetryAfterError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RetryAfterError) Error() string {
	return "upstream requested retry after " + e.RetryAfter.String() + ": " + e.Err.Error()
}

func (e *RetryAfterError) Unwrap() error { return e.Err }

// Status is a point-in-time view of the breaker.
type Status struct {
	State        State
	Failures     int
	OpenedAt     time.Time
	ReopensAfter time.Time
}

// Breaker is a mutex-guarded circuit breaker. Consecutive failures beyond
// the threshold open the circuit; after the cooldown a single probe is
// allowed through, and its outcome closes or reopens the circuit. The
// cooldown grows exponentially with consecutive openings.
type Breaker struct {
	mu sync.Mutex

	state        State
	failures     int
	opens        int
	openedAt     time.Time
	reopensAfter time.Time
	probing      bool

	threshold    int
	baseCooldown time.Duration
	maxCooldown  time.Duration

	now func() time.Time
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithThreshold sets the consecutive-failure threshold.
func WithThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.threshold = n
		}
	}
}

// WithCooldown sets the base and maximum cooldown durations.
func WithCooldown(base, max time.Duration) Option {
	return func(b *Breaker) {
		if base > 0 {
			b.baseCooldown = base
		}
		if max > 0 {
			b.maxCooldown = max
		}
	}
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		b.now = now
	}
}

// New creates a closed Breaker.
func New(opts ...Option) *Breaker {
	b := &Breaker{
		threshold:    5,
		baseCooldown: 30 * time.Second,
		maxCooldown:  10 * time.Minute,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Allow reports whether a request may proceed. In the open state it returns
// true exactly once after the cooldown elapses, moving to half-open for the
// probe.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.now().Before(b.reopensAfter) {
			return false
		}
		b.state = StateHalfOpen
		b.probing = true
		return true
	case StateHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	}
	return false
}

// RecordSuccess closes the circuit and clears the failure count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateClosed
	b.failures = 0
	b.opens = 0
	b.probing = false
	b.openedAt = time.Time{}
	b.reopensAfter = time.Time{}
}

// RecordFailure counts a failure and opens the circuit when the threshold
// is reached. A half-open probe failure reopens immediately. If err carries
// a RetryAfterError, its duration overrides the computed cooldown.
func (b *Breaker) RecordFailure(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.probing = false

	if b.state == StateHalfOpen {
		b.open(err)
		return
	}
	if b.failures >= b.threshold {
		b.open(err)
	}
}

// open transitions to the open state. Callers hold b.mu.
func (b *Breaker) open(err error) {
	b.state = StateOpen
	b.opens++
	b.openedAt = b.now()

	cooldown := b.baseCooldown
	for i := 1; i < b.opens; i++ {
		cooldown *= 2
		if cooldown >= b.maxCooldown {
			cooldown = b.maxCooldown
			break
		}
	}

	var ra *RetryAfterError
	if errors.As(err, &ra) && ra.RetryAfter > 0 {
		cooldown = ra.RetryAfter
	}

	b.reopensAfter = b.openedAt.Add(cooldown)
}

// Reset force-closes the circuit.
func (b *Breaker) Reset() {
	b.RecordSuccess()
}

// Status returns the current breaker state.
func (b *Breaker) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Status{
		State:        b.state,
		Failures:     b.failures,
		OpenedAt:     b.openedAt,
		ReopensAfter: b.reopensAfter,
	}
}
