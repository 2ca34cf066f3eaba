// Package breaker isolates upstream providers behind per-provider circuit breakers.
package breaker

import (
	"context"
	"sync"
	"time"

	"QuoteHub/internal/domain/failure"
)

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
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

type Config struct {
	// FailureThreshold is the weighted failure score that opens the circuit.
	FailureThreshold float64
	// VolumeThreshold is the minimum number of requests in the window before
	// the circuit may open.
	VolumeThreshold int
	// ResetTimeout is how long the circuit stays open before a trial call is allowed.
	ResetTimeout time.Duration
	// Window bounds how long failures and requests accumulate while closed.
	Window time.Duration
	// RateLimitWeight is the score of a RateLimited failure (others score 1).
	RateLimitWeight float64
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		VolumeThreshold:  10,
		ResetTimeout:     30 * time.Second,
		Window:           60 * time.Second,
		RateLimitWeight:  0.5,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.VolumeThreshold <= 0 {
		c.VolumeThreshold = d.VolumeThreshold
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = d.ResetTimeout
	}
	if c.Window <= 0 {
		c.Window = d.Window
	}
	if c.RateLimitWeight <= 0 {
		c.RateLimitWeight = d.RateLimitWeight
	}
	return c
}

// Status is a point-in-time view of a breaker.
type Status struct {
	Name     string    `json:"name"`
	State    State     `json:"state"`
	Failures float64   `json:"failures"`
	Requests int       `json:"requests"`
	OpenedAt time.Time `json:"opened_at,omitempty"`
}

// Breaker wraps fallible operations for one upstream. It never retries.
type Breaker struct {
	name     string
	cfg      Config
	now      func() time.Time
	observer Observer

	mu          sync.Mutex
	state       State
	failures    float64
	requests    int
	windowStart time.Time
	openedAt    time.Time
	probing     bool
	generation  uint64
}

type Option func(*Breaker)

func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

func WithObserver(o Observer) Option {
	return func(b *Breaker) { b.observer = o }
}

func New(name string, cfg Config, opts ...Option) *Breaker {
	b := &Breaker{
		name:     name,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(b)
	}
	b.windowStart = b.now()
	return b
}

func (b *Breaker) Name() string { return b.name }

// Execute runs op unless the circuit is open. While open, or while a
// half-open trial call is in flight, it returns *failure.CircuitOpenError
// without calling op.
func (b *Breaker) Execute(ctx context.Context, op func(context.Context) error) error {
	gen, err := b.allow()
	if err != nil {
		return err
	}
	err = op(ctx)
	b.record(gen, err)
	return err
}

// Call is Execute for operations that produce a value.
func Call[T any](ctx context.Context, b *Breaker, op func(context.Context) (T, error)) (T, error) {
	var out T
	err := b.Execute(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Status{
		Name:     b.name,
		State:    b.state,
		Failures: b.failures,
		Requests: b.requests,
		OpenedAt: b.openedAt,
	}
}

func (b *Breaker) allow() (uint64, error) {
	b.mu.Lock()
	now := b.now()
	var events []Event

	if b.state == StateOpen {
		elapsed := now.Sub(b.openedAt)
		if elapsed < b.cfg.ResetTimeout {
			b.mu.Unlock()
			return 0, &failure.CircuitOpenError{Name: b.name, RetryAfter: b.cfg.ResetTimeout - elapsed}
		}
		events = append(events, b.transition(StateHalfOpen, now))
	}

	switch b.state {
	case StateHalfOpen:
		if b.probing {
			b.mu.Unlock()
			b.emit(events)
			return 0, &failure.CircuitOpenError{Name: b.name}
		}
		b.probing = true
	case StateClosed:
		if now.Sub(b.windowStart) >= b.cfg.Window {
			b.windowStart = now
			b.failures = 0
			b.requests = 0
		}
		b.requests++
	}
	gen := b.generation
	b.mu.Unlock()
	b.emit(events)
	return gen, nil
}

func (b *Breaker) record(gen uint64, err error) {
	weight := failure.WeightOf(err, b.cfg.RateLimitWeight)

	b.mu.Lock()
	// The outcome belongs to a state that no longer exists.
	if gen != b.generation {
		b.mu.Unlock()
		return
	}
	now := b.now()
	var events []Event

	switch {
	case err == nil:
		b.failures = 0
		if b.state == StateHalfOpen {
			events = append(events, b.transition(StateClosed, now))
		}
	case weight == 0:
		// Neutral outcome: a half-open trial call is released without deciding.
		if b.state == StateHalfOpen {
			b.probing = false
		}
	case b.state == StateHalfOpen:
		events = append(events, b.transition(StateOpen, now))
	default:
		b.failures += weight
		if b.requests >= b.cfg.VolumeThreshold && b.failures >= b.cfg.FailureThreshold {
			events = append(events, b.transition(StateOpen, now))
		}
	}
	b.mu.Unlock()
	b.emit(events)
}

// transition must be called with mu held.
func (b *Breaker) transition(to State, now time.Time) Event {
	ev := Event{
		Name:     b.name,
		From:     b.state,
		To:       to,
		At:       now,
		Failures: b.failures,
		Requests: b.requests,
	}
	b.state = to
	b.generation++
	b.probing = false
	switch to {
	case StateOpen:
		b.openedAt = now
	case StateClosed:
		b.failures = 0
		b.requests = 0
		b.windowStart = now
		b.openedAt = time.Time{}
	}
	return ev
}

func (b *Breaker) emit(events []Event) {
	for _, ev := range events {
		b.observer.OnStateChange(ev)
	}
}
