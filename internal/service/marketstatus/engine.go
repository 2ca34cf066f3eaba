// Package marketstatus resolves the current trading session from the
// exchange calendar, corrected by upstream early-close signals.
package marketstatus

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"QuoteHub/internal/domain/models"
	"QuoteHub/internal/service/breaker"
	"QuoteHub/internal/service/calendar"
	"QuoteHub/pkg/logger"
)

const (
	DefaultSessionTTL    = 30 * time.Second
	MaxSessionTTL        = 60 * time.Second
	DefaultSignalTimeout = 2 * time.Second
	// 13:00 exchange-local; no US early close happens before it.
	DefaultEarlyCloseAfter = 13 * 60
)

// SignalSource reports what an upstream believes the market state is.
type SignalSource interface {
	ID() string
	GetMarketStatusSignal(ctx context.Context) (models.MarketStatusSignal, error)
}

type Engine struct {
	cal             *calendar.Calendar
	source          SignalSource
	breaker         *breaker.Breaker
	log             *logger.Logger
	now             func() time.Time
	ttl             time.Duration
	signalTimeout   time.Duration
	earlyCloseAfter int

	group    singleflight.Group
	mu       sync.Mutex
	cached   models.MarketSession
	expireAt time.Time
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithSignalSource enables early-close detection. Calls to src go through b,
// normally the same breaker that guards src's quote calls.
func WithSignalSource(src SignalSource, b *breaker.Breaker) Option {
	return func(e *Engine) {
		e.source = src
		e.breaker = b
	}
}

// WithSessionTTL sets how long a resolved session is reused. Values above
// MaxSessionTTL are clamped.
func WithSessionTTL(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.ttl = d
		}
	}
}

func WithSignalTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.signalTimeout = d
		}
	}
}

func New(cal *calendar.Calendar, opts ...Option) *Engine {
	e := &Engine{
		cal:             cal,
		log:             logger.Nop(),
		now:             time.Now,
		ttl:             DefaultSessionTTL,
		signalTimeout:   DefaultSignalTimeout,
		earlyCloseAfter: DefaultEarlyCloseAfter,
	}
	for _, o := range opts {
		o(e)
	}
	if e.ttl > MaxSessionTTL {
		e.ttl = MaxSessionTTL
	}
	if e.source != nil && e.breaker == nil {
		e.breaker = breaker.New(e.source.ID(), breaker.DefaultConfig(), breaker.WithClock(e.now))
	}
	return e
}

// Current returns the session now. It never fails: when upstream is
// unreachable the calendar answer is used.
func (e *Engine) Current(ctx context.Context) models.MarketSession {
	now := e.now()
	e.mu.Lock()
	if !e.expireAt.IsZero() && now.Before(e.expireAt) {
		ms := e.cached
		e.mu.Unlock()
		return ms
	}
	e.mu.Unlock()

	// The shared lookup outlives the caller that started it; the signal
	// timeout still bounds it.
	base := context.WithoutCancel(ctx)
	ch := e.group.DoChan("current", func() (interface{}, error) {
		ms := e.resolve(base, now)
		expire := now.Add(e.ttl)
		if !ms.NextTransition.IsZero() && ms.NextTransition.Before(expire) {
			expire = ms.NextTransition
		}
		e.mu.Lock()
		e.cached = ms
		e.expireAt = expire
		e.mu.Unlock()
		return ms, nil
	})
	select {
	case r := <-ch:
		return r.Val.(models.MarketSession)
	case <-ctx.Done():
		return e.cal.Session(now)
	}
}

// At returns the calendar session at ts without consulting upstream.
func (e *Engine) At(ts time.Time) models.MarketSession {
	return e.cal.Session(ts)
}

// Reset drops the cached session.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.expireAt = time.Time{}
	e.mu.Unlock()
}

func (e *Engine) resolve(ctx context.Context, now time.Time) models.MarketSession {
	ms := e.cal.Session(now)
	if e.source == nil || ms.Session != models.SessionRegular {
		return ms
	}
	if e.cal.MinuteOfDay(now) < e.earlyCloseAfter {
		return ms
	}

	sctx, cancel := context.WithTimeout(ctx, e.signalTimeout)
	defer cancel()
	sig, err := breaker.Call(sctx, e.breaker, e.source.GetMarketStatusSignal)
	if err != nil {
		e.log.Debug("market status signal unavailable, using calendar",
			logger.String("source", e.source.ID()),
			logger.Error(err),
		)
		return ms
	}
	return applySignal(ms, sig, e.cal.PostMarketClose(now))
}

// applySignal trusts upstream only for a closed market during calendar
// regular hours; any other disagreement keeps the calendar answer.
func applySignal(ms models.MarketSession, sig models.MarketStatusSignal, postClose time.Time) models.MarketSession {
	if ms.Session != models.SessionRegular || sig.IsOpen {
		return ms
	}
	ms.Session = models.SessionPostMarket
	ms.Source = models.SessionSourceUpstream
	ms.NextTransition = postClose
	return ms
}
