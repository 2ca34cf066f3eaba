package breaker

import (
	"sync/atomic"
	"time"

	"QuoteHub/pkg/logger"
)

// Event describes one state change of a breaker.
type Event struct {
	Name     string    `json:"name"`
	From     State     `json:"from"`
	To       State     `json:"to"`
	At       time.Time `json:"at"`
	Failures float64   `json:"failures"`
	Requests int       `json:"requests"`
}

// Observer receives state changes synchronously, outside the breaker lock.
// Implementations must not block.
type Observer interface {
	OnStateChange(ev Event)
}

type ObserverFunc func(ev Event)

func (f ObserverFunc) OnStateChange(ev Event) { f(ev) }

type nopObserver struct{}

func (nopObserver) OnStateChange(Event) {}

// Observers fans an event out to every member in order.
type Observers []Observer

func (os Observers) OnStateChange(ev Event) {
	for _, o := range os {
		if o != nil {
			o.OnStateChange(ev)
		}
	}
}

// ChannelObserver exposes events as a stream. Events are dropped when the
// buffer is full.
type ChannelObserver struct {
	ch      chan Event
	dropped atomic.Int64
}

func NewChannelObserver(buffer int) *ChannelObserver {
	if buffer <= 0 {
		buffer = 64
	}
	return &ChannelObserver{ch: make(chan Event, buffer)}
}

func (c *ChannelObserver) OnStateChange(ev Event) {
	select {
	case c.ch <- ev:
	default:
		c.dropped.Add(1)
	}
}

func (c *ChannelObserver) Events() <-chan Event { return c.ch }

func (c *ChannelObserver) Dropped() int64 { return c.dropped.Load() }

// LogObserver writes each transition to the structured logger.
func LogObserver(log *logger.Logger) Observer {
	return ObserverFunc(func(ev Event) {
		fields := []logger.Field{
			logger.String("breaker", ev.Name),
			logger.String("from", ev.From.String()),
			logger.String("to", ev.To.String()),
			logger.Any("failures", ev.Failures),
			logger.Int("requests", ev.Requests),
		}
		if ev.To == StateOpen {
			log.Warn("circuit opened", fields...)
			return
		}
		log.Info("circuit state changed", fields...)
	})
}
