package repository

import (
	"context"
	"time"

	"QuoteHub/internal/service/breaker"
	"QuoteHub/pkg/logger"
)

// Publisher is the producing side of pkg/kafka.
type Publisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

// BreakerEvent is the message written for every breaker transition.
type BreakerEvent struct {
	Provider string    `json:"provider"`
	From     string    `json:"from"`
	To       string    `json:"to"`
	At       time.Time `json:"at"`
	Failures float64   `json:"failures"`
	Requests int       `json:"requests"`
}

// KafkaBreakerEvents forwards breaker transitions to a topic, keyed by
// provider so one provider's history stays ordered within a partition.
type KafkaBreakerEvents struct {
	pub     Publisher
	topic   string
	timeout time.Duration
	log     *logger.Logger
}

func NewKafkaBreakerEvents(pub Publisher, topic string, log *logger.Logger) *KafkaBreakerEvents {
	if log == nil {
		log = logger.Nop()
	}
	return &KafkaBreakerEvents{pub: pub, topic: topic, timeout: 5 * time.Second, log: log}
}

// Run publishes events until ctx is done or events is closed. Publish
// failures are logged; the event is not retried.
func (k *KafkaBreakerEvents) Run(ctx context.Context, events <-chan breaker.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			k.publish(ctx, ev)
		}
	}
}

func (k *KafkaBreakerEvents) publish(ctx context.Context, ev breaker.Event) {
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()
	msg := BreakerEvent{
		Provider: ev.Name,
		From:     ev.From.String(),
		To:       ev.To.String(),
		At:       ev.At.UTC(),
		Failures: ev.Failures,
		Requests: ev.Requests,
	}
	if err := k.pub.Publish(ctx, k.topic, []byte(ev.Name), msg); err != nil {
		k.log.Error("breaker event publish failed",
			logger.String("provider", ev.Name),
			logger.String("to", msg.To),
			logger.Error(err),
		)
	}
}
