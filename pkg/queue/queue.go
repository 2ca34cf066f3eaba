package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Enqueuer is the producing side of a queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, msgType string, payload interface{}) error
}

type Config struct {
	Workers    int           // concurrent handlers per process
	RetryLimit int           // attempts after the first before dead-lettering
	RetryDelay time.Duration // delay before a failed message is retried
	Poll       time.Duration // blocking pop timeout
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.RetryLimit < 0 {
		c.RetryLimit = 0
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 10 * time.Second
	}
	if c.Poll <= 0 {
		c.Poll = time.Second
	}
	return c
}

// Message is the queued envelope.
type Message struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	LastError  string          `json:"last_error,omitempty"`
}

// NewMessage encodes payload into a fresh envelope.
func NewMessage(msgType string, payload interface{}, now time.Time) (Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("marshal payload: %w", err)
	}
	return Message{ID: uuid.NewString(), Type: msgType, Payload: raw, EnqueuedAt: now.UTC()}, nil
}

// Decode unmarshals a job payload.
func Decode[T any](payload json.RawMessage) (T, error) {
	var out T
	if len(payload) == 0 {
		return out, fmt.Errorf("empty payload")
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return out, fmt.Errorf("decode payload: %w", err)
	}
	return out, nil
}

// nextStep decides what happens to a message whose handler failed.
func nextStep(msg Message, cfg Config, err error, now time.Time) (Message, time.Time, bool) {
	msg.LastError = err.Error()
	if msg.Attempts >= cfg.RetryLimit {
		return msg, time.Time{}, false
	}
	msg.Attempts++
	return msg, now.Add(cfg.RetryDelay), true
}
