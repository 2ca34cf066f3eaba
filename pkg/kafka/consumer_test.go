package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyHandler struct {
	failures int
	calls    int
	panic    bool
}

func (h *flakyHandler) Topic() string { return "trade-corrections" }

func (h *flakyHandler) Handle(context.Context, []byte) error {
	h.calls++
	if h.panic {
		panic("boom")
	}
	if h.calls <= h.failures {
		return errors.New("transient")
	}
	return nil
}

func newTestConsumer(t *testing.T, retries int) *Consumer {
	t.Helper()
	c, err := NewConsumer(
		WithConsumerBrokers([]string{"localhost:9092"}),
		WithConsumerRetry(retries, time.Millisecond, time.Millisecond),
	)
	require.NoError(t, err)
	return c
}

func TestHandleRetries(t *testing.T) {
	c := newTestConsumer(t, 2)

	h := &flakyHandler{failures: 2}
	attempts, err := c.handle(h, []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)

	h = &flakyHandler{failures: 5}
	attempts, err = c.handle(h, []byte(`{}`))
	assert.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestHandleRecoversPanics(t *testing.T) {
	c := newTestConsumer(t, 0)
	_, err := c.handle(&flakyHandler{panic: true}, nil)
	assert.ErrorContains(t, err, "handler panic")
}

func TestNewConsumerRequiresBrokers(t *testing.T) {
	_, err := NewConsumer()
	assert.Error(t, err)

	c := newTestConsumer(t, 0)
	assert.Error(t, c.Start(), "no handlers")
}

func TestPartitionLockIsStable(t *testing.T) {
	c := newTestConsumer(t, 0)
	assert.Same(t, c.partitionLock("a", 1), c.partitionLock("a", 1))
	assert.NotSame(t, c.partitionLock("a", 1), c.partitionLock("a", 2))
}

func TestBackoffWithJitter(t *testing.T) {
	for attempt := 1; attempt <= 40; attempt++ {
		d := backoffWithJitter(10*time.Millisecond, 80*time.Millisecond, attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 80*time.Millisecond)
	}
	d := backoffWithJitter(10*time.Millisecond, 80*time.Millisecond, 1)
	assert.GreaterOrEqual(t, d, 5*time.Millisecond)
}

func TestEncode(t *testing.T) {
	b, err := encode(map[string]string{"symbol": "AAPL"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"symbol":"AAPL"}`, string(b))

	b, err = encode("raw")
	require.NoError(t, err)
	assert.Equal(t, "raw", string(b))

	_, err = encode(func() {})
	assert.Error(t, err)
}
