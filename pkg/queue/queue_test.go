package queue

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type refresh struct {
	Symbol string `json:"symbol"`
}

func TestNewMessageRoundTrip(t *testing.T) {
	now := time.Date(2024, 7, 2, 13, 25, 0, 0, time.UTC)
	msg, err := NewMessage("refresh", refresh{Symbol: "AAPL"}, now)
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, now, msg.EnqueuedAt)

	data, err := json.Marshal(msg)
	require.NoError(t, err)
	var back Message
	require.NoError(t, json.Unmarshal(data, &back))

	got, err := Decode[refresh](back.Payload)
	require.NoError(t, err)
	assert.Equal(t, "AAPL", got.Symbol)
}

func TestDecodeRejectsEmptyPayload(t *testing.T) {
	_, err := Decode[refresh](nil)
	assert.Error(t, err)
	_, err = Decode[refresh](json.RawMessage(`{"symbol":`))
	assert.Error(t, err)
}

func TestNextStep(t *testing.T) {
	cfg := Config{RetryLimit: 2, RetryDelay: 10 * time.Second}.withDefaults()
	now := time.Date(2024, 7, 2, 13, 25, 0, 0, time.UTC)
	boom := errors.New("upstream down")

	msg := Message{ID: "1"}
	msg, at, retry := nextStep(msg, cfg, boom, now)
	assert.True(t, retry)
	assert.Equal(t, 1, msg.Attempts)
	assert.Equal(t, now.Add(10*time.Second), at)
	assert.Equal(t, "upstream down", msg.LastError)

	msg, _, retry = nextStep(msg, cfg, boom, now)
	assert.True(t, retry)
	assert.Equal(t, 2, msg.Attempts)

	_, _, retry = nextStep(msg, cfg, boom, now)
	assert.False(t, retry)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{RetryLimit: -1}.withDefaults()
	assert.Equal(t, 1, cfg.Workers)
	assert.Equal(t, 0, cfg.RetryLimit)
	assert.Equal(t, 10*time.Second, cfg.RetryDelay)
	assert.Equal(t, time.Second, cfg.Poll)
}
