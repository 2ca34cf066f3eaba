package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"QuoteHub/internal/domain/models"
	"QuoteHub/internal/service/retry"
	"QuoteHub/pkg/cache"
)

type recordingInvalidator struct {
	mu      sync.Mutex
	symbols []string
	err     error
}

func (r *recordingInvalidator) Invalidate(_ context.Context, symbol string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.symbols = append(r.symbols, symbol)
	return r.err
}

func TestCorrectionsHandler(t *testing.T) {
	inv := &recordingInvalidator{}
	h := NewCorrectionsHandler("trade-corrections", inv, nil)
	assert.Equal(t, "trade-corrections", h.Topic())

	require.NoError(t, h.Handle(context.Background(), []byte(`{"symbol":"AAPL","reason":"busted trade"}`)))
	require.NoError(t, h.Handle(context.Background(), []byte(`{"symbols":["MSFT","NVDA"]}`)))
	assert.Equal(t, []string{"AAPL", "MSFT", "NVDA"}, inv.symbols)

	assert.Error(t, h.Handle(context.Background(), []byte(`{"reason":"nothing"}`)))
	assert.Error(t, h.Handle(context.Background(), []byte(`not json`)))

	inv.err = ErrInvalidSymbol
	assert.ErrorIs(t, h.Handle(context.Background(), []byte(`{"symbol":"$$"}`)), ErrInvalidSymbol)
}

type countingRefresher struct {
	calls atomic.Int32
	fail  string
}

func (c *countingRefresher) Refresh(_ context.Context, symbol string) error {
	c.calls.Add(1)
	if symbol == c.fail {
		return errors.New("upstream down")
	}
	return nil
}

func TestWarmupRunsOncePerLease(t *testing.T) {
	store := cache.NewMemoryStore()
	ref := &countingRefresher{fail: "MSFT"}
	w := NewWarmup(ref, []string{"AAPL", "MSFT", "SPY"}, store, time.UTC, nil)

	assert.Equal(t, 2, w.Run(context.Background()))
	assert.EqualValues(t, 3, ref.calls.Load())

	other := NewWarmup(ref, []string{"AAPL"}, store, time.UTC, nil)
	assert.Zero(t, other.Run(context.Background()), "lease still held")
	assert.EqualValues(t, 3, ref.calls.Load())
}

func TestWarmupRejectsBadSchedule(t *testing.T) {
	w := NewWarmup(&countingRefresher{}, nil, nil, nil, nil)
	assert.Error(t, w.Start("not a cron spec"))

	require.NoError(t, w.Start(""))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	w.Stop(ctx)
}

type fakeStream struct {
	mu         sync.Mutex
	connects   int
	connected  bool
	failFirst  bool
	batches    [][]models.Trade
	subscribed []string
}

func (f *fakeStream) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if f.failFirst && f.connects == 1 {
		return errors.New("dial refused")
	}
	f.connected = true
	return nil
}

func (f *fakeStream) Subscribe(_ context.Context, symbols ...string) error {
	f.mu.Lock()
	f.subscribed = append(f.subscribed, symbols...)
	f.mu.Unlock()
	return nil
}

// Read replays the next batch and then closes, as a dropped socket would.
func (f *fakeStream) Read(ctx context.Context) (<-chan models.Trade, <-chan error) {
	f.mu.Lock()
	var batch []models.Trade
	if len(f.batches) > 0 {
		batch, f.batches = f.batches[0], f.batches[1:]
	}
	f.mu.Unlock()

	trades := make(chan models.Trade, len(batch))
	errs := make(chan error, 1)
	for _, tr := range batch {
		trades <- tr
	}
	if batch == nil {
		go func() {
			<-ctx.Done()
			close(trades)
		}()
		return trades, errs
	}
	close(trades)
	return trades, errs
}

func (f *fakeStream) Reconnect(ctx context.Context) error { return f.Connect(ctx) }

func (f *fakeStream) Close() error {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	return nil
}

func (f *fakeStream) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func TestTradeTapKeepsNewestTrade(t *testing.T) {
	base := time.Date(2024, time.July, 2, 14, 0, 0, 0, time.UTC)
	stream := &fakeStream{
		failFirst: true,
		batches: [][]models.Trade{
			{
				{Symbol: "AAPL", Price: 210, Timestamp: base.Add(2 * time.Second)},
				{Symbol: "AAPL", Price: 209, Timestamp: base.Add(time.Second)},
				{Symbol: "MSFT", Price: 0, Timestamp: base},
			},
			{
				{Symbol: "AAPL", Price: 211, Timestamp: base.Add(3 * time.Second)},
			},
		},
	}
	policy := retry.Policy{Base: time.Millisecond, Max: time.Millisecond, Multiplier: 1}
	tap := NewTradeTap("finnhub-ws", stream, policy, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tap.Run(ctx) }()

	require.Eventually(t, func() bool {
		tr, ok := tap.LastTrade("AAPL")
		return ok && tr.Price == 211
	}, 2*time.Second, 5*time.Millisecond)
	_, ok := tap.LastTrade("MSFT")
	assert.False(t, ok, "non-positive prices are ignored")

	cancel()
	require.NoError(t, <-done)
	assert.GreaterOrEqual(t, stream.connects, 3)
}

type fakeEnqueuer struct {
	mu       sync.Mutex
	payloads []RefreshPayload
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, msgType string, payload interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msgType != RefreshJobType {
		return errors.New("unexpected type " + msgType)
	}
	f.payloads = append(f.payloads, payload.(RefreshPayload))
	return nil
}

func TestWarmupQueuesSymbols(t *testing.T) {
	ref := &countingRefresher{}
	q := &fakeEnqueuer{}
	w := NewWarmup(ref, []string{"AAPL", "MSFT"}, cache.NewMemoryStore(), time.UTC, nil, WithRefreshQueue(q))

	assert.Equal(t, 2, w.Run(context.Background()))
	assert.Zero(t, ref.calls.Load(), "queued symbols are refreshed by workers")
	assert.Equal(t, []RefreshPayload{{Symbol: "AAPL"}, {Symbol: "MSFT"}}, q.payloads)
}

func TestRefreshJob(t *testing.T) {
	ref := &countingRefresher{fail: "MSFT"}
	job := NewRefreshJob(ref, nil)
	assert.Equal(t, RefreshJobType, job.Type())

	ok, _ := json.Marshal(RefreshPayload{Symbol: "AAPL"})
	require.NoError(t, job.Handle(context.Background(), ok))

	bad, _ := json.Marshal(RefreshPayload{Symbol: "MSFT"})
	assert.Error(t, job.Handle(context.Background(), bad), "upstream failures are retried")

	assert.NoError(t, job.Handle(context.Background(), json.RawMessage(`{`)), "malformed payloads are dropped")
	assert.EqualValues(t, 2, ref.calls.Load())
}

type invalidRefresher struct{}

func (invalidRefresher) Refresh(context.Context, string) error { return ErrInvalidSymbol }

func TestRefreshJobDropsInvalidSymbols(t *testing.T) {
	payload, _ := json.Marshal(RefreshPayload{Symbol: "$$"})
	assert.NoError(t, NewRefreshJob(invalidRefresher{}, nil).Handle(context.Background(), payload))
}
