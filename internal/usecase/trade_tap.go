package usecase

import (
	"context"
	"sync"

	"QuoteHub/internal/domain/models"
	drepo "QuoteHub/internal/domain/repository"
	"QuoteHub/internal/service/retry"
	"QuoteHub/pkg/logger"
)

// TradeTap consumes a MarketStream and remembers the last trade per symbol.
type TradeTap struct {
	id     string
	stream drepo.MarketStream
	policy retry.Policy
	log    *logger.Logger

	mu   sync.RWMutex
	last map[string]models.Trade
}

func NewTradeTap(id string, stream drepo.MarketStream, policy retry.Policy, log *logger.Logger) *TradeTap {
	if log == nil {
		log = logger.Nop()
	}
	return &TradeTap{id: id, stream: stream, policy: policy, log: log, last: make(map[string]models.Trade)}
}

func (t *TradeTap) ID() string { return t.id }

// LastTrade returns the newest trade seen for symbol.
func (t *TradeTap) LastTrade(symbol string) (models.Trade, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tr, ok := t.last[symbol]
	return tr, ok
}

func (t *TradeTap) IsConnected() bool { return t.stream.IsConnected() }

// Run connects and reads until ctx is done, reconnecting with backoff.
func (t *TradeTap) Run(ctx context.Context) error {
	attempt := 0
	for {
		if err := t.connect(ctx); err != nil {
			attempt++
			t.log.Warn("trade stream connect failed", logger.Int("attempt", attempt), logger.Error(err))
			if err := retry.Sleep(ctx, t.policy.Delay(attempt)); err != nil {
				return nil
			}
			continue
		}
		attempt = 0

		trades, errs := t.stream.Read(ctx)
		err := t.consume(ctx, trades, errs)
		if ctx.Err() != nil {
			return nil
		}
		t.log.Warn("trade stream interrupted", logger.Error(err))
		_ = t.stream.Close()
		if err := retry.Sleep(ctx, t.policy.Delay(1)); err != nil {
			return nil
		}
	}
}

func (t *TradeTap) connect(ctx context.Context) error {
	if err := t.stream.Connect(ctx); err != nil {
		return err
	}
	return t.stream.Subscribe(ctx)
}

func (t *TradeTap) consume(ctx context.Context, trades <-chan models.Trade, errs <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-errs:
			if ok && err != nil {
				return err
			}
			errs = nil
		case tr, ok := <-trades:
			if !ok {
				return nil
			}
			t.observe(tr)
		}
	}
}

func (t *TradeTap) observe(tr models.Trade) {
	if tr.Symbol == "" || tr.Price <= 0 {
		return
	}
	t.mu.Lock()
	if cur, ok := t.last[tr.Symbol]; !ok || !tr.Timestamp.Before(cur.Timestamp) {
		t.last[tr.Symbol] = tr
	}
	t.mu.Unlock()
}

// Shutdown closes the stream.
func (t *TradeTap) Shutdown(ctx context.Context) error {
	return t.stream.Close()
}

var _ drepo.TradeTap = (*TradeTap)(nil)
