package repository

import (
	"context"
	"time"

	"QuoteHub/internal/domain/models"
)

// QuoteProvider is one upstream market-data source. Errors are
// *failure.ProviderError values.
type QuoteProvider interface {
	ID() string
	GetQuote(ctx context.Context, symbol string) (models.Quote, error)
	GetTickerMetadata(ctx context.Context, symbol string) (models.TickerMetadata, error)
	GetMarketStatusSignal(ctx context.Context) (models.MarketStatusSignal, error)
}

// MarketStream is a live trade feed.
type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, symbols ...string) error
	Read(ctx context.Context) (<-chan models.Trade, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// TradeTap exposes the latest streamed trade per symbol.
type TradeTap interface {
	ID() string
	LastTrade(symbol string) (models.Trade, bool)
}

// SnapshotStore keeps the last merged snapshot per symbol and class beyond
// the in-process cache lifetime.
type SnapshotStore interface {
	Save(ctx context.Context, snap models.Snapshot, ttl time.Duration) error
	Load(ctx context.Context, symbol string, class models.RequestClass) (models.Snapshot, error)
	Delete(ctx context.Context, symbol string) error
}

// StageRunSink persists pipeline stage executions.
type StageRunSink interface {
	Init(ctx context.Context) error
	Record(ctx context.Context, runs []models.StageRun) error
	Close() error
}

// Metrics records service-level measurements.
type Metrics interface {
	RecordCacheEvent(cache, event string)
	RecordBreakerTransition(name, from, to string)
	RecordStage(run models.StageRun)
	RecordProviderError(provider, kind string)
	RecordResolve(class models.RequestClass, staleness models.Staleness, d time.Duration)
}
