//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"QuoteHub/pkg/config"
	"QuoteHub/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Observability
		ProvideLogger,
		ProvideMetrics,
		ProvideTracing,

		// Infrastructure clients
		ProvideCacheStore,
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideLogCollector,

		// Resilience and providers
		ProvideBreakerEvents,
		ProvideBreakerRegistry,
		ProvideFinnhubClient,
		ProvideYahooClient,
		ProvideProviders,
		ProvideCalendar,
		ProvideMarketStatus,
		ProvideTTLPolicy,

		// Repositories
		ProvideSnapshotStore,
		ProvideStageRunSink,
		ProvideBreakerPublisher,

		// Use cases
		ProvideTradeTap,
		ProvideAggregationService,
		ProvideCorrectionsHandler,
		ProvideRefreshQueue,
		ProvideWarmup,

		// Transport
		ProvideHTTPHandler,
		ProvideHTTPServer,
		ProvideApp,
	)
	return &server.App{}, nil
}
