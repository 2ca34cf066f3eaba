package di

import (
	"context"
	"fmt"
	"time"

	"QuoteHub/internal/domain/repository"
	"QuoteHub/internal/handler/api"
	internalrepo "QuoteHub/internal/repository"
	"QuoteHub/internal/service/breaker"
	"QuoteHub/internal/service/calendar"
	"QuoteHub/internal/service/finnhub"
	"QuoteHub/internal/service/marketstatus"
	"QuoteHub/internal/service/pipeline"
	"QuoteHub/internal/service/ratelimit"
	"QuoteHub/internal/service/retry"
	"QuoteHub/internal/service/yahoo"
	"QuoteHub/internal/usecase"
	"QuoteHub/pkg/cache"
	pkgch "QuoteHub/pkg/clickhouse"
	"QuoteHub/pkg/config"
	xhttp "QuoteHub/pkg/http"
	pkgkafka "QuoteHub/pkg/kafka"
	"QuoteHub/pkg/logger"
	"QuoteHub/pkg/metrics"
	"QuoteHub/pkg/queue"
	"QuoteHub/pkg/server"
	"QuoteHub/pkg/tracing"
)

const stageRunsTable = "stage_runs"

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(&logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: "stdout"})
}

// ProvideMetrics registers the Prometheus recorder on the default registry.
func ProvideMetrics() *metrics.Recorder {
	return metrics.New(nil)
}

// ProvideCacheStore returns Redis when enabled, else an in-process store.
func ProvideCacheStore(cfg *config.Config) (cache.Store, error) {
	if !cfg.Redis.Enabled {
		return cache.NewMemoryStore(), nil
	}
	store, err := cache.NewRedisStore(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisAuth(cfg.Redis.Password, cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis store: %w", err)
	}
	return store, nil
}

func ProvideSnapshotStore(store cache.Store) repository.SnapshotStore {
	return internalrepo.NewSnapshotStore(store)
}

func ProvideCalendar(cfg *config.Config) (*calendar.Calendar, error) {
	return calendar.New(cfg.Calendar.Timezone)
}

// ProvideBreakerEvents buffers transitions for the Kafka publisher.
func ProvideBreakerEvents(cfg *config.Config) *breaker.ChannelObserver {
	return breaker.NewChannelObserver(cfg.Breaker.EventBuffer)
}

// ProvideBreakerRegistry builds one breaker per provider. Every transition
// is logged, counted and queued for publishing.
func ProvideBreakerRegistry(cfg *config.Config, log *logger.Logger, rec *metrics.Recorder, events *breaker.ChannelObserver) *breaker.Registry {
	b := cfg.Breaker
	observers := breaker.Observers{
		breaker.LogObserver(log),
		breaker.ObserverFunc(func(ev breaker.Event) {
			rec.RecordBreakerTransition(ev.Name, ev.From.String(), ev.To.String())
		}),
		events,
	}
	return breaker.NewRegistry(breaker.Config{
		FailureThreshold: b.FailureThreshold,
		VolumeThreshold:  b.VolumeThreshold,
		ResetTimeout:     b.ResetTimeout,
		Window:           b.Window,
		RateLimitWeight:  b.RateLimitWeight,
	}, breaker.WithObserver(observers))
}

// ProvideFinnhubClient returns nil when Finnhub is disabled.
func ProvideFinnhubClient(cfg *config.Config) *finnhub.Client {
	f := cfg.Providers.Finnhub
	if !f.Enabled {
		return nil
	}
	return finnhub.NewClient(finnhub.Config{
		APIKey:            f.APIKey,
		BaseURL:           f.BaseURL,
		Timeout:           f.Timeout,
		RequestsPerMinute: f.RequestsPerMinute,
	})
}

// ProvideYahooClient returns nil when Yahoo is disabled.
func ProvideYahooClient(cfg *config.Config) *yahoo.Client {
	y := cfg.Providers.Yahoo
	if !y.Enabled {
		return nil
	}
	return yahoo.NewClient(yahoo.Config{
		BaseURL:           y.BaseURL,
		Timeout:           y.Timeout,
		RequestsPerMinute: y.RequestsPerMinute,
		UserAgent:         y.UserAgent,
		StatusSymbol:      y.StatusSymbol,
	})
}

// ProvideProviders lists the enabled upstreams with their merge priority.
func ProvideProviders(cfg *config.Config, fh *finnhub.Client, yh *yahoo.Client) []usecase.ProviderSpec {
	var specs []usecase.ProviderSpec
	if fh != nil {
		specs = append(specs, usecase.ProviderSpec{Provider: fh, Priority: cfg.Providers.Finnhub.Priority})
	}
	if yh != nil {
		specs = append(specs, usecase.ProviderSpec{Provider: yh, Priority: cfg.Providers.Yahoo.Priority})
	}
	return specs
}

// ProvideMarketStatus builds the session engine. The upstream signal shares
// the provider's breaker.
func ProvideMarketStatus(cfg *config.Config, cal *calendar.Calendar, fh *finnhub.Client, yh *yahoo.Client, breakers *breaker.Registry, log *logger.Logger) *marketstatus.Engine {
	opts := []marketstatus.Option{
		marketstatus.WithLogger(log),
		marketstatus.WithSessionTTL(cfg.Calendar.SessionTTL),
		marketstatus.WithSignalTimeout(cfg.Calendar.SignalTimeout),
	}
	var src marketstatus.SignalSource
	switch {
	case cfg.Calendar.SignalProvider == finnhub.ProviderID && fh != nil:
		src = fh
	case cfg.Calendar.SignalProvider == yahoo.ProviderID && yh != nil:
		src = yh
	}
	if src != nil {
		opts = append(opts, marketstatus.WithSignalSource(src, breakers.Get(src.ID())))
	}
	return marketstatus.New(cal, opts...)
}

// ProvideTTLPolicy maps configured budgets onto the session policy.
func ProvideTTLPolicy(cfg *config.Config) marketstatus.TTLPolicy {
	t := cfg.Cache.TTL
	conv := func(c config.TTL) marketstatus.TTL { return marketstatus.TTL{Hard: c.Hard, Stale: c.Stale} }
	return marketstatus.TTLPolicy{
		Regular:  conv(t.Regular),
		Extended: conv(t.Extended),
		Closed:   conv(t.Closed),
		Metadata: conv(t.Metadata),
	}
}

func retryPolicy(cfg *config.Config) retry.Policy {
	r := cfg.Pipeline.Retry
	return retry.Policy{Base: r.Base, Multiplier: r.Multiplier, Max: r.Max, Jitter: r.Jitter}
}

// ProvideTradeTap returns nil unless the Finnhub stream is enabled.
func ProvideTradeTap(cfg *config.Config, log *logger.Logger) *usecase.TradeTap {
	f := cfg.Providers.Finnhub
	if !f.Enabled || !f.Stream.Enabled {
		return nil
	}
	stream := finnhub.NewStream(f.APIKey, f.Stream.WebSocketURL, f.Stream.Symbols, f.Stream.PingInterval, log)
	return usecase.NewTradeTap("finnhub-stream", stream, retryPolicy(cfg), log)
}

// ProvideClickHouseClient returns nil when ClickHouse is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	c := cfg.ClickHouse
	if !c.Enabled {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.DialTimeout+5*time.Second)
	defer cancel()
	client, err := pkgch.NewClient(ctx,
		pkgch.WithHost(c.Host),
		pkgch.WithPort(c.Port),
		pkgch.WithDatabase(c.Database),
		pkgch.WithCredentials(c.User, c.Password),
		pkgch.WithMaxConnections(4, 2),
		pkgch.WithHTTP(c.UseHTTP),
		pkgch.WithAsyncInsert(c.AsyncInsert, c.WaitForAsync),
		pkgch.WithTimeouts(c.DialTimeout, c.ReadTimeout, c.WriteTimeout),
		pkgch.WithMaxExecutionTime(c.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideStageRunSink creates the stage_runs table and its batching writer.
func ProvideStageRunSink(cfg *config.Config, client *pkgch.Client, log *logger.Logger) (*internalrepo.ClickHouseStageRuns, error) {
	if client == nil {
		return nil, nil
	}
	sink := internalrepo.NewClickHouseStageRuns(client.DB(), stageRunsTable, cfg.ClickHouse.BatchSize, cfg.ClickHouse.FlushInterval, log)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sink.Init(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return sink, nil
}

// ProvideAggregationService assembles the resolution core.
// ProvideTracing installs the SDK tracer provider; nil when tracing is off.
func ProvideTracing(cfg *config.Config, log *logger.Logger) (*tracing.Provider, error) {
	t := cfg.Tracing
	if !t.Enabled {
		return nil, nil
	}
	p, err := tracing.New(tracing.Config{
		ServiceName: t.ServiceName,
		Environment: cfg.Environment,
		Exporter:    t.Exporter,
		SampleRatio: t.SampleRatio,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}
	return p, nil
}

func ProvideAggregationService(
	cfg *config.Config,
	providers []usecase.ProviderSpec,
	breakers *breaker.Registry,
	status *marketstatus.Engine,
	ttl marketstatus.TTLPolicy,
	snapshots repository.SnapshotStore,
	tap *usecase.TradeTap,
	sink *internalrepo.ClickHouseStageRuns,
	rec *metrics.Recorder,
	tp *tracing.Provider,
	log *logger.Logger,
) (*usecase.AggregationService, error) {
	p := cfg.Pipeline
	acfg := usecase.AggregationConfig{
		StageTimeout:   p.StageTimeout,
		MaxRetries:     p.MaxRetries,
		MaxParallelism: p.MaxParallelism,
		Retry:          retryPolicy(cfg),
		CacheCapacity:  cfg.Cache.Capacity,
		FetchTimeout:   p.FetchTimeout,
		MaxTradeAge:    cfg.Providers.Finnhub.Stream.MaxTradeAge,
	}
	opts := []usecase.AggregationOption{
		usecase.WithLogger(log),
		usecase.WithMetrics(rec),
		usecase.WithSnapshotStore(snapshots),
	}
	if tap != nil {
		opts = append(opts, usecase.WithTradeTap(tap))
	}
	if sink != nil {
		opts = append(opts, usecase.WithPipelineOptions(pipeline.WithObserver(sink)))
	}
	if tp != nil {
		opts = append(opts, usecase.WithPipelineOptions(pipeline.WithTracer(tp.Tracer(pipeline.TracerName))))
	}
	return usecase.NewAggregationService(acfg, providers, breakers, status, ttl, opts...)
}

// ProvideKafkaProducer returns nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	k := cfg.Kafka
	if !k.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(k.Brokers),
		pkgkafka.WithCompression(k.Compression),
		pkgkafka.WithRequiredAcks(k.RequiredAcks),
		pkgkafka.WithBatching(k.Producer.BatchSize, k.Producer.BatchBytes, k.Producer.Linger),
		pkgkafka.WithTimeouts(k.Producer.WriteTimeout, k.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(k.Producer.MaxAttempts),
		pkgkafka.WithAsync(k.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideKafkaConsumer returns nil when Kafka is disabled.
func ProvideKafkaConsumer(cfg *config.Config, log *logger.Logger) (*pkgkafka.Consumer, error) {
	k := cfg.Kafka
	if !k.Enabled || k.CorrectionsTopic == "" {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(k.Brokers),
		pkgkafka.WithConsumerGroupID(k.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(k.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(k.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(k.Consumer.RetryMax, k.Consumer.BackoffMin, k.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(k.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(k.Consumer.MinBytes, k.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(log),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideCorrectionsHandler invalidates symbols named on the corrections topic.
func ProvideCorrectionsHandler(cfg *config.Config, svc *usecase.AggregationService, log *logger.Logger) *usecase.CorrectionsHandler {
	return usecase.NewCorrectionsHandler(cfg.Kafka.CorrectionsTopic, svc, log)
}

// ProvideBreakerPublisher returns nil without a producer.
func ProvideBreakerPublisher(cfg *config.Config, producer *pkgkafka.Producer, log *logger.Logger) *internalrepo.KafkaBreakerEvents {
	if producer == nil || cfg.Kafka.BreakerTopic == "" {
		return nil
	}
	return internalrepo.NewKafkaBreakerEvents(producer, cfg.Kafka.BreakerTopic, log)
}

// ProvideLogCollector ships aggregated error logs when a log topic is set.
func ProvideLogCollector(cfg *config.Config, producer *pkgkafka.Producer, log *logger.Logger) *logger.Collector {
	if producer == nil || cfg.Kafka.LogTopic == "" {
		return nil
	}
	c := logger.NewCollector(logger.CollectorConfig{Topic: cfg.Kafka.LogTopic, Publisher: producer})
	log.AttachCollector(c)
	return c
}

// ProvideRefreshQueue returns nil unless warmup jobs are shared through Redis.
func ProvideRefreshQueue(cfg *config.Config, store cache.Store, svc *usecase.AggregationService, log *logger.Logger) *queue.RedisQueue {
	rs, ok := store.(*cache.RedisStore)
	if !cfg.Warmup.Enabled || !cfg.Warmup.Queue.Enabled || !ok {
		return nil
	}
	qc := cfg.Warmup.Queue
	q := queue.NewRedisQueue(log, queue.Config{
		Workers:    qc.Workers,
		RetryLimit: qc.RetryLimit,
		RetryDelay: qc.RetryDelay,
	}, rs.Client(), queue.WithKeyPrefix(cfg.Redis.Prefix+":queue:refresh"))
	q.RegisterJob(usecase.NewRefreshJob(svc, log))
	return q
}

// ProvideWarmup returns nil when warmup is disabled.
func ProvideWarmup(cfg *config.Config, svc *usecase.AggregationService, store cache.Store, q *queue.RedisQueue, cal *calendar.Calendar, log *logger.Logger) *usecase.Warmup {
	if !cfg.Warmup.Enabled {
		return nil
	}
	var opts []usecase.WarmupOption
	if q != nil {
		opts = append(opts, usecase.WithRefreshQueue(q))
	}
	return usecase.NewWarmup(svc, cfg.Warmup.Symbols, store, cal.Location(), log, opts...)
}

func ProvideHTTPHandler(svc *usecase.AggregationService, cal *calendar.Calendar, log *logger.Logger) *api.MarketDataEchoHandler {
	return api.NewMarketDataEchoHandler(log, svc, cal.Location())
}

// ProvideHTTPServer builds the Echo server with inbound rate limiting.
func ProvideHTTPServer(cfg *config.Config, handler *api.MarketDataEchoHandler, log *logger.Logger) *xhttp.Server {
	s := cfg.Server
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	opts := []xhttp.ServerOption{
		xhttp.WithPort(s.Port),
		xhttp.WithTimeouts(s.ReadTimeout, s.WriteTimeout, s.ShutdownTimeout),
		xhttp.WithMetricsPath(metricsPath),
	}
	if s.RateLimit.RPS > 0 {
		opts = append(opts, xhttp.WithRateLimit(ratelimit.New(s.RateLimit.RPS, s.RateLimit.Burst)))
	}
	return xhttp.NewServer(handler, log, opts...)
}

// ProvideApp collects every long-running component.
func ProvideApp(
	cfg *config.Config,
	log *logger.Logger,
	httpServer *xhttp.Server,
	svc *usecase.AggregationService,
	tap *usecase.TradeTap,
	warmup *usecase.Warmup,
	refreshQueue *queue.RedisQueue,
	consumer *pkgkafka.Consumer,
	corrections *usecase.CorrectionsHandler,
	events *breaker.ChannelObserver,
	breakerPub *internalrepo.KafkaBreakerEvents,
	sink *internalrepo.ClickHouseStageRuns,
	producer *pkgkafka.Producer,
	chClient *pkgch.Client,
	store cache.Store,
	collector *logger.Collector,
	tracer *tracing.Provider,
) *server.App {
	return server.New(server.Components{
		Config:        cfg,
		Logger:        log,
		HTTP:          httpServer,
		Service:       svc,
		TradeTap:      tap,
		Warmup:        warmup,
		RefreshQueue:  refreshQueue,
		Consumer:      consumer,
		Corrections:   corrections,
		BreakerEvents: events,
		BreakerPub:    breakerPub,
		StageRuns:     sink,
		Producer:      producer,
		ClickHouse:    chClient,
		Store:         store,
		LogCollector:  collector,
		Tracing:       tracer,
	})
}
