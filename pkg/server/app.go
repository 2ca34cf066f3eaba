package server

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"QuoteHub/internal/repository"
	"QuoteHub/internal/service/breaker"
	"QuoteHub/internal/usecase"
	"QuoteHub/pkg/cache"
	pkgch "QuoteHub/pkg/clickhouse"
	"QuoteHub/pkg/config"
	xhttp "QuoteHub/pkg/http"
	pkgkafka "QuoteHub/pkg/kafka"
	applogger "QuoteHub/pkg/logger"
	"QuoteHub/pkg/queue"
	"QuoteHub/pkg/tracing"
)

// Components are the long-running parts of the application. Optional ones
// are nil when disabled in config.
type Components struct {
	Config        *config.Config
	Logger        *applogger.Logger
	HTTP          *xhttp.Server
	Service       *usecase.AggregationService
	TradeTap      *usecase.TradeTap
	Warmup        *usecase.Warmup
	RefreshQueue  *queue.RedisQueue
	Consumer      *pkgkafka.Consumer
	Corrections   *usecase.CorrectionsHandler
	BreakerEvents *breaker.ChannelObserver
	BreakerPub    *repository.KafkaBreakerEvents
	StageRuns     *repository.ClickHouseStageRuns
	Producer      *pkgkafka.Producer
	ClickHouse    *pkgch.Client
	Store         cache.Store
	LogCollector  *applogger.Collector
	Tracing       *tracing.Provider
}

// App encapsulates the entire application lifecycle.
type App struct {
	Components
	log *applogger.Logger
	wg  sync.WaitGroup
}

func New(c Components) *App {
	log := c.Logger
	if log == nil {
		log = applogger.Nop()
	}
	return &App{Components: c, log: log}
}

// Run starts every component and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts every component and shuts down when ctx is done.
func (a *App) RunContext(ctx context.Context) error {
	bg, cancel := context.WithCancel(context.Background())
	defer cancel()

	if a.TradeTap != nil {
		a.goRun("trade tap", func() error { return a.TradeTap.Run(bg) })
		a.log.Info("trade tap started", applogger.Strings("symbols", a.Config.Providers.Finnhub.Stream.Symbols))
	}
	if a.StageRuns != nil {
		a.goRun("stage run sink", func() error { return a.StageRuns.Run(bg) })
	}
	if a.BreakerPub != nil && a.BreakerEvents != nil {
		a.goRun("breaker publisher", func() error { return a.BreakerPub.Run(bg, a.BreakerEvents.Events()) })
		a.log.Info("breaker events publishing", applogger.String("topic", a.Config.Kafka.BreakerTopic))
	}
	if a.Consumer != nil && a.Corrections != nil {
		a.Consumer.RegisterHandler(a.Corrections)
		if err := a.Consumer.Start(); err != nil {
			a.log.Error("kafka consumer error", applogger.Error(err))
		} else {
			a.log.Info("kafka consumer started", applogger.String("topic", a.Corrections.Topic()))
		}
	}
	if a.RefreshQueue != nil {
		if err := a.RefreshQueue.Start(); err != nil {
			a.log.Error("refresh queue error", applogger.Error(err))
		}
	}
	if a.Warmup != nil {
		if err := a.Warmup.Start(a.Config.Warmup.Schedule); err != nil {
			cancel()
			a.wg.Wait()
			return err
		}
	}

	if err := a.HTTP.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		cancel()
		a.wg.Wait()
		return err
	}
	a.log.Info("quotehub started",
		applogger.String("env", a.Config.Environment),
		applogger.Int("port", a.Config.Server.Port),
	)

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	return a.shutdown(cancel)
}

func (a *App) goRun(name string, fn func() error) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := fn(); err != nil {
			a.log.Error(name+" stopped", applogger.Error(err))
		}
	}()
}

// shutdown stops intake first, then background workers, then clients.
func (a *App) shutdown(cancel context.CancelFunc) error {
	ctx, done := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer done()

	if err := a.HTTP.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}
	if a.Warmup != nil {
		a.Warmup.Stop(ctx)
	}
	if a.RefreshQueue != nil {
		if err := a.RefreshQueue.Stop(ctx); err != nil {
			a.log.Warn("refresh queue stop error", applogger.Error(err))
		}
	}
	if a.Consumer != nil {
		if err := a.Consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	if a.TradeTap != nil {
		if err := a.TradeTap.Shutdown(ctx); err != nil {
			a.log.Warn("trade tap stop error", applogger.Error(err))
		}
	}

	cancel()
	a.wg.Wait()

	if a.StageRuns != nil {
		_ = a.StageRuns.Close()
	}
	if a.ClickHouse != nil {
		if err := a.ClickHouse.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	if a.LogCollector != nil {
		a.log.DetachCollector()
		a.LogCollector.Close()
	}
	if a.Producer != nil {
		if err := a.Producer.Close(); err != nil {
			a.log.Warn("kafka producer close error", applogger.Error(err))
		}
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.log.Warn("cache store close error", applogger.Error(err))
		}
	}
	if err := a.Tracing.Shutdown(ctx); err != nil {
		a.log.Warn("tracer shutdown error", applogger.Error(err))
	}

	a.log.Info("shutdown complete")
	return nil
}
