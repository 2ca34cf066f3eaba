package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"QuoteHub/pkg/cache"
	"QuoteHub/pkg/logger"
	"QuoteHub/pkg/queue"
)

const (
	DefaultWarmupSchedule = "25 9 * * 1-5"
	warmupLockKey         = "lock:warmup"
)

// Refresher force-refreshes one symbol.
type Refresher interface {
	Refresh(ctx context.Context, symbol string) error
}

// Warmup primes the cache for a fixed symbol list on a cron schedule in
// exchange-local time. A shared lease keeps replicas from warming twice.
type Warmup struct {
	svc     Refresher
	symbols []string
	locker  cache.Store
	lockTTL time.Duration
	timeout time.Duration
	log     *logger.Logger
	cron    *cron.Cron
	queue   queue.Enqueuer
}

type WarmupOption func(*Warmup)

// WithRefreshQueue hands symbols to a shared queue instead of refreshing
// them inline, so every replica's workers share the load.
func WithRefreshQueue(q queue.Enqueuer) WarmupOption {
	return func(w *Warmup) { w.queue = q }
}

func NewWarmup(svc Refresher, symbols []string, locker cache.Store, loc *time.Location, log *logger.Logger, opts ...WarmupOption) *Warmup {
	if log == nil {
		log = logger.Nop()
	}
	if loc == nil {
		loc = time.UTC
	}
	w := &Warmup{
		svc:     svc,
		symbols: symbols,
		locker:  locker,
		lockTTL: 2 * time.Minute,
		timeout: time.Minute,
		log:     log,
		cron:    cron.New(cron.WithLocation(loc)),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Start schedules the job. An empty spec uses DefaultWarmupSchedule.
func (w *Warmup) Start(spec string) error {
	if spec == "" {
		spec = DefaultWarmupSchedule
	}
	if _, err := w.cron.AddFunc(spec, func() { _ = w.Run(context.Background()) }); err != nil {
		return fmt.Errorf("warmup schedule %q: %w", spec, err)
	}
	w.cron.Start()
	w.log.Info("warmup scheduled", logger.String("spec", spec), logger.Int("symbols", len(w.symbols)))
	return nil
}

// Stop waits for a running job to finish or ctx to end.
func (w *Warmup) Stop(ctx context.Context) {
	done := w.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// Run refreshes every symbol once, or queues it when a refresh queue is
// set. It returns the number refreshed or queued.
func (w *Warmup) Run(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	if w.locker != nil {
		ok, err := w.locker.TryLock(ctx, warmupLockKey, w.lockTTL)
		if err != nil {
			w.log.Warn("warmup lock failed", logger.Error(err))
			return 0
		}
		if !ok {
			w.log.Debug("warmup already taken by another replica")
			return 0
		}
		// The lease is left to expire so replicas firing in the same minute skip.
	}

	refreshed := 0
	for _, sym := range w.symbols {
		if ctx.Err() != nil {
			break
		}
		if w.queue != nil {
			if err := w.queue.Enqueue(ctx, RefreshJobType, RefreshPayload{Symbol: sym}); err != nil {
				w.log.Warn("warmup enqueue failed", logger.String("symbol", sym), logger.Error(err))
				continue
			}
			refreshed++
			continue
		}
		if err := w.svc.Refresh(ctx, sym); err != nil {
			w.log.Warn("warmup refresh failed", logger.String("symbol", sym), logger.Error(err))
			continue
		}
		refreshed++
	}
	w.log.Info("warmup done",
		logger.Int("refreshed", refreshed),
		logger.Int("symbols", len(w.symbols)),
		logger.Bool("queued", w.queue != nil),
	)
	return refreshed
}
