package usecase

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"QuoteHub/internal/domain/failure"
	"QuoteHub/internal/domain/models"
	drepo "QuoteHub/internal/domain/repository"
	"QuoteHub/internal/service/breaker"
	"QuoteHub/internal/service/marketstatus"
	"QuoteHub/internal/service/merger"
	"QuoteHub/internal/service/pipeline"
	"QuoteHub/internal/service/retry"
	"QuoteHub/pkg/cache"
	"QuoteHub/pkg/logger"
)

var (
	ErrInvalidSymbol  = errors.New("invalid symbol")
	ErrSymbolNotFound = errors.New("symbol not found")
	ErrNoProviders    = errors.New("no quote providers configured")
)

var symbolPattern = regexp.MustCompile(`^[A-Z0-9.\-^=]{1,20}$`)

// NormalizeSymbol upper-cases and trims s. It returns "" when s is not a
// plausible ticker.
func NormalizeSymbol(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if !symbolPattern.MatchString(s) {
		return ""
	}
	return s
}

// ProviderSpec pairs a provider with its merge priority; higher wins.
type ProviderSpec struct {
	Provider drepo.QuoteProvider
	Priority int
}

type AggregationConfig struct {
	StageTimeout   time.Duration
	MaxRetries     int
	MaxParallelism int
	Retry          retry.Policy
	CacheCapacity  int
	FetchTimeout   time.Duration
	// MaxTradeAge bounds how old a streamed trade may be to count as a price.
	MaxTradeAge time.Duration
}

func DefaultAggregationConfig() AggregationConfig {
	return AggregationConfig{
		StageTimeout:   3 * time.Second,
		MaxRetries:     2,
		MaxParallelism: 8,
		Retry:          retry.Default(),
		CacheCapacity:  4096,
		FetchTimeout:   15 * time.Second,
		MaxTradeAge:    30 * time.Second,
	}
}

// AggregationService is the entry point of the core: it resolves fields for
// a symbol through the cache, the per-class pipelines and the merger.
type AggregationService struct {
	cfg       AggregationConfig
	providers []ProviderSpec
	breakers  *breaker.Registry
	status    *marketstatus.Engine
	ttl       marketstatus.TTLPolicy
	merger    *merger.Merger
	cache     *cache.Intelligent[models.Snapshot]
	pipes     map[models.RequestClass]*pipeline.Pipeline[gather]

	snapshots drepo.SnapshotStore
	tap       drepo.TradeTap
	metrics   drepo.Metrics
	log       *logger.Logger
	now       func() time.Time
	pipeOpts  []pipeline.Option
}

type AggregationOption func(*AggregationService)

func WithSnapshotStore(s drepo.SnapshotStore) AggregationOption {
	return func(a *AggregationService) { a.snapshots = s }
}

func WithTradeTap(t drepo.TradeTap) AggregationOption {
	return func(a *AggregationService) { a.tap = t }
}

func WithMetrics(m drepo.Metrics) AggregationOption {
	return func(a *AggregationService) { a.metrics = m }
}

func WithLogger(l *logger.Logger) AggregationOption {
	return func(a *AggregationService) { a.log = l }
}

func WithClock(now func() time.Time) AggregationOption {
	return func(a *AggregationService) { a.now = now }
}

func WithPipelineOptions(opts ...pipeline.Option) AggregationOption {
	return func(a *AggregationService) { a.pipeOpts = append(a.pipeOpts, opts...) }
}

func NewAggregationService(
	cfg AggregationConfig,
	providers []ProviderSpec,
	breakers *breaker.Registry,
	status *marketstatus.Engine,
	ttl marketstatus.TTLPolicy,
	opts ...AggregationOption,
) (*AggregationService, error) {
	if len(providers) == 0 {
		return nil, ErrNoProviders
	}
	s := &AggregationService{
		cfg:       cfg,
		providers: append([]ProviderSpec(nil), providers...),
		breakers:  breakers,
		status:    status,
		ttl:       ttl,
		merger:    merger.New(),
		metrics:   nopMetrics{},
		log:       logger.Nop(),
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	sort.SliceStable(s.providers, func(i, j int) bool { return s.providers[i].Priority > s.providers[j].Priority })

	c, err := cache.NewIntelligent[models.Snapshot]("resolutions", cfg.CacheCapacity,
		cache.WithClock(s.now),
		cache.WithLogger(s.log),
		cache.WithEventRecorder(s.metrics),
		cache.WithFetchTimeout(cfg.FetchTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("resolution cache: %w", err)
	}
	s.cache = c

	s.pipes = make(map[models.RequestClass]*pipeline.Pipeline[gather], 2)
	for _, class := range []models.RequestClass{models.ClassQuote, models.ClassMetadata} {
		p, err := s.buildPipeline(class)
		if err != nil {
			return nil, err
		}
		s.pipes[class] = p
	}
	return s, nil
}

func cacheKey(class models.RequestClass, symbol string) string {
	return cache.GenerateKeyWithParams("resolution", class, symbol)
}

type classResult struct {
	class   models.RequestClass
	snap    models.Snapshot
	info    cache.EntryInfo
	err     error
	partial bool
}

// Resolve returns the requested fields for symbol. The only data failure it
// reports is *failure.AllSourcesExhaustedError, carrying any last known
// values labelled expired.
func (s *AggregationService) Resolve(ctx context.Context, symbol string, fields []models.Field) (*models.Resolution, error) {
	return s.resolve(ctx, symbol, fields)
}

// Refresh force-refreshes both request classes of symbol.
func (s *AggregationService) Refresh(ctx context.Context, symbol string) error {
	_, err := s.resolve(ctx, symbol, nil, cache.ForceRefresh())
	return err
}

func (s *AggregationService) resolve(ctx context.Context, symbol string, fields []models.Field, getOpts ...cache.GetOption) (*models.Resolution, error) {
	sym := NormalizeSymbol(symbol)
	if sym == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSymbol, symbol)
	}
	if len(fields) == 0 {
		fields = allFields
	}

	session := s.status.Current(ctx)
	byClass := models.SplitByClass(fields)
	classes := make([]models.RequestClass, 0, len(byClass))
	for c := range byClass {
		classes = append(classes, c)
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i] < classes[j] })

	results := make([]classResult, len(classes))
	var g errgroup.Group
	for i, class := range classes {
		g.Go(func() error {
			start := time.Now()
			results[i] = s.resolveClass(ctx, sym, class, session, getOpts)
			s.metrics.RecordResolve(class, stalenessOf(results[i]), time.Since(start))
			return nil
		})
	}
	_ = g.Wait()

	return s.assemble(ctx, sym, byClass, session, results)
}

func (s *AggregationService) resolveClass(ctx context.Context, symbol string, class models.RequestClass, session models.MarketSession, getOpts []cache.GetOption) classResult {
	hard, extra := s.ttl.For(class, session.Session).Window()
	key := cacheKey(class, symbol)
	opts := append([]cache.GetOption{cache.WithTTL(hard, extra)}, getOpts...)

	snap, info, err := s.cache.Get(ctx, key, s.fetcher(class, symbol), opts...)
	if err == nil {
		return classResult{class: class, snap: snap, info: info}
	}
	r := classResult{class: class, err: err}
	if old, oinfo, ok := s.cache.Peek(key); ok {
		r.snap, r.info, r.partial = old, oinfo, true
	}
	return r
}

func (s *AggregationService) fetcher(class models.RequestClass, symbol string) cache.Fetcher[models.Snapshot] {
	return func(ctx context.Context) (models.Snapshot, error) {
		out, err := s.pipes[class].Process(ctx, gather{symbol: symbol, class: class})
		if err != nil {
			return models.Snapshot{}, err
		}
		return *out.snapshot, nil
	}
}

func (s *AggregationService) assemble(ctx context.Context, symbol string, byClass map[models.RequestClass][]models.Field, session models.MarketSession, results []classResult) (*models.Resolution, error) {
	res := &models.Resolution{
		Symbol:    symbol,
		Values:    make(map[models.Field]any),
		Session:   session,
		Staleness: models.StalenessFresh,
	}
	var causes []error
	failed, anyData := false, false

	for _, r := range results {
		if r.err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			failed = true
			causes = append(causes, causesOf(r.err)...)
			if !r.partial {
				continue
			}
		}
		anyData = true
		want := byClass[r.class]
		wanted := make(map[models.Field]struct{}, len(want))
		for _, f := range want {
			wanted[f] = struct{}{}
			if v, ok := r.snap.Values[f]; ok {
				res.Values[f] = v
			} else if f.Categorical() {
				res.Values[f] = models.Unknown
			}
		}
		for _, d := range r.snap.Decisions {
			if _, ok := wanted[d.Field]; ok {
				res.Decisions = append(res.Decisions, d)
			}
		}
		if res.AsOf.IsZero() || r.snap.ProducedAt.Before(res.AsOf) {
			res.AsOf = r.snap.ProducedAt
		}
		res.Staleness = worse(res.Staleness, stalenessOf(r))
	}

	if !failed {
		return res, nil
	}
	ase := &failure.AllSourcesExhaustedError{Symbol: symbol, Causes: causes}
	if anyData {
		res.Staleness = models.StalenessExpired
		ase.Partial = res
	}
	s.log.Warn("all sources exhausted",
		logger.String("symbol", symbol),
		logger.Bool("partial", anyData),
		logger.Error(ase),
	)
	return nil, ase
}

// Invalidate drops every cached class of symbol. The next Resolve fetches
// fresh data and never joins a fetch started before the call.
func (s *AggregationService) Invalidate(ctx context.Context, symbol string) error {
	sym := NormalizeSymbol(symbol)
	if sym == "" {
		return fmt.Errorf("%w: %q", ErrInvalidSymbol, symbol)
	}
	for _, class := range []models.RequestClass{models.ClassQuote, models.ClassMetadata} {
		s.cache.Delete(cacheKey(class, sym))
	}
	if s.snapshots != nil {
		if err := s.snapshots.Delete(ctx, sym); err != nil {
			return fmt.Errorf("invalidate %s: %w", sym, err)
		}
	}
	s.log.Debug("symbol invalidated", logger.String("symbol", sym))
	return nil
}

// Breakers reports the state of every provider breaker.
func (s *AggregationService) Breakers() []breaker.Status {
	return s.breakers.Statuses()
}

// Session returns the current market session.
func (s *AggregationService) Session(ctx context.Context) models.MarketSession {
	return s.status.Current(ctx)
}

// SessionAt returns the calendar session at ts.
func (s *AggregationService) SessionAt(ts time.Time) models.MarketSession {
	return s.status.At(ts)
}

// StageStatsView adds the derived rates to a stage's raw counters.
type StageStatsView struct {
	pipeline.StageStats
	MeanLatencyMs float64 `json:"mean_latency_ms"`
	SuccessRate   float64 `json:"success_rate"`
}

// ServiceStats is a point-in-time view of the cache and pipeline counters.
type ServiceStats struct {
	Cache     cache.Stats                          `json:"cache"`
	HitRatio  float64                              `json:"hit_ratio"`
	Pipelines map[string]map[string]StageStatsView `json:"pipelines"`
}

func (s *AggregationService) Stats() ServiceStats {
	cs := s.cache.Stats()
	out := ServiceStats{
		Cache:     cs,
		HitRatio:  cs.HitRatio(),
		Pipelines: make(map[string]map[string]StageStatsView, len(s.pipes)),
	}
	for _, p := range s.pipes {
		stages := make(map[string]StageStatsView)
		for name, st := range p.Stats() {
			stages[name] = StageStatsView{
				StageStats:    st,
				MeanLatencyMs: float64(st.MeanLatency()) / float64(time.Millisecond),
				SuccessRate:   st.SuccessRate(),
			}
		}
		out.Pipelines[p.ID()] = stages
	}
	return out
}

var allFields = []models.Field{
	models.FieldName, models.FieldSector, models.FieldIndustry, models.FieldExchange, models.FieldMarketCap,
	models.FieldPrice, models.FieldPrevClose, models.FieldChange, models.FieldChangePercent, models.FieldVolume,
	models.FieldDayHigh, models.FieldDayLow, models.FieldFiftyTwoWeekHigh, models.FieldFiftyTwoWeekLow,
	models.FieldAvgVolume, models.FieldPE, models.FieldEPS, models.FieldBeta, models.FieldDividend, models.FieldDividendYield,
}

func causesOf(err error) []error {
	var ase *failure.AllSourcesExhaustedError
	if errors.As(err, &ase) && len(ase.Causes) > 0 {
		return ase.Causes
	}
	return []error{err}
}

func stalenessOf(r classResult) models.Staleness {
	if r.err != nil {
		return models.StalenessExpired
	}
	switch r.info.Freshness {
	case cache.Fresh:
		return models.StalenessFresh
	case cache.Stale:
		return models.StalenessStale
	default:
		return models.StalenessExpired
	}
}

func worse(a, b models.Staleness) models.Staleness {
	rank := map[models.Staleness]int{models.StalenessFresh: 0, models.StalenessStale: 1, models.StalenessExpired: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

type nopMetrics struct{}

func (nopMetrics) RecordCacheEvent(string, string)                                    {}
func (nopMetrics) RecordBreakerTransition(string, string, string)                     {}
func (nopMetrics) RecordStage(models.StageRun)                                        {}
func (nopMetrics) RecordProviderError(string, string)                                 {}
func (nopMetrics) RecordResolve(models.RequestClass, models.Staleness, time.Duration) {}
