package usecase

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"QuoteHub/internal/domain/failure"
	"QuoteHub/internal/domain/models"
	drepo "QuoteHub/internal/domain/repository"
	"QuoteHub/internal/service/breaker"
	"QuoteHub/internal/service/merger"
	"QuoteHub/internal/service/pipeline"
	"QuoteHub/pkg/logger"
)

// evidenceSpan keeps evidence kind dominant over provider priority when the
// two are folded into one metadata record priority.
const evidenceSpan = 100

// gather is the pipeline state. Stages never mutate their input; they return
// a modified copy, so an abandoned attempt cannot race the next stage.
type gather struct {
	symbol   string
	class    models.RequestClass
	records  []models.SourceRecord
	failures map[string]string
	causes   []error
	snapshot *models.Snapshot
}

func (g gather) with(recs ...models.SourceRecord) gather {
	out := g
	out.records = append(slices.Clip(g.records), recs...)
	return out
}

func (g gather) failed(provider string, err error) gather {
	out := g
	out.failures = maps.Clone(g.failures)
	if out.failures == nil {
		out.failures = make(map[string]string)
	}
	out.failures[provider] = err.Error()
	out.causes = append(slices.Clip(g.causes), err)
	return out
}

func (s *AggregationService) buildPipeline(class models.RequestClass) (*pipeline.Pipeline[gather], error) {
	stages := make([]pipeline.Stage[gather], 0, len(s.providers)+3)
	for _, spec := range s.providers {
		stages = append(stages, s.providerStage(class, spec))
	}
	if class == models.ClassQuote && s.tap != nil {
		stages = append(stages, s.tapStage())
	}
	stages = append(stages, s.mergeStage(class))
	if class == models.ClassMetadata && s.snapshots != nil {
		stages = append(stages, s.persistStage())
	}

	opts := append([]pipeline.Option{
		pipeline.WithLogger(s.log),
		pipeline.WithObserver(pipeline.StageObserverFunc(s.metrics.RecordStage)),
	}, s.pipeOpts...)
	p, err := pipeline.New(pipeline.Config{
		ID:             string(class),
		MaxParallelism: s.cfg.MaxParallelism,
		Retry:          s.cfg.Retry,
	}, stages, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s pipeline: %w", class, err)
	}
	return p, nil
}

// providerStage asks one provider through its breaker. Exhausted retries are
// absorbed: the failure is recorded and the run moves on to the next source.
func (s *AggregationService) providerStage(class models.RequestClass, spec ProviderSpec) pipeline.Stage[gather] {
	p := spec.Provider
	b := s.breakers.Get(p.ID())
	return pipeline.Stage[gather]{
		Name:       p.ID(),
		Timeout:    s.cfg.StageTimeout,
		MaxRetries: s.cfg.MaxRetries,
		Operation: func(ctx context.Context, in gather) (gather, error) {
			recs, err := fetchRecords(ctx, b, p, spec.Priority, in, s.now())
			if err != nil {
				return in, err
			}
			return in.with(recs...), nil
		},
		Fallback: func(ctx context.Context, in gather, lastErr error) (gather, error) {
			kind := failure.KindOf(lastErr)
			s.metrics.RecordProviderError(p.ID(), kind.String())
			s.log.Warn("provider skipped",
				logger.String("provider", p.ID()),
				logger.String("class", string(class)),
				logger.String("symbol", in.symbol),
				logger.String("kind", kind.String()),
				logger.Error(lastErr),
			)
			return in.failed(p.ID(), lastErr), nil
		},
	}
}

func fetchRecords(ctx context.Context, b *breaker.Breaker, p drepo.QuoteProvider, priority int, in gather, now time.Time) ([]models.SourceRecord, error) {
	switch in.class {
	case models.ClassQuote:
		q, err := breaker.Call(ctx, b, func(ctx context.Context) (models.Quote, error) {
			return p.GetQuote(ctx, in.symbol)
		})
		if err != nil {
			return nil, err
		}
		return merger.QuoteRecords(q, priority, now), nil
	default:
		meta, err := breaker.Call(ctx, b, func(ctx context.Context) (models.TickerMetadata, error) {
			return p.GetTickerMetadata(ctx, in.symbol)
		})
		if err != nil {
			return nil, err
		}
		recs := merger.MetadataRecords(meta, now)
		for i := range recs {
			recs[i].Priority = recs[i].Priority*evidenceSpan + priority
		}
		return recs, nil
	}
}

// tapStage adds the latest streamed trade as a price observation. It never
// fails.
func (s *AggregationService) tapStage() pipeline.Stage[gather] {
	return pipeline.Stage[gather]{
		Name: "trade-tap",
		Operation: func(ctx context.Context, in gather) (gather, error) {
			t, ok := s.tap.LastTrade(in.symbol)
			if !ok || t.Price <= 0 || s.now().Sub(t.Timestamp) > s.cfg.MaxTradeAge {
				return in, nil
			}
			return in.with(merger.TradeRecord(t, s.tap.ID(), 0)), nil
		},
	}
}

// mergeStage resolves one value per field. With no records at all every
// source failed; metadata may still fall back to the last saved snapshot.
func (s *AggregationService) mergeStage(class models.RequestClass) pipeline.Stage[gather] {
	st := pipeline.Stage[gather]{
		Name: "merge",
		Operation: func(ctx context.Context, in gather) (gather, error) {
			if len(in.records) == 0 {
				return in, &failure.AllSourcesExhaustedError{Symbol: in.symbol, Causes: in.causes}
			}
			values, decisions := s.merger.MergeAll(in.records)
			if class == models.ClassQuote {
				values, decisions = deriveChange(values, decisions)
			}
			out := in
			out.snapshot = &models.Snapshot{
				Symbol:     in.symbol,
				Class:      class,
				Values:     values,
				Decisions:  decisions,
				Failures:   in.failures,
				ProducedAt: s.now(),
			}
			return out, nil
		},
	}
	if class == models.ClassMetadata && s.snapshots != nil {
		st.Fallback = func(ctx context.Context, in gather, lastErr error) (gather, error) {
			snap, err := s.snapshots.Load(ctx, in.symbol, class)
			if err != nil {
				return in, fmt.Errorf("last known snapshot: %w", err)
			}
			snap.Failures = in.failures
			out := in
			out.snapshot = &snap
			s.log.Info("serving last known metadata",
				logger.String("symbol", in.symbol),
				logger.Any("produced_at", snap.ProducedAt),
			)
			return out, nil
		}
	}
	return st
}

// persistStage writes merged metadata through to the snapshot store. A write
// failure never fails the run.
func (s *AggregationService) persistStage() pipeline.Stage[gather] {
	return pipeline.Stage[gather]{
		Name:    "persist",
		Timeout: time.Second,
		Operation: func(ctx context.Context, in gather) (gather, error) {
			if in.snapshot == nil || len(in.failures) == len(s.providers) {
				return in, nil
			}
			if err := s.snapshots.Save(ctx, *in.snapshot, s.ttl.Metadata.Stale); err != nil {
				return in, err
			}
			return in, nil
		},
		Fallback: func(ctx context.Context, in gather, lastErr error) (gather, error) {
			s.log.Warn("snapshot write failed", logger.String("symbol", in.symbol), logger.Error(lastErr))
			return in, nil
		},
	}
}
