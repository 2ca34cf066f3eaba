// Package pipeline runs a request through ordered, retryable stages with
// bounded per-stage parallelism.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"QuoteHub/internal/domain/failure"
	"QuoteHub/internal/domain/models"
	"QuoteHub/internal/service/retry"
	"QuoteHub/pkg/logger"
)

const TracerName = "quotehub.pipeline"

var ErrStageTimeout = errors.New("stage timed out")

// Operation transforms the pipeline value. It must not mutate in: after a
// timeout the pipeline moves on while the abandoned call may still run.
type Operation[T any] func(ctx context.Context, in T) (T, error)

// Fallback replaces a stage's result once its retries are exhausted.
type Fallback[T any] func(ctx context.Context, in T, lastErr error) (T, error)

type Stage[T any] struct {
	Name       string
	Operation  Operation[T]
	Timeout    time.Duration
	MaxRetries int
	Fallback   Fallback[T]
	// MaxParallelism overrides the pipeline default for this stage.
	MaxParallelism int
}

type Config struct {
	ID             string
	MaxParallelism int
	Retry          retry.Policy
}

// StageObserver receives one record per stage execution.
type StageObserver interface {
	ObserveStage(run models.StageRun)
}

type StageObserverFunc func(run models.StageRun)

func (f StageObserverFunc) ObserveStage(run models.StageRun) { f(run) }

type options struct {
	log       *logger.Logger
	tracer    trace.Tracer
	observers []StageObserver
	sleep     func(context.Context, time.Duration) error
}

type Option func(*options)

func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.log = l }
}

func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

func WithObserver(obs ...StageObserver) Option {
	return func(o *options) { o.observers = append(o.observers, obs...) }
}

// WithSleep replaces the backoff sleep, mainly for tests.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(o *options) { o.sleep = sleep }
}

type Pipeline[T any] struct {
	id     string
	stages []Stage[T]
	sems   []*semaphore.Weighted
	policy retry.Policy
	opts   options

	mu    sync.Mutex
	stats map[string]*StageStats
}

func New[T any](cfg Config, stages []Stage[T], opts ...Option) (*Pipeline[T], error) {
	if cfg.ID == "" {
		return nil, errors.New("pipeline id is required")
	}
	if len(stages) == 0 {
		return nil, fmt.Errorf("pipeline %s: no stages", cfg.ID)
	}
	if cfg.MaxParallelism <= 0 {
		cfg.MaxParallelism = 4
	}

	o := options{
		log:    logger.Nop(),
		tracer: otel.Tracer(TracerName),
		sleep:  retry.Sleep,
	}
	for _, opt := range opts {
		opt(&o)
	}

	p := &Pipeline[T]{
		id:     cfg.ID,
		stages: make([]Stage[T], len(stages)),
		sems:   make([]*semaphore.Weighted, len(stages)),
		policy: cfg.Retry,
		opts:   o,
		stats:  make(map[string]*StageStats, len(stages)),
	}
	seen := make(map[string]struct{}, len(stages))
	for i, st := range stages {
		if st.Name == "" || st.Operation == nil {
			return nil, fmt.Errorf("pipeline %s: stage %d needs a name and an operation", cfg.ID, i)
		}
		if _, dup := seen[st.Name]; dup {
			return nil, fmt.Errorf("pipeline %s: duplicate stage %q", cfg.ID, st.Name)
		}
		seen[st.Name] = struct{}{}
		if st.MaxRetries < 0 {
			st.MaxRetries = 0
		}
		limit := cfg.MaxParallelism
		if st.MaxParallelism > 0 {
			limit = st.MaxParallelism
		}
		p.stages[i] = st
		p.sems[i] = semaphore.NewWeighted(int64(limit))
		p.stats[st.Name] = &StageStats{}
	}
	return p, nil
}

func (p *Pipeline[T]) ID() string { return p.id }

// StageError reports the stage that aborted a run.
type StageError struct {
	Pipeline string
	Stage    string
	Attempts int
	Err      error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline %s: stage %s failed after %d attempt(s): %v", e.Pipeline, e.Stage, e.Attempts, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Process runs in through every stage in order. The first stage that fails
// without a usable fallback aborts the run.
func (p *Pipeline[T]) Process(ctx context.Context, in T) (T, error) {
	runID := uuid.NewString()
	ctx, span := p.opts.tracer.Start(ctx, "pipeline."+p.id,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("pipeline.id", p.id),
			attribute.String("pipeline.run_id", runID),
		),
	)
	defer span.End()

	cur := in
	for i := range p.stages {
		out, err := p.runStage(ctx, runID, i, cur)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			var zero T
			return zero, err
		}
		cur = out
	}
	return cur, nil
}

func (p *Pipeline[T]) runStage(ctx context.Context, runID string, idx int, in T) (T, error) {
	st := p.stages[idx]
	var zero T

	ctx, span := p.opts.tracer.Start(ctx, "stage."+st.Name,
		trace.WithAttributes(attribute.String("stage.name", st.Name)))
	defer span.End()

	if err := p.sems[idx].Acquire(ctx, 1); err != nil {
		return zero, &StageError{Pipeline: p.id, Stage: st.Name, Err: err}
	}
	defer p.sems[idx].Release(1)

	start := time.Now()
	maxAttempts := st.MaxRetries + 1
	attempts := 0
	var lastErr error
	for attempts < maxAttempts {
		attempts++
		out, err := p.attempt(ctx, st, in)
		if err == nil {
			span.SetAttributes(attribute.Int("stage.attempts", attempts))
			p.observe(runID, st.Name, attempts, "ok", nil, start)
			return out, nil
		}
		lastErr = err
		if ctx.Err() != nil || !failure.IsRetryable(err) || attempts == maxAttempts {
			break
		}
		if err := p.opts.sleep(ctx, p.policy.Delay(attempts)); err != nil {
			break
		}
	}
	span.SetAttributes(attribute.Int("stage.attempts", attempts))

	if st.Fallback != nil && ctx.Err() == nil {
		out, ferr := st.Fallback(ctx, in, lastErr)
		if ferr == nil {
			p.opts.log.Debug("stage fallback used",
				logger.String("pipeline", p.id),
				logger.String("stage", st.Name),
				logger.Int("attempts", attempts),
				logger.Error(lastErr),
			)
			p.observe(runID, st.Name, attempts, "fallback", lastErr, start)
			return out, nil
		}
		lastErr = errors.Join(lastErr, fmt.Errorf("fallback: %w", ferr))
	}
	if ctx.Err() != nil && lastErr == nil {
		lastErr = ctx.Err()
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "stage failed")
	p.observe(runID, st.Name, attempts, "failed", lastErr, start)
	return zero, &StageError{Pipeline: p.id, Stage: st.Name, Attempts: attempts, Err: lastErr}
}

// attempt races the operation against the stage timeout. A late result is
// discarded.
func (p *Pipeline[T]) attempt(ctx context.Context, st Stage[T], in T) (T, error) {
	if st.Timeout <= 0 {
		return st.Operation(ctx, in)
	}

	actx, cancel := context.WithTimeout(ctx, st.Timeout)
	defer cancel()

	type result struct {
		out T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		out, err := st.Operation(actx, in)
		ch <- result{out, err}
	}()

	select {
	case r := <-ch:
		return r.out, r.err
	case <-actx.Done():
		var zero T
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, failure.Unavailable(st.Name, "stage", fmt.Errorf("%w after %s", ErrStageTimeout, st.Timeout))
	}
}

func (p *Pipeline[T]) observe(runID, stage string, attempts int, outcome string, err error, start time.Time) {
	d := time.Since(start)
	run := models.StageRun{
		RunID:      runID,
		PipelineID: p.id,
		Stage:      stage,
		Attempts:   attempts,
		Outcome:    outcome,
		StartedAt:  start,
		Duration:   d,
	}
	if err != nil {
		run.Error = err.Error()
	}

	p.mu.Lock()
	s := p.stats[stage]
	s.Runs++
	s.TotalLatency += d
	switch outcome {
	case "fallback":
		s.Fallbacks++
	case "failed":
		s.Failures++
	}
	if err != nil {
		s.LastError = run.Error
	}
	p.mu.Unlock()

	for _, o := range p.opts.observers {
		o.ObserveStage(run)
	}
}
