package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"QuoteHub/internal/domain/models"
	"QuoteHub/internal/domain/repository"
	"QuoteHub/pkg/clickhouse"
	"QuoteHub/pkg/logger"
)

// ClickHouseStageRuns buffers pipeline stage executions and writes them to
// ClickHouse in batches. ObserveStage never blocks; runs are dropped when
// the buffer is full.
type ClickHouseStageRuns struct {
	db       *sql.DB
	table    string
	batch    int
	interval time.Duration
	log      *logger.Logger

	ch      chan models.StageRun
	dropped atomic.Int64
	started atomic.Bool
	done    chan struct{}
}

func NewClickHouseStageRuns(db *sql.DB, table string, batch int, interval time.Duration, log *logger.Logger) *ClickHouseStageRuns {
	if batch <= 0 {
		batch = 500
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &ClickHouseStageRuns{
		db:       db,
		table:    table,
		batch:    batch,
		interval: interval,
		log:      log,
		ch:       make(chan models.StageRun, batch*4),
		done:     make(chan struct{}),
	}
}

func (s *ClickHouseStageRuns) Init(ctx context.Context) error {
	for _, stmt := range clickhouse.StageRunsTable(s.table) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init %s: %w", s.table, err)
		}
	}
	return nil
}

// ObserveStage queues run for the next flush.
func (s *ClickHouseStageRuns) ObserveStage(run models.StageRun) {
	select {
	case s.ch <- run:
	default:
		if s.dropped.Add(1)%100 == 1 {
			s.log.Warn("stage run buffer full", logger.Int64("dropped", s.dropped.Load()))
		}
	}
}

func (s *ClickHouseStageRuns) Dropped() int64 { return s.dropped.Load() }

// Run flushes queued runs every interval or whenever a batch fills, until
// ctx is done. Whatever is still queued is flushed before returning.
func (s *ClickHouseStageRuns) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return fmt.Errorf("stage run sink already running")
	}
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	buf := make([]models.StageRun, 0, s.batch)
	flush := func(ctx context.Context) {
		if len(buf) == 0 {
			return
		}
		if err := s.Record(ctx, buf); err != nil {
			s.log.Error("stage run flush failed", logger.Int("rows", len(buf)), logger.Error(err))
		}
		buf = buf[:0]
	}

	for {
		select {
		case <-ctx.Done():
		drain:
			for {
				select {
				case run := <-s.ch:
					buf = append(buf, run)
				default:
					break drain
				}
			}
			fctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			flush(fctx)
			cancel()
			return nil
		case run := <-s.ch:
			buf = append(buf, run)
			if len(buf) >= s.batch {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		}
	}
}

// Record inserts runs with one multi-row statement per chunk.
func (s *ClickHouseStageRuns) Record(ctx context.Context, runs []models.StageRun) error {
	const chunkSize = 2000
	for start := 0; start < len(runs); start += chunkSize {
		end := min(start+chunkSize, len(runs))

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*8)
		for _, r := range runs[start:end] {
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				r.StartedAt.UTC(),
				r.RunID,
				r.PipelineID,
				r.Stage,
				uint8(min(r.Attempts, 255)),
				r.Outcome,
				r.Error,
				float64(r.Duration)/float64(time.Millisecond),
			)
		}
		q := fmt.Sprintf("INSERT INTO %s (ts, run_id, pipeline, stage, attempts, outcome, error, duration_ms) VALUES %s",
			s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert stage runs: %w", err)
		}
	}
	return nil
}

// Close waits for a started Run to drain. It does not close the pool.
func (s *ClickHouseStageRuns) Close() error {
	if s.started.Load() {
		<-s.done
	}
	return nil
}

var _ repository.StageRunSink = (*ClickHouseStageRuns)(nil)
