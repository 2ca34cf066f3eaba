package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"QuoteHub/internal/domain/models"
	"QuoteHub/internal/service/breaker"
)

type recordingPublisher struct {
	mu   sync.Mutex
	keys []string
	msgs []BreakerEvent
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, key []byte, value interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, topic+"/"+string(key))
	p.msgs = append(p.msgs, value.(BreakerEvent))
	return p.err
}

func TestBreakerEventsPublishesKeyedByProvider(t *testing.T) {
	pub := &recordingPublisher{}
	events := make(chan breaker.Event, 2)
	at := time.Date(2024, 7, 2, 14, 0, 0, 0, time.UTC)
	events <- breaker.Event{Name: "yahoo", From: breaker.StateClosed, To: breaker.StateOpen, At: at, Failures: 5, Requests: 10}
	events <- breaker.Event{Name: "finnhub", From: breaker.StateOpen, To: breaker.StateHalfOpen, At: at}
	close(events)

	err := NewKafkaBreakerEvents(pub, "breaker-events", nil).Run(context.Background(), events)
	require.NoError(t, err)

	assert.Equal(t, []string{"breaker-events/yahoo", "breaker-events/finnhub"}, pub.keys)
	assert.Equal(t, "closed", pub.msgs[0].From)
	assert.Equal(t, "open", pub.msgs[0].To)
	assert.Equal(t, "half-open", pub.msgs[1].To)
	assert.InDelta(t, 5.0, pub.msgs[0].Failures, 1e-9)
}

func TestBreakerEventsSurvivesPublishErrors(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	events := make(chan breaker.Event, 2)
	events <- breaker.Event{Name: "yahoo", To: breaker.StateOpen}
	events <- breaker.Event{Name: "yahoo", To: breaker.StateHalfOpen}
	close(events)

	require.NoError(t, NewKafkaBreakerEvents(pub, "t", nil).Run(context.Background(), events))
	assert.Len(t, pub.msgs, 2)
}

func TestStageRunsRecordBuildsMultiRowInsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	start := time.Date(2024, 7, 2, 14, 0, 0, 0, time.UTC)
	runs := []models.StageRun{
		{RunID: "r1", PipelineID: "quote", Stage: "provider:yahoo", Attempts: 1, Outcome: "ok", StartedAt: start, Duration: 120 * time.Millisecond},
		{RunID: "r1", PipelineID: "quote", Stage: "merge", Attempts: 1, Outcome: "ok", StartedAt: start, Duration: time.Millisecond},
	}
	mock.ExpectExec(`INSERT INTO stage_runs \(ts, run_id, pipeline, stage, attempts, outcome, error, duration_ms\) VALUES \(\?, \?, \?, \?, \?, \?, \?, \?\),\(\?`).
		WithArgs(
			start, "r1", "quote", "provider:yahoo", uint8(1), "ok", "", 120.0,
			start, "r1", "quote", "merge", uint8(1), "ok", "", 1.0,
		).
		WillReturnResult(sqlmock.NewResult(0, 2))

	sink := NewClickHouseStageRuns(db, "stage_runs", 10, time.Hour, nil)
	require.NoError(t, sink.Record(context.Background(), runs))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStageRunsInitCreatesTable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS stage_runs`).WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, NewClickHouseStageRuns(db, "stage_runs", 10, time.Hour, nil).Init(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStageRunsFlushesOnShutdown(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectExec(`INSERT INTO stage_runs`).WillReturnResult(sqlmock.NewResult(0, 3))

	sink := NewClickHouseStageRuns(db, "stage_runs", 100, time.Hour, nil)
	for i := 0; i < 3; i++ {
		sink.ObserveStage(models.StageRun{RunID: "r", PipelineID: "quote", Stage: "merge", Outcome: "ok"})
	}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- sink.Run(ctx) }()
	cancel()

	require.NoError(t, <-errc)
	require.NoError(t, sink.Close())
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Zero(t, sink.Dropped())
}

func TestStageRunsDropsWhenFull(t *testing.T) {
	sink := NewClickHouseStageRuns(nil, "stage_runs", 1, time.Hour, nil)
	for i := 0; i < 10; i++ {
		sink.ObserveStage(models.StageRun{})
	}
	assert.Equal(t, int64(6), sink.Dropped())
	assert.NoError(t, sink.Close())
}
