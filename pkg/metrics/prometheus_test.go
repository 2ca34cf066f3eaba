package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"QuoteHub/internal/domain/models"
)

func TestRecorder(t *testing.T) {
	r := New(prometheus.NewRegistry())

	r.RecordCacheEvent("resolutions", "hit")
	r.RecordCacheEvent("resolutions", "hit")
	assert.Equal(t, 2.0, testutil.ToFloat64(r.cacheEvents.WithLabelValues("resolutions", "hit")))

	r.RecordBreakerTransition("finnhub", "closed", "open")
	assert.Equal(t, 1.0, testutil.ToFloat64(r.breakerState.WithLabelValues("finnhub")))
	r.RecordBreakerTransition("finnhub", "open", "half-open")
	assert.Equal(t, 2.0, testutil.ToFloat64(r.breakerState.WithLabelValues("finnhub")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.breakerChanges.WithLabelValues("finnhub", "closed", "open")))

	r.ObserveStage(models.StageRun{PipelineID: "quote", Stage: "yahoo", Attempts: 3, Outcome: "fallback", Duration: 40 * time.Millisecond})
	assert.Equal(t, 3.0, testutil.ToFloat64(r.stageAttempts.WithLabelValues("quote", "yahoo")))

	r.RecordProviderError("yahoo", "rate_limited")
	assert.Equal(t, 1.0, testutil.ToFloat64(r.providerErrors.WithLabelValues("yahoo", "rate_limited")))

	r.RecordResolve(models.ClassQuote, models.StalenessFresh, time.Millisecond)
	assert.Equal(t, 1, testutil.CollectAndCount(r.resolveLatency))
}
