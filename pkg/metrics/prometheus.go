package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"QuoteHub/internal/domain/models"
)

// Breaker state values exported by quotehub_breaker_state.
var breakerStates = map[string]float64{"closed": 0, "open": 1, "half-open": 2}

// Recorder implements domain.repository.Metrics using Prometheus. It also
// satisfies cache.EventRecorder and pipeline.StageObserver.
type Recorder struct {
	cacheEvents    *prometheus.CounterVec
	breakerChanges *prometheus.CounterVec
	breakerState   *prometheus.GaugeVec
	stageLatency   *prometheus.HistogramVec
	stageAttempts  *prometheus.CounterVec
	providerErrors *prometheus.CounterVec
	resolveLatency *prometheus.HistogramVec
}

// New registers the collectors on reg; nil means the default registerer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		cacheEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "quotehub_cache_events_total",
			Help: "Cache lookups and refreshes by outcome (hit, miss, stale, shared, refresh, ...)",
		}, []string{"cache", "event"}),
		breakerChanges: f.NewCounterVec(prometheus.CounterOpts{
			Name: "quotehub_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		}, []string{"provider", "from", "to"}),
		breakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "quotehub_breaker_state",
			Help: "Current breaker state: 0 closed, 1 open, 2 half-open",
		}, []string{"provider"}),
		stageLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quotehub_pipeline_stage_seconds",
			Help:    "Pipeline stage duration including retries",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"pipeline", "stage", "outcome"}),
		stageAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "quotehub_pipeline_stage_attempts_total",
			Help: "Stage operation attempts",
		}, []string{"pipeline", "stage"}),
		providerErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "quotehub_provider_errors_total",
			Help: "Provider failures absorbed by the pipeline, by kind",
		}, []string{"provider", "kind"}),
		resolveLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quotehub_resolve_seconds",
			Help:    "Resolve latency per request class and returned staleness",
			Buckets: prometheus.DefBuckets,
		}, []string{"class", "staleness"}),
	}
}

func (r *Recorder) RecordCacheEvent(cache, event string) {
	r.cacheEvents.WithLabelValues(cache, event).Inc()
}

func (r *Recorder) RecordBreakerTransition(name, from, to string) {
	r.breakerChanges.WithLabelValues(name, from, to).Inc()
	if v, ok := breakerStates[to]; ok {
		r.breakerState.WithLabelValues(name).Set(v)
	}
}

func (r *Recorder) RecordStage(run models.StageRun) {
	r.stageLatency.WithLabelValues(run.PipelineID, run.Stage, run.Outcome).Observe(run.Duration.Seconds())
	r.stageAttempts.WithLabelValues(run.PipelineID, run.Stage).Add(float64(run.Attempts))
}

// ObserveStage lets the recorder be passed straight to a pipeline.
func (r *Recorder) ObserveStage(run models.StageRun) { r.RecordStage(run) }

func (r *Recorder) RecordProviderError(provider, kind string) {
	r.providerErrors.WithLabelValues(provider, kind).Inc()
}

func (r *Recorder) RecordResolve(class models.RequestClass, staleness models.Staleness, d time.Duration) {
	r.resolveLatency.WithLabelValues(string(class), string(staleness)).Observe(d.Seconds())
}
