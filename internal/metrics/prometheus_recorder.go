package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "threejs_sync"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	cycleDuration   *prom.HistogramVec
	cycleOutcomes   *prom.CounterVec
	overlapSkips    prom.Counter
	lastSuccess     prom.Gauge
	syncAttempts    *prom.CounterVec
	sourceFallbacks *prom.CounterVec
	buildDuration   *prom.HistogramVec
	stageDuration   *prom.HistogramVec
}

// NewPrometheusRecorder constructs and registers Prometheus metrics on reg.
func NewPrometheusRecorder(reg prom.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	// npm builds run for minutes; default buckets stop at 10s.
	longBuckets := prom.ExponentialBuckets(1, 2, 12)

	pr := &PrometheusRecorder{
		cycleDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of sync-then-build cycles by outcome",
			Buckets:   longBuckets,
		}, []string{"outcome"}),
		cycleOutcomes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "cycle_outcomes_total",
			Help:      "Cycle outcomes (success, degraded_success, failure, skipped)",
		}, []string{"outcome"}),
		overlapSkips: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "cycle_overlap_skips_total",
			Help:      "Triggers skipped because a cycle was already running",
		}),
		lastSuccess: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "last_successful_sync_timestamp_seconds",
			Help:      "Unix time of the last cycle that produced a served artifact",
		}),
		syncAttempts: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "sync_attempts_total",
			Help:      "Clone and pull attempts by result",
		}, []string{"op", "result"}),
		sourceFallbacks: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "source_fallbacks_total",
			Help:      "Escalations to a fallback source",
		}, []string{"source"}),
		buildDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "build_duration_seconds",
			Help:      "Build duration by result kind (full, minimal, failed)",
			Buckets:   longBuckets,
		}, []string{"kind"}),
		stageDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual build stages",
			Buckets:   longBuckets,
		}, []string{"stage"}),
	}
	reg.MustRegister(pr.cycleDuration, pr.cycleOutcomes, pr.overlapSkips, pr.lastSuccess,
		pr.syncAttempts, pr.sourceFallbacks, pr.buildDuration, pr.stageDuration)
	return pr
}

func (p *PrometheusRecorder) ObserveCycle(outcome string, d time.Duration) {
	p.cycleOutcomes.WithLabelValues(outcome).Inc()
	p.cycleDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncOverlapSkip() {
	p.overlapSkips.Inc()
	p.cycleOutcomes.WithLabelValues("skipped").Inc()
}

func (p *PrometheusRecorder) SetLastSuccess(t time.Time) {
	p.lastSuccess.Set(float64(t.Unix()))
}

func (p *PrometheusRecorder) IncSyncAttempt(op string, result ResultLabel) {
	p.syncAttempts.WithLabelValues(op, string(result)).Inc()
}

func (p *PrometheusRecorder) IncSourceFallback(source string) {
	p.sourceFallbacks.WithLabelValues(source).Inc()
}

func (p *PrometheusRecorder) ObserveBuild(kind string, d time.Duration) {
	p.buildDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}
