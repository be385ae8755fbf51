package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the per-stage counters exported on /metrics.
type Metrics struct {
	StageDuration *prometheus.HistogramVec
	StageFailures *prometheus.CounterVec
	RunsTotal     *prometheus.CounterVec
}

// NewMetrics registers the pipeline collectors with reg. A nil reg uses the
// default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "biosecure_stage_duration_seconds",
			Help:    "Stage run time in seconds",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 250ms to ~2min
		}, []string{"stage"}),
		StageFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "biosecure_stage_failures_total",
			Help: "Stage failures by stage and error kind",
		}, []string{"stage", "kind"}),
		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "biosecure_pipeline_runs_total",
			Help: "Pipeline runs by result",
		}, []string{"result"}),
	}
}

func (m *Metrics) observeStage(stage string, elapsed time.Duration, kind string, failed bool) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
	if failed {
		m.StageFailures.WithLabelValues(stage, kind).Inc()
	}
}

func (m *Metrics) observeRun(ok bool) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "error"
	}
	m.RunsTotal.WithLabelValues(result).Inc()
}
