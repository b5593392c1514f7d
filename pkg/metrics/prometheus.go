package metrics

import (
	"time"

	"TrustBoard/internal/domain/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Recorder implements domain.repository.Metrics using Prometheus. It owns a
// private registry so one-shot runs can push exactly the ETL series.
type Recorder struct {
	registry      *prometheus.Registry
	records       *prometheus.CounterVec
	rejections    *prometheus.CounterVec
	anomalies     *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	lastSuccess   prometheus.Gauge
	sinkFailures  *prometheus.CounterVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		records: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trustboard_records_total",
				Help: "Records leaving each ETL stage",
			},
			[]string{"stage", "source"},
		),
		rejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trustboard_rejections_total",
				Help: "Raw records rejected by the transform stage",
			},
			[]string{"kind"},
		),
		anomalies: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trustboard_anomalies_total",
				Help: "Candles flagged as anomalous",
			},
			[]string{"source"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "trustboard_stage_duration_seconds",
				Help:    "Duration of ETL stages in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"stage"},
		),
		lastSuccess: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "trustboard_last_success_timestamp_seconds",
				Help: "Unix time of the last successful ETL run",
			},
		),
		sinkFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trustboard_sink_failures_total",
				Help: "Sink messages given up on after retries",
			},
			[]string{"reason"},
		),
	}
	r.registry.MustRegister(r.records, r.rejections, r.anomalies, r.stageDuration, r.lastSuccess, r.sinkFailures)
	return r
}

// WithRuntimeCollectors adds process and Go runtime series, for long-running modes.
func (r *Recorder) WithRuntimeCollectors() *Recorder {
	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Registry returns the registry holding the ETL series.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

func (r *Recorder) RecordRecords(stage string, src models.Source, n int) {
	r.records.WithLabelValues(stage, string(src)).Add(float64(n))
}

func (r *Recorder) RecordRejections(kind string, n int) {
	r.rejections.WithLabelValues(kind).Add(float64(n))
}

func (r *Recorder) RecordAnomalies(src models.Source, n int) {
	r.anomalies.WithLabelValues(string(src)).Add(float64(n))
}

func (r *Recorder) RecordStageDuration(stage string, d time.Duration) {
	r.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (r *Recorder) RecordSuccess(at time.Time) {
	r.lastSuccess.Set(float64(at.Unix()))
}

// RecordSinkFailure counts a sink message that exhausted its retries.
// reason is "permanent" or "transient".
func (r *Recorder) RecordSinkFailure(reason string) {
	r.sinkFailures.WithLabelValues(reason).Inc()
}
