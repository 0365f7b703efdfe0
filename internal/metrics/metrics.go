package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	CyclesTotal        *prometheus.CounterVec
	CycleDuration      prometheus.Histogram
	ItemsFetched       *prometheus.CounterVec
	NewItems           *prometheus.CounterVec
	Duplicates         *prometheus.CounterVec
	SourceFailures     *prometheus.CounterVec
	PublishResults     *prometheus.CounterVec
	FallbackDigests    *prometheus.CounterVec
	PurgedFingerprints prometheus.Counter
	SchedulerRunning   prometheus.Gauge
}

// NewMetrics creates the collectors on reg; nil means the default registerer
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		CyclesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "digest_relay_cycles_total",
			Help: "Total number of ingestion cycles by outcome",
		}, []string{"status"}),
		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "digest_relay_cycle_duration_seconds",
			Help:    "Time spent running an ingestion cycle",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		ItemsFetched: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "digest_relay_items_fetched_total",
			Help: "Total number of messages fetched per source",
		}, []string{"source"}),
		NewItems: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "digest_relay_new_items_total",
			Help: "Total number of items seen for the first time per source",
		}, []string{"source"}),
		Duplicates: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "digest_relay_duplicate_items_total",
			Help: "Total number of already fingerprinted items per source",
		}, []string{"source"}),
		SourceFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "digest_relay_source_failures_total",
			Help: "Total number of failed source reads by error kind",
		}, []string{"kind"}),
		PublishResults: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "digest_relay_publish_results_total",
			Help: "Total number of publish attempts by reason",
		}, []string{"reason"}),
		FallbackDigests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "digest_relay_fallback_digests_total",
			Help: "Total number of digests built from fallback content by origin",
		}, []string{"origin"}),
		PurgedFingerprints: factory.NewCounter(prometheus.CounterOpts{
			Name: "digest_relay_purged_fingerprints_total",
			Help: "Total number of fingerprints removed by retention",
		}),
		SchedulerRunning: factory.NewGauge(prometheus.GaugeOpts{
			Name: "digest_relay_scheduler_running",
			Help: "Whether the cron scheduler is running",
		}),
	}
}

// ObserveCycle records the outcome and duration of one cycle
func (m *Metrics) ObserveCycle(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.CyclesTotal.WithLabelValues(status).Inc()
	m.CycleDuration.Observe(duration.Seconds())
}

// ObserveSource records the counters of one source read
func (m *Metrics) ObserveSource(source string, fetched, fresh, duplicates int) {
	if m == nil {
		return
	}
	m.ItemsFetched.WithLabelValues(source).Add(float64(fetched))
	m.NewItems.WithLabelValues(source).Add(float64(fresh))
	m.Duplicates.WithLabelValues(source).Add(float64(duplicates))
}

// SourceFailed counts a failed source read
func (m *Metrics) SourceFailed(kind string) {
	if m == nil {
		return
	}
	m.SourceFailures.WithLabelValues(kind).Inc()
}

// Published counts a publish attempt
func (m *Metrics) Published(reason string) {
	if m == nil {
		return
	}
	m.PublishResults.WithLabelValues(reason).Inc()
}

// Fallback counts a fallback digest
func (m *Metrics) Fallback(origin string) {
	if m == nil {
		return
	}
	m.FallbackDigests.WithLabelValues(origin).Inc()
}

// Purged counts fingerprints removed by retention
func (m *Metrics) Purged(n int64) {
	if m == nil {
		return
	}
	m.PurgedFingerprints.Add(float64(n))
}

// SetSchedulerRunning reflects the scheduler state
func (m *Metrics) SetSchedulerRunning(running bool) {
	if m == nil {
		return
	}
	if running {
		m.SchedulerRunning.Set(1)
	} else {
		m.SchedulerRunning.Set(0)
	}
}
