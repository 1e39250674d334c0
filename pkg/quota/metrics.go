package quota

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains Prometheus metrics for the quota package.
type Metrics struct {
	admissionChecks *prometheus.CounterVec
	limitHits       *prometheus.CounterVec
	usageRatio      *prometheus.GaugeVec
	waitSeconds     prometheus.Histogram
	usageRecords    prometheus.Counter
	tokensRecorded  prometheus.Counter
	persistFailures prometheus.Counter
	catalogMisses   prometheus.Counter
	snapshotDrops   prometheus.Counter
}

// NewMetrics creates a Metrics instance registered with reg. A nil reg
// uses the default Prometheus registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		admissionChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ganymede_quota_admission_checks_total",
				Help: "Total number of admission checks performed",
			},
			[]string{"result"},
		),

		limitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ganymede_quota_limit_hits_total",
				Help: "Total number of ceiling breaches observed, by dimension",
			},
			[]string{"dimension"},
		),

		usageRatio: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ganymede_quota_usage_ratio",
				Help: "Current consumption as a fraction of the ceiling (0.0-1.0)",
			},
			[]string{"dimension"},
		),

		waitSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ganymede_quota_admission_wait_seconds",
				Help:    "Wait durations imposed on rate-limited callers",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~68m
			},
		),

		usageRecords: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ganymede_quota_usage_records_total",
				Help: "Total number of usage records applied",
			},
		),

		tokensRecorded: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ganymede_quota_tokens_recorded_total",
				Help: "Total tokens recorded against the quota",
			},
		),

		persistFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ganymede_quota_persist_failures_total",
				Help: "Total number of non-fatal state persistence failures",
			},
		),

		catalogMisses: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ganymede_quota_catalog_misses_total",
				Help: "Total number of lookups that fell back to the default limit entry",
			},
		),

		snapshotDrops: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ganymede_quota_snapshot_drops_total",
				Help: "Total number of snapshots dropped on slow subscriber channels",
			},
		),
	}
}

// ObserveAdmission records an admission check outcome.
func (m *Metrics) ObserveAdmission(allowed bool) {
	result := "allowed"
	if !allowed {
		result = "blocked"
	}
	m.admissionChecks.WithLabelValues(result).Inc()
}

// RecordLimitHit records a breached dimension.
func (m *Metrics) RecordLimitHit(d Dimension) {
	m.limitHits.WithLabelValues(string(d)).Inc()
}

// SetUsage publishes the per-dimension usage ratios from a snapshot.
func (m *Metrics) SetUsage(p Percentages) {
	m.usageRatio.WithLabelValues(string(DimensionRequestsPerMinute)).Set(p.RequestsPerMinute)
	m.usageRatio.WithLabelValues(string(DimensionRequestsPerDay)).Set(p.RequestsPerDay)
	m.usageRatio.WithLabelValues(string(DimensionTokensPerMinute)).Set(p.TokensPerMinute)
	m.usageRatio.WithLabelValues(string(DimensionTokensPerDay)).Set(p.TokensPerDay)
}

// ObserveWait records a wait imposed on a rate-limited caller.
func (m *Metrics) ObserveWait(d time.Duration) {
	m.waitSeconds.Observe(d.Seconds())
}

// RecordUsage records an applied usage record.
func (m *Metrics) RecordUsage(tokens int64) {
	m.usageRecords.Inc()
	if tokens > 0 {
		m.tokensRecorded.Add(float64(tokens))
	}
}

// RecordPersistFailure records a non-fatal persistence failure.
func (m *Metrics) RecordPersistFailure() {
	m.persistFailures.Inc()
}

// RecordCatalogMiss records a lookup that fell back to the default entry.
func (m *Metrics) RecordCatalogMiss() {
	m.catalogMisses.Inc()
}

// RecordSnapshotDrop records a snapshot dropped on a full subscriber channel.
func (m *Metrics) RecordSnapshotDrop() {
	m.snapshotDrops.Inc()
}
