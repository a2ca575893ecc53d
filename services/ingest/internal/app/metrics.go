package app

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"vericase/pkg/domain"
)

// Metrics holds the ingest collectors. A nil *Metrics records nothing.
type Metrics struct {
	runs           *prometheus.CounterVec
	runDuration    prometheus.Histogram
	messages       prometheus.Counter
	attachments    *prometheus.CounterVec
	itemErrors     *prometheus.CounterVec
	searchFailures prometheus.Counter
}

// NewMetrics registers the ingest collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vericase_ingest_runs_total",
			Help: "Container runs by terminal status",
		}, []string{"status"}),
		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "vericase_ingest_run_duration_seconds",
			Help:    "Wall time of container runs",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		}),
		messages: factory.NewCounter(prometheus.CounterOpts{
			Name: "vericase_ingest_messages_total",
			Help: "Messages persisted as evidence",
		}),
		attachments: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vericase_ingest_attachments_total",
			Help: "Attachment occurrences and unique uploads",
		}, []string{"kind"}),
		itemErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vericase_ingest_item_errors_total",
			Help: "Recoverable per-item failures by scope",
		}, []string{"scope"}),
		searchFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "vericase_ingest_search_publish_failures_total",
			Help: "Best-effort search publications that failed",
		}),
	}
}

func (m *Metrics) observeRun(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(status).Inc()
	m.runDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) observeMessage() {
	if m == nil {
		return
	}
	m.messages.Inc()
}

func (m *Metrics) observeAttachments(total, unique int) {
	if m == nil {
		return
	}
	m.attachments.WithLabelValues("occurrence").Add(float64(total))
	m.attachments.WithLabelValues("unique").Add(float64(unique))
}

func (m *Metrics) observeItemErrors(errs []domain.ItemError) {
	if m == nil {
		return
	}
	for _, e := range errs {
		m.itemErrors.WithLabelValues(string(e.Scope)).Inc()
	}
}

func (m *Metrics) observeSearchFailure() {
	if m == nil {
		return
	}
	m.searchFailures.Inc()
}
