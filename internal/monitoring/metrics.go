// internal/monitoring/metrics.go

// Package monitoring exposes Prometheus metrics for crawl runs and a small
// HTTP endpoint serving them alongside a health check.
package monitoring

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects the engine's Prometheus instruments. A nil *Metrics is
// valid and records nothing, so wiring metrics stays optional.
type Metrics struct {
	requestsTotal      *prometheus.CounterVec
	requestRetries     prometheus.Counter
	requestFailures    *prometheus.CounterVec
	sessionRotations   prometheus.Counter
	proxyCircuitOpen   prometheus.Gauge
	pagesProcessed     *prometheus.CounterVec
	candidatesTotal    *prometheus.CounterVec
	recordsAccepted    prometheus.Counter
	recordsRejected    *prometheus.CounterVec
	tasksEnqueued      *prometheus.CounterVec
	tasksAbandoned     prometheus.Counter
	detailTasksQueued  prometheus.Counter
	degradedRerunsRun  prometheus.Counter
}

// NewMetrics registers all instruments on a fresh registry-independent set
// using the default registerer.
func NewMetrics(namespace string) *Metrics {
	return newMetricsWith(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry registers on an explicit registry; used by tests.
func NewMetricsWithRegistry(namespace string, reg prometheus.Registerer) *Metrics {
	return newMetricsWith(namespace, reg)
}

func newMetricsWith(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "cataloger"
	}
	factory := promauto.With(reg)

	return &Metrics{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "HTTP requests completed, by status code and proxy use",
		}, []string{"status", "proxy"}),
		requestRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_retries_total",
			Help:      "Request attempts that were retried",
		}),
		requestFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_failures_total",
			Help:      "Requests that failed before producing a response",
		}, []string{"kind"}),
		sessionRotations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_rotations_total",
			Help:      "Browsing identity rotations after blocking responses",
		}),
		proxyCircuitOpen: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "proxy_circuit_open",
			Help:      "1 once proxy authentication has failed for the run",
		}),
		pagesProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_processed_total",
			Help:      "Page tasks processed, by task kind",
		}, []string{"kind"}),
		candidatesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_extracted_total",
			Help:      "Raw candidates produced, by channel",
		}, []string{"channel"}),
		recordsAccepted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_accepted_total",
			Help:      "Records accepted for persistence",
		}),
		recordsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_rejected_total",
			Help:      "Records rejected before persistence, by reason",
		}, []string{"reason"}),
		tasksEnqueued: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_enqueued_total",
			Help:      "Pagination tasks enqueued, by strategy",
		}, []string{"strategy"}),
		tasksAbandoned: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_abandoned_total",
			Help:      "Tasks abandoned after exhausting the retry budget",
		}),
		detailTasksQueued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detail_tasks_queued_total",
			Help:      "Detail follow-up tasks reserved",
		}),
		degradedRerunsRun: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "degraded_reruns_total",
			Help:      "Full re-runs performed with the proxy disabled",
		}),
	}
}

func (m *Metrics) RequestCompleted(status int, viaProxy bool) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(strconv.Itoa(status), strconv.FormatBool(viaProxy)).Inc()
}

func (m *Metrics) RequestRetried() {
	if m == nil {
		return
	}
	m.requestRetries.Inc()
}

func (m *Metrics) RequestFailed(kind string) {
	if m == nil {
		return
	}
	m.requestFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) SessionRotated() {
	if m == nil {
		return
	}
	m.sessionRotations.Inc()
}

func (m *Metrics) ProxyCircuitOpened() {
	if m == nil {
		return
	}
	m.proxyCircuitOpen.Set(1)
}

func (m *Metrics) PageProcessed(kind string) {
	if m == nil {
		return
	}
	m.pagesProcessed.WithLabelValues(kind).Inc()
}

func (m *Metrics) CandidatesExtracted(channel string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.candidatesTotal.WithLabelValues(channel).Add(float64(n))
}

func (m *Metrics) RecordAccepted() {
	if m == nil {
		return
	}
	m.recordsAccepted.Inc()
}

func (m *Metrics) RecordRejected(reason string) {
	if m == nil {
		return
	}
	m.recordsRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) TaskEnqueued(strategy string) {
	if m == nil {
		return
	}
	m.tasksEnqueued.WithLabelValues(strategy).Inc()
}

func (m *Metrics) TaskAbandoned() {
	if m == nil {
		return
	}
	m.tasksAbandoned.Inc()
}

func (m *Metrics) DetailTaskQueued() {
	if m == nil {
		return
	}
	m.detailTasksQueued.Inc()
}

func (m *Metrics) DegradedRerun() {
	if m == nil {
		return
	}
	m.degradedRerunsRun.Inc()
}
