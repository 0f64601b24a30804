// Package telemetry exposes Prometheus metrics for the compliance workspace.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"controlroom/internal/metrics"
	"controlroom/internal/rbac"
	"controlroom/internal/store"
	"controlroom/internal/workflow"
)

const namespace = "controlroom"

// Source is read on every scrape.
type Source interface {
	Controls() []store.Control
	Evidence() []store.Evidence
	OpenTasks() []store.ControlTask
}

// Telemetry owns the registry and every metric the service exports.
type Telemetry struct {
	registry *prometheus.Registry

	transitions *prometheus.CounterVec
	denials     *prometheus.CounterVec
	taskChanges *prometheus.CounterVec
	requests    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
}

// New registers the live collection gauges for source plus the workflow and
// HTTP counters on a fresh registry.
func New(source Source) *Telemetry {
	t := &Telemetry{
		registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_transitions_total",
			Help:      "Control status changes by previous status, new status and cause.",
		}, []string{"from", "to", "cause"}),
		denials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authorization_denied_total",
			Help:      "Workflow actions rejected by the role matrix.",
		}, []string{"role"}),
		taskChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_transitions_total",
			Help:      "Evidence request task changes by resulting status.",
		}, []string{"status"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern, method and status code.",
		}, []string{"route", "method", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	t.registry.MustRegister(
		t.transitions,
		t.denials,
		t.taskChanges,
		t.requests,
		t.latency,
		newCollectionCollector(source),
	)
	return t
}

// Registry is exposed for tests and for callers adding their own collectors.
func (t *Telemetry) Registry() *prometheus.Registry {
	return t.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (t *Telemetry) Handler() http.Handler {
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

// StatusChanged implements workflow.Recorder.
func (t *Telemetry) StatusChanged(from, to store.ControlStatus, cause workflow.Cause) {
	t.transitions.WithLabelValues(string(from), string(to), string(cause)).Inc()
}

// Denied implements workflow.Recorder.
func (t *Telemetry) Denied(role rbac.Role, _ string) {
	t.denials.WithLabelValues(string(role)).Inc()
}

// TaskChanged implements workflow.Recorder.
func (t *Telemetry) TaskChanged(status store.TaskStatus) {
	t.taskChanges.WithLabelValues(string(status)).Inc()
}

// Middleware records request counts and latency keyed by the chi route pattern.
func (t *Telemetry) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		t.requests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		t.latency.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// collectionCollector computes gauges from the live collections at scrape
// time, so the values never drift from the store.
type collectionCollector struct {
	source Source

	controls *prometheus.Desc
	score    *prometheus.Desc
	evidence *prometheus.Desc
	open     *prometheus.Desc
}

func newCollectionCollector(source Source) *collectionCollector {
	return &collectionCollector{
		source:   source,
		controls: prometheus.NewDesc(namespace+"_controls", "Controls by status.", []string{"status"}, nil),
		score:    prometheus.NewDesc(namespace+"_compliance_score_percent", "Share of accepted controls.", nil, nil),
		evidence: prometheus.NewDesc(namespace+"_evidence", "Evidence items by status.", []string{"status"}, nil),
		open:     prometheus.NewDesc(namespace+"_open_tasks", "Unresolved evidence request tasks.", nil, nil),
	}
}

func (c *collectionCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.controls
	ch <- c.score
	ch <- c.evidence
	ch <- c.open
}

func (c *collectionCollector) Collect(ch chan<- prometheus.Metric) {
	controls := c.source.Controls()
	byStatus := make(map[store.ControlStatus]int, len(store.ControlStatuses))
	for _, control := range controls {
		byStatus[control.Status]++
	}
	for _, status := range store.ControlStatuses {
		ch <- prometheus.MustNewConstMetric(c.controls, prometheus.GaugeValue, float64(byStatus[status]), string(status))
	}
	ch <- prometheus.MustNewConstMetric(c.score, prometheus.GaugeValue, float64(metrics.ComplianceScore(controls)))

	evidence := make(map[store.EvidenceStatus]int, len(store.EvidenceStatuses))
	for _, item := range c.source.Evidence() {
		evidence[item.Status]++
	}
	for _, status := range store.EvidenceStatuses {
		ch <- prometheus.MustNewConstMetric(c.evidence, prometheus.GaugeValue, float64(evidence[status]), string(status))
	}
	ch <- prometheus.MustNewConstMetric(c.open, prometheus.GaugeValue, float64(len(c.source.OpenTasks())))
}
