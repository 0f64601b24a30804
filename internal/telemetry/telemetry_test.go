package telemetry

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"controlroom/internal/entities"
	"controlroom/internal/logger"
	"controlroom/internal/rbac"
	"controlroom/internal/store"
	"controlroom/internal/workflow"
)

var _ workflow.Recorder = (*Telemetry)(nil)

// metricValue finds the sample of name whose labels include label=value
// (pass an empty label for unlabelled metrics).
func metricValue(t *testing.T, reg *prometheus.Registry, name, label, value string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			matched := label == ""
			for _, lp := range m.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == value {
					matched = true
				}
			}
			if !matched {
				continue
			}
			switch {
			case m.GetGauge() != nil:
				return m.GetGauge().GetValue()
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue()
			}
		}
	}
	t.Fatalf("metric %s{%s=%q} not found", name, label, value)
	return 0
}

func newTestTelemetry(t *testing.T) (*Telemetry, *entities.Store) {
	t.Helper()
	s := entities.Open(context.Background(), store.NewMemoryBackend(), nil, logger.Nop())
	t.Cleanup(s.Close)
	return New(s), s
}

func TestCollectionGaugesFollowStore(t *testing.T) {
	tel, s := newTestTelemetry(t)
	reg := tel.Registry()

	assert.Equal(t, 4.0, metricValue(t, reg, "controlroom_controls", "status", "Accepted"))
	assert.Equal(t, 2.0, metricValue(t, reg, "controlroom_controls", "status", "Additional Evidence Needed"))
	assert.Equal(t, 33.0, metricValue(t, reg, "controlroom_compliance_score_percent", "", ""))
	assert.Equal(t, 7.0, metricValue(t, reg, "controlroom_evidence", "status", "Current"))
	assert.Equal(t, 0.0, metricValue(t, reg, "controlroom_open_tasks", "", ""))

	_, err := s.UpdateControlStatus(context.Background(), "CTL-002", store.StatusAccepted)
	require.NoError(t, err)

	assert.Equal(t, 5.0, metricValue(t, reg, "controlroom_controls", "status", "Accepted"))
	assert.Equal(t, 42.0, metricValue(t, reg, "controlroom_compliance_score_percent", "", ""))
}

func TestRecorderCounters(t *testing.T) {
	tel, _ := newTestTelemetry(t)

	tel.StatusChanged(store.StatusNeedsReview, store.StatusAccepted, workflow.CauseSelector)
	tel.StatusChanged(store.StatusNeedsReview, store.StatusAccepted, workflow.CauseSelector)
	tel.Denied(rbac.RoleClient, "client cannot leave Accepted")
	tel.TaskChanged(store.TaskResolved)

	reg := tel.Registry()
	assert.Equal(t, 2.0, metricValue(t, reg, "controlroom_status_transitions_total", "cause", "selector"))
	assert.Equal(t, 1.0, metricValue(t, reg, "controlroom_authorization_denied_total", "role", "client"))
	assert.Equal(t, 1.0, metricValue(t, reg, "controlroom_task_transitions_total", "status", "resolved"))
}

func TestMiddlewareAndHandler(t *testing.T) {
	tel, _ := newTestTelemetry(t)

	r := chi.NewRouter()
	r.Use(tel.Middleware)
	r.Get("/controls/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Handle("/metrics", tel.Handler())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/controls/CTL-001", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)

	assert.Equal(t, 1.0, metricValue(t, tel.Registry(), "controlroom_http_requests_total", "route", "/controls/{id}"))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "controlroom_controls{status=\"Needs Review\"} 5")
}
