package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"controlroom/internal/artifacts"
	"controlroom/internal/config"
	"controlroom/internal/entities"
	"controlroom/internal/export"
	"controlroom/internal/logger"
	"controlroom/internal/search"
	"controlroom/internal/store"
	"controlroom/internal/telemetry"
	"controlroom/internal/transfer"
	"controlroom/internal/workflow"
)

type fakePinger struct {
	err error
}

func (f fakePinger) Ping(context.Context) error { return f.err }

type harness struct {
	store     *entities.Store
	artifacts *artifacts.MemoryStore
	handler   http.Handler
}

func newHarness(t *testing.T, backendErr error) *harness {
	t.Helper()
	log := logger.Nop()
	s := entities.Open(context.Background(), store.NewMemoryBackend(), nil, log)
	t.Cleanup(s.Close)

	tel := telemetry.New(s)
	blobs := artifacts.NewMemoryStore()
	svc := New(config.Config{LiveFramework: "soc2"}, Dependencies{
		Store:     s,
		Backend:   fakePinger{err: backendErr},
		Workflow:  workflow.NewEngine(s, log, workflow.WithRecorder(tel)),
		Artifacts: blobs,
		Search:    search.NewService(nil, nil, search.NewLocal(s), log),
		Export: export.NewService(s, log, export.WithPDFRenderer(func(context.Context, string) ([]byte, error) {
			return []byte("%PDF"), nil
		})),
		Logger: log,
	})
	server := NewHTTPServer(svc, []string{"*"}, log, WithTelemetry(tel))
	return &harness{store: s, artifacts: blobs, handler: server.Handler()}
}

func (h *harness) do(t *testing.T, method, path, role string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(v)
	default:
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if role != "" {
		req.Header.Set(headerActorRole, role)
		req.Header.Set(headerActorName, map[string]string{"client": "Sarah Chen", "auditor": "Jordan Reyes"}[role])
	}
	rr := httptest.NewRecorder()
	h.handler.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, target any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), target), rr.Body.String())
}

func TestHealthEndpoint(t *testing.T) {
	h := newHarness(t, nil)

	rr := h.do(t, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"ok":true}`, rr.Body.String())
}

func TestReadyEndpoint(t *testing.T) {
	rr := newHarness(t, nil).do(t, http.MethodGet, "/api/ready", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = newHarness(t, errors.New("connection refused")).do(t, http.MethodGet, "/api/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	var body struct {
		OK     bool                      `json:"ok"`
		Status string                    `json:"status"`
		Checks map[string]map[string]any `json:"checks"`
	}
	decode(t, rr, &body)
	assert.False(t, body.OK)
	assert.Equal(t, "not_ready", body.Status)
	assert.Equal(t, "error", body.Checks["storage"]["status"])
	assert.Equal(t, "ok", body.Checks["artifacts"]["status"])
}

func TestRequestsWithoutRoleAreRejected(t *testing.T) {
	h := newHarness(t, nil)

	rr := h.do(t, http.MethodGet, "/api/controls", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = h.do(t, http.MethodPost, "/api/controls/CTL-004/status", "viewer", map[string]string{"status": "Accepted"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	var body map[string]any
	decode(t, rr, &body)
	assert.Equal(t, "UNKNOWN_ROLE", body["code"])
}

func TestListControlsFilters(t *testing.T) {
	h := newHarness(t, nil)

	rr := h.do(t, http.MethodGet, "/api/controls?status=Accepted", "client", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Controls []store.Control `json:"controls"`
	}
	decode(t, rr, &body)
	require.Len(t, body.Controls, 4)
	for _, c := range body.Controls {
		assert.Equal(t, store.StatusAccepted, c.Status)
	}

	rr = h.do(t, http.MethodGet, "/api/controls?framework=gdpr&q=retention", "auditor", nil)
	decode(t, rr, &body)
	require.Len(t, body.Controls, 1)
	assert.Equal(t, "CTL-012", body.Controls[0].ID)
}

func TestControlDetailResolvesDanglingEvidence(t *testing.T) {
	h := newHarness(t, nil)

	rr := h.do(t, http.MethodGet, "/api/controls/CTL-009", "client", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var detail ControlDetail
	decode(t, rr, &detail)
	require.Len(t, detail.Evidence, 2)
	assert.False(t, detail.Evidence[0].Missing)
	assert.Equal(t, "EV-404", detail.Evidence[1].ID)
	assert.True(t, detail.Evidence[1].Missing)
	assert.Equal(t, []store.ControlStatus{store.StatusNotApplicable}, detail.AllowedTargets)

	rr = h.do(t, http.MethodGet, "/api/controls/CTL-999", "client", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestClientCannotUnlockAcceptedControl(t *testing.T) {
	h := newHarness(t, nil)

	for _, target := range []string{"Needs Review", "Not Applicable", "Additional Evidence Needed"} {
		rr := h.do(t, http.MethodPost, "/api/controls/CTL-001/status", "client", map[string]string{"status": target})
		assert.Equal(t, http.StatusForbidden, rr.Code, target)
	}

	control, err := h.store.Control("CTL-001")
	require.NoError(t, err)
	assert.Equal(t, store.StatusAccepted, control.Status)
	assert.Empty(t, h.store.MessagesForControl("CTL-001"))
}

func TestDirectMoveToEvidenceNeededIsRejected(t *testing.T) {
	h := newHarness(t, nil)

	rr := h.do(t, http.MethodPost, "/api/controls/CTL-004/status", "auditor", map[string]string{"status": "Additional Evidence Needed"})
	assert.Equal(t, http.StatusConflict, rr.Code)
	var body map[string]any
	decode(t, rr, &body)
	assert.Equal(t, "EVIDENCE_REQUEST_REQUIRED", body["code"])
}

func TestEvidenceRequestRoundTrip(t *testing.T) {
	h := newHarness(t, nil)

	rr := h.do(t, http.MethodPost, "/api/controls/CTL-004/evidence-requests", "auditor", map[string]string{"message": "Attach Q2 change tickets"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var requested workflow.StatusResult
	decode(t, rr, &requested)
	require.NotNil(t, requested.Task)
	assert.Equal(t, store.StatusAdditionalEvidenceNeeded, requested.Control.Status)
	assert.Len(t, requested.Messages, 2)

	rr = h.do(t, http.MethodGet, "/api/tasks?open=true", "client", nil)
	var tasks struct {
		Tasks []store.ControlTask `json:"tasks"`
	}
	decode(t, rr, &tasks)
	require.Len(t, tasks.Tasks, 1)
	assert.Equal(t, "David Kim", tasks.Tasks[0].AssignedTo)

	rr = h.do(t, http.MethodPost, "/api/tasks/"+requested.Task.ID+"/resolve", "auditor", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = h.do(t, http.MethodPost, "/api/tasks/"+requested.Task.ID+"/resolve", "client", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var resolved workflow.TaskResult
	decode(t, rr, &resolved)
	assert.Equal(t, store.TaskResolved, resolved.Task.Status)
	require.NotNil(t, resolved.Status)
	assert.Equal(t, store.StatusNeedsReview, resolved.Status.Control.Status)

	rr = h.do(t, http.MethodGet, "/api/controls/CTL-004/messages", "client", nil)
	var messages struct {
		Messages []store.ControlMessage `json:"messages"`
	}
	decode(t, rr, &messages)
	require.Len(t, messages.Messages, 3)
	assert.Equal(t, store.MessageEvidenceRequest, messages.Messages[0].Type)
	assert.Equal(t, store.MessageStatusChange, messages.Messages[2].Type)
}

func TestCommentValidation(t *testing.T) {
	h := newHarness(t, nil)

	rr := h.do(t, http.MethodPost, "/api/controls/CTL-004/comments", "client", map[string]any{"content": "  "})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = h.do(t, http.MethodPost, "/api/controls/CTL-004/comments", "client", map[string]any{"content": "Done, see @David", "mentions": []string{"David Kim"}})
	assert.Equal(t, http.StatusCreated, rr.Code)

	rr = h.do(t, http.MethodPost, "/api/controls/CTL-004/comments", "client", []byte("{not json"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestImportAndExportControls(t *testing.T) {
	h := newHarness(t, nil)

	var csv bytes.Buffer
	require.NoError(t, transfer.WriteCSV(&csv, []store.Control{{
		ID: "CTL-100", Name: "Logging, \"central\"", Category: store.CategoryNetworkSecurity,
		Status: store.StatusNeedsReview, Type: store.ControlAutomated, Frameworks: []string{"soc2"},
	}}))

	rr := h.do(t, http.MethodPost, "/api/controls/import?format=csv", "auditor", csv.Bytes())
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = h.do(t, http.MethodPost, "/api/controls/import?format=csv&mode=merge", "client", csv.Bytes())
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var result entities.ImportResult
	decode(t, rr, &result)
	assert.Equal(t, entities.ImportResult{Added: 1, Updated: 0, Total: 13}, result)

	rr = h.do(t, http.MethodPost, "/api/controls/import?format=json", "client", []byte("{broken"))
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Len(t, h.store.Controls(), 13)

	rr = h.do(t, http.MethodPost, "/api/controls/import?format=pdf", "client", csv.Bytes())
	assert.Equal(t, http.StatusUnsupportedMediaType, rr.Code)

	rr = h.do(t, http.MethodGet, "/api/controls/export?format=csv", "auditor", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/csv", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "controls.csv")
	assert.Contains(t, rr.Body.String(), `"Logging, ""central"""`)
}

func TestUploadEvidenceStoresArtifact(t *testing.T) {
	h := newHarness(t, nil)

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	require.NoError(t, form.WriteField("name", "Q2 change tickets"))
	require.NoError(t, form.WriteField("type", "Report"))
	require.NoError(t, form.WriteField("controlIds", "CTL-004, CTL-404"))
	part, err := form.CreateFormFile("file", "tickets.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte("id,title\n1,a"))
	require.NoError(t, err)
	require.NoError(t, form.Close())

	upload := func(role string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/evidence", bytes.NewReader(body.Bytes()))
		req.Header.Set("Content-Type", form.FormDataContentType())
		req.Header.Set(headerActorRole, role)
		req.Header.Set(headerActorName, "Sarah Chen")
		rr := httptest.NewRecorder()
		h.handler.ServeHTTP(rr, req)
		return rr
	}

	assert.Equal(t, http.StatusForbidden, upload("auditor").Code)

	rr := upload("client")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created struct {
		Evidence store.Evidence `json:"evidence"`
	}
	decode(t, rr, &created)
	evidence := created.Evidence
	assert.Equal(t, store.EvidenceReport, evidence.Type)
	assert.Equal(t, store.EvidencePendingReview, evidence.Status)
	assert.Equal(t, "Sarah Chen", evidence.UploadedBy)
	assert.Equal(t, artifacts.Digest([]byte("id,title\n1,a")), evidence.Digest)
	assert.Equal(t, "12 B", evidence.FileSize)
	assert.True(t, strings.HasSuffix(evidence.ObjectKey, "/tickets.csv"))

	control, err := h.store.Control("CTL-004")
	require.NoError(t, err)
	assert.Contains(t, control.EvidenceIDs, evidence.ID)

	rr = h.do(t, http.MethodGet, "/api/evidence/"+evidence.ID+"/file", "auditor", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "id,title\n1,a", rr.Body.String())
	assert.Equal(t, "blake2b-256="+evidence.Digest, rr.Header().Get("X-Content-Digest"))

	rr = h.do(t, http.MethodGet, "/api/evidence/EV-001/file", "auditor", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = h.do(t, http.MethodPost, "/api/evidence/"+evidence.ID+"/link", "auditor", nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var link DownloadLink
	decode(t, rr, &link)
	assert.True(t, strings.HasPrefix(link.URL, "/api/files/"))
	assert.False(t, link.ExpiresAt.IsZero())

	rr = h.do(t, http.MethodGet, link.URL, "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "id,title\n1,a", rr.Body.String())

	rr = h.do(t, http.MethodGet, link.URL+"x", "", nil)
	assert.Equal(t, http.StatusGone, rr.Code)

	rr = h.do(t, http.MethodPost, "/api/evidence/"+evidence.ID+"/link", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestCriteriaGroupsAndSummary(t *testing.T) {
	h := newHarness(t, nil)

	rr := h.do(t, http.MethodGet, "/api/frameworks/soc2/groups", "auditor", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var view CriteriaView
	decode(t, rr, &view)
	assert.Equal(t, map[string][]string{"CC9.2": {"CTL-099"}}, view.UnknownRefs)
	require.NotEmpty(t, view.Groups)
	last := view.Groups[len(view.Groups)-1]
	assert.Equal(t, "unmapped", last.ID)

	rr = h.do(t, http.MethodGet, "/api/frameworks/pci/groups", "auditor", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = h.do(t, http.MethodGet, "/api/metrics/summary", "client", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var summary Summary
	decode(t, rr, &summary)
	assert.Equal(t, 33, summary.ComplianceScore)
	assert.Equal(t, 12, summary.Counts.Total)
	assert.Len(t, summary.Categories, 12)
	assert.Equal(t, 1, summary.AuditHub.ActiveAudits)
}

func TestReportAndSearch(t *testing.T) {
	h := newHarness(t, nil)

	rr := h.do(t, http.MethodGet, "/api/reports/readiness?framework=soc2", "auditor", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/html; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Body.String(), "SOC 2 audit readiness")

	rr = h.do(t, http.MethodGet, "/api/reports/readiness?format=pdf", "auditor", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "%PDF", rr.Body.String())

	rr = h.do(t, http.MethodGet, "/api/reports/readiness?format=docx", "auditor", nil)
	assert.Equal(t, http.StatusUnsupportedMediaType, rr.Code)

	rr = h.do(t, http.MethodGet, "/api/search?q=encryption", "client", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var response search.Response
	decode(t, rr, &response)
	assert.Equal(t, "memory", response.Engine)
	require.NotEmpty(t, response.Results)
	assert.Equal(t, "CTL-003", response.Results[0].ID)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t, nil)

	h.do(t, http.MethodPost, "/api/controls/CTL-004/status", "auditor", map[string]string{"status": "Accepted"})

	rr := h.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `controlroom_status_transitions_total{cause="selector",from="Needs Review",to="Accepted"} 1`)
	assert.Contains(t, rr.Body.String(), `controlroom_controls{status="Accepted"} 5`)
}
