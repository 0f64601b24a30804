package app

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"controlroom/internal/artifacts"
	"controlroom/internal/entities"
	"controlroom/internal/export"
	"controlroom/internal/search"
	"controlroom/internal/store"
	"controlroom/internal/transfer"
)

func (s *HTTPServer) handleListControls(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	controls, err := s.service.ListControls(actorFrom(r), ControlFilter{
		Status:    query.Get("status"),
		Category:  query.Get("category"),
		Framework: query.Get("framework"),
		Query:     query.Get("q"),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"controls": controls})
}

func (s *HTTPServer) handleGetControl(w http.ResponseWriter, r *http.Request) {
	detail, err := s.service.ControlDetail(actorFrom(r), chi.URLParam(r, "controlID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *HTTPServer) handleUpdateControl(w http.ResponseWriter, r *http.Request) {
	var body store.Control
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	body.ID = chi.URLParam(r, "controlID")
	updated, err := s.service.UpdateControl(r.Context(), actorFrom(r), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"control": updated})
}

func (s *HTTPServer) handleChangeStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status string `json:"status"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	result, err := s.service.ChangeStatus(r.Context(), actorFrom(r), chi.URLParam(r, "controlID"), store.ControlStatus(body.Status))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleRequestEvidence(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Message string `json:"message"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	result, err := s.service.RequestEvidence(r.Context(), actorFrom(r), chi.URLParam(r, "controlID"), body.Message)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *HTTPServer) handleListMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := s.service.Messages(actorFrom(r), chi.URLParam(r, "controlID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

func (s *HTTPServer) handleComment(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Content  string   `json:"content"`
		Mentions []string `json:"mentions"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	message, err := s.service.Comment(r.Context(), actorFrom(r), chi.URLParam(r, "controlID"), body.Content, body.Mentions)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": message})
}

func (s *HTTPServer) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.service.Tasks(actorFrom(r), r.URL.Query().Get("open") == "true")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (s *HTTPServer) handleStartTask(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.StartTask(r.Context(), actorFrom(r), chi.URLParam(r, "taskID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleResolveTask(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.ResolveTask(r.Context(), actorFrom(r), chi.URLParam(r, "taskID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleListEvidence(w http.ResponseWriter, r *http.Request) {
	evidence, err := s.service.Evidence(actorFrom(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"evidence": evidence})
}

func (s *HTTPServer) handleUploadEvidence(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "multipart form with a file field is required", nil)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "file field is required", nil)
		return
	}
	defer file.Close()

	evidenceType, ok := store.ParseEvidenceType(r.FormValue("type"))
	if !ok {
		evidenceType = store.EvidenceDocument
	}
	var controlIDs []string
	for _, id := range strings.Split(r.FormValue("controlIds"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			controlIDs = append(controlIDs, id)
		}
	}

	evidence, err := s.service.UploadEvidence(r.Context(), actorFrom(r), Upload{
		Name:        r.FormValue("name"),
		Description: r.FormValue("description"),
		Type:        evidenceType,
		ControlIDs:  controlIDs,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Body:        file,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"evidence": evidence})
}

func (s *HTTPServer) handleEvidenceFile(w http.ResponseWriter, r *http.Request) {
	body, object, err := s.service.EvidenceFile(r.Context(), actorFrom(r), chi.URLParam(r, "evidenceID"))
	s.serveArtifact(w, r, body, object, err)
}

func (s *HTTPServer) handleEvidenceFileByLink(w http.ResponseWriter, r *http.Request) {
	body, object, err := s.service.EvidenceFileByLink(r.Context(), chi.URLParam(r, "token"))
	s.serveArtifact(w, r, body, object, err)
}

func (s *HTTPServer) handleEvidenceLink(w http.ResponseWriter, r *http.Request) {
	link, err := s.service.EvidenceLink(actorFrom(r), chi.URLParam(r, "evidenceID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, link)
}

func (s *HTTPServer) serveArtifact(w http.ResponseWriter, r *http.Request, body io.ReadCloser, object artifacts.Object, err error) {
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	name := object.Key[strings.LastIndex(object.Key, "/")+1:]
	w.Header().Set("X-Content-Digest", "blake2b-256="+object.Digest)
	writeAttachment(w, object.ContentType, name, data)
}

func (s *HTTPServer) handleImportControls(w http.ResponseWriter, r *http.Request) {
	var (
		body     io.Reader = r.Body
		filename string
	)
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid multipart form", nil)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", "file field is required", nil)
			return
		}
		defer file.Close()
		body, filename, contentType = file, header.Filename, header.Header.Get("Content-Type")
	}

	var (
		format transfer.Format
		err    error
	)
	if raw := r.URL.Query().Get("format"); raw != "" {
		format, err = transfer.ParseFormat(raw)
	} else {
		format, err = transfer.DetectFormat(filename, contentType)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}

	result, err := s.service.ImportControls(r.Context(), actorFrom(r), body, format, entities.ImportMode(r.URL.Query().Get("mode")))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleExportControls(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("format")
	if raw == "" {
		raw = string(transfer.FormatCSV)
	}
	format, err := transfer.ParseFormat(raw)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	data, err := s.service.ExportControls(actorFrom(r), format)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeAttachment(w, format.ContentType(), "controls."+string(format), data)
}

func (s *HTTPServer) handleListFrameworks(w http.ResponseWriter, r *http.Request) {
	frameworks, err := s.service.Frameworks(actorFrom(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"frameworks": frameworks})
}

func (s *HTTPServer) handleCriteriaGroups(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.CriteriaGroups(actorFrom(r), chi.URLParam(r, "frameworkID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleControlCriteria(w http.ResponseWriter, r *http.Request) {
	index, err := s.service.ControlCriteria(actorFrom(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"criteria": index})
}

func (s *HTTPServer) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.service.Summary(actorFrom(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *HTTPServer) handleReport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	result, err := s.service.Report(r.Context(), actorFrom(r), r.URL.Query().Get("framework"), format)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeAttachment(w, result.MimeType, result.Filename, result.Data)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	response, err := s.service.Search(r.Context(), actorFrom(r), search.Query{
		Text:         query.Get("q"),
		FilterType:   search.ResultType(query.Get("type")),
		FilterStatus: query.Get("status"),
		Limit:        queryInt(r, "limit"),
		Offset:       queryInt(r, "offset"),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response)
}
