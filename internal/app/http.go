package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"controlroom/internal/logger"
	"controlroom/internal/rbac"
	"controlroom/internal/telemetry"
	"controlroom/internal/workflow"
)

const (
	headerActorName = "X-Actor-Name"
	headerActorRole = "X-Actor-Role"
)

type HTTPServer struct {
	service     *Service
	corsOrigins []string
	telemetry   *telemetry.Telemetry
	logger      *logger.Logger
}

type ServerOption func(*HTTPServer)

// WithTelemetry adds request metrics and the /metrics endpoint.
func WithTelemetry(t *telemetry.Telemetry) ServerOption {
	return func(s *HTTPServer) { s.telemetry = t }
}

func NewHTTPServer(service *Service, corsOrigins []string, log *logger.Logger, opts ...ServerOption) *HTTPServer {
	if log == nil {
		log = logger.Nop()
	}
	s := &HTTPServer{service: service, corsOrigins: corsOrigins, logger: log.WithComponent("http")}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *HTTPServer) Handler() http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(s.requestLogger)
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID", headerActorName, headerActorRole},
		ExposedHeaders: []string{"Content-Disposition", "X-Request-ID"},
		MaxAge:         300,
	}))
	if s.telemetry != nil {
		router.Use(s.telemetry.Middleware)
		router.Method(http.MethodGet, "/metrics", s.telemetry.Handler())
	}

	router.Get("/api/health", s.handleHealth)
	router.Get("/api/ready", s.handleReady)

	router.Route("/api", func(api chi.Router) {
		api.Route("/controls", func(r chi.Router) {
			r.Get("/", s.handleListControls)
			r.Post("/import", s.handleImportControls)
			r.Get("/export", s.handleExportControls)
			r.Get("/{controlID}", s.handleGetControl)
			r.Put("/{controlID}", s.handleUpdateControl)
			r.Post("/{controlID}/status", s.handleChangeStatus)
			r.Post("/{controlID}/evidence-requests", s.handleRequestEvidence)
			r.Get("/{controlID}/messages", s.handleListMessages)
			r.Post("/{controlID}/comments", s.handleComment)
		})

		api.Route("/tasks", func(r chi.Router) {
			r.Get("/", s.handleListTasks)
			r.Post("/{taskID}/start", s.handleStartTask)
			r.Post("/{taskID}/resolve", s.handleResolveTask)
		})

		api.Route("/evidence", func(r chi.Router) {
			r.Get("/", s.handleListEvidence)
			r.Post("/", s.handleUploadEvidence)
			r.Get("/{evidenceID}/file", s.handleEvidenceFile)
			r.Post("/{evidenceID}/link", s.handleEvidenceLink)
		})
		api.Get("/files/{token}", s.handleEvidenceFileByLink)

		api.Get("/frameworks", s.handleListFrameworks)
		api.Get("/frameworks/{frameworkID}/groups", s.handleCriteriaGroups)
		api.Get("/criteria", s.handleControlCriteria)
		api.Get("/metrics/summary", s.handleSummary)
		api.Get("/reports/readiness", s.handleReport)
		api.Get("/search", s.handleSearch)
	})

	router.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	return router
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	results, err := s.service.Ping(ctx)
	checks := make(map[string]any, len(results))
	for name, checkErr := range results {
		if checkErr != nil {
			checks[name] = map[string]any{"status": "error", "error": checkErr.Error()}
			continue
		}
		checks[name] = map[string]any{"status": "ok"}
	}

	status, statusCode := "ready", http.StatusOK
	if err != nil {
		status, statusCode = "not_ready", http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, map[string]any{
		"ok":     err == nil,
		"status": status,
		"checks": checks,
	})
}

// requestLogger logs one line per request with the chi request ID.
func (s *HTTPServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		defer func() {
			s.logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("actor", r.Header.Get(headerActorName)).
				Msg("request completed")
		}()

		next.ServeHTTP(ww, r)
	})
}

// actorFrom reads the identity supplied by the upstream auth collaborator.
// An unknown role is kept as-is so the workflow rejects it.
func actorFrom(r *http.Request) workflow.Actor {
	name := strings.TrimSpace(r.Header.Get(headerActorName))
	raw := r.Header.Get(headerActorRole)
	role, ok := rbac.Parse(raw)
	if !ok {
		role = rbac.Role(strings.TrimSpace(raw))
	}
	return workflow.Actor{Name: name, Role: role}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("request_id", middleware.GetReqID(r.Context())).Msg("request failed")
	}
	writeError(w, status, code, message, details)
}

func writeAttachment(w http.ResponseWriter, contentType, filename string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func queryInt(r *http.Request, key string) int {
	value, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return value
}
