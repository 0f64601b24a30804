package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"controlroom/internal/artifacts"
	"controlroom/internal/config"
	"controlroom/internal/criteria"
	"controlroom/internal/entities"
	"controlroom/internal/export"
	"controlroom/internal/links"
	"controlroom/internal/logger"
	"controlroom/internal/metrics"
	"controlroom/internal/rbac"
	"controlroom/internal/search"
	"controlroom/internal/store"
	"controlroom/internal/transfer"
	"controlroom/internal/util"
	"controlroom/internal/workflow"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies are the collaborators the service composes. Search and Export
// may be nil; Artifacts defaults to an in-memory store and Links to a signer
// built from the config.
type Dependencies struct {
	Store     *entities.Store
	Backend   pinger
	Workflow  *workflow.Engine
	Artifacts artifacts.Store
	Search    *search.Service
	Export    *export.Service
	Links     *links.Signer
	Logger    *logger.Logger
}

type Service struct {
	cfg       config.Config
	store     *entities.Store
	backend   pinger
	workflow  *workflow.Engine
	artifacts artifacts.Store
	search    *search.Service
	export    *export.Service
	links     *links.Signer
	logger    *logger.Logger
	now       func() time.Time
}

func New(cfg config.Config, deps Dependencies) *Service {
	log := deps.Logger
	if log == nil {
		log = logger.Nop()
	}
	blobs := deps.Artifacts
	if blobs == nil {
		blobs = artifacts.NewMemoryStore()
	}
	signer := deps.Links
	if signer == nil {
		signer = links.NewSigner([]byte(cfg.LinkSecret), cfg.LinkTTL)
	}
	if cfg.LiveFramework == "" {
		cfg.LiveFramework = deps.Store.Settings().PrimaryFrameworkID
	}
	return &Service{
		cfg:       cfg,
		store:     deps.Store,
		backend:   deps.Backend,
		workflow:  deps.Workflow,
		artifacts: blobs,
		search:    deps.Search,
		export:    deps.Export,
		links:     signer,
		logger:    log.WithComponent("app"),
		now:       time.Now,
	}
}

// Ping checks the health of service dependencies. The returned map holds one
// entry per dependency; the error is the first failure.
func (s *Service) Ping(ctx context.Context) (map[string]error, error) {
	checks := map[string]error{}
	if s.backend != nil {
		checks["storage"] = s.backend.Ping(ctx)
	}
	checks["artifacts"] = s.artifacts.Ping(ctx)

	for _, name := range []string{"storage", "artifacts"} {
		if err := checks[name]; err != nil {
			return checks, fmt.Errorf("%s: %w", name, err)
		}
	}
	return checks, nil
}

func requireRole(actor workflow.Actor, action rbac.Action) error {
	if !actor.Role.Valid() {
		return workflow.ErrUnknownRole
	}
	if !rbac.Can(actor.Role, action) {
		return domainError(http.StatusForbidden, "FORBIDDEN", fmt.Sprintf("role %s cannot %s", actor.Role, action), nil)
	}
	return nil
}

// ControlFilter narrows the control list. Empty fields match everything.
type ControlFilter struct {
	Status    string
	Category  string
	Framework string
	Query     string
}

func (f ControlFilter) match(c store.Control) bool {
	if f.Status != "" && string(c.Status) != f.Status {
		return false
	}
	if f.Category != "" && string(c.Category) != f.Category {
		return false
	}
	if f.Framework != "" {
		found := false
		for _, fw := range c.Frameworks {
			if fw == f.Framework {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		return strings.Contains(strings.ToLower(c.ID), q) ||
			strings.Contains(strings.ToLower(c.Name), q) ||
			strings.Contains(strings.ToLower(c.Owner), q)
	}
	return true
}

func (s *Service) ListControls(actor workflow.Actor, filter ControlFilter) ([]store.Control, error) {
	if err := requireRole(actor, rbac.ActionRead); err != nil {
		return nil, err
	}
	controls := s.store.Controls()
	out := make([]store.Control, 0, len(controls))
	for _, c := range controls {
		if filter.match(c) {
			out = append(out, c)
		}
	}
	return criteria.SortControls(out, criteria.BuildControlToCriteriaMap(s.store.Frameworks())), nil
}

// ControlDetail is everything the control drawer shows.
type ControlDetail struct {
	Control        store.Control          `json:"control"`
	Codes          []string               `json:"codes"`
	Evidence       []entities.EvidenceRef `json:"evidence"`
	Messages       []store.ControlMessage `json:"messages"`
	Tasks          []store.ControlTask    `json:"tasks"`
	AllowedTargets []store.ControlStatus  `json:"allowedTargets"`
}

func (s *Service) ControlDetail(actor workflow.Actor, id string) (ControlDetail, error) {
	if err := requireRole(actor, rbac.ActionRead); err != nil {
		return ControlDetail{}, err
	}
	control, err := s.store.Control(id)
	if err != nil {
		return ControlDetail{}, err
	}
	index := criteria.BuildControlToCriteriaMap(s.store.Frameworks())
	return ControlDetail{
		Control:        control,
		Codes:          criteria.SortCodes(index.Codes(control.ID)),
		Evidence:       s.store.ResolveEvidence(control),
		Messages:       s.store.MessagesForControl(control.ID),
		Tasks:          s.store.TasksForControl(control.ID),
		AllowedTargets: workflow.AllowedTargets(actor.Role, control.Status),
	}, nil
}

// UpdateControl applies a direct edit. Status is never changed here.
func (s *Service) UpdateControl(ctx context.Context, actor workflow.Actor, edit store.Control) (store.Control, error) {
	if err := requireRole(actor, rbac.ActionImport); err != nil {
		return store.Control{}, err
	}
	updated, err := s.store.UpdateControl(ctx, edit)
	if err != nil {
		return store.Control{}, err
	}
	s.reindex()
	return updated, nil
}

func (s *Service) ChangeStatus(ctx context.Context, actor workflow.Actor, id string, target store.ControlStatus) (workflow.StatusResult, error) {
	result, err := s.workflow.ChangeStatus(ctx, actor, id, target)
	if err != nil {
		return workflow.StatusResult{}, err
	}
	if result.Changed {
		s.reindex()
	}
	return result, nil
}

func (s *Service) RequestEvidence(ctx context.Context, actor workflow.Actor, id, message string) (workflow.StatusResult, error) {
	result, err := s.workflow.RequestEvidence(ctx, actor, id, message)
	if err != nil {
		return workflow.StatusResult{}, err
	}
	s.reindex()
	return result, nil
}

func (s *Service) Comment(ctx context.Context, actor workflow.Actor, id, text string, mentions []string) (store.ControlMessage, error) {
	return s.workflow.Comment(ctx, actor, id, text, mentions)
}

func (s *Service) Messages(actor workflow.Actor, controlID string) ([]store.ControlMessage, error) {
	if err := requireRole(actor, rbac.ActionRead); err != nil {
		return nil, err
	}
	if _, err := s.store.Control(controlID); err != nil {
		return nil, err
	}
	return s.store.MessagesForControl(controlID), nil
}

func (s *Service) Tasks(actor workflow.Actor, openOnly bool) ([]store.ControlTask, error) {
	if err := requireRole(actor, rbac.ActionRead); err != nil {
		return nil, err
	}
	if openOnly {
		return s.store.OpenTasks(), nil
	}
	return s.store.Tasks(), nil
}

func (s *Service) StartTask(ctx context.Context, actor workflow.Actor, taskID string) (workflow.TaskResult, error) {
	return s.workflow.StartTask(ctx, actor, taskID)
}

func (s *Service) ResolveTask(ctx context.Context, actor workflow.Actor, taskID string) (workflow.TaskResult, error) {
	result, err := s.workflow.ResolveTask(ctx, actor, taskID)
	if err != nil {
		return workflow.TaskResult{}, err
	}
	if result.Status != nil && result.Status.Changed {
		s.reindex()
	}
	return result, nil
}

func (s *Service) Frameworks(actor workflow.Actor) ([]store.Framework, error) {
	if err := requireRole(actor, rbac.ActionRead); err != nil {
		return nil, err
	}
	return s.store.Frameworks(), nil
}

// CriteriaView is the grouped control view of one framework.
type CriteriaView struct {
	FrameworkID string              `json:"frameworkId"`
	Groups      []CriteriaGroupView `json:"groups"`
	UnknownRefs map[string][]string `json:"unknownControlRefs"`
	Coverage    metrics.Coverage    `json:"coverage"`
}

type CriteriaGroupView struct {
	criteria.Group
	Counts metrics.StatusCounts `json:"counts"`
}

func (s *Service) CriteriaGroups(actor workflow.Actor, frameworkID string) (CriteriaView, error) {
	if err := requireRole(actor, rbac.ActionRead); err != nil {
		return CriteriaView{}, err
	}
	framework, ok := s.store.Framework(frameworkID)
	if !ok {
		return CriteriaView{}, fmt.Errorf("%w: %s", export.ErrUnknownFramework, frameworkID)
	}
	frameworks := s.store.Frameworks()
	controls := s.store.Controls()
	index := criteria.BuildControlToCriteriaMap(frameworks)

	view := CriteriaView{
		FrameworkID: framework.ID,
		Groups:      []CriteriaGroupView{},
		UnknownRefs: criteria.UnknownControlRefs([]store.Framework{framework}, controls),
		Coverage:    metrics.RequirementCoverage(framework),
	}
	for _, group := range criteria.BuildCriteriaGroups(frameworks, framework.ID, controls, index) {
		view.Groups = append(view.Groups, CriteriaGroupView{Group: group, Counts: metrics.GroupCounts(group)})
	}
	return view, nil
}

// ControlCriteria returns the sorted criteria codes of every control.
func (s *Service) ControlCriteria(actor workflow.Actor) (map[string][]string, error) {
	if err := requireRole(actor, rbac.ActionRead); err != nil {
		return nil, err
	}
	index := criteria.BuildControlToCriteriaMap(s.store.Frameworks())
	out := make(map[string][]string, len(index))
	for id := range index {
		out[id] = criteria.SortCodes(index.Codes(id))
	}
	return out, nil
}

// Summary backs the dashboard and audit hub pages.
type Summary struct {
	ComplianceScore int                     `json:"complianceScore"`
	Counts          metrics.StatusCounts    `json:"counts"`
	Categories      []metrics.CategoryCount `json:"categories"`
	Readiness       []metrics.Readiness     `json:"readiness"`
	AuditHub        metrics.AuditHubSummary `json:"auditHub"`
}

func (s *Service) Summary(actor workflow.Actor) (Summary, error) {
	if err := requireRole(actor, rbac.ActionRead); err != nil {
		return Summary{}, err
	}
	controls := s.store.Controls()
	return Summary{
		ComplianceScore: metrics.ComplianceScore(controls),
		Counts:          metrics.CountStatuses(controls),
		Categories:      metrics.CategoryBreakdown(controls),
		Readiness:       metrics.FrameworkReadiness(s.store.Frameworks(), s.cfg.LiveFramework, controls),
		AuditHub:        metrics.AuditHub(controls, s.store.Tasks(), s.store.Evidence(), s.store.Audits()),
	}, nil
}

func (s *Service) Evidence(actor workflow.Actor) ([]store.Evidence, error) {
	if err := requireRole(actor, rbac.ActionRead); err != nil {
		return nil, err
	}
	return s.store.Evidence(), nil
}

// Upload is one evidence file plus its descriptive fields.
type Upload struct {
	Name        string
	Description string
	Type        store.EvidenceType
	ControlIDs  []string
	Filename    string
	ContentType string
	Body        io.Reader
}

const maxUploadBytes = 32 << 20

// UploadEvidence stores the file body, then records the evidence with its
// digest and size and links it into the referenced controls.
func (s *Service) UploadEvidence(ctx context.Context, actor workflow.Actor, upload Upload) (store.Evidence, error) {
	if err := requireRole(actor, rbac.ActionUploadEvidence); err != nil {
		return store.Evidence{}, err
	}
	if strings.TrimSpace(upload.Name) == "" {
		upload.Name = upload.Filename
	}
	if strings.TrimSpace(upload.Name) == "" {
		return store.Evidence{}, fmt.Errorf("%w: name is required", entities.ErrInvalidEvidence)
	}
	if !upload.Type.Valid() {
		return store.Evidence{}, fmt.Errorf("%w: unknown type %q", entities.ErrInvalidEvidence, upload.Type)
	}

	data, err := io.ReadAll(io.LimitReader(upload.Body, maxUploadBytes+1))
	if err != nil {
		return store.Evidence{}, fmt.Errorf("read upload: %w", err)
	}
	if len(data) > maxUploadBytes {
		return store.Evidence{}, domainError(http.StatusRequestEntityTooLarge, "UPLOAD_TOO_LARGE", "upload exceeds 32 MB", nil)
	}

	id := util.NewID("ev")
	object, err := s.artifacts.Put(ctx, artifacts.ObjectKey(id, upload.Filename), data, upload.ContentType)
	if err != nil {
		return store.Evidence{}, err
	}

	evidence, err := s.store.AddEvidence(ctx, store.Evidence{
		ID:          id,
		Name:        strings.TrimSpace(upload.Name),
		Description: upload.Description,
		Type:        upload.Type,
		Status:      store.EvidencePendingReview,
		ControlIDs:  upload.ControlIDs,
		UploadedBy:  actor.Name,
		UploadDate:  s.now().UTC().Format("2006-01-02"),
		FileSize:    object.HumanSize(),
		MimeType:    object.ContentType,
		ObjectKey:   object.Key,
		Digest:      object.Digest,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("object_key", object.Key).Msg("evidence record failed after upload")
		return store.Evidence{}, err
	}
	s.reindex()
	return evidence, nil
}

// EvidenceFile opens the stored body of an uploaded evidence item.
func (s *Service) EvidenceFile(ctx context.Context, actor workflow.Actor, id string) (io.ReadCloser, artifacts.Object, error) {
	if err := requireRole(actor, rbac.ActionRead); err != nil {
		return nil, artifacts.Object{}, err
	}
	evidence, err := s.store.EvidenceByID(id)
	if err != nil {
		return nil, artifacts.Object{}, err
	}
	if evidence.ObjectKey == "" {
		return nil, artifacts.Object{}, fmt.Errorf("%w: %s has no stored file", artifacts.ErrNotFound, id)
	}
	return s.artifacts.Get(ctx, evidence.ObjectKey)
}

// DownloadLink is a signed, expiring URL path for an evidence file.
type DownloadLink struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *Service) EvidenceLink(actor workflow.Actor, id string) (DownloadLink, error) {
	if err := requireRole(actor, rbac.ActionRead); err != nil {
		return DownloadLink{}, err
	}
	evidence, err := s.store.EvidenceByID(id)
	if err != nil {
		return DownloadLink{}, err
	}
	if evidence.ObjectKey == "" {
		return DownloadLink{}, fmt.Errorf("%w: %s has no stored file", artifacts.ErrNotFound, id)
	}
	token, expires, err := s.links.Issue(evidence.ID, actor.Name, string(actor.Role))
	if err != nil {
		return DownloadLink{}, err
	}
	return DownloadLink{URL: "/api/files/" + token, ExpiresAt: expires.UTC()}, nil
}

// EvidenceFileByLink opens the file a download link points at. The link
// carries the identity it was issued to.
func (s *Service) EvidenceFileByLink(ctx context.Context, token string) (io.ReadCloser, artifacts.Object, error) {
	claims, err := s.links.Verify(token)
	if err != nil {
		return nil, artifacts.Object{}, err
	}
	role, _ := rbac.Parse(claims.Role)
	return s.EvidenceFile(ctx, workflow.Actor{Name: claims.Actor, Role: role}, claims.EvidenceID)
}

// ImportControls parses a bulk file and applies it all-or-nothing.
func (s *Service) ImportControls(ctx context.Context, actor workflow.Actor, body io.Reader, format transfer.Format, mode entities.ImportMode) (entities.ImportResult, error) {
	if err := requireRole(actor, rbac.ActionImport); err != nil {
		return entities.ImportResult{}, err
	}
	if mode == "" {
		mode = entities.ImportMerge
	}
	if mode != entities.ImportMerge && mode != entities.ImportReplace {
		return entities.ImportResult{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", fmt.Sprintf("unknown import mode %q", mode), nil)
	}
	controls, err := transfer.Import(body, format)
	if err != nil {
		var rowErr *transfer.RowError
		if errors.Is(err, transfer.ErrUnsupportedFormat) || errors.As(err, &rowErr) {
			return entities.ImportResult{}, err
		}
		return entities.ImportResult{}, domainError(http.StatusUnprocessableEntity, "IMPORT_INVALID", err.Error(), nil)
	}
	result, err := s.store.ImportControls(ctx, controls, mode)
	if err != nil {
		return entities.ImportResult{}, err
	}
	s.logger.Info().Str("actor", actor.Name).Str("mode", string(mode)).Int("added", result.Added).Int("updated", result.Updated).Msg("controls imported")
	s.reindex()
	return result, nil
}

func (s *Service) ExportControls(actor workflow.Actor, format transfer.Format) ([]byte, error) {
	if err := requireRole(actor, rbac.ActionRead); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := transfer.Export(&buf, format, s.store.Controls()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *Service) Report(ctx context.Context, actor workflow.Actor, frameworkID string, format export.Format) (*export.Result, error) {
	if err := requireRole(actor, rbac.ActionRead); err != nil {
		return nil, err
	}
	if s.export == nil {
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_DISABLED", "report export is not configured", nil)
	}
	return s.export.Export(ctx, export.Request{FrameworkID: frameworkID, Format: format, GeneratedBy: actor.Name})
}

func (s *Service) Search(ctx context.Context, actor workflow.Actor, q search.Query) (search.Response, error) {
	if err := requireRole(actor, rbac.ActionRead); err != nil {
		return search.Response{}, err
	}
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text, Engine: "none"}, nil
	}
	return s.search.Search(ctx, q), nil
}

func (s *Service) reindex() {
	if s.search != nil {
		s.search.Reindex(s.store.Controls(), s.store.Evidence())
	}
}
