package export

import (
	"context"
	"fmt"
	"time"

	"controlroom/internal/criteria"
	"controlroom/internal/logger"
	"controlroom/internal/metrics"
	"controlroom/internal/store"
)

// DataStore defines the read access the report needs
type DataStore interface {
	Controls() []store.Control
	Evidence() []store.Evidence
	Frameworks() []store.Framework
	Framework(id string) (store.Framework, bool)
	OpenTasks() []store.ControlTask
	Tasks() []store.ControlTask
	Audits() []store.Audit
	Settings() store.Settings
}

// PDFRenderer turns rendered HTML into PDF bytes.
type PDFRenderer func(ctx context.Context, html string) ([]byte, error)

// Service builds audit readiness reports
type Service struct {
	store  DataStore
	pdf    PDFRenderer
	now    func() time.Time
	logger *logger.Logger
}

type Option func(*Service)

// WithPDFRenderer replaces the headless Chrome renderer.
func WithPDFRenderer(r PDFRenderer) Option {
	return func(s *Service) { s.pdf = r }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new export service
func NewService(store DataStore, log *logger.Logger, opts ...Option) *Service {
	s := &Service{
		store:  store,
		pdf:    renderChromePDF,
		now:    time.Now,
		logger: log.WithComponent("export"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BuildReport gathers the report data for one framework.
func (s *Service) BuildReport(frameworkID, generatedBy string) (Report, error) {
	settings := s.store.Settings()
	if frameworkID == "" {
		frameworkID = settings.PrimaryFrameworkID
	}
	framework, ok := s.store.Framework(frameworkID)
	if !ok {
		return Report{}, fmt.Errorf("%w: %s", ErrUnknownFramework, frameworkID)
	}

	frameworks := s.store.Frameworks()
	controls := s.store.Controls()
	inScope := metrics.ControlsForFramework(controls, framework.ID)
	index := criteria.BuildControlToCriteriaMap(frameworks)

	report := Report{
		Organization: settings.OrganizationName,
		Framework:    framework,
		GeneratedAt:  s.now().UTC(),
		GeneratedBy:  generatedBy,
		Score:        metrics.ComplianceScore(inScope),
		Counts:       metrics.CountStatuses(inScope),
		Coverage:     metrics.RequirementCoverage(framework),
		Hub:          metrics.AuditHub(controls, s.store.Tasks(), s.store.Evidence(), s.store.Audits()),
		UnknownRefs:  criteria.UnknownControlRefs([]store.Framework{framework}, controls),
	}

	for _, row := range metrics.FrameworkReadiness(frameworks, settings.PrimaryFrameworkID, controls) {
		if row.FrameworkID == framework.ID {
			report.Readiness = row
		}
	}

	for _, group := range criteria.BuildCriteriaGroups(frameworks, framework.ID, inScope, index) {
		if len(group.Controls) == 0 {
			continue
		}
		report.Groups = append(report.Groups, ReportGroup{Group: group, Counts: metrics.GroupCounts(group)})
	}

	for _, task := range s.store.OpenTasks() {
		for _, c := range inScope {
			if c.ID == task.ControlID {
				report.OpenTasks = append(report.OpenTasks, task)
				break
			}
		}
	}

	for _, item := range s.store.Evidence() {
		if item.Status == store.EvidenceExpired || item.Status == store.EvidenceExpiringSoon {
			report.Attention = append(report.Attention, item)
		}
	}

	return report, nil
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	report, err := s.BuildReport(req.FrameworkID, req.GeneratedBy)
	if err != nil {
		return nil, err
	}

	html, err := RenderReportHTML(report)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	filename := sanitizeFilename(report.Framework.Name + " readiness " + report.GeneratedAt.Format("2006-01-02"))

	switch req.Format {
	case FormatHTML, "":
		return &Result{Data: []byte(html), Filename: filename + ".html", MimeType: "text/html; charset=utf-8"}, nil
	case FormatPDF:
		data, err := s.pdf(ctx, html)
		if err != nil {
			s.logger.Warn().Err(err).Str("framework", report.Framework.ID).Msg("pdf export failed")
			return nil, err
		}
		return &Result{Data: data, Filename: filename + ".pdf", MimeType: "application/pdf"}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}
}
