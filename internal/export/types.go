// Package export renders the audit readiness report as HTML or PDF.
package export

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"controlroom/internal/criteria"
	"controlroom/internal/metrics"
	"controlroom/internal/store"
)

// Format represents the export output format
type Format string

const (
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
)

// ParseFormat accepts "html" or "pdf", case-insensitively.
func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case FormatHTML, "":
		return FormatHTML, nil
	case FormatPDF:
		return FormatPDF, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, raw)
	}
}

// Request contains parameters for a report export
type Request struct {
	FrameworkID string // empty = the organisation's primary framework
	Format      Format
	GeneratedBy string
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

// Report is everything the report template renders.
type Report struct {
	Organization string
	Framework    store.Framework
	GeneratedAt  time.Time
	GeneratedBy  string
	Score        int
	Counts       metrics.StatusCounts
	Readiness    metrics.Readiness
	Coverage     metrics.Coverage
	Hub          metrics.AuditHubSummary
	Groups       []ReportGroup
	OpenTasks    []store.ControlTask
	Attention    []store.Evidence
	UnknownRefs  map[string][]string
}

// ReportGroup is one criteria section of the report.
type ReportGroup struct {
	criteria.Group
	Counts metrics.StatusCounts
}

var (
	// ErrUnknownFramework indicates the requested framework is not in the reference data.
	ErrUnknownFramework = errors.New("export unknown framework")
	// ErrUnsupportedFormat indicates an output format other than html or pdf.
	ErrUnsupportedFormat = errors.New("export unsupported format")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
)
