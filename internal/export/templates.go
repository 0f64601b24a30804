package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"

	"controlroom/internal/store"
)

//go:embed templates/*.html
var templateFS embed.FS

var reportTemplate = template.Must(
	template.New("report.html").Funcs(template.FuncMap{
		"join":        strings.Join,
		"statusClass": statusClass,
	}).ParseFS(templateFS, "templates/report.html"),
)

// statusClass maps a control status to the badge class used by the stylesheet.
func statusClass(status store.ControlStatus) string {
	switch status {
	case store.StatusAccepted:
		return "ok"
	case store.StatusAdditionalEvidenceNeeded:
		return "warn"
	case store.StatusNotApplicable:
		return "muted"
	default:
		return "pending"
	}
}

// RenderReportHTML renders the report template with provided data
func RenderReportHTML(report Report) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, report); err != nil {
		return "", err
	}
	return buf.String(), nil
}
