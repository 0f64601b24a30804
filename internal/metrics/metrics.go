// Package metrics derives dashboard numbers from a snapshot of the entity
// collections. Every function is pure and recomputed on each read.
package metrics

import (
	"math"
	"slices"

	"controlroom/internal/criteria"
	"controlroom/internal/store"
)

// Percentage returns round(part/total*100), or 0 when total is 0.
func Percentage(part, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(total) * 100))
}

// ComplianceScore is the share of accepted controls.
func ComplianceScore(controls []store.Control) int {
	counts := CountStatuses(controls)
	return Percentage(counts.Accepted, counts.Total)
}

type StatusCounts struct {
	Accepted       int `json:"accepted"`
	NeedsReview    int `json:"needsReview"`
	EvidenceNeeded int `json:"evidenceNeeded"`
	NotApplicable  int `json:"notApplicable"`
	Total          int `json:"total"`
}

func CountStatuses(controls []store.Control) StatusCounts {
	var counts StatusCounts
	for _, control := range controls {
		counts.add(control.Status)
	}
	return counts
}

func (c *StatusCounts) add(status store.ControlStatus) {
	c.Total++
	switch status {
	case store.StatusAccepted:
		c.Accepted++
	case store.StatusNeedsReview:
		c.NeedsReview++
	case store.StatusAdditionalEvidenceNeeded:
		c.EvidenceNeeded++
	case store.StatusNotApplicable:
		c.NotApplicable++
	}
}

// GroupCounts summarises one criteria group for its badge.
func GroupCounts(group criteria.Group) StatusCounts {
	var counts StatusCounts
	for _, item := range group.Controls {
		counts.add(item.Control.Status)
	}
	return counts
}

type CategoryCount struct {
	Category store.Category `json:"category"`
	StatusCounts
}

// CategoryBreakdown returns counts for every category, in enumeration order,
// including categories without controls.
func CategoryBreakdown(controls []store.Control) []CategoryCount {
	byCategory := make(map[store.Category]*StatusCounts, len(store.Categories))
	for _, control := range controls {
		counts, ok := byCategory[control.Category]
		if !ok {
			counts = &StatusCounts{}
			byCategory[control.Category] = counts
		}
		counts.add(control.Status)
	}

	out := make([]CategoryCount, 0, len(store.Categories))
	for _, category := range store.Categories {
		row := CategoryCount{Category: category}
		if counts, ok := byCategory[category]; ok {
			row.StatusCounts = *counts
		}
		out = append(out, row)
	}
	return out
}

type Readiness struct {
	FrameworkID string `json:"frameworkId"`
	Name        string `json:"name"`
	Percent     int    `json:"percent"`
	Live        bool   `json:"live"`
}

// FrameworkReadiness reports the curated readiness of each framework, except
// for liveFrameworkID whose value is the compliance score of the controls
// that support it.
func FrameworkReadiness(frameworks []store.Framework, liveFrameworkID string, controls []store.Control) []Readiness {
	out := make([]Readiness, 0, len(frameworks))
	for _, framework := range frameworks {
		row := Readiness{FrameworkID: framework.ID, Name: framework.Name, Percent: framework.Readiness}
		if framework.ID == liveFrameworkID {
			row.Percent = ComplianceScore(ControlsForFramework(controls, framework.ID))
			row.Live = true
		}
		out = append(out, row)
	}
	return out
}

// ControlsForFramework keeps the controls that list frameworkID.
func ControlsForFramework(controls []store.Control, frameworkID string) []store.Control {
	out := make([]store.Control, 0)
	for _, control := range controls {
		if slices.Contains(control.Frameworks, frameworkID) {
			out = append(out, control)
		}
	}
	return out
}

type AuditHubSummary struct {
	ControlsPassing  int                          `json:"controlsPassing"`
	ControlsTotal    int                          `json:"controlsTotal"`
	PassingPercent   int                          `json:"passingPercent"`
	OpenTasks        int                          `json:"openTasks"`
	EvidenceByStatus map[store.EvidenceStatus]int `json:"evidenceByStatus"`
	ActiveAudits     int                          `json:"activeAudits"`
}

// AuditHub computes the audit overview from the live collections.
func AuditHub(controls []store.Control, tasks []store.ControlTask, evidence []store.Evidence, audits []store.Audit) AuditHubSummary {
	counts := CountStatuses(controls)
	summary := AuditHubSummary{
		ControlsPassing:  counts.Accepted,
		ControlsTotal:    counts.Total,
		PassingPercent:   Percentage(counts.Accepted, counts.Total),
		EvidenceByStatus: make(map[store.EvidenceStatus]int, len(store.EvidenceStatuses)),
	}
	for _, status := range store.EvidenceStatuses {
		summary.EvidenceByStatus[status] = 0
	}
	for _, task := range tasks {
		if task.Status != store.TaskResolved {
			summary.OpenTasks++
		}
	}
	for _, item := range evidence {
		summary.EvidenceByStatus[item.Status]++
	}
	for _, audit := range audits {
		if audit.Status == store.AuditInProgress {
			summary.ActiveAudits++
		}
	}
	return summary
}

type Coverage struct {
	FrameworkID      string                          `json:"frameworkId"`
	ByStatus         map[store.RequirementStatus]int `json:"byStatus"`
	Total            int                             `json:"total"`
	SatisfiedPercent int                             `json:"satisfiedPercent"`
}

// RequirementCoverage counts a framework's requirements by satisfaction
// status. Not Applicable requirements are left out of the percentage.
func RequirementCoverage(framework store.Framework) Coverage {
	coverage := Coverage{
		FrameworkID: framework.ID,
		ByStatus:    make(map[store.RequirementStatus]int, len(store.RequirementStatuses)),
	}
	for _, status := range store.RequirementStatuses {
		coverage.ByStatus[status] = 0
	}
	for _, category := range framework.Categories {
		for _, req := range category.Requirements {
			coverage.ByStatus[req.Status]++
			coverage.Total++
		}
	}
	applicable := coverage.Total - coverage.ByStatus[store.RequirementNotApplicable]
	coverage.SatisfiedPercent = Percentage(coverage.ByStatus[store.RequirementSatisfied], applicable)
	return coverage
}
