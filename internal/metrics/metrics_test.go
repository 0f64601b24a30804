package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"controlroom/internal/criteria"
	"controlroom/internal/fixtures"
	"controlroom/internal/store"
)

func controlsWith(statuses ...store.ControlStatus) []store.Control {
	out := make([]store.Control, 0, len(statuses))
	for i, status := range statuses {
		out = append(out, store.Control{ID: string(rune('A' + i)), Status: status, Category: store.CategoryAccessControl})
	}
	return out
}

func TestComplianceScoreZeroControls(t *testing.T) {
	assert.Equal(t, 0, ComplianceScore(nil))
	assert.Equal(t, 0, Percentage(5, 0))
}

func TestComplianceScoreThreeOfFour(t *testing.T) {
	controls := controlsWith(store.StatusAccepted, store.StatusAccepted, store.StatusAccepted, store.StatusNeedsReview)
	assert.Equal(t, 75, ComplianceScore(controls))
}

func TestPercentageRounds(t *testing.T) {
	cases := []struct {
		part, total, want int
	}{
		{1, 3, 33},
		{2, 3, 67},
		{1, 8, 13},
		{4, 4, 100},
	}
	for _, tc := range cases {
		if got := Percentage(tc.part, tc.total); got != tc.want {
			t.Fatalf("Percentage(%d, %d) = %d, want %d", tc.part, tc.total, got, tc.want)
		}
	}
}

func TestCountStatuses(t *testing.T) {
	counts := CountStatuses(fixtures.Controls())
	assert.Equal(t, StatusCounts{Accepted: 4, NeedsReview: 5, EvidenceNeeded: 2, NotApplicable: 1, Total: 12}, counts)
}

func TestGroupCounts(t *testing.T) {
	group := criteria.Group{Controls: []criteria.GroupedControl{
		{Control: store.Control{Status: store.StatusAccepted}},
		{Control: store.Control{Status: store.StatusAdditionalEvidenceNeeded}},
	}}
	assert.Equal(t, StatusCounts{Accepted: 1, EvidenceNeeded: 1, Total: 2}, GroupCounts(group))
}

func TestCategoryBreakdownListsEveryCategory(t *testing.T) {
	rows := CategoryBreakdown(controlsWith(store.StatusAccepted, store.StatusNeedsReview))
	require.Len(t, rows, len(store.Categories))
	assert.Equal(t, store.CategoryAccessControl, rows[0].Category)
	assert.Equal(t, 2, rows[0].Total)
	assert.Equal(t, 1, rows[0].Accepted)
	assert.Equal(t, 0, rows[1].Total)
}

func TestFrameworkReadinessOnlyLiveFrameworkIsComputed(t *testing.T) {
	frameworks := []store.Framework{
		{ID: "soc2", Name: "SOC 2", Readiness: 10},
		{ID: "hipaa", Name: "HIPAA", Readiness: 64},
	}
	controls := []store.Control{
		{ID: "CTL-1", Status: store.StatusAccepted, Frameworks: []string{"soc2"}},
		{ID: "CTL-2", Status: store.StatusNeedsReview, Frameworks: []string{"soc2", "hipaa"}},
		{ID: "CTL-3", Status: store.StatusNeedsReview, Frameworks: []string{"hipaa"}},
	}

	rows := FrameworkReadiness(frameworks, "soc2", controls)

	assert.Equal(t, Readiness{FrameworkID: "soc2", Name: "SOC 2", Percent: 50, Live: true}, rows[0])
	assert.Equal(t, Readiness{FrameworkID: "hipaa", Name: "HIPAA", Percent: 64}, rows[1])
}

func TestAuditHub(t *testing.T) {
	tasks := []store.ControlTask{
		{ID: "t1", Status: store.TaskOpen},
		{ID: "t2", Status: store.TaskInProgress},
		{ID: "t3", Status: store.TaskResolved},
	}

	summary := AuditHub(fixtures.Controls(), tasks, fixtures.Evidence(), fixtures.Audits())

	assert.Equal(t, 4, summary.ControlsPassing)
	assert.Equal(t, 12, summary.ControlsTotal)
	assert.Equal(t, 33, summary.PassingPercent)
	assert.Equal(t, 2, summary.OpenTasks)
	assert.Equal(t, 1, summary.ActiveAudits)
	assert.Equal(t, 7, summary.EvidenceByStatus[store.EvidenceCurrent])
	assert.Equal(t, 1, summary.EvidenceByStatus[store.EvidenceExpired])
}

func TestRequirementCoverageExcludesNotApplicable(t *testing.T) {
	framework := store.Framework{ID: "iso27001", Categories: []store.FrameworkCategory{{
		Requirements: []store.Requirement{
			{Status: store.RequirementSatisfied},
			{Status: store.RequirementNotSatisfied},
			{Status: store.RequirementNotApplicable},
		},
	}}}

	coverage := RequirementCoverage(framework)

	assert.Equal(t, 3, coverage.Total)
	assert.Equal(t, 50, coverage.SatisfiedPercent)
	assert.Equal(t, 0, coverage.ByStatus[store.RequirementPartiallySatisfied])
}
