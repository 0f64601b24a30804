package criteria

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"controlroom/internal/fixtures"
	"controlroom/internal/store"
)

func TestBuildControlToCriteriaMapDeduplicatesCodes(t *testing.T) {
	frameworks := []store.Framework{{
		ID: "soc2",
		Categories: []store.FrameworkCategory{
			{ID: "soc2-cc6", Requirements: []store.Requirement{
				{Code: "CC6.1", MappedControlIDs: []string{"CTL-001", "CTL-001"}},
				{Code: "CC6.2", MappedControlIDs: []string{"CTL-001"}},
			}},
			{ID: "soc2-cc6-dup", Requirements: []store.Requirement{
				{Code: "CC6.1", MappedControlIDs: []string{"CTL-001", "CTL-002"}},
			}},
		},
	}}

	index := BuildControlToCriteriaMap(frameworks)

	assert.Equal(t, []string{"CC6.1", "CC6.2"}, index.Codes("CTL-001"))
	assert.Equal(t, []string{"CC6.1"}, index.Codes("CTL-002"))
	assert.Nil(t, index.Codes("CTL-404"))
}

func TestSeedIndexHasNoDuplicateCodes(t *testing.T) {
	index := BuildControlToCriteriaMap(fixtures.Frameworks())
	for controlID, codes := range index {
		seen := make(map[string]bool)
		for _, code := range codes {
			if seen[code] {
				t.Fatalf("control %s lists %s twice", controlID, code)
			}
			seen[code] = true
		}
	}
}

func TestSortCodesIsNumeric(t *testing.T) {
	got := SortCodes([]string{"CC2.1", "CC1.10", "CC1.2"})
	assert.Equal(t, []string{"CC1.2", "CC1.10", "CC2.1"}, got)
}

func TestSortCodesPutsUnparseableLast(t *testing.T) {
	got := SortCodes([]string{"A.5.15", "CC9.2", NoCodeSentinel, "CC1.1"})
	assert.Equal(t, []string{"CC1.1", "CC9.2", "A.5.15", NoCodeSentinel}, got)
}

func TestParseCode(t *testing.T) {
	cases := []struct {
		code          string
		category      int
		requirement   int
		parsedCleanly bool
	}{
		{code: "CC6.1", category: 6, requirement: 1, parsedCleanly: true},
		{code: "CC1.10", category: 1, requirement: 10, parsedCleanly: true},
		{code: "xCC3.4y", category: 3, requirement: 4, parsedCleanly: true},
		{code: "164.308(a)(1)", category: 999, requirement: 999},
		{code: "", category: 999, requirement: 999},
	}
	for _, tc := range cases {
		category, requirement, ok := ParseCode(tc.code)
		if category != tc.category || requirement != tc.requirement || ok != tc.parsedCleanly {
			t.Fatalf("ParseCode(%q) = %d, %d, %v", tc.code, category, requirement, ok)
		}
	}
}

func TestPrimaryCode(t *testing.T) {
	assert.Equal(t, "CC1.2", PrimaryCode([]string{"CC2.1", "CC1.10", "CC1.2"}))
	assert.Equal(t, NoCodeSentinel, PrimaryCode(nil))
	assert.Equal(t, "A.8.22", PrimaryCode([]string{"A.8.22"}))
}

func TestCategoryPrefix(t *testing.T) {
	assert.Equal(t, "CC1", CategoryPrefix("soc2", "soc2-cc1"))
	assert.Equal(t, "ADMIN", CategoryPrefix("hipaa", "hipaa-admin"))
}

func TestSortControlsPutsUncodedLast(t *testing.T) {
	index := Index{
		"CTL-A": {"CC6.1"},
		"CTL-B": {"CC1.10", "CC7.2"},
		"CTL-C": {"CC1.2"},
	}
	controls := []store.Control{{ID: "CTL-NONE"}, {ID: "CTL-A"}, {ID: "CTL-B"}, {ID: "CTL-C"}}

	sorted := SortControls(controls, index)

	ids := make([]string, 0, len(sorted))
	for _, control := range sorted {
		ids = append(ids, control.ID)
	}
	assert.Equal(t, []string{"CTL-C", "CTL-B", "CTL-A", "CTL-NONE"}, ids)
	assert.Equal(t, "CTL-NONE", controls[0].ID, "input must not be reordered")
}

func TestBuildCriteriaGroupsForSeedData(t *testing.T) {
	frameworks := fixtures.Frameworks()
	controls := fixtures.Controls()
	index := BuildControlToCriteriaMap(frameworks)

	groups := BuildCriteriaGroups(frameworks, fixtures.LiveFrameworkID, controls, index)

	require.Len(t, groups, 10, "nine categories plus the unmapped group")
	cc6 := groups[5]
	require.Equal(t, "CC6", cc6.Prefix)

	ids := make([]string, 0, len(cc6.Controls))
	for _, item := range cc6.Controls {
		ids = append(ids, item.Control.ID)
		assert.False(t, item.NoCriteria)
	}
	assert.Equal(t, []string{"CTL-002", "CTL-007", "CTL-001", "CTL-003"}, ids)

	unmapped := groups[len(groups)-1]
	require.Equal(t, UnmappedGroupID, unmapped.ID)
	require.Len(t, unmapped.Controls, 1)
	assert.Equal(t, "CTL-012", unmapped.Controls[0].Control.ID)
	assert.True(t, unmapped.Controls[0].NoCriteria)
}

func TestBuildCriteriaGroupsKeepsControlsWithoutCodes(t *testing.T) {
	frameworks := []store.Framework{{
		ID: "soc2",
		Categories: []store.FrameworkCategory{
			{ID: "soc2-cc1", Name: "Control Environment", Requirements: []store.Requirement{
				{Code: "CC1.1", MappedControlIDs: []string{"CTL-001"}},
				{Code: "CC1.2", MappedControlIDs: []string{"CTL-001"}},
			}},
		},
	}}
	controls := []store.Control{{ID: "CTL-001"}, {ID: "CTL-002"}}
	index := BuildControlToCriteriaMap(frameworks)

	groups := BuildCriteriaGroups(frameworks, "soc2", controls, index)

	require.Len(t, groups, 2)
	require.Len(t, groups[0].Controls, 1, "control mapped twice in one category appears once")
	assert.Equal(t, []string{"CC1.1", "CC1.2"}, groups[0].Controls[0].Codes)

	orphan := groups[1].Controls[0]
	assert.Equal(t, "CTL-002", orphan.Control.ID)
	assert.True(t, orphan.NoCriteria)
	assert.NotNil(t, orphan.Codes)
	assert.Empty(t, orphan.Codes)
}

func TestBuildCriteriaGroupsMatchesByPlainPrefix(t *testing.T) {
	frameworks := []store.Framework{{
		ID: "soc2",
		Categories: []store.FrameworkCategory{
			{ID: "soc2-cc1", Requirements: []store.Requirement{{Code: "CC1.1", MappedControlIDs: []string{"CTL-001"}}}},
			{ID: "soc2-cc10", Requirements: []store.Requirement{{Code: "CC10.1", MappedControlIDs: []string{"CTL-002"}}}},
		},
	}}
	controls := []store.Control{{ID: "CTL-001"}, {ID: "CTL-002"}}

	groups := BuildCriteriaGroups(frameworks, "soc2", controls, BuildControlToCriteriaMap(frameworks))

	require.Len(t, groups, 2)
	assert.Len(t, groups[0].Controls, 2, "CC1 also claims CC10.x codes")
	assert.Len(t, groups[1].Controls, 1)
}

func TestBuildCriteriaGroupsUnknownFramework(t *testing.T) {
	assert.Nil(t, BuildCriteriaGroups(fixtures.Frameworks(), "pci", nil, nil))
}

func TestUnknownControlRefs(t *testing.T) {
	refs := UnknownControlRefs(fixtures.Frameworks(), fixtures.Controls())
	assert.Equal(t, map[string][]string{"CC9.2": {"CTL-099"}}, refs)
}
