// Package criteria indexes which framework requirement codes each control
// satisfies and groups controls by framework category for display.
package criteria

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"controlroom/internal/store"
)

// NoCodeSentinel is the primary code reported for a control with no mapped
// criteria. It sorts after every real code.
const NoCodeSentinel = "ZZ99.99"

// UnmappedGroupID names the trailing group that holds controls without codes.
const UnmappedGroupID = "unmapped"

const unparsedRank = 999

var codePattern = regexp.MustCompile(`CC(\d+)\.(\d+)`)

// Index maps a control ID to the distinct requirement codes that reference it.
type Index map[string][]string

// Codes returns the codes for controlID; nil when it has none.
func (ix Index) Codes(controlID string) []string {
	return ix[controlID]
}

// BuildControlToCriteriaMap walks every framework's requirements and collects,
// per control, the reference codes of requirements mapping it. Each code
// appears once per control, in first-seen order.
func BuildControlToCriteriaMap(frameworks []store.Framework) Index {
	index := make(Index)
	seen := make(map[string]map[string]struct{})
	for _, framework := range frameworks {
		for _, category := range framework.Categories {
			for _, req := range category.Requirements {
				for _, controlID := range req.MappedControlIDs {
					codes, ok := seen[controlID]
					if !ok {
						codes = make(map[string]struct{})
						seen[controlID] = codes
					}
					if _, dup := codes[req.Code]; dup {
						continue
					}
					codes[req.Code] = struct{}{}
					index[controlID] = append(index[controlID], req.Code)
				}
			}
		}
	}
	return index
}

// Group is one framework category with the controls whose codes fall under it.
type Group struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Prefix   string           `json:"prefix"`
	Controls []GroupedControl `json:"controls"`
}

// GroupedControl pairs a control with its sorted codes. NoCriteria marks a
// control that maps to no requirement of the grouped framework; Codes may
// still list codes from other frameworks.
type GroupedControl struct {
	Control    store.Control `json:"control"`
	Codes      []string      `json:"codes"`
	NoCriteria bool          `json:"noCriteria"`
}

// CategoryPrefix turns a category ID such as "soc2-cc1" into "CC1".
func CategoryPrefix(frameworkID, categoryID string) string {
	prefix := strings.TrimPrefix(categoryID, frameworkID+"-")
	return strings.ToUpper(prefix)
}

// BuildCriteriaGroups returns one group per category of frameworkID, in
// category order, followed by an unmapped group holding every control that
// landed in no category. Membership is a plain string prefix match on any mapped code. The
// result is nil when the framework is unknown.
func BuildCriteriaGroups(frameworks []store.Framework, frameworkID string, controls []store.Control, index Index) []Group {
	var framework *store.Framework
	for i := range frameworks {
		if frameworks[i].ID == frameworkID {
			framework = &frameworks[i]
			break
		}
	}
	if framework == nil {
		return nil
	}

	groups := make([]Group, 0, len(framework.Categories)+1)
	placed := make(map[string]struct{})
	for _, category := range framework.Categories {
		prefix := CategoryPrefix(frameworkID, category.ID)
		group := Group{ID: category.ID, Name: category.Name, Prefix: prefix, Controls: []GroupedControl{}}
		members := make(map[string]struct{})
		for _, control := range controls {
			if _, dup := members[control.ID]; dup {
				continue
			}
			codes := index.Codes(control.ID)
			if !anyHasPrefix(codes, prefix) {
				continue
			}
			members[control.ID] = struct{}{}
			placed[control.ID] = struct{}{}
			group.Controls = append(group.Controls, grouped(control, codes, false))
		}
		sortGrouped(group.Controls)
		groups = append(groups, group)
	}

	unmapped := Group{ID: UnmappedGroupID, Name: "No mapped criteria", Controls: []GroupedControl{}}
	for _, control := range controls {
		if _, ok := placed[control.ID]; ok {
			continue
		}
		placed[control.ID] = struct{}{}
		unmapped.Controls = append(unmapped.Controls, grouped(control, index.Codes(control.ID), true))
	}
	if len(unmapped.Controls) > 0 {
		groups = append(groups, unmapped)
	}
	return groups
}

func grouped(control store.Control, codes []string, noCriteria bool) GroupedControl {
	return GroupedControl{Control: control.Clone(), Codes: SortCodes(codes), NoCriteria: noCriteria}
}

func anyHasPrefix(codes []string, prefix string) bool {
	for _, code := range codes {
		if strings.HasPrefix(code, prefix) {
			return true
		}
	}
	return false
}

// ParseCode extracts the category and requirement numbers from a code like
// "CC6.1". Codes that do not match rank as 999/999.
func ParseCode(code string) (category, requirement int, ok bool) {
	m := codePattern.FindStringSubmatch(code)
	if m == nil {
		return unparsedRank, unparsedRank, false
	}
	category, err := strconv.Atoi(m[1])
	if err != nil {
		return unparsedRank, unparsedRank, false
	}
	requirement, err = strconv.Atoi(m[2])
	if err != nil {
		return unparsedRank, unparsedRank, false
	}
	return category, requirement, true
}

// CompareCodes orders codes numerically by category then requirement. The
// sentinel sorts after everything; ties fall back to the raw string.
func CompareCodes(a, b string) int {
	if a == b {
		return 0
	}
	if a == NoCodeSentinel {
		return 1
	}
	if b == NoCodeSentinel {
		return -1
	}
	ac, ar, _ := ParseCode(a)
	bc, br, _ := ParseCode(b)
	switch {
	case ac != bc:
		return cmpInt(ac, bc)
	case ar != br:
		return cmpInt(ar, br)
	default:
		return strings.Compare(a, b)
	}
}

func cmpInt(a, b int) int {
	if a < b {
		return -1
	}
	return 1
}

// SortCodes returns a sorted copy of codes.
func SortCodes(codes []string) []string {
	out := make([]string, len(codes))
	copy(out, codes)
	sort.SliceStable(out, func(i, j int) bool {
		return CompareCodes(out[i], out[j]) < 0
	})
	return out
}

// PrimaryCode is the lowest code under CompareCodes, or NoCodeSentinel.
func PrimaryCode(codes []string) string {
	primary := NoCodeSentinel
	for _, code := range codes {
		if CompareCodes(code, primary) < 0 {
			primary = code
		}
	}
	return primary
}

// SortControls orders controls by their primary code; controls without codes
// come last, and equal keys keep their input order.
func SortControls(controls []store.Control, index Index) []store.Control {
	out := make([]store.Control, len(controls))
	copy(out, controls)
	sort.SliceStable(out, func(i, j int) bool {
		return CompareCodes(PrimaryCode(index.Codes(out[i].ID)), PrimaryCode(index.Codes(out[j].ID))) < 0
	})
	return out
}

func sortGrouped(items []GroupedControl) {
	sort.SliceStable(items, func(i, j int) bool {
		return CompareCodes(PrimaryCode(items[i].Codes), PrimaryCode(items[j].Codes)) < 0
	})
}

// UnknownControlRefs lists requirement mappings that point at controls not
// present in controls, keyed by requirement code. The raw IDs are kept so
// callers can still display them.
func UnknownControlRefs(frameworks []store.Framework, controls []store.Control) map[string][]string {
	known := make(map[string]struct{}, len(controls))
	for _, control := range controls {
		known[control.ID] = struct{}{}
	}
	out := make(map[string][]string)
	for _, framework := range frameworks {
		for _, category := range framework.Categories {
			for _, req := range category.Requirements {
				for _, controlID := range req.MappedControlIDs {
					if _, ok := known[controlID]; !ok {
						out[req.Code] = append(out[req.Code], controlID)
					}
				}
			}
		}
	}
	return out
}
