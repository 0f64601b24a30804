package search

import (
	"context"
	"strings"

	"controlroom/internal/store"
)

// Source exposes the live collections to the in-memory searcher.
type Source interface {
	Controls() []store.Control
	Evidence() []store.Evidence
}

// Local is a case-insensitive substring searcher over the live collections.
// It is always healthy and is the last fallback.
type Local struct {
	source Source
}

func NewLocal(source Source) *Local {
	return &Local{source: source}
}

func (l *Local) Healthy() bool {
	return true
}

func (l *Local) Search(_ context.Context, q Query) ([]Result, int, error) {
	needle := strings.ToLower(strings.TrimSpace(q.Text))
	if needle == "" {
		return nil, 0, nil
	}

	var matches []Result
	if q.FilterType == "" || q.FilterType == ResultControl {
		for _, c := range l.source.Controls() {
			if q.FilterStatus != "" && string(c.Status) != q.FilterStatus {
				continue
			}
			if containsFold(needle, c.ID, c.Name, c.Description, c.ImplementationDetails, c.Owner) {
				matches = append(matches, Result{
					Type: ResultControl, ID: c.ID, Title: c.Name, Snippet: c.Description,
					Status: string(c.Status), Category: string(c.Category),
				})
			}
		}
	}
	if q.FilterType == "" || q.FilterType == ResultEvidence {
		for _, e := range l.source.Evidence() {
			if q.FilterStatus != "" && string(e.Status) != q.FilterStatus {
				continue
			}
			if containsFold(needle, e.ID, e.Name, e.Description) {
				matches = append(matches, Result{
					Type: ResultEvidence, ID: e.ID, Title: e.Name, Snippet: e.Description, Status: string(e.Status),
				})
			}
		}
	}

	total := len(matches)
	start := min(q.offset(), total)
	end := min(start+q.limit(), total)
	return matches[start:end], total, nil
}

func containsFold(needle string, fields ...string) bool {
	for _, field := range fields {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}
