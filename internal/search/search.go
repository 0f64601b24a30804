package search

import (
	"context"

	"controlroom/internal/store"
)

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultControl  ResultType = "control"
	ResultEvidence ResultType = "evidence"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type     ResultType `json:"type"`
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	Snippet  string     `json:"snippet"`
	Status   string     `json:"status"`
	Category string     `json:"category,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text         string
	FilterType   ResultType // empty = all types
	FilterStatus string
	Limit        int
	Offset       int
}

func (q Query) limit() int {
	if q.Limit <= 0 {
		return 20
	}
	return q.Limit
}

func (q Query) offset() int {
	if q.Offset < 0 {
		return 0
	}
	return q.Offset
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
	Engine  string   `json:"engine"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// ControlRecord is the data we index for a control.
type ControlRecord struct {
	ID                    string   `json:"id"`
	Name                  string   `json:"name"`
	Description           string   `json:"description"`
	Category              string   `json:"category"`
	Status                string   `json:"status"`
	Owner                 string   `json:"owner"`
	Frameworks            []string `json:"frameworks"`
	ImplementationDetails string   `json:"implementationDetails"`
}

// EvidenceRecord is the data we index for an evidence item.
type EvidenceRecord struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Type        string   `json:"type"`
	Status      string   `json:"status"`
	ControlIDs  []string `json:"controlIds"`
}

func ControlRecords(controls []store.Control) []ControlRecord {
	out := make([]ControlRecord, 0, len(controls))
	for _, c := range controls {
		out = append(out, ControlRecord{
			ID:                    c.ID,
			Name:                  c.Name,
			Description:           c.Description,
			Category:              string(c.Category),
			Status:                string(c.Status),
			Owner:                 c.Owner,
			Frameworks:            store.CloneStrings(c.Frameworks),
			ImplementationDetails: c.ImplementationDetails,
		})
	}
	return out
}

func EvidenceRecords(evidence []store.Evidence) []EvidenceRecord {
	out := make([]EvidenceRecord, 0, len(evidence))
	for _, e := range evidence {
		out = append(out, EvidenceRecord{
			ID:          e.ID,
			Name:        e.Name,
			Description: e.Description,
			Type:        string(e.Type),
			Status:      string(e.Status),
			ControlIDs:  store.CloneStrings(e.ControlIDs),
		})
	}
	return out
}
