package search

import (
	"context"

	"controlroom/internal/logger"
	"controlroom/internal/store"
)

// Service tries Meilisearch first, then Postgres FTS when the Postgres
// backend is in use, then the in-memory searcher.
type Service struct {
	meili  *Meili
	pgfts  *PgFTS
	local  *Local
	logger *logger.Logger
}

// NewService creates a search service. meili and pgfts may be nil.
func NewService(meili *Meili, pgfts *PgFTS, local *Local, log *logger.Logger) *Service {
	return &Service{meili: meili, pgfts: pgfts, local: local, logger: log.WithComponent("search")}
}

func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text, Engine: "meilisearch"}
		}
		s.logger.Warn().Err(err).Msg("meilisearch error, falling back")
	}

	if s.pgfts != nil {
		results, total, err := s.pgfts.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text, Engine: "postgres"}
		}
		s.logger.Warn().Err(err).Msg("pgfts error, falling back")
	}

	if s.local == nil {
		return Response{Results: []Result{}, Query: q.Text, Engine: "none"}
	}
	results, total, _ := s.local.Search(ctx, q)
	return Response{Results: nonNil(results), Total: total, Query: q.Text, Engine: "memory"}
}

// Reindex pushes the current collections to Meilisearch (fire-and-forget).
func (s *Service) Reindex(controls []store.Control, evidence []store.Evidence) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	controlRecords := ControlRecords(controls)
	evidenceRecords := EvidenceRecords(evidence)
	go func() {
		if err := s.meili.IndexControls(controlRecords); err != nil {
			s.logger.Warn().Err(err).Msg("reindex controls")
		}
		if err := s.meili.IndexEvidence(evidenceRecords); err != nil {
			s.logger.Warn().Err(err).Msg("reindex evidence")
		}
	}()
}

// Close stops background work.
func (s *Service) Close() {
	if s.meili != nil {
		s.meili.Close()
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
