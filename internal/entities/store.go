// Package entities owns the in-memory collections behind the dashboard and
// writes every mutation straight through to the configured backend.
package entities

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"controlroom/internal/events"
	"controlroom/internal/fixtures"
	"controlroom/internal/ledger"
	"controlroom/internal/logger"
	"controlroom/internal/store"
	"controlroom/internal/util"
)

var (
	ErrControlNotFound  = errors.New("control not found")
	ErrEvidenceNotFound = errors.New("evidence not found")
	ErrInvalidControl   = errors.New("invalid control")
	ErrInvalidEvidence  = errors.New("invalid evidence")
)

// ImportMode selects how imported controls combine with the existing set.
type ImportMode string

const (
	ImportMerge   ImportMode = "merge"
	ImportReplace ImportMode = "replace"
)

type ImportResult struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
	Total   int `json:"total"`
}

// EvidenceRef is a control's evidence link. Evidence is nil when the ID does
// not resolve; callers display the raw ID instead.
type EvidenceRef struct {
	ID       string          `json:"id"`
	Evidence *store.Evidence `json:"evidence,omitempty"`
	Missing  bool            `json:"missing"`
}

type Option func(*Store)

// WithOrigin fixes the instance identity used to filter change events.
func WithOrigin(origin string) Option {
	return func(s *Store) { s.origin = origin }
}

func WithLedgerOptions(opts ...ledger.Option) Option {
	return func(s *Store) { s.ledgerOpts = append(s.ledgerOpts, opts...) }
}

func WithFrameworks(frameworks []store.Framework) Option {
	return func(s *Store) { s.frameworks = frameworks }
}

type Store struct {
	logger     *logger.Logger
	origin     string
	ledgerOpts []ledger.Option

	controlsRepo *store.Repository[[]store.Control]
	evidenceRepo *store.Repository[[]store.Evidence]
	tasksRepo    *store.Repository[[]store.ControlTask]
	messagesRepo *store.Repository[[]store.ControlMessage]
	auditsRepo   *store.Repository[[]store.Audit]
	settingsRepo *store.Repository[store.Settings]

	mu         sync.RWMutex
	controls   []store.Control
	evidence   []store.Evidence
	audits     []store.Audit
	settings   store.Settings
	ledger     *ledger.Ledger
	frameworks []store.Framework

	unsubscribe []func()
}

// Open loads every collection, falling back to seed data per collection, and
// starts following changes written by other instances on bus.
func Open(ctx context.Context, backend store.Backend, bus events.Bus, log *logger.Logger, opts ...Option) *Store {
	s := &Store{
		logger: log.WithComponent("entities"),
		origin: util.NewID("inst"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.frameworks == nil {
		s.frameworks = fixtures.Frameworks()
	}

	s.controlsRepo = store.NewRepository(backend, bus, store.KeyControls, fixtures.Controls, s.origin, log)
	s.evidenceRepo = store.NewRepository(backend, bus, store.KeyEvidence, fixtures.Evidence, s.origin, log)
	s.tasksRepo = store.NewRepository(backend, bus, store.KeyTasks, fixtures.Tasks, s.origin, log)
	s.messagesRepo = store.NewRepository(backend, bus, store.KeyMessages, fixtures.Messages, s.origin, log)
	s.auditsRepo = store.NewRepository(backend, bus, store.KeyAudits, fixtures.Audits, s.origin, log)
	s.settingsRepo = store.NewRepository(backend, bus, store.KeySettings, fixtures.Settings, s.origin, log)

	s.Reload(ctx)

	s.unsubscribe = []func(){
		s.controlsRepo.Subscribe(s.onChange),
		s.evidenceRepo.Subscribe(s.onChange),
		s.tasksRepo.Subscribe(s.onChange),
		s.messagesRepo.Subscribe(s.onChange),
		s.auditsRepo.Subscribe(s.onChange),
		s.settingsRepo.Subscribe(s.onChange),
	}
	return s
}

// Origin identifies this instance on the change bus.
func (s *Store) Origin() string {
	return s.origin
}

// Close stops following remote changes.
func (s *Store) Close() {
	for _, unsubscribe := range s.unsubscribe {
		unsubscribe()
	}
	s.unsubscribe = nil
}

// Reload replaces every collection with what the backend holds now.
func (s *Store) Reload(ctx context.Context) {
	controls, controlsOrigin := s.controlsRepo.Load(ctx)
	evidence, _ := s.evidenceRepo.Load(ctx)
	tasks, _ := s.tasksRepo.Load(ctx)
	messages, _ := s.messagesRepo.Load(ctx)
	audits, _ := s.auditsRepo.Load(ctx)
	settings, _ := s.settingsRepo.Load(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.controls = normalizeControls(controls)
	s.evidence = evidence
	s.audits = audits
	s.settings = settings
	s.ledger = ledger.New(messages, tasks, s.ledgerOpts...)

	s.logger.Info().
		Str("origin", string(controlsOrigin)).
		Int("controls", len(s.controls)).
		Int("evidence", len(s.evidence)).
		Int("tasks", len(tasks)).
		Msg("collections loaded")
}

// onChange refreshes one collection after another instance rewrote it. A
// reload that does not come back with stored data keeps the in-memory copy.
func (s *Store) onChange(change events.Change) {
	ctx := context.Background()
	s.logger.Debug().Str("key", change.Key).Str("from", change.Origin).Msg("reloading after remote change")

	switch change.Key {
	case store.KeyControls:
		controls, origin := s.controlsRepo.Load(ctx)
		if !s.keepReloaded(change.Key, origin) {
			return
		}
		s.mu.Lock()
		s.controls = normalizeControls(controls)
		s.mu.Unlock()
	case store.KeyEvidence:
		evidence, origin := s.evidenceRepo.Load(ctx)
		if !s.keepReloaded(change.Key, origin) {
			return
		}
		s.mu.Lock()
		s.evidence = evidence
		s.mu.Unlock()
	case store.KeyTasks:
		tasks, origin := s.tasksRepo.Load(ctx)
		if !s.keepReloaded(change.Key, origin) {
			return
		}
		s.mu.Lock()
		s.ledger.ReplaceTasks(tasks)
		s.mu.Unlock()
	case store.KeyMessages:
		messages, origin := s.messagesRepo.Load(ctx)
		if !s.keepReloaded(change.Key, origin) {
			return
		}
		s.mu.Lock()
		s.ledger.ReplaceMessages(messages)
		s.mu.Unlock()
	case store.KeyAudits:
		audits, origin := s.auditsRepo.Load(ctx)
		if !s.keepReloaded(change.Key, origin) {
			return
		}
		s.mu.Lock()
		s.audits = audits
		s.mu.Unlock()
	case store.KeySettings:
		settings, origin := s.settingsRepo.Load(ctx)
		if !s.keepReloaded(change.Key, origin) {
			return
		}
		s.mu.Lock()
		s.settings = settings
		s.mu.Unlock()
	}
}

func (s *Store) keepReloaded(key string, origin store.Origin) bool {
	if origin == store.OriginStored {
		return true
	}
	s.logger.Warn().Str("key", key).Str("origin", string(origin)).Msg("remote change not readable, keeping last known state")
	return false
}

// normalizeControls makes nil slices empty so they persist as [].
func normalizeControls(controls []store.Control) []store.Control {
	out := make([]store.Control, 0, len(controls))
	for _, control := range controls {
		out = append(out, control.Clone())
	}
	return out
}

func (s *Store) Controls() []store.Control {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return normalizeControls(s.controls)
}

func (s *Store) Control(id string) (store.Control, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.controlIndex(id)
	if idx < 0 {
		return store.Control{}, ErrControlNotFound
	}
	return s.controls[idx].Clone(), nil
}

func (s *Store) controlIndex(id string) int {
	return slices.IndexFunc(s.controls, func(c store.Control) bool { return c.ID == id })
}

// UpdateControlStatus sets a control's status and persists the collection.
// Permission checks belong to the caller.
func (s *Store) UpdateControlStatus(ctx context.Context, id string, status store.ControlStatus) (store.Control, error) {
	if !status.Valid() {
		return store.Control{}, fmt.Errorf("%w: unknown status %q", ErrInvalidControl, status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.controlIndex(id)
	if idx < 0 {
		return store.Control{}, ErrControlNotFound
	}

	previous := s.controls[idx].Status
	s.controls[idx].Status = status
	if err := s.controlsRepo.Save(ctx, s.controls); err != nil {
		s.controls[idx].Status = previous
		return store.Control{}, fmt.Errorf("persist controls: %w", err)
	}
	return s.controls[idx].Clone(), nil
}

// UpdateControl applies a direct edit. The stored status is kept whatever the
// edit carries; status only moves through the workflow.
func (s *Store) UpdateControl(ctx context.Context, edit store.Control) (store.Control, error) {
	if err := validateControl(edit, false); err != nil {
		return store.Control{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.controlIndex(edit.ID)
	if idx < 0 {
		return store.Control{}, ErrControlNotFound
	}

	previous := s.controls[idx]
	updated := edit.Clone()
	updated.Status = previous.Status
	s.controls[idx] = updated
	if err := s.controlsRepo.Save(ctx, s.controls); err != nil {
		s.controls[idx] = previous
		return store.Control{}, fmt.Errorf("persist controls: %w", err)
	}
	return updated.Clone(), nil
}

func validateControl(control store.Control, requireStatus bool) error {
	if strings.TrimSpace(control.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidControl)
	}
	if !control.Category.Valid() {
		return fmt.Errorf("%w: %s has unknown category %q", ErrInvalidControl, control.ID, control.Category)
	}
	if !control.Type.Valid() {
		return fmt.Errorf("%w: %s has unknown type %q", ErrInvalidControl, control.ID, control.Type)
	}
	if requireStatus && !control.Status.Valid() {
		return fmt.Errorf("%w: %s has unknown status %q", ErrInvalidControl, control.ID, control.Status)
	}
	return nil
}

// ImportControls adds parsed controls. Merge replaces records with matching
// IDs, keeping their evidence links when the import carries none, and appends
// the rest; replace swaps the whole collection. Nothing is applied unless
// every control is valid.
func (s *Store) ImportControls(ctx context.Context, imported []store.Control, mode ImportMode) (ImportResult, error) {
	if mode != ImportMerge && mode != ImportReplace {
		return ImportResult{}, fmt.Errorf("unknown import mode %q", mode)
	}
	for _, control := range imported {
		if err := validateControl(control, true); err != nil {
			return ImportResult{}, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var result ImportResult
	next := make([]store.Control, 0, len(s.controls)+len(imported))
	if mode == ImportMerge {
		next = append(next, normalizeControls(s.controls)...)
	}
	for _, control := range imported {
		control = control.Clone()
		idx := slices.IndexFunc(next, func(c store.Control) bool { return c.ID == control.ID })
		if idx < 0 {
			next = append(next, control)
			result.Added++
			continue
		}
		if len(control.EvidenceIDs) == 0 && mode == ImportMerge {
			control.EvidenceIDs = next[idx].EvidenceIDs
		}
		next[idx] = control
		result.Updated++
	}
	if err := s.controlsRepo.Save(ctx, next); err != nil {
		return ImportResult{}, fmt.Errorf("persist controls: %w", err)
	}
	s.controls = next
	result.Total = len(next)

	s.logger.Info().Str("mode", string(mode)).Int("added", result.Added).Int("updated", result.Updated).Msg("controls imported")
	return result, nil
}

func (s *Store) Evidence() []store.Evidence {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.Evidence, 0, len(s.evidence))
	for _, item := range s.evidence {
		out = append(out, item.Clone())
	}
	return out
}

func (s *Store) EvidenceByID(id string) (store.Evidence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, item := range s.evidence {
		if item.ID == id {
			return item.Clone(), nil
		}
	}
	return store.Evidence{}, ErrEvidenceNotFound
}

// AddEvidence stores a new evidence record and links its ID into every
// referenced control that exists. Unknown control IDs stay on the evidence.
func (s *Store) AddEvidence(ctx context.Context, item store.Evidence) (store.Evidence, error) {
	if strings.TrimSpace(item.Name) == "" {
		return store.Evidence{}, fmt.Errorf("%w: name is required", ErrInvalidEvidence)
	}
	if !item.Type.Valid() {
		return store.Evidence{}, fmt.Errorf("%w: unknown type %q", ErrInvalidEvidence, item.Type)
	}
	if item.Status == "" {
		item.Status = store.EvidencePendingReview
	}
	if !item.Status.Valid() {
		return store.Evidence{}, fmt.Errorf("%w: unknown status %q", ErrInvalidEvidence, item.Status)
	}
	item = item.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	if item.ID == "" {
		item.ID = util.NewID("ev")
	}
	for _, existing := range s.evidence {
		if existing.ID == item.ID {
			return store.Evidence{}, fmt.Errorf("%w: %s already exists", ErrInvalidEvidence, item.ID)
		}
	}

	evidence := append(slices.Clone(s.evidence), item)
	controls := normalizeControls(s.controls)
	linked := false
	for i := range controls {
		if slices.Contains(item.ControlIDs, controls[i].ID) && !slices.Contains(controls[i].EvidenceIDs, item.ID) {
			controls[i].EvidenceIDs = append(controls[i].EvidenceIDs, item.ID)
			linked = true
		}
	}

	if err := s.evidenceRepo.Save(ctx, evidence); err != nil {
		return store.Evidence{}, fmt.Errorf("persist evidence: %w", err)
	}
	if linked {
		if err := s.controlsRepo.Save(ctx, controls); err != nil {
			// Neither collection changes unless both writes land.
			if undoErr := s.evidenceRepo.Save(ctx, s.evidence); undoErr != nil {
				s.logger.Error().Err(undoErr).Str("evidence", item.ID).Msg("evidence rollback failed")
			}
			return store.Evidence{}, fmt.Errorf("persist controls: %w", err)
		}
		s.controls = controls
	}
	s.evidence = evidence
	return item.Clone(), nil
}

// ResolveEvidence maps a control's evidence IDs to records, keeping dangling
// IDs as missing references.
func (s *Store) ResolveEvidence(control store.Control) []EvidenceRef {
	s.mu.RLock()
	defer s.mu.RUnlock()
	refs := make([]EvidenceRef, 0, len(control.EvidenceIDs))
	for _, id := range control.EvidenceIDs {
		ref := EvidenceRef{ID: id, Missing: true}
		for _, item := range s.evidence {
			if item.ID == id {
				found := item.Clone()
				ref.Evidence = &found
				ref.Missing = false
				break
			}
		}
		refs = append(refs, ref)
	}
	return refs
}

func (s *Store) Audits() []store.Audit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.audits)
}

func (s *Store) Settings() store.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

func (s *Store) SaveSettings(ctx context.Context, settings store.Settings) (store.Settings, error) {
	if strings.TrimSpace(settings.OrganizationName) == "" {
		return store.Settings{}, errors.New("organization name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.settingsRepo.Save(ctx, settings); err != nil {
		return store.Settings{}, fmt.Errorf("persist settings: %w", err)
	}
	s.settings = settings
	return settings, nil
}

// Frameworks returns the reference hierarchy. It is shared and must not be
// modified by callers.
func (s *Store) Frameworks() []store.Framework {
	return s.frameworks
}

func (s *Store) Framework(id string) (store.Framework, bool) {
	for _, framework := range s.frameworks {
		if framework.ID == id {
			return framework, true
		}
	}
	return store.Framework{}, false
}
