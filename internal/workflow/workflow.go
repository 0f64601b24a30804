// Package workflow applies control status transitions on behalf of an actor,
// enforcing which role may set which status and keeping the ledger and task
// worklist in step with every change.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"controlroom/internal/ledger"
	"controlroom/internal/logger"
	"controlroom/internal/rbac"
	"controlroom/internal/store"
)

var (
	ErrForbidden     = errors.New("forbidden")
	ErrUnknownRole   = fmt.Errorf("%w: unknown role", ErrForbidden)
	ErrControlLocked = fmt.Errorf("%w: accepted controls can only be changed by an auditor", ErrForbidden)
	// ErrEvidenceRequestRequired rejects a direct move to Additional Evidence
	// Needed; that status is only reachable through RequestEvidence.
	ErrEvidenceRequestRequired = errors.New("additional evidence must be requested with a message")
	ErrEmptyMessage            = errors.New("message is required")
	ErrInvalidStatus           = errors.New("invalid status")
)

// Actor is the caller identity supplied by the authentication collaborator.
type Actor struct {
	Name string
	Role rbac.Role
}

// Cause labels why a status changed.
type Cause string

const (
	CauseSelector        Cause = "selector"
	CauseEvidenceRequest Cause = "evidence_request"
	CauseTaskResolved    Cause = "task_resolved"
)

// Store is the slice of the entity store the workflow mutates.
type Store interface {
	Control(string) (store.Control, error)
	UpdateControlStatus(context.Context, string, store.ControlStatus) (store.Control, error)
	AppendMessage(context.Context, ledger.NewMessage) (store.ControlMessage, error)
	ReopenOrCreateTask(context.Context, ledger.TaskRequest) (store.ControlTask, ledger.TaskOutcome, error)
	Task(string) (store.ControlTask, error)
	UpdateTaskStatus(context.Context, string, store.TaskStatus) (store.ControlTask, error)
}

// Notifier tells a control owner about a task raised against their control.
type Notifier interface {
	TaskRequested(context.Context, store.ControlTask, store.Control, ledger.TaskOutcome) error
}

// Recorder counts workflow decisions.
type Recorder interface {
	StatusChanged(from, to store.ControlStatus, cause Cause)
	Denied(role rbac.Role, reason string)
	TaskChanged(status store.TaskStatus)
}

type nopRecorder struct{}

func (nopRecorder) StatusChanged(store.ControlStatus, store.ControlStatus, Cause) {}
func (nopRecorder) Denied(rbac.Role, string)                                     {}
func (nopRecorder) TaskChanged(store.TaskStatus)                                 {}

// Authorize decides whether role may move a control from current to target.
// Auditors may set any status. Clients may only set Needs Review or Not
// Applicable and may not touch an Accepted control at all.
func Authorize(role rbac.Role, current, target store.ControlStatus) error {
	if !role.Valid() {
		return ErrUnknownRole
	}
	if !target.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, target)
	}
	switch role {
	case rbac.RoleAuditor:
		return nil
	case rbac.RoleClient:
		if current == store.StatusAccepted {
			return ErrControlLocked
		}
		switch target {
		case store.StatusNeedsReview, store.StatusNotApplicable:
			return nil
		default:
			return fmt.Errorf("%w: clients cannot set %s", ErrForbidden, target)
		}
	}
	return ErrUnknownRole
}

// AllowedTargets lists the statuses role may pick for a control in current,
// excluding current itself.
func AllowedTargets(role rbac.Role, current store.ControlStatus) []store.ControlStatus {
	out := make([]store.ControlStatus, 0, len(store.ControlStatuses))
	for _, target := range store.ControlStatuses {
		if target == current {
			continue
		}
		if Authorize(role, current, target) == nil {
			out = append(out, target)
		}
	}
	return out
}

type Engine struct {
	store    Store
	notifier Notifier
	recorder Recorder
	logger   *logger.Logger

	// mu serialises multi-step operations so a status check and the writes
	// that follow it see the same control state.
	mu sync.Mutex
}

type Option func(*Engine)

func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

func NewEngine(s Store, log *logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:    s,
		recorder: nopRecorder{},
		logger:   log.WithComponent("workflow"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// StatusResult is the outcome of a status-changing operation. Changed is
// false when the control already had the target status.
type StatusResult struct {
	Control  store.Control          `json:"control"`
	Messages []store.ControlMessage `json:"messages"`
	Task     *store.ControlTask     `json:"task,omitempty"`
	Outcome  ledger.TaskOutcome     `json:"taskOutcome,omitempty"`
	Changed  bool                   `json:"changed"`
}

// ChangeStatus is the status selector path: authorize, append one
// status_change message, then set the status.
func (e *Engine) ChangeStatus(ctx context.Context, actor Actor, controlID string, target store.ControlStatus) (StatusResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	control, err := e.store.Control(controlID)
	if err != nil {
		return StatusResult{}, err
	}
	if err := e.authorize(actor, control, target); err != nil {
		return StatusResult{}, err
	}
	if target == store.StatusAdditionalEvidenceNeeded {
		return StatusResult{}, ErrEvidenceRequestRequired
	}
	if control.Status == target {
		return StatusResult{Control: control, Messages: []store.ControlMessage{}}, nil
	}

	return e.applyStatus(ctx, actor, control, target, CauseSelector)
}

// applyStatus records the transition in the ledger and then mutates the
// control. Both the selector and task resolution go through here.
func (e *Engine) applyStatus(ctx context.Context, actor Actor, control store.Control, target store.ControlStatus, cause Cause) (StatusResult, error) {
	msg, err := e.store.AppendMessage(ctx, statusMessage(actor, control, target))
	if err != nil {
		return StatusResult{}, fmt.Errorf("record status change: %w", err)
	}
	updated, err := e.store.UpdateControlStatus(ctx, control.ID, target)
	if err != nil {
		return StatusResult{}, fmt.Errorf("update control status: %w", err)
	}

	e.recorder.StatusChanged(control.Status, target, cause)
	e.logger.Info().
		Str("control_id", control.ID).
		Str("from", string(control.Status)).
		Str("to", string(target)).
		Str("actor", actor.Name).
		Str("role", string(actor.Role)).
		Str("cause", string(cause)).
		Msg("control status changed")

	return StatusResult{Control: updated, Messages: []store.ControlMessage{msg}, Changed: true}, nil
}

func statusMessage(actor Actor, control store.Control, target store.ControlStatus) ledger.NewMessage {
	return ledger.NewMessage{
		ControlID:      control.ID,
		Type:           store.MessageStatusChange,
		Author:         actor.Name,
		AuthorRole:     string(actor.Role),
		Content:        fmt.Sprintf("Status changed from %s to %s", control.Status, target),
		PreviousStatus: control.Status,
		NewStatus:      target,
	}
}

func (e *Engine) authorize(actor Actor, control store.Control, target store.ControlStatus) error {
	err := Authorize(actor.Role, control.Status, target)
	if err != nil {
		e.deny(actor, control.ID, err)
	}
	return err
}

func (e *Engine) deny(actor Actor, controlID string, err error) {
	e.recorder.Denied(actor.Role, err.Error())
	e.logger.Warn().
		Str("control_id", controlID).
		Str("actor", actor.Name).
		Str("role", string(actor.Role)).
		Err(err).
		Msg("status change denied")
}

// RequestEvidence moves a control to Additional Evidence Needed. The ledger
// receives the evidence_request and status_change messages first, the
// owner's task is opened or refreshed next, and the status is set last; any
// failure before that leaves the status untouched. A repeat request on a
// control already in Additional Evidence Needed writes only the
// evidence_request message, since the status does not move.
func (e *Engine) RequestEvidence(ctx context.Context, actor Actor, controlID, message string) (StatusResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if actor.Role != rbac.RoleAuditor {
		err := fmt.Errorf("%w: only auditors can request evidence", ErrForbidden)
		if !actor.Role.Valid() {
			err = ErrUnknownRole
		}
		e.deny(actor, controlID, err)
		return StatusResult{}, err
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return StatusResult{}, ErrEmptyMessage
	}
	control, err := e.store.Control(controlID)
	if err != nil {
		return StatusResult{}, err
	}
	target := store.StatusAdditionalEvidenceNeeded
	if err := e.authorize(actor, control, target); err != nil {
		return StatusResult{}, err
	}

	result := StatusResult{Messages: make([]store.ControlMessage, 0, 2)}
	request, err := e.store.AppendMessage(ctx, ledger.NewMessage{
		ControlID:  control.ID,
		Type:       store.MessageEvidenceRequest,
		Author:     actor.Name,
		AuthorRole: string(actor.Role),
		Content:    message,
	})
	if err != nil {
		return StatusResult{}, fmt.Errorf("record evidence request: %w", err)
	}
	result.Messages = append(result.Messages, request)

	if control.Status != target {
		change, err := e.store.AppendMessage(ctx, statusMessage(actor, control, target))
		if err != nil {
			return result, fmt.Errorf("record status change: %w", err)
		}
		result.Messages = append(result.Messages, change)
	}

	task, outcome, err := e.store.ReopenOrCreateTask(ctx, ledger.TaskRequest{
		ControlID:     control.ID,
		ControlName:   control.Name,
		RequestedBy:   actor.Name,
		RequesterRole: string(actor.Role),
		Message:       message,
		AssignedTo:    control.Owner,
	})
	if err != nil {
		return result, fmt.Errorf("open task: %w", err)
	}
	result.Task = &task
	result.Outcome = outcome
	e.recorder.TaskChanged(task.Status)

	updated, err := e.store.UpdateControlStatus(ctx, control.ID, target)
	if err != nil {
		return result, fmt.Errorf("update control status: %w", err)
	}
	result.Control = updated
	result.Changed = control.Status != target
	if result.Changed {
		e.recorder.StatusChanged(control.Status, target, CauseEvidenceRequest)
	}

	e.logger.Info().
		Str("control_id", control.ID).
		Str("from", string(control.Status)).
		Str("to", string(target)).
		Str("actor", actor.Name).
		Str("role", string(actor.Role)).
		Str("task_id", task.ID).
		Str("task_outcome", string(outcome)).
		Msg("evidence requested")

	e.notify(ctx, task, updated, outcome)
	return result, nil
}

func (e *Engine) notify(ctx context.Context, task store.ControlTask, control store.Control, outcome ledger.TaskOutcome) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.TaskRequested(ctx, task, control, outcome); err != nil {
		e.logger.Warn().Err(err).Str("task_id", task.ID).Msg("task notification failed")
	}
}

// TaskResult is the outcome of a task operation.
type TaskResult struct {
	Task   store.ControlTask `json:"task"`
	Status *StatusResult     `json:"status,omitempty"`
}

// StartTask marks a task in progress. Only the client side works tasks.
func (e *Engine) StartTask(ctx context.Context, actor Actor, taskID string) (TaskResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.canWorkTasks(actor, taskID); err != nil {
		return TaskResult{}, err
	}
	task, err := e.store.UpdateTaskStatus(ctx, taskID, store.TaskInProgress)
	if err != nil {
		return TaskResult{}, err
	}
	e.recorder.TaskChanged(task.Status)
	e.logger.Info().Str("task_id", task.ID).Str("control_id", task.ControlID).Str("actor", actor.Name).Msg("task started")
	return TaskResult{Task: task}, nil
}

// ResolveTask closes a task and sends its control back to Needs Review. The
// status change is recorded exactly as a selector change would be. A control
// already in Needs Review, or accepted in the meantime, is left as it is.
func (e *Engine) ResolveTask(ctx context.Context, actor Actor, taskID string) (TaskResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.canWorkTasks(actor, taskID); err != nil {
		return TaskResult{}, err
	}
	pending, err := e.store.Task(taskID)
	if err != nil {
		return TaskResult{}, err
	}
	control, err := e.store.Control(pending.ControlID)
	if err != nil {
		return TaskResult{}, err
	}

	task, err := e.store.UpdateTaskStatus(ctx, taskID, store.TaskResolved)
	if err != nil {
		return TaskResult{}, err
	}
	e.recorder.TaskChanged(task.Status)
	e.logger.Info().Str("task_id", task.ID).Str("control_id", task.ControlID).Str("actor", actor.Name).Msg("task resolved")

	result := TaskResult{Task: task}
	target := store.StatusNeedsReview
	if control.Status == target || control.Status == store.StatusAccepted {
		return result, nil
	}
	status, err := e.applyStatus(ctx, actor, control, target, CauseTaskResolved)
	if err != nil {
		return result, err
	}
	result.Status = &status
	return result, nil
}

func (e *Engine) canWorkTasks(actor Actor, taskID string) error {
	if !actor.Role.Valid() {
		e.recorder.Denied(actor.Role, ErrUnknownRole.Error())
		return ErrUnknownRole
	}
	if !rbac.Can(actor.Role, rbac.ActionWorkTask) {
		err := fmt.Errorf("%w: %s cannot work tasks", ErrForbidden, actor.Role)
		e.recorder.Denied(actor.Role, err.Error())
		e.logger.Warn().Str("task_id", taskID).Str("actor", actor.Name).Err(err).Msg("task update denied")
		return err
	}
	return nil
}

// Comment appends a comment to the control's ledger.
func (e *Engine) Comment(ctx context.Context, actor Actor, controlID, text string, mentions []string) (store.ControlMessage, error) {
	if !actor.Role.Valid() {
		return store.ControlMessage{}, ErrUnknownRole
	}
	if strings.TrimSpace(text) == "" {
		return store.ControlMessage{}, ErrEmptyMessage
	}
	if _, err := e.store.Control(controlID); err != nil {
		return store.ControlMessage{}, err
	}
	return e.store.AppendMessage(ctx, ledger.NewMessage{
		ControlID:  controlID,
		Type:       store.MessageComment,
		Author:     actor.Name,
		AuthorRole: string(actor.Role),
		Content:    strings.TrimSpace(text),
		Mentions:   mentions,
	})
}
