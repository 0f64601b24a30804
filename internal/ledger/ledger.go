// Package ledger keeps the per-control activity log and the task worklist
// derived from evidence requests.
//
// Messages are append-only: nothing in this package edits or removes one once
// written. A Ledger is not safe for concurrent use; callers serialise access.
package ledger

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"controlroom/internal/store"
	"controlroom/internal/util"
)

var (
	ErrTaskNotFound          = errors.New("task not found")
	ErrInvalidMessage        = errors.New("invalid message")
	ErrInvalidTaskTransition = errors.New("invalid task status transition")
)

// NewMessage is the caller-supplied part of a ControlMessage; the ledger
// assigns ID and timestamp.
type NewMessage struct {
	ControlID      string
	Type           store.MessageType
	Author         string
	AuthorRole     string
	Content        string
	Mentions       []string
	PreviousStatus store.ControlStatus
	NewStatus      store.ControlStatus
}

// TaskRequest describes the evidence request a task is raised for.
type TaskRequest struct {
	ControlID     string
	ControlName   string
	RequestedBy   string
	RequesterRole string
	Message       string
	AssignedTo    string
}

type TaskOutcome string

const (
	TaskCreated TaskOutcome = "created"
	TaskUpdated TaskOutcome = "updated"
)

type Ledger struct {
	messages []store.ControlMessage
	tasks    []store.ControlTask
	now      func() time.Time
	newID    func(prefix string) string
}

type Option func(*Ledger)

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func WithIDGenerator(newID func(prefix string) string) Option {
	return func(l *Ledger) { l.newID = newID }
}

// New builds a ledger over previously persisted entries.
func New(messages []store.ControlMessage, tasks []store.ControlTask, opts ...Option) *Ledger {
	l := &Ledger{
		messages: append([]store.ControlMessage(nil), messages...),
		tasks:    append([]store.ControlTask(nil), tasks...),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    util.NewID,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// AddMessage appends a message and returns the stored entry.
func (l *Ledger) AddMessage(in NewMessage) (store.ControlMessage, error) {
	if strings.TrimSpace(in.ControlID) == "" {
		return store.ControlMessage{}, fmt.Errorf("%w: control id is required", ErrInvalidMessage)
	}
	msg := store.ControlMessage{
		ID:         l.newID("msg"),
		ControlID:  in.ControlID,
		Type:       in.Type,
		Author:     in.Author,
		AuthorRole: in.AuthorRole,
		Content:    in.Content,
		Timestamp:  l.now(),
	}

	switch in.Type {
	case store.MessageComment:
		if strings.TrimSpace(in.Content) == "" {
			return store.ControlMessage{}, fmt.Errorf("%w: comment text is required", ErrInvalidMessage)
		}
		if len(in.Mentions) > 0 {
			msg.Mentions = append([]string(nil), in.Mentions...)
		}
	case store.MessageEvidenceRequest:
		if strings.TrimSpace(in.Content) == "" {
			return store.ControlMessage{}, fmt.Errorf("%w: evidence request text is required", ErrInvalidMessage)
		}
	case store.MessageStatusChange:
		if !in.PreviousStatus.Valid() || !in.NewStatus.Valid() {
			return store.ControlMessage{}, fmt.Errorf("%w: status change needs previous and new status", ErrInvalidMessage)
		}
		previous, next := in.PreviousStatus, in.NewStatus
		msg.PreviousStatus = &previous
		msg.NewStatus = &next
	default:
		return store.ControlMessage{}, fmt.Errorf("%w: unknown type %q", ErrInvalidMessage, in.Type)
	}

	l.messages = append(l.messages, msg)
	return msg, nil
}

// MessagesForControl returns the control's messages oldest first; entries with
// equal timestamps keep insertion order.
func (l *Ledger) MessagesForControl(controlID string) []store.ControlMessage {
	out := make([]store.ControlMessage, 0)
	for _, msg := range l.messages {
		if msg.ControlID == controlID {
			out = append(out, msg)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// AddTask appends a new open task unconditionally. Evidence requests go
// through ReopenOrCreateTask instead.
func (l *Ledger) AddTask(req TaskRequest) store.ControlTask {
	now := l.now()
	task := store.ControlTask{
		ID:            l.newID("task"),
		ControlID:     req.ControlID,
		ControlName:   req.ControlName,
		RequestedBy:   req.RequestedBy,
		RequesterRole: req.RequesterRole,
		Message:       req.Message,
		Status:        store.TaskOpen,
		AssignedTo:    req.AssignedTo,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	l.tasks = append(l.tasks, task)
	return task
}

// ReopenOrCreateTask keeps at most one unresolved task per control: a pending
// task is refreshed with the new request, otherwise a fresh open task is added.
func (l *Ledger) ReopenOrCreateTask(req TaskRequest) (store.ControlTask, TaskOutcome) {
	if idx := l.latestUnresolved(req.ControlID); idx >= 0 {
		task := &l.tasks[idx]
		task.Message = req.Message
		task.RequestedBy = req.RequestedBy
		task.RequesterRole = req.RequesterRole
		if req.AssignedTo != "" {
			task.AssignedTo = req.AssignedTo
		}
		if req.ControlName != "" {
			task.ControlName = req.ControlName
		}
		task.UpdatedAt = l.now()
		return *task, TaskUpdated
	}
	return l.AddTask(req), TaskCreated
}

func (l *Ledger) latestUnresolved(controlID string) int {
	found := -1
	for i, task := range l.tasks {
		if task.ControlID != controlID || task.Status == store.TaskResolved {
			continue
		}
		if found < 0 || !task.CreatedAt.Before(l.tasks[found].CreatedAt) {
			found = i
		}
	}
	return found
}

func (l *Ledger) Task(taskID string) (store.ControlTask, error) {
	for _, task := range l.tasks {
		if task.ID == taskID {
			return task, nil
		}
	}
	return store.ControlTask{}, ErrTaskNotFound
}

// UpdateTaskStatus moves a task forward (open, in_progress, resolved) and
// stamps UpdatedAt. It has no effect on the control.
func (l *Ledger) UpdateTaskStatus(taskID string, status store.TaskStatus) (store.ControlTask, error) {
	if !status.Valid() {
		return store.ControlTask{}, fmt.Errorf("%w: unknown status %q", ErrInvalidTaskTransition, status)
	}
	for i := range l.tasks {
		task := &l.tasks[i]
		if task.ID != taskID {
			continue
		}
		if taskRank(status) <= taskRank(task.Status) {
			return store.ControlTask{}, fmt.Errorf("%w: %s to %s", ErrInvalidTaskTransition, task.Status, status)
		}
		task.Status = status
		task.UpdatedAt = l.now()
		return *task, nil
	}
	return store.ControlTask{}, ErrTaskNotFound
}

func taskRank(status store.TaskStatus) int {
	switch status {
	case store.TaskOpen:
		return 0
	case store.TaskInProgress:
		return 1
	case store.TaskResolved:
		return 2
	default:
		return -1
	}
}

// OpenTasks returns every task that is not resolved, in insertion order.
func (l *Ledger) OpenTasks() []store.ControlTask {
	out := make([]store.ControlTask, 0)
	for _, task := range l.tasks {
		if task.Status != store.TaskResolved {
			out = append(out, task)
		}
	}
	return out
}

func (l *Ledger) TasksForControl(controlID string) []store.ControlTask {
	out := make([]store.ControlTask, 0)
	for _, task := range l.tasks {
		if task.ControlID == controlID {
			out = append(out, task)
		}
	}
	return out
}

// Messages returns a copy of the whole log for persistence.
func (l *Ledger) Messages() []store.ControlMessage {
	return append(make([]store.ControlMessage, 0, len(l.messages)), l.messages...)
}

// Tasks returns a copy of every task for persistence.
func (l *Ledger) Tasks() []store.ControlTask {
	return append(make([]store.ControlTask, 0, len(l.tasks)), l.tasks...)
}

// ReplaceMessages swaps in a log written by another instance.
func (l *Ledger) ReplaceMessages(messages []store.ControlMessage) {
	l.messages = append([]store.ControlMessage(nil), messages...)
}

// ReplaceTasks swaps in a worklist written by another instance.
func (l *Ledger) ReplaceTasks(tasks []store.ControlTask) {
	l.tasks = append([]store.ControlTask(nil), tasks...)
}
