package entities

import (
	"context"
	"fmt"

	"controlroom/internal/ledger"
	"controlroom/internal/store"
)

// AppendMessage adds a ledger entry and persists the message log.
func (s *Store) AppendMessage(ctx context.Context, in ledger.NewMessage) (store.ControlMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, err := s.ledger.AddMessage(in)
	if err != nil {
		return store.ControlMessage{}, err
	}
	if err := s.messagesRepo.Save(ctx, s.ledger.Messages()); err != nil {
		return store.ControlMessage{}, fmt.Errorf("persist messages: %w", err)
	}
	return msg, nil
}

func (s *Store) MessagesForControl(controlID string) []store.ControlMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledger.MessagesForControl(controlID)
}

func (s *Store) Messages() []store.ControlMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledger.Messages()
}

// ReopenOrCreateTask refreshes the control's pending task or opens a new one,
// then persists the worklist.
func (s *Store) ReopenOrCreateTask(ctx context.Context, req ledger.TaskRequest) (store.ControlTask, ledger.TaskOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := s.ledger.Tasks()
	task, outcome := s.ledger.ReopenOrCreateTask(req)
	if err := s.tasksRepo.Save(ctx, s.ledger.Tasks()); err != nil {
		s.ledger.ReplaceTasks(before)
		return store.ControlTask{}, "", fmt.Errorf("persist tasks: %w", err)
	}
	return task, outcome, nil
}

func (s *Store) UpdateTaskStatus(ctx context.Context, taskID string, status store.TaskStatus) (store.ControlTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := s.ledger.Tasks()
	task, err := s.ledger.UpdateTaskStatus(taskID, status)
	if err != nil {
		return store.ControlTask{}, err
	}
	if err := s.tasksRepo.Save(ctx, s.ledger.Tasks()); err != nil {
		s.ledger.ReplaceTasks(before)
		return store.ControlTask{}, fmt.Errorf("persist tasks: %w", err)
	}
	return task, nil
}

func (s *Store) Task(taskID string) (store.ControlTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledger.Task(taskID)
}

func (s *Store) Tasks() []store.ControlTask {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledger.Tasks()
}

func (s *Store) OpenTasks() []store.ControlTask {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledger.OpenTasks()
}

func (s *Store) TasksForControl(controlID string) []store.ControlTask {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledger.TasksForControl(controlID)
}
