package workflow

import (
	"context"
	"errors"
	"testing"

	"controlroom/internal/entities"
	"controlroom/internal/ledger"
	"controlroom/internal/logger"
	"controlroom/internal/rbac"
	"controlroom/internal/store"
)

var (
	auditor = Actor{Name: "Jordan Reyes", Role: rbac.RoleAuditor}
	client  = Actor{Name: "Sarah Chen", Role: rbac.RoleClient}
)

// hookedStore wraps a real entity store; set a hook to intercept one call.
type hookedStore struct {
	*entities.Store
	reopenOrCreateTaskFn func(context.Context, ledger.TaskRequest) (store.ControlTask, ledger.TaskOutcome, error)
}

func (h *hookedStore) ReopenOrCreateTask(ctx context.Context, req ledger.TaskRequest) (store.ControlTask, ledger.TaskOutcome, error) {
	if h.reopenOrCreateTaskFn != nil {
		return h.reopenOrCreateTaskFn(ctx, req)
	}
	return h.Store.ReopenOrCreateTask(ctx, req)
}

type countingRecorder struct {
	changes []Cause
	denied  int
	tasks   []store.TaskStatus
}

func (r *countingRecorder) StatusChanged(_, _ store.ControlStatus, cause Cause) {
	r.changes = append(r.changes, cause)
}
func (r *countingRecorder) Denied(rbac.Role, string)            { r.denied++ }
func (r *countingRecorder) TaskChanged(status store.TaskStatus) { r.tasks = append(r.tasks, status) }

type recordingNotifier struct {
	calls []ledger.TaskOutcome
	err   error
}

func (n *recordingNotifier) TaskRequested(_ context.Context, _ store.ControlTask, _ store.Control, outcome ledger.TaskOutcome) error {
	n.calls = append(n.calls, outcome)
	return n.err
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *hookedStore) {
	t.Helper()
	s := entities.Open(context.Background(), store.NewMemoryBackend(), nil, logger.Nop())
	t.Cleanup(s.Close)
	hooked := &hookedStore{Store: s}
	return NewEngine(hooked, logger.Nop(), opts...), hooked
}

func TestAuthorize(t *testing.T) {
	cases := []struct {
		name    string
		role    rbac.Role
		current store.ControlStatus
		target  store.ControlStatus
		wantErr error
	}{
		{"auditor accepts", rbac.RoleAuditor, store.StatusNeedsReview, store.StatusAccepted, nil},
		{"auditor reopens accepted", rbac.RoleAuditor, store.StatusAccepted, store.StatusNeedsReview, nil},
		{"auditor requests evidence", rbac.RoleAuditor, store.StatusNeedsReview, store.StatusAdditionalEvidenceNeeded, nil},
		{"client sends to review", rbac.RoleClient, store.StatusAdditionalEvidenceNeeded, store.StatusNeedsReview, nil},
		{"client marks not applicable", rbac.RoleClient, store.StatusNeedsReview, store.StatusNotApplicable, nil},
		{"client cannot accept", rbac.RoleClient, store.StatusNeedsReview, store.StatusAccepted, ErrForbidden},
		{"client cannot request evidence", rbac.RoleClient, store.StatusNeedsReview, store.StatusAdditionalEvidenceNeeded, ErrForbidden},
		{"client locked out of accepted", rbac.RoleClient, store.StatusAccepted, store.StatusNeedsReview, ErrControlLocked},
		{"client locked out of accepted to n/a", rbac.RoleClient, store.StatusAccepted, store.StatusNotApplicable, ErrControlLocked},
		{"unknown role", rbac.Role("vendor"), store.StatusNeedsReview, store.StatusNeedsReview, ErrUnknownRole},
		{"unknown target", rbac.RoleAuditor, store.StatusNeedsReview, store.ControlStatus("Passing"), ErrInvalidStatus},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Authorize(tc.role, tc.current, tc.target)
			if tc.wantErr == nil && err != nil {
				t.Fatalf("expected allowed, got %v", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestAllowedTargets(t *testing.T) {
	got := AllowedTargets(rbac.RoleClient, store.StatusAdditionalEvidenceNeeded)
	if len(got) != 2 || got[0] != store.StatusNeedsReview || got[1] != store.StatusNotApplicable {
		t.Fatalf("unexpected client targets %v", got)
	}
	if got := AllowedTargets(rbac.RoleClient, store.StatusAccepted); len(got) != 0 {
		t.Fatalf("accepted control must offer clients nothing, got %v", got)
	}
	if got := AllowedTargets(rbac.RoleAuditor, store.StatusAccepted); len(got) != 3 {
		t.Fatalf("auditor should see three targets, got %v", got)
	}
}

func TestClientCannotMoveAcceptedControl(t *testing.T) {
	ctx := context.Background()
	recorder := &countingRecorder{}
	engine, s := newTestEngine(t, WithRecorder(recorder))

	for _, target := range store.ControlStatuses {
		if target == store.StatusAccepted {
			continue
		}
		if _, err := engine.ChangeStatus(ctx, client, "CTL-001", target); !errors.Is(err, ErrForbidden) {
			t.Fatalf("target %s: expected ErrForbidden, got %v", target, err)
		}
	}

	control, _ := s.Control("CTL-001")
	if control.Status != store.StatusAccepted {
		t.Fatalf("status must stay Accepted, got %s", control.Status)
	}
	if msgs := s.MessagesForControl("CTL-001"); len(msgs) != 0 {
		t.Fatalf("denied changes must not append messages, got %d", len(msgs))
	}
	if recorder.denied != 3 {
		t.Fatalf("expected 3 denials recorded, got %d", recorder.denied)
	}
}

func TestChangeStatusAppendsOneStatusChange(t *testing.T) {
	ctx := context.Background()
	engine, s := newTestEngine(t)

	result, err := engine.ChangeStatus(ctx, auditor, "CTL-004", store.StatusAccepted)
	if err != nil {
		t.Fatalf("ChangeStatus: %v", err)
	}
	if !result.Changed || result.Control.Status != store.StatusAccepted {
		t.Fatalf("unexpected result %+v", result)
	}

	msgs := s.MessagesForControl("CTL-004")
	if len(msgs) != 1 || msgs[0].Type != store.MessageStatusChange {
		t.Fatalf("expected one status_change message, got %+v", msgs)
	}
	if *msgs[0].PreviousStatus != store.StatusNeedsReview || *msgs[0].NewStatus != store.StatusAccepted {
		t.Fatalf("unexpected transition recorded %+v", msgs[0])
	}
	if msgs[0].Author != auditor.Name || msgs[0].AuthorRole != "auditor" {
		t.Fatalf("actor not recorded %+v", msgs[0])
	}
	if len(s.TasksForControl("CTL-004")) != 0 {
		t.Fatalf("selector changes must not create tasks")
	}
}

func TestChangeStatusSameStatusIsNoop(t *testing.T) {
	engine, s := newTestEngine(t)

	result, err := engine.ChangeStatus(context.Background(), client, "CTL-004", store.StatusNeedsReview)
	if err != nil {
		t.Fatalf("ChangeStatus: %v", err)
	}
	if result.Changed || len(s.MessagesForControl("CTL-004")) != 0 {
		t.Fatalf("same-status change must not append messages")
	}
}

func TestChangeStatusRejectsDirectEvidenceNeeded(t *testing.T) {
	engine, s := newTestEngine(t)

	_, err := engine.ChangeStatus(context.Background(), auditor, "CTL-004", store.StatusAdditionalEvidenceNeeded)
	if !errors.Is(err, ErrEvidenceRequestRequired) {
		t.Fatalf("expected ErrEvidenceRequestRequired, got %v", err)
	}
	control, _ := s.Control("CTL-004")
	if control.Status != store.StatusNeedsReview {
		t.Fatalf("status changed unexpectedly to %s", control.Status)
	}
}

func TestChangeStatusUnknownControl(t *testing.T) {
	engine, _ := newTestEngine(t)
	if _, err := engine.ChangeStatus(context.Background(), auditor, "CTL-404", store.StatusAccepted); !errors.Is(err, entities.ErrControlNotFound) {
		t.Fatalf("expected ErrControlNotFound, got %v", err)
	}
}

func TestRequestEvidenceFromNeedsReview(t *testing.T) {
	ctx := context.Background()
	notifier := &recordingNotifier{}
	engine, s := newTestEngine(t, WithNotifier(notifier))

	result, err := engine.RequestEvidence(ctx, auditor, "CTL-004", "M")
	if err != nil {
		t.Fatalf("RequestEvidence: %v", err)
	}

	msgs := s.MessagesForControl("CTL-004")
	if len(msgs) != 2 {
		t.Fatalf("expected exactly 2 messages, got %d", len(msgs))
	}
	if msgs[0].Type != store.MessageEvidenceRequest || msgs[0].Content != "M" {
		t.Fatalf("first message should be the evidence request, got %+v", msgs[0])
	}
	if msgs[1].Type != store.MessageStatusChange ||
		*msgs[1].PreviousStatus != store.StatusNeedsReview ||
		*msgs[1].NewStatus != store.StatusAdditionalEvidenceNeeded {
		t.Fatalf("second message should record the transition, got %+v", msgs[1])
	}

	tasks := s.TasksForControl("CTL-004")
	if len(tasks) != 1 || tasks[0].Status != store.TaskOpen || tasks[0].AssignedTo != "David Kim" {
		t.Fatalf("expected one open task for the owner, got %+v", tasks)
	}
	if result.Outcome != ledger.TaskCreated || result.Task == nil {
		t.Fatalf("expected created task in result, got %+v", result)
	}

	control, _ := s.Control("CTL-004")
	if control.Status != store.StatusAdditionalEvidenceNeeded {
		t.Fatalf("expected Additional Evidence Needed, got %s", control.Status)
	}
	if len(notifier.calls) != 1 || notifier.calls[0] != ledger.TaskCreated {
		t.Fatalf("expected owner notified once, got %v", notifier.calls)
	}
}

func TestRequestEvidenceTwiceReusesPendingTask(t *testing.T) {
	ctx := context.Background()
	engine, s := newTestEngine(t)

	if _, err := engine.RequestEvidence(ctx, auditor, "CTL-004", "first"); err != nil {
		t.Fatalf("first request: %v", err)
	}
	result, err := engine.RequestEvidence(ctx, auditor, "CTL-004", "second")
	if err != nil {
		t.Fatalf("second request: %v", err)
	}

	if result.Outcome != ledger.TaskUpdated || result.Changed {
		t.Fatalf("expected task update without status change, got %+v", result)
	}
	tasks := s.TasksForControl("CTL-004")
	if len(tasks) != 1 || tasks[0].Message != "second" {
		t.Fatalf("expected a single refreshed task, got %+v", tasks)
	}
	// evidence_request, status_change, evidence_request
	if got := len(s.MessagesForControl("CTL-004")); got != 3 {
		t.Fatalf("expected 3 messages, got %d", got)
	}
}

func TestRequestEvidenceFailureLeavesStatus(t *testing.T) {
	ctx := context.Background()
	engine, s := newTestEngine(t)
	s.reopenOrCreateTaskFn = func(context.Context, ledger.TaskRequest) (store.ControlTask, ledger.TaskOutcome, error) {
		return store.ControlTask{}, "", errors.New("tasks unavailable")
	}

	if _, err := engine.RequestEvidence(ctx, auditor, "CTL-004", "M"); err == nil {
		t.Fatalf("expected failure")
	}

	control, _ := s.Control("CTL-004")
	if control.Status != store.StatusNeedsReview {
		t.Fatalf("status must not change when the task step fails, got %s", control.Status)
	}
	if got := len(s.MessagesForControl("CTL-004")); got != 2 {
		t.Fatalf("messages written before the failure remain, got %d", got)
	}
}

func TestRequestEvidenceValidation(t *testing.T) {
	ctx := context.Background()
	recorder := &countingRecorder{}
	engine, s := newTestEngine(t, WithRecorder(recorder))

	if _, err := engine.RequestEvidence(ctx, client, "CTL-004", "M"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected clients to be refused, got %v", err)
	}
	if _, err := engine.RequestEvidence(ctx, auditor, "CTL-004", "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	if len(s.MessagesForControl("CTL-004")) != 0 || len(s.TasksForControl("CTL-004")) != 0 {
		t.Fatalf("rejected requests must leave no trace")
	}
	if recorder.denied != 1 {
		t.Fatalf("expected one denial, got %d", recorder.denied)
	}
}

func TestResolveTaskReturnsControlToNeedsReview(t *testing.T) {
	ctx := context.Background()
	recorder := &countingRecorder{}
	engine, s := newTestEngine(t, WithRecorder(recorder))

	requested, err := engine.RequestEvidence(ctx, auditor, "CTL-001", "Need the June export")
	if err != nil {
		t.Fatalf("RequestEvidence: %v", err)
	}
	before := len(s.MessagesForControl("CTL-001"))

	result, err := engine.ResolveTask(ctx, client, requested.Task.ID)
	if err != nil {
		t.Fatalf("ResolveTask: %v", err)
	}

	if result.Task.Status != store.TaskResolved {
		t.Fatalf("expected resolved task, got %s", result.Task.Status)
	}
	control, _ := s.Control("CTL-001")
	if control.Status != store.StatusNeedsReview {
		t.Fatalf("expected Needs Review, got %s", control.Status)
	}
	msgs := s.MessagesForControl("CTL-001")
	if len(msgs) != before+1 {
		t.Fatalf("expected exactly one new message, got %d", len(msgs)-before)
	}
	last := msgs[len(msgs)-1]
	if last.Type != store.MessageStatusChange ||
		*last.PreviousStatus != store.StatusAdditionalEvidenceNeeded ||
		*last.NewStatus != store.StatusNeedsReview {
		t.Fatalf("unexpected implicit transition message %+v", last)
	}
	if len(recorder.changes) != 2 || recorder.changes[1] != CauseTaskResolved {
		t.Fatalf("expected resolution recorded as a status change, got %v", recorder.changes)
	}
}

func TestResolveTaskLeavesAcceptedControl(t *testing.T) {
	ctx := context.Background()
	recorder := &countingRecorder{}
	engine, s := newTestEngine(t, WithRecorder(recorder))

	requested, err := engine.RequestEvidence(ctx, auditor, "CTL-004", "Need the Q2 tickets")
	if err != nil {
		t.Fatalf("RequestEvidence: %v", err)
	}
	if _, err := engine.ChangeStatus(ctx, auditor, "CTL-004", store.StatusAccepted); err != nil {
		t.Fatalf("ChangeStatus: %v", err)
	}
	before := len(s.MessagesForControl("CTL-004"))
	changes := len(recorder.changes)

	result, err := engine.ResolveTask(ctx, client, requested.Task.ID)
	if err != nil {
		t.Fatalf("ResolveTask: %v", err)
	}

	if result.Task.Status != store.TaskResolved || result.Status != nil {
		t.Fatalf("expected resolved task without status change, got %+v", result)
	}
	control, _ := s.Control("CTL-004")
	if control.Status != store.StatusAccepted {
		t.Fatalf("accepted control must stay locked, got %s", control.Status)
	}
	if got := len(s.MessagesForControl("CTL-004")); got != before {
		t.Fatalf("expected no new messages, got %d", got-before)
	}
	if len(recorder.changes) != changes {
		t.Fatalf("expected no recorded status change, got %v", recorder.changes[changes:])
	}
}

func TestResolveTaskRequiresClient(t *testing.T) {
	ctx := context.Background()
	engine, s := newTestEngine(t)

	requested, err := engine.RequestEvidence(ctx, auditor, "CTL-004", "M")
	if err != nil {
		t.Fatalf("RequestEvidence: %v", err)
	}
	if _, err := engine.ResolveTask(ctx, auditor, requested.Task.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected auditors to be refused, got %v", err)
	}
	task, _ := s.Task(requested.Task.ID)
	if task.Status != store.TaskOpen {
		t.Fatalf("task must remain open, got %s", task.Status)
	}
}

func TestStartThenResolveTask(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t)

	requested, err := engine.RequestEvidence(ctx, auditor, "CTL-004", "M")
	if err != nil {
		t.Fatalf("RequestEvidence: %v", err)
	}
	started, err := engine.StartTask(ctx, client, requested.Task.ID)
	if err != nil || started.Task.Status != store.TaskInProgress {
		t.Fatalf("StartTask: %v %+v", err, started)
	}
	if _, err := engine.ResolveTask(ctx, client, requested.Task.ID); err != nil {
		t.Fatalf("ResolveTask: %v", err)
	}
	if _, err := engine.ResolveTask(ctx, client, requested.Task.ID); !errors.Is(err, ledger.ErrInvalidTaskTransition) {
		t.Fatalf("expected second resolve to fail, got %v", err)
	}
}

func TestCommentKeepsMentions(t *testing.T) {
	engine, s := newTestEngine(t)

	msg, err := engine.Comment(context.Background(), client, "CTL-002", "Uploaded the sign-off", []string{"Marcus Webb"})
	if err != nil {
		t.Fatalf("Comment: %v", err)
	}
	if msg.Type != store.MessageComment || len(msg.Mentions) != 1 {
		t.Fatalf("unexpected comment %+v", msg)
	}
	if got := s.MessagesForControl("CTL-002"); len(got) != 1 {
		t.Fatalf("expected comment stored, got %d", len(got))
	}
	if _, err := engine.Comment(context.Background(), client, "CTL-002", " ", nil); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
}
