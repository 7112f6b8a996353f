package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"safetysec/internal/models"
	"safetysec/pkg/logger"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type fakeAlertStore struct {
	mu          sync.Mutex
	failCreates int
	creates     int
	alerts      []*models.Alert
	attached    map[primitive.ObjectID]string
}

func (s *fakeAlertStore) CreateAlert(_ context.Context, alert *models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates++
	if s.failCreates > 0 {
		s.failCreates--
		return errors.New("insert failed")
	}
	alert.ID = primitive.NewObjectID()
	s.alerts = append(s.alerts, alert)
	return nil
}

func (s *fakeAlertStore) AttachVideo(_ context.Context, alertID primitive.ObjectID, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attached == nil {
		s.attached = make(map[primitive.ObjectID]string)
	}
	s.attached[alertID] = url
	return nil
}

func (s *fakeAlertStore) snapshot() (int, []*models.Alert, map[primitive.ObjectID]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creates, s.alerts, s.attached
}

type fakeRecorder struct {
	stuck bool
}

func (r *fakeRecorder) Record(ctx context.Context, _ time.Duration) (string, error) {
	if r.stuck {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return "/tmp/clip.mp4", nil
}

func (r *fakeRecorder) Upload(_ context.Context, _ primitive.ObjectID, _ string) (string, error) {
	return "https://evidence.example.com/clip.mp4", nil
}

func testWorkflowConfig() WorkflowConfig {
	return WorkflowConfig{
		Countdown:        30 * time.Millisecond,
		Tick:             10 * time.Millisecond,
		RecordDuration:   10 * time.Millisecond,
		SafetyTimeout:    2 * time.Second,
		CancellationCode: "1234",
	}
}

func testTrigger() TriggerContext {
	return TriggerContext{
		ProtectedID:   primitive.NewObjectID(),
		ProtectedName: "Ana",
		Type:          models.RuleTypePanicButton,
	}
}

// awaitCountdown waits for the workflow goroutine to enter the countdown, so
// a cancellation issued by the test cannot race the armed state.
func awaitCountdown(t *testing.T, w *Workflow) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for w.State() == StateArmed {
		if time.Now().After(deadline) {
			t.Fatal("workflow never entered countdown")
		}
		time.Sleep(time.Millisecond)
	}
}

func awaitDone(t *testing.T, w *Workflow) {
	t.Helper()
	select {
	case <-w.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("workflow did not terminate")
	}
}

func TestWorkflowFullRun(t *testing.T) {
	t.Parallel()

	store := &fakeAlertStore{}
	w := NewWorkflow(testWorkflowConfig(), testTrigger(), store, &fakeRecorder{}, logger.NewNop())
	w.Start(context.Background())
	awaitDone(t, w)

	if got := w.State(); got != StateDone {
		t.Fatalf("got state %s, want %s", got, StateDone)
	}

	creates, alerts, attached := store.snapshot()
	if creates != 1 || len(alerts) != 1 {
		t.Fatalf("got %d creates, want 1", creates)
	}
	alertID, have := w.AlertID()
	if !have || alertID != alerts[0].ID {
		t.Fatal("workflow does not expose the created alert id")
	}
	if attached[alertID] != "https://evidence.example.com/clip.mp4" {
		t.Fatalf("evidence url not attached: %v", attached)
	}
}

func TestWorkflowCancelDuringCountdown(t *testing.T) {
	t.Parallel()

	cfg := testWorkflowConfig()
	cfg.Countdown = 500 * time.Millisecond

	store := &fakeAlertStore{}
	w := NewWorkflow(cfg, testTrigger(), store, &fakeRecorder{}, logger.NewNop())
	w.Start(context.Background())
	awaitCountdown(t, w)

	if !w.Cancel("1234") {
		t.Fatal("correct code rejected during countdown")
	}
	awaitDone(t, w)

	if got := w.State(); got != StateCancelled {
		t.Fatalf("got state %s, want %s", got, StateCancelled)
	}
	if creates, _, _ := store.snapshot(); creates != 0 {
		t.Fatal("cancelled workflow created an alert")
	}
}

func TestWorkflowRejectsWrongCode(t *testing.T) {
	t.Parallel()

	cfg := testWorkflowConfig()
	cfg.Countdown = 500 * time.Millisecond

	w := NewWorkflow(cfg, testTrigger(), &fakeAlertStore{}, &fakeRecorder{}, logger.NewNop())
	w.Start(context.Background())

	if w.Cancel("9999") {
		t.Fatal("wrong code accepted")
	}
	if w.Cancel("") {
		t.Fatal("empty code accepted")
	}
	awaitDone(t, w)

	if got := w.State(); got != StateDone {
		t.Fatalf("got state %s, want %s", got, StateDone)
	}
}

func TestWorkflowEmptyStoredCodeNeverCancels(t *testing.T) {
	t.Parallel()

	cfg := testWorkflowConfig()
	cfg.Countdown = 500 * time.Millisecond
	cfg.CancellationCode = ""

	w := NewWorkflow(cfg, testTrigger(), &fakeAlertStore{}, &fakeRecorder{}, logger.NewNop())
	w.Start(context.Background())

	if w.Cancel("") {
		t.Fatal("cancellation accepted with no stored code")
	}
	awaitDone(t, w)
}

func TestWorkflowCancelAfterConfirmFails(t *testing.T) {
	t.Parallel()

	store := &fakeAlertStore{}
	w := NewWorkflow(testWorkflowConfig(), testTrigger(), store, &fakeRecorder{}, logger.NewNop())
	w.Start(context.Background())
	awaitDone(t, w)

	if w.Cancel("1234") {
		t.Fatal("cancellation accepted after confirmation")
	}
	if creates, _, _ := store.snapshot(); creates != 1 {
		t.Fatal("confirmed workflow did not create an alert")
	}
}

func TestWorkflowRetriesAlertCreation(t *testing.T) {
	t.Parallel()

	store := &fakeAlertStore{failCreates: 1}
	w := NewWorkflow(testWorkflowConfig(), testTrigger(), store, &fakeRecorder{}, logger.NewNop())
	w.Start(context.Background())
	awaitDone(t, w)

	creates, alerts, attached := store.snapshot()
	if creates != 2 || len(alerts) != 1 {
		t.Fatalf("got %d creates and %d alerts, want retry then success", creates, len(alerts))
	}
	if len(attached) != 1 {
		t.Fatal("evidence not attached after a retried creation")
	}
}

func TestWorkflowProceedsWithoutAlertRecord(t *testing.T) {
	t.Parallel()

	store := &fakeAlertStore{failCreates: 2}
	w := NewWorkflow(testWorkflowConfig(), testTrigger(), store, &fakeRecorder{}, logger.NewNop())
	w.Start(context.Background())
	awaitDone(t, w)

	if got := w.State(); got != StateDone {
		t.Fatalf("got state %s, want %s", got, StateDone)
	}
	if _, have := w.AlertID(); have {
		t.Fatal("alert id reported despite both creations failing")
	}
	if _, _, attached := store.snapshot(); len(attached) != 0 {
		t.Fatal("video attached with no alert record")
	}
}

func TestWorkflowSafetyTimeoutKillsStuckCapture(t *testing.T) {
	t.Parallel()

	cfg := testWorkflowConfig()
	cfg.SafetyTimeout = 150 * time.Millisecond

	store := &fakeAlertStore{}
	w := NewWorkflow(cfg, testTrigger(), store, &fakeRecorder{stuck: true}, logger.NewNop())
	w.Start(context.Background())
	awaitDone(t, w)

	if got := w.State(); got != StateDone {
		t.Fatalf("got state %s, want %s", got, StateDone)
	}
	creates, _, attached := store.snapshot()
	if creates != 1 {
		t.Fatal("alert record missing, it must exist before capture starts")
	}
	if len(attached) != 0 {
		t.Fatal("video attached despite the recorder never returning")
	}
}

func TestWorkflowContextCancellation(t *testing.T) {
	t.Parallel()

	cfg := testWorkflowConfig()
	cfg.Countdown = 5 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	w := NewWorkflow(cfg, testTrigger(), &fakeAlertStore{}, &fakeRecorder{}, logger.NewNop())
	w.Start(ctx)
	cancel()
	awaitDone(t, w)

	if got := w.State(); got != StateDone {
		t.Fatalf("got state %s, want %s", got, StateDone)
	}
}
