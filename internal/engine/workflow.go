package engine

import (
	"context"
	"sync"
	"time"

	"safetysec/internal/models"
	"safetysec/pkg/logger"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type WorkflowState string

const (
	StateArmed      WorkflowState = "armed"
	StateCountdown  WorkflowState = "countdown"
	StateCancelled  WorkflowState = "cancelled"
	StateConfirmed  WorkflowState = "confirmed"
	StateCapturing  WorkflowState = "capturing"
	StateSubmitting WorkflowState = "submitting"
	StateDone       WorkflowState = "done"
)

// TriggerContext is the device snapshot taken at violation time and carried
// through the workflow into the alert record.
type TriggerContext struct {
	ProtectedID   primitive.ObjectID
	ProtectedName string
	Type          models.RuleType
	RuleID        *primitive.ObjectID
	Location      *models.GeoPoint
	SpeedKmh      *float64
	BatteryLevel  *float64
}

// AlertStore is the narrow persistence contract the workflow needs. The full
// repository lives behind it.
type AlertStore interface {
	CreateAlert(ctx context.Context, alert *models.Alert) error
	AttachVideo(ctx context.Context, alertID primitive.ObjectID, url string) error
}

// Recorder captures a bounded evidence clip and uploads it. Both calls must
// return on context cancellation; neither may leave the caller waiting.
type Recorder interface {
	Record(ctx context.Context, maxDuration time.Duration) (localPath string, err error)
	Upload(ctx context.Context, protectedID primitive.ObjectID, localPath string) (url string, err error)
}

type WorkflowConfig struct {
	Countdown        time.Duration
	Tick             time.Duration // countdown tick granularity, 1s in production
	RecordDuration   time.Duration
	SafetyTimeout    time.Duration // wall clock from countdown entry, hard bound
	CancellationCode string
	OnTick           func(secondsLeft int) // optional, for the presentation layer
}

// Workflow drives one emergency event: countdown, cancellation window,
// durable alert record, evidence capture and upload. The countdown timer and
// the cancellation input race for the same transition; a mutex-guarded
// compare-and-set decides the winner, and once confirmed the cancellation
// path is dead.
type Workflow struct {
	cfg      WorkflowConfig
	store    AlertStore
	recorder Recorder
	trigger  TriggerContext
	log      *logger.Logger

	mu        sync.Mutex
	state     WorkflowState
	alertID   primitive.ObjectID
	haveAlert bool

	cancelled chan struct{}
	done      chan struct{}
}

func NewWorkflow(cfg WorkflowConfig, trigger TriggerContext, store AlertStore, recorder Recorder, log *logger.Logger) *Workflow {
	if cfg.Tick <= 0 {
		cfg.Tick = time.Second
	}
	return &Workflow{
		cfg:       cfg,
		store:     store,
		recorder:  recorder,
		trigger:   trigger,
		log:       log,
		state:     StateArmed,
		cancelled: make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start launches the workflow goroutine. The countdown begins immediately.
func (w *Workflow) Start(ctx context.Context) {
	go w.run(ctx)
}

// Cancel attempts to abort the countdown with the protected user's
// cancellation code. It reports whether the workflow was cancelled; a wrong
// code, an empty stored code, or a countdown already expired all leave the
// workflow untouched.
func (w *Workflow) Cancel(code string) bool {
	if w.cfg.CancellationCode == "" || code != w.cfg.CancellationCode {
		return false
	}
	if !w.transition(StateCountdown, StateCancelled) {
		return false
	}
	close(w.cancelled)
	return true
}

// State returns the current workflow state.
func (w *Workflow) State() WorkflowState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// AlertID returns the durable record id once one exists.
func (w *Workflow) AlertID() (primitive.ObjectID, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.alertID, w.haveAlert
}

// Done is closed when the workflow reaches a terminal state and every owned
// resource has been released.
func (w *Workflow) Done() <-chan struct{} {
	return w.done
}

func (w *Workflow) run(ctx context.Context) {
	defer close(w.done)

	w.setState(StateCountdown)

	safety := time.NewTimer(w.cfg.SafetyTimeout)
	defer safety.Stop()

	if !w.countdown(ctx, safety.C) {
		return
	}

	// Create the durable record first so monitors are notified regardless
	// of whether evidence capture works out.
	w.createAlert(ctx)

	url, ok := w.capture(ctx, safety.C)
	if ok {
		w.attachVideo(ctx, url)
	}

	w.setState(StateDone)
}

// countdown runs the cancellation window. It returns true when the workflow
// was confirmed, false for any terminal outcome.
func (w *Workflow) countdown(ctx context.Context, safety <-chan time.Time) bool {
	expiry := time.NewTimer(w.cfg.Countdown)
	defer expiry.Stop()

	ticker := time.NewTicker(w.cfg.Tick)
	defer ticker.Stop()

	remaining := int(w.cfg.Countdown / w.cfg.Tick)
	for {
		select {
		case <-ctx.Done():
			w.setState(StateDone)
			return false

		case <-w.cancelled:
			w.log.Info("alert cancelled during countdown")
			return false

		case <-safety:
			w.log.Error("safety timeout during countdown, terminating")
			w.setState(StateDone)
			return false

		case <-ticker.C:
			if remaining > 0 {
				remaining--
			}
			if w.cfg.OnTick != nil {
				w.cfg.OnTick(remaining)
			}

		case <-expiry.C:
			// The cancellation input may have won the race a moment
			// ago; the compare-and-set decides.
			if !w.transition(StateCountdown, StateConfirmed) {
				return false
			}
			w.log.Warn("countdown expired, alert confirmed")
			return true
		}
	}
}

// createAlert persists the initial record with a null video URL. Creation is
// retried once; after that the workflow proceeds without a record rather than
// stalling the evidence path.
func (w *Workflow) createAlert(ctx context.Context) {
	alert := &models.Alert{
		ProtectedID:   w.trigger.ProtectedID,
		ProtectedName: w.trigger.ProtectedName,
		Type:          w.trigger.Type,
		RuleID:        w.trigger.RuleID,
		Location:      w.trigger.Location,
		SpeedKmh:      w.trigger.SpeedKmh,
		BatteryLevel:  w.trigger.BatteryLevel,
	}

	err := w.store.CreateAlert(ctx, alert)
	if err != nil {
		w.log.WithError(err).Error("alert record creation failed, retrying once")
		err = w.store.CreateAlert(ctx, alert)
	}
	if err != nil {
		w.log.WithError(err).Error("alert record creation failed twice, proceeding without record")
		return
	}

	w.mu.Lock()
	w.alertID = alert.ID
	w.haveAlert = true
	w.mu.Unlock()
	w.log.WithField("alert_id", alert.ID.Hex()).Info("alert record created")
}

type captureResult struct {
	url string
	err error
}

// capture runs recording and upload, bounded by the safety timer. A stuck
// camera or upload cannot hold the workflow: the safety channel cancels the
// capture context and forces termination.
func (w *Workflow) capture(ctx context.Context, safety <-chan time.Time) (string, bool) {
	w.setState(StateCapturing)

	capCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan captureResult, 1)
	go func() {
		path, err := w.recorder.Record(capCtx, w.cfg.RecordDuration)
		if err != nil {
			results <- captureResult{err: err}
			return
		}
		w.setState(StateSubmitting)
		url, err := w.recorder.Upload(capCtx, w.trigger.ProtectedID, path)
		results <- captureResult{url: url, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", false

	case <-safety:
		w.log.Error("safety timeout, force-terminating evidence capture")
		cancel()
		w.setState(StateDone)
		return "", false

	case r := <-results:
		if r.err != nil {
			w.log.WithError(r.err).Error("evidence capture failed, alert stands without video")
			return "", false
		}
		return r.url, true
	}
}

func (w *Workflow) attachVideo(ctx context.Context, url string) {
	w.mu.Lock()
	alertID, have := w.alertID, w.haveAlert
	w.mu.Unlock()
	if !have {
		return
	}

	if err := w.store.AttachVideo(ctx, alertID, url); err != nil {
		w.log.WithError(err).Error("failed to attach video to alert record")
		return
	}
	w.log.WithField("alert_id", alertID.Hex()).Info("evidence attached to alert record")
}

func (w *Workflow) setState(s WorkflowState) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

// transition is the compare-and-set guard on the state field.
func (w *Workflow) transition(from, to WorkflowState) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != from {
		return false
	}
	w.state = to
	return true
}
