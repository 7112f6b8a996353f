package engine

import (
	"context"
	"testing"
	"time"

	"safetysec/internal/models"
	"safetysec/pkg/logger"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// liveEngine starts an engine with filtering disabled so samples are
// evaluated immediately, and returns the channel its violations land on.
func liveEngine(t *testing.T) (*Engine, <-chan Violation) {
	t.Helper()

	cfg := DefaultConfig()
	cfg.WarmUpPeriod = 0
	cfg.MinGPSFixes = 0

	violations := make(chan Violation, 8)
	e := New(cfg, func(v Violation) { violations <- v }, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go e.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-e.Stopped()
	})
	return e, violations
}

func awaitViolation(t *testing.T, ch <-chan Violation) Violation {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("no violation within deadline")
		return Violation{}
	}
}

func TestEngineManualPanic(t *testing.T) {
	t.Parallel()

	e, violations := liveEngine(t)

	e.TriggerPanic()
	v := awaitViolation(t, violations)
	if v.Type != models.RuleTypePanicButton {
		t.Fatalf("got violation type %s, want %s", v.Type, models.RuleTypePanicButton)
	}
	if v.Rule != nil {
		t.Fatal("manual panic violation carries a rule")
	}

	// A second press inside the cooldown window is swallowed.
	e.TriggerPanic()
	select {
	case <-violations:
		t.Fatal("panic re-fired inside the cooldown window")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestEngineFixPipeline(t *testing.T) {
	t.Parallel()

	e, violations := liveEngine(t)

	rule := models.SafetyRule{
		ID:         primitive.NewObjectID(),
		Type:       models.RuleTypeSpeedLimit,
		Params:     map[string]float64{"max_speed": 50},
		Authorized: true,
	}
	e.UpdateRules([]models.SafetyRule{rule})

	// The snapshot and the fix race on independent channels; keep feeding
	// fixes until the snapshot has been applied.
	deadline := time.After(2 * time.Second)
	for {
		e.PushFix(models.LocationFix{Latitude: 40, Longitude: -74, SpeedMS: 30})
		select {
		case v := <-violations:
			if v.Type != models.RuleTypeSpeedLimit {
				t.Fatalf("got violation type %s, want %s", v.Type, models.RuleTypeSpeedLimit)
			}
			if v.Rule == nil || v.Rule.Rule.ID != rule.ID {
				t.Fatal("violation does not reference the triggering rule")
			}
			return
		case <-deadline:
			t.Fatal("no violation within deadline")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestEnginePushNeverBlocks(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.SampleBuffer = 1
	e := New(cfg, nil, logger.NewNop())

	// The engine is not running: the second sample of each kind must be
	// dropped, not queued.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5; i++ {
			e.PushFix(models.LocationFix{Latitude: 40, Longitude: -74})
			e.PushAccel(models.AccelSample{Z: 9.8})
			e.TriggerPanic()
			e.UpdateRules(nil)
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("push blocked against a stopped engine")
	}
}
