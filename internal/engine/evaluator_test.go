package engine

import (
	"testing"
	"time"

	"safetysec/internal/models"
	"safetysec/pkg/logger"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var evalStart = time.Date(2024, 1, 3, 12, 0, 0, 0, time.UTC)

func authorizedRule(typ models.RuleType, params map[string]float64) *ParsedRule {
	return ParseRule(models.SafetyRule{
		ID:         primitive.NewObjectID(),
		Type:       typ,
		Params:     params,
		Authorized: true,
	})
}

func fixAt(lat, lng, speedMS float64) models.LocationFix {
	return models.LocationFix{Latitude: lat, Longitude: lng, SpeedMS: speedMS}
}

// primedEvaluator returns an evaluator past warm-up with its seed fixes spent,
// anchored at (40, -74) and standing still. The returned time is the first
// instant at which samples are evaluated against rules.
func primedEvaluator(t *testing.T, cfg Config) (*Evaluator, time.Time) {
	t.Helper()

	ev := NewEvaluator(cfg, evalStart, logger.NewNop())
	now := evalStart.Add(cfg.WarmUpPeriod)
	for i := 0; i < cfg.MinGPSFixes; i++ {
		if v := ev.EvaluateFix(nil, fixAt(40, -74, 0), now); v != nil {
			t.Fatalf("seed fix %d produced a violation", i)
		}
		now = now.Add(time.Second)
	}
	return ev, now
}

func TestEvaluatorWarmUpDiscardsSamples(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	ev := NewEvaluator(cfg, evalStart, logger.NewNop())
	rules := []*ParsedRule{authorizedRule(models.RuleTypeSpeedLimit, map[string]float64{"max_speed": 10})}

	during := evalStart.Add(cfg.WarmUpPeriod - time.Second)
	if v := ev.EvaluateFix(rules, fixAt(40, -74, 50), during); v != nil {
		t.Fatal("fix evaluated during warm-up")
	}

	fall := []*ParsedRule{authorizedRule(models.RuleTypeFallDetection, nil)}
	if v := ev.EvaluateAccel(fall, models.AccelSample{X: 30}, during); v != nil {
		t.Fatal("accelerometer sample evaluated during warm-up")
	}
}

func TestEvaluatorSeedFixesOnlyPrimeState(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	ev := NewEvaluator(cfg, evalStart, logger.NewNop())
	rules := []*ParsedRule{authorizedRule(models.RuleTypeSpeedLimit, map[string]float64{"max_speed": 10})}

	now := evalStart.Add(cfg.WarmUpPeriod)
	for i := 0; i < cfg.MinGPSFixes; i++ {
		if v := ev.EvaluateFix(rules, fixAt(40, -74, 50), now); v != nil {
			t.Fatalf("seed fix %d triggered a rule", i)
		}
		now = now.Add(time.Second)
	}

	if v := ev.EvaluateFix(rules, fixAt(40, -74, 50), now); v == nil {
		t.Fatal("first post-seed fix not evaluated")
	}
}

func TestEvaluatorGeofence(t *testing.T) {
	t.Parallel()

	ev, now := primedEvaluator(t, DefaultConfig())
	rules := []*ParsedRule{authorizedRule(models.RuleTypeGeofencing, map[string]float64{"lat": 40, "lng": -74})}

	// ~55m from center, inside the default 100m radius.
	if v := ev.EvaluateFix(rules, fixAt(40.0005, -74, 0), now); v != nil {
		t.Fatal("fix inside the geofence triggered")
	}

	// ~222m from center.
	v := ev.EvaluateFix(rules, fixAt(40.002, -74, 0), now.Add(time.Second))
	if v == nil {
		t.Fatal("fix outside the geofence did not trigger")
	}
	if v.Type != models.RuleTypeGeofencing {
		t.Fatalf("got violation type %s, want %s", v.Type, models.RuleTypeGeofencing)
	}
	if v.Fix == nil || v.Fix.Latitude != 40.002 {
		t.Fatal("violation does not carry the triggering fix")
	}
}

func TestEvaluatorSpeedLimit(t *testing.T) {
	t.Parallel()

	ev, now := primedEvaluator(t, DefaultConfig())
	rules := []*ParsedRule{authorizedRule(models.RuleTypeSpeedLimit, nil)}

	// 33 m/s is 118.8 km/h, under the default 120 limit.
	if v := ev.EvaluateFix(rules, fixAt(40, -74, 33), now); v != nil {
		t.Fatal("speed under the limit triggered")
	}

	// 34 m/s is 122.4 km/h.
	if v := ev.EvaluateFix(rules, fixAt(40, -74, 34), now.Add(time.Second)); v == nil {
		t.Fatal("speed over the limit did not trigger")
	}
}

func TestEvaluatorCooldownSuppressesRepeat(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	ev, now := primedEvaluator(t, cfg)
	rules := []*ParsedRule{authorizedRule(models.RuleTypeSpeedLimit, map[string]float64{"max_speed": 50})}

	if v := ev.EvaluateFix(rules, fixAt(40, -74, 20), now); v == nil {
		t.Fatal("first violation not emitted")
	}
	if v := ev.EvaluateFix(rules, fixAt(40, -74, 20), now.Add(30*time.Second)); v != nil {
		t.Fatal("repeat violation emitted inside the cooldown window")
	}
	if v := ev.EvaluateFix(rules, fixAt(40, -74, 20), now.Add(cfg.CooldownWindow+time.Second)); v == nil {
		t.Fatal("violation not emitted after the cooldown elapsed")
	}
}

func TestEvaluatorCrashDetection(t *testing.T) {
	t.Parallel()

	ev, now := primedEvaluator(t, DefaultConfig())
	rules := []*ParsedRule{authorizedRule(models.RuleTypeCarAccident, nil)}

	// Standing start: the sudden jump to 60 km/h is an acceleration, the
	// prior speed is below the crash floor.
	if v := ev.EvaluateFix(rules, fixAt(40, -74, 16.7), now); v != nil {
		t.Fatal("acceleration from standstill triggered crash detection")
	}

	// 60 km/h down to 18 km/h between consecutive fixes.
	v := ev.EvaluateFix(rules, fixAt(40, -74, 5), now.Add(time.Second))
	if v == nil {
		t.Fatal("hard deceleration did not trigger")
	}
	if v.Type != models.RuleTypeCarAccident {
		t.Fatalf("got violation type %s, want %s", v.Type, models.RuleTypeCarAccident)
	}
}

func TestEvaluatorCrashSpeedFloor(t *testing.T) {
	t.Parallel()

	ev, now := primedEvaluator(t, DefaultConfig())
	rules := []*ParsedRule{authorizedRule(models.RuleTypeCarAccident, nil)}

	// 18 km/h is below the 20 km/h floor, so the full stop that follows is
	// treated as walking-pace jitter.
	if v := ev.EvaluateFix(rules, fixAt(40, -74, 5), now); v != nil {
		t.Fatal("unexpected violation while establishing prior speed")
	}
	if v := ev.EvaluateFix(rules, fixAt(40, -74, 0), now.Add(time.Second)); v != nil {
		t.Fatal("stop from below the crash speed floor triggered")
	}
}

func TestEvaluatorInactivity(t *testing.T) {
	t.Parallel()

	ev, now := primedEvaluator(t, DefaultConfig())
	rules := []*ParsedRule{authorizedRule(models.RuleTypeInactivity, map[string]float64{"duration": 1})}

	// Still short of a minute since the last movement.
	if v := ev.EvaluateFix(rules, fixAt(40, -74, 0), now.Add(30*time.Second)); v != nil {
		t.Fatal("inactivity triggered before the configured duration")
	}

	v := ev.EvaluateFix(rules, fixAt(40, -74, 0), now.Add(90*time.Second))
	if v == nil {
		t.Fatal("stationary past the duration did not trigger")
	}
	if v.Type != models.RuleTypeInactivity {
		t.Fatalf("got violation type %s, want %s", v.Type, models.RuleTypeInactivity)
	}

	// The trigger re-arms the anchor, so the next stationary fix is quiet.
	if v := ev.EvaluateFix(rules, fixAt(40, -74, 0), now.Add(100*time.Second)); v != nil {
		t.Fatal("inactivity re-fired immediately after triggering")
	}
}

func TestEvaluatorMovementResetsInactivity(t *testing.T) {
	t.Parallel()

	ev, now := primedEvaluator(t, DefaultConfig())
	rules := []*ParsedRule{authorizedRule(models.RuleTypeInactivity, map[string]float64{"duration": 1})}

	// ~111m displacement resets the anchor just before the duration elapses.
	if v := ev.EvaluateFix(rules, fixAt(40.001, -74, 0), now.Add(50*time.Second)); v != nil {
		t.Fatal("movement fix triggered inactivity")
	}

	// 70s after the original anchor but only 20s after the movement.
	if v := ev.EvaluateFix(rules, fixAt(40.001, -74, 0), now.Add(70*time.Second)); v != nil {
		t.Fatal("inactivity measured from the stale anchor")
	}

	if v := ev.EvaluateFix(rules, fixAt(40.001, -74, 0), now.Add(120*time.Second)); v == nil {
		t.Fatal("inactivity did not trigger from the reset anchor")
	}
}

func TestEvaluatorFallDetection(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	ev := NewEvaluator(cfg, evalStart, logger.NewNop())
	now := evalStart.Add(cfg.WarmUpPeriod)
	rules := []*ParsedRule{authorizedRule(models.RuleTypeFallDetection, nil)}

	// Magnitude ~17.7 m/s², under the 18 threshold.
	if v := ev.EvaluateAccel(rules, models.AccelSample{X: 12, Y: 12, Z: 5}, now); v != nil {
		t.Fatal("sub-threshold shock triggered")
	}

	v := ev.EvaluateAccel(rules, models.AccelSample{X: 20}, now.Add(time.Second))
	if v == nil {
		t.Fatal("fall-grade shock did not trigger")
	}
	if v.Type != models.RuleTypeFallDetection {
		t.Fatalf("got violation type %s, want %s", v.Type, models.RuleTypeFallDetection)
	}
	if v.Fix != nil {
		t.Fatal("accelerometer violation carries a location fix")
	}

	// A shock with no fall rule in the snapshot is ignored.
	other := []*ParsedRule{authorizedRule(models.RuleTypeSpeedLimit, nil)}
	if v := ev.EvaluateAccel(other, models.AccelSample{X: 30}, now.Add(2*time.Second)); v != nil {
		t.Fatal("shock triggered without a fall rule")
	}
}

func TestEvaluatorFirstViolationWins(t *testing.T) {
	t.Parallel()

	ev, now := primedEvaluator(t, DefaultConfig())
	speed := authorizedRule(models.RuleTypeSpeedLimit, map[string]float64{"max_speed": 50})
	fence := authorizedRule(models.RuleTypeGeofencing, map[string]float64{"lat": 40, "lng": -74})
	rules := []*ParsedRule{speed, fence}

	// One fix violates both rules; only the first in snapshot order fires.
	v := ev.EvaluateFix(rules, fixAt(40.002, -74, 20), now)
	if v == nil {
		t.Fatal("no violation emitted")
	}
	if v.Rule != speed {
		t.Fatalf("got violation for %s, want the first rule in the snapshot", v.Type)
	}

	// The losing rule was never cooled down, so the next sample is its turn.
	v = ev.EvaluateFix(rules, fixAt(40.002, -74, 20), now.Add(time.Second))
	if v == nil {
		t.Fatal("second rule suppressed by the first rule's cooldown")
	}
	if v.Rule != fence {
		t.Fatalf("got violation for %s, want the geofence rule", v.Type)
	}
}

func TestEvaluatorRuleFailureIsolation(t *testing.T) {
	t.Parallel()

	ev, now := primedEvaluator(t, DefaultConfig())

	// A rule whose typed params never got resolved panics on evaluation;
	// the pass must survive it and still run the remaining rules.
	broken := &ParsedRule{Rule: models.SafetyRule{
		ID:         primitive.NewObjectID(),
		Type:       models.RuleTypeSpeedLimit,
		Authorized: true,
	}}
	good := authorizedRule(models.RuleTypeSpeedLimit, map[string]float64{"max_speed": 50})

	v := ev.EvaluateFix([]*ParsedRule{broken, good}, fixAt(40, -74, 20), now)
	if v == nil {
		t.Fatal("corrupt rule took down the whole pass")
	}
	if v.Rule != good {
		t.Fatal("violation attributed to the corrupt rule")
	}
}

func TestEvaluatorSkipsUnauthorizedRules(t *testing.T) {
	t.Parallel()

	ev, now := primedEvaluator(t, DefaultConfig())
	rule := ParseRule(models.SafetyRule{
		ID:     primitive.NewObjectID(),
		Type:   models.RuleTypeSpeedLimit,
		Params: map[string]float64{"max_speed": 10},
	})

	if v := ev.EvaluateFix([]*ParsedRule{rule}, fixAt(40, -74, 50), now); v != nil {
		t.Fatal("unauthorized rule triggered")
	}
}
