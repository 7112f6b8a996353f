package engine

import (
	"math"
	"time"

	"safetysec/internal/models"
	"safetysec/internal/utils"
	"safetysec/pkg/logger"
)

// PanicKey is the cooldown key used by the manual panic trigger, which has no
// originating rule.
const PanicKey = "panic"

// Violation is one rule trigger that survived temporal gating and cooldown.
// Rule is nil for the manual panic trigger.
type Violation struct {
	Rule *ParsedRule
	Type models.RuleType
	Fix  *models.LocationFix
	At   time.Time
}

// runtimeState is the rolling evaluation context. It is owned exclusively by
// the engine goroutine and mutated once per fix, after all rules have been
// evaluated against the pre-update values.
type runtimeState struct {
	lastSpeedKmh   float64
	lastFixAt      time.Time
	haveLastSpeed  bool
	lastMovement   *models.LocationFix
	lastMovementAt time.Time
}

// Evaluator applies every currently-applicable rule to one incoming sample
// and emits at most one violation per sample.
type Evaluator struct {
	cfg      Config
	cooldown *CooldownController
	filter   *signalFilter
	state    runtimeState
	log      *logger.Logger
}

func NewEvaluator(cfg Config, startedAt time.Time, log *logger.Logger) *Evaluator {
	return &Evaluator{
		cfg:      cfg,
		cooldown: NewCooldownController(cfg.CooldownWindow),
		filter:   newSignalFilter(cfg.WarmUpPeriod, cfg.MinGPSFixes, startedAt),
		log:      log,
	}
}

// EvaluateFix runs one location sample through the filters and every rule in
// the snapshot. The returned violation, if any, is the first rule to trigger;
// remaining rules are still untouched by it on the next sample because state
// updates happen exactly once, at the end of the pass.
func (e *Evaluator) EvaluateFix(rules []*ParsedRule, fix models.LocationFix, now time.Time) *Violation {
	if e.filter.inWarmUp(now) {
		return nil
	}
	if e.filter.seedOnly() {
		e.seed(fix, now)
		return nil
	}

	currentKmh := fix.SpeedKmh()

	var violation *Violation
	for _, rule := range rules {
		if violation != nil {
			break
		}
		if !e.gate(rule, now) {
			continue
		}
		if e.checkFixRule(rule, fix, currentKmh, now) {
			violation = e.trigger(rule, &fix, now)
		}
	}

	e.updateState(fix, currentKmh, now)
	return violation
}

// EvaluateAccel runs one accelerometer sample against fall-detection rules.
// The location stream is not consulted.
func (e *Evaluator) EvaluateAccel(rules []*ParsedRule, sample models.AccelSample, now time.Time) *Violation {
	if e.filter.inWarmUp(now) {
		return nil
	}

	magnitude := math.Sqrt(sample.X*sample.X + sample.Y*sample.Y + sample.Z*sample.Z)
	if magnitude <= e.cfg.FallThreshold {
		return nil
	}

	for _, rule := range rules {
		if rule.Rule.Type != models.RuleTypeFallDetection {
			continue
		}
		if !e.gate(rule, now) {
			continue
		}
		return e.trigger(rule, nil, now)
	}
	return nil
}

// gate applies temporal gating and the cooldown check. Both fail closed.
func (e *Evaluator) gate(rule *ParsedRule, now time.Time) bool {
	if !RuleActiveAt(&rule.Rule, now) {
		return false
	}
	return e.cooldown.IsAllowed(cooldownKey(rule), now)
}

// checkFixRule evaluates a single rule's trigger condition. A panic inside
// one rule must not take down the rest of the pass, so it is recovered here
// and treated as "not triggered".
func (e *Evaluator) checkFixRule(rule *ParsedRule, fix models.LocationFix, currentKmh float64, now time.Time) (triggered bool) {
	defer func() {
		if r := recover(); r != nil {
			e.log.WithField("rule_id", rule.Rule.ID.Hex()).
				WithField("panic", r).
				Error("rule evaluation panicked, skipping rule")
			triggered = false
		}
	}()

	switch rule.Rule.Type {
	case models.RuleTypeSpeedLimit:
		return currentKmh > rule.SpeedLimit.MaxSpeedKmh

	case models.RuleTypeGeofencing:
		g := rule.Geofence
		dist := utils.DistanceMeters(fix.Latitude, fix.Longitude, g.Latitude, g.Longitude)
		return dist > g.RadiusM

	case models.RuleTypeCarAccident:
		// Needs two consecutive valid fixes; the floor avoids false
		// positives from GPS jitter at near-zero speed.
		if !e.state.haveLastSpeed {
			return false
		}
		if e.state.lastSpeedKmh < e.cfg.MinCrashSpeedKmh {
			return false
		}
		return e.state.lastSpeedKmh-currentKmh > e.cfg.DecelerationKmh

	case models.RuleTypeInactivity:
		if e.movedSince(fix) {
			return false
		}
		if now.Sub(e.state.lastMovementAt) > rule.Inactivity.Duration {
			// Re-arm so the rule does not fire on every following fix.
			e.state.lastMovementAt = now
			return true
		}
		return false
	}

	return false
}

// movedSince reports whether the fix is a displacement beyond the movement
// threshold from the last recorded movement point. Movement resets the
// inactivity anchor for the whole session (shared across inactivity rules).
func (e *Evaluator) movedSince(fix models.LocationFix) bool {
	if e.state.lastMovement == nil {
		return true
	}
	dist := utils.DistanceMeters(fix.Latitude, fix.Longitude,
		e.state.lastMovement.Latitude, e.state.lastMovement.Longitude)
	return dist > e.cfg.MovementThresholdM
}

func (e *Evaluator) trigger(rule *ParsedRule, fix *models.LocationFix, now time.Time) *Violation {
	e.cooldown.Record(cooldownKey(rule), now)
	return &Violation{
		Rule: rule,
		Type: rule.Rule.Type,
		Fix:  fix,
		At:   now,
	}
}

func (e *Evaluator) seed(fix models.LocationFix, now time.Time) {
	e.state.lastSpeedKmh = fix.SpeedKmh()
	e.state.haveLastSpeed = true
	e.state.lastMovement = &fix
	e.state.lastMovementAt = now
	e.state.lastFixAt = now
}

func (e *Evaluator) updateState(fix models.LocationFix, currentKmh float64, now time.Time) {
	e.state.lastSpeedKmh = currentKmh
	e.state.haveLastSpeed = true
	e.state.lastFixAt = now
	if e.movedSince(fix) {
		e.state.lastMovement = &fix
		e.state.lastMovementAt = now
	}
}

func cooldownKey(rule *ParsedRule) string {
	return rule.Rule.ID.Hex()
}
