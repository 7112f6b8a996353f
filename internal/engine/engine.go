package engine

import (
	"context"
	"time"

	"safetysec/internal/models"
	"safetysec/pkg/logger"
)

// Config carries every engine threshold. The divergence between historical
// deployments made these configuration rather than law; the zero value is
// never used, call DefaultConfig and override from the environment.
type Config struct {
	WarmUpPeriod       time.Duration // discard all samples this long after start
	MinGPSFixes        int           // early fixes that only seed state
	CooldownWindow     time.Duration // minimum silence between triggers per rule
	FallThreshold      float64       // accelerometer magnitude, m/s²
	DecelerationKmh    float64       // speed drop between fixes marking a crash
	MinCrashSpeedKmh   float64       // prior-speed floor for crash detection
	MovementThresholdM float64       // displacement that counts as movement
	Countdown          time.Duration // alert cancellation window
	RecordDuration     time.Duration // evidence clip length
	SafetyTimeout      time.Duration // hard bound on a whole workflow run
	SampleBuffer       int           // per-channel sample backlog
}

func DefaultConfig() Config {
	return Config{
		WarmUpPeriod:       10 * time.Second,
		MinGPSFixes:        3,
		CooldownWindow:     60 * time.Second,
		FallThreshold:      18.0,
		DecelerationKmh:    20.0,
		MinCrashSpeedKmh:   20.0,
		MovementThresholdM: 5.0,
		Countdown:          10 * time.Second,
		RecordDuration:     10 * time.Second,
		SafetyTimeout:      60 * time.Second,
		SampleBuffer:       64,
	}
}

// ViolationFunc receives violations from the engine goroutine. It must not
// block; anything slow belongs on the handler's side of a channel.
type ViolationFunc func(Violation)

// Engine is one monitoring session for one protected device. A single
// goroutine owns all runtime state; telemetry and rule snapshots arrive on
// channels, so a stale rule set never blocks sample processing.
type Engine struct {
	cfg       Config
	evaluator *Evaluator
	rules     []*ParsedRule
	onViolate ViolationFunc
	log       *logger.Logger
	now       func() time.Time

	fixes   chan models.LocationFix
	accels  chan models.AccelSample
	ruleCh  chan []models.SafetyRule
	panicCh chan struct{}
	stopped chan struct{}
}

func New(cfg Config, onViolate ViolationFunc, log *logger.Logger) *Engine {
	if cfg.SampleBuffer <= 0 {
		cfg.SampleBuffer = DefaultConfig().SampleBuffer
	}
	return &Engine{
		cfg:       cfg,
		onViolate: onViolate,
		log:       log,
		now:       time.Now,
		fixes:     make(chan models.LocationFix, cfg.SampleBuffer),
		accels:    make(chan models.AccelSample, cfg.SampleBuffer),
		ruleCh:    make(chan []models.SafetyRule, 1),
		panicCh:   make(chan struct{}, 1),
		stopped:   make(chan struct{}),
	}
}

// Run processes samples until ctx is cancelled. It owns the evaluator state;
// nothing here performs blocking I/O.
func (e *Engine) Run(ctx context.Context) {
	e.evaluator = NewEvaluator(e.cfg, e.now(), e.log)
	defer close(e.stopped)

	for {
		select {
		case <-ctx.Done():
			return

		case rules := <-e.ruleCh:
			e.rules = ParseRules(rules)
			e.log.WithField("rules", len(e.rules)).Debug("rule snapshot applied")

		case fix := <-e.fixes:
			if v := e.evaluator.EvaluateFix(e.rules, fix, e.now()); v != nil {
				e.emit(*v)
			}

		case sample := <-e.accels:
			if v := e.evaluator.EvaluateAccel(e.rules, sample, e.now()); v != nil {
				e.emit(*v)
			}

		case <-e.panicCh:
			// Manual trigger bypasses evaluation and temporal gating
			// entirely; only the panic cooldown key throttles it.
			now := e.now()
			if e.evaluator.cooldown.IsAllowed(PanicKey, now) {
				e.evaluator.cooldown.Record(PanicKey, now)
				e.emit(Violation{Type: models.RuleTypePanicButton, At: now})
			}
		}
	}
}

// Stopped is closed once Run has returned.
func (e *Engine) Stopped() <-chan struct{} {
	return e.stopped
}

// PushFix hands a location sample to the engine. Samples are dropped, not
// queued unboundedly, when the engine is saturated.
func (e *Engine) PushFix(fix models.LocationFix) {
	select {
	case e.fixes <- fix:
	default:
		e.log.Warn("location fix dropped, engine saturated")
	}
}

// PushAccel hands an accelerometer sample to the engine.
func (e *Engine) PushAccel(sample models.AccelSample) {
	select {
	case e.accels <- sample:
	default:
		e.log.Warn("accelerometer sample dropped, engine saturated")
	}
}

// UpdateRules replaces the pending rule snapshot. Only the most recent
// snapshot matters, so an unread one is overwritten.
func (e *Engine) UpdateRules(rules []models.SafetyRule) {
	for {
		select {
		case e.ruleCh <- rules:
			return
		default:
			select {
			case <-e.ruleCh:
			default:
			}
		}
	}
}

// TriggerPanic requests a manual panic violation.
func (e *Engine) TriggerPanic() {
	select {
	case e.panicCh <- struct{}{}:
	default:
	}
}

func (e *Engine) emit(v Violation) {
	log := e.log.WithField("type", string(v.Type))
	if v.Rule != nil {
		log = log.WithField("rule_id", v.Rule.Rule.ID.Hex())
	}
	log.Warn("safety rule violated")

	if e.onViolate != nil {
		e.onViolate(v)
	}
}
