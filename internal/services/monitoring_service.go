package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"safetysec/internal/config"
	"safetysec/internal/engine"
	"safetysec/internal/models"
	"safetysec/internal/repositories/interfaces"
	"safetysec/pkg/logger"
	"safetysec/pkg/websocket"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrSessionExists = errors.New("monitoring session already running")
	ErrNoSession     = errors.New("no monitoring session for this user")
	ErrNoWorkflow    = errors.New("no alert workflow in progress")
)

// PresenceStore marks which protected devices are currently streaming
// telemetry. Backed by redis with a short TTL.
type PresenceStore interface {
	SetPresence(ctx context.Context, userID string, ttl time.Duration) error
	IsPresent(ctx context.Context, userID string) (bool, error)
}

type MonitoringService interface {
	// StartSession spins up a rule evaluation engine for one protected user
	// and keeps its rule snapshot fresh until StopSession or shutdown.
	StartSession(ctx context.Context, protectedID primitive.ObjectID) error
	StopSession(protectedID primitive.ObjectID) error
	SessionActive(protectedID primitive.ObjectID) bool

	// Telemetry ingestion from the protected device.
	IngestFix(ctx context.Context, protectedID primitive.ObjectID, fix models.LocationFix) error
	IngestAccel(ctx context.Context, protectedID primitive.ObjectID, sample models.AccelSample) error

	// TriggerPanic starts the alert workflow immediately, bypassing rules.
	TriggerPanic(ctx context.Context, protectedID primitive.ObjectID) error

	// CancelWorkflow aborts a running countdown with the user's secret code.
	CancelWorkflow(protectedID primitive.ObjectID, code string) (bool, error)
	WorkflowState(protectedID primitive.ObjectID) (engine.WorkflowState, error)

	// Shutdown stops every live session.
	Shutdown()
}

type session struct {
	protectedID   primitive.ObjectID
	protectedName string
	cancelCode    string
	engine        *engine.Engine
	ctx           context.Context
	cancel        context.CancelFunc

	mu       sync.Mutex
	workflow *engine.Workflow
}

type monitoringService struct {
	cfg       *config.EngineConfig
	ruleRepo  interfaces.RuleRepository
	userRepo  interfaces.UserRepository
	alerts    AlertService
	recorder  engine.Recorder
	presence  PresenceStore
	wsHandler *websocket.Handler
	logger    *logger.Logger

	mu       sync.Mutex
	sessions map[primitive.ObjectID]*session
}

func NewMonitoringService(
	cfg *config.EngineConfig,
	ruleRepo interfaces.RuleRepository,
	userRepo interfaces.UserRepository,
	alerts AlertService,
	recorder engine.Recorder,
	presence PresenceStore,
	wsHandler *websocket.Handler,
	log *logger.Logger,
) MonitoringService {
	return &monitoringService{
		cfg:       cfg,
		ruleRepo:  ruleRepo,
		userRepo:  userRepo,
		alerts:    alerts,
		recorder:  recorder,
		presence:  presence,
		wsHandler: wsHandler,
		logger:    log,
		sessions:  make(map[primitive.ObjectID]*session),
	}
}

func (s *monitoringService) engineConfig() engine.Config {
	cfg := engine.DefaultConfig()
	if s.cfg == nil {
		return cfg
	}
	cfg.WarmUpPeriod = s.cfg.WarmUpPeriod
	cfg.MinGPSFixes = s.cfg.MinGPSFixes
	cfg.CooldownWindow = s.cfg.CooldownWindow
	cfg.FallThreshold = s.cfg.FallThreshold
	cfg.DecelerationKmh = s.cfg.DecelerationKmh
	cfg.MinCrashSpeedKmh = s.cfg.MinCrashSpeedKmh
	cfg.MovementThresholdM = s.cfg.MovementThresholdM
	cfg.Countdown = s.cfg.Countdown
	cfg.RecordDuration = s.cfg.RecordDuration
	cfg.SafetyTimeout = s.cfg.SafetyTimeout
	cfg.SampleBuffer = s.cfg.SampleBuffer
	return cfg
}

func (s *monitoringService) StartSession(ctx context.Context, protectedID primitive.ObjectID) error {
	s.mu.Lock()
	if _, exists := s.sessions[protectedID]; exists {
		s.mu.Unlock()
		return ErrSessionExists
	}
	s.mu.Unlock()

	user, err := s.userRepo.GetByID(ctx, protectedID)
	if err != nil {
		return err
	}

	sessCtx, cancel := context.WithCancel(context.Background())
	sess := &session{
		protectedID:   protectedID,
		protectedName: user.Name,
		cancelCode:    user.CancellationCode,
		ctx:           sessCtx,
		cancel:        cancel,
	}

	sess.engine = engine.New(s.engineConfig(), func(v engine.Violation) {
		s.handleViolation(sess, v)
	}, s.logger.WithProtectedID(protectedID))

	s.mu.Lock()
	if _, exists := s.sessions[protectedID]; exists {
		s.mu.Unlock()
		cancel()
		return ErrSessionExists
	}
	s.sessions[protectedID] = sess
	s.mu.Unlock()

	go sess.engine.Run(sessCtx)
	go s.watchRules(sessCtx, sess)

	s.refreshRules(sessCtx, sess)

	s.logger.LogEngineEvent(protectedID, "session_started", nil)
	return nil
}

func (s *monitoringService) StopSession(protectedID primitive.ObjectID) error {
	s.mu.Lock()
	sess, exists := s.sessions[protectedID]
	if exists {
		delete(s.sessions, protectedID)
	}
	s.mu.Unlock()

	if !exists {
		return ErrNoSession
	}

	sess.cancel()
	<-sess.engine.Stopped()
	s.logger.LogEngineEvent(protectedID, "session_stopped", nil)
	return nil
}

func (s *monitoringService) SessionActive(protectedID primitive.ObjectID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.sessions[protectedID]
	return exists
}

func (s *monitoringService) getSession(protectedID primitive.ObjectID) (*session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, exists := s.sessions[protectedID]
	if !exists {
		return nil, ErrNoSession
	}
	return sess, nil
}

func (s *monitoringService) IngestFix(ctx context.Context, protectedID primitive.ObjectID, fix models.LocationFix) error {
	sess, err := s.getSession(protectedID)
	if err != nil {
		return err
	}
	if fix.Timestamp.IsZero() {
		fix.Timestamp = time.Now()
	}

	sess.engine.PushFix(fix)

	if s.presence != nil {
		if err := s.presence.SetPresence(ctx, protectedID.Hex(), 30*time.Second); err != nil {
			s.logger.WithError(err).Debug("Presence update failed")
		}
	}

	location := models.NewGeoPoint(fix.Latitude, fix.Longitude)
	if err := s.userRepo.UpdateLocation(ctx, protectedID, &location, fix.BatteryLevel, fix.Timestamp); err != nil {
		s.logger.WithError(err).WithProtectedID(protectedID).Warn("Failed to persist location")
	}

	if s.wsHandler != nil {
		s.wsHandler.SendLocationUpdate(protectedID, fix.Latitude, fix.Longitude, fix.SpeedKmh())
	}
	return nil
}

func (s *monitoringService) IngestAccel(ctx context.Context, protectedID primitive.ObjectID, sample models.AccelSample) error {
	sess, err := s.getSession(protectedID)
	if err != nil {
		return err
	}
	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now()
	}

	sess.engine.PushAccel(sample)
	return nil
}

func (s *monitoringService) TriggerPanic(ctx context.Context, protectedID primitive.ObjectID) error {
	sess, err := s.getSession(protectedID)
	if err != nil {
		return err
	}

	sess.engine.TriggerPanic()
	s.logger.LogEngineEvent(protectedID, "panic_triggered", nil)
	return nil
}

func (s *monitoringService) CancelWorkflow(protectedID primitive.ObjectID, code string) (bool, error) {
	sess, err := s.getSession(protectedID)
	if err != nil {
		return false, err
	}

	sess.mu.Lock()
	wf := sess.workflow
	sess.mu.Unlock()

	if wf == nil {
		return false, ErrNoWorkflow
	}
	return wf.Cancel(code), nil
}

func (s *monitoringService) WorkflowState(protectedID primitive.ObjectID) (engine.WorkflowState, error) {
	sess, err := s.getSession(protectedID)
	if err != nil {
		return "", err
	}

	sess.mu.Lock()
	wf := sess.workflow
	sess.mu.Unlock()

	if wf == nil {
		return "", ErrNoWorkflow
	}
	return wf.State(), nil
}

func (s *monitoringService) Shutdown() {
	s.mu.Lock()
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.sessions = make(map[primitive.ObjectID]*session)
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.cancel()
		<-sess.engine.Stopped()
	}
}

// watchRules keeps the engine's rule snapshot in sync. The change stream
// gives low latency; the ticker covers stream failures and deployments
// without replica sets where change streams are unavailable.
func (s *monitoringService) watchRules(ctx context.Context, sess *session) {
	interval := 30 * time.Second
	if s.cfg != nil && s.cfg.RulePollInterval > 0 {
		interval = s.cfg.RulePollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	changes, err := s.ruleRepo.WatchProtected(ctx, sess.protectedID)
	if err != nil {
		s.logger.WithError(err).WithProtectedID(sess.protectedID).
			Warn("Rule change stream unavailable, polling only")
		changes = nil
	}

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				// Stream died; the ticker keeps the snapshot fresh.
				changes = nil
				continue
			}
			s.refreshRules(ctx, sess)
		case <-ticker.C:
			s.refreshRules(ctx, sess)
		}
	}
}

func (s *monitoringService) refreshRules(ctx context.Context, sess *session) {
	rules, err := s.ruleRepo.GetActiveForProtected(ctx, sess.protectedID)
	if err != nil {
		s.logger.WithError(err).WithProtectedID(sess.protectedID).Error("Failed to load active rules")
		return
	}

	snapshot := make([]models.SafetyRule, 0, len(rules))
	for _, rule := range rules {
		snapshot = append(snapshot, *rule)
	}
	sess.engine.UpdateRules(snapshot)
}

// handleViolation runs on the engine goroutine, so everything heavy is
// pushed into the workflow's own goroutines. One workflow at a time per
// session; violations arriving while one is in flight are dropped (the
// cooldown already throttles repeats).
func (s *monitoringService) handleViolation(sess *session, v engine.Violation) {
	sess.mu.Lock()
	if sess.workflow != nil {
		select {
		case <-sess.workflow.Done():
			// Previous workflow finished, a new one may start.
		default:
			sess.mu.Unlock()
			s.logger.WithProtectedID(sess.protectedID).
				WithField("violation_type", v.Type).
				Info("Violation ignored, alert workflow already in progress")
			return
		}
	}

	trigger := engine.TriggerContext{
		ProtectedID:   sess.protectedID,
		ProtectedName: sess.protectedName,
		Type:          v.Type,
	}
	if v.Rule != nil && !v.Rule.Rule.ID.IsZero() {
		ruleID := v.Rule.Rule.ID
		trigger.RuleID = &ruleID
	}
	if v.Fix != nil {
		location := models.NewGeoPoint(v.Fix.Latitude, v.Fix.Longitude)
		trigger.Location = &location
		speed := v.Fix.SpeedKmh()
		trigger.SpeedKmh = &speed
		trigger.BatteryLevel = v.Fix.BatteryLevel
	}

	engCfg := s.engineConfig()
	cfg := engine.WorkflowConfig{
		Countdown:        engCfg.Countdown,
		RecordDuration:   engCfg.RecordDuration,
		SafetyTimeout:    engCfg.SafetyTimeout,
		CancellationCode: sess.cancelCode,
	}
	if s.wsHandler != nil {
		protectedID := sess.protectedID
		cfg.OnTick = func(secondsLeft int) {
			s.wsHandler.SendAlertNotification(protectedID, "countdown_tick", map[string]interface{}{
				"seconds_left": secondsLeft,
			})
		}
	}

	wf := engine.NewWorkflow(cfg, trigger, s.alerts, s.recorder, s.logger.WithProtectedID(sess.protectedID))
	sess.workflow = wf
	sess.mu.Unlock()

	wf.Start(sess.ctx)
}
