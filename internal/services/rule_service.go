package services

import (
	"context"
	"errors"
	"fmt"

	"safetysec/internal/models"
	"safetysec/internal/repositories/interfaces"
	"safetysec/internal/utils"
	"safetysec/internal/validators"
	"safetysec/pkg/logger"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrRuleTypeImmutable = errors.New("rule type cannot be changed")
	ErrNotRuleOwner      = errors.New("only the monitor who created the rule can modify it")
	ErrNotProtectedUser  = errors.New("only the protected user can authorize a rule")
	ErrNotAssociated     = errors.New("monitor is not associated with this protected user")
)

type RuleService interface {
	CreateRule(ctx context.Context, rule *models.SafetyRule) error
	GetRule(ctx context.Context, id primitive.ObjectID) (*models.SafetyRule, error)

	// UpdateRule applies monitor edits. The rule type is fixed at creation;
	// editing clears authorization so the protected user reviews the change.
	UpdateRule(ctx context.Context, id primitive.ObjectID, actorID primitive.ObjectID, updates *RuleUpdate) (*models.SafetyRule, error)
	DeleteRule(ctx context.Context, id primitive.ObjectID, actorID primitive.ObjectID) error

	// Authorize flips the protected user's consent on a rule.
	Authorize(ctx context.Context, id primitive.ObjectID, protectedID primitive.ObjectID, authorized bool) error

	ListForProtected(ctx context.Context, protectedID primitive.ObjectID, params *utils.PaginationParams) ([]*models.SafetyRule, int64, error)
	ListForMonitor(ctx context.Context, monitorID primitive.ObjectID, params *utils.PaginationParams) ([]*models.SafetyRule, int64, error)
	ActiveRules(ctx context.Context, protectedID primitive.ObjectID) ([]*models.SafetyRule, error)
}

// RuleUpdate carries the editable fields. Nil pointers are left untouched.
type RuleUpdate struct {
	Name        *string              `json:"name"`
	Description *string              `json:"description"`
	Params      *map[string]float64  `json:"params"`
	TimeWindows *[]models.TimeWindow `json:"time_windows"`
}

type ruleService struct {
	ruleRepo interfaces.RuleRepository
	userRepo interfaces.UserRepository
	logger   *logger.Logger
}

func NewRuleService(ruleRepo interfaces.RuleRepository, userRepo interfaces.UserRepository, log *logger.Logger) RuleService {
	return &ruleService{
		ruleRepo: ruleRepo,
		userRepo: userRepo,
		logger:   log,
	}
}

func (s *ruleService) CreateRule(ctx context.Context, rule *models.SafetyRule) error {
	if !rule.Type.Valid() {
		return fmt.Errorf("invalid rule type %q", rule.Type)
	}
	if err := validators.ValidateRuleParams(rule.Type, rule.Params); err != nil {
		return err
	}
	if err := validateTimeWindows(rule.TimeWindows); err != nil {
		return err
	}

	protected, err := s.userRepo.GetByID(ctx, rule.ProtectedID)
	if err != nil {
		return err
	}
	if !containsID(protected.Monitors, rule.MonitorID) {
		return ErrNotAssociated
	}

	if rule.MonitorName == "" {
		if monitor, err := s.userRepo.GetByID(ctx, rule.MonitorID); err == nil {
			rule.MonitorName = monitor.Name
		}
	}

	// New rules always start unauthorized.
	rule.Authorized = false

	if err := s.ruleRepo.Create(ctx, rule); err != nil {
		return err
	}

	s.logger.WithRuleID(rule.ID).WithProtectedID(rule.ProtectedID).Info("Rule created")
	return nil
}

func (s *ruleService) GetRule(ctx context.Context, id primitive.ObjectID) (*models.SafetyRule, error) {
	return s.ruleRepo.GetByID(ctx, id)
}

func (s *ruleService) UpdateRule(ctx context.Context, id primitive.ObjectID, actorID primitive.ObjectID, updates *RuleUpdate) (*models.SafetyRule, error) {
	rule, err := s.ruleRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rule.MonitorID != actorID {
		return nil, ErrNotRuleOwner
	}

	fields := map[string]interface{}{}
	if updates.Name != nil {
		fields["name"] = *updates.Name
	}
	if updates.Description != nil {
		fields["description"] = *updates.Description
	}
	if updates.Params != nil {
		if err := validators.ValidateRuleParams(rule.Type, *updates.Params); err != nil {
			return nil, err
		}
		fields["params"] = *updates.Params
	}
	if updates.TimeWindows != nil {
		if err := validateTimeWindows(*updates.TimeWindows); err != nil {
			return nil, err
		}
		fields["time_windows"] = *updates.TimeWindows
	}
	if len(fields) == 0 {
		return rule, nil
	}

	// Any edit invalidates previous consent.
	fields["authorized"] = false

	if err := s.ruleRepo.Update(ctx, id, fields); err != nil {
		return nil, err
	}
	return s.ruleRepo.GetByID(ctx, id)
}

func (s *ruleService) DeleteRule(ctx context.Context, id primitive.ObjectID, actorID primitive.ObjectID) error {
	rule, err := s.ruleRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	// The monitor who created it or the protected user it targets may
	// remove a rule.
	if rule.MonitorID != actorID && rule.ProtectedID != actorID {
		return ErrNotRuleOwner
	}

	if err := s.ruleRepo.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.WithRuleID(id).WithProtectedID(rule.ProtectedID).Info("Rule deleted")
	return nil
}

func (s *ruleService) Authorize(ctx context.Context, id primitive.ObjectID, protectedID primitive.ObjectID, authorized bool) error {
	rule, err := s.ruleRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if rule.ProtectedID != protectedID {
		return ErrNotProtectedUser
	}

	if err := s.ruleRepo.SetAuthorized(ctx, id, authorized); err != nil {
		return err
	}

	s.logger.WithRuleID(id).WithProtectedID(protectedID).
		WithField("authorized", authorized).Info("Rule authorization changed")
	return nil
}

func (s *ruleService) ListForProtected(ctx context.Context, protectedID primitive.ObjectID, params *utils.PaginationParams) ([]*models.SafetyRule, int64, error) {
	return s.ruleRepo.ListByProtected(ctx, protectedID, params)
}

func (s *ruleService) ListForMonitor(ctx context.Context, monitorID primitive.ObjectID, params *utils.PaginationParams) ([]*models.SafetyRule, int64, error) {
	return s.ruleRepo.ListByMonitor(ctx, monitorID, params)
}

func (s *ruleService) ActiveRules(ctx context.Context, protectedID primitive.ObjectID) ([]*models.SafetyRule, error) {
	return s.ruleRepo.GetActiveForProtected(ctx, protectedID)
}

func validateTimeWindows(windows []models.TimeWindow) error {
	for _, w := range windows {
		if w.StartHour < 0 || w.StartHour > 23 || w.EndHour < 0 || w.EndHour > 23 {
			return fmt.Errorf("time window %q: hour out of range", w.Name)
		}
		if w.StartMin < 0 || w.StartMin > 59 || w.EndMin < 0 || w.EndMin > 59 {
			return fmt.Errorf("time window %q: minute out of range", w.Name)
		}
		start := w.StartHour*60 + w.StartMin
		end := w.EndHour*60 + w.EndMin
		if start > end {
			return fmt.Errorf("time window %q: start must not be after end", w.Name)
		}
		for _, d := range w.DaysOfWeek {
			if d < 0 || d > 6 {
				return fmt.Errorf("time window %q: invalid weekday %d", w.Name, d)
			}
		}
	}
	return nil
}

func containsID(ids []primitive.ObjectID, id primitive.ObjectID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
