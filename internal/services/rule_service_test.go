package services

import (
	"context"
	"errors"
	"testing"

	"safetysec/internal/models"
	"safetysec/pkg/logger"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func linkedPair() (*models.User, *models.User) {
	monitor := &models.User{ID: primitive.NewObjectID(), Name: "Marta", Email: "marta@example.com"}
	protected := &models.User{
		ID:          primitive.NewObjectID(),
		Name:        "Ana",
		Email:       "ana@example.com",
		IsProtected: true,
		Monitors:    []primitive.ObjectID{monitor.ID},
	}
	monitor.Protecteds = []primitive.ObjectID{protected.ID}
	return monitor, protected
}

func TestCreateRuleRejectsUnassociatedMonitor(t *testing.T) {
	t.Parallel()

	_, protected := linkedPair()
	stranger := &models.User{ID: primitive.NewObjectID(), Name: "Eve", Email: "eve@example.com"}
	svc := NewRuleService(newFakeRuleRepo(), newFakeUserRepo(protected, stranger), logger.NewNop())

	err := svc.CreateRule(context.Background(), &models.SafetyRule{
		ProtectedID: protected.ID,
		MonitorID:   stranger.ID,
		Type:        models.RuleTypeSpeedLimit,
	})
	if !errors.Is(err, ErrNotAssociated) {
		t.Fatalf("got %v, want ErrNotAssociated", err)
	}
}

func TestCreateRuleStartsUnauthorized(t *testing.T) {
	t.Parallel()

	monitor, protected := linkedPair()
	ruleRepo := newFakeRuleRepo()
	svc := NewRuleService(ruleRepo, newFakeUserRepo(monitor, protected), logger.NewNop())

	rule := &models.SafetyRule{
		ProtectedID: protected.ID,
		MonitorID:   monitor.ID,
		Type:        models.RuleTypeGeofencing,
		Params:      map[string]float64{"lat": 40, "lng": -74, "radius": 200},
		Authorized:  true, // client-supplied value must be ignored
	}
	if err := svc.CreateRule(context.Background(), rule); err != nil {
		t.Fatalf("create rule: %v", err)
	}

	stored, err := ruleRepo.GetByID(context.Background(), rule.ID)
	if err != nil {
		t.Fatalf("get stored rule: %v", err)
	}
	if stored.Authorized {
		t.Fatal("new rule stored as authorized")
	}
	if stored.MonitorName != "Marta" {
		t.Fatalf("monitor name not backfilled: %q", stored.MonitorName)
	}
}

func TestCreateRuleRejectsInvalidType(t *testing.T) {
	t.Parallel()

	monitor, protected := linkedPair()
	svc := NewRuleService(newFakeRuleRepo(), newFakeUserRepo(monitor, protected), logger.NewNop())

	err := svc.CreateRule(context.Background(), &models.SafetyRule{
		ProtectedID: protected.ID,
		MonitorID:   monitor.ID,
		Type:        "TELEPORTATION",
	})
	if err == nil {
		t.Fatal("invalid rule type accepted")
	}
}

func TestCreateRuleValidatesTimeWindows(t *testing.T) {
	t.Parallel()

	monitor, protected := linkedPair()
	svc := NewRuleService(newFakeRuleRepo(), newFakeUserRepo(monitor, protected), logger.NewNop())

	bad := []models.TimeWindow{
		{Name: "hours", StartHour: 25, EndHour: 26},
		{Name: "minutes", StartMin: 70, EndHour: 1},
		{Name: "inverted", StartHour: 18, EndHour: 9},
	}
	for _, w := range bad {
		err := svc.CreateRule(context.Background(), &models.SafetyRule{
			ProtectedID: protected.ID,
			MonitorID:   monitor.ID,
			Type:        models.RuleTypeInactivity,
			TimeWindows: []models.TimeWindow{w},
		})
		if err == nil {
			t.Fatalf("window %q accepted", w.Name)
		}
	}
}

func TestUpdateRuleClearsAuthorization(t *testing.T) {
	t.Parallel()

	monitor, protected := linkedPair()
	rule := &models.SafetyRule{
		ID:          primitive.NewObjectID(),
		ProtectedID: protected.ID,
		MonitorID:   monitor.ID,
		Type:        models.RuleTypeSpeedLimit,
		Name:        "highway",
		Authorized:  true,
	}
	svc := NewRuleService(newFakeRuleRepo(rule), newFakeUserRepo(monitor, protected), logger.NewNop())

	name := "city"
	updated, err := svc.UpdateRule(context.Background(), rule.ID, monitor.ID, &RuleUpdate{Name: &name})
	if err != nil {
		t.Fatalf("update rule: %v", err)
	}
	if updated.Name != "city" {
		t.Fatalf("got name %q, want %q", updated.Name, "city")
	}
	if updated.Authorized {
		t.Fatal("edit did not clear authorization")
	}
}

func TestUpdateRuleOwnerOnly(t *testing.T) {
	t.Parallel()

	monitor, protected := linkedPair()
	rule := &models.SafetyRule{
		ID:          primitive.NewObjectID(),
		ProtectedID: protected.ID,
		MonitorID:   monitor.ID,
		Type:        models.RuleTypeSpeedLimit,
	}
	svc := NewRuleService(newFakeRuleRepo(rule), newFakeUserRepo(monitor, protected), logger.NewNop())

	name := "renamed"
	_, err := svc.UpdateRule(context.Background(), rule.ID, protected.ID, &RuleUpdate{Name: &name})
	if !errors.Is(err, ErrNotRuleOwner) {
		t.Fatalf("got %v, want ErrNotRuleOwner", err)
	}
}

func TestUpdateRuleNoFieldsKeepsAuthorization(t *testing.T) {
	t.Parallel()

	monitor, protected := linkedPair()
	rule := &models.SafetyRule{
		ID:          primitive.NewObjectID(),
		ProtectedID: protected.ID,
		MonitorID:   monitor.ID,
		Type:        models.RuleTypeSpeedLimit,
		Authorized:  true,
	}
	repo := newFakeRuleRepo(rule)
	svc := NewRuleService(repo, newFakeUserRepo(monitor, protected), logger.NewNop())

	if _, err := svc.UpdateRule(context.Background(), rule.ID, monitor.ID, &RuleUpdate{}); err != nil {
		t.Fatalf("empty update: %v", err)
	}
	stored, _ := repo.GetByID(context.Background(), rule.ID)
	if !stored.Authorized {
		t.Fatal("empty update cleared authorization")
	}
}

func TestDeleteRuleByProtectedUser(t *testing.T) {
	t.Parallel()

	monitor, protected := linkedPair()
	rule := &models.SafetyRule{
		ID:          primitive.NewObjectID(),
		ProtectedID: protected.ID,
		MonitorID:   monitor.ID,
		Type:        models.RuleTypeSpeedLimit,
	}
	repo := newFakeRuleRepo(rule)
	svc := NewRuleService(repo, newFakeUserRepo(monitor, protected), logger.NewNop())

	if err := svc.DeleteRule(context.Background(), rule.ID, protected.ID); err != nil {
		t.Fatalf("protected user delete: %v", err)
	}
	if _, err := repo.GetByID(context.Background(), rule.ID); err == nil {
		t.Fatal("rule still present after delete")
	}
}

func TestDeleteRuleRejectsStranger(t *testing.T) {
	t.Parallel()

	monitor, protected := linkedPair()
	rule := &models.SafetyRule{
		ID:          primitive.NewObjectID(),
		ProtectedID: protected.ID,
		MonitorID:   monitor.ID,
		Type:        models.RuleTypeSpeedLimit,
	}
	svc := NewRuleService(newFakeRuleRepo(rule), newFakeUserRepo(monitor, protected), logger.NewNop())

	if err := svc.DeleteRule(context.Background(), rule.ID, primitive.NewObjectID()); !errors.Is(err, ErrNotRuleOwner) {
		t.Fatalf("got %v, want ErrNotRuleOwner", err)
	}
}

func TestAuthorizeProtectedUserOnly(t *testing.T) {
	t.Parallel()

	monitor, protected := linkedPair()
	rule := &models.SafetyRule{
		ID:          primitive.NewObjectID(),
		ProtectedID: protected.ID,
		MonitorID:   monitor.ID,
		Type:        models.RuleTypeSpeedLimit,
	}
	repo := newFakeRuleRepo(rule)
	svc := NewRuleService(repo, newFakeUserRepo(monitor, protected), logger.NewNop())

	if err := svc.Authorize(context.Background(), rule.ID, monitor.ID, true); !errors.Is(err, ErrNotProtectedUser) {
		t.Fatalf("got %v, want ErrNotProtectedUser", err)
	}

	if err := svc.Authorize(context.Background(), rule.ID, protected.ID, true); err != nil {
		t.Fatalf("protected user authorize: %v", err)
	}
	stored, _ := repo.GetByID(context.Background(), rule.ID)
	if !stored.Authorized {
		t.Fatal("authorization not persisted")
	}
}
