package services

import (
	"context"
	"testing"

	"safetysec/internal/models"
	"safetysec/pkg/logger"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func newTestAlertService(alertRepo *fakeAlertRepo, userRepo *fakeUserRepo) AlertService {
	return NewAlertService(alertRepo, userRepo, nil, nil, "SafetySec", nil, nil, logger.NewNop())
}

func TestCreateAlertBackfillsProtectedName(t *testing.T) {
	t.Parallel()

	monitor, protected := linkedPair()
	alertRepo := newFakeAlertRepo()
	svc := newTestAlertService(alertRepo, newFakeUserRepo(monitor, protected))

	alert := &models.Alert{
		ProtectedID: protected.ID,
		Type:        models.RuleTypePanicButton,
	}
	if err := svc.CreateAlert(context.Background(), alert); err != nil {
		t.Fatalf("create alert: %v", err)
	}

	stored, err := alertRepo.GetByID(context.Background(), alert.ID)
	if err != nil {
		t.Fatalf("get stored alert: %v", err)
	}
	if stored.ProtectedName != "Ana" {
		t.Fatalf("protected name not backfilled: %q", stored.ProtectedName)
	}
}

func TestResolveAlertByProtectedUser(t *testing.T) {
	t.Parallel()

	monitor, protected := linkedPair()
	alert := &models.Alert{
		ID:          primitive.NewObjectID(),
		ProtectedID: protected.ID,
		Type:        models.RuleTypeFallDetection,
	}
	svc := newTestAlertService(newFakeAlertRepo(alert), newFakeUserRepo(monitor, protected))

	resolved, err := svc.ResolveAlert(context.Background(), alert.ID, protected.ID, "false alarm")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !resolved.Resolved || resolved.ResolvedBy == nil || *resolved.ResolvedBy != protected.ID {
		t.Fatalf("unexpected resolution: %+v", resolved)
	}
	if resolved.Notes != "false alarm" {
		t.Fatalf("notes not stored: %q", resolved.Notes)
	}
}

func TestResolveAlertByMonitor(t *testing.T) {
	t.Parallel()

	monitor, protected := linkedPair()
	alert := &models.Alert{
		ID:          primitive.NewObjectID(),
		ProtectedID: protected.ID,
		Type:        models.RuleTypePanicButton,
	}
	svc := newTestAlertService(newFakeAlertRepo(alert), newFakeUserRepo(monitor, protected))

	if _, err := svc.ResolveAlert(context.Background(), alert.ID, monitor.ID, ""); err != nil {
		t.Fatalf("monitor resolve: %v", err)
	}
}

func TestResolveAlertRejectsStranger(t *testing.T) {
	t.Parallel()

	monitor, protected := linkedPair()
	stranger := &models.User{ID: primitive.NewObjectID(), Name: "Eve", Email: "eve@example.com"}
	alert := &models.Alert{
		ID:          primitive.NewObjectID(),
		ProtectedID: protected.ID,
		Type:        models.RuleTypePanicButton,
	}
	svc := newTestAlertService(newFakeAlertRepo(alert), newFakeUserRepo(monitor, protected, stranger))

	if _, err := svc.ResolveAlert(context.Background(), alert.ID, stranger.ID, ""); err == nil {
		t.Fatal("stranger resolved the alert")
	}
}

func TestResolveAlertKeepsFirstResolver(t *testing.T) {
	t.Parallel()

	monitor, protected := linkedPair()
	alert := &models.Alert{
		ID:          primitive.NewObjectID(),
		ProtectedID: protected.ID,
		Type:        models.RuleTypePanicButton,
	}
	svc := newTestAlertService(newFakeAlertRepo(alert), newFakeUserRepo(monitor, protected))

	if _, err := svc.ResolveAlert(context.Background(), alert.ID, monitor.ID, "handled"); err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	second, err := svc.ResolveAlert(context.Background(), alert.ID, protected.ID, "me too")
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if second.ResolvedBy == nil || *second.ResolvedBy != monitor.ID {
		t.Fatal("second resolution overwrote the first resolver")
	}
	if second.Notes != "handled" {
		t.Fatalf("second resolution overwrote the notes: %q", second.Notes)
	}
}

func TestListUnresolvedForMonitor(t *testing.T) {
	t.Parallel()

	monitor, protected := linkedPair()
	open := &models.Alert{
		ID:          primitive.NewObjectID(),
		ProtectedID: protected.ID,
		Type:        models.RuleTypeGeofencing,
	}
	closed := &models.Alert{
		ID:          primitive.NewObjectID(),
		ProtectedID: protected.ID,
		Type:        models.RuleTypeSpeedLimit,
		Resolved:    true,
	}
	unrelated := &models.Alert{
		ID:          primitive.NewObjectID(),
		ProtectedID: primitive.NewObjectID(),
		Type:        models.RuleTypePanicButton,
	}
	svc := newTestAlertService(newFakeAlertRepo(open, closed, unrelated), newFakeUserRepo(monitor, protected))

	alerts, err := svc.ListUnresolvedForMonitor(context.Background(), monitor.ID)
	if err != nil {
		t.Fatalf("list unresolved: %v", err)
	}
	if len(alerts) != 1 || alerts[0].ID != open.ID {
		t.Fatalf("got %d alerts, want only the open one", len(alerts))
	}
}
