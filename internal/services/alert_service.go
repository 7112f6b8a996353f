package services

import (
	"context"
	"fmt"
	"time"

	"safetysec/internal/models"
	"safetysec/internal/repositories/interfaces"
	"safetysec/internal/utils"
	"safetysec/pkg/logger"
	"safetysec/pkg/maps"
	"safetysec/pkg/push"
	"safetysec/pkg/sms"
	"safetysec/pkg/websocket"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type AlertService interface {
	// CreateAlert persists a new alert and fans it out to every monitor of
	// the protected user. Also satisfies the engine workflow's store
	// contract.
	CreateAlert(ctx context.Context, alert *models.Alert) error
	AttachVideo(ctx context.Context, alertID primitive.ObjectID, url string) error

	GetAlert(ctx context.Context, id primitive.ObjectID) (*models.Alert, error)
	ResolveAlert(ctx context.Context, id primitive.ObjectID, resolvedBy primitive.ObjectID, notes string) (*models.Alert, error)

	ListByProtected(ctx context.Context, protectedID primitive.ObjectID, params *utils.PaginationParams) ([]*models.Alert, int64, error)
	ListUnresolvedForMonitor(ctx context.Context, monitorID primitive.ObjectID) ([]*models.Alert, error)
}

type alertService struct {
	alertRepo interfaces.AlertRepository
	userRepo  interfaces.UserRepository
	push      push.Provider
	sms       sms.Provider
	smsFrom   string
	geocoder  maps.Geocoder
	wsHandler *websocket.Handler
	logger    *logger.Logger
}

func NewAlertService(
	alertRepo interfaces.AlertRepository,
	userRepo interfaces.UserRepository,
	pushProvider push.Provider,
	smsProvider sms.Provider,
	smsFrom string,
	geocoder maps.Geocoder,
	wsHandler *websocket.Handler,
	log *logger.Logger,
) AlertService {
	return &alertService{
		alertRepo: alertRepo,
		userRepo:  userRepo,
		push:      pushProvider,
		sms:       smsProvider,
		smsFrom:   smsFrom,
		geocoder:  geocoder,
		wsHandler: wsHandler,
		logger:    log,
	}
}

func (s *alertService) CreateAlert(ctx context.Context, alert *models.Alert) error {
	if alert.ProtectedName == "" {
		if user, err := s.userRepo.GetByID(ctx, alert.ProtectedID); err == nil {
			alert.ProtectedName = user.Name
		}
	}

	// Best effort: an alert without an address is still an alert.
	if alert.Address == "" && alert.Location != nil && s.geocoder != nil {
		geoCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		address, err := s.geocoder.ReverseGeocode(geoCtx, alert.Location.Latitude(), alert.Location.Longitude())
		cancel()
		if err != nil {
			s.logger.WithError(err).Warn("Reverse geocoding failed")
		} else {
			alert.Address = address
		}
	}

	if err := s.alertRepo.Create(ctx, alert); err != nil {
		return err
	}

	s.logger.LogAlertEvent(alert.ID, "created", map[string]interface{}{
		"protected_id": alert.ProtectedID.Hex(),
		"alert_type":   alert.Type,
	})

	// Fan-out must not block the emergency workflow.
	go s.notifyMonitors(context.Background(), alert)

	return nil
}

func (s *alertService) AttachVideo(ctx context.Context, alertID primitive.ObjectID, url string) error {
	if err := s.alertRepo.AttachVideo(ctx, alertID, url); err != nil {
		return err
	}

	alert, err := s.alertRepo.GetByID(ctx, alertID)
	if err != nil {
		return nil
	}

	if s.wsHandler != nil {
		s.wsHandler.SendAlertNotification(alert.ProtectedID, "alert_video_ready", map[string]interface{}{
			"alert_id":  alert.ID.Hex(),
			"video_url": url,
		})
	}
	return nil
}

func (s *alertService) GetAlert(ctx context.Context, id primitive.ObjectID) (*models.Alert, error) {
	return s.alertRepo.GetByID(ctx, id)
}

func (s *alertService) ResolveAlert(ctx context.Context, id primitive.ObjectID, resolvedBy primitive.ObjectID, notes string) (*models.Alert, error) {
	alert, err := s.alertRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.authorizeResolver(ctx, alert, resolvedBy); err != nil {
		return nil, err
	}

	resolved, err := s.alertRepo.Resolve(ctx, id, resolvedBy, notes)
	if err != nil {
		return nil, err
	}

	s.logger.LogAlertEvent(resolved.ID, "resolved", map[string]interface{}{
		"resolved_by": resolvedBy.Hex(),
	})

	if s.wsHandler != nil {
		s.wsHandler.SendAlertNotification(resolved.ProtectedID, "alert_resolved", map[string]interface{}{
			"alert_id":    resolved.ID.Hex(),
			"resolved_by": resolvedBy.Hex(),
		})
	}
	return resolved, nil
}

// authorizeResolver allows the protected user themselves or any of their
// monitors to close an alert.
func (s *alertService) authorizeResolver(ctx context.Context, alert *models.Alert, resolvedBy primitive.ObjectID) error {
	if alert.ProtectedID == resolvedBy {
		return nil
	}

	protected, err := s.userRepo.GetByID(ctx, alert.ProtectedID)
	if err != nil {
		return err
	}
	for _, monitorID := range protected.Monitors {
		if monitorID == resolvedBy {
			return nil
		}
	}
	return fmt.Errorf("user %s is not allowed to resolve this alert", resolvedBy.Hex())
}

func (s *alertService) ListByProtected(ctx context.Context, protectedID primitive.ObjectID, params *utils.PaginationParams) ([]*models.Alert, int64, error) {
	return s.alertRepo.ListByProtected(ctx, protectedID, params)
}

func (s *alertService) ListUnresolvedForMonitor(ctx context.Context, monitorID primitive.ObjectID) ([]*models.Alert, error) {
	monitor, err := s.userRepo.GetByID(ctx, monitorID)
	if err != nil {
		return nil, err
	}
	return s.alertRepo.ListUnresolvedByProtecteds(ctx, monitor.Protecteds)
}

func (s *alertService) notifyMonitors(ctx context.Context, alert *models.Alert) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	monitors, err := s.userRepo.GetMonitors(ctx, alert.ProtectedID)
	if err != nil {
		s.logger.WithError(err).WithAlertID(alert.ID).Error("Failed to load monitors for fan-out")
		return
	}

	title := fmt.Sprintf("SAFETY ALERT: %s", alert.ProtectedName)
	body := alertBody(alert)

	if s.wsHandler != nil {
		s.wsHandler.SendAlertNotification(alert.ProtectedID, "new_alert", map[string]interface{}{
			"alert_id":       alert.ID.Hex(),
			"type":           alert.Type,
			"protected_name": alert.ProtectedName,
			"address":        alert.Address,
		})
	}

	for _, monitor := range monitors {
		if s.push != nil {
			for _, token := range monitor.DeviceTokens {
				resp, err := s.push.SendNotification(ctx, &push.NotificationRequest{
					Token:    token.Token,
					Title:    title,
					Body:     body,
					Priority: "high",
					Sound:    "alarm",
					Data: map[string]string{
						"alert_id":     alert.ID.Hex(),
						"alert_type":   string(alert.Type),
						"protected_id": alert.ProtectedID.Hex(),
					},
				})
				if err != nil {
					s.logger.WithError(err).WithUserID(monitor.ID).Warn("Push notification failed")
				} else if resp != nil && !resp.Success {
					s.logger.WithUserID(monitor.ID).Warn("Push notification rejected")
				}
			}
		}

		if s.sms != nil && monitor.Phone != "" {
			_, err := s.sms.SendSMS(ctx, &sms.SMSRequest{
				To:      monitor.Phone,
				From:    s.smsFrom,
				Message: title + " - " + body,
			})
			if err != nil {
				s.logger.WithError(err).WithUserID(monitor.ID).Warn("Alert SMS failed")
			}
		}
	}
}

func alertBody(alert *models.Alert) string {
	var what string
	switch alert.Type {
	case models.RuleTypeFallDetection:
		what = "Possible fall detected"
	case models.RuleTypeCarAccident:
		what = "Possible car accident detected"
	case models.RuleTypeSpeedLimit:
		what = "Speed limit exceeded"
	case models.RuleTypeGeofencing:
		what = "Left the safe area"
	case models.RuleTypeInactivity:
		what = "No movement detected"
	case models.RuleTypePanicButton:
		what = "Panic button pressed"
	default:
		what = "Safety alert triggered"
	}
	if alert.Address != "" {
		return fmt.Sprintf("%s near %s", what, alert.Address)
	}
	return what
}
