package services

import (
	"context"
	"errors"
	"fmt"

	"safetysec/internal/models"
	"safetysec/internal/repositories/interfaces"
	"safetysec/internal/repositories/mongodb"
	"safetysec/internal/utils"
	"safetysec/pkg/logger"
	"safetysec/pkg/websocket"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// How many times a colliding 6-digit code is regenerated before giving up.
const codeGenerationAttempts = 5

type AssociationService interface {
	// GenerateCode issues a short-lived pairing code for a monitor to share
	// out of band with the person they want to watch over.
	GenerateCode(ctx context.Context, monitorID primitive.ObjectID) (*models.AssociationCode, error)

	// Redeem consumes a code on the protected user's device and links the
	// two accounts. Returns the monitor that issued the code.
	Redeem(ctx context.Context, code string, protectedID primitive.ObjectID) (*models.User, error)

	Unlink(ctx context.Context, monitorID, protectedID primitive.ObjectID) error
}

type associationService struct {
	assocRepo interfaces.AssociationRepository
	userRepo  interfaces.UserRepository
	wsHandler *websocket.Handler
	logger    *logger.Logger
}

func NewAssociationService(
	assocRepo interfaces.AssociationRepository,
	userRepo interfaces.UserRepository,
	wsHandler *websocket.Handler,
	log *logger.Logger,
) AssociationService {
	return &associationService{
		assocRepo: assocRepo,
		userRepo:  userRepo,
		wsHandler: wsHandler,
		logger:    log,
	}
}

func (s *associationService) GenerateCode(ctx context.Context, monitorID primitive.ObjectID) (*models.AssociationCode, error) {
	if _, err := s.userRepo.GetByID(ctx, monitorID); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < codeGenerationAttempts; attempt++ {
		code, err := utils.GenerateAssociationCode()
		if err != nil {
			return nil, err
		}

		doc := &models.AssociationCode{
			Code:      code,
			MonitorID: monitorID,
		}
		err = s.assocRepo.CreateCode(ctx, doc)
		if err == nil {
			s.logger.WithUserID(monitorID).Info("Association code issued")
			return doc, nil
		}
		if !errors.Is(err, mongodb.ErrCodeConflict) {
			return nil, err
		}
		// Collision with a live code; roll again.
	}
	return nil, fmt.Errorf("could not generate a unique association code")
}

func (s *associationService) Redeem(ctx context.Context, code string, protectedID primitive.ObjectID) (*models.User, error) {
	doc, err := s.assocRepo.Redeem(ctx, code, protectedID)
	if err != nil {
		return nil, err
	}

	monitor, err := s.userRepo.GetByID(ctx, doc.MonitorID)
	if err != nil {
		return nil, err
	}

	s.logger.WithUserID(doc.MonitorID).WithProtectedID(protectedID).Info("Association established")

	if s.wsHandler != nil {
		if protected, err := s.userRepo.GetByID(ctx, protectedID); err == nil {
			s.wsHandler.SendUserNotification(doc.MonitorID, "association_established", map[string]interface{}{
				"protected_id":   protectedID.Hex(),
				"protected_name": protected.Name,
			})
		}
	}
	return monitor, nil
}

func (s *associationService) Unlink(ctx context.Context, monitorID, protectedID primitive.ObjectID) error {
	if err := s.assocRepo.Unlink(ctx, monitorID, protectedID); err != nil {
		return err
	}

	s.logger.WithUserID(monitorID).WithProtectedID(protectedID).Info("Association removed")

	if s.wsHandler != nil {
		s.wsHandler.SendUserNotification(monitorID, "association_removed", map[string]interface{}{
			"protected_id": protectedID.Hex(),
		})
	}
	return nil
}
