package services

import (
	"context"
	"fmt"
	"time"

	"safetysec/internal/models"
	"safetysec/internal/repositories/interfaces"
	"safetysec/internal/validators"
	"safetysec/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type UserService interface {
	Register(ctx context.Context, request *RegisterRequest) (*models.User, string, error)
	GetUser(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	UpdateProfile(ctx context.Context, id primitive.ObjectID, updates *ProfileUpdate) (*models.User, error)

	// SetCancellationCode stores the secret the protected user types to
	// abort an alert countdown.
	SetCancellationCode(ctx context.Context, id primitive.ObjectID, code string) error

	RegisterDevice(ctx context.Context, id primitive.ObjectID, token models.DeviceToken) error
	RemoveDevice(ctx context.Context, id primitive.ObjectID, token string) error

	GetMonitors(ctx context.Context, protectedID primitive.ObjectID) ([]*models.User, error)
	GetProtecteds(ctx context.Context, monitorID primitive.ObjectID) ([]*models.User, error)

	// IssueToken signs a bearer token for an authenticated user. Credential
	// verification happens upstream (identity provider); this service only
	// mints the session token the API consumes.
	IssueToken(userID primitive.ObjectID) (string, error)
}

type RegisterRequest struct {
	Name        string `json:"name" binding:"required"`
	Email       string `json:"email" binding:"required,email"`
	Phone       string `json:"phone"`
	IsProtected bool   `json:"protected"`
}

type ProfileUpdate struct {
	Name  *string `json:"name"`
	Phone *string `json:"phone"`
}

type userService struct {
	userRepo  interfaces.UserRepository
	jwtSecret string
	tokenTTL  time.Duration
	logger    *logger.Logger
}

func NewUserService(userRepo interfaces.UserRepository, jwtSecret string, tokenTTL time.Duration, log *logger.Logger) UserService {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &userService{
		userRepo:  userRepo,
		jwtSecret: jwtSecret,
		tokenTTL:  tokenTTL,
		logger:    log,
	}
}

func (s *userService) Register(ctx context.Context, request *RegisterRequest) (*models.User, string, error) {
	if err := validators.ValidatePhoneNumber(request.Phone); err != nil {
		return nil, "", err
	}
	if existing, err := s.userRepo.GetByEmail(ctx, request.Email); err == nil && existing != nil {
		return nil, "", fmt.Errorf("email %s is already registered", request.Email)
	}

	user := &models.User{
		Name:        request.Name,
		Email:       request.Email,
		Phone:       request.Phone,
		IsProtected: request.IsProtected,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, "", err
	}

	token, err := s.IssueToken(user.ID)
	if err != nil {
		return nil, "", err
	}

	s.logger.WithUserID(user.ID).Info("User registered")
	return user, token, nil
}

func (s *userService) GetUser(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return s.userRepo.GetByID(ctx, id)
}

func (s *userService) UpdateProfile(ctx context.Context, id primitive.ObjectID, updates *ProfileUpdate) (*models.User, error) {
	fields := map[string]interface{}{}
	if updates.Name != nil {
		fields["name"] = *updates.Name
	}
	if updates.Phone != nil {
		if err := validators.ValidatePhoneNumber(*updates.Phone); err != nil {
			return nil, err
		}
		fields["phone"] = *updates.Phone
	}
	if len(fields) > 0 {
		if err := s.userRepo.Update(ctx, id, fields); err != nil {
			return nil, err
		}
	}
	return s.userRepo.GetByID(ctx, id)
}

func (s *userService) SetCancellationCode(ctx context.Context, id primitive.ObjectID, code string) error {
	if err := validators.ValidateCancellationCode(code); err != nil {
		return err
	}
	return s.userRepo.Update(ctx, id, map[string]interface{}{
		"cancellation_code": code,
	})
}

func (s *userService) RegisterDevice(ctx context.Context, id primitive.ObjectID, token models.DeviceToken) error {
	return s.userRepo.AddDeviceToken(ctx, id, token)
}

func (s *userService) RemoveDevice(ctx context.Context, id primitive.ObjectID, token string) error {
	return s.userRepo.RemoveDeviceToken(ctx, id, token)
}

func (s *userService) GetMonitors(ctx context.Context, protectedID primitive.ObjectID) ([]*models.User, error) {
	return s.userRepo.GetMonitors(ctx, protectedID)
}

func (s *userService) GetProtecteds(ctx context.Context, monitorID primitive.ObjectID) ([]*models.User, error) {
	return s.userRepo.GetProtecteds(ctx, monitorID)
}

func (s *userService) IssueToken(userID primitive.ObjectID) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": userID.Hex(),
		"iat":     now.Unix(),
		"exp":     now.Add(s.tokenTTL).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
