package interfaces

import (
	"context"
	"time"

	"safetysec/internal/models"
	"safetysec/internal/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type UserRepository interface {
	// Basic CRUD operations
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Update(ctx context.Context, id primitive.ObjectID, updates map[string]interface{}) error
	Delete(ctx context.Context, id primitive.ObjectID) error

	// Live telemetry
	UpdateLocation(ctx context.Context, id primitive.ObjectID, location *models.GeoPoint, batteryLevel *float64, at time.Time) error

	// Relationship lookups
	GetMonitors(ctx context.Context, protectedID primitive.ObjectID) ([]*models.User, error)
	GetProtecteds(ctx context.Context, monitorID primitive.ObjectID) ([]*models.User, error)

	// Device tokens for push delivery
	AddDeviceToken(ctx context.Context, id primitive.ObjectID, token models.DeviceToken) error
	RemoveDeviceToken(ctx context.Context, id primitive.ObjectID, token string) error

	// Listing
	List(ctx context.Context, params *utils.PaginationParams) ([]*models.User, int64, error)
}
