package interfaces

import (
	"context"

	"safetysec/internal/models"
	"safetysec/internal/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type AlertRepository interface {
	Create(ctx context.Context, alert *models.Alert) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Alert, error)

	// AttachVideo patches the evidence URL onto an existing alert.
	AttachVideo(ctx context.Context, id primitive.ObjectID, videoURL string) error

	// Resolve marks an alert handled. Resolving an already resolved alert is
	// a no-op that preserves the first resolver.
	Resolve(ctx context.Context, id primitive.ObjectID, resolvedBy primitive.ObjectID, notes string) (*models.Alert, error)

	// Listing
	ListByProtected(ctx context.Context, protectedID primitive.ObjectID, params *utils.PaginationParams) ([]*models.Alert, int64, error)
	ListUnresolvedByProtecteds(ctx context.Context, protectedIDs []primitive.ObjectID) ([]*models.Alert, error)

	// Statistics
	CountUnresolved(ctx context.Context, protectedID primitive.ObjectID) (int64, error)
}
