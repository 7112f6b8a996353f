package interfaces

import (
	"context"

	"safetysec/internal/models"
	"safetysec/internal/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type RuleRepository interface {
	// Basic CRUD operations
	Create(ctx context.Context, rule *models.SafetyRule) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.SafetyRule, error)
	Update(ctx context.Context, id primitive.ObjectID, updates map[string]interface{}) error
	Delete(ctx context.Context, id primitive.ObjectID) error

	// Engine feed: only authorized rules are evaluated.
	GetActiveForProtected(ctx context.Context, protectedID primitive.ObjectID) ([]*models.SafetyRule, error)

	// Listing
	ListByProtected(ctx context.Context, protectedID primitive.ObjectID, params *utils.PaginationParams) ([]*models.SafetyRule, int64, error)
	ListByMonitor(ctx context.Context, monitorID primitive.ObjectID, params *utils.PaginationParams) ([]*models.SafetyRule, int64, error)

	// Authorization toggle (protected user consent)
	SetAuthorized(ctx context.Context, id primitive.ObjectID, authorized bool) error

	// WatchProtected notifies on every change to the protected user's rule
	// set. The returned channel closes when ctx is cancelled or the change
	// stream dies; callers fall back to polling in that case.
	WatchProtected(ctx context.Context, protectedID primitive.ObjectID) (<-chan struct{}, error)
}
