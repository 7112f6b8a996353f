package interfaces

import (
	"context"

	"safetysec/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type AssociationRepository interface {
	// CreateCode stores a fresh pairing code issued by a monitor.
	CreateCode(ctx context.Context, code *models.AssociationCode) error
	GetCode(ctx context.Context, code string) (*models.AssociationCode, error)
	DeleteCode(ctx context.Context, code string) error

	// Redeem consumes a pairing code on behalf of a protected user: it links
	// both sides of the relationship and burns the code in one transaction.
	Redeem(ctx context.Context, code string, protectedID primitive.ObjectID) (*models.AssociationCode, error)

	// Unlink removes an existing monitor/protected relationship from both
	// user documents.
	Unlink(ctx context.Context, monitorID, protectedID primitive.ObjectID) error
}
