package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"safetysec/internal/models"
	"safetysec/internal/repositories/interfaces"
	"safetysec/pkg/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

var (
	ErrCodeExpired  = errors.New("association code expired")
	ErrSelfPairing  = errors.New("cannot pair a user with themselves")
	ErrCodeConflict = errors.New("association code already exists")
)

type associationRepository struct {
	codes   *mongo.Collection
	users   *mongo.Collection
	codeTTL time.Duration
}

func NewAssociationRepository(db *mongo.Database, codeTTL time.Duration) interfaces.AssociationRepository {
	if codeTTL <= 0 {
		codeTTL = 5 * time.Minute
	}
	return &associationRepository{
		codes:   db.Collection(database.CollectionCodes),
		users:   db.Collection(database.CollectionUsers),
		codeTTL: codeTTL,
	}
}

func (r *associationRepository) CreateCode(ctx context.Context, code *models.AssociationCode) error {
	code.CreatedAt = time.Now()

	_, err := r.codes.InsertOne(ctx, code)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrCodeConflict
		}
		return fmt.Errorf("failed to create association code: %w", err)
	}
	return nil
}

func (r *associationRepository) GetCode(ctx context.Context, code string) (*models.AssociationCode, error) {
	var doc models.AssociationCode
	err := r.codes.FindOne(ctx, bson.M{"_id": code}).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("association code: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get association code: %w", err)
	}
	return &doc, nil
}

func (r *associationRepository) DeleteCode(ctx context.Context, code string) error {
	_, err := r.codes.DeleteOne(ctx, bson.M{"_id": code})
	if err != nil {
		return fmt.Errorf("failed to delete association code: %w", err)
	}
	return nil
}

// Redeem runs the whole pairing inside one transaction: read the code,
// verify it is still fresh, link both user documents, burn the code. A lost
// race on the delete means another device redeemed first; the transaction
// conflict surfaces as an error and nothing is linked twice thanks to
// $addToSet.
func (r *associationRepository) Redeem(ctx context.Context, code string, protectedID primitive.ObjectID) (*models.AssociationCode, error) {
	session, err := r.codes.Database().Client().StartSession()
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	result, err := session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		var doc models.AssociationCode
		if err := r.codes.FindOne(sc, bson.M{"_id": code}).Decode(&doc); err != nil {
			if err == mongo.ErrNoDocuments {
				return nil, fmt.Errorf("association code: %w", ErrNotFound)
			}
			return nil, fmt.Errorf("failed to get association code: %w", err)
		}

		// The TTL monitor only sweeps every minute, so expiry is enforced
		// here as well.
		if doc.Expired(time.Now(), r.codeTTL) {
			return nil, ErrCodeExpired
		}
		if doc.MonitorID == protectedID {
			return nil, ErrSelfPairing
		}

		now := time.Now()
		res, err := r.users.UpdateOne(sc, bson.M{"_id": doc.MonitorID}, bson.M{
			"$addToSet": bson.M{"protecteds": protectedID},
			"$set":      bson.M{"updated_at": now},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to link monitor: %w", err)
		}
		if res.MatchedCount == 0 {
			return nil, fmt.Errorf("monitor %s: %w", doc.MonitorID.Hex(), ErrNotFound)
		}

		res, err = r.users.UpdateOne(sc, bson.M{"_id": protectedID}, bson.M{
			"$addToSet": bson.M{"monitors": doc.MonitorID},
			"$set":      bson.M{"updated_at": now},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to link protected user: %w", err)
		}
		if res.MatchedCount == 0 {
			return nil, fmt.Errorf("protected user %s: %w", protectedID.Hex(), ErrNotFound)
		}

		if _, err := r.codes.DeleteOne(sc, bson.M{"_id": code}); err != nil {
			return nil, fmt.Errorf("failed to burn association code: %w", err)
		}

		return &doc, nil
	})
	if err != nil {
		return nil, err
	}

	return result.(*models.AssociationCode), nil
}

func (r *associationRepository) Unlink(ctx context.Context, monitorID, protectedID primitive.ObjectID) error {
	session, err := r.users.Database().Client().StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		now := time.Now()
		if _, err := r.users.UpdateOne(sc, bson.M{"_id": monitorID}, bson.M{
			"$pull": bson.M{"protecteds": protectedID},
			"$set":  bson.M{"updated_at": now},
		}); err != nil {
			return nil, fmt.Errorf("failed to unlink monitor: %w", err)
		}

		if _, err := r.users.UpdateOne(sc, bson.M{"_id": protectedID}, bson.M{
			"$pull": bson.M{"monitors": monitorID},
			"$set":  bson.M{"updated_at": now},
		}); err != nil {
			return nil, fmt.Errorf("failed to unlink protected user: %w", err)
		}

		return nil, nil
	})
	return err
}
