package mongodb

import (
	"context"
	"fmt"
	"time"

	"safetysec/internal/models"
	"safetysec/internal/repositories/interfaces"
	"safetysec/internal/utils"
	"safetysec/pkg/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type alertRepository struct {
	collection *mongo.Collection
	cache      CacheService
}

func NewAlertRepository(db *mongo.Database, cache CacheService) interfaces.AlertRepository {
	return &alertRepository{
		collection: db.Collection(database.CollectionAlerts),
		cache:      cache,
	}
}

func (r *alertRepository) Create(ctx context.Context, alert *models.Alert) error {
	alert.ID = primitive.NewObjectID()
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}
	alert.UpdatedAt = time.Now()

	_, err := r.collection.InsertOne(ctx, alert)
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}

	r.invalidateUnresolvedCache(ctx, alert.ProtectedID)
	return nil
}

func (r *alertRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Alert, error) {
	var alert models.Alert
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&alert)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("alert %s: %w", id.Hex(), ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return &alert, nil
}

func (r *alertRepository) AttachVideo(ctx context.Context, id primitive.ObjectID, videoURL string) error {
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{
			"video_url":  videoURL,
			"updated_at": time.Now(),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to attach video: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("alert %s: %w", id.Hex(), ErrNotFound)
	}
	return nil
}

// Resolve marks the alert handled. The filter requires resolved=false, so a
// concurrent second resolver matches nothing and the first resolver's fields
// survive. The alert is re-read either way and returned.
func (r *alertRepository) Resolve(ctx context.Context, id primitive.ObjectID, resolvedBy primitive.ObjectID, notes string) (*models.Alert, error) {
	now := time.Now()
	update := bson.M{
		"$set": bson.M{
			"resolved":    true,
			"resolved_by": resolvedBy,
			"resolved_at": now,
			"updated_at":  now,
		},
	}
	if notes != "" {
		update["$set"].(bson.M)["notes"] = notes
	}

	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": id, "resolved": false}, update)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve alert: %w", err)
	}

	alert, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	r.invalidateUnresolvedCache(ctx, alert.ProtectedID)
	return alert, nil
}

func (r *alertRepository) ListByProtected(ctx context.Context, protectedID primitive.ObjectID, params *utils.PaginationParams) ([]*models.Alert, int64, error) {
	filter := bson.M{"protected_id": protectedID}

	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count alerts: %w", err)
	}

	cursor, err := r.collection.Find(ctx, filter, params.FindOptions())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer cursor.Close(ctx)

	var alerts []*models.Alert
	if err := cursor.All(ctx, &alerts); err != nil {
		return nil, 0, fmt.Errorf("failed to decode alerts: %w", err)
	}
	return alerts, total, nil
}

// ListUnresolvedByProtecteds feeds a monitor's dashboard: every open alert
// across all the users they watch, newest first.
func (r *alertRepository) ListUnresolvedByProtecteds(ctx context.Context, protectedIDs []primitive.ObjectID) ([]*models.Alert, error) {
	if len(protectedIDs) == 0 {
		return []*models.Alert{}, nil
	}

	cursor, err := r.collection.Find(ctx, bson.M{
		"protected_id": bson.M{"$in": protectedIDs},
		"resolved":     false,
	}, options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list unresolved alerts: %w", err)
	}
	defer cursor.Close(ctx)

	alerts := []*models.Alert{}
	if err := cursor.All(ctx, &alerts); err != nil {
		return nil, fmt.Errorf("failed to decode alerts: %w", err)
	}
	return alerts, nil
}

func (r *alertRepository) CountUnresolved(ctx context.Context, protectedID primitive.ObjectID) (int64, error) {
	cacheKey := "unresolved_count_" + protectedID.Hex()
	if r.cache != nil {
		var count int64
		if err := r.cache.Get(ctx, cacheKey, &count); err == nil {
			return count, nil
		}
	}

	count, err := r.collection.CountDocuments(ctx, bson.M{
		"protected_id": protectedID,
		"resolved":     false,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count unresolved alerts: %w", err)
	}

	if r.cache != nil {
		r.cache.Set(ctx, cacheKey, count, alertCacheTTL)
	}
	return count, nil
}

func (r *alertRepository) invalidateUnresolvedCache(ctx context.Context, protectedID primitive.ObjectID) {
	if r.cache == nil {
		return
	}
	r.cache.Delete(ctx, "unresolved_count_"+protectedID.Hex())
}
