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

type ruleRepository struct {
	collection *mongo.Collection
	cache      CacheService
}

func NewRuleRepository(db *mongo.Database, cache CacheService) interfaces.RuleRepository {
	return &ruleRepository{
		collection: db.Collection(database.CollectionRules),
		cache:      cache,
	}
}

func (r *ruleRepository) Create(ctx context.Context, rule *models.SafetyRule) error {
	rule.ID = primitive.NewObjectID()
	rule.CreatedAt = time.Now()
	rule.UpdatedAt = time.Now()
	if rule.Params == nil {
		rule.Params = map[string]float64{}
	}

	_, err := r.collection.InsertOne(ctx, rule)
	if err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}

	r.invalidateActiveCache(ctx, rule.ProtectedID)
	return nil
}

func (r *ruleRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.SafetyRule, error) {
	var rule models.SafetyRule
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&rule)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("rule %s: %w", id.Hex(), ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return &rule, nil
}

func (r *ruleRepository) Update(ctx context.Context, id primitive.ObjectID, updates map[string]interface{}) error {
	rule, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	updates["updated_at"] = time.Now()
	_, err = r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": updates})
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}

	r.invalidateActiveCache(ctx, rule.ProtectedID)
	return nil
}

func (r *ruleRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	rule, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	_, err = r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}

	r.invalidateActiveCache(ctx, rule.ProtectedID)
	return nil
}

// GetActiveForProtected returns every authorized rule for the protected
// user. This is the set the engine evaluates; unauthorized rules never make
// it into a session.
func (r *ruleRepository) GetActiveForProtected(ctx context.Context, protectedID primitive.ObjectID) ([]*models.SafetyRule, error) {
	cacheKey := "active_rules_" + protectedID.Hex()
	if r.cache != nil {
		var rules []*models.SafetyRule
		if err := r.cache.Get(ctx, cacheKey, &rules); err == nil {
			return rules, nil
		}
	}

	cursor, err := r.collection.Find(ctx, bson.M{
		"protected_id": protectedID,
		"authorized":   true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get active rules: %w", err)
	}
	defer cursor.Close(ctx)

	rules := []*models.SafetyRule{}
	if err := cursor.All(ctx, &rules); err != nil {
		return nil, fmt.Errorf("failed to decode rules: %w", err)
	}

	if r.cache != nil {
		r.cache.Set(ctx, cacheKey, rules, ruleCacheTTL)
	}
	return rules, nil
}

func (r *ruleRepository) ListByProtected(ctx context.Context, protectedID primitive.ObjectID, params *utils.PaginationParams) ([]*models.SafetyRule, int64, error) {
	return r.list(ctx, bson.M{"protected_id": protectedID}, params)
}

func (r *ruleRepository) ListByMonitor(ctx context.Context, monitorID primitive.ObjectID, params *utils.PaginationParams) ([]*models.SafetyRule, int64, error) {
	return r.list(ctx, bson.M{"monitor_id": monitorID}, params)
}

func (r *ruleRepository) list(ctx context.Context, filter bson.M, params *utils.PaginationParams) ([]*models.SafetyRule, int64, error) {
	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count rules: %w", err)
	}

	cursor, err := r.collection.Find(ctx, filter, params.FindOptions())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list rules: %w", err)
	}
	defer cursor.Close(ctx)

	var rules []*models.SafetyRule
	if err := cursor.All(ctx, &rules); err != nil {
		return nil, 0, fmt.Errorf("failed to decode rules: %w", err)
	}
	return rules, total, nil
}

func (r *ruleRepository) SetAuthorized(ctx context.Context, id primitive.ObjectID, authorized bool) error {
	return r.Update(ctx, id, map[string]interface{}{"authorized": authorized})
}

// WatchProtected opens a change stream scoped to the protected user's rules.
// Every insert, update, replace or delete fires one notification. The
// goroutine exits and closes the channel when the stream breaks, so the
// caller knows to reconnect or fall back to polling.
func (r *ruleRepository) WatchProtected(ctx context.Context, protectedID primitive.ObjectID) (<-chan struct{}, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.M{
			"$or": bson.A{
				bson.M{"fullDocument.protected_id": protectedID},
				bson.M{"operationType": "delete"},
			},
		}}},
	}

	stream, err := r.collection.Watch(ctx, pipeline,
		options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		return nil, fmt.Errorf("failed to open rule change stream: %w", err)
	}

	changes := make(chan struct{}, 1)
	go func() {
		defer close(changes)
		defer stream.Close(context.Background())

		for stream.Next(ctx) {
			select {
			case changes <- struct{}{}:
			default:
				// Coalesce bursts; one pending notification is enough.
			}
		}
	}()

	return changes, nil
}

func (r *ruleRepository) invalidateActiveCache(ctx context.Context, protectedID primitive.ObjectID) {
	if r.cache == nil {
		return
	}
	r.cache.Delete(ctx, "active_rules_"+protectedID.Hex())
}
