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
)

type userRepository struct {
	collection *mongo.Collection
	cache      CacheService
}

func NewUserRepository(db *mongo.Database, cache CacheService) interfaces.UserRepository {
	return &userRepository{
		collection: db.Collection(database.CollectionUsers),
		cache:      cache,
	}
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	user.ID = primitive.NewObjectID()
	user.CreatedAt = time.Now()
	user.UpdatedAt = time.Now()
	if user.Monitors == nil {
		user.Monitors = []primitive.ObjectID{}
	}
	if user.Protecteds == nil {
		user.Protecteds = []primitive.ObjectID{}
	}

	_, err := r.collection.InsertOne(ctx, user)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	r.cacheUser(ctx, user)
	return nil
}

func (r *userRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	if user := r.getUserFromCache(ctx, id.Hex()); user != nil {
		return user, nil
	}

	var user models.User
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("user %s: %w", id.Hex(), ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	r.cacheUser(ctx, &user)
	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.collection.FindOne(ctx, bson.M{"email": email}).Decode(&user)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("user with email %s: %w", email, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return &user, nil
}

func (r *userRepository) Update(ctx context.Context, id primitive.ObjectID, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now()

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": updates})
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("user %s: %w", id.Hex(), ErrNotFound)
	}

	r.invalidateUserCache(ctx, id.Hex())
	return nil
}

func (r *userRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	r.invalidateUserCache(ctx, id.Hex())
	return nil
}

// UpdateLocation writes the latest fix without touching the cache TTL churn
// of a full update. Location updates arrive every couple of seconds, so this
// path stays lean.
func (r *userRepository) UpdateLocation(ctx context.Context, id primitive.ObjectID, location *models.GeoPoint, batteryLevel *float64, at time.Time) error {
	updates := bson.M{
		"location":         location,
		"location_updated": at,
		"updated_at":       time.Now(),
	}
	if batteryLevel != nil {
		updates["battery_level"] = *batteryLevel
	}

	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": updates})
	if err != nil {
		return fmt.Errorf("failed to update location: %w", err)
	}

	r.invalidateUserCache(ctx, id.Hex())
	return nil
}

func (r *userRepository) GetMonitors(ctx context.Context, protectedID primitive.ObjectID) ([]*models.User, error) {
	user, err := r.GetByID(ctx, protectedID)
	if err != nil {
		return nil, err
	}
	return r.getByIDs(ctx, user.Monitors)
}

func (r *userRepository) GetProtecteds(ctx context.Context, monitorID primitive.ObjectID) ([]*models.User, error) {
	user, err := r.GetByID(ctx, monitorID)
	if err != nil {
		return nil, err
	}
	return r.getByIDs(ctx, user.Protecteds)
}

func (r *userRepository) getByIDs(ctx context.Context, ids []primitive.ObjectID) ([]*models.User, error) {
	if len(ids) == 0 {
		return []*models.User{}, nil
	}

	cursor, err := r.collection.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("failed to get users: %w", err)
	}
	defer cursor.Close(ctx)

	var users []*models.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}
	return users, nil
}

func (r *userRepository) AddDeviceToken(ctx context.Context, id primitive.ObjectID, token models.DeviceToken) error {
	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$addToSet": bson.M{"device_tokens": token},
		"$set":      bson.M{"updated_at": time.Now()},
	})
	if err != nil {
		return fmt.Errorf("failed to add device token: %w", err)
	}

	r.invalidateUserCache(ctx, id.Hex())
	return nil
}

func (r *userRepository) RemoveDeviceToken(ctx context.Context, id primitive.ObjectID, token string) error {
	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$pull": bson.M{"device_tokens": bson.M{"token": token}},
		"$set":  bson.M{"updated_at": time.Now()},
	})
	if err != nil {
		return fmt.Errorf("failed to remove device token: %w", err)
	}

	r.invalidateUserCache(ctx, id.Hex())
	return nil
}

func (r *userRepository) List(ctx context.Context, params *utils.PaginationParams) ([]*models.User, int64, error) {
	filter := bson.M{}

	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	cursor, err := r.collection.Find(ctx, filter, params.FindOptions())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	defer cursor.Close(ctx)

	var users []*models.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, 0, fmt.Errorf("failed to decode users: %w", err)
	}
	return users, total, nil
}

func (r *userRepository) cacheUser(ctx context.Context, user *models.User) {
	if r.cache == nil {
		return
	}
	r.cache.Set(ctx, "user_"+user.ID.Hex(), user, userCacheTTL)
}

func (r *userRepository) getUserFromCache(ctx context.Context, id string) *models.User {
	if r.cache == nil {
		return nil
	}
	var user models.User
	if err := r.cache.Get(ctx, "user_"+id, &user); err != nil {
		return nil
	}
	return &user
}

func (r *userRepository) invalidateUserCache(ctx context.Context, id string) {
	if r.cache == nil {
		return
	}
	r.cache.Delete(ctx, "user_"+id)
}
