package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	CollectionUsers  = "users"
	CollectionRules  = "safety_rules"
	CollectionAlerts = "alerts"
	CollectionCodes  = "codes"
)

type MongoDB struct {
	Client   *mongo.Client
	Database *mongo.Database
	Config   *DatabaseConfig
}

type DatabaseConfig struct {
	URI            string
	Database       string
	MaxPoolSize    int
	MinPoolSize    int
	ConnectTimeout time.Duration
	SocketTimeout  time.Duration
	CodeTTL        time.Duration
}

func NewMongoDB(config *DatabaseConfig) (*MongoDB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(config.URI).
		SetMaxPoolSize(uint64(config.MaxPoolSize)).
		SetMinPoolSize(uint64(config.MinPoolSize)).
		SetSocketTimeout(config.SocketTimeout).
		SetConnectTimeout(config.ConnectTimeout)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, err
	}

	err = client.Ping(ctx, readpref.Primary())
	if err != nil {
		return nil, err
	}

	database := client.Database(config.Database)

	return &MongoDB{
		Client:   client,
		Database: database,
		Config:   config,
	}, nil
}

func (m *MongoDB) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return m.Client.Disconnect(ctx)
}

func (m *MongoDB) Collection(name string) *mongo.Collection {
	return m.Database.Collection(name)
}

func (m *MongoDB) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.Client.Ping(ctx, readpref.Primary())
}

// EnsureIndexes creates the indexes the safety domain depends on: rule
// lookups per protected user, alert feeds, a geo index on live locations,
// and the TTL expiry of one-time association codes.
func (m *MongoDB) EnsureIndexes(ctx context.Context) error {
	codeTTL := m.Config.CodeTTL
	if codeTTL <= 0 {
		codeTTL = 5 * time.Minute
	}

	indexes := map[string][]mongo.IndexModel{
		CollectionRules: {
			{Keys: bson.D{{Key: "protected_id", Value: 1}, {Key: "authorized", Value: 1}}},
			{Keys: bson.D{{Key: "monitor_id", Value: 1}}},
		},
		CollectionAlerts: {
			{Keys: bson.D{{Key: "protected_id", Value: 1}, {Key: "timestamp", Value: -1}}},
			{Keys: bson.D{{Key: "resolved", Value: 1}, {Key: "timestamp", Value: -1}}},
		},
		CollectionUsers: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "location", Value: "2dsphere"}}},
		},
		CollectionCodes: {
			{
				Keys:    bson.D{{Key: "created_at", Value: 1}},
				Options: options.Index().SetExpireAfterSeconds(int32(codeTTL.Seconds())),
			},
		},
	}

	for collection, models := range indexes {
		_, err := m.Collection(collection).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("failed to create indexes for %s: %w", collection, err)
		}
	}
	return nil
}
