package mongodb

import (
	"context"
	"errors"
	"time"
)

// CacheService is the slice of the redis cache the repositories use. Nil is
// a valid value; every cache path degrades to a plain database read.
type CacheService interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// ErrNotFound is returned when a document does not exist or was soft deleted.
var ErrNotFound = errors.New("not found")

const (
	userCacheTTL  = 15 * time.Minute
	ruleCacheTTL  = 5 * time.Minute
	alertCacheTTL = 5 * time.Minute
)
