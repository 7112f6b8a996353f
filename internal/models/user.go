package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type DevicePlatform string

const (
	PlatformAndroid DevicePlatform = "android"
	PlatformIOS     DevicePlatform = "ios"
)

type DeviceToken struct {
	Token    string         `json:"token" bson:"token"`
	Platform DevicePlatform `json:"platform" bson:"platform"`
}

// User holds both roles: a user may monitor others and be protected at the
// same time. Monitors and Protecteds are maintained pairwise by the
// association ledger's one-time code redemption.
type User struct {
	ID               primitive.ObjectID   `json:"id" bson:"_id,omitempty"`
	Name             string               `json:"name" bson:"name" validate:"required"`
	Email            string               `json:"email" bson:"email" validate:"required,email"`
	Phone            string               `json:"phone" bson:"phone"`
	IsProtected      bool                 `json:"protected" bson:"protected"`
	Monitors         []primitive.ObjectID `json:"monitors" bson:"monitors"`
	Protecteds       []primitive.ObjectID `json:"protecteds" bson:"protecteds"`
	CancellationCode string               `json:"-" bson:"cancellation_code"`
	Location         *GeoPoint            `json:"location" bson:"location"`
	LocationUpdated  *time.Time           `json:"location_updated" bson:"location_updated"`
	BatteryLevel     *float64             `json:"battery_level" bson:"battery_level"`
	DeviceTokens     []DeviceToken        `json:"-" bson:"device_tokens"`
	CreatedAt        time.Time            `json:"created_at" bson:"created_at"`
	UpdatedAt        time.Time            `json:"updated_at" bson:"updated_at"`
}
