package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Alert is the durable record of one emergency event. It is created before
// any evidence exists so monitors are notified with minimal delay; VideoURL
// is attached asynchronously once the evidence upload finishes.
type Alert struct {
	ID            primitive.ObjectID  `json:"id" bson:"_id,omitempty"`
	ProtectedID   primitive.ObjectID  `json:"protected_id" bson:"protected_id" validate:"required"`
	ProtectedName string              `json:"protected_name" bson:"protected_name"`
	Type          RuleType            `json:"type" bson:"type" validate:"required"`
	RuleID        *primitive.ObjectID `json:"rule_id" bson:"rule_id"`
	Location      *GeoPoint           `json:"location" bson:"location"`
	Address       string              `json:"address" bson:"address"`
	SpeedKmh      *float64            `json:"speed_kmh" bson:"speed_kmh"`
	BatteryLevel  *float64            `json:"battery_level" bson:"battery_level"`
	VideoURL      *string             `json:"video_url" bson:"video_url"`
	Resolved      bool                `json:"resolved" bson:"resolved"`
	ResolvedBy    *primitive.ObjectID `json:"resolved_by" bson:"resolved_by"`
	ResolvedAt    *time.Time          `json:"resolved_at" bson:"resolved_at"`
	Notes         string              `json:"notes" bson:"notes"`
	Timestamp     time.Time           `json:"timestamp" bson:"timestamp"`
	UpdatedAt     time.Time           `json:"updated_at" bson:"updated_at"`
}
