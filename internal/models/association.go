package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AssociationCode is a one-time six-digit code generated by a monitor and
// redeemed by a protected user to link the two accounts. Codes expire five
// minutes after creation and are deleted on redemption.
type AssociationCode struct {
	Code      string             `json:"code" bson:"_id"`
	MonitorID primitive.ObjectID `json:"monitor_id" bson:"monitor_id" validate:"required"`
	CreatedAt time.Time          `json:"created_at" bson:"created_at"`
}

func (c AssociationCode) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(c.CreatedAt) > ttl
}
