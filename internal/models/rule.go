package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type RuleType string

const (
	RuleTypeFallDetection RuleType = "FALL_DETECTION"
	RuleTypeCarAccident   RuleType = "CAR_ACCIDENT"
	RuleTypeGeofencing    RuleType = "GEOFENCING"
	RuleTypeSpeedLimit    RuleType = "SPEED_LIMIT"
	RuleTypeInactivity    RuleType = "INACTIVITY"
	RuleTypePanicButton   RuleType = "PANIC_BUTTON"
)

func (t RuleType) Valid() bool {
	switch t {
	case RuleTypeFallDetection, RuleTypeCarAccident, RuleTypeGeofencing,
		RuleTypeSpeedLimit, RuleTypeInactivity, RuleTypePanicButton:
		return true
	}
	return false
}

// SafetyRule is authored by a monitor for one protected user. A rule is never
// evaluated unless the protected user has set Authorized; only the protected
// user may toggle that flag, and Type is immutable after creation.
type SafetyRule struct {
	ID          primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	ProtectedID primitive.ObjectID `json:"protected_id" bson:"protected_id" validate:"required"`
	MonitorID   primitive.ObjectID `json:"monitor_id" bson:"monitor_id" validate:"required"`
	MonitorName string             `json:"monitor_name" bson:"monitor_name"`
	Name        string             `json:"name" bson:"name"`
	Description string             `json:"description" bson:"description"`
	Type        RuleType           `json:"type" bson:"type" validate:"required"`
	Params      map[string]float64 `json:"params" bson:"params"`
	Authorized  bool               `json:"authorized" bson:"authorized"`
	TimeWindows []TimeWindow       `json:"time_windows" bson:"time_windows"`
	CreatedAt   time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at" bson:"updated_at"`
}

// TimeWindow is a recurring same-day activation interval with inclusive
// minute-granularity boundaries. An empty DaysOfWeek matches every day.
// Cross-midnight spans are not supported: a window whose start ordinal is
// greater than its end ordinal matches nothing.
type TimeWindow struct {
	Name       string         `json:"name" bson:"name"`
	DaysOfWeek []time.Weekday `json:"days_of_week" bson:"days_of_week"`
	StartHour  int            `json:"start_hour" bson:"start_hour"`
	StartMin   int            `json:"start_minute" bson:"start_minute"`
	EndHour    int            `json:"end_hour" bson:"end_hour"`
	EndMin     int            `json:"end_minute" bson:"end_minute"`
}

// Contains reports whether t falls inside the window, using t's own location
// as the wall clock.
func (w TimeWindow) Contains(t time.Time) bool {
	if len(w.DaysOfWeek) > 0 {
		match := false
		for _, d := range w.DaysOfWeek {
			if d == t.Weekday() {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}

	now := t.Hour()*60 + t.Minute()
	start := w.StartHour*60 + w.StartMin
	end := w.EndHour*60 + w.EndMin
	return now >= start && now <= end
}
