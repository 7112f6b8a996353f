package validators

import (
	"errors"
	"fmt"

	"safetysec/internal/models"
)

var ErrMissingGeofenceCenter = errors.New("geofence rules require lat and lng parameters")

// ValidateRuleParams checks the loosely-typed parameter map against the rule
// type before it is stored. The engine degrades bad values to defaults at
// evaluation time; this catches author mistakes at the API boundary instead.
func ValidateRuleParams(ruleType models.RuleType, params map[string]float64) error {
	switch ruleType {
	case models.RuleTypeGeofencing:
		lat, hasLat := params["lat"]
		lng, hasLng := params["lng"]
		if !hasLat || !hasLng {
			return ErrMissingGeofenceCenter
		}
		if err := ValidateLatLng(lat, lng); err != nil {
			return err
		}
		if radius, ok := params["radius"]; ok && radius <= 0 {
			return fmt.Errorf("geofence radius must be positive, got %v", radius)
		}

	case models.RuleTypeSpeedLimit:
		if maxSpeed, ok := params["max_speed"]; ok && maxSpeed <= 0 {
			return fmt.Errorf("max_speed must be positive, got %v", maxSpeed)
		}

	case models.RuleTypeInactivity:
		if duration, ok := params["duration"]; ok && duration <= 0 {
			return fmt.Errorf("inactivity duration must be positive, got %v", duration)
		}
	}

	return nil
}
