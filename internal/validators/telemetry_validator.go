package validators

import (
	"errors"
	"math"

	"safetysec/internal/models"
)

var (
	ErrInvalidSpeed    = errors.New("speed must not be negative")
	ErrInvalidAccuracy = errors.New("accuracy must not be negative")
	ErrInvalidSample   = errors.New("accelerometer sample out of range")
)

// Device accelerometers saturate far below this; anything larger is a
// deserialization or unit error, not a reading.
const maxAccelMagnitude = 1000.0

// ValidateLocationFix rejects a GPS fix with out-of-range coordinates or
// negative measurements before it reaches the evaluation engine.
func ValidateLocationFix(fix *models.LocationFix) error {
	if err := ValidateLatLng(fix.Latitude, fix.Longitude); err != nil {
		return err
	}
	if fix.SpeedMS < 0 {
		return ErrInvalidSpeed
	}
	if fix.Accuracy < 0 {
		return ErrInvalidAccuracy
	}
	if fix.BatteryLevel != nil && (*fix.BatteryLevel < 0 || *fix.BatteryLevel > 100) {
		return errors.New("battery level must be between 0 and 100")
	}
	return nil
}

// ValidateAccelSample rejects non-finite or absurd accelerometer readings.
func ValidateAccelSample(sample *models.AccelSample) error {
	for _, v := range []float64{sample.X, sample.Y, sample.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) > maxAccelMagnitude {
			return ErrInvalidSample
		}
	}
	return nil
}
