package validators

import (
	"errors"
	"math"
	"testing"

	"safetysec/internal/models"
)

func TestValidatePhoneNumber(t *testing.T) {
	t.Parallel()

	if err := ValidatePhoneNumber("+14155550123"); err != nil {
		t.Fatalf("valid E.164 number rejected: %v", err)
	}
	if err := ValidatePhoneNumber(""); err != nil {
		t.Fatalf("empty phone rejected: %v", err)
	}
	for _, phone := range []string{"4155550123", "+0415", "not-a-phone"} {
		if err := ValidatePhoneNumber(phone); !errors.Is(err, ErrInvalidPhoneNumber) {
			t.Fatalf("phone %q: got %v, want ErrInvalidPhoneNumber", phone, err)
		}
	}
}

func TestValidateCancellationCode(t *testing.T) {
	t.Parallel()

	if err := ValidateCancellationCode("1234"); err != nil {
		t.Fatalf("four-character code rejected: %v", err)
	}
	if err := ValidateCancellationCode("123"); !errors.Is(err, ErrWeakCode) {
		t.Fatalf("got %v, want ErrWeakCode", err)
	}
}

func TestValidateLocationFix(t *testing.T) {
	t.Parallel()

	good := &models.LocationFix{Latitude: 40.7, Longitude: -74.0, SpeedMS: 2}
	if err := ValidateLocationFix(good); err != nil {
		t.Fatalf("valid fix rejected: %v", err)
	}

	if err := ValidateLocationFix(&models.LocationFix{Latitude: 91}); !errors.Is(err, ErrInvalidCoordinates) {
		t.Fatalf("got %v, want ErrInvalidCoordinates", err)
	}
	if err := ValidateLocationFix(&models.LocationFix{Longitude: 181}); !errors.Is(err, ErrInvalidCoordinates) {
		t.Fatalf("got %v, want ErrInvalidCoordinates", err)
	}
	if err := ValidateLocationFix(&models.LocationFix{SpeedMS: -1}); !errors.Is(err, ErrInvalidSpeed) {
		t.Fatalf("got %v, want ErrInvalidSpeed", err)
	}

	battery := 150.0
	if err := ValidateLocationFix(&models.LocationFix{BatteryLevel: &battery}); err == nil {
		t.Fatal("battery level over 100 accepted")
	}
}

func TestValidateAccelSample(t *testing.T) {
	t.Parallel()

	if err := ValidateAccelSample(&models.AccelSample{X: 1, Y: 2, Z: 9.8}); err != nil {
		t.Fatalf("valid sample rejected: %v", err)
	}
	for _, sample := range []models.AccelSample{
		{X: math.NaN()},
		{Y: math.Inf(1)},
		{Z: 5000},
	} {
		if err := ValidateAccelSample(&sample); !errors.Is(err, ErrInvalidSample) {
			t.Fatalf("got %v, want ErrInvalidSample", err)
		}
	}
}

func TestValidateRuleParams(t *testing.T) {
	t.Parallel()

	err := ValidateRuleParams(models.RuleTypeGeofencing, map[string]float64{"lat": 40, "lng": -74, "radius": 100})
	if err != nil {
		t.Fatalf("valid geofence params rejected: %v", err)
	}

	err = ValidateRuleParams(models.RuleTypeGeofencing, map[string]float64{"radius": 100})
	if !errors.Is(err, ErrMissingGeofenceCenter) {
		t.Fatalf("got %v, want ErrMissingGeofenceCenter", err)
	}

	err = ValidateRuleParams(models.RuleTypeGeofencing, map[string]float64{"lat": 40, "lng": -74, "radius": -1})
	if err == nil {
		t.Fatal("negative radius accepted")
	}

	if err := ValidateRuleParams(models.RuleTypeSpeedLimit, map[string]float64{"max_speed": -5}); err == nil {
		t.Fatal("negative max_speed accepted")
	}
	if err := ValidateRuleParams(models.RuleTypeSpeedLimit, nil); err != nil {
		t.Fatalf("missing max_speed rejected, the engine defaults it: %v", err)
	}

	if err := ValidateRuleParams(models.RuleTypeInactivity, map[string]float64{"duration": 0}); err == nil {
		t.Fatal("zero duration accepted")
	}

	// Parameterless types take anything.
	if err := ValidateRuleParams(models.RuleTypeFallDetection, map[string]float64{"whatever": 1}); err != nil {
		t.Fatalf("fall detection params rejected: %v", err)
	}
}

func TestValidateStructCustomTags(t *testing.T) {
	t.Parallel()

	type request struct {
		ID    string `validate:"required,object_id"`
		Phone string `validate:"phone_number"`
	}

	errs := ValidateStruct(request{ID: "652d1e9f8b3a4c0001a2b3c4", Phone: "+14155550123"})
	if len(errs) != 0 {
		t.Fatalf("valid struct rejected: %v", errs)
	}

	errs = ValidateStruct(request{ID: "nope", Phone: "bad"})
	if len(errs) != 2 {
		t.Fatalf("got %d validation errors, want 2: %v", len(errs), errs)
	}
}
