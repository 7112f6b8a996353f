package engine

import (
	"testing"
	"time"

	"safetysec/internal/models"
)

func TestParseRuleGeofence(t *testing.T) {
	t.Parallel()

	p := ParseRule(models.SafetyRule{
		Type:   models.RuleTypeGeofencing,
		Params: map[string]float64{"lat": 40.7, "lng": -74.0, "radius": 250},
	})
	if p.Geofence == nil {
		t.Fatal("geofence params not parsed")
	}
	if p.Geofence.Latitude != 40.7 || p.Geofence.Longitude != -74.0 || p.Geofence.RadiusM != 250 {
		t.Fatalf("unexpected geofence params: %+v", p.Geofence)
	}
}

func TestParseRuleDefaultsOnMissingParams(t *testing.T) {
	t.Parallel()

	geo := ParseRule(models.SafetyRule{Type: models.RuleTypeGeofencing})
	if geo.Geofence.RadiusM != DefaultGeofenceRadiusM {
		t.Fatalf("missing radius: got %v, want default %v", geo.Geofence.RadiusM, DefaultGeofenceRadiusM)
	}

	speed := ParseRule(models.SafetyRule{Type: models.RuleTypeSpeedLimit})
	if speed.SpeedLimit.MaxSpeedKmh != DefaultMaxSpeedKmh {
		t.Fatalf("missing max_speed: got %v, want default %v", speed.SpeedLimit.MaxSpeedKmh, DefaultMaxSpeedKmh)
	}

	inact := ParseRule(models.SafetyRule{Type: models.RuleTypeInactivity})
	if want := time.Duration(DefaultInactivityMinutes) * time.Minute; inact.Inactivity.Duration != want {
		t.Fatalf("missing duration: got %v, want default %v", inact.Inactivity.Duration, want)
	}
}

func TestParseRuleDefaultsOnBadValues(t *testing.T) {
	t.Parallel()

	geo := ParseRule(models.SafetyRule{
		Type:   models.RuleTypeGeofencing,
		Params: map[string]float64{"radius": -5},
	})
	if geo.Geofence.RadiusM != DefaultGeofenceRadiusM {
		t.Fatalf("negative radius not defaulted: got %v", geo.Geofence.RadiusM)
	}

	speed := ParseRule(models.SafetyRule{
		Type:   models.RuleTypeSpeedLimit,
		Params: map[string]float64{"max_speed": 0},
	})
	if speed.SpeedLimit.MaxSpeedKmh != DefaultMaxSpeedKmh {
		t.Fatalf("zero max_speed not defaulted: got %v", speed.SpeedLimit.MaxSpeedKmh)
	}

	inact := ParseRule(models.SafetyRule{
		Type:   models.RuleTypeInactivity,
		Params: map[string]float64{"duration": -1},
	})
	if want := time.Duration(DefaultInactivityMinutes) * time.Minute; inact.Inactivity.Duration != want {
		t.Fatalf("negative duration not defaulted: got %v", inact.Inactivity.Duration)
	}
}

func TestParseRuleParameterlessTypes(t *testing.T) {
	t.Parallel()

	for _, typ := range []models.RuleType{
		models.RuleTypeFallDetection,
		models.RuleTypeCarAccident,
		models.RuleTypePanicButton,
	} {
		p := ParseRule(models.SafetyRule{Type: typ})
		if p.Geofence != nil || p.SpeedLimit != nil || p.Inactivity != nil {
			t.Fatalf("%s parsed typed params", typ)
		}
	}
}

func TestParseRulesPreservesOrder(t *testing.T) {
	t.Parallel()

	rules := []models.SafetyRule{
		{Name: "first", Type: models.RuleTypeSpeedLimit},
		{Name: "second", Type: models.RuleTypeGeofencing},
	}
	parsed := ParseRules(rules)
	if len(parsed) != 2 {
		t.Fatalf("got %d parsed rules, want 2", len(parsed))
	}
	if parsed[0].Rule.Name != "first" || parsed[1].Rule.Name != "second" {
		t.Fatal("snapshot order not preserved")
	}
}
