package engine

import (
	"time"

	"safetysec/internal/models"
)

// Reference defaults applied when a rule arrives with a missing or
// out-of-range parameter. A malformed rule degrades to these values instead
// of being dropped from the evaluation pass.
const (
	DefaultMaxSpeedKmh       = 120.0
	DefaultGeofenceRadiusM   = 100.0
	DefaultInactivityMinutes = 30
)

type GeofenceParams struct {
	Latitude  float64
	Longitude float64
	RadiusM   float64
}

type SpeedLimitParams struct {
	MaxSpeedKmh float64
}

type InactivityParams struct {
	Duration time.Duration
}

// ParsedRule carries a rule snapshot with its loosely-typed parameter map
// resolved once, at load time, into the typed variant for its rule type.
// Exactly one of the pointer fields is set, matching Rule.Type; types without
// parameters (fall, accident, panic) set none.
type ParsedRule struct {
	Rule models.SafetyRule

	Geofence   *GeofenceParams
	SpeedLimit *SpeedLimitParams
	Inactivity *InactivityParams
}

// ParseRule resolves the rule's parameter map. It never fails: unknown types
// parse to a bare ParsedRule and bad values fall back to defaults.
func ParseRule(rule models.SafetyRule) *ParsedRule {
	p := &ParsedRule{Rule: rule}

	switch rule.Type {
	case models.RuleTypeGeofencing:
		g := &GeofenceParams{
			Latitude:  param(rule.Params, "lat", 0),
			Longitude: param(rule.Params, "lng", 0),
			RadiusM:   param(rule.Params, "radius", DefaultGeofenceRadiusM),
		}
		if g.RadiusM <= 0 {
			g.RadiusM = DefaultGeofenceRadiusM
		}
		p.Geofence = g

	case models.RuleTypeSpeedLimit:
		s := &SpeedLimitParams{MaxSpeedKmh: param(rule.Params, "max_speed", DefaultMaxSpeedKmh)}
		if s.MaxSpeedKmh <= 0 {
			s.MaxSpeedKmh = DefaultMaxSpeedKmh
		}
		p.SpeedLimit = s

	case models.RuleTypeInactivity:
		minutes := param(rule.Params, "duration", DefaultInactivityMinutes)
		if minutes <= 0 {
			minutes = DefaultInactivityMinutes
		}
		p.Inactivity = &InactivityParams{Duration: time.Duration(minutes * float64(time.Minute))}
	}

	return p
}

// ParseRules resolves a whole snapshot, preserving order.
func ParseRules(rules []models.SafetyRule) []*ParsedRule {
	parsed := make([]*ParsedRule, 0, len(rules))
	for _, r := range rules {
		parsed = append(parsed, ParseRule(r))
	}
	return parsed
}

func param(params map[string]float64, key string, fallback float64) float64 {
	if params == nil {
		return fallback
	}
	v, ok := params[key]
	if !ok {
		return fallback
	}
	return v
}
