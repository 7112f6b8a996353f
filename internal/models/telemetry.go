package models

import (
	"time"
)

// GeoPoint is stored as GeoJSON so Mongo 2dsphere indexes apply.
type GeoPoint struct {
	Type        string    `json:"type" bson:"type" default:"Point"`
	Coordinates []float64 `json:"coordinates" bson:"coordinates" validate:"required,len=2"`
}

func NewGeoPoint(lat, lng float64) GeoPoint {
	return GeoPoint{Type: "Point", Coordinates: []float64{lng, lat}}
}

func (p GeoPoint) Latitude() float64 {
	if len(p.Coordinates) >= 2 {
		return p.Coordinates[1]
	}
	return 0
}

func (p GeoPoint) Longitude() float64 {
	if len(p.Coordinates) >= 1 {
		return p.Coordinates[0]
	}
	return 0
}

// LocationFix is one position sample from the protected device.
type LocationFix struct {
	Latitude     float64   `json:"latitude" bson:"latitude" validate:"required"`
	Longitude    float64   `json:"longitude" bson:"longitude" validate:"required"`
	SpeedMS      float64   `json:"speed_ms" bson:"speed_ms"`
	Accuracy     float64   `json:"accuracy" bson:"accuracy"`
	BatteryLevel *float64  `json:"battery_level" bson:"battery_level"`
	Timestamp    time.Time `json:"timestamp" bson:"timestamp"`
}

// SpeedKmh converts the raw m/s reading the device reports.
func (f LocationFix) SpeedKmh() float64 {
	return f.SpeedMS * 3.6
}

// AccelSample is one 3-axis accelerometer reading in m/s².
type AccelSample struct {
	X         float64   `json:"x" bson:"x"`
	Y         float64   `json:"y" bson:"y"`
	Z         float64   `json:"z" bson:"z"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}
