package utils

import "time"

// Application Constants
const (
	AppName    = "SafetySec"
	AppVersion = "1.0.0"

	// Response statuses
	StatusSuccess = "success"
	StatusError   = "error"

	// Common error messages
	ErrValidationFailed = "Validation failed"
	ErrInternalServer   = "Internal server error"
	ErrNotFound         = "Resource not found"
	ErrUnauthorized     = "Unauthorized"

	// Pagination
	DefaultPageSize = 20
	MaxPageSize     = 100
	MinPageSize     = 1

	// Geo
	EarthRadiusKM = 6371.0

	// Association codes
	AssociationCodeLength = 6
	AssociationCodeTTL    = 5 * time.Minute

	// Telemetry
	LocationUpdateInterval = 1500 * time.Millisecond
)
