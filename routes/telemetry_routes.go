package routes

import (
	"safetysec/internal/handlers"
	"safetysec/internal/middleware"

	"github.com/gin-gonic/gin"
)

// SetupTelemetryRoutes registers the protected-device ingestion surface.
func SetupTelemetryRoutes(r *gin.RouterGroup, telemetryHandler *handlers.TelemetryHandler, jwtSecret string) {
	monitoring := r.Group("/monitoring")
	monitoring.Use(middleware.AuthRequired(jwtSecret))
	{
		monitoring.POST("/session", telemetryHandler.StartSession)
		monitoring.DELETE("/session", telemetryHandler.StopSession)

		monitoring.POST("/fixes", telemetryHandler.PostFix)
		monitoring.POST("/accel", telemetryHandler.PostAccel)

		monitoring.POST("/panic", telemetryHandler.Panic)
		monitoring.POST("/cancel", telemetryHandler.CancelWorkflow)
		monitoring.GET("/workflow", telemetryHandler.WorkflowStatus)
	}
}
