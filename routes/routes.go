package routes

import (
	"net/http"

	"safetysec/internal/handlers"
	"safetysec/internal/middleware"
	"safetysec/pkg/logger"
	"safetysec/pkg/websocket"

	"github.com/gin-gonic/gin"
)

// Handlers bundles everything the router needs.
type Handlers struct {
	Users        *handlers.UserHandler
	Telemetry    *handlers.TelemetryHandler
	Rules        *handlers.RuleHandler
	Alerts       *handlers.AlertHandler
	Associations *handlers.AssociationHandler
	WebSocket    *websocket.Handler
}

// SetupRoutes wires middleware and every resource under /api/v1.
func SetupRoutes(router *gin.Engine, h *Handlers, jwtSecret string, log *logger.Logger) {
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.LoggingMiddleware(log))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api/v1")

	SetupUserRoutes(api, h.Users, jwtSecret)
	SetupTelemetryRoutes(api, h.Telemetry, jwtSecret)
	SetupRuleRoutes(api, h.Rules, jwtSecret)
	SetupAlertRoutes(api, h.Alerts, jwtSecret)
	SetupAssociationRoutes(api, h.Associations, jwtSecret)

	if h.WebSocket != nil {
		api.GET("/ws", middleware.AuthRequired(jwtSecret), h.WebSocket.HandleWebSocket)
	}
}
