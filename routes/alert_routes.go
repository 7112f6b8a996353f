package routes

import (
	"safetysec/internal/handlers"
	"safetysec/internal/middleware"

	"github.com/gin-gonic/gin"
)

func SetupAlertRoutes(r *gin.RouterGroup, alertHandler *handlers.AlertHandler, jwtSecret string) {
	alerts := r.Group("/alerts")
	alerts.Use(middleware.AuthRequired(jwtSecret))
	{
		alerts.GET("/dashboard", alertHandler.Dashboard)
		alerts.GET("/protected/:protected_id", alertHandler.ListByProtected)
		alerts.GET("/:id", alertHandler.GetAlert)
		alerts.PUT("/:id/resolve", alertHandler.ResolveAlert)
	}
}
