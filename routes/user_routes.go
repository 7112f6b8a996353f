package routes

import (
	"safetysec/internal/handlers"
	"safetysec/internal/middleware"

	"github.com/gin-gonic/gin"
)

func SetupUserRoutes(r *gin.RouterGroup, userHandler *handlers.UserHandler, jwtSecret string) {
	// Registration is the only unauthenticated endpoint.
	r.POST("/users/register", userHandler.Register)

	users := r.Group("/users")
	users.Use(middleware.AuthRequired(jwtSecret))
	{
		users.GET("/me", userHandler.GetMe)
		users.PUT("/me", userHandler.UpdateProfile)
		users.PUT("/me/cancellation-code", userHandler.SetCancellationCode)

		users.POST("/me/devices", userHandler.RegisterDevice)
		users.DELETE("/me/devices/:token", userHandler.RemoveDevice)

		users.GET("/me/monitors", userHandler.ListMonitors)
		users.GET("/me/protecteds", userHandler.ListProtecteds)
	}
}
