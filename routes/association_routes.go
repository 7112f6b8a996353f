package routes

import (
	"safetysec/internal/handlers"
	"safetysec/internal/middleware"

	"github.com/gin-gonic/gin"
)

func SetupAssociationRoutes(r *gin.RouterGroup, associationHandler *handlers.AssociationHandler, jwtSecret string) {
	associations := r.Group("/associations")
	associations.Use(middleware.AuthRequired(jwtSecret))
	{
		associations.POST("/code", associationHandler.GenerateCode)
		associations.POST("/redeem", associationHandler.RedeemCode)
		associations.DELETE("/:user_id", associationHandler.Unlink)
	}
}
