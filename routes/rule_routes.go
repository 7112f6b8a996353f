package routes

import (
	"safetysec/internal/handlers"
	"safetysec/internal/middleware"

	"github.com/gin-gonic/gin"
)

func SetupRuleRoutes(r *gin.RouterGroup, ruleHandler *handlers.RuleHandler, jwtSecret string) {
	rules := r.Group("/rules")
	rules.Use(middleware.AuthRequired(jwtSecret))
	{
		rules.POST("/", ruleHandler.CreateRule)
		rules.GET("/mine", ruleHandler.ListMyRules)
		rules.GET("/authored", ruleHandler.ListAuthoredRules)
		rules.GET("/:id", ruleHandler.GetRule)
		rules.PUT("/:id", ruleHandler.UpdateRule)
		rules.DELETE("/:id", ruleHandler.DeleteRule)
		rules.PUT("/:id/authorize", ruleHandler.AuthorizeRule)
	}
}
