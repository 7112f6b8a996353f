package handlers

import (
	"net/http"

	"safetysec/internal/middleware"
	"safetysec/internal/services"
	"safetysec/internal/utils"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type AlertHandler struct {
	alerts services.AlertService
}

func NewAlertHandler(alerts services.AlertService) *AlertHandler {
	return &AlertHandler{
		alerts: alerts,
	}
}

func (h *AlertHandler) GetAlert(c *gin.Context) {
	alertID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid alert ID", nil)
		return
	}

	alert, err := h.alerts.GetAlert(c.Request.Context(), alertID)
	if err != nil {
		utils.NotFoundResponse(c, "Alert not found")
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "", alert)
}

type resolveRequest struct {
	Notes string `json:"notes"`
}

// ResolveAlert closes an alert. Resolving twice keeps the first resolver.
func (h *AlertHandler) ResolveAlert(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	alertID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid alert ID", nil)
		return
	}

	var request resolveRequest
	if err := c.ShouldBindJSON(&request); err != nil && c.Request.ContentLength > 0 {
		utils.BadRequestResponse(c, "Invalid resolve request", err.Error())
		return
	}

	alert, err := h.alerts.ResolveAlert(c.Request.Context(), alertID, userID, request.Notes)
	if err != nil {
		utils.ForbiddenResponse(c, "Failed to resolve alert: "+err.Error())
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Alert resolved", alert)
}

// ListByProtected returns a protected user's alert history. Accessible to
// the user themselves; monitors use the dashboard endpoint.
func (h *AlertHandler) ListByProtected(c *gin.Context) {
	protectedID, err := primitive.ObjectIDFromHex(c.Param("protected_id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid protected user ID", nil)
		return
	}

	params := utils.GetPaginationParams(c)
	alerts, total, err := h.alerts.ListByProtected(c.Request.Context(), protectedID, &params)
	if err != nil {
		utils.InternalServerErrorResponse(c, "Failed to list alerts", err.Error())
		return
	}

	utils.SuccessResponseWithMeta(c, http.StatusOK, "", alerts, utils.CreatePaginationMeta(params, total))
}

// Dashboard returns every unresolved alert across the users the caller
// monitors, newest first.
func (h *AlertHandler) Dashboard(c *gin.Context) {
	monitorID, ok := middleware.CurrentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	alerts, err := h.alerts.ListUnresolvedForMonitor(c.Request.Context(), monitorID)
	if err != nil {
		utils.InternalServerErrorResponse(c, "Failed to load dashboard", err.Error())
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "", alerts)
}
