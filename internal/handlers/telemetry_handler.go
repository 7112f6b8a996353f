package handlers

import (
	"errors"
	"net/http"

	"safetysec/internal/middleware"
	"safetysec/internal/models"
	"safetysec/internal/services"
	"safetysec/internal/utils"
	"safetysec/internal/validators"

	"github.com/gin-gonic/gin"
)

// TelemetryHandler is the ingestion surface for the protected device: session
// lifecycle, location fixes, accelerometer samples, panic button and
// countdown cancellation.
type TelemetryHandler struct {
	monitoring services.MonitoringService
}

func NewTelemetryHandler(monitoring services.MonitoringService) *TelemetryHandler {
	return &TelemetryHandler{
		monitoring: monitoring,
	}
}

// StartSession boots the rule evaluation engine for the calling user.
func (h *TelemetryHandler) StartSession(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	err := h.monitoring.StartSession(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, services.ErrSessionExists) {
			utils.ConflictResponse(c, "Monitoring session already running", nil)
			return
		}
		utils.InternalServerErrorResponse(c, "Failed to start monitoring session", err.Error())
		return
	}

	utils.SuccessResponse(c, http.StatusCreated, "Monitoring session started", nil)
}

func (h *TelemetryHandler) StopSession(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	if err := h.monitoring.StopSession(userID); err != nil {
		if errors.Is(err, services.ErrNoSession) {
			utils.NotFoundResponse(c, "No monitoring session for this user")
			return
		}
		utils.InternalServerErrorResponse(c, "Failed to stop monitoring session", err.Error())
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Monitoring session stopped", nil)
}

// PostFix ingests one GPS fix.
func (h *TelemetryHandler) PostFix(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	var fix models.LocationFix
	if err := c.ShouldBindJSON(&fix); err != nil {
		utils.BadRequestResponse(c, "Invalid location fix", err.Error())
		return
	}
	if err := validators.ValidateLocationFix(&fix); err != nil {
		utils.BadRequestResponse(c, "Invalid location fix", err.Error())
		return
	}

	if err := h.monitoring.IngestFix(c.Request.Context(), userID, fix); err != nil {
		if errors.Is(err, services.ErrNoSession) {
			utils.NotFoundResponse(c, "No monitoring session for this user")
			return
		}
		utils.InternalServerErrorResponse(c, "Failed to ingest location fix", err.Error())
		return
	}

	utils.SuccessResponse(c, http.StatusAccepted, "Fix accepted", nil)
}

// PostAccel ingests one accelerometer sample.
func (h *TelemetryHandler) PostAccel(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	var sample models.AccelSample
	if err := c.ShouldBindJSON(&sample); err != nil {
		utils.BadRequestResponse(c, "Invalid accelerometer sample", err.Error())
		return
	}
	if err := validators.ValidateAccelSample(&sample); err != nil {
		utils.BadRequestResponse(c, "Invalid accelerometer sample", err.Error())
		return
	}

	if err := h.monitoring.IngestAccel(c.Request.Context(), userID, sample); err != nil {
		if errors.Is(err, services.ErrNoSession) {
			utils.NotFoundResponse(c, "No monitoring session for this user")
			return
		}
		utils.InternalServerErrorResponse(c, "Failed to ingest accelerometer sample", err.Error())
		return
	}

	utils.SuccessResponse(c, http.StatusAccepted, "Sample accepted", nil)
}

// Panic starts the alert workflow immediately, skipping rule evaluation.
func (h *TelemetryHandler) Panic(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	if err := h.monitoring.TriggerPanic(c.Request.Context(), userID); err != nil {
		if errors.Is(err, services.ErrNoSession) {
			utils.NotFoundResponse(c, "No monitoring session for this user")
			return
		}
		utils.InternalServerErrorResponse(c, "Failed to trigger panic", err.Error())
		return
	}

	utils.SuccessResponse(c, http.StatusAccepted, "Panic triggered", nil)
}

type cancelRequest struct {
	Code string `json:"code" binding:"required"`
}

// CancelWorkflow aborts a running alert countdown with the user's secret
// code. A wrong code returns 403 and the countdown keeps running.
func (h *TelemetryHandler) CancelWorkflow(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	var request cancelRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid cancel request", err.Error())
		return
	}

	cancelled, err := h.monitoring.CancelWorkflow(userID, request.Code)
	if err != nil {
		if errors.Is(err, services.ErrNoSession) || errors.Is(err, services.ErrNoWorkflow) {
			utils.NotFoundResponse(c, "No alert workflow in progress")
			return
		}
		utils.InternalServerErrorResponse(c, "Failed to cancel workflow", err.Error())
		return
	}
	if !cancelled {
		utils.ForbiddenResponse(c, "Cancellation rejected")
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Alert cancelled", nil)
}

// WorkflowStatus reports the current alert workflow state, if any.
func (h *TelemetryHandler) WorkflowStatus(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	state, err := h.monitoring.WorkflowState(userID)
	if err != nil {
		if errors.Is(err, services.ErrNoSession) || errors.Is(err, services.ErrNoWorkflow) {
			utils.SuccessResponse(c, http.StatusOK, "", gin.H{"active": false})
			return
		}
		utils.InternalServerErrorResponse(c, "Failed to read workflow state", err.Error())
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "", gin.H{
		"active": true,
		"state":  state,
	})
}
