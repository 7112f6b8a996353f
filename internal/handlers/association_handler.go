package handlers

import (
	"errors"
	"net/http"

	"safetysec/internal/middleware"
	"safetysec/internal/repositories/mongodb"
	"safetysec/internal/services"
	"safetysec/internal/utils"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type AssociationHandler struct {
	associations services.AssociationService
}

func NewAssociationHandler(associations services.AssociationService) *AssociationHandler {
	return &AssociationHandler{
		associations: associations,
	}
}

// GenerateCode issues a one-time pairing code for the calling monitor.
func (h *AssociationHandler) GenerateCode(c *gin.Context) {
	monitorID, ok := middleware.CurrentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	code, err := h.associations.GenerateCode(c.Request.Context(), monitorID)
	if err != nil {
		utils.InternalServerErrorResponse(c, "Failed to generate association code", err.Error())
		return
	}

	utils.SuccessResponse(c, http.StatusCreated, "Association code generated", gin.H{
		"code":       code.Code,
		"created_at": code.CreatedAt,
	})
}

type redeemRequest struct {
	Code string `json:"code" binding:"required"`
}

// RedeemCode pairs the calling (protected) user with the code's issuer.
func (h *AssociationHandler) RedeemCode(c *gin.Context) {
	protectedID, ok := middleware.CurrentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	var request redeemRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid redeem request", err.Error())
		return
	}

	monitor, err := h.associations.Redeem(c.Request.Context(), request.Code, protectedID)
	if err != nil {
		switch {
		case errors.Is(err, mongodb.ErrNotFound):
			utils.NotFoundResponse(c, "Association code not found")
		case errors.Is(err, mongodb.ErrCodeExpired):
			utils.ErrorResponse(c, http.StatusGone, "Association code expired", nil)
		case errors.Is(err, mongodb.ErrSelfPairing):
			utils.BadRequestResponse(c, "You cannot pair with yourself", nil)
		default:
			utils.InternalServerErrorResponse(c, "Failed to redeem association code", err.Error())
		}
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Association established", gin.H{
		"monitor_id":   monitor.ID.Hex(),
		"monitor_name": monitor.Name,
	})
}

// Unlink removes an association between the caller and the given user, in
// either direction.
func (h *AssociationHandler) Unlink(c *gin.Context) {
	callerID, ok := middleware.CurrentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	otherID, err := primitive.ObjectIDFromHex(c.Param("user_id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid user ID", nil)
		return
	}

	role := c.DefaultQuery("role", "monitor")
	var unlinkErr error
	if role == "protected" {
		unlinkErr = h.associations.Unlink(c.Request.Context(), otherID, callerID)
	} else {
		unlinkErr = h.associations.Unlink(c.Request.Context(), callerID, otherID)
	}
	if unlinkErr != nil {
		utils.InternalServerErrorResponse(c, "Failed to remove association", unlinkErr.Error())
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Association removed", nil)
}
