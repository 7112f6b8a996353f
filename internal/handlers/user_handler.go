package handlers

import (
	"net/http"

	"safetysec/internal/middleware"
	"safetysec/internal/models"
	"safetysec/internal/services"
	"safetysec/internal/utils"

	"github.com/gin-gonic/gin"
)

type UserHandler struct {
	users services.UserService
}

func NewUserHandler(users services.UserService) *UserHandler {
	return &UserHandler{
		users: users,
	}
}

func (h *UserHandler) Register(c *gin.Context) {
	var request services.RegisterRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid registration", err.Error())
		return
	}

	user, token, err := h.users.Register(c.Request.Context(), &request)
	if err != nil {
		utils.BadRequestResponse(c, "Registration failed", err.Error())
		return
	}

	utils.SuccessResponse(c, http.StatusCreated, "Registered", gin.H{
		"user":  user,
		"token": token,
	})
}

func (h *UserHandler) GetMe(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	user, err := h.users.GetUser(c.Request.Context(), userID)
	if err != nil {
		utils.NotFoundResponse(c, "User not found")
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "", user)
}

func (h *UserHandler) UpdateProfile(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	var updates services.ProfileUpdate
	if err := c.ShouldBindJSON(&updates); err != nil {
		utils.BadRequestResponse(c, "Invalid profile update", err.Error())
		return
	}

	user, err := h.users.UpdateProfile(c.Request.Context(), userID, &updates)
	if err != nil {
		utils.InternalServerErrorResponse(c, "Failed to update profile", err.Error())
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Profile updated", user)
}

type cancellationCodeRequest struct {
	Code string `json:"code" binding:"required"`
}

func (h *UserHandler) SetCancellationCode(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	var request cancellationCodeRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid cancellation code", err.Error())
		return
	}

	if err := h.users.SetCancellationCode(c.Request.Context(), userID, request.Code); err != nil {
		utils.BadRequestResponse(c, "Failed to set cancellation code", err.Error())
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Cancellation code updated", nil)
}

func (h *UserHandler) RegisterDevice(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	var token models.DeviceToken
	if err := c.ShouldBindJSON(&token); err != nil {
		utils.BadRequestResponse(c, "Invalid device token", err.Error())
		return
	}

	if err := h.users.RegisterDevice(c.Request.Context(), userID, token); err != nil {
		utils.InternalServerErrorResponse(c, "Failed to register device", err.Error())
		return
	}

	utils.SuccessResponse(c, http.StatusCreated, "Device registered", nil)
}

func (h *UserHandler) RemoveDevice(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	token := c.Param("token")
	if err := h.users.RemoveDevice(c.Request.Context(), userID, token); err != nil {
		utils.InternalServerErrorResponse(c, "Failed to remove device", err.Error())
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Device removed", nil)
}

// ListMonitors returns who is watching over the calling user.
func (h *UserHandler) ListMonitors(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	monitors, err := h.users.GetMonitors(c.Request.Context(), userID)
	if err != nil {
		utils.InternalServerErrorResponse(c, "Failed to list monitors", err.Error())
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "", monitors)
}

// ListProtecteds returns the users the caller watches over.
func (h *UserHandler) ListProtecteds(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	protecteds, err := h.users.GetProtecteds(c.Request.Context(), userID)
	if err != nil {
		utils.InternalServerErrorResponse(c, "Failed to list protected users", err.Error())
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "", protecteds)
}
