package handlers

import (
	"errors"
	"net/http"

	"safetysec/internal/middleware"
	"safetysec/internal/models"
	"safetysec/internal/services"
	"safetysec/internal/utils"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type RuleHandler struct {
	rules services.RuleService
}

func NewRuleHandler(rules services.RuleService) *RuleHandler {
	return &RuleHandler{
		rules: rules,
	}
}

type createRuleRequest struct {
	ProtectedID string              `json:"protected_id" binding:"required"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Type        models.RuleType     `json:"type" binding:"required"`
	Params      map[string]float64  `json:"params"`
	TimeWindows []models.TimeWindow `json:"time_windows"`
}

// CreateRule lets a monitor author a rule for someone they watch over. The
// rule stays inert until the protected user authorizes it.
func (h *RuleHandler) CreateRule(c *gin.Context) {
	monitorID, ok := middleware.CurrentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	var request createRuleRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid rule", err.Error())
		return
	}

	protectedID, err := primitive.ObjectIDFromHex(request.ProtectedID)
	if err != nil {
		utils.BadRequestResponse(c, "Invalid protected user ID", nil)
		return
	}

	rule := &models.SafetyRule{
		ProtectedID: protectedID,
		MonitorID:   monitorID,
		Name:        request.Name,
		Description: request.Description,
		Type:        request.Type,
		Params:      request.Params,
		TimeWindows: request.TimeWindows,
	}

	if err := h.rules.CreateRule(c.Request.Context(), rule); err != nil {
		if errors.Is(err, services.ErrNotAssociated) {
			utils.ForbiddenResponse(c, "You are not associated with this user")
			return
		}
		utils.BadRequestResponse(c, "Failed to create rule", err.Error())
		return
	}

	utils.SuccessResponse(c, http.StatusCreated, "Rule created", rule)
}

func (h *RuleHandler) GetRule(c *gin.Context) {
	ruleID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid rule ID", nil)
		return
	}

	rule, err := h.rules.GetRule(c.Request.Context(), ruleID)
	if err != nil {
		utils.NotFoundResponse(c, "Rule not found")
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "", rule)
}

// UpdateRule applies monitor edits; the rule type is immutable.
func (h *RuleHandler) UpdateRule(c *gin.Context) {
	actorID, ok := middleware.CurrentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	ruleID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid rule ID", nil)
		return
	}

	var updates services.RuleUpdate
	if err := c.ShouldBindJSON(&updates); err != nil {
		utils.BadRequestResponse(c, "Invalid rule update", err.Error())
		return
	}

	rule, err := h.rules.UpdateRule(c.Request.Context(), ruleID, actorID, &updates)
	if err != nil {
		if errors.Is(err, services.ErrNotRuleOwner) {
			utils.ForbiddenResponse(c, "Only the rule's monitor can edit it")
			return
		}
		utils.BadRequestResponse(c, "Failed to update rule", err.Error())
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Rule updated", rule)
}

func (h *RuleHandler) DeleteRule(c *gin.Context) {
	actorID, ok := middleware.CurrentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	ruleID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid rule ID", nil)
		return
	}

	if err := h.rules.DeleteRule(c.Request.Context(), ruleID, actorID); err != nil {
		if errors.Is(err, services.ErrNotRuleOwner) {
			utils.ForbiddenResponse(c, "You cannot delete this rule")
			return
		}
		utils.NotFoundResponse(c, "Rule not found")
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Rule deleted", nil)
}

type authorizeRequest struct {
	Authorized *bool `json:"authorized" binding:"required"`
}

// AuthorizeRule toggles the protected user's consent for a rule.
func (h *RuleHandler) AuthorizeRule(c *gin.Context) {
	protectedID, ok := middleware.CurrentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	ruleID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid rule ID", nil)
		return
	}

	var request authorizeRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid authorization request", err.Error())
		return
	}

	if err := h.rules.Authorize(c.Request.Context(), ruleID, protectedID, *request.Authorized); err != nil {
		if errors.Is(err, services.ErrNotProtectedUser) {
			utils.ForbiddenResponse(c, "Only the protected user can authorize a rule")
			return
		}
		utils.NotFoundResponse(c, "Rule not found")
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Rule authorization updated", nil)
}

// ListMyRules returns the rules targeting the calling (protected) user.
func (h *RuleHandler) ListMyRules(c *gin.Context) {
	protectedID, ok := middleware.CurrentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	params := utils.GetPaginationParams(c)
	rules, total, err := h.rules.ListForProtected(c.Request.Context(), protectedID, &params)
	if err != nil {
		utils.InternalServerErrorResponse(c, "Failed to list rules", err.Error())
		return
	}

	utils.SuccessResponseWithMeta(c, http.StatusOK, "", rules, utils.CreatePaginationMeta(params, total))
}

// ListAuthoredRules returns the rules the calling monitor has created.
func (h *RuleHandler) ListAuthoredRules(c *gin.Context) {
	monitorID, ok := middleware.CurrentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	params := utils.GetPaginationParams(c)
	rules, total, err := h.rules.ListForMonitor(c.Request.Context(), monitorID, &params)
	if err != nil {
		utils.InternalServerErrorResponse(c, "Failed to list rules", err.Error())
		return
	}

	utils.SuccessResponseWithMeta(c, http.StatusOK, "", rules, utils.CreatePaginationMeta(params, total))
}
