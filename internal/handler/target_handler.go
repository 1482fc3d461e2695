// internal/handler/target_handler.go
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"shade-service/internal/model"
	"shade-service/internal/repository"
	"shade-service/internal/service"
	"shade-service/internal/utils"
)

// TargetHandler handles target registry requests
type TargetHandler struct {
	targetRepo     repository.TargetRepository
	commandService *service.CommandService
	logger         *utils.ServiceLogger
}

// NewTargetHandler creates a new target handler
func NewTargetHandler(
	targetRepo repository.TargetRepository,
	commandService *service.CommandService,
	logger *zap.Logger,
) *TargetHandler {
	return &TargetHandler{
		targetRepo:     targetRepo,
		commandService: commandService,
		logger:         utils.NewServiceLogger(logger, "target-handler"),
	}
}

// RegisterRoutes registers target routes
func (h *TargetHandler) RegisterRoutes(router *gin.RouterGroup) {
	targets := router.Group("/targets")
	{
		targets.GET("", h.ListTargets)
		targets.GET("/:target_id", h.GetTarget)
		targets.POST("/:target_id/refresh", h.RefreshTarget)
		targets.GET("/:target_id/commands", h.ListTargetCommands)
		targets.DELETE("/:target_id", h.DeleteTarget)
	}

	groups := router.Group("/groups")
	{
		groups.GET("/:group_id", h.GetGroup)
	}
}

// ListTargets retrieves registered targets with filtering and
// pagination
func (h *TargetHandler) ListTargets(c *gin.Context) {
	filter := &repository.TargetFilter{
		Page:      parseIntQuery(c, "page", 1),
		PerPage:   parseIntQuery(c, "per_page", 20),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}

	if targetType := c.Query("type"); targetType != "" {
		filter.Type = &targetType
	}
	if search := c.Query("search"); search != "" {
		filter.SearchTerm = &search
	}

	targets, total, err := h.targetRepo.List(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list targets", zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to list targets", err.Error())
		return
	}

	utils.SuccessResponse(c, http.StatusOK, gin.H{
		"targets":  targets,
		"total":    total,
		"page":     filter.Page,
		"per_page": filter.PerPage,
	}, "")
}

// GetTarget retrieves a registered target
func (h *TargetHandler) GetTarget(c *gin.Context) {
	targetID := c.Param("target_id")

	target, err := h.targetRepo.GetByTargetID(c.Request.Context(), targetID)
	if err != nil {
		utils.ErrorResponse(c, http.StatusNotFound, "Target not found", err.Error())
		return
	}

	utils.SuccessResponse(c, http.StatusOK, target, "")
}

// RefreshTarget queries the controller for the target's current meta
// information, position and groups, and refreshes the registry row.
func (h *TargetHandler) RefreshTarget(c *gin.Context) {
	targetID := c.Param("target_id")
	ctx := c.Request.Context()

	for _, commandType := range []model.CommandType{
		model.CommandTypeGetInfo,
		model.CommandTypeGetPosition,
		model.CommandTypeGetGroups,
	} {
		if _, err := h.commandService.ExecuteCommand(ctx, &service.CommandRequest{
			TargetID:    targetID,
			CommandType: commandType,
		}); err != nil {
			h.logger.Error("Target refresh failed",
				zap.String("target_id", targetID),
				zap.String("command_type", string(commandType)),
				zap.Error(err),
			)
			utils.ErrorResponse(c, http.StatusBadGateway, "Target refresh failed", err.Error())
			return
		}
	}

	target, err := h.targetRepo.GetByTargetID(ctx, targetID)
	if err != nil {
		utils.ErrorResponse(c, http.StatusNotFound, "Target not found after refresh", err.Error())
		return
	}

	utils.SuccessResponse(c, http.StatusOK, target, "Target refreshed successfully")
}

// ListTargetCommands retrieves recent commands for a target
func (h *TargetHandler) ListTargetCommands(c *gin.Context) {
	targetID := c.Param("target_id")
	limit := parseIntQuery(c, "limit", 20)

	commands, err := h.commandService.ListCommandsByTarget(c.Request.Context(), targetID, limit)
	if err != nil {
		h.logger.Error("Failed to list target commands", zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to list target commands", err.Error())
		return
	}

	utils.SuccessResponse(c, http.StatusOK, gin.H{
		"target_id": targetID,
		"commands":  commands,
	}, "")
}

// DeleteTarget removes a target from the registry. The controller
// itself is not modified.
func (h *TargetHandler) DeleteTarget(c *gin.Context) {
	targetID := c.Param("target_id")

	if err := h.targetRepo.Delete(c.Request.Context(), targetID); err != nil {
		utils.ErrorResponse(c, http.StatusNotFound, "Target not found", err.Error())
		return
	}

	utils.SuccessResponse(c, http.StatusOK, nil, "Target deleted successfully")
}

// GetGroup retrieves group meta information from the controller
func (h *TargetHandler) GetGroup(c *gin.Context) {
	groupID := c.Param("group_id")

	group, err := h.commandService.GetGroupInfo(c.Request.Context(), groupID)
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadGateway, "Failed to get group info", err.Error())
		return
	}

	utils.SuccessResponse(c, http.StatusOK, group, "")
}
