// internal/handler/command_handler.go
package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"shade-service/internal/model"
	"shade-service/internal/repository"
	"shade-service/internal/service"
	"shade-service/internal/utils"
)

// CommandHandler handles command execution and history requests
type CommandHandler struct {
	commandService *service.CommandService
	controller     *service.ControllerService
	logger         *utils.ServiceLogger
}

// NewCommandHandler creates a new command handler
func NewCommandHandler(
	commandService *service.CommandService,
	controller *service.ControllerService,
	logger *zap.Logger,
) *CommandHandler {
	return &CommandHandler{
		commandService: commandService,
		controller:     controller,
		logger:         utils.NewServiceLogger(logger, "command-handler"),
	}
}

// RegisterRoutes registers command routes
func (h *CommandHandler) RegisterRoutes(router *gin.RouterGroup) {
	commands := router.Group("/commands")
	{
		commands.POST("", h.ExecuteCommand)
		commands.GET("", h.ListCommands)
		commands.GET("/stats", h.GetCommandStats)
		commands.GET("/:id", h.GetCommand)
	}

	controller := router.Group("/controller")
	{
		controller.GET("/status", h.GetControllerStatus)
	}
}

// ExecuteCommand runs a controller command
func (h *CommandHandler) ExecuteCommand(c *gin.Context) {
	var req service.CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ValidationErrorResponse(c, err.Error())
		return
	}

	command, err := h.commandService.ExecuteCommand(c.Request.Context(), &req)
	if err != nil {
		h.logger.Error("Command execution failed",
			zap.String("target_id", req.TargetID),
			zap.String("command_type", string(req.CommandType)),
			zap.Error(err),
		)

		// The failed command record, when one exists, is part of the
		// error response.
		utils.ErrorResponse(c, http.StatusBadGateway, "Command execution failed", gin.H{
			"reason":  err.Error(),
			"command": command,
		})
		return
	}

	utils.SuccessResponse(c, http.StatusOK, command, "Command executed successfully")
}

// GetCommand retrieves a command record by ID
func (h *CommandHandler) GetCommand(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid command ID", err.Error())
		return
	}

	command, err := h.commandService.GetCommand(c.Request.Context(), id)
	if err != nil {
		utils.ErrorResponse(c, http.StatusNotFound, "Command not found", err.Error())
		return
	}

	utils.SuccessResponse(c, http.StatusOK, command, "")
}

// ListCommands retrieves command history with filtering and pagination
func (h *CommandHandler) ListCommands(c *gin.Context) {
	filter := &repository.CommandFilter{
		Page:      parseIntQuery(c, "page", 1),
		PerPage:   parseIntQuery(c, "per_page", 20),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}

	if targetID := c.Query("target_id"); targetID != "" {
		filter.TargetID = &targetID
	}
	if commandType := c.Query("command_type"); commandType != "" {
		ct := model.CommandType(commandType)
		filter.CommandType = &ct
	}
	if status := c.Query("status"); status != "" {
		st := model.CommandStatus(status)
		filter.Status = &st
	}
	if startDate, ok := parseTimeQuery(c, "start_date"); ok {
		filter.StartDate = &startDate
	}
	if endDate, ok := parseTimeQuery(c, "end_date"); ok {
		filter.EndDate = &endDate
	}

	commands, total, err := h.commandService.ListCommands(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list commands", zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to list commands", err.Error())
		return
	}

	utils.SuccessResponse(c, http.StatusOK, gin.H{
		"commands": commands,
		"total":    total,
		"page":     filter.Page,
		"per_page": filter.PerPage,
	}, "")
}

// GetCommandStats retrieves command statistics
func (h *CommandHandler) GetCommandStats(c *gin.Context) {
	filter := &repository.CommandStatsFilter{}

	if targetID := c.Query("target_id"); targetID != "" {
		filter.TargetID = &targetID
	}
	if startDate, ok := parseTimeQuery(c, "start_date"); ok {
		filter.StartDate = &startDate
	}
	if endDate, ok := parseTimeQuery(c, "end_date"); ok {
		filter.EndDate = &endDate
	}

	stats, err := h.commandService.GetCommandStats(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to get command stats", zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to get command stats", err.Error())
		return
	}

	utils.SuccessResponse(c, http.StatusOK, stats, "")
}

// GetControllerStatus returns the controller session status
func (h *CommandHandler) GetControllerStatus(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, h.controller.Status(), "")
}

// parseIntQuery parses an integer query parameter with a default
func parseIntQuery(c *gin.Context, name string, defaultValue int) int {
	value, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return defaultValue
	}
	return value
}

// parseTimeQuery parses an RFC3339 time query parameter
func parseTimeQuery(c *gin.Context, name string) (time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return time.Time{}, false
	}

	value, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return value, true
}
