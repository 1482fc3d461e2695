// internal/service/command_service.go
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"shade-service/internal/config"
	"shade-service/internal/model"
	"shade-service/internal/repository"
	"shade-service/internal/uai"
	"shade-service/internal/utils"
)

// CommandRequest represents a controller command to execute
type CommandRequest struct {
	TargetID    string            `json:"target_id" binding:"required"`
	CommandType model.CommandType `json:"command_type" binding:"required"`
	Position    *int              `json:"position,omitempty"`
	Value       *int              `json:"value,omitempty"`
}

// CommandService executes controller commands and records their history
type CommandService struct {
	controller  *ControllerService
	commandRepo repository.CommandRepository
	targetRepo  repository.TargetRepository
	config      *config.Config
	logger      *utils.ServiceLogger
	publisher   EventPublisher
}

// NewCommandService creates a new command service
func NewCommandService(
	controller *ControllerService,
	commandRepo repository.CommandRepository,
	targetRepo repository.TargetRepository,
	cfg *config.Config,
	logger *zap.Logger,
) *CommandService {
	return &CommandService{
		controller:  controller,
		commandRepo: commandRepo,
		targetRepo:  targetRepo,
		config:      cfg,
		logger:      utils.NewServiceLogger(logger, "command-service"),
	}
}

// SetEventPublisher wires the event distribution sink
func (s *CommandService) SetEventPublisher(publisher EventPublisher) {
	s.publisher = publisher
}

// ExecuteCommand runs a controller command and records the outcome
func (s *CommandService) ExecuteCommand(ctx context.Context, req *CommandRequest) (*model.Command, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	command := &model.Command{
		ID:          uuid.New(),
		TargetID:    req.TargetID,
		CommandType: req.CommandType,
		Params:      s.buildParams(req),
		Status:      model.CommandStatusPending,
		StartedAt:   time.Now(),
		CreatedAt:   time.Now(),
	}

	if err := s.commandRepo.Create(ctx, command); err != nil {
		return nil, fmt.Errorf("failed to record command: %w", err)
	}

	s.publishCommandEvent(model.EventCommandStarted, command)

	result, err := s.runCommand(ctx, req)
	s.completeCommand(ctx, command, result, err)

	if err != nil {
		return command, fmt.Errorf("command execution failed: %w", err)
	}

	return command, nil
}

// runCommand dispatches the request to the protocol client
func (s *CommandService) runCommand(ctx context.Context, req *CommandRequest) (model.JSONObject, error) {
	client := s.controller.Client()
	started := time.Now()

	var result model.JSONObject
	var err error

	switch req.CommandType {
	case model.CommandTypeMoveUp:
		err = client.MoveTargetUp(ctx, req.TargetID)

	case model.CommandTypeMoveDown:
		err = client.MoveTargetDown(ctx, req.TargetID)

	case model.CommandTypeStop:
		err = client.StopTarget(ctx, req.TargetID)

	case model.CommandTypeMoveTo:
		err = client.MoveTargetToPosition(ctx, req.TargetID, *req.Position)

	case model.CommandTypeMoveIP:
		err = client.MoveTargetToIntermediatePosition(ctx, req.TargetID, *req.Value)

	case model.CommandTypeMoveIPNext:
		err = client.MoveTargetToNextIntermediatePosition(ctx, req.TargetID)

	case model.CommandTypeMoveIPPrev:
		err = client.MoveTargetToPreviousIntermediatePosition(ctx, req.TargetID)

	case model.CommandTypeGetInfo:
		var info *uai.TargetInfo
		info, err = s.refreshTargetInfo(ctx, req.TargetID)
		if err == nil {
			result = model.JSONObject{"name": info.Name, "type": info.Type}
		}

	case model.CommandTypeGetPosition:
		var position int
		position, err = client.GetTargetPosition(ctx, req.TargetID)
		if err == nil {
			result = model.JSONObject{"position": position}
			s.recordPosition(ctx, req.TargetID, position)
		}

	case model.CommandTypeGetGroups:
		var groups []string
		groups, err = client.GetGroupsForTarget(ctx, req.TargetID)
		if err == nil {
			result = model.JSONObject{"groups": groups}
			s.recordGroups(ctx, req.TargetID, groups)
		}

	default:
		return nil, fmt.Errorf("unsupported command type: %s", req.CommandType)
	}

	s.controller.sessionLogger.LogCommand(string(req.CommandType), req.TargetID, time.Since(started), err)
	return result, err
}

// completeCommand finalizes the history record and publishes the outcome
func (s *CommandService) completeCommand(ctx context.Context, command *model.Command, result model.JSONObject, cmdErr error) {
	now := time.Now()
	durationMs := int(now.Sub(command.StartedAt).Milliseconds())

	command.CompletedAt = &now
	command.DurationMs = &durationMs
	command.Result = result

	eventType := model.EventCommandCompleted
	if cmdErr != nil {
		command.Status = model.CommandStatusFailed
		message := cmdErr.Error()
		command.ErrorMessage = &message
		eventType = model.EventCommandFailed
	} else {
		command.Status = model.CommandStatusSuccess
	}

	if err := s.commandRepo.Update(ctx, command); err != nil {
		s.logger.Error("Failed to update command record",
			zap.String("command_id", command.ID.String()),
			zap.Error(err),
		)
	}

	s.publishCommandEvent(eventType, command)
}

// refreshTargetInfo retrieves target meta information and upserts the
// target registry row.
func (s *CommandService) refreshTargetInfo(ctx context.Context, targetID string) (*uai.TargetInfo, error) {
	info, err := s.controller.Client().GetTargetInfo(ctx, targetID)
	if err != nil {
		return nil, err
	}

	target := &model.Target{
		TargetID: targetID,
		Name:     info.Name,
		Type:     info.Type,
	}

	if err := s.targetRepo.Upsert(ctx, target); err != nil {
		s.logger.Error("Failed to upsert target",
			zap.String("target_id", targetID),
			zap.Error(err),
		)
	}

	return info, nil
}

// recordPosition stores a freshly observed position and publishes a
// position update event. Registry misses are expected for targets never
// refreshed via GET_INFO.
func (s *CommandService) recordPosition(ctx context.Context, targetID string, position int) {
	if err := s.targetRepo.UpdatePosition(ctx, targetID, position); err != nil {
		s.logger.Debug("Position not recorded",
			zap.String("target_id", targetID),
			zap.Error(err),
		)
	}

	s.publish(&model.ControllerEvent{
		ID:        uuid.New(),
		EventType: model.EventPositionUpdate,
		TargetID:  targetID,
		Data:      model.JSONObject{"position": position},
		Timestamp: time.Now(),
		Source:    "controller",
	})
}

// recordGroups stores a target's group membership
func (s *CommandService) recordGroups(ctx context.Context, targetID string, groups []string) {
	target, err := s.targetRepo.GetByTargetID(ctx, targetID)
	if err != nil {
		target = &model.Target{TargetID: targetID}
	}

	target.GroupIDs = model.StringArray(groups)
	if err := s.targetRepo.Upsert(ctx, target); err != nil {
		s.logger.Error("Failed to record target groups",
			zap.String("target_id", targetID),
			zap.Error(err),
		)
	}
}

// GetGroupInfo retrieves group meta information from the controller
func (s *CommandService) GetGroupInfo(ctx context.Context, groupID string) (*model.Group, error) {
	info, err := s.controller.Client().GetGroupInfo(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to get group info: %w", err)
	}

	return &model.Group{GroupID: groupID, Name: info.Name}, nil
}

// GetCommand retrieves a command record by ID
func (s *CommandService) GetCommand(ctx context.Context, id uuid.UUID) (*model.Command, error) {
	return s.commandRepo.GetByID(ctx, id)
}

// ListCommands retrieves command records with filtering and pagination
func (s *CommandService) ListCommands(ctx context.Context, filter *repository.CommandFilter) ([]*model.Command, int, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PerPage < 1 || filter.PerPage > 100 {
		filter.PerPage = 20
	}
	return s.commandRepo.List(ctx, filter)
}

// ListCommandsByTarget retrieves recent commands for a target
func (s *CommandService) ListCommandsByTarget(ctx context.Context, targetID string, limit int) ([]*model.Command, error) {
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return s.commandRepo.ListByTarget(ctx, targetID, limit)
}

// GetCommandStats retrieves command statistics
func (s *CommandService) GetCommandStats(ctx context.Context, filter *repository.CommandStatsFilter) (*repository.CommandStats, error) {
	return s.commandRepo.GetCommandStats(ctx, filter)
}

// CleanupOldCommands removes command records past the retention window
func (s *CommandService) CleanupOldCommands(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-s.config.History.Retention)

	deleted, err := s.commandRepo.DeleteOldCommands(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old commands: %w", err)
	}

	if deleted > 0 {
		s.logger.Info("Old command records removed",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff),
		)
	}

	return deleted, nil
}

// validateRequest checks command request parameters
func (s *CommandService) validateRequest(req *CommandRequest) error {
	if req.TargetID == "" {
		return fmt.Errorf("target_id is required")
	}

	switch req.CommandType {
	case model.CommandTypeMoveTo:
		if req.Position == nil {
			return fmt.Errorf("position is required for %s", req.CommandType)
		}
		if *req.Position < 0 || *req.Position > 100 {
			return fmt.Errorf("position must be between 0 and 100")
		}
	case model.CommandTypeMoveIP:
		if req.Value == nil {
			return fmt.Errorf("value is required for %s", req.CommandType)
		}
	case model.CommandTypeMoveUp, model.CommandTypeMoveDown, model.CommandTypeStop,
		model.CommandTypeMoveIPNext, model.CommandTypeMoveIPPrev,
		model.CommandTypeGetInfo, model.CommandTypeGetPosition, model.CommandTypeGetGroups:
	default:
		return fmt.Errorf("unsupported command type: %s", req.CommandType)
	}

	return nil
}

// buildParams captures the request parameters for the history record
func (s *CommandService) buildParams(req *CommandRequest) model.JSONObject {
	params := model.JSONObject{}
	if req.Position != nil {
		params["position"] = *req.Position
	}
	if req.Value != nil {
		params["value"] = *req.Value
	}
	if len(params) == 0 {
		return nil
	}
	return params
}

// publishCommandEvent publishes a command lifecycle event
func (s *CommandService) publishCommandEvent(eventType model.EventType, command *model.Command) {
	data := model.JSONObject{
		"command_id":   command.ID.String(),
		"command_type": command.CommandType,
		"status":       command.Status,
	}
	if command.DurationMs != nil {
		data["duration_ms"] = *command.DurationMs
	}
	if command.ErrorMessage != nil {
		data["error_message"] = *command.ErrorMessage
	}

	s.publish(&model.ControllerEvent{
		ID:        uuid.New(),
		EventType: eventType,
		TargetID:  command.TargetID,
		Data:      data,
		Timestamp: time.Now(),
		Source:    "command",
	})
}

// publish forwards an event to the publisher when one is wired
func (s *CommandService) publish(event *model.ControllerEvent) {
	if s.publisher != nil {
		s.publisher.PublishEvent(event)
	}
}
