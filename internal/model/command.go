// internal/model/command.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// CommandType represents the kind of controller command
type CommandType string

const (
	CommandTypeMoveUp      CommandType = "MOVE_UP"
	CommandTypeMoveDown    CommandType = "MOVE_DOWN"
	CommandTypeStop        CommandType = "STOP"
	CommandTypeMoveTo      CommandType = "MOVE_TO_POSITION"
	CommandTypeMoveIP      CommandType = "MOVE_TO_IP"
	CommandTypeMoveIPNext  CommandType = "MOVE_TO_NEXT_IP"
	CommandTypeMoveIPPrev  CommandType = "MOVE_TO_PREV_IP"
	CommandTypeGetInfo     CommandType = "GET_INFO"
	CommandTypeGetPosition CommandType = "GET_POSITION"
	CommandTypeGetGroups   CommandType = "GET_GROUPS"
)

// CommandStatus represents the status of a command
type CommandStatus string

const (
	CommandStatusPending CommandStatus = "PENDING"
	CommandStatusSuccess CommandStatus = "SUCCESS"
	CommandStatusFailed  CommandStatus = "FAILED"
)

// Command represents one command issued against the controller, recorded
// for history and diagnostics.
type Command struct {
	ID           uuid.UUID     `json:"id" db:"id"`
	TargetID     string        `json:"target_id" db:"target_id"`
	CommandType  CommandType   `json:"command_type" db:"command_type"`
	Params       JSONObject    `json:"params" db:"params"`
	Status       CommandStatus `json:"status" db:"status"`
	StartedAt    time.Time     `json:"started_at" db:"started_at"`
	CompletedAt  *time.Time    `json:"completed_at" db:"completed_at"`
	DurationMs   *int          `json:"duration_ms" db:"duration_ms"`
	ErrorMessage *string       `json:"error_message" db:"error_message"`
	Result       JSONObject    `json:"result" db:"result"`
	CreatedAt    time.Time     `json:"created_at" db:"created_at"`
}

// IsCompleted checks if the command reached a terminal status
func (c *Command) IsCompleted() bool {
	return c.Status == CommandStatusSuccess || c.Status == CommandStatusFailed
}
