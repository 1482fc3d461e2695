// internal/model/event.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventControllerConnected    EventType = "CONTROLLER_CONNECTED"
	EventControllerDisconnected EventType = "CONTROLLER_DISCONNECTED"
	EventCommandStarted         EventType = "COMMAND_STARTED"
	EventCommandCompleted       EventType = "COMMAND_COMPLETED"
	EventCommandFailed          EventType = "COMMAND_FAILED"
	EventPositionUpdate         EventType = "POSITION_UPDATE"
)

// ControllerEvent represents an event in the system
type ControllerEvent struct {
	ID        uuid.UUID  `json:"id"`
	EventType EventType  `json:"event_type"`
	TargetID  string     `json:"target_id,omitempty"`
	Data      JSONObject `json:"data"`
	Timestamp time.Time  `json:"timestamp"`
	Source    string     `json:"source"`
}

// CommandEventData represents command lifecycle events
type CommandEventData struct {
	CommandID    uuid.UUID     `json:"command_id"`
	CommandType  CommandType   `json:"command_type"`
	Status       CommandStatus `json:"status"`
	Duration     *int          `json:"duration_ms,omitempty"`
	ErrorMessage *string       `json:"error_message,omitempty"`
}

// DisconnectedEventData carries the termination cause of a controller
// session.
type DisconnectedEventData struct {
	Cause          string    `json:"cause"`
	DisconnectedAt time.Time `json:"disconnected_at"`
}

// PositionEventData reports a freshly retrieved target position.
type PositionEventData struct {
	TargetID string `json:"target_id"`
	Position int    `json:"position"`
}
