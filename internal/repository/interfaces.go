// internal/repository/interfaces.go
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"shade-service/internal/model"
)

// TargetRepository defines target data access operations
type TargetRepository interface {
	// Upsert inserts a target or refreshes an existing one
	Upsert(ctx context.Context, target *model.Target) error
	GetByTargetID(ctx context.Context, targetID string) (*model.Target, error)
	UpdatePosition(ctx context.Context, targetID string, position int) error
	Delete(ctx context.Context, targetID string) error

	// Listing and filtering
	List(ctx context.Context, filter *TargetFilter) ([]*model.Target, int, error)
}

// CommandRepository defines command history data access operations
type CommandRepository interface {
	// CRUD operations
	Create(ctx context.Context, command *model.Command) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Command, error)
	Update(ctx context.Context, command *model.Command) error

	// Listing and filtering
	List(ctx context.Context, filter *CommandFilter) ([]*model.Command, int, error)
	ListByTarget(ctx context.Context, targetID string, limit int) ([]*model.Command, error)

	// Analytics and reporting
	GetCommandStats(ctx context.Context, filter *CommandStatsFilter) (*CommandStats, error)

	// Cleanup
	DeleteOldCommands(ctx context.Context, olderThan time.Time) (int64, error)
}

// Filter structures

// TargetFilter represents target listing filters
type TargetFilter struct {
	Type       *string `json:"type,omitempty"`
	SearchTerm *string `json:"search_term,omitempty"`
	Page       int     `json:"page"`
	PerPage    int     `json:"per_page"`
	SortBy     string  `json:"sort_by"`
	SortOrder  string  `json:"sort_order"`
}

// CommandFilter represents command listing filters
type CommandFilter struct {
	TargetID    *string              `json:"target_id,omitempty"`
	CommandType *model.CommandType   `json:"command_type,omitempty"`
	Status      *model.CommandStatus `json:"status,omitempty"`
	StartDate   *time.Time           `json:"start_date,omitempty"`
	EndDate     *time.Time           `json:"end_date,omitempty"`
	Page        int                  `json:"page"`
	PerPage     int                  `json:"per_page"`
	SortBy      string               `json:"sort_by"`
	SortOrder   string               `json:"sort_order"`
}

// CommandStatsFilter represents command statistics filters
type CommandStatsFilter struct {
	TargetID  *string    `json:"target_id,omitempty"`
	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`
}

// Statistics structures

// CommandStats represents command statistics
type CommandStats struct {
	TotalCommands  int                         `json:"total_commands"`
	SuccessfulCmds int                         `json:"successful_commands"`
	FailedCmds     int                         `json:"failed_commands"`
	PendingCmds    int                         `json:"pending_commands"`
	AvgDurationMs  float64                     `json:"average_duration_ms"`
	ByType         map[model.CommandType]int   `json:"by_type"`
	ByStatus       map[model.CommandStatus]int `json:"by_status"`
}
