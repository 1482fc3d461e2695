// internal/repository/command_repository.go
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"shade-service/internal/database"
	"shade-service/internal/model"
)

// commandRepository implements CommandRepository interface
type commandRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewCommandRepository creates a new command repository
func NewCommandRepository(db *database.DB, logger *zap.Logger) CommandRepository {
	return &commandRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new command record
func (r *commandRepository) Create(ctx context.Context, command *model.Command) error {
	query := `
		INSERT INTO commands (
			id, target_id, command_type, params, status, started_at, result
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		command.ID, command.TargetID, command.CommandType,
		command.Params, command.Status, command.StartedAt, command.Result,
	)

	if err != nil {
		r.logger.Error("Failed to create command record", zap.Error(err))
		return fmt.Errorf("failed to create command record: %w", err)
	}

	return nil
}

// GetByID retrieves a command record by ID
func (r *commandRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Command, error) {
	query := `
		SELECT id, target_id, command_type, params, status, started_at,
			   completed_at, duration_ms, error_message, result, created_at
		FROM commands WHERE id = $1
	`

	command := &model.Command{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&command.ID, &command.TargetID, &command.CommandType,
		&command.Params, &command.Status, &command.StartedAt,
		&command.CompletedAt, &command.DurationMs, &command.ErrorMessage,
		&command.Result, &command.CreatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("command not found with id: %s", id)
		}
		return nil, fmt.Errorf("failed to get command: %w", err)
	}

	return command, nil
}

// Update updates an existing command record
func (r *commandRepository) Update(ctx context.Context, command *model.Command) error {
	query := `
		UPDATE commands SET
			status = $2, completed_at = $3, duration_ms = $4,
			error_message = $5, result = $6
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		command.ID, command.Status, command.CompletedAt,
		command.DurationMs, command.ErrorMessage, command.Result,
	)

	if err != nil {
		return fmt.Errorf("failed to update command: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("command not found with id: %s", command.ID)
	}

	return nil
}

// List retrieves commands with filtering and pagination
func (r *commandRepository) List(ctx context.Context, filter *CommandFilter) ([]*model.Command, int, error) {
	// Build WHERE clause
	whereConditions := []string{}
	args := []interface{}{}
	argIndex := 1

	if filter.TargetID != nil {
		whereConditions = append(whereConditions, fmt.Sprintf("target_id = $%d", argIndex))
		args = append(args, *filter.TargetID)
		argIndex++
	}

	if filter.CommandType != nil {
		whereConditions = append(whereConditions, fmt.Sprintf("command_type = $%d", argIndex))
		args = append(args, *filter.CommandType)
		argIndex++
	}

	if filter.Status != nil {
		whereConditions = append(whereConditions, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, *filter.Status)
		argIndex++
	}

	if filter.StartDate != nil {
		whereConditions = append(whereConditions, fmt.Sprintf("created_at >= $%d", argIndex))
		args = append(args, *filter.StartDate)
		argIndex++
	}

	if filter.EndDate != nil {
		whereConditions = append(whereConditions, fmt.Sprintf("created_at <= $%d", argIndex))
		args = append(args, *filter.EndDate)
		argIndex++
	}

	whereClause := ""
	if len(whereConditions) > 0 {
		whereClause = "WHERE " + strings.Join(whereConditions, " AND ")
	}

	// Count total records
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM commands %s", whereClause)
	var total int
	err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count commands: %w", err)
	}

	// Build ORDER BY clause
	orderBy := "created_at DESC"
	if filter.SortBy != "" {
		order := "ASC"
		if filter.SortOrder == "desc" {
			order = "DESC"
		}
		orderBy = fmt.Sprintf("%s %s", filter.SortBy, order)
	}

	// Build main query with pagination
	offset := (filter.Page - 1) * filter.PerPage
	query := fmt.Sprintf(`
		SELECT id, target_id, command_type, params, status, started_at,
			   completed_at, duration_ms, error_message, result, created_at
		FROM commands %s
		ORDER BY %s
		LIMIT $%d OFFSET $%d
	`, whereClause, orderBy, argIndex, argIndex+1)

	args = append(args, filter.PerPage, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list commands: %w", err)
	}
	defer rows.Close()

	commands := []*model.Command{}
	for rows.Next() {
		command := &model.Command{}
		err := rows.Scan(
			&command.ID, &command.TargetID, &command.CommandType,
			&command.Params, &command.Status, &command.StartedAt,
			&command.CompletedAt, &command.DurationMs, &command.ErrorMessage,
			&command.Result, &command.CreatedAt,
		)
		if err != nil {
			r.logger.Error("Failed to scan command row", zap.Error(err))
			continue
		}
		commands = append(commands, command)
	}

	return commands, total, nil
}

// ListByTarget retrieves commands for a specific target
func (r *commandRepository) ListByTarget(ctx context.Context, targetID string, limit int) ([]*model.Command, error) {
	query := `
		SELECT id, target_id, command_type, params, status, started_at,
			   completed_at, duration_ms, error_message, result, created_at
		FROM commands
		WHERE target_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, targetID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list commands by target: %w", err)
	}
	defer rows.Close()

	commands := []*model.Command{}
	for rows.Next() {
		command := &model.Command{}
		err := rows.Scan(
			&command.ID, &command.TargetID, &command.CommandType,
			&command.Params, &command.Status, &command.StartedAt,
			&command.CompletedAt, &command.DurationMs, &command.ErrorMessage,
			&command.Result, &command.CreatedAt,
		)
		if err != nil {
			r.logger.Error("Failed to scan command row", zap.Error(err))
			continue
		}
		commands = append(commands, command)
	}

	return commands, nil
}

// GetCommandStats retrieves command statistics
func (r *commandRepository) GetCommandStats(ctx context.Context, filter *CommandStatsFilter) (*CommandStats, error) {
	whereConditions := []string{}
	args := []interface{}{}
	argIndex := 1

	if filter.TargetID != nil {
		whereConditions = append(whereConditions, fmt.Sprintf("target_id = $%d", argIndex))
		args = append(args, *filter.TargetID)
		argIndex++
	}

	if filter.StartDate != nil {
		whereConditions = append(whereConditions, fmt.Sprintf("created_at >= $%d", argIndex))
		args = append(args, *filter.StartDate)
		argIndex++
	}

	if filter.EndDate != nil {
		whereConditions = append(whereConditions, fmt.Sprintf("created_at <= $%d", argIndex))
		args = append(args, *filter.EndDate)
		argIndex++
	}

	whereClause := ""
	if len(whereConditions) > 0 {
		whereClause = "WHERE " + strings.Join(whereConditions, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE status = 'SUCCESS') AS successful,
			COUNT(*) FILTER (WHERE status = 'FAILED') AS failed,
			COUNT(*) FILTER (WHERE status = 'PENDING') AS pending,
			COALESCE(AVG(duration_ms), 0) AS avg_duration_ms
		FROM commands %s
	`, whereClause)

	stats := &CommandStats{
		ByType:   make(map[model.CommandType]int),
		ByStatus: make(map[model.CommandStatus]int),
	}

	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&stats.TotalCommands, &stats.SuccessfulCmds,
		&stats.FailedCmds, &stats.PendingCmds, &stats.AvgDurationMs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get command stats: %w", err)
	}

	typeQuery := fmt.Sprintf(`
		SELECT command_type, COUNT(*) FROM commands %s GROUP BY command_type
	`, whereClause)

	rows, err := r.db.QueryContext(ctx, typeQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get command type breakdown: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var commandType model.CommandType
		var count int
		if err := rows.Scan(&commandType, &count); err != nil {
			r.logger.Error("Failed to scan command type row", zap.Error(err))
			continue
		}
		stats.ByType[commandType] = count
	}

	stats.ByStatus[model.CommandStatusSuccess] = stats.SuccessfulCmds
	stats.ByStatus[model.CommandStatusFailed] = stats.FailedCmds
	stats.ByStatus[model.CommandStatusPending] = stats.PendingCmds

	return stats, nil
}

// DeleteOldCommands removes command records older than the given time
func (r *commandRepository) DeleteOldCommands(ctx context.Context, olderThan time.Time) (int64, error) {
	query := `DELETE FROM commands WHERE created_at < $1`

	result, err := r.db.ExecContext(ctx, query, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old commands: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}
