// internal/repository/target_repository.go
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"shade-service/internal/database"
	"shade-service/internal/model"
)

// targetRepository implements TargetRepository interface
type targetRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewTargetRepository creates a new target repository
func NewTargetRepository(db *database.DB, logger *zap.Logger) TargetRepository {
	return &targetRepository{
		db:     db,
		logger: logger,
	}
}

// Upsert inserts a target or refreshes an existing one
func (r *targetRepository) Upsert(ctx context.Context, target *model.Target) error {
	query := `
		INSERT INTO targets (target_id, name, type, group_ids, position, first_seen, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (target_id) DO UPDATE SET
			name = EXCLUDED.name,
			type = EXCLUDED.type,
			group_ids = COALESCE(EXCLUDED.group_ids, targets.group_ids),
			position = COALESCE(EXCLUDED.position, targets.position),
			updated_at = EXCLUDED.updated_at
	`

	now := time.Now()
	if target.FirstSeen.IsZero() {
		target.FirstSeen = now
	}
	target.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		target.TargetID, target.Name, target.Type, target.GroupIDs,
		target.Position, target.FirstSeen, target.UpdatedAt,
	)

	if err != nil {
		r.logger.Error("Failed to upsert target", zap.Error(err))
		return fmt.Errorf("failed to upsert target: %w", err)
	}

	return nil
}

// GetByTargetID retrieves a target by its controller address
func (r *targetRepository) GetByTargetID(ctx context.Context, targetID string) (*model.Target, error) {
	query := `
		SELECT target_id, name, type, group_ids, position, first_seen, updated_at
		FROM targets WHERE target_id = $1
	`

	target := &model.Target{}
	err := r.db.QueryRowContext(ctx, query, targetID).Scan(
		&target.TargetID, &target.Name, &target.Type, &target.GroupIDs,
		&target.Position, &target.FirstSeen, &target.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("target not found with id: %s", targetID)
		}
		return nil, fmt.Errorf("failed to get target: %w", err)
	}

	return target, nil
}

// UpdatePosition updates a target's last observed position
func (r *targetRepository) UpdatePosition(ctx context.Context, targetID string, position int) error {
	query := `UPDATE targets SET position = $2, updated_at = $3 WHERE target_id = $1`

	result, err := r.db.ExecContext(ctx, query, targetID, position, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update target position: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("target not found with id: %s", targetID)
	}

	return nil
}

// Delete removes a target
func (r *targetRepository) Delete(ctx context.Context, targetID string) error {
	query := `DELETE FROM targets WHERE target_id = $1`

	result, err := r.db.ExecContext(ctx, query, targetID)
	if err != nil {
		return fmt.Errorf("failed to delete target: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("target not found with id: %s", targetID)
	}

	return nil
}

// List retrieves targets with filtering and pagination
func (r *targetRepository) List(ctx context.Context, filter *TargetFilter) ([]*model.Target, int, error) {
	whereConditions := []string{}
	args := []interface{}{}
	argIndex := 1

	if filter.Type != nil {
		whereConditions = append(whereConditions, fmt.Sprintf("type = $%d", argIndex))
		args = append(args, *filter.Type)
		argIndex++
	}

	if filter.SearchTerm != nil {
		whereConditions = append(whereConditions, fmt.Sprintf("(name ILIKE $%d OR target_id ILIKE $%d)", argIndex, argIndex))
		args = append(args, "%"+*filter.SearchTerm+"%")
		argIndex++
	}

	whereClause := ""
	if len(whereConditions) > 0 {
		whereClause = "WHERE " + strings.Join(whereConditions, " AND ")
	}

	// Count total records
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM targets %s", whereClause)
	var total int
	err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count targets: %w", err)
	}

	// Build ORDER BY clause
	orderBy := "target_id ASC"
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
		SELECT target_id, name, type, group_ids, position, first_seen, updated_at
		FROM targets %s
		ORDER BY %s
		LIMIT $%d OFFSET $%d
	`, whereClause, orderBy, argIndex, argIndex+1)

	args = append(args, filter.PerPage, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list targets: %w", err)
	}
	defer rows.Close()

	targets := []*model.Target{}
	for rows.Next() {
		target := &model.Target{}
		err := rows.Scan(
			&target.TargetID, &target.Name, &target.Type, &target.GroupIDs,
			&target.Position, &target.FirstSeen, &target.UpdatedAt,
		)
		if err != nil {
			r.logger.Error("Failed to scan target row", zap.Error(err))
			continue
		}
		targets = append(targets, target)
	}

	return targets, total, nil
}
