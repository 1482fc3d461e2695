// internal/uai/commands.go
package uai

import (
	"context"
	"encoding/json"
	"fmt"
)

// Controller method names. Each command below is exactly one Call with a
// fixed method and parameter shape.
const (
	methodStatusInfo     = "status.info"
	methodStatusPosition = "status.position"
	methodGroupGet       = "group.get"
	methodMoveUp         = "move.up"
	methodMoveDown       = "move.down"
	methodMoveStop       = "move.stop"
	methodMoveTo         = "move.to"
	methodMoveIP         = "move.ip"
	methodMoveIPNext     = "move.ip.next"
	methodMoveIPPrev     = "move.ip.prev"
)

// TargetInfo is a target's meta information.
type TargetInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// GroupInfo is a group's meta information.
type GroupInfo struct {
	Name string `json:"name"`
}

type targetParams struct {
	TargetID string `json:"targetID"`
}

type groupParams struct {
	GroupID string `json:"groupID"`
}

type moveToParams struct {
	TargetID string `json:"targetID"`
	Position int    `json:"position"`
}

type moveIPParams struct {
	TargetID string `json:"targetID"`
	Value    int    `json:"value"`
}

// GetTargetInfo retrieves a target's name and type.
func (c *Client) GetTargetInfo(ctx context.Context, targetID string) (*TargetInfo, error) {
	result, err := c.Call(ctx, methodStatusInfo, targetParams{TargetID: targetID})
	if err != nil {
		return nil, err
	}

	var info TargetInfo
	if err := json.Unmarshal(result, &info); err != nil {
		return nil, fmt.Errorf("failed to decode target info: %w", err)
	}
	return &info, nil
}

// GetTargetPosition retrieves a target's position as a percentage
// (0 fully open, 100 fully closed).
func (c *Client) GetTargetPosition(ctx context.Context, targetID string) (int, error) {
	result, err := c.Call(ctx, methodStatusPosition, targetParams{TargetID: targetID})
	if err != nil {
		return 0, err
	}

	var position int
	if err := json.Unmarshal(result, &position); err != nil {
		return 0, fmt.Errorf("failed to decode target position: %w", err)
	}
	return position, nil
}

// GetGroupsForTarget retrieves the group IDs a target belongs to.
func (c *Client) GetGroupsForTarget(ctx context.Context, targetID string) ([]string, error) {
	result, err := c.Call(ctx, methodGroupGet, targetParams{TargetID: targetID})
	if err != nil {
		return nil, err
	}

	var groups []string
	if err := json.Unmarshal(result, &groups); err != nil {
		return nil, fmt.Errorf("failed to decode target groups: %w", err)
	}
	return groups, nil
}

// GetGroupInfo retrieves a group's meta information.
func (c *Client) GetGroupInfo(ctx context.Context, groupID string) (*GroupInfo, error) {
	result, err := c.Call(ctx, methodStatusInfo, groupParams{GroupID: groupID})
	if err != nil {
		return nil, err
	}

	var info GroupInfo
	if err := json.Unmarshal(result, &info); err != nil {
		return nil, fmt.Errorf("failed to decode group info: %w", err)
	}
	return &info, nil
}

// MoveTargetUp starts moving the target up.
func (c *Client) MoveTargetUp(ctx context.Context, targetID string) error {
	_, err := c.Call(ctx, methodMoveUp, targetParams{TargetID: targetID})
	return err
}

// MoveTargetDown starts moving the target down.
func (c *Client) MoveTargetDown(ctx context.Context, targetID string) error {
	_, err := c.Call(ctx, methodMoveDown, targetParams{TargetID: targetID})
	return err
}

// StopTarget stops the target's movement.
func (c *Client) StopTarget(ctx context.Context, targetID string) error {
	_, err := c.Call(ctx, methodMoveStop, targetParams{TargetID: targetID})
	return err
}

// MoveTargetToPosition moves the target to an absolute position
// percentage.
func (c *Client) MoveTargetToPosition(ctx context.Context, targetID string, position int) error {
	_, err := c.Call(ctx, methodMoveTo, moveToParams{TargetID: targetID, Position: position})
	return err
}

// MoveTargetToIntermediatePosition moves the target to one of its
// configured intermediate positions.
func (c *Client) MoveTargetToIntermediatePosition(ctx context.Context, targetID string, value int) error {
	_, err := c.Call(ctx, methodMoveIP, moveIPParams{TargetID: targetID, Value: value})
	return err
}

// MoveTargetToNextIntermediatePosition moves the target to its next
// intermediate position.
func (c *Client) MoveTargetToNextIntermediatePosition(ctx context.Context, targetID string) error {
	_, err := c.Call(ctx, methodMoveIPNext, targetParams{TargetID: targetID})
	return err
}

// MoveTargetToPreviousIntermediatePosition moves the target to its
// previous intermediate position.
func (c *Client) MoveTargetToPreviousIntermediatePosition(ctx context.Context, targetID string) error {
	_, err := c.Call(ctx, methodMoveIPPrev, targetParams{TargetID: targetID})
	return err
}
