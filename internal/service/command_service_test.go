// internal/service/command_service_test.go
package service

import (
	"testing"

	"github.com/stretchr/testify/require"

	"shade-service/internal/model"
)

func TestValidateRequest(t *testing.T) {
	t.Parallel()

	position := 50
	badPosition := 140
	value := 1

	cases := []struct {
		description string
		request     *CommandRequest
		wantErr     string
	}{
		{
			description: "move up needs only a target",
			request:     &CommandRequest{TargetID: "shade.01", CommandType: model.CommandTypeMoveUp},
		},
		{
			description: "target id is required",
			request:     &CommandRequest{CommandType: model.CommandTypeMoveUp},
			wantErr:     "target_id",
		},
		{
			description: "move to position requires position",
			request:     &CommandRequest{TargetID: "shade.01", CommandType: model.CommandTypeMoveTo},
			wantErr:     "position is required",
		},
		{
			description: "position out of range rejected",
			request:     &CommandRequest{TargetID: "shade.01", CommandType: model.CommandTypeMoveTo, Position: &badPosition},
			wantErr:     "between 0 and 100",
		},
		{
			description: "move to position accepts valid position",
			request:     &CommandRequest{TargetID: "shade.01", CommandType: model.CommandTypeMoveTo, Position: &position},
		},
		{
			description: "intermediate position requires value",
			request:     &CommandRequest{TargetID: "shade.01", CommandType: model.CommandTypeMoveIP},
			wantErr:     "value is required",
		},
		{
			description: "intermediate position accepts value",
			request:     &CommandRequest{TargetID: "shade.01", CommandType: model.CommandTypeMoveIP, Value: &value},
		},
		{
			description: "unknown command type rejected",
			request:     &CommandRequest{TargetID: "shade.01", CommandType: model.CommandType("REBOOT")},
			wantErr:     "unsupported command type",
		},
	}

	s := &CommandService{}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.description, func(t *testing.T) {
			t.Parallel()

			err := s.validateRequest(tc.request)
			if tc.wantErr == "" {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				require.Contains(t, err.Error(), tc.wantErr)
			}
		})
	}
}

func TestBuildParams(t *testing.T) {
	t.Parallel()

	position := 75
	value := 2

	s := &CommandService{}

	require.Nil(t, s.buildParams(&CommandRequest{TargetID: "shade.01", CommandType: model.CommandTypeMoveUp}))

	params := s.buildParams(&CommandRequest{
		TargetID:    "shade.01",
		CommandType: model.CommandTypeMoveTo,
		Position:    &position,
	})
	require.Equal(t, model.JSONObject{"position": 75}, params)

	params = s.buildParams(&CommandRequest{
		TargetID:    "shade.01",
		CommandType: model.CommandTypeMoveIP,
		Value:       &value,
	})
	require.Equal(t, model.JSONObject{"value": 2}, params)
}
