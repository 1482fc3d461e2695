// internal/handler/websocket_handler_test.go
package handler

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"shade-service/internal/model"
	"shade-service/internal/utils"
)

func newBroadcastHandler(t *testing.T) *WebSocketHandler {
	t.Helper()
	return &WebSocketHandler{
		connections: NewConnectionManager(),
		logger:      utils.NewServiceLogger(zap.NewNop(), "websocket-handler"),
	}
}

func registerEventClient(t *testing.T, h *WebSocketHandler, id string, topics ...string) *Client {
	t.Helper()
	client := &Client{
		ID:          id,
		Send:        make(chan []byte, 16),
		Type:        "events",
		ConnectedAt: time.Now(),
	}
	for _, topic := range topics {
		client.Subscribe(topic)
	}
	h.connections.Register(client)
	return client
}

// drainEventTypes empties the client's send queue and returns the event
// types it was handed, in order.
func drainEventTypes(t *testing.T, client *Client) []string {
	t.Helper()
	var types []string
	for {
		select {
		case raw := <-client.Send:
			var message struct {
				Data struct {
					EventType string `json:"event_type"`
				} `json:"data"`
			}
			require.NoError(t, json.Unmarshal(raw, &message))
			types = append(types, message.Data.EventType)
		default:
			return types
		}
	}
}

func broadcast(h *WebSocketHandler, eventType model.EventType) {
	h.BroadcastControllerEvent(&model.ControllerEvent{
		ID:        uuid.New(),
		EventType: eventType,
		TargetID:  "shade-1",
		Timestamp: time.Now(),
		Source:    "controller",
	})
}

func TestBroadcastHonorsSubscriptions(t *testing.T) {
	t.Parallel()

	h := newBroadcastHandler(t)

	everything := registerEventClient(t, h, "everything")
	positions := registerEventClient(t, h, "positions", string(model.EventPositionUpdate))
	commands := registerEventClient(t, h, "commands", string(model.EventCommandCompleted))

	require.Eventually(t, func() bool {
		return h.connections.GetStats().TotalConnections == 3
	}, 2*time.Second, 10*time.Millisecond)

	broadcast(h, model.EventPositionUpdate)
	broadcast(h, model.EventCommandCompleted)

	// A client with no subscriptions receives every event; subscribed
	// clients only see their topics.
	require.Equal(t, []string{"POSITION_UPDATE", "COMMAND_COMPLETED"}, drainEventTypes(t, everything))
	require.Equal(t, []string{"POSITION_UPDATE"}, drainEventTypes(t, positions))
	require.Equal(t, []string{"COMMAND_COMPLETED"}, drainEventTypes(t, commands))

	// Dropping the last subscription restores full delivery.
	positions.Unsubscribe(string(model.EventPositionUpdate))
	broadcast(h, model.EventCommandFailed)
	require.Equal(t, []string{"COMMAND_FAILED"}, drainEventTypes(t, positions))
}

func TestClientWantsTopic(t *testing.T) {
	t.Parallel()

	testcases := []struct {
		description string
		subscribed  []string
		topic       string
		want        bool
	}{
		{
			description: "no subscriptions receives everything",
			topic:       "POSITION_UPDATE",
			want:        true,
		},
		{
			description: "subscribed topic is delivered",
			subscribed:  []string{"POSITION_UPDATE"},
			topic:       "POSITION_UPDATE",
			want:        true,
		},
		{
			description: "unsubscribed topic is filtered out",
			subscribed:  []string{"POSITION_UPDATE"},
			topic:       "COMMAND_COMPLETED",
			want:        false,
		},
	}

	for _, tc := range testcases {
		tc := tc
		t.Run(tc.description, func(t *testing.T) {
			t.Parallel()

			client := &Client{ID: "c1", Send: make(chan []byte, 1)}
			for _, topic := range tc.subscribed {
				client.Subscribe(topic)
			}
			require.Equal(t, tc.want, client.WantsTopic(tc.topic))
		})
	}
}
