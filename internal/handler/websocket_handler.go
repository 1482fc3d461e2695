// internal/handler/websocket_handler.go
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"shade-service/internal/model"
	"shade-service/internal/service"
	"shade-service/internal/utils"
)

// WebSocketHandler manages WebSocket connections for real-time
// controller event distribution.
type WebSocketHandler struct {
	upgrader       websocket.Upgrader
	connections    *ConnectionManager
	controller     *service.ControllerService
	commandService *service.CommandService
	logger         *utils.ServiceLogger
	eventBus       *EventBus
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(
	controller *service.ControllerService,
	commandService *service.CommandService,
	logger *zap.Logger,
) *WebSocketHandler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// In production, implement proper origin checking
			return true
		},
	}

	handler := &WebSocketHandler{
		upgrader:       upgrader,
		connections:    NewConnectionManager(),
		controller:     controller,
		commandService: commandService,
		logger:         utils.NewServiceLogger(logger, "websocket-handler"),
		eventBus:       NewEventBus(logger),
	}

	// Start event bus
	go handler.eventBus.Start()

	return handler
}

// RegisterRoutes registers WebSocket routes
func (h *WebSocketHandler) RegisterRoutes(router *gin.RouterGroup) {
	// All controller events
	router.GET("/events", h.HandleEventConnection)

	// Target-specific events and commands
	router.GET("/targets/:target_id", h.HandleTargetConnection)
}

// HandleEventConnection handles general event WebSocket connections
func (h *WebSocketHandler) HandleEventConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	client := &Client{
		ID:          uuid.New().String(),
		Connection:  conn,
		Send:        make(chan []byte, 256),
		Type:        "events",
		UserAgent:   c.Request.UserAgent(),
		RemoteAddr:  c.Request.RemoteAddr,
		ConnectedAt: time.Now(),
	}

	h.connections.Register(client)
	h.logger.Info("Event WebSocket client connected",
		zap.String("client_id", client.ID),
		zap.String("remote_addr", client.RemoteAddr),
	)

	go h.sendInitialStatus(client)
	go h.handleClientRead(client)
	go h.handleClientWrite(client)
}

// HandleTargetConnection handles target-specific WebSocket connections
func (h *WebSocketHandler) HandleTargetConnection(c *gin.Context) {
	targetID := c.Param("target_id")
	if targetID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "target_id is required"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	client := &Client{
		ID:          uuid.New().String(),
		Connection:  conn,
		Send:        make(chan []byte, 256),
		Type:        "target",
		TargetID:    &targetID,
		UserAgent:   c.Request.UserAgent(),
		RemoteAddr:  c.Request.RemoteAddr,
		ConnectedAt: time.Now(),
	}

	h.connections.Register(client)
	h.logger.Info("Target WebSocket client connected",
		zap.String("client_id", client.ID),
		zap.String("target_id", targetID),
	)

	go h.sendInitialStatus(client)
	go h.handleClientRead(client)
	go h.handleClientWrite(client)
}

// handleClientRead handles reading messages from WebSocket client
func (h *WebSocketHandler) handleClientRead(client *Client) {
	defer func() {
		h.connections.Unregister(client)
		client.Connection.Close()
	}()

	client.Connection.SetReadDeadline(time.Now().Add(60 * time.Second))
	client.Connection.SetPongHandler(func(string) error {
		client.Connection.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, messageBytes, err := client.Connection.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Error("WebSocket read error",
					zap.Error(err),
					zap.String("client_id", client.ID),
				)
			}
			break
		}

		var message WebSocketMessage
		if err := json.Unmarshal(messageBytes, &message); err != nil {
			h.logger.Error("Failed to parse WebSocket message",
				zap.Error(err),
				zap.String("client_id", client.ID),
			)
			continue
		}

		h.handleClientMessage(client, &message)
	}
}

// handleClientWrite handles writing messages to WebSocket client
func (h *WebSocketHandler) handleClientWrite(client *Client) {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		client.Connection.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			client.Connection.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				client.Connection.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := client.Connection.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Error("WebSocket write error",
					zap.Error(err),
					zap.String("client_id", client.ID),
				)
				return
			}

		case <-ticker.C:
			client.Connection.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.Connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleClientMessage handles incoming client messages
func (h *WebSocketHandler) handleClientMessage(client *Client, message *WebSocketMessage) {
	switch message.Type {
	case "subscribe":
		h.handleSubscription(client, message)
	case "unsubscribe":
		h.handleUnsubscription(client, message)
	case "command":
		h.handleCommand(client, message)
	case "ping":
		h.sendMessage(client, &WebSocketMessage{
			Type:      "pong",
			Timestamp: time.Now(),
		})
	default:
		h.logger.Warn("Unknown message type",
			zap.String("type", message.Type),
			zap.String("client_id", client.ID),
		)
	}
}

// handleSubscription handles client subscription requests. Once a client
// subscribes, broadcasts are narrowed to its subscribed topics.
func (h *WebSocketHandler) handleSubscription(client *Client, message *WebSocketMessage) {
	if data, ok := message.Data.(map[string]interface{}); ok {
		if topic, ok := data["topic"].(string); ok {
			client.Subscribe(topic)
			h.logger.Info("Client subscribed to topic",
				zap.String("client_id", client.ID),
				zap.String("topic", topic),
			)

			h.sendMessage(client, &WebSocketMessage{
				Type: "subscription_confirmed",
				Data: map[string]interface{}{
					"topic": topic,
				},
				Timestamp: time.Now(),
			})
		}
	}
}

// handleUnsubscription handles client unsubscription requests
func (h *WebSocketHandler) handleUnsubscription(client *Client, message *WebSocketMessage) {
	if data, ok := message.Data.(map[string]interface{}); ok {
		if topic, ok := data["topic"].(string); ok {
			client.Unsubscribe(topic)
			h.logger.Info("Client unsubscribed from topic",
				zap.String("client_id", client.ID),
				zap.String("topic", topic),
			)
		}
	}
}

// handleCommand handles controller command messages on target
// connections.
func (h *WebSocketHandler) handleCommand(client *Client, message *WebSocketMessage) {
	if client.TargetID == nil {
		h.sendError(client, "command only available on target connections")
		return
	}

	data, ok := message.Data.(map[string]interface{})
	if !ok {
		h.sendError(client, "invalid command data")
		return
	}

	commandType, ok := data["command_type"].(string)
	if !ok {
		h.sendError(client, "command_type is required")
		return
	}

	request := &service.CommandRequest{
		TargetID:    *client.TargetID,
		CommandType: model.CommandType(commandType),
	}

	if position, ok := data["position"].(float64); ok {
		p := int(position)
		request.Position = &p
	}
	if value, ok := data["value"].(float64); ok {
		v := int(value)
		request.Value = &v
	}

	go h.executeCommand(client, request)
}

// executeCommand executes a controller command on behalf of a client
func (h *WebSocketHandler) executeCommand(client *Client, request *service.CommandRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	command, err := h.commandService.ExecuteCommand(ctx, request)

	response := &WebSocketMessage{
		Type: "command_response",
		Data: map[string]interface{}{
			"command_type": request.CommandType,
			"target_id":    request.TargetID,
			"success":      err == nil,
			"command":      command,
		},
		Timestamp: time.Now(),
	}

	if err != nil {
		response.Data.(map[string]interface{})["error"] = err.Error()
	}

	h.sendMessage(client, response)
}

// sendInitialStatus sends the current controller status to a new client
func (h *WebSocketHandler) sendInitialStatus(client *Client) {
	message := &WebSocketMessage{
		Type: "initial_status",
		Data: map[string]interface{}{
			"controller": h.controller.Status(),
		},
		Timestamp: time.Now(),
	}

	h.sendMessage(client, message)
}

// sendMessage sends a message to a client
func (h *WebSocketHandler) sendMessage(client *Client, message *WebSocketMessage) {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Failed to marshal WebSocket message", zap.Error(err))
		return
	}

	select {
	case client.Send <- messageBytes:
	default:
		h.logger.Warn("Client send channel full, dropping message",
			zap.String("client_id", client.ID),
		)
	}
}

// sendError sends an error message to a client
func (h *WebSocketHandler) sendError(client *Client, errorMsg string) {
	message := &WebSocketMessage{
		Type: "error",
		Data: map[string]interface{}{
			"error": errorMsg,
		},
		Timestamp: time.Now(),
	}
	h.sendMessage(client, message)
}

// BroadcastControllerEvent broadcasts a controller event to relevant
// clients. Events carrying a target ID also reach that target's
// watchers. The event type doubles as the subscription topic.
func (h *WebSocketHandler) BroadcastControllerEvent(event *model.ControllerEvent) {
	message := &WebSocketMessage{
		Type: "controller_event",
		Data: map[string]interface{}{
			"event_id":   event.ID.String(),
			"event_type": event.EventType,
			"target_id":  event.TargetID,
			"data":       event.Data,
			"source":     event.Source,
		},
		Timestamp: event.Timestamp,
	}

	topic := string(event.EventType)
	h.broadcastToEventClients(message, topic)
	if event.TargetID != "" {
		h.broadcastToTargetClients(event.TargetID, message, topic)
	}
}

// broadcastToTargetClients broadcasts to clients watching a target
func (h *WebSocketHandler) broadcastToTargetClients(targetID string, message *WebSocketMessage, topic string) {
	clients := h.connections.GetTargetClients(targetID)
	h.broadcastToClients(clients, message, topic)
}

// broadcastToEventClients broadcasts to all event clients
func (h *WebSocketHandler) broadcastToEventClients(message *WebSocketMessage, topic string) {
	clients := h.connections.GetEventClients()
	h.broadcastToClients(clients, message, topic)
}

// broadcastToClients broadcasts message to the clients whose
// subscriptions cover the topic.
func (h *WebSocketHandler) broadcastToClients(clients []*Client, message *WebSocketMessage, topic string) {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Failed to marshal broadcast message", zap.Error(err))
		return
	}

	for _, client := range clients {
		if !client.WantsTopic(topic) {
			continue
		}
		select {
		case client.Send <- messageBytes:
		default:
			h.logger.Warn("Client send channel full during broadcast",
				zap.String("client_id", client.ID),
			)
		}
	}
}

// GetConnectionStats returns connection statistics
func (h *WebSocketHandler) GetConnectionStats() *ConnectionStats {
	return h.connections.GetStats()
}
