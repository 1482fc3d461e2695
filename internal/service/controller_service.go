// internal/service/controller_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"shade-service/internal/config"
	"shade-service/internal/model"
	"shade-service/internal/transport"
	"shade-service/internal/uai"
	"shade-service/internal/utils"
)

// EventPublisher receives controller events for distribution to
// subscribers. The WebSocket layer implements it.
type EventPublisher interface {
	PublishEvent(event *model.ControllerEvent)
}

// ControllerStatus represents the current session state
type ControllerStatus struct {
	Connected      bool       `json:"connected"`
	Transport      string     `json:"transport"`
	ConnectedAt    *time.Time `json:"connected_at,omitempty"`
	LastDisconnect *string    `json:"last_disconnect_cause,omitempty"`
	Supervised     bool       `json:"supervised"`
}

// ControllerService owns the controller session lifecycle. The protocol
// client itself never retries; reconnection policy lives here.
type ControllerService struct {
	client        *uai.Client
	config        *config.Config
	logger        *utils.ServiceLogger
	sessionLogger *utils.SessionLogger
	publisher     EventPublisher

	mu          sync.RWMutex
	running     bool
	connectedAt *time.Time
	lastCause   error

	disconnects chan error
	stop        chan struct{}
	done        chan struct{}
}

// NewControllerService creates a controller service from configuration
func NewControllerService(cfg *config.Config, logger *zap.Logger) (*ControllerService, error) {
	transportConfig, err := buildTransportConfig(&cfg.Controller)
	if err != nil {
		return nil, fmt.Errorf("invalid controller transport config: %w", err)
	}

	tr, err := transport.New(transportConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create controller transport: %w", err)
	}

	cs := &ControllerService{
		config:        cfg,
		logger:        utils.NewServiceLogger(logger, "controller-service"),
		sessionLogger: utils.NewSessionLogger(logger, cfg.Controller.Transport),
		disconnects:   make(chan error, 1),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}

	clientConfig := &uai.Config{
		User:           cfg.Controller.User,
		Password:       cfg.Controller.Password,
		ConnectTimeout: cfg.Controller.ConnectTimeout,
		ReadBufferSize: cfg.Controller.ReadBufferSize,
	}

	cs.client = uai.New(clientConfig, tr, uai.Callbacks{
		OnReady:        cs.onReady,
		OnDisconnected: cs.onDisconnected,
	}, logger)

	return cs, nil
}

// buildTransportConfig maps controller configuration onto the transport
// factory configuration.
func buildTransportConfig(cfg *config.ControllerConfig) (*transport.Config, error) {
	switch cfg.Transport {
	case "tcp":
		return &transport.Config{
			Kind: transport.KindTCP,
			TCP: transport.TCPConfig{
				Host:           cfg.Host,
				Port:           cfg.Port,
				TLS:            cfg.TLS,
				KeepAlive:      true,
				ConnectTimeout: cfg.ConnectTimeout,
			},
		}, nil
	case "serial":
		return &transport.Config{
			Kind: transport.KindSerial,
			Serial: transport.SerialConfig{
				Port:     cfg.Serial.Port,
				BaudRate: cfg.Serial.BaudRate,
				DataBits: cfg.Serial.DataBits,
				StopBits: cfg.Serial.StopBits,
				Parity:   cfg.Serial.Parity,
			},
		}, nil
	default:
		return nil, fmt.Errorf("unsupported transport: %s", cfg.Transport)
	}
}

// SetEventPublisher wires the event distribution sink. Must be called
// before Start.
func (cs *ControllerService) SetEventPublisher(publisher EventPublisher) {
	cs.publisher = publisher
}

// Client exposes the protocol client for command execution
func (cs *ControllerService) Client() *uai.Client {
	return cs.client
}

// Start establishes the controller session. With reconnect enabled the
// session is supervised in the background and Start returns after the
// first connection attempt is scheduled; otherwise Start blocks until
// the session is operational or fails.
func (cs *ControllerService) Start(ctx context.Context) error {
	cs.mu.Lock()
	if cs.running {
		cs.mu.Unlock()
		return fmt.Errorf("controller service already started")
	}
	cs.running = true
	cs.mu.Unlock()

	if cs.config.Controller.Reconnect.Enabled {
		go cs.supervise()
		cs.logger.Info("Controller session supervision started",
			zap.Duration("delay", cs.config.Controller.Reconnect.Delay),
			zap.Duration("max_delay", cs.config.Controller.Reconnect.MaxDelay),
		)
		return nil
	}

	close(cs.done)
	return cs.connect(ctx)
}

// Stop tears the session down and stops supervision
func (cs *ControllerService) Stop(ctx context.Context) error {
	cs.mu.Lock()
	if !cs.running {
		cs.mu.Unlock()
		return nil
	}
	cs.running = false
	cs.mu.Unlock()

	close(cs.stop)

	if err := cs.client.Disconnect(ctx); err != nil {
		cs.logger.Warn("Controller disconnect failed", zap.Error(err))
	}

	select {
	case <-cs.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	cs.logger.Info("Controller service stopped")
	return nil
}

// Status returns the current session status
func (cs *ControllerService) Status() *ControllerStatus {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	status := &ControllerStatus{
		Connected:   cs.client.Operational(),
		Transport:   cs.config.Controller.Transport,
		ConnectedAt: cs.connectedAt,
		Supervised:  cs.config.Controller.Reconnect.Enabled,
	}

	if cs.lastCause != nil {
		cause := cs.lastCause.Error()
		status.LastDisconnect = &cause
	}

	return status
}

// connect drives a single connection attempt through to an operational
// session.
func (cs *ControllerService) connect(ctx context.Context) error {
	attemptCtx, cancel := context.WithTimeout(ctx, cs.config.Controller.ConnectTimeout)
	defer cancel()

	if err := cs.client.Connect(attemptCtx); err != nil {
		return fmt.Errorf("failed to connect to controller: %w", err)
	}

	if err := cs.client.AwaitReady(attemptCtx); err != nil {
		return fmt.Errorf("controller handshake failed: %w", err)
	}

	return nil
}

// supervise reconnects the session with exponential backoff until the
// service is stopped. Credential failures end supervision: retrying a
// rejected login cannot succeed.
func (cs *ControllerService) supervise() {
	defer close(cs.done)

	reconnect := cs.config.Controller.Reconnect
	delay := reconnect.Delay

	for {
		err := cs.connect(context.Background())
		if err != nil {
			cs.drainDisconnects()

			if errors.Is(err, uai.ErrInvalidUser) || errors.Is(err, uai.ErrInvalidPassword) {
				cs.logger.Error("Controller rejected credentials, supervision stopped", zap.Error(err))
				return
			}

			cs.logger.Warn("Controller connection attempt failed",
				zap.Error(err),
				zap.Duration("retry_in", delay),
			)

			select {
			case <-cs.stop:
				return
			case <-time.After(delay):
			}

			delay = cs.nextDelay(delay)
			continue
		}

		delay = reconnect.Delay

		select {
		case <-cs.stop:
			return
		case cause := <-cs.disconnects:
			cs.sessionLogger.LogSession("session lost", cause)

			select {
			case <-cs.stop:
				return
			case <-time.After(delay):
			}
		}
	}
}

// nextDelay computes the next backoff delay
func (cs *ControllerService) nextDelay(current time.Duration) time.Duration {
	reconnect := cs.config.Controller.Reconnect

	next := time.Duration(float64(current) * reconnect.Multiplier)
	if next > reconnect.MaxDelay {
		next = reconnect.MaxDelay
	}
	if next < reconnect.Delay {
		next = reconnect.Delay
	}
	return next
}

// drainDisconnects discards a pending disconnect notification left over
// from a failed connection attempt.
func (cs *ControllerService) drainDisconnects() {
	select {
	case <-cs.disconnects:
	default:
	}
}

// onReady handles the session becoming operational
func (cs *ControllerService) onReady() {
	now := time.Now()

	cs.mu.Lock()
	cs.connectedAt = &now
	cs.lastCause = nil
	cs.mu.Unlock()

	cs.sessionLogger.LogSession("session established", nil)
	cs.publish(&model.ControllerEvent{
		ID:        uuid.New(),
		EventType: model.EventControllerConnected,
		Data:      model.JSONObject{"connected_at": now},
		Timestamp: now,
		Source:    "controller",
	})
}

// onDisconnected handles session termination
func (cs *ControllerService) onDisconnected(cause error) {
	now := time.Now()

	cs.mu.Lock()
	cs.connectedAt = nil
	cs.lastCause = cause
	cs.mu.Unlock()

	cs.publish(&model.ControllerEvent{
		ID:        uuid.New(),
		EventType: model.EventControllerDisconnected,
		Data: model.JSONObject{
			"cause":           cause.Error(),
			"disconnected_at": now,
		},
		Timestamp: now,
		Source:    "controller",
	})

	select {
	case cs.disconnects <- cause:
	default:
	}
}

// publish forwards an event to the publisher when one is wired
func (cs *ControllerService) publish(event *model.ControllerEvent) {
	if cs.publisher != nil {
		cs.publisher.PublishEvent(event)
	}
}
