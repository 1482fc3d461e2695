// internal/uai/client.go
package uai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"shade-service/internal/transport"
)

const (
	defaultConnectTimeout = 5 * time.Second
	defaultReadBufferSize = 1024
)

// Config holds client configuration. The transport address lives in the
// transport configuration; the client only needs the login credentials
// and session tuning.
type Config struct {
	User           string
	Password       string
	ConnectTimeout time.Duration
	ReadBufferSize int
}

// Callbacks are the lifecycle notifications exposed to the owning
// application. OnReady fires exactly once per successful negotiation,
// before AwaitReady unblocks. OnDisconnected fires exactly once per
// termination with the termination cause.
type Callbacks struct {
	OnReady        func()
	OnDisconnected func(cause error)
}

// Client is a stateful client for the controller's line-oriented remote
// control protocol. It drives the login handshake, reassembles the byte
// stream into discrete messages, correlates asynchronous responses to
// requests by identifier and unwinds all outstanding work when the
// session terminates. A Client may be reconnected after a disconnect;
// Connect fully reinitializes the per-session state.
type Client struct {
	config    *Config
	transport transport.Transport
	callbacks Callbacks
	logger    *zap.Logger

	correlator *correlator

	mu            sync.Mutex
	negotiated    bool
	cause         *ClosedError
	ready         chan struct{}
	readySignaled bool
	loopDone      chan struct{}
	loopActive    bool
}

// New creates a client for the controller reachable over tr.
func New(config *Config, tr transport.Transport, callbacks Callbacks, logger *zap.Logger) *Client {
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = defaultConnectTimeout
	}
	if config.ReadBufferSize <= 0 {
		config.ReadBufferSize = defaultReadBufferSize
	}

	closedDone := make(chan struct{})
	close(closedDone)

	return &Client{
		config:     config,
		transport:  tr,
		callbacks:  callbacks,
		logger:     logger.With(zap.String("component", "uai-client")),
		correlator: newCorrelator(logger),
		loopDone:   closedDone,
	}
}

// Connect resets all per-session state, opens the transport within the
// configured establishment timeout and starts the read loop. It does not
// wait for the login handshake; use AwaitReady for that. On failure the
// client is left in a not-connected state and may be retried.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.loopActive {
		c.mu.Unlock()
		return ErrSessionActive
	}
	c.negotiated = false
	c.cause = nil
	c.ready = make(chan struct{})
	c.readySignaled = false
	c.loopDone = make(chan struct{})
	c.loopActive = true
	c.mu.Unlock()

	c.correlator.reset()

	openCtx, cancel := context.WithTimeout(ctx, c.config.ConnectTimeout)
	defer cancel()

	if err := c.transport.Open(openCtx); err != nil {
		c.mu.Lock()
		c.loopActive = false
		close(c.loopDone)
		c.mu.Unlock()
		return fmt.Errorf("failed to establish controller connection: %w", err)
	}

	go c.readLoop()

	c.logger.Info("Controller connection established, negotiating")
	return nil
}

// AwaitReady blocks until the login handshake reaches its operational
// state or the session terminates first. On a failed negotiation it
// returns the captured termination cause.
func (c *Client) AwaitReady(ctx context.Context) error {
	c.mu.Lock()
	ready := c.ready
	c.mu.Unlock()

	if ready == nil {
		return fmt.Errorf("AwaitReady called before Connect")
	}

	select {
	case <-ready:
	case <-ctx.Done():
		return ctx.Err()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cause != nil {
		return c.cause
	}
	return nil
}

// Disconnect closes the outbound side of the transport and blocks until
// the read loop has fully unwound, so no partially torn-down state is
// observable after it returns. Calling it again is a no-op that waits on
// the same unwind.
func (c *Client) Disconnect(ctx context.Context) error {
	if err := c.transport.CloseWrite(); err != nil {
		c.logger.Warn("Failed to close transport write side", zap.Error(err))
	}

	c.mu.Lock()
	done := c.loopDone
	c.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Operational reports whether the login handshake has completed and the
// session is accepting requests.
func (c *Client) Operational() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.negotiated
}

// Call issues a request identifier, writes the request to the controller
// and waits for the correlated response. It fails with ErrNotReady before
// negotiation completes, with a ResponseError when the controller answers
// with an error payload, and with a ClosedError when the session
// terminates before the response arrives.
func (c *Client) Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	if !c.Operational() {
		return nil, fmt.Errorf("%s: %w", method, ErrNotReady)
	}

	id := c.correlator.issue()

	payload, err := json.Marshal(request{ID: id, Method: method, Params: params})
	if err != nil {
		c.correlator.abandon(id)
		return nil, fmt.Errorf("failed to encode %s request: %w", method, err)
	}

	if err := c.send(ctx, payload, false); err != nil {
		// The request never reached the wire, so no response will ever
		// carry this identifier. Dropping the entry keeps the table from
		// growing when a write fails but the session itself survives.
		c.correlator.abandon(id)
		return nil, fmt.Errorf("failed to send %s request: %w", method, err)
	}

	result, err := c.correlator.await(ctx, id)
	if err != nil {
		var respErr *ResponseError
		if errors.As(err, &respErr) {
			respErr.Method = method
		}
		return nil, err
	}
	return result, nil
}

// send writes one CR-terminated command to the controller. Ordinary
// requests require a negotiated session; the two credential
// transmissions bypass that guard with immediate set.
func (c *Client) send(ctx context.Context, command []byte, immediate bool) error {
	if !immediate && !c.Operational() {
		return ErrNotReady
	}

	line := make([]byte, 0, len(command)+1)
	line = append(line, command...)
	line = append(line, '\r')
	return c.transport.Write(ctx, line)
}

// readLoop is the single long-lived goroutine per session. It reads raw
// chunks, routes them through the negotiator until the session is
// operational and afterwards dispatches complete lines to the
// correlator. On end-of-stream or any failure it records the termination
// cause, signals completion, fires the disconnected notification and
// drains the correlation table.
func (c *Client) readLoop() {
	var (
		r       reassembler
		neg     negotiator
		loopErr error
	)
	ctx := context.Background()

	for {
		chunk, err := c.transport.Read(ctx, c.config.ReadBufferSize)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				loopErr = err
			}
			break
		}
		if len(chunk) == 0 {
			break
		}

		r.feed(chunk)
		if err := c.process(ctx, &r, &neg); err != nil {
			loopErr = err
			break
		}
	}

	if loopErr != nil {
		// Best-effort teardown so a failed session does not leave a
		// half-open link behind.
		go c.transport.Close()
	}

	closed := &ClosedError{Cause: loopErr}

	c.mu.Lock()
	c.negotiated = false
	c.cause = closed
	c.mu.Unlock()

	if loopErr != nil {
		c.logger.Warn("Controller session ended", zap.Error(loopErr))
	} else {
		c.logger.Info("Controller session ended")
	}

	if c.callbacks.OnDisconnected != nil {
		c.callbacks.OnDisconnected(closed)
	}
	c.signalReady()
	c.correlator.terminate(closed)

	// loopDone must close last: Disconnect waits on it and guarantees the
	// session is fully torn down on return, and Connect refuses to reuse
	// the client while the tail above is still running.
	c.mu.Lock()
	c.loopActive = false
	close(c.loopDone)
	c.mu.Unlock()
}

// process consumes every complete protocol unit currently buffered. A
// single chunk may carry a prompt token immediately followed by complete
// lines, so after the handshake finishes the remainder of the same chunk
// is re-evaluated as operational-phase input.
func (c *Client) process(ctx context.Context, r *reassembler, neg *negotiator) error {
	for !neg.operational() {
		event, err := neg.step(r)
		if err != nil {
			return err
		}

		switch event {
		case eventSendUser:
			c.logger.Debug("User prompt received, sending user",
				zap.String("user", c.config.User),
			)
			if err := c.send(ctx, []byte(c.config.User), true); err != nil {
				return err
			}
		case eventSendPassword:
			c.logger.Debug("Password prompt received, sending password")
			if err := c.send(ctx, []byte(c.config.Password), true); err != nil {
				return err
			}
		case eventReady:
			c.logger.Info("Controller connection negotiated")
			c.markReady()
		case eventNone:
			// Incomplete prompt; wait for more bytes.
			return nil
		}
	}

	for {
		line, ok := r.nextLine()
		if !ok {
			return nil
		}
		c.dispatch(line)
	}
}

// dispatch routes one operational-phase line to the correlator. Lines
// that do not parse, carry neither result nor error, or reference an
// identifier that is no longer pending are misses, not session errors.
func (c *Client) dispatch(line []byte) {
	if len(bytes.TrimSpace(line)) == 0 {
		return
	}

	resp, err := parseResponse(line)
	if err != nil {
		c.logger.Warn("Discarding unparseable controller message",
			zap.ByteString("line", line),
			zap.Error(err),
		)
		return
	}

	switch {
	case resp.Result != nil:
		c.correlator.resolve(resp.ID, resp.Result)
	case resp.Error != nil:
		c.correlator.reject(resp.ID, resp.Error)
	default:
		c.logger.Debug("Controller message carries neither result nor error",
			zap.Int64("request_id", resp.ID),
		)
	}
}

// markReady transitions the session into its operational state. The
// ready notification completes before any AwaitReady waiter is released.
func (c *Client) markReady() {
	c.mu.Lock()
	c.negotiated = true
	c.mu.Unlock()

	if c.callbacks.OnReady != nil {
		c.callbacks.OnReady()
	}
	c.signalReady()
}

// signalReady releases AwaitReady waiters exactly once per session.
func (c *Client) signalReady() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ready != nil && !c.readySignaled {
		c.readySignaled = true
		close(c.ready)
	}
}
