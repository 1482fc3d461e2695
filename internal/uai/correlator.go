// internal/uai/correlator.go
package uai

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// outcome is the single terminal result of a pending request. Exactly one
// of the three fields is set.
type outcome struct {
	result     json.RawMessage
	errPayload json.RawMessage
	cause      error
}

// pendingRequest is one outstanding request awaiting its correlated
// response. The done channel is buffered so the read loop never blocks on
// a waiter, and an entry is removed from the table in the same critical
// section that completes it, so exactly one completion is ever written.
type pendingRequest struct {
	id   int64
	done chan outcome
}

// correlator owns the table of outstanding requests and matches the
// controller's asynchronous responses to them by identifier.
type correlator struct {
	mu      sync.Mutex
	nextID  int64
	pending map[int64]*pendingRequest
	closed  error
	logger  *zap.Logger
}

func newCorrelator(logger *zap.Logger) *correlator {
	return &correlator{
		pending: make(map[int64]*pendingRequest),
		logger:  logger,
	}
}

// reset reinitializes the identifier counter and the table for a new
// session. It must only be called while no read loop is running.
func (c *correlator) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID = 0
	c.pending = make(map[int64]*pendingRequest)
	c.closed = nil
}

// issue allocates the next request identifier and registers a pending
// entry for it. Identifiers are strictly increasing within a session,
// starting at 1.
func (c *correlator) issue() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := c.nextID
	p := &pendingRequest{
		id:   id,
		done: make(chan outcome, 1),
	}
	c.pending[id] = p

	// A request issued after the session already terminated must receive
	// the termination cause instead of waiting forever; await reports it
	// for entries the drain never saw.
	if c.closed != nil {
		delete(c.pending, id)
	}
	return id
}

// await blocks until the request reaches its terminal outcome. Callers
// must only await identifiers they issued and have not awaited before.
func (c *correlator) await(ctx context.Context, id int64) (json.RawMessage, error) {
	c.mu.Lock()
	p, ok := c.pending[id]
	closed := c.closed
	c.mu.Unlock()

	if !ok {
		if closed != nil {
			return nil, closed
		}
		return nil, fmt.Errorf("request %d was never issued or has already been awaited", id)
	}

	select {
	case out := <-p.done:
		switch {
		case out.cause != nil:
			return nil, out.cause
		case out.errPayload != nil:
			return nil, &ResponseError{ID: id, Payload: out.errPayload}
		default:
			return out.result, nil
		}
	case <-ctx.Done():
		// The entry stays pending; a late response or session
		// termination will still drain it.
		return nil, ctx.Err()
	}
}

// resolve delivers a success payload to the request's waiter. A response
// for an identifier that is no longer pending is a harmless miss.
func (c *correlator) resolve(id int64, result json.RawMessage) bool {
	return c.complete(id, outcome{result: result})
}

// reject delivers a protocol error payload to the request's waiter.
func (c *correlator) reject(id int64, errPayload json.RawMessage) bool {
	return c.complete(id, outcome{errPayload: errPayload})
}

// abandon removes a pending entry that will never receive a response,
// typically because its request never reached the wire. Responses that
// arrive for an abandoned identifier are treated as misses.
func (c *correlator) abandon(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *correlator) complete(id int64, out outcome) bool {
	c.mu.Lock()
	p, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Debug("Response for a request that is no longer pending",
			zap.Int64("request_id", id),
		)
		return false
	}

	p.done <- out
	return true
}

// terminate atomically drains the table, delivering cause to every
// remaining waiter and to any waiter that arrives later in the same
// session. No request issued before termination is left unresolved and
// no entry is completed twice.
func (c *correlator) terminate(cause error) {
	c.mu.Lock()
	drained := c.pending
	c.pending = make(map[int64]*pendingRequest)
	c.closed = cause
	c.mu.Unlock()

	if len(drained) > 0 {
		c.logger.Info("Failing requests still pending at session end",
			zap.Int("pending", len(drained)),
		)
	}

	for _, p := range drained {
		p.done <- outcome{cause: cause}
	}
}
