// internal/uai/correlator_test.go
package uai

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCorrelatorIssuesIncreasingIdentifiers(t *testing.T) {
	t.Parallel()

	c := newCorrelator(zap.NewNop())
	require.Equal(t, int64(1), c.issue())
	require.Equal(t, int64(2), c.issue())
	require.Equal(t, int64(3), c.issue())

	c.reset()
	require.Equal(t, int64(1), c.issue())
}

func TestCorrelatorResolveDeliversResult(t *testing.T) {
	t.Parallel()

	c := newCorrelator(zap.NewNop())
	id := c.issue()

	require.True(t, c.resolve(id, json.RawMessage(`42`)))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	result, err := c.await(ctx, id)
	require.NoError(t, err)
	require.JSONEq(t, `42`, string(result))
}

func TestCorrelatorRejectDeliversResponseError(t *testing.T) {
	t.Parallel()

	c := newCorrelator(zap.NewNop())
	id := c.issue()

	require.True(t, c.reject(id, json.RawMessage(`"busy"`)))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := c.await(ctx, id)
	var respErr *ResponseError
	require.ErrorAs(t, err, &respErr)
	require.Equal(t, id, respErr.ID)
	require.JSONEq(t, `"busy"`, string(respErr.Payload))
}

func TestCorrelatorAwaitUnissuedIdentifier(t *testing.T) {
	t.Parallel()

	c := newCorrelator(zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := c.await(ctx, 99)
	require.Error(t, err)
}

func TestCorrelatorTerminateDrainsEveryPendingRequest(t *testing.T) {
	t.Parallel()

	c := newCorrelator(zap.NewNop())
	ids := []int64{c.issue(), c.issue(), c.issue()}

	cause := &ClosedError{Cause: errors.New("link dropped")}
	c.terminate(cause)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for _, id := range ids {
		_, err := c.await(ctx, id)
		var closedErr *ClosedError
		require.ErrorAs(t, err, &closedErr)
	}

	// The table is empty; a late response for a drained id is a no-op.
	require.False(t, c.resolve(ids[0], json.RawMessage(`1`)))
	require.False(t, c.reject(ids[1], json.RawMessage(`"x"`)))
}

func TestCorrelatorIssueAfterTerminationReportsCause(t *testing.T) {
	t.Parallel()

	c := newCorrelator(zap.NewNop())
	cause := &ClosedError{Cause: errors.New("link dropped")}
	c.terminate(cause)

	id := c.issue()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := c.await(ctx, id)
	var closedErr *ClosedError
	require.ErrorAs(t, err, &closedErr)
}

func TestCorrelatorAwaitBlocksUntilResolution(t *testing.T) {
	t.Parallel()

	c := newCorrelator(zap.NewNop())
	id := c.issue()

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, err := c.await(ctx, id)
		done <- err
	}()

	// Resolution from another goroutine releases the waiter.
	time.Sleep(10 * time.Millisecond)
	require.True(t, c.resolve(id, json.RawMessage(`true`)))
	require.NoError(t, <-done)
}
