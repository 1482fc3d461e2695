// internal/uai/client_test.go
package uai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"shade-service/internal/transport"
)

// fakeTransport is a scripted in-memory transport. Tests feed inbound
// chunks and observe outbound writes through channels.
type fakeTransport struct {
	mu        sync.Mutex
	chunks    chan []byte
	writes    chan []byte
	open      bool
	eofSent   bool
	failOpen  bool
	failWrite bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{}
}

func (f *fakeTransport) Open(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOpen {
		return errors.New("dial failed")
	}
	f.chunks = make(chan []byte, 64)
	f.writes = make(chan []byte, 64)
	f.open = true
	f.eofSent = false
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.open = false
	f.mu.Unlock()
	f.sendEOF()
	return nil
}

// CloseWrite simulates the half-close handshake: the controller answers
// a FIN by closing its side, which the read loop sees as EOF.
func (f *fakeTransport) CloseWrite() error {
	f.sendEOF()
	return nil
}

func (f *fakeTransport) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakeTransport) Read(ctx context.Context, maxBytes int) ([]byte, error) {
	select {
	case chunk, ok := <-f.chunks:
		if !ok {
			return nil, io.EOF
		}
		return chunk, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeTransport) Write(ctx context.Context, data []byte) error {
	f.mu.Lock()
	fail := f.failWrite
	f.mu.Unlock()
	if fail {
		return errors.New("write failed")
	}
	f.writes <- append([]byte(nil), data...)
	return nil
}

func (f *fakeTransport) setFailWrite(fail bool) {
	f.mu.Lock()
	f.failWrite = fail
	f.mu.Unlock()
}

func (f *fakeTransport) GetKind() transport.Kind {
	return transport.KindTCP
}

func (f *fakeTransport) Stats() transport.Stats {
	return transport.Stats{}
}

func (f *fakeTransport) feed(s string) {
	f.chunks <- []byte(s)
}

func (f *fakeTransport) sendEOF() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.chunks != nil && !f.eofSent {
		f.eofSent = true
		close(f.chunks)
	}
}

func (f *fakeTransport) expectWrite(t *testing.T, want string) {
	t.Helper()
	select {
	case got := <-f.writes:
		require.Equal(t, want, string(got))
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for write %q", want)
	}
}

func (f *fakeTransport) nextWrite(t *testing.T) []byte {
	t.Helper()
	select {
	case got := <-f.writes:
		return got
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a write")
		return nil
	}
}

// recorder counts lifecycle notifications.
type recorder struct {
	mu           sync.Mutex
	readyCount   int
	disconnected int
	lastCause    error
}

func (rec *recorder) callbacks() Callbacks {
	return Callbacks{
		OnReady: func() {
			rec.mu.Lock()
			defer rec.mu.Unlock()
			rec.readyCount++
		},
		OnDisconnected: func(cause error) {
			rec.mu.Lock()
			defer rec.mu.Unlock()
			rec.disconnected++
			rec.lastCause = cause
		},
	}
}

func (rec *recorder) snapshot() (int, int, error) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.readyCount, rec.disconnected, rec.lastCause
}

func newTestClient(t *testing.T) (*Client, *fakeTransport, *recorder) {
	t.Helper()
	ft := newFakeTransport()
	rec := &recorder{}
	client := New(
		&Config{User: "installer", Password: "secret"},
		ft,
		rec.callbacks(),
		zap.NewNop(),
	)
	return client, ft, rec
}

// negotiate drives the login handshake to its operational state.
func negotiate(t *testing.T, ctx context.Context, client *Client, ft *fakeTransport) {
	t.Helper()
	ft.feed("User:")
	ft.expectWrite(t, "installer\r")
	ft.feed("Password:")
	ft.expectWrite(t, "secret\r")
	ft.feed("Connected:\n\x00")
	require.NoError(t, client.AwaitReady(ctx))
}

func TestClientNegotiatesAndResolvesResponse(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, ft, rec := newTestClient(t)
	require.NoError(t, client.Connect(ctx))

	ft.feed("User:")
	ft.expectWrite(t, "installer\r")
	ft.feed("Password:")
	ft.expectWrite(t, "secret\r")

	// A request is already outstanding when the banner and its response
	// arrive in the same chunk.
	id := client.correlator.issue()
	require.Equal(t, int64(1), id)

	ft.feed("Connected:\n\x00{\"id\":1,\"result\":5}\n")

	require.NoError(t, client.AwaitReady(ctx))
	ready, _, _ := rec.snapshot()
	require.Equal(t, 1, ready, "ready notification fires before AwaitReady unblocks")

	result, err := client.correlator.await(ctx, id)
	require.NoError(t, err)
	require.JSONEq(t, `5`, string(result))
	require.True(t, client.Operational())

	require.NoError(t, client.Disconnect(ctx))
	_, disconnected, _ := rec.snapshot()
	require.Equal(t, 1, disconnected)
}

func TestClientHandshakeFailures(t *testing.T) {
	t.Parallel()

	type step struct {
		feed      string
		wantWrite string
	}

	testcases := []struct {
		description string
		steps       []step
		wantErr     error
	}{
		{
			description: "repeated user prompt means the user was rejected",
			steps: []step{
				{feed: "User:", wantWrite: "installer\r"},
				{feed: "User:"},
			},
			wantErr: ErrInvalidUser,
		},
		{
			description: "password prompt before user prompt violates the handshake",
			steps: []step{
				{feed: "Password:"},
			},
			wantErr: ErrProtocolViolation,
		},
		{
			description: "repeated password prompt means the password was rejected",
			steps: []step{
				{feed: "User:", wantWrite: "installer\r"},
				{feed: "Password:", wantWrite: "secret\r"},
				{feed: "Password:"},
			},
			wantErr: ErrInvalidPassword,
		},
	}

	for _, tc := range testcases {
		tc := tc
		t.Run(tc.description, func(t *testing.T) {
			t.Parallel()

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			client, ft, rec := newTestClient(t)
			require.NoError(t, client.Connect(ctx))

			for _, s := range tc.steps {
				ft.feed(s.feed)
				if s.wantWrite != "" {
					ft.expectWrite(t, s.wantWrite)
				}
			}

			err := client.AwaitReady(ctx)
			require.ErrorIs(t, err, tc.wantErr)

			require.NoError(t, client.Disconnect(ctx))
			ready, disconnected, cause := rec.snapshot()
			require.Zero(t, ready)
			require.Equal(t, 1, disconnected)
			require.ErrorIs(t, cause, tc.wantErr)
		})
	}
}

func TestClientEOFFailsPendingRequests(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, ft, rec := newTestClient(t)
	require.NoError(t, client.Connect(ctx))
	negotiate(t, ctx, client, ft)

	callErr := make(chan error, 1)
	go func() {
		_, err := client.GetTargetPosition(ctx, "shade-3")
		callErr <- err
	}()

	// The request reaches the wire, then the stream ends with no reply.
	ft.nextWrite(t)
	ft.sendEOF()

	err := <-callErr
	var closedErr *ClosedError
	require.ErrorAs(t, err, &closedErr)

	require.NoError(t, client.Disconnect(ctx))
	_, disconnected, _ := rec.snapshot()
	require.Equal(t, 1, disconnected)
}

func TestClientIgnoresUnsolicitedResponse(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, ft, rec := newTestClient(t)
	require.NoError(t, client.Connect(ctx))
	negotiate(t, ctx, client, ft)

	// No pending request with id 7 exists; the message must be dropped
	// without affecting the session.
	ft.feed("{\"id\":7,\"error\":\"busy\"}\n")

	type posResult struct {
		pos int
		err error
	}
	position := make(chan posResult, 1)
	go func() {
		pos, err := client.GetTargetPosition(ctx, "shade-3")
		position <- posResult{pos: pos, err: err}
	}()

	ft.nextWrite(t)
	ft.feed("{\"id\":1,\"result\":25}\n")
	got := <-position
	require.NoError(t, got.err)
	require.Equal(t, 25, got.pos)

	_, disconnected, _ := rec.snapshot()
	require.Zero(t, disconnected)
}

func TestClientRejectsRequestsBeforeNegotiation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, ft, _ := newTestClient(t)
	require.NoError(t, client.Connect(ctx))

	_, err := client.GetTargetPosition(ctx, "shade-3")
	require.ErrorIs(t, err, ErrNotReady)
	require.Empty(t, ft.writes, "a not-ready request must not touch the transport")

	require.NoError(t, client.Disconnect(ctx))
}

func TestClientIdentifierResetAcrossSessions(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, ft, _ := newTestClient(t)

	requestID := func(raw []byte) int64 {
		var req request
		require.NoError(t, json.Unmarshal(raw[:len(raw)-1], &req)) // trim trailing CR
		return req.ID
	}

	require.NoError(t, client.Connect(ctx))
	negotiate(t, ctx, client, ft)

	for want := int64(1); want <= 2; want++ {
		errCh := make(chan error, 1)
		go func() {
			err := client.MoveTargetUp(ctx, "shade-1")
			errCh <- err
		}()
		raw := ft.nextWrite(t)
		require.Equal(t, want, requestID(raw))
		ft.feed(fmt.Sprintf("{\"id\":%d,\"result\":true}\n", want))
		require.NoError(t, <-errCh)
	}

	require.NoError(t, client.Disconnect(ctx))

	// A reconnect starts a fresh session: the counter restarts at 1.
	require.NoError(t, client.Connect(ctx))
	negotiate(t, ctx, client, ft)

	errCh := make(chan error, 1)
	go func() {
		errCh <- client.MoveTargetDown(ctx, "shade-1")
	}()
	raw := ft.nextWrite(t)
	require.Equal(t, int64(1), requestID(raw))
	ft.feed("{\"id\":1,\"result\":true}\n")
	require.NoError(t, <-errCh)

	require.NoError(t, client.Disconnect(ctx))
}

// A slow disconnect observer must not let the old session's teardown leak
// into a session started afterwards: Disconnect returns only once the read
// loop has fully unwound, callback included.
func TestClientReconnectAfterSlowDisconnectCallback(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ft := newFakeTransport()
	var mu sync.Mutex
	disconnected := 0
	client := New(
		&Config{User: "installer", Password: "secret"},
		ft,
		Callbacks{
			OnDisconnected: func(error) {
				time.Sleep(300 * time.Millisecond)
				mu.Lock()
				disconnected++
				mu.Unlock()
			},
		},
		zap.NewNop(),
	)

	require.NoError(t, client.Connect(ctx))
	negotiate(t, ctx, client, ft)

	require.NoError(t, client.Disconnect(ctx))
	mu.Lock()
	count := disconnected
	mu.Unlock()
	require.Equal(t, 1, count, "Disconnect must not return while the callback is still running")

	// The fresh session starts un-negotiated: AwaitReady blocks until its
	// own handshake completes instead of unblocking from leftovers of the
	// previous session.
	require.NoError(t, client.Connect(ctx))
	require.False(t, client.Operational())

	waitCtx, waitCancel := context.WithTimeout(ctx, 150*time.Millisecond)
	defer waitCancel()
	require.ErrorIs(t, client.AwaitReady(waitCtx), context.DeadlineExceeded)

	// Requests on the new session carry its own fate, not the old cause.
	negotiate(t, ctx, client, ft)
	errCh := make(chan error, 1)
	go func() {
		errCh <- client.MoveTargetUp(ctx, "shade-1")
	}()
	ft.nextWrite(t)
	ft.feed("{\"id\":1,\"result\":true}\n")
	require.NoError(t, <-errCh)

	require.NoError(t, client.Disconnect(ctx))
}

// A write failure that does not end the session must not leave the failed
// request pending forever.
func TestClientFailedWriteAbandonsPendingRequest(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, ft, rec := newTestClient(t)
	require.NoError(t, client.Connect(ctx))
	negotiate(t, ctx, client, ft)

	ft.setFailWrite(true)
	_, err := client.GetTargetPosition(ctx, "shade-3")
	require.ErrorContains(t, err, "write failed")

	// The session survives and the failed request left nothing behind.
	require.True(t, client.Operational())
	client.correlator.mu.Lock()
	pending := len(client.correlator.pending)
	client.correlator.mu.Unlock()
	require.Zero(t, pending, "a request that never reached the wire must not stay pending")

	// A late response for the abandoned identifier is a harmless miss,
	// and the identifier is not reused by the next request.
	ft.setFailWrite(false)
	ft.feed("{\"id\":1,\"result\":10}\n")

	errCh := make(chan error, 1)
	go func() {
		errCh <- client.MoveTargetUp(ctx, "shade-1")
	}()
	raw := ft.nextWrite(t)
	var req request
	require.NoError(t, json.Unmarshal(raw[:len(raw)-1], &req))
	require.Equal(t, int64(2), req.ID)
	ft.feed("{\"id\":2,\"result\":true}\n")
	require.NoError(t, <-errCh)

	_, disconnectedCount, _ := rec.snapshot()
	require.Zero(t, disconnectedCount)

	require.NoError(t, client.Disconnect(ctx))
}

func TestClientDisconnectIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, ft, rec := newTestClient(t)
	require.NoError(t, client.Connect(ctx))
	negotiate(t, ctx, client, ft)

	require.NoError(t, client.Disconnect(ctx))
	require.NoError(t, client.Disconnect(ctx))

	_, disconnected, _ := rec.snapshot()
	require.Equal(t, 1, disconnected)
	require.False(t, client.Operational())
}

func TestClientConnectFailureLeavesClientDisconnected(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ft := newFakeTransport()
	ft.failOpen = true
	client := New(&Config{User: "installer", Password: "secret"}, ft, Callbacks{}, zap.NewNop())

	require.Error(t, client.Connect(ctx))
	require.False(t, client.Operational())

	// A failed connect holds no session open; Disconnect returns at once.
	require.NoError(t, client.Disconnect(ctx))

	// The client can be retried.
	ft.failOpen = false
	require.NoError(t, client.Connect(ctx))
	require.NoError(t, client.Disconnect(ctx))
}

func TestClientErrorResponseDoesNotEndSession(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, ft, rec := newTestClient(t)
	require.NoError(t, client.Connect(ctx))
	negotiate(t, ctx, client, ft)

	errCh := make(chan error, 1)
	go func() {
		_, err := client.GetTargetInfo(ctx, "shade-9")
		errCh <- err
	}()

	ft.nextWrite(t)
	ft.feed("{\"id\":1,\"error\":\"unknown target\"}\n")

	err := <-errCh
	var respErr *ResponseError
	require.ErrorAs(t, err, &respErr)
	require.Equal(t, "status.info", respErr.Method)
	require.JSONEq(t, `"unknown target"`, string(respErr.Payload))

	require.True(t, client.Operational())
	_, disconnected, _ := rec.snapshot()
	require.Zero(t, disconnected)
}

// The same inbound stream must negotiate and resolve identically no
// matter how it is split into read chunks.
func TestClientChunkBoundaryInvariance(t *testing.T) {
	t.Parallel()

	stream := "User:Password:Connected:\n\x00{\"id\":1,\"result\":5}\n"

	for _, split := range []int{1, 2, 3, 5, 7, len(stream)} {
		split := split
		t.Run(fmt.Sprintf("split-%d", split), func(t *testing.T) {
			t.Parallel()

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			client, ft, _ := newTestClient(t)
			require.NoError(t, client.Connect(ctx))

			id := client.correlator.issue()
			require.Equal(t, int64(1), id)

			for i := 0; i < len(stream); i += split {
				end := i + split
				if end > len(stream) {
					end = len(stream)
				}
				ft.feed(stream[i:end])
			}

			ft.expectWrite(t, "installer\r")
			ft.expectWrite(t, "secret\r")
			require.NoError(t, client.AwaitReady(ctx))

			result, err := client.correlator.await(ctx, id)
			require.NoError(t, err)
			require.JSONEq(t, `5`, string(result))

			require.NoError(t, client.Disconnect(ctx))
		})
	}
}
