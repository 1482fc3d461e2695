// internal/uai/framing_test.go
package uai

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func collectLines(r *reassembler) []string {
	var lines []string
	for {
		line, ok := r.nextLine()
		if !ok {
			return lines
		}
		lines = append(lines, string(line))
	}
}

// Reassembling a stream must produce the same message sequence no matter
// how the bytes are split across read chunks.
func TestReassemblerChunkBoundaryInvariance(t *testing.T) {
	t.Parallel()

	stream := "{\"id\":1,\"result\":5}\n{\"id\":2,\"error\":\"busy\"}\r\n{\"id\":3,\"result\":null}\n"
	want := []string{
		`{"id":1,"result":5}`,
		`{"id":2,"error":"busy"}`,
		`{"id":3,"result":null}`,
	}

	for split := 1; split <= len(stream); split++ {
		var r reassembler
		var got []string
		for i := 0; i < len(stream); i += split {
			end := i + split
			if end > len(stream) {
				end = len(stream)
			}
			r.feed([]byte(stream[i:end]))
			got = append(got, collectLines(&r)...)
		}
		require.Equal(t, want, got, "split size %d", split)
		require.Zero(t, r.pending())
	}
}

func TestReassemblerRetainsPartialLine(t *testing.T) {
	t.Parallel()

	var r reassembler
	r.feed([]byte("{\"id\":1,\"result\":5}\n{\"id\":2,"))

	line, ok := r.nextLine()
	require.True(t, ok)
	require.Equal(t, `{"id":1,"result":5}`, string(line))

	_, ok = r.nextLine()
	require.False(t, ok)
	require.Equal(t, len(`{"id":2,`), r.pending())

	r.feed([]byte("\"result\":7}\n"))
	line, ok = r.nextLine()
	require.True(t, ok)
	require.Equal(t, `{"id":2,"result":7}`, string(line))
}

func TestReassemblerTokenMatching(t *testing.T) {
	t.Parallel()

	var r reassembler

	// A partial token must not match and must stay buffered.
	r.feed([]byte("Use"))
	require.False(t, r.consumeToken(userPrompt))
	require.Equal(t, 3, r.pending())

	r.feed([]byte("r:"))
	require.True(t, r.consumeToken(userPrompt))
	require.Zero(t, r.pending())

	// A token followed by more content consumes only the token.
	r.feed([]byte(connectedBanner + `{"id":1,"result":5}` + "\n"))
	require.True(t, r.consumeToken(connectedBanner))

	line, ok := r.nextLine()
	require.True(t, ok)
	require.Equal(t, `{"id":1,"result":5}`, string(line))
}
