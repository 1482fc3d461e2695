// internal/transport/transport.go
package transport

import (
	"context"
	"time"
)

// Kind identifies the stream transport used to reach the controller.
type Kind string

const (
	KindTCP    Kind = "tcp"
	KindSerial Kind = "serial"
)

// Transport represents an ordered byte-stream link to the shade controller.
// Read returns io.EOF when the controller closes its side of the stream.
type Transport interface {
	// Connection lifecycle
	Open(ctx context.Context) error
	Close() error
	IsOpen() bool

	// CloseWrite shuts down the outbound side of the stream where the
	// underlying link supports half-close, and falls back to a full
	// close otherwise. Calling it twice is a no-op.
	CloseWrite() error

	// Data communication
	Write(ctx context.Context, data []byte) error
	Read(ctx context.Context, maxBytes int) ([]byte, error)

	// Transport information
	GetKind() Kind
	Stats() Stats
}

// Stats provides transport-level statistics.
type Stats struct {
	BytesWritten int64     `json:"bytes_written"`
	BytesRead    int64     `json:"bytes_read"`
	ErrorCount   int64     `json:"error_count"`
	LastActivity time.Time `json:"last_activity"`
	IsConnected  bool      `json:"is_connected"`
}
