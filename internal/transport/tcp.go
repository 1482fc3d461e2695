// internal/transport/tcp.go
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TCPConfig holds TCP transport configuration.
type TCPConfig struct {
	Host           string
	Port           int
	TLS            bool
	KeepAlive      bool
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
}

// TCPTransport implements Transport over a TCP (optionally TLS) connection.
type TCPTransport struct {
	config      *TCPConfig
	conn        net.Conn
	logger      *zap.Logger
	mutex       sync.RWMutex
	isOpen      bool
	writeClosed bool
	stats       Stats
}

// NewTCPTransport creates a new TCP transport.
func NewTCPTransport(config *TCPConfig, logger *zap.Logger) *TCPTransport {
	return &TCPTransport{
		config: config,
		logger: logger.With(
			zap.String("transport", "tcp"),
			zap.String("host", config.Host),
			zap.Int("port", config.Port),
		),
	}
}

// Open dials the controller.
func (tt *TCPTransport) Open(ctx context.Context) error {
	tt.mutex.Lock()
	defer tt.mutex.Unlock()

	if tt.isOpen {
		return nil
	}

	tt.logger.Info("Opening TCP connection",
		zap.Bool("tls", tt.config.TLS),
		zap.Duration("connect_timeout", tt.config.ConnectTimeout),
	)

	dialer := &net.Dialer{
		Timeout:   tt.config.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}

	address := fmt.Sprintf("%s:%d", tt.config.Host, tt.config.Port)

	var conn net.Conn
	var err error

	if tt.config.TLS {
		tlsConfig := &tls.Config{
			ServerName: tt.config.Host,
		}
		conn, err = tls.DialWithDialer(dialer, "tcp", address, tlsConfig)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", address)
	}

	if err != nil {
		tt.logger.Error("Failed to open TCP connection", zap.Error(err))
		return fmt.Errorf("failed to connect to %s: %w", address, err)
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok && tt.config.KeepAlive {
		tcpConn.SetKeepAlive(true)
		tcpConn.SetKeepAlivePeriod(30 * time.Second)
	}

	tt.conn = conn
	tt.isOpen = true
	tt.writeClosed = false
	tt.stats.IsConnected = true
	tt.stats.LastActivity = time.Now()

	tt.logger.Info("TCP connection opened successfully")
	return nil
}

// Close closes the TCP connection.
func (tt *TCPTransport) Close() error {
	tt.mutex.Lock()
	defer tt.mutex.Unlock()

	if !tt.isOpen || tt.conn == nil {
		return nil
	}

	if err := tt.conn.Close(); err != nil {
		tt.logger.Error("Failed to close TCP connection", zap.Error(err))
		return fmt.Errorf("failed to close TCP connection: %w", err)
	}

	tt.conn = nil
	tt.isOpen = false
	tt.writeClosed = true
	tt.stats.IsConnected = false

	tt.logger.Info("TCP connection closed")
	return nil
}

// CloseWrite half-closes the connection so the controller observes EOF
// while buffered inbound data can still be drained.
func (tt *TCPTransport) CloseWrite() error {
	tt.mutex.Lock()
	defer tt.mutex.Unlock()

	if !tt.isOpen || tt.conn == nil || tt.writeClosed {
		return nil
	}
	tt.writeClosed = true

	switch c := tt.conn.(type) {
	case *net.TCPConn:
		return c.CloseWrite()
	case *tls.Conn:
		return c.CloseWrite()
	default:
		return tt.conn.Close()
	}
}

// IsOpen returns whether the connection is open.
func (tt *TCPTransport) IsOpen() bool {
	tt.mutex.RLock()
	defer tt.mutex.RUnlock()
	return tt.isOpen && tt.conn != nil
}

// Write writes data to the TCP connection.
func (tt *TCPTransport) Write(ctx context.Context, data []byte) error {
	tt.mutex.RLock()
	defer tt.mutex.RUnlock()

	if !tt.isOpen || tt.conn == nil {
		return fmt.Errorf("TCP connection not open")
	}
	if tt.writeClosed {
		return fmt.Errorf("TCP write side already closed")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if tt.config.WriteTimeout > 0 {
		tt.conn.SetWriteDeadline(time.Now().Add(tt.config.WriteTimeout))
	}

	n, err := tt.conn.Write(data)
	if err != nil {
		tt.stats.ErrorCount++
		tt.logger.Error("TCP write failed", zap.Error(err))
		return fmt.Errorf("failed to write to TCP connection: %w", err)
	}

	if n != len(data) {
		return fmt.Errorf("incomplete write: wrote %d of %d bytes", n, len(data))
	}

	tt.stats.BytesWritten += int64(len(data))
	tt.stats.LastActivity = time.Now()

	tt.logger.Debug("TCP write completed", zap.Int("bytes", len(data)))
	return nil
}

// Read reads at most maxBytes from the TCP connection. It blocks until
// data arrives, the stream ends (io.EOF) or ctx is cancelled.
func (tt *TCPTransport) Read(ctx context.Context, maxBytes int) ([]byte, error) {
	tt.mutex.RLock()
	conn := tt.conn
	open := tt.isOpen
	tt.mutex.RUnlock()

	if !open || conn == nil {
		return nil, fmt.Errorf("TCP connection not open")
	}

	buffer := make([]byte, maxBytes)

	done := make(chan struct {
		data []byte
		err  error
	}, 1)

	go func() {
		n, err := conn.Read(buffer)
		result := struct {
			data []byte
			err  error
		}{}

		if err != nil {
			result.err = err
		}
		if n > 0 {
			result.data = make([]byte, n)
			copy(result.data, buffer[:n])
		}
		done <- result
	}()

	select {
	case result := <-done:
		if result.err != nil {
			return result.data, result.err
		}

		tt.mutex.Lock()
		tt.stats.BytesRead += int64(len(result.data))
		tt.stats.LastActivity = time.Now()
		tt.mutex.Unlock()

		return result.data, nil

	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// GetKind returns the transport kind.
func (tt *TCPTransport) GetKind() Kind {
	return KindTCP
}

// Stats returns transport statistics.
func (tt *TCPTransport) Stats() Stats {
	tt.mutex.RLock()
	defer tt.mutex.RUnlock()
	return tt.stats
}
