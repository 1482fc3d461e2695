// internal/transport/serial.go
package transport

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"
)

// SerialConfig holds serial transport configuration for controllers
// attached over their RS-232 service port.
type SerialConfig struct {
	Port     string
	BaudRate int
	DataBits int
	StopBits int
	Parity   string
}

// SerialTransport implements Transport over a serial port.
type SerialTransport struct {
	config *SerialConfig
	port   serial.Port
	logger *zap.Logger
	mutex  sync.RWMutex
	isOpen bool
	stats  Stats
}

// NewSerialTransport creates a new serial transport.
func NewSerialTransport(config *SerialConfig, logger *zap.Logger) *SerialTransport {
	return &SerialTransport{
		config: config,
		logger: logger.With(
			zap.String("transport", "serial"),
			zap.String("port", config.Port),
		),
	}
}

// Open opens the serial port.
func (st *SerialTransport) Open(ctx context.Context) error {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	if st.isOpen {
		return nil
	}

	st.logger.Info("Opening serial port",
		zap.Int("baud_rate", st.config.BaudRate),
	)

	mode := &serial.Mode{
		BaudRate: st.config.BaudRate,
		DataBits: st.config.DataBits,
		StopBits: serial.StopBits(st.config.StopBits),
	}

	switch st.config.Parity {
	case "odd":
		mode.Parity = serial.OddParity
	case "even":
		mode.Parity = serial.EvenParity
	default:
		mode.Parity = serial.NoParity
	}

	port, err := serial.Open(st.config.Port, mode)
	if err != nil {
		st.logger.Error("Failed to open serial port", zap.Error(err))
		return fmt.Errorf("failed to open serial port: %w", err)
	}

	st.port = port
	st.isOpen = true
	st.stats.IsConnected = true
	st.stats.LastActivity = time.Now()

	st.logger.Info("Serial port opened successfully")
	return nil
}

// Close closes the serial port.
func (st *SerialTransport) Close() error {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	if !st.isOpen || st.port == nil {
		return nil
	}

	if err := st.port.Close(); err != nil {
		st.logger.Error("Failed to close serial port", zap.Error(err))
		return fmt.Errorf("failed to close serial port: %w", err)
	}

	st.port = nil
	st.isOpen = false
	st.stats.IsConnected = false

	st.logger.Info("Serial port closed")
	return nil
}

// CloseWrite closes the port. Serial links have no half-close.
func (st *SerialTransport) CloseWrite() error {
	return st.Close()
}

// IsOpen returns whether the port is open.
func (st *SerialTransport) IsOpen() bool {
	st.mutex.RLock()
	defer st.mutex.RUnlock()
	return st.isOpen && st.port != nil
}

// Write writes data to the serial port.
func (st *SerialTransport) Write(ctx context.Context, data []byte) error {
	st.mutex.RLock()
	port := st.port
	open := st.isOpen
	st.mutex.RUnlock()

	if !open || port == nil {
		return fmt.Errorf("serial port not open")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	n, err := port.Write(data)
	if err != nil {
		st.mutex.Lock()
		st.stats.ErrorCount++
		st.mutex.Unlock()
		st.logger.Error("Serial write failed", zap.Error(err))
		return fmt.Errorf("failed to write to serial port: %w", err)
	}

	if n != len(data) {
		return fmt.Errorf("incomplete write: wrote %d of %d bytes", n, len(data))
	}

	st.mutex.Lock()
	st.stats.BytesWritten += int64(len(data))
	st.stats.LastActivity = time.Now()
	st.mutex.Unlock()

	st.logger.Debug("Serial write completed", zap.Int("bytes", len(data)))
	return nil
}

// Read reads at most maxBytes from the serial port. A zero-byte read
// from the port is reported as io.EOF.
func (st *SerialTransport) Read(ctx context.Context, maxBytes int) ([]byte, error) {
	st.mutex.RLock()
	port := st.port
	open := st.isOpen
	st.mutex.RUnlock()

	if !open || port == nil {
		return nil, fmt.Errorf("serial port not open")
	}

	buffer := make([]byte, maxBytes)

	done := make(chan struct {
		data []byte
		err  error
	}, 1)

	go func() {
		n, err := port.Read(buffer)
		result := struct {
			data []byte
			err  error
		}{}

		if err != nil {
			result.err = err
		} else if n == 0 {
			result.err = io.EOF
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

		st.mutex.Lock()
		st.stats.BytesRead += int64(len(result.data))
		st.stats.LastActivity = time.Now()
		st.mutex.Unlock()

		return result.data, nil

	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// GetKind returns the transport kind.
func (st *SerialTransport) GetKind() Kind {
	return KindSerial
}

// Stats returns transport statistics.
func (st *SerialTransport) Stats() Stats {
	st.mutex.RLock()
	defer st.mutex.RUnlock()
	return st.stats
}
