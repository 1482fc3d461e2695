// internal/transport/factory.go
package transport

import (
	"fmt"

	"go.uber.org/zap"
)

// Config selects and parameterizes the transport for the controller link.
type Config struct {
	Kind   Kind
	TCP    TCPConfig
	Serial SerialConfig
}

// New creates a transport from configuration.
func New(config *Config, logger *zap.Logger) (Transport, error) {
	switch config.Kind {
	case KindTCP:
		if config.TCP.Host == "" {
			return nil, fmt.Errorf("TCP host is required")
		}
		logger.Info("Creating TCP transport",
			zap.String("host", config.TCP.Host),
			zap.Int("port", config.TCP.Port),
			zap.Bool("tls", config.TCP.TLS),
		)
		return NewTCPTransport(&config.TCP, logger), nil

	case KindSerial:
		if config.Serial.Port == "" {
			return nil, fmt.Errorf("serial port is required")
		}
		logger.Info("Creating serial transport",
			zap.String("port", config.Serial.Port),
			zap.Int("baud_rate", config.Serial.BaudRate),
		)
		return NewSerialTransport(&config.Serial, logger), nil

	default:
		return nil, fmt.Errorf("unsupported transport kind: %s", config.Kind)
	}
}
