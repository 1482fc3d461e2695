// internal/service/controller_service_test.go
package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"shade-service/internal/config"
	"shade-service/internal/transport"
)

func newBackoffService(t *testing.T) *ControllerService {
	t.Helper()

	cfg := &config.Config{}
	cfg.Controller.Reconnect = config.ReconnectConfig{
		Enabled:    true,
		Delay:      2 * time.Second,
		MaxDelay:   time.Minute,
		Multiplier: 2.0,
	}

	return &ControllerService{config: cfg}
}

func TestNextDelayBackoff(t *testing.T) {
	t.Parallel()

	cs := newBackoffService(t)

	delay := cs.config.Controller.Reconnect.Delay
	require.Equal(t, "2s", delay.String())

	delay = cs.nextDelay(delay)
	require.Equal(t, "4s", delay.String())

	delay = cs.nextDelay(delay)
	require.Equal(t, "8s", delay.String())

	// Capped at the configured maximum
	for i := 0; i < 10; i++ {
		delay = cs.nextDelay(delay)
	}
	require.Equal(t, cs.config.Controller.Reconnect.MaxDelay, delay)
}

func TestBuildTransportConfig(t *testing.T) {
	t.Parallel()

	cases := []struct {
		description string
		controller  config.ControllerConfig
		wantKind    transport.Kind
		wantErr     bool
	}{
		{
			description: "tcp transport",
			controller: config.ControllerConfig{
				Transport:      "tcp",
				Host:           "192.168.1.50",
				Port:           23,
				ConnectTimeout: 5 * time.Second,
			},
			wantKind: transport.KindTCP,
		},
		{
			description: "serial transport",
			controller: config.ControllerConfig{
				Transport: "serial",
				Serial: config.SerialConfig{
					Port:     "/dev/ttyUSB0",
					BaudRate: 9600,
					DataBits: 8,
					StopBits: 1,
					Parity:   "none",
				},
			},
			wantKind: transport.KindSerial,
		},
		{
			description: "unknown transport rejected",
			controller:  config.ControllerConfig{Transport: "pigeon"},
			wantErr:     true,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.description, func(t *testing.T) {
			t.Parallel()

			got, err := buildTransportConfig(&tc.controller)
			if tc.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			require.Equal(t, tc.wantKind, got.Kind)
		})
	}
}
