// internal/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func flagsWithConfig(t *testing.T, path string) *pflag.FlagSet {
	t.Helper()

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("config", "", "")
	require.NoError(t, flags.Parse([]string{"--config", path}))
	return flags
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, `
controller:
  transport: tcp
  host: 192.168.1.50
  user: installer
  password: secret
`)

	cfg, err := Load(flagsWithConfig(t, path))
	require.NoError(t, err)

	require.Equal(t, "8086", cfg.Server.Port)
	require.Equal(t, 23, cfg.Controller.Port)
	require.Equal(t, 5*time.Second, cfg.Controller.ConnectTimeout)
	require.Equal(t, 1024, cfg.Controller.ReadBufferSize)
	require.True(t, cfg.Controller.Reconnect.Enabled)
	require.Equal(t, 2*time.Second, cfg.Controller.Reconnect.Delay)
}

func TestLoadValidation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		description string
		content     string
		wantErr     string
	}{
		{
			description: "tcp transport requires host",
			content: `
controller:
  transport: tcp
  user: installer
  password: secret
`,
			wantErr: "host",
		},
		{
			description: "serial transport requires port",
			content: `
controller:
  transport: serial
  user: installer
  password: secret
`,
			wantErr: "serial",
		},
		{
			description: "credentials are required",
			content: `
controller:
  transport: tcp
  host: 192.168.1.50
`,
			wantErr: "user",
		},
		{
			description: "unknown transport rejected",
			content: `
controller:
  transport: carrier-pigeon
  user: installer
  password: secret
`,
			wantErr: "transport",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.description, func(t *testing.T) {
			t.Parallel()

			path := writeConfigFile(t, tc.content)
			_, err := Load(flagsWithConfig(t, path))
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestGetDatabaseDSNAndServerAddr(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, `
server:
  host: 127.0.0.1
  port: "9090"
database:
  host: db.internal
  port: 5433
  user: shade
  password: pw
  dbname: shades
  sslmode: disable
controller:
  transport: tcp
  host: 192.168.1.50
  user: installer
  password: secret
`)

	cfg, err := Load(flagsWithConfig(t, path))
	require.NoError(t, err)

	require.Equal(t, "127.0.0.1:9090", cfg.GetServerAddr())
	require.Contains(t, cfg.GetDatabaseDSN(), "host=db.internal")
	require.Contains(t, cfg.GetDatabaseDSN(), "port=5433")
	require.Contains(t, cfg.GetDatabaseDSN(), "dbname=shades")
}
