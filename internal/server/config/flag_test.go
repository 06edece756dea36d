package config

import (
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	// Test cases
	tests := []struct {
		expected    *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{name: "Test1 OK", args: []string{"cmd",
			"-a", "127.0.0.1:7000", "-w", "/tmp/up", "-cert", "c.pem", "-key", "k.pem", "-dev-tls",
			"-s", "s3", "-sd", "st", "-u", "user", "-p", "password", "-b", "bucket", "-g", "us-west-1", "-e", "http://endpoint",
			"-d", "db", "-rt", "5", "-wt", "6", "-ht", "2", "-health", ":1", "-metrics", ":2", "-mdns", "-n", "nas", "-l", "debug",
		}, expectPanic: false,
			expected: &Config{
				ListenAddr:       "127.0.0.1:7000",
				UploadDir:        "/tmp/up",
				TLSCertFile:      "c.pem",
				TLSKeyFile:       "k.pem",
				DevTLS:           true,
				StorageKind:      "s3",
				StorageDir:       "st",
				S3RootUser:       "user",
				S3RootPassword:   "password",
				S3Bucket:         "bucket",
				S3Region:         "us-west-1",
				S3BaseEndpoint:   "http://endpoint",
				DatabaseDSN:      "db",
				ReadTimeout:      5 * time.Second,
				WriteTimeout:     6 * time.Second,
				HandshakeTimeout: 2 * time.Second,
				HealthAddr:       ":1",
				MetricsAddr:      ":2",
				MDNS:             true,
				InstanceName:     "nas",
				LogLevel:         "debug",
			}},
		{name: "Test2 bad int", args: []string{"cmd", "-rt", "soon"}, expectPanic: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Args = tt.args

			config := &Config{}

			if !tt.expectPanic {

				require.NotPanics(t, func() { parseFlags(config) })
				assert.Empty(t, cmp.Diff(config, tt.expected))
			} else {
				require.Panics(t, func() { parseFlags(config) })
			}
		})
	}
}
