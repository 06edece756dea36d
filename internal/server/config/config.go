// Package config handles configuration for the server component,
// including defaults, JSON overlay, and command-line flags.
package config

import "time"

// Storage kinds.
const (
	StorageS3   = "s3"
	StorageDir  = "dir"
	StorageNone = "none"
)

// Config holds runtime settings for the transfer server.
//
// Fields:
//   - ListenAddr: bind address of the TLS transfer listener.
//   - UploadDir: staging directory; also the final destination when storage is "none".
//   - TLSCertFile / TLSKeyFile: PEM certificate and key presented to clients.
//   - DevTLS: generate a throwaway self-signed certificate instead of loading files.
//   - StorageKind: "s3", "dir" or "none" (remote storage disabled).
//   - StorageDir: root directory of the "dir" backend.
//   - S3RootUser / S3RootPassword / S3Bucket / S3Region / S3BaseEndpoint: S3-compatible store.
//   - DatabaseDSN: PostgreSQL DSN (pgx) of the file catalog; empty disables the catalog.
//   - ReadTimeout / WriteTimeout: per-operation socket deadlines.
//   - HandshakeTimeout: TLS handshake deadline per accepted connection.
//   - HealthAddr / MetricsAddr: gRPC health and Prometheus endpoints; empty disables each.
//   - MDNS / InstanceName: announce the listener on the local network.
//   - LogLevel: debug, info, warn or error.
type Config struct {
	ListenAddr       string
	UploadDir        string
	TLSCertFile      string
	TLSKeyFile       string
	DevTLS           bool
	StorageKind      string
	StorageDir       string
	S3RootUser       string
	S3RootPassword   string
	S3Bucket         string
	S3Region         string
	S3BaseEndpoint   string
	DatabaseDSN      string
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	HandshakeTimeout time.Duration
	HealthAddr       string
	MetricsAddr      string
	MDNS             bool
	InstanceName     string
	LogLevel         string
}

// LoadDefaults populates Config with sensible development defaults.
// NOTE: These values are insecure for production and should be overridden.
func (c *Config) LoadDefaults() {
	c.ListenAddr = ":5001"
	c.UploadDir = "uploads"
	c.TLSCertFile = "certs/server.crt"
	c.TLSKeyFile = "certs/server.key"
	c.DevTLS = false
	c.StorageKind = StorageDir
	c.StorageDir = "storage"
	c.S3RootUser = "admin"
	c.S3RootPassword = "secretpassword"
	c.S3Bucket = "securexfer"
	c.S3Region = "us-east-1"
	c.S3BaseEndpoint = "http://127.0.0.1:9000/"
	c.DatabaseDSN = ""
	c.ReadTimeout = 30 * time.Second
	c.WriteTimeout = 30 * time.Second
	c.HandshakeTimeout = 10 * time.Second
	c.HealthAddr = ":5002"
	c.MetricsAddr = ":9100"
	c.MDNS = false
	c.InstanceName = "securexfer"
	c.LogLevel = "info"
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
