package config

import (
	"time"

	"github.com/dmitrijs2005/securexfer/internal/common"
)

// Config holds runtime settings for the securexfer client.
type Config struct {
	ServerAddr string
	// CAFile is the PEM bundle trusted for the server certificate. Empty
	// falls back to the system roots.
	CAFile     string
	ServerName string

	DownloadDir string
	KeysFile    string
	// HistoryDB is the SQLite history file; empty disables the history.
	HistoryDB string

	DialTimeout     time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ConnectAttempts int
	RetryDelay      time.Duration

	BrowseTimeout time.Duration
	LogLevel      string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerAddr = "127.0.0.1:5001"
	c.CAFile = "certs/server.crt"
	c.ServerName = ""
	c.DownloadDir = "downloads"
	c.KeysFile = common.DefaultKeysFile
	c.HistoryDB = "history.db"
	c.DialTimeout = 30 * time.Second
	c.ReadTimeout = 30 * time.Second
	c.WriteTimeout = 30 * time.Second
	c.ConnectAttempts = 3
	c.RetryDelay = time.Second
	c.BrowseTimeout = 3 * time.Second
	c.LogLevel = "warn"
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
