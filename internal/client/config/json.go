package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/securexfer/internal/flagx"
	"github.com/dmitrijs2005/securexfer/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It relies on
// timex.Duration so JSON can specify intervals either as strings like "3s"
// or as integer nanoseconds. Keys missing from the file keep the value
// already in Config.
type JsonConfig struct {
	ServerAddr      string         `json:"server_addr"`
	CAFile          string         `json:"ca_file"`
	ServerName      string         `json:"server_name"`
	DownloadDir     string         `json:"download_dir"`
	KeysFile        string         `json:"keys_file"`
	HistoryDB       string         `json:"history_db"`
	DialTimeout     timex.Duration `json:"dial_timeout"`
	ReadTimeout     timex.Duration `json:"read_timeout"`
	WriteTimeout    timex.Duration `json:"write_timeout"`
	ConnectAttempts int            `json:"connect_attempts"`
	RetryDelay      timex.Duration `json:"retry_delay"`
	BrowseTimeout   timex.Duration `json:"browse_timeout"`
	LogLevel        string         `json:"log_level"`
}

// parseJson overlays Config with values loaded from the JSON file named by
// -c or -config. It panics on read or unmarshal errors.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	jc := JsonConfig{
		ServerAddr:      cfg.ServerAddr,
		CAFile:          cfg.CAFile,
		ServerName:      cfg.ServerName,
		DownloadDir:     cfg.DownloadDir,
		KeysFile:        cfg.KeysFile,
		HistoryDB:       cfg.HistoryDB,
		DialTimeout:     timex.Duration{Duration: cfg.DialTimeout},
		ReadTimeout:     timex.Duration{Duration: cfg.ReadTimeout},
		WriteTimeout:    timex.Duration{Duration: cfg.WriteTimeout},
		ConnectAttempts: cfg.ConnectAttempts,
		RetryDelay:      timex.Duration{Duration: cfg.RetryDelay},
		BrowseTimeout:   timex.Duration{Duration: cfg.BrowseTimeout},
		LogLevel:        cfg.LogLevel,
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	cfg.ServerAddr = jc.ServerAddr
	cfg.CAFile = jc.CAFile
	cfg.ServerName = jc.ServerName
	cfg.DownloadDir = jc.DownloadDir
	cfg.KeysFile = jc.KeysFile
	cfg.HistoryDB = jc.HistoryDB
	cfg.DialTimeout = jc.DialTimeout.Duration
	cfg.ReadTimeout = jc.ReadTimeout.Duration
	cfg.WriteTimeout = jc.WriteTimeout.Duration
	cfg.ConnectAttempts = jc.ConnectAttempts
	cfg.RetryDelay = jc.RetryDelay.Duration
	cfg.BrowseTimeout = jc.BrowseTimeout.Duration
	cfg.LogLevel = jc.LogLevel
}
