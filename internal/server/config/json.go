package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/securexfer/internal/flagx"
	"github.com/dmitrijs2005/securexfer/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON unmarshalling.
// It uses timex.Duration for interval fields, which allows parsing both
// string values such as "1s" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON configuration
// files. Keys missing from the file keep the value already in Config.
type JsonConfig struct {
	ListenAddr       string         `json:"listen_addr"`
	UploadDir        string         `json:"upload_dir"`
	TLSCertFile      string         `json:"tls_cert_file"`
	TLSKeyFile       string         `json:"tls_key_file"`
	DevTLS           bool           `json:"dev_tls"`
	StorageKind      string         `json:"storage_kind"`
	StorageDir       string         `json:"storage_dir"`
	S3RootUser       string         `json:"s3_root_user"`
	S3RootPassword   string         `json:"s3_root_password"`
	S3Bucket         string         `json:"s3_bucket"`
	S3Region         string         `json:"s3_region"`
	S3BaseEndpoint   string         `json:"s3_base_endpoint"`
	DatabaseDSN      string         `json:"database_dsn"`
	ReadTimeout      timex.Duration `json:"read_timeout"`
	WriteTimeout     timex.Duration `json:"write_timeout"`
	HandshakeTimeout timex.Duration `json:"handshake_timeout"`
	HealthAddr       string         `json:"health_addr"`
	MetricsAddr      string         `json:"metrics_addr"`
	MDNS             bool           `json:"mdns"`
	InstanceName     string         `json:"instance_name"`
	LogLevel         string         `json:"log_level"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The file path comes from the -c or -config command-line flags. If neither
// is set, no JSON file is loaded. If the file cannot be read or contains
// invalid JSON, the function panics.
func parseJson(config *Config) {

	// try flags
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := fromConfig(config)
	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	config.ListenAddr = c.ListenAddr
	config.UploadDir = c.UploadDir
	config.TLSCertFile = c.TLSCertFile
	config.TLSKeyFile = c.TLSKeyFile
	config.DevTLS = c.DevTLS
	config.StorageKind = c.StorageKind
	config.StorageDir = c.StorageDir
	config.S3RootUser = c.S3RootUser
	config.S3RootPassword = c.S3RootPassword
	config.S3Bucket = c.S3Bucket
	config.S3Region = c.S3Region
	config.S3BaseEndpoint = c.S3BaseEndpoint
	config.DatabaseDSN = c.DatabaseDSN
	config.ReadTimeout = c.ReadTimeout.Duration
	config.WriteTimeout = c.WriteTimeout.Duration
	config.HandshakeTimeout = c.HandshakeTimeout.Duration
	config.HealthAddr = c.HealthAddr
	config.MetricsAddr = c.MetricsAddr
	config.MDNS = c.MDNS
	config.InstanceName = c.InstanceName
	config.LogLevel = c.LogLevel
}

func fromConfig(config *Config) *JsonConfig {
	return &JsonConfig{
		ListenAddr:       config.ListenAddr,
		UploadDir:        config.UploadDir,
		TLSCertFile:      config.TLSCertFile,
		TLSKeyFile:       config.TLSKeyFile,
		DevTLS:           config.DevTLS,
		StorageKind:      config.StorageKind,
		StorageDir:       config.StorageDir,
		S3RootUser:       config.S3RootUser,
		S3RootPassword:   config.S3RootPassword,
		S3Bucket:         config.S3Bucket,
		S3Region:         config.S3Region,
		S3BaseEndpoint:   config.S3BaseEndpoint,
		DatabaseDSN:      config.DatabaseDSN,
		ReadTimeout:      timex.Duration{Duration: config.ReadTimeout},
		WriteTimeout:     timex.Duration{Duration: config.WriteTimeout},
		HandshakeTimeout: timex.Duration{Duration: config.HandshakeTimeout},
		HealthAddr:       config.HealthAddr,
		MetricsAddr:      config.MetricsAddr,
		MDNS:             config.MDNS,
		InstanceName:     config.InstanceName,
		LogLevel:         config.LogLevel,
	}
}
