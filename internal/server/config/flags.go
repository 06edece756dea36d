package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/securexfer/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   transfer listen address (e.g., ":5001")
//	-w string   upload (staging) directory
//	-cert string, -key string   TLS certificate and key files
//	-dev-tls    use a generated self-signed certificate
//	-s string   storage kind: s3, dir or none
//	-sd string  storage directory for the dir backend
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-d string   PostgreSQL DSN of the file catalog
//	-rt int     read timeout, seconds
//	-wt int     write timeout, seconds
//	-ht int     TLS handshake timeout, seconds
//	-health string, -metrics string   auxiliary endpoints
//	-mdns       announce over mDNS
//	-n string   mDNS instance name
//	-l string   log level
//
// Notes:
//   - The function first filters os.Args to only the flags it recognizes using
//     flagx.FilterArgs, avoiding collisions with other components.
//   - Timeout flags are accepted as integers in seconds and then converted
//     to time.Duration values.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:],
		[]string{"-a", "-w", "-cert", "-key", "-s", "-sd", "-u", "-p", "-b", "-g", "-e", "-d", "-rt", "-wt", "-ht", "-health", "-metrics", "-n", "-l"},
		"-dev-tls", "-mdns")

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.ListenAddr, "a", config.ListenAddr, "address and port to run server")
	fs.StringVar(&config.UploadDir, "w", config.UploadDir, "upload directory")
	fs.StringVar(&config.TLSCertFile, "cert", config.TLSCertFile, "TLS certificate file")
	fs.StringVar(&config.TLSKeyFile, "key", config.TLSKeyFile, "TLS key file")
	fs.BoolVar(&config.DevTLS, "dev-tls", config.DevTLS, "generate a self-signed certificate")

	fs.StringVar(&config.StorageKind, "s", config.StorageKind, "storage kind (s3, dir, none)")
	fs.StringVar(&config.StorageDir, "sd", config.StorageDir, "storage directory")
	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 root bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 root region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")

	readTimeout := fs.Int("rt", int(config.ReadTimeout.Seconds()), "read timeout (in seconds)")
	writeTimeout := fs.Int("wt", int(config.WriteTimeout.Seconds()), "write timeout (in seconds)")
	handshakeTimeout := fs.Int("ht", int(config.HandshakeTimeout.Seconds()), "handshake timeout (in seconds)")

	fs.StringVar(&config.HealthAddr, "health", config.HealthAddr, "gRPC health address")
	fs.StringVar(&config.MetricsAddr, "metrics", config.MetricsAddr, "metrics address")
	fs.BoolVar(&config.MDNS, "mdns", config.MDNS, "announce over mDNS")
	fs.StringVar(&config.InstanceName, "n", config.InstanceName, "mDNS instance name")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.ReadTimeout = time.Duration(*readTimeout) * time.Second
	config.WriteTimeout = time.Duration(*writeTimeout) * time.Second
	config.HandshakeTimeout = time.Duration(*handshakeTimeout) * time.Second
}
