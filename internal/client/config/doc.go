// Package config loads runtime configuration for the securexfer client.
//
// Sources are applied in order, later ones winning:
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected with -c or -config.
//  3. Command-line flags.
//
// Supported flags
//
//	-a string    server address (host:port)
//	-ca string   CA certificate bundle (PEM)
//	-sn string   expected server name for TLS verification
//	-dd string   download directory
//	-k string    key store file
//	-hdb string  history database file ("" disables)
//	-dt int      dial timeout, seconds
//	-rt int      read timeout, seconds
//	-wt int      write timeout, seconds
//	-n int      connect attempts
//	-bt int      mDNS browse timeout, seconds
//	-l string    log level
//
// Durations in JSON accept strings such as "3s" or integer nanoseconds:
//
//	{
//	  "server_addr": "nas.local:5001",
//	  "read_timeout": "30s",
//	  "history_db": ""
//	}
package config
