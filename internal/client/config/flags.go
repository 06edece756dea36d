package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/securexfer/internal/flagx"
)

// parseFlags populates Config fields from command-line flags. Unknown flags
// are filtered out first with flagx.FilterArgs. Timeouts are whole seconds.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:],
		[]string{"-a", "-ca", "-sn", "-dd", "-k", "-hdb", "-dt", "-rt", "-wt", "-n", "-bt", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.ServerAddr, "a", config.ServerAddr, "server address and port")
	fs.StringVar(&config.CAFile, "ca", config.CAFile, "CA certificate file")
	fs.StringVar(&config.ServerName, "sn", config.ServerName, "TLS server name")
	fs.StringVar(&config.DownloadDir, "dd", config.DownloadDir, "download directory")
	fs.StringVar(&config.KeysFile, "k", config.KeysFile, "key store file")
	fs.StringVar(&config.HistoryDB, "hdb", config.HistoryDB, "history database file")

	dialTimeout := fs.Int("dt", int(config.DialTimeout.Seconds()), "dial timeout (in seconds)")
	readTimeout := fs.Int("rt", int(config.ReadTimeout.Seconds()), "read timeout (in seconds)")
	writeTimeout := fs.Int("wt", int(config.WriteTimeout.Seconds()), "write timeout (in seconds)")
	fs.IntVar(&config.ConnectAttempts, "ca-n", config.ConnectAttempts, "connect attempts")
	browseTimeout := fs.Int("bt", int(config.BrowseTimeout.Seconds()), "mDNS browse timeout (in seconds)")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.DialTimeout = time.Duration(*dialTimeout) * time.Second
	config.ReadTimeout = time.Duration(*readTimeout) * time.Second
	config.WriteTimeout = time.Duration(*writeTimeout) * time.Second
	config.BrowseTimeout = time.Duration(*browseTimeout) * time.Second
}
