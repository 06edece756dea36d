package cli

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/securexfer/internal/client/client"
	"github.com/dmitrijs2005/securexfer/internal/client/config"
	"github.com/dmitrijs2005/securexfer/internal/client/keystore"
	"github.com/dmitrijs2005/securexfer/internal/client/repositories/history"
	"github.com/dmitrijs2005/securexfer/internal/common"
	"github.com/dmitrijs2005/securexfer/internal/discovery"
	"github.com/dmitrijs2005/securexfer/internal/logging"
	"github.com/dmitrijs2005/securexfer/internal/tlsx"
	"github.com/dmitrijs2005/securexfer/internal/transport"
	"go.uber.org/multierr"
)

// getSimpleText and getPassphrase are indirections used to facilitate testing.
var getSimpleText = GetSimpleText
var getPassphrase = GetPassphrase

// App is the interactive client front end. It only drives the public
// operations of client.FileClient.
type App struct {
	config *config.Config
	log    logging.Logger
	client *client.FileClient
	keys   *keystore.Store
	db     *sql.DB

	// passphrase is kept once the key store was sealed or opened sealed,
	// so later saves stay sealed.
	passphrase []byte

	reader *bufio.Reader
	out    io.Writer
	browse func(ctx context.Context) ([]discovery.Server, error)
}

// NewApp wires TLS, the transport, the key store and the optional history
// database from c.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stderr, c.LogLevel)

	tlsCfg, err := tlsx.ClientConfig(c.CAFile, c.ServerName)
	if err != nil {
		return nil, err
	}

	tcfg := transport.DefaultClientConfig(c.ServerAddr, tlsCfg)
	tcfg.DialTimeout = c.DialTimeout
	tcfg.Session.ReadTimeout = c.ReadTimeout
	tcfg.Session.WriteTimeout = c.WriteTimeout
	tcfg.ConnectAttempts = c.ConnectAttempts
	tcfg.RetryDelay = c.RetryDelay
	tr := transport.NewClient(tcfg, logger)

	keys := keystore.New()
	opts := []client.Option{client.WithLogger(logger)}

	var db *sql.DB
	if c.HistoryDB != "" {
		db, err = client.InitDatabase(ctx, c.HistoryDB)
		if err != nil {
			return nil, fmt.Errorf("history database: %w", err)
		}
		opts = append(opts, client.WithHistory(history.NewSQLiteRepository(db)))
	}

	fc, err := client.NewFileClient(tr, keys, c.DownloadDir, opts...)
	if err != nil {
		if db != nil {
			_ = db.Close()
		}
		return nil, err
	}

	a := newApp(c, fc, keys, logger)
	a.db = db
	return a, nil
}

func newApp(c *config.Config, fc *client.FileClient, keys *keystore.Store, logger logging.Logger) *App {
	a := &App{
		config: c,
		log:    logger,
		client: fc,
		keys:   keys,
		reader: bufio.NewReader(os.Stdin),
		out:    os.Stdout,
	}
	a.browse = func(ctx context.Context) ([]discovery.Server, error) {
		return discovery.Browse(ctx, discovery.Config{BrowseTimeout: c.BrowseTimeout})
	}
	return a
}

// Run loads the key store and runs the REPL until the user exits.
func (a *App) Run(ctx context.Context) error {
	defer func() {
		if err := a.Close(); err != nil {
			a.log.Error(ctx, "shutdown", "error", err)
		}
	}()

	if err := a.openKeyStore(a.config.KeysFile); err != nil && !errors.Is(err, common.ErrNotFound) {
		fmt.Fprintln(a.out, "Could not load keys:", err)
	}
	a.Root(ctx)
	return nil
}

// openKeyStore loads path, asking for the passphrase when the file is sealed.
func (a *App) openKeyStore(path string) error {
	sealed, err := keystore.IsSealed(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", common.ErrNotFound, path)
		}
		return fmt.Errorf("%w: %v", common.ErrFilesystem, err)
	}

	var passphrase []byte
	if sealed {
		passphrase, err = getPassphrase(a.out, "Key store passphrase: ")
		if err != nil {
			return err
		}
	}
	if err := a.keys.Load(path, passphrase); err != nil {
		common.WipeByteArray(passphrase)
		return err
	}
	if sealed {
		a.setPassphrase(passphrase)
	}
	return nil
}

// saveKeyStore writes the key store to path, sealed when a passphrase is set.
func (a *App) saveKeyStore(path string) error {
	if a.passphrase != nil {
		return a.keys.SaveSealed(path, a.passphrase)
	}
	return a.keys.Save(path)
}

func (a *App) setPassphrase(p []byte) {
	common.WipeByteArray(a.passphrase)
	a.passphrase = p
}

// Close disconnects and releases the history database.
func (a *App) Close() error {
	var err error
	if a.client != nil {
		err = multierr.Append(err, a.client.Disconnect())
	}
	if a.db != nil {
		err = multierr.Append(err, a.db.Close())
	}
	a.setPassphrase(nil)
	return err
}
