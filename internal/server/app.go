// Package server initializes and runs the transfer server application.
// It builds the storage backend and the optional Postgres catalog, starts the
// TLS transfer listener together with the health, metrics and mDNS
// announcer, and handles graceful shutdown.
package server

import (
	"context"
	"crypto/tls"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dmitrijs2005/securexfer/internal/discovery"
	"github.com/dmitrijs2005/securexfer/internal/logging"
	"github.com/dmitrijs2005/securexfer/internal/server/config"
	"github.com/dmitrijs2005/securexfer/internal/server/metrics"
	"github.com/dmitrijs2005/securexfer/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/securexfer/internal/server/services"
	"github.com/dmitrijs2005/securexfer/internal/server/transfer"
	"github.com/dmitrijs2005/securexfer/internal/storage"
	"github.com/dmitrijs2005/securexfer/internal/tlsx"
	"github.com/dmitrijs2005/securexfer/internal/transport"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	gs "github.com/dmitrijs2005/securexfer/internal/server/grpc"
)

var _ transfer.Observer = (*metrics.Metrics)(nil)

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	metrics  *metrics.Metrics
	transfer *transfer.Server
	health   *gs.HealthServer
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)
	return newApp(ctx, c, logger)
}

func newApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	tlsCfg, err := loadTLS(ctx, c, logger)
	if err != nil {
		return nil, fmt.Errorf("tls init error: %w", err)
	}

	backend, err := newBackend(ctx, c, logger)
	if err != nil {
		return nil, fmt.Errorf("storage init error: %w", err)
	}

	app := &App{config: c, logger: logger, metrics: metrics.New()}

	if c.DatabaseDSN != "" && backend != nil {
		db, err := repomanager.OpenPostgres(ctx, c.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("db init error: %w", err)
		}
		rm, err := repomanager.NewPostgresRepositoryManager(db)
		if err == nil {
			err = rm.RunMigrations(ctx, db)
		}
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("db init error: %w", err)
		}
		app.db = db
		backend = storage.NewCataloged(backend, services.NewCatalogService(db, rm), logger)
	}

	srv, err := transfer.NewServer(transfer.Config{
		UploadDir:        c.UploadDir,
		HandshakeTimeout: c.HandshakeTimeout,
		Session: transport.SessionOptions{
			ReadTimeout:  c.ReadTimeout,
			WriteTimeout: c.WriteTimeout,
		},
	}, tlsCfg, backend, logger, transfer.WithObserver(app.metrics))
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.transfer = srv
	app.health = gs.NewHealthServer(c.HealthAddr, logger)

	return app, nil
}

func loadTLS(ctx context.Context, c *config.Config, logger logging.Logger) (*tls.Config, error) {
	if !c.DevTLS {
		return tlsx.ServerConfig(c.TLSCertFile, c.TLSKeyFile)
	}

	ss, err := tlsx.GenerateSelfSigned()
	if err != nil {
		return nil, err
	}
	certFile, _, err := ss.WriteFiles(filepath.Dir(c.TLSCertFile))
	if err != nil {
		return nil, err
	}
	logger.Warn(ctx, "using a generated self-signed certificate", "cert", certFile)
	return ss.ServerTLS()
}

// newBackend returns a nil Backend for storage kind "none".
func newBackend(ctx context.Context, c *config.Config, logger logging.Logger) (storage.Backend, error) {
	switch c.StorageKind {
	case config.StorageS3:
		return storage.NewS3Backend(ctx, storage.S3Config{
			Region:       c.S3Region,
			RootUser:     c.S3RootUser,
			RootPassword: c.S3RootPassword,
			BaseEndpoint: c.S3BaseEndpoint,
			Bucket:       c.S3Bucket,
		}, logger)
	case config.StorageDir:
		return storage.NewDirBackend(c.StorageDir, logger)
	case config.StorageNone, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown storage kind %q", c.StorageKind)
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run serves until ctx is cancelled, a signal arrives or a component fails.
func (app *App) Run(ctx context.Context) error {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	if err := app.transfer.Listen(app.config.ListenAddr); err != nil {
		return multierr.Append(err, app.Close())
	}
	app.logger.Info(ctx, "Starting transfer server", "address", app.transfer.Addr().String())

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return app.transfer.Serve(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		app.health.SetServing(false)
		app.logger.Info(context.Background(), "Stopping transfer server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return app.transfer.Shutdown(shutdownCtx)
	})

	if app.config.HealthAddr != "" {
		g.Go(func() error { return app.health.Run(gctx) })
	}
	if app.config.MetricsAddr != "" {
		g.Go(func() error { return app.metrics.Serve(gctx, app.config.MetricsAddr, app.logger) })
	}

	if app.config.MDNS {
		if a, err := app.announce(); err != nil {
			app.logger.Warn(ctx, "mDNS announce failed", "error", err)
		} else {
			defer a.Stop()
		}
	}

	app.health.SetServing(true)

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	app.logger.Info(context.Background(), "App stopped")
	return multierr.Append(err, app.Close())
}

func (app *App) announce() (*discovery.Announcer, error) {
	addr, ok := app.transfer.Addr().(*net.TCPAddr)
	if !ok {
		return nil, errors.New("listener has no TCP address")
	}
	return discovery.Announce(discovery.Config{
		Instance: app.config.InstanceName,
		Port:     addr.Port,
	})
}

// Close releases the catalog connection.
func (app *App) Close() error {
	if app.db == nil {
		return nil
	}
	err := app.db.Close()
	app.db = nil
	return err
}
