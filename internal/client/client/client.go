package client

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/dmitrijs2005/securexfer/internal/client/keystore"
	"github.com/dmitrijs2005/securexfer/internal/client/models"
	"github.com/dmitrijs2005/securexfer/internal/client/repositories/history"
	"github.com/dmitrijs2005/securexfer/internal/filex"
	"github.com/dmitrijs2005/securexfer/internal/logging"
	"github.com/dmitrijs2005/securexfer/internal/wire"
)

// Transport is the connection FileClient talks through. *transport.Client
// implements it.
type Transport interface {
	Addr() string
	SetAddr(addr string)
	Connected() bool
	Connect(ctx context.Context) error
	Disconnect() error
	SendMessage(ctx context.Context, env wire.Envelope) (wire.Envelope, error)
	ReceiveMessage() (wire.Envelope, error)
	SendRaw(r io.Reader, n int64) error
	RecvRaw(w io.Writer, n int64) (int64, error)
}

// Client-side checksum checkpoints.
const (
	CheckpointPostDownload = "post_download"
	CheckpointPostDecrypt  = "post_decrypt"
)

// FileClient runs one exchange at a time over a Transport.
type FileClient struct {
	tr          Transport
	keys        *keystore.Store
	history     history.Repository
	downloadDir string
	log         logging.Logger

	// one exchange at a time: raw payload bytes must not interleave
	mu sync.Mutex
}

// Option customizes a FileClient.
type Option func(*FileClient)

// WithHistory records completed transfers in repo.
func WithHistory(repo history.Repository) Option {
	return func(c *FileClient) { c.history = repo }
}

// WithLogger replaces the no-op logger.
func WithLogger(l logging.Logger) Option {
	return func(c *FileClient) {
		if l != nil {
			c.log = l
		}
	}
}

// NewFileClient creates a client that stores downloads under downloadDir.
// The directory is created when missing. A nil keys store starts empty.
func NewFileClient(tr Transport, keys *keystore.Store, downloadDir string, opts ...Option) (*FileClient, error) {
	dir, err := filex.EnsureDir(downloadDir)
	if err != nil {
		return nil, fmt.Errorf("download dir: %w", err)
	}
	if keys == nil {
		keys = keystore.New()
	}

	c := &FileClient{
		tr:          tr,
		keys:        keys,
		downloadDir: dir,
		log:         logging.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Keys returns the key store the client writes upload keys to.
func (c *FileClient) Keys() *keystore.Store { return c.keys }

// DownloadDir returns the absolute download directory.
func (c *FileClient) DownloadDir() string { return c.downloadDir }

// Addr returns the current server address.
func (c *FileClient) Addr() string { return c.tr.Addr() }

// Connected reports whether a session is open.
func (c *FileClient) Connected() bool { return c.tr.Connected() }

// Connect opens a session, optionally switching to a new address first.
func (c *FileClient) Connect(ctx context.Context, addr string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if addr != "" && addr != c.tr.Addr() {
		c.tr.SetAddr(addr)
	}
	if err := c.tr.Connect(ctx); err != nil {
		return err
	}
	c.log.Info(ctx, "connected", "addr", c.tr.Addr())
	return nil
}

// Disconnect closes the session if one is open.
func (c *FileClient) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tr.Disconnect()
}

// List asks the server for its file catalogue.
func (c *FileClient) List(ctx context.Context) ([]wire.FileInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	resp, err := c.tr.SendMessage(ctx, wire.Envelope{wire.KeyCommand: wire.CommandList})
	if err != nil {
		return nil, err
	}
	if resp.Status() != wire.StatusSuccess {
		return nil, replyError(resp)
	}
	return resp.Files()
}

// History returns up to limit recorded transfers, newest first. It returns
// nil when no history repository is configured.
func (c *FileClient) History(ctx context.Context, limit int) ([]*models.Transfer, error) {
	if c.history == nil {
		return nil, nil
	}
	return c.history.List(ctx, limit)
}

func (c *FileClient) record(ctx context.Context, t *models.Transfer) {
	if c.history == nil {
		return
	}
	if err := c.history.Add(ctx, t); err != nil {
		c.log.Warn(ctx, "history write failed", "remote_id", t.RemoteID, "error", err)
	}
}
