package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/dmitrijs2005/securexfer/internal/common"
	"github.com/dmitrijs2005/securexfer/internal/logging"
	"github.com/dmitrijs2005/securexfer/internal/wire"
	"github.com/sethvargo/go-retry"
)

// ClientConfig configures a transport Client.
type ClientConfig struct {
	Addr        string
	TLS         *tls.Config
	DialTimeout time.Duration

	Session SessionOptions

	// ConnectAttempts is the total number of handshake attempts per Connect.
	ConnectAttempts int
	// SendAttempts is the total number of attempts per SendMessage when the
	// connection drops.
	SendAttempts int
	// RetryDelay separates connect attempts and precedes a reconnect.
	RetryDelay time.Duration
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.DialTimeout <= 0 {
		c.DialTimeout = 30 * time.Second
	}
	if c.ConnectAttempts <= 0 {
		c.ConnectAttempts = 3
	}
	if c.SendAttempts <= 0 {
		c.SendAttempts = 3
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	}
	return c
}

// DefaultClientConfig returns the stock retry policy: three attempts one
// second apart, a 30s dial timeout.
func DefaultClientConfig(addr string, tlsCfg *tls.Config) ClientConfig {
	return ClientConfig{
		Addr:            addr,
		TLS:             tlsCfg,
		DialTimeout:     30 * time.Second,
		ConnectAttempts: 3,
		SendAttempts:    3,
		RetryDelay:      time.Second,
		Session: SessionOptions{
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			StallRetries: DefaultStallRetries,
		},
	}
}

// DialFunc opens a TLS connection with the handshake completed.
type DialFunc func(ctx context.Context, addr string) (net.Conn, error)

// Client holds at most one live Session to the server.
type Client struct {
	cfg  ClientConfig
	log  logging.Logger
	dial DialFunc

	mu   sync.Mutex
	sess *Session
}

// NewClient creates a disconnected client.
func NewClient(cfg ClientConfig, log logging.Logger) *Client {
	cfg = cfg.withDefaults()
	c := &Client{cfg: cfg, log: log.With("module", "transport")}
	c.dial = c.dialTLS
	return c
}

// WithDialer replaces how connections are opened.
func (c *Client) WithDialer(d DialFunc) *Client {
	c.dial = d
	return c
}

// Addr returns the configured server address.
func (c *Client) Addr() string { return c.cfg.Addr }

// SetAddr points future connections at addr. It does not affect a live one.
func (c *Client) SetAddr(addr string) {
	c.mu.Lock()
	c.cfg.Addr = addr
	c.mu.Unlock()
}

// Connected reports whether a session is open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess != nil
}

func (c *Client) dialTLS(ctx context.Context, addr string) (net.Conn, error) {
	d := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: c.cfg.DialTimeout},
		Config:    c.cfg.TLS,
	}
	return d.DialContext(ctx, "tcp", addr)
}

func (c *Client) backoff(attempts int) retry.Backoff {
	delay := c.cfg.RetryDelay
	if delay <= 0 {
		delay = time.Nanosecond
	}
	return retry.WithMaxRetries(uint64(attempts-1), retry.NewConstant(delay))
}

// Connect opens a session unless one is already open. Failed handshakes are
// retried ConnectAttempts times in total, RetryDelay apart, after which
// common.ErrConnectionFailed is returned.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sess != nil {
		return nil
	}

	attempt := 0
	err := retry.Do(ctx, c.backoff(c.cfg.ConnectAttempts), func(ctx context.Context) error {
		attempt++
		conn, err := c.dial(ctx, c.cfg.Addr)
		if err != nil {
			c.log.Warn(ctx, "connect attempt failed", "addr", c.cfg.Addr, "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		c.sess = NewSession(conn, c.cfg.Session)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %s after %d attempts: %v", common.ErrConnectionFailed, c.cfg.Addr, attempt, err)
	}

	c.log.Info(ctx, "connected", "addr", c.cfg.Addr, "attempts", attempt)
	return nil
}

// Disconnect closes the session, if any.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnectLocked()
}

func (c *Client) disconnectLocked() error {
	if c.sess == nil {
		return nil
	}
	err := c.sess.Close()
	c.sess = nil
	return err
}

// Reconnect drops the current session, waits RetryDelay and connects again.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Disconnect()

	if c.cfg.RetryDelay > 0 {
		t := time.NewTimer(c.cfg.RetryDelay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return c.Connect(ctx)
}

func (c *Client) session() (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return nil, fmt.Errorf("%w: not connected", common.ErrConnectionClosed)
	}
	return c.sess, nil
}

// SendMessage sends env and returns the server's reply, connecting first if
// needed. When the connection drops it reconnects and resends, up to
// SendAttempts in total. Any other failure disconnects and returns at once.
func (c *Client) SendMessage(ctx context.Context, env wire.Envelope) (wire.Envelope, error) {
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}

	var resp wire.Envelope
	attempt := 0
	err := retry.Do(ctx, retry.WithMaxRetries(uint64(c.cfg.SendAttempts-1), retry.NewConstant(time.Nanosecond)), func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			c.log.Warn(ctx, "connection lost, reconnecting", "attempt", attempt)
			if err := c.Reconnect(ctx); err != nil {
				return err
			}
		}

		var err error
		resp, err = c.exchange(env)
		if err == nil {
			return nil
		}
		if errors.Is(err, common.ErrConnectionClosed) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		_ = c.Disconnect()
		return nil, fmt.Errorf("send %s after %d attempts: %w", describe(env), attempt, err)
	}
	return resp, nil
}

func (c *Client) exchange(env wire.Envelope) (wire.Envelope, error) {
	sess, err := c.session()
	if err != nil {
		return nil, err
	}
	if err := sess.WriteMessage(env); err != nil {
		return nil, err
	}
	return sess.ReadMessage()
}

// ReceiveMessage reads one reply without sending. A failure disconnects.
func (c *Client) ReceiveMessage() (wire.Envelope, error) {
	sess, err := c.session()
	if err != nil {
		return nil, err
	}
	env, err := sess.ReadMessage()
	if err != nil {
		_ = c.Disconnect()
		return nil, err
	}
	return env, nil
}

// SendRaw streams exactly n bytes from r. Raw payloads are never retried.
func (c *Client) SendRaw(r io.Reader, n int64) error {
	sess, err := c.session()
	if err != nil {
		return err
	}
	if _, err := sess.SendRaw(r, n); err != nil {
		_ = c.Disconnect()
		return err
	}
	return nil
}

// RecvRaw receives up to n bytes into w; see Session.RecvRaw.
func (c *Client) RecvRaw(w io.Writer, n int64) (int64, error) {
	sess, err := c.session()
	if err != nil {
		return 0, err
	}
	got, err := sess.RecvRaw(w, n)
	if err != nil || got < n {
		_ = c.Disconnect()
	}
	return got, err
}

func describe(env wire.Envelope) string {
	if cmd := env.Command(); cmd != "" {
		return cmd
	}
	return "message"
}
