package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/securexfer/internal/common"
	"github.com/dmitrijs2005/securexfer/internal/logging"
	"github.com/dmitrijs2005/securexfer/internal/tlsx"
	"github.com/dmitrijs2005/securexfer/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer hands out net.Pipe connections and runs handle on the server
// end of each; n is the 1-based dial number.
type fakeServer struct {
	mu     sync.Mutex
	dials  int
	fail   int
	handle func(n int, conn net.Conn)
}

func (f *fakeServer) dial(_ context.Context, _ string) (net.Conn, error) {
	f.mu.Lock()
	f.dials++
	n := f.dials
	f.mu.Unlock()

	if n <= f.fail {
		return nil, errors.New("connection refused")
	}
	client, server := net.Pipe()
	go f.handle(n, server)
	return client, nil
}

func (f *fakeServer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dials
}

func testConfig() ClientConfig {
	return ClientConfig{
		Addr:            "pipe",
		ConnectAttempts: 3,
		SendAttempts:    3,
		RetryDelay:      time.Millisecond,
		Session:         SessionOptions{ReadTimeout: time.Second, StallRetries: 2},
	}
}

func echoStatus(conn net.Conn) {
	defer conn.Close()
	for {
		env, err := wire.Decode(conn)
		if err != nil {
			return
		}
		_ = wire.Encode(conn, wire.Envelope{wire.KeyStatus: wire.StatusSuccess, wire.KeyMessage: env.Command()})
	}
}

func readAndClose(conn net.Conn) {
	_, _ = wire.Decode(conn)
	_ = conn.Close()
}

func TestSession_RecvRaw(t *testing.T) {
	payload := bytes.Repeat([]byte("0123456789"), 10000)

	t.Run("exact length", func(t *testing.T) {
		a, b := net.Pipe()
		defer a.Close()
		go func() {
			_, _ = NewSession(b, SessionOptions{}).SendRaw(bytes.NewReader(payload), int64(len(payload)))
		}()

		var out bytes.Buffer
		got, err := NewSession(a, SessionOptions{}).RecvRaw(&out, int64(len(payload)))
		require.NoError(t, err)
		assert.Equal(t, int64(len(payload)), got)
		assert.Equal(t, payload, out.Bytes())
	})

	t.Run("peer closes early", func(t *testing.T) {
		a, b := net.Pipe()
		defer a.Close()
		go func() {
			_, _ = b.Write(payload[:300])
			_ = b.Close()
		}()

		var out bytes.Buffer
		got, err := NewSession(a, SessionOptions{}).RecvRaw(&out, int64(len(payload)))
		require.NoError(t, err)
		assert.Equal(t, int64(300), got)
	})

	t.Run("stalled peer", func(t *testing.T) {
		a, b := net.Pipe()
		defer a.Close()
		defer b.Close()

		var out bytes.Buffer
		_, err := NewSession(a, SessionOptions{ReadTimeout: 10 * time.Millisecond, StallRetries: 2}).RecvRaw(&out, 10)
		assert.ErrorIs(t, err, common.ErrTimeout)
	})
}

func TestSession_SendRaw_ShortSource(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	go func() { _, _ = io.Copy(io.Discard, b) }()

	sent, err := NewSession(a, SessionOptions{}).SendRaw(bytes.NewReader([]byte("abc")), 10)
	assert.ErrorIs(t, err, common.ErrFilesystem)
	assert.Equal(t, int64(3), sent)
}

func TestSession_MessageRoundTrip(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	server := NewSession(b, SessionOptions{})
	go func() {
		env, err := server.ReadMessage()
		if err != nil {
			return
		}
		_ = server.WriteMessage(wire.Envelope{wire.KeyStatus: wire.StatusReady, wire.KeyFilename: env.String(wire.KeyFilename)})
	}()

	client := NewSession(a, SessionOptions{})
	require.NoError(t, client.WriteMessage(wire.Envelope{wire.KeyCommand: wire.CommandUpload, wire.KeyFilename: "a.txt"}))
	resp, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, wire.StatusReady, resp.Status())
	assert.Equal(t, "a.txt", resp.String(wire.KeyFilename))

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())
}

func TestClient_ConnectRetries(t *testing.T) {
	t.Run("gives up after three attempts", func(t *testing.T) {
		fs := &fakeServer{fail: 10, handle: func(_ int, conn net.Conn) { echoStatus(conn) }}
		c := NewClient(testConfig(), logging.Nop()).WithDialer(fs.dial)

		err := c.Connect(context.Background())
		assert.ErrorIs(t, err, common.ErrConnectionFailed)
		assert.Equal(t, 3, fs.count())
		assert.False(t, c.Connected())
	})

	t.Run("succeeds on second attempt", func(t *testing.T) {
		fs := &fakeServer{fail: 1, handle: func(_ int, conn net.Conn) { echoStatus(conn) }}
		c := NewClient(testConfig(), logging.Nop()).WithDialer(fs.dial)
		defer c.Disconnect()

		require.NoError(t, c.Connect(context.Background()))
		assert.Equal(t, 2, fs.count())
		assert.True(t, c.Connected())

		require.NoError(t, c.Connect(context.Background()))
		assert.Equal(t, 2, fs.count(), "connect is a no-op while connected")
	})
}

func TestClient_SendMessage_ConnectsLazily(t *testing.T) {
	fs := &fakeServer{handle: func(_ int, conn net.Conn) { echoStatus(conn) }}
	c := NewClient(testConfig(), logging.Nop()).WithDialer(fs.dial)
	defer c.Disconnect()

	resp, err := c.SendMessage(context.Background(), wire.Envelope{wire.KeyCommand: wire.CommandList})
	require.NoError(t, err)
	assert.Equal(t, wire.StatusSuccess, resp.Status())
	assert.Equal(t, wire.CommandList, resp.Message())
	assert.Equal(t, 1, fs.count())
}

func TestClient_SendMessage_ReconnectsOnDrop(t *testing.T) {
	fs := &fakeServer{handle: func(n int, conn net.Conn) {
		if n < 3 {
			readAndClose(conn)
			return
		}
		echoStatus(conn)
	}}
	c := NewClient(testConfig(), logging.Nop()).WithDialer(fs.dial)
	defer c.Disconnect()

	resp, err := c.SendMessage(context.Background(), wire.Envelope{wire.KeyCommand: wire.CommandList})
	require.NoError(t, err)
	assert.Equal(t, wire.StatusSuccess, resp.Status())
	assert.Equal(t, 3, fs.count())
}

func TestClient_SendMessage_GivesUpAfterThirdDrop(t *testing.T) {
	fs := &fakeServer{handle: func(_ int, conn net.Conn) { readAndClose(conn) }}
	c := NewClient(testConfig(), logging.Nop()).WithDialer(fs.dial)

	_, err := c.SendMessage(context.Background(), wire.Envelope{wire.KeyCommand: wire.CommandList})
	assert.ErrorIs(t, err, common.ErrConnectionClosed)
	assert.Equal(t, 3, fs.count())
	assert.False(t, c.Connected())
}

func TestClient_SendMessage_OtherErrorsAreNotRetried(t *testing.T) {
	fs := &fakeServer{handle: func(_ int, conn net.Conn) {
		defer conn.Close()
		_, _ = wire.Decode(conn)
		_, _ = conn.Write([]byte{0, 0, 0, 3, 'b', 'a', 'd'})
	}}
	c := NewClient(testConfig(), logging.Nop()).WithDialer(fs.dial)

	_, err := c.SendMessage(context.Background(), wire.Envelope{wire.KeyCommand: wire.CommandList})
	assert.ErrorIs(t, err, common.ErrMalformedMessage)
	assert.Equal(t, 1, fs.count())
	assert.False(t, c.Connected())
}

func TestClient_RawWithoutSession(t *testing.T) {
	c := NewClient(testConfig(), logging.Nop())

	err := c.SendRaw(bytes.NewReader(nil), 0)
	assert.ErrorIs(t, err, common.ErrConnectionClosed)

	_, err = c.RecvRaw(io.Discard, 1)
	assert.ErrorIs(t, err, common.ErrConnectionClosed)

	_, err = c.ReceiveMessage()
	assert.ErrorIs(t, err, common.ErrConnectionClosed)
}

func TestClient_TLSLoopback(t *testing.T) {
	ss, err := tlsx.GenerateSelfSigned()
	require.NoError(t, err)
	serverCfg, err := ss.ServerTLS()
	require.NoError(t, err)
	clientCfg, err := ss.ClientTLS("localhost")
	require.NoError(t, err)

	ln, err := tls.Listen("tcp", "127.0.0.1:0", serverCfg)
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		echoStatus(conn)
	}()

	cfg := DefaultClientConfig(ln.Addr().String(), clientCfg)
	cfg.RetryDelay = time.Millisecond
	c := NewClient(cfg, logging.Nop())
	defer c.Disconnect()

	resp, err := c.SendMessage(context.Background(), wire.Envelope{wire.KeyCommand: wire.CommandList})
	require.NoError(t, err)
	assert.Equal(t, wire.CommandList, resp.Message())
}
