// Package transport owns the TLS byte stream between client and server:
// framed control messages, raw payload streaming of announced lengths, and
// the client's connect/reconnect policy.
package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/dmitrijs2005/securexfer/internal/common"
	"github.com/dmitrijs2005/securexfer/internal/netx"
	"github.com/dmitrijs2005/securexfer/internal/wire"
)

const (
	// ChunkSize is the buffer size used for raw payload streaming.
	ChunkSize = 64 * 1024
	// DefaultStallRetries is how many consecutive read timeouts without
	// progress a read tolerates.
	DefaultStallRetries = 3
)

// SessionOptions bounds the blocking behavior of a Session.
type SessionOptions struct {
	// ReadTimeout is the deadline for each individual read. Zero disables it.
	ReadTimeout time.Duration
	// WriteTimeout is the deadline for each individual write. Zero disables it.
	WriteTimeout time.Duration
	// StallRetries is the number of consecutive timed-out reads tolerated
	// before giving up with common.ErrTimeout.
	StallRetries int
}

// Session is one side of one connection. It is not safe for concurrent
// exchanges: the protocol is strictly request/response.
type Session struct {
	conn net.Conn
	in   *stallReader
	opts SessionOptions

	closeOnce sync.Once
	closeErr  error
}

// NewSession wraps an established (already handshaken) connection.
func NewSession(conn net.Conn, opts SessionOptions) *Session {
	if opts.StallRetries <= 0 {
		opts.StallRetries = DefaultStallRetries
	}
	return &Session{
		conn: conn,
		in:   &stallReader{conn: conn, timeout: opts.ReadTimeout, maxStalls: opts.StallRetries},
		opts: opts,
	}
}

// RemoteAddr returns the peer address as text.
func (s *Session) RemoteAddr() string {
	if addr := s.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

// ReadMessage reads one framed control message.
func (s *Session) ReadMessage() (wire.Envelope, error) {
	return wire.Decode(s.in)
}

// WriteMessage writes one framed control message.
func (s *Session) WriteMessage(env wire.Envelope) error {
	frame, err := wire.Marshal(env)
	if err != nil {
		return err
	}
	if err := s.write(frame); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// SendRaw streams exactly n bytes from r to the peer.
func (s *Session) SendRaw(r io.Reader, n int64) (int64, error) {
	buf := make([]byte, ChunkSize)
	var sent int64
	for sent < n {
		want := int64(len(buf))
		if rem := n - sent; rem < want {
			want = rem
		}
		m, rerr := io.ReadFull(r, buf[:want])
		if m > 0 {
			if werr := s.write(buf[:m]); werr != nil {
				return sent, fmt.Errorf("send payload: %w", werr)
			}
			sent += int64(m)
		}
		if rerr != nil {
			if sent < n {
				return sent, fmt.Errorf("%w: source ended after %d of %d bytes: %v", common.ErrFilesystem, sent, n, rerr)
			}
			break
		}
	}
	return sent, nil
}

// RecvRaw copies up to n bytes from the peer into w. It stops early, without
// error, when the peer closes the stream; callers compare the returned count
// with n to detect an incomplete transfer. Stalled reads surface as
// common.ErrTimeout and failed writes to w as common.ErrFilesystem.
func (s *Session) RecvRaw(w io.Writer, n int64) (int64, error) {
	buf := make([]byte, ChunkSize)
	var received int64
	for received < n {
		want := int64(len(buf))
		if rem := n - received; rem < want {
			want = rem
		}
		m, rerr := s.in.Read(buf[:want])
		if m > 0 {
			if _, werr := w.Write(buf[:m]); werr != nil {
				return received, fmt.Errorf("%w: write payload: %v", common.ErrFilesystem, werr)
			}
			received += int64(m)
		}
		if rerr != nil {
			if errors.Is(rerr, common.ErrTimeout) {
				return received, fmt.Errorf("receive payload: %w", rerr)
			}
			if errors.Is(rerr, io.EOF) || netx.IsConnectionError(rerr) {
				break
			}
			return received, fmt.Errorf("receive payload: %w", rerr)
		}
	}
	return received, nil
}

// Close closes the underlying connection once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

func (s *Session) write(p []byte) error {
	if s.opts.WriteTimeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout)); err != nil {
			return classify(err)
		}
	}
	if _, err := s.conn.Write(p); err != nil {
		return classify(err)
	}
	return nil
}

func classify(err error) error {
	switch {
	case netx.IsTimeout(err):
		return fmt.Errorf("%w: %v", common.ErrTimeout, err)
	case netx.IsConnectionError(err):
		return fmt.Errorf("%w: %v", common.ErrConnectionClosed, err)
	default:
		return err
	}
}

// stallReader applies a per-read deadline and retries timed-out reads a
// bounded number of times. Any progress resets the stall counter.
type stallReader struct {
	conn      net.Conn
	timeout   time.Duration
	maxStalls int
}

func (r *stallReader) Read(p []byte) (int, error) {
	stalls := 0
	for {
		if r.timeout > 0 {
			if err := r.conn.SetReadDeadline(time.Now().Add(r.timeout)); err != nil {
				return 0, classify(err)
			}
		}
		n, err := r.conn.Read(p)
		if n > 0 {
			return n, nil
		}
		if err == nil {
			continue
		}
		if !netx.IsTimeout(err) {
			return 0, err
		}
		stalls++
		if stalls > r.maxStalls {
			return 0, fmt.Errorf("%w: no data for %d consecutive reads of %s", common.ErrTimeout, stalls, r.timeout)
		}
	}
}
