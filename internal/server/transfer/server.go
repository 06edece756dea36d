// Package transfer is the server side of the file-transfer protocol: it
// accepts TLS connections, runs one session worker per client and dispatches
// upload, download and list commands.
package transfer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/securexfer/internal/filex"
	"github.com/dmitrijs2005/securexfer/internal/logging"
	"github.com/dmitrijs2005/securexfer/internal/storage"
	"github.com/dmitrijs2005/securexfer/internal/transport"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// Config tunes the transfer server.
type Config struct {
	// UploadDir holds staging files and, when remote storage is disabled,
	// the received files themselves.
	UploadDir string
	// HandshakeTimeout bounds the TLS handshake of each accepted connection.
	HandshakeTimeout time.Duration
	// Session bounds reads and writes of every session.
	Session transport.SessionOptions
}

// Server accepts connections and owns the live-session registry.
type Server struct {
	cfg      Config
	tls      *tls.Config
	backend  storage.Backend
	log      logging.Logger
	observer Observer

	mu        sync.Mutex
	ln        net.Listener
	accepting bool
	sessions  map[string]*session

	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// Option customizes a Server.
type Option func(*Server)

// WithObserver attaches an event observer.
func WithObserver(o Observer) Option {
	return func(s *Server) {
		if o != nil {
			s.observer = o
		}
	}
}

// NewServer creates a server. A nil backend disables remote storage: uploads
// stay in UploadDir and download/list report the integration as disabled.
func NewServer(cfg Config, tlsCfg *tls.Config, backend storage.Backend, log logging.Logger, opts ...Option) (*Server, error) {
	if tlsCfg == nil {
		return nil, errors.New("transfer server requires a TLS config")
	}
	dir, err := filex.EnsureDir(cfg.UploadDir)
	if err != nil {
		return nil, err
	}
	cfg.UploadDir = dir
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}

	s := &Server{
		cfg:      cfg,
		tls:      tlsCfg,
		backend:  backend,
		log:      log.With("module", "transfer_server"),
		observer: nopObserver{},
		sessions: make(map[string]*session),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Listen binds the listening socket.
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ln = ln
	s.accepting = true
	s.mu.Unlock()
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Accepting reports whether the server is taking new connections.
func (s *Server) Accepting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepting
}

// Serve runs the accept loop until Shutdown. Each accepted connection is
// handshaken synchronously, registered, and handed to its own worker.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return errors.New("transfer server is not listening")
	}

	for {
		raw, err := ln.Accept()
		if err != nil {
			if !s.Accepting() {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}

		conn, err := s.handshake(ctx, raw)
		if err != nil {
			s.log.Warn(ctx, "TLS handshake failed", "peer", raw.RemoteAddr().String(), "error", err)
			_ = raw.Close()
			continue
		}

		ss := newSession(s, uuid.NewString(), transport.NewSession(conn, s.cfg.Session))
		if !s.register(ss) {
			_ = ss.tr.Close()
			continue
		}

		go func() {
			defer s.wg.Done()
			ss.run(ctx)
		}()
	}
}

func (s *Server) handshake(ctx context.Context, raw net.Conn) (*tls.Conn, error) {
	conn := tls.Server(raw, s.tls)
	hctx, cancel := context.WithTimeout(ctx, s.cfg.HandshakeTimeout)
	defer cancel()
	if err := conn.HandshakeContext(hctx); err != nil {
		return nil, err
	}
	return conn, nil
}

// register adds ss to the registry and counts its worker in wg, both under
// s.mu, so Shutdown either sees the session and waits for it or rejects it.
func (s *Server) register(ss *session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.accepting {
		return false
	}
	s.wg.Add(1)
	s.sessions[ss.id] = ss
	s.observer.SessionOpened()
	return true
}

func (s *Server) remove(ss *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[ss.id]; ok {
		delete(s.sessions, ss.id)
		s.observer.SessionClosed()
	}
}

// SessionInfo is a snapshot of one live session.
type SessionInfo struct {
	ID    string
	Peer  string
	State State
}

// Sessions returns the live sessions ordered by ID.
func (s *Server) Sessions() []SessionInfo {
	s.mu.Lock()
	out := make([]SessionInfo, 0, len(s.sessions))
	for _, ss := range s.sessions {
		out = append(out, SessionInfo{ID: ss.id, Peer: ss.peer, State: ss.State()})
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Shutdown stops accepting, closes every live session and then the listener,
// and waits for the workers to finish or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.accepting = false
		live := make([]*session, 0, len(s.sessions))
		for _, ss := range s.sessions {
			live = append(live, ss)
		}
		ln := s.ln
		s.mu.Unlock()

		var err error
		for _, ss := range live {
			err = multierr.Append(err, ss.stop())
		}
		if ln != nil {
			if cerr := ln.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
				err = multierr.Append(err, cerr)
			}
		}
		s.closeErr = err
	})

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return s.closeErr
	case <-ctx.Done():
		return multierr.Append(s.closeErr, ctx.Err())
	}
}
