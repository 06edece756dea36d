package transfer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/dmitrijs2005/securexfer/internal/common"
	"github.com/dmitrijs2005/securexfer/internal/logging"
	"github.com/dmitrijs2005/securexfer/internal/transport"
	"github.com/dmitrijs2005/securexfer/internal/wire"
)

// State is the protocol state of one session.
type State string

const (
	StateAwaitMessage State = "AWAIT_MESSAGE"
	StateDispatch     State = "DISPATCH"
	StateUpload       State = "UPLOAD"
	StateDownload     State = "DOWNLOAD"
	StateList         State = "LIST"
	StateClosed       State = "CLOSED"
)

// errStreamBroken marks failures after which the byte stream can no longer
// be trusted to be aligned on a frame boundary.
var errStreamBroken = errors.New("stream out of sync")

type session struct {
	id   string
	peer string
	tr   *transport.Session
	srv  *Server
	log  logging.Logger

	running atomic.Bool

	mu    sync.Mutex
	state State
}

func newSession(srv *Server, id string, tr *transport.Session) *session {
	ss := &session{
		id:    id,
		peer:  tr.RemoteAddr(),
		tr:    tr,
		srv:   srv,
		state: StateAwaitMessage,
	}
	ss.log = srv.log.With("session", id, "peer", ss.peer)
	ss.running.Store(true)
	return ss
}

func (ss *session) State() State {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return ss.state
}

func (ss *session) setState(st State) {
	ss.mu.Lock()
	ss.state = st
	ss.mu.Unlock()
}

// stop asks the worker to finish by closing the connection under it.
func (ss *session) stop() error {
	ss.running.Store(false)
	return ss.tr.Close()
}

// run is the session worker. It leaves the registry exactly once, here,
// whatever ended the loop.
func (ss *session) run(ctx context.Context) {
	ss.log.Info(ctx, "client connected")
	defer func() {
		ss.setState(StateClosed)
		_ = ss.tr.Close()
		ss.srv.remove(ss)
		ss.log.Info(ctx, "client disconnected")
	}()

	for ss.running.Load() {
		ss.setState(StateAwaitMessage)
		env, err := ss.tr.ReadMessage()
		if err != nil {
			if !ss.handleReadError(ctx, err) {
				return
			}
			continue
		}

		ss.setState(StateDispatch)
		if err := ss.dispatch(ctx, env); err != nil && fatal(err) {
			if ss.running.Load() {
				ss.log.Warn(ctx, "closing session", "error", err)
			}
			return
		}
	}
}

// handleReadError reports whether the session can keep reading.
func (ss *session) handleReadError(ctx context.Context, err error) bool {
	switch {
	case errors.Is(err, common.ErrConnectionClosed):
		return false
	case errors.Is(err, wire.ErrFrameTooLarge):
		ss.log.Warn(ctx, "oversized frame", "error", err)
		_ = ss.reply(wire.NewError("Message too large"))
		return false
	case errors.Is(err, common.ErrMalformedMessage):
		ss.log.Warn(ctx, "malformed message", "error", err)
		ss.srv.observer.CommandHandled("invalid", common.Kind(err))
		return ss.reply(wire.NewError("Invalid JSON format")) == nil
	default:
		if ss.running.Load() {
			ss.log.Warn(ctx, "read failed", "error", err)
		}
		return false
	}
}

func (ss *session) dispatch(ctx context.Context, env wire.Envelope) error {
	cmd := env.Command()

	var err error
	switch cmd {
	case wire.CommandUpload:
		ss.setState(StateUpload)
		err = ss.handleUpload(ctx, env)
	case wire.CommandDownload:
		ss.setState(StateDownload)
		err = ss.handleDownload(ctx, env)
	case wire.CommandList:
		ss.setState(StateList)
		err = ss.handleList(ctx)
	default:
		cmd = "unknown"
		err = common.ErrMalformedMessage
		if rerr := ss.reply(wire.NewError("Unknown command")); rerr != nil {
			err = rerr
		}
	}

	ss.srv.observer.CommandHandled(cmd, common.Kind(err))
	if err != nil {
		ss.log.Info(ctx, "command failed", "command", cmd, "kind", common.Kind(err), "error", err)
	}
	return err
}

func (ss *session) reply(env wire.Envelope) error {
	return ss.tr.WriteMessage(env)
}

func fatal(err error) bool {
	return errors.Is(err, common.ErrConnectionClosed) ||
		errors.Is(err, common.ErrTimeout) ||
		errors.Is(err, errStreamBroken)
}
