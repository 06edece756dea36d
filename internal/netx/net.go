// Package netx classifies network errors so the transport can decide between
// reconnect-and-retry and fail-fast.
package netx

import (
	"errors"
	"io"
	"net"
	"os"
	"syscall"
)

// IsTimeout reports whether err comes from an expired deadline.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// IsConnectionError reports whether err means the underlying connection is
// gone or unusable (peer closed, reset, refused, broken pipe). Timeouts are
// not connection errors.
func IsConnectionError(err error) bool {
	if err == nil || IsTimeout(err) {
		return false
	}
	switch {
	case errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.ErrClosedPipe),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.EPIPE):
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
