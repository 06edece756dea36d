package client

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/securexfer/internal/common"
	"github.com/dmitrijs2005/securexfer/internal/wire"
)

// ErrServer wraps every error reply the server sends back.
var ErrServer = errors.New("server error")

// ErrUnexpectedStatus reports a reply whose status fits no step of the exchange.
var ErrUnexpectedStatus = errors.New("unexpected reply status")

// serverMessages maps the server's well-known error texts onto the shared
// taxonomy so callers can match them with errors.Is.
var serverMessages = map[string]error{
	"File not found":                         common.ErrNotFound,
	"Checksum mismatch":                      common.ErrChecksumMismatch,
	"Incomplete file transfer":               common.ErrIncompleteTransfer,
	"Remote storage integration not enabled": common.ErrStorageDisabled,
	"Missing filename or file_size":          common.ErrMalformedMessage,
	"Missing gdrive_file_id":                 common.ErrMalformedMessage,
	"Unknown command":                        common.ErrMalformedMessage,
	"Invalid JSON format":                    common.ErrMalformedMessage,
	"Message too large":                      common.ErrMalformedMessage,
}

// replyError turns a non-success reply into an error.
func replyError(resp wire.Envelope) error {
	if resp.Status() != wire.StatusError {
		return fmt.Errorf("%w: %q", ErrUnexpectedStatus, resp.Status())
	}
	msg := resp.Message()
	if msg == "" {
		msg = "unknown error"
	}
	if sentinel, ok := serverMessages[msg]; ok {
		return fmt.Errorf("%w: %s: %w", ErrServer, msg, sentinel)
	}
	return fmt.Errorf("%w: %s", ErrServer, msg)
}
