// Package wire implements the control-message framing shared by client and
// server: a 4-byte big-endian length prefix followed by a UTF-8 JSON object.
package wire

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/securexfer/internal/common"
	"github.com/dmitrijs2005/securexfer/internal/netx"
)

// MaxFrameSize caps a single control message payload (16 MiB).
const MaxFrameSize = 16 * 1024 * 1024

const headerSize = 4

// Commands.
const (
	CommandUpload   = "upload"
	CommandDownload = "download"
	CommandList     = "list"
)

// Statuses.
const (
	StatusReady   = "ready"
	StatusSuccess = "success"
	StatusError   = "error"
)

// Envelope keys.
const (
	KeyCommand  = "command"
	KeyStatus   = "status"
	KeyMessage  = "message"
	KeyFilename = "filename"
	KeyFileSize = "file_size"
	KeyChecksum = "checksum"
	KeyFileID   = "gdrive_file_id"
	KeyKey      = "key"
	KeyFiles    = "files"
)

// ErrFrameTooLarge reports a length prefix above MaxFrameSize. The payload is
// left unread, so the stream cannot be resynchronized.
var ErrFrameTooLarge = fmt.Errorf("%w: frame too large", common.ErrMalformedMessage)

// Envelope is one control message.
type Envelope map[string]any

// FileInfo is one entry of a list reply.
type FileInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MimeType    string `json:"mimeType,omitempty"`
	CreatedTime string `json:"createdTime"`
}

// NewError builds an error reply.
func NewError(msg string) Envelope {
	return Envelope{KeyStatus: StatusError, KeyMessage: msg}
}

// NewReady builds a ready reply.
func NewReady() Envelope {
	return Envelope{KeyStatus: StatusReady}
}

// Status returns the status field or "".
func (e Envelope) Status() string { return e.String(KeyStatus) }

// Command returns the command field or "".
func (e Envelope) Command() string { return e.String(KeyCommand) }

// Message returns the human-readable message field or "".
func (e Envelope) Message() string { return e.String(KeyMessage) }

// String returns the string value at key, or "" when absent or not a string.
func (e Envelope) String(key string) string {
	s, _ := e[key].(string)
	return s
}

// Int64 returns the integer value at key. Decoded envelopes hold numbers as
// json.Number; envelopes built in memory may hold any Go integer or float.
func (e Envelope) Int64(key string) (int64, bool) {
	switch v := e[key].(type) {
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		if v != float64(int64(v)) {
			return 0, false
		}
		return int64(v), true
	default:
		return 0, false
	}
}

// Decode re-decodes the value stored at key into v.
func (e Envelope) Decode(key string, v any) error {
	raw, ok := e[key]
	if !ok {
		return fmt.Errorf("%w: missing %q", common.ErrMalformedMessage, key)
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrMalformedMessage, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("%w: field %q: %v", common.ErrMalformedMessage, key, err)
	}
	return nil
}

// Files decodes the files list of a list reply.
func (e Envelope) Files() ([]FileInfo, error) {
	var files []FileInfo
	if err := e.Decode(KeyFiles, &files); err != nil {
		return nil, err
	}
	return files, nil
}

// Marshal serializes env into a complete frame: prefix then payload.
func Marshal(env Envelope) ([]byte, error) {
	payload, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrMalformedMessage, err)
	}
	if len(payload) > MaxFrameSize {
		return nil, fmt.Errorf("%w: frame of %d bytes exceeds %d", common.ErrMalformedMessage, len(payload), MaxFrameSize)
	}

	frame := make([]byte, headerSize+len(payload))
	binary.BigEndian.PutUint32(frame, uint32(len(payload)))
	copy(frame[headerSize:], payload)
	return frame, nil
}

// Encode writes env to w as one frame.
func Encode(w io.Writer, env Envelope) error {
	frame, err := Marshal(env)
	if err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Decode reads one frame from r. A stream that ends before any prefix byte
// arrives reports common.ErrConnectionClosed, as does one that ends inside a
// frame. Read deadlines surface as common.ErrTimeout; the codec never
// retries on its own.
func Decode(r io.Reader) (Envelope, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, readError("read frame length", err)
	}

	length := binary.BigEndian.Uint32(header)
	if length > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrFrameTooLarge, length, MaxFrameSize)
	}

	payload := make([]byte, int(length))
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, readError("read frame payload", err)
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var env Envelope
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrMalformedMessage, err)
	}
	if env == nil {
		return nil, fmt.Errorf("%w: payload is not a JSON object", common.ErrMalformedMessage)
	}
	return env, nil
}

func readError(op string, err error) error {
	switch {
	case errors.Is(err, common.ErrTimeout), errors.Is(err, common.ErrConnectionClosed):
		return fmt.Errorf("%s: %w", op, err)
	case netx.IsTimeout(err):
		return fmt.Errorf("%s: %w: %v", op, common.ErrTimeout, err)
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), netx.IsConnectionError(err):
		return fmt.Errorf("%s: %w: %v", op, common.ErrConnectionClosed, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
