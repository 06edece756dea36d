// Package common defines shared constants, sentinel errors and small helpers
// used across client and server layers of securexfer. Callers should use
// errors.Is to match the sentinel values.
package common

import "errors"

var (
	// Transport errors.
	ErrConnectionFailed = errors.New("connection failed")
	ErrConnectionClosed = errors.New("connection closed")
	ErrTimeout          = errors.New("timeout")

	// Transfer errors.
	ErrIncompleteTransfer = errors.New("incomplete transfer")
	ErrChecksumMismatch   = errors.New("checksum mismatch")

	// Encryption layer errors.
	ErrDecryptionFailed = errors.New("decryption failed")
	ErrInvalidKeyFormat = errors.New("invalid key format")

	// Protocol errors (bad JSON, unknown command, missing fields).
	ErrMalformedMessage = errors.New("malformed message")

	// Storage and filesystem errors.
	ErrStorageBackend  = errors.New("storage backend error")
	ErrStorageDisabled = errors.New("remote storage integration not enabled")
	ErrFilesystem      = errors.New("filesystem error")

	// Repository-level errors.
	ErrNotFound = errors.New("not found")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrConnectionFailed, "connection_failed"},
	{ErrConnectionClosed, "connection_closed"},
	{ErrTimeout, "timeout"},
	{ErrIncompleteTransfer, "incomplete_transfer"},
	{ErrChecksumMismatch, "checksum_mismatch"},
	{ErrDecryptionFailed, "decryption_failed"},
	{ErrInvalidKeyFormat, "invalid_key_format"},
	{ErrMalformedMessage, "malformed_message"},
	{ErrStorageDisabled, "storage_disabled"},
	{ErrStorageBackend, "storage_backend_error"},
	{ErrFilesystem, "filesystem_error"},
	{ErrNotFound, "not_found"},
}

// Kind returns a stable short label for err, suitable for log attributes and
// metric labels. A nil error yields "ok"; errors outside the taxonomy yield
// "internal".
func Kind(err error) string {
	if err == nil {
		return "ok"
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "internal"
}
