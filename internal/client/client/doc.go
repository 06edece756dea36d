// Package client implements the file-transfer client on top of the transport
// layer.
//
// FileClient drives the upload, download and list exchanges, keeps the
// per-file AES keys in a keystore.Store, and optionally appends every
// completed transfer to a local SQLite history (see InitDatabase).
//
// Server error replies come back wrapped in ErrServer. Well-known messages
// also wrap the matching common sentinel, so callers can test for
// common.ErrNotFound or common.ErrStorageDisabled with errors.Is.
//
// Checksum disagreements detected on the client side never fail an
// operation. They are logged and reported through the Warnings of the
// operation result.
package client
