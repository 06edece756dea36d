// Package cli provides the interactive securexfer command-line client.
//
// NewApp wires configuration, TLS, the transport, the key store and the
// optional SQLite transfer history around a client.FileClient. App.Run loads
// the key store (asking for a passphrase when it is sealed) and starts the
// REPL, which blocks until the user exits.
//
// Keys returned by uploads are written back to the key store file right
// away, sealed again when the store was sealed.
package cli
