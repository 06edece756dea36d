// Package history keeps a local SQLite log of completed uploads and
// downloads. Rows are append-only; the client writes one after each
// successful transfer and the CLI reads them back with the history command.
package history
