// Package models defines server-side data models persisted in the database.
package models

import "time"

// File is the catalog row of one stored artifact. ID is the storage
// backend's identifier; Size and Checksum describe the plaintext.
type File struct {
	ID        string
	Name      string
	MimeType  string
	Size      int64
	Checksum  string
	CreatedAt time.Time
}
