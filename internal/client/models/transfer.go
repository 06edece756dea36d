// Package models defines the client-side records kept in the local history.
package models

import "time"

// Transfer directions.
const (
	DirectionUpload   = "upload"
	DirectionDownload = "download"
)

// Transfer is one completed upload or download kept in the local history.
type Transfer struct {
	ID        int64
	RemoteID  string
	Name      string
	Direction string
	Size      int64
	Checksum  string
	CreatedAt time.Time
}
