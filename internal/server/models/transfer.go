package models

import "time"

// Transfer directions.
const (
	DirectionUpload   = "upload"
	DirectionDownload = "download"
)

// Transfer is one audit row: a file moved in Direction with the given checksum.
type Transfer struct {
	ID        string
	FileID    string
	Direction string
	Checksum  string
	CreatedAt time.Time
}
