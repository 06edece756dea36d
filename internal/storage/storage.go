// Package storage defines the remote object-store capability the transfer
// server pushes encrypted artifacts to, together with its implementations.
package storage

import (
	"context"
	"fmt"
	"mime"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/securexfer/internal/common"
	"github.com/dmitrijs2005/securexfer/internal/filex"
	"github.com/google/uuid"
)

// KeyPrefix is the common prefix of every object key.
const KeyPrefix = "files/"

// FileRecord describes one stored artifact.
type FileRecord struct {
	ID          string
	Name        string
	MimeType    string
	Size        int64
	Checksum    string
	CreatedTime time.Time
}

// Backend is the remote storage collaborator: it stores local files under
// opaque identifiers and fetches them back.
type Backend interface {
	// Upload stores the file at localPath under display name and returns its identifier.
	Upload(ctx context.Context, localPath, name string) (string, error)
	// Download writes the artifact id to destPath and returns its display name.
	Download(ctx context.Context, id, destPath string) (string, error)
	// List returns all stored artifacts.
	List(ctx context.Context) ([]FileRecord, error)
	// Delete removes id. It reports false when id did not exist.
	Delete(ctx context.Context, id string) (bool, error)
}

// Recorder is implemented by backends that keep metadata beside the objects.
type Recorder interface {
	// RecordUpload stores plaintext metadata for a freshly uploaded artifact.
	RecordUpload(ctx context.Context, rec FileRecord) error
	// RecordDownload notes that id was served with the given checksum.
	RecordDownload(ctx context.Context, id, checksum string) error
	// Stat returns the stored metadata for id.
	Stat(ctx context.Context, id string) (FileRecord, error)
}

// NewObjectKey builds files/YYYY/MM/DD/<uuid>/<name>.
func NewObjectKey(now time.Time, name string) string {
	return fmt.Sprintf("%s%04d/%02d/%02d/%s/%s", KeyPrefix, now.Year(), int(now.Month()), now.Day(), uuid.New(), filex.SanitizeName(name))
}

// NameFromKey returns the display name encoded in an object key.
func NameFromKey(key string) string {
	return path.Base(key)
}

// MimeType guesses a content type from name, looking through a trailing
// ".enc". Unknown extensions yield "application/octet-stream".
func MimeType(name string) string {
	name = strings.TrimSuffix(name, common.EncryptedSuffix)
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		if i := strings.IndexByte(t, ';'); i >= 0 {
			t = strings.TrimSpace(t[:i])
		}
		return t
	}
	return "application/octet-stream"
}

// ValidateKey rejects identifiers that could escape the key space.
func ValidateKey(id string) error {
	if id == "" || !strings.HasPrefix(id, KeyPrefix) || !filepath.IsLocal(filepath.FromSlash(id)) || strings.Contains(id, "\\") {
		return fmt.Errorf("%w: invalid file id %q", common.ErrNotFound, id)
	}
	return nil
}
