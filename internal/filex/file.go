// Package filex holds the filesystem side of a transfer: staging paths,
// name sanitizing, cleanup and streaming SHA-256 checksums.
package filex

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/securexfer/internal/common"
	"github.com/google/uuid"
)

// ChecksumChunkSize is the read size used while hashing.
const ChecksumChunkSize = 64 * 1024

// EnsureDir creates dir (and parents) if needed and returns its absolute path.
// A relative dir is resolved against the working directory.
func EnsureDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("abs %s: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o770); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", abs, err)
	}
	return abs, nil
}

// SanitizeName reduces a peer-supplied file name to its base name. Directory
// components are never trusted. Names that collapse to nothing usable become
// "unnamed".
func SanitizeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	base := filepath.Base(strings.TrimSpace(name))
	switch base {
	case "", ".", "..", "/":
		return "unnamed"
	}
	return base
}

// StagingPath returns a unique path inside dir for the in-flight file name.
// Two transfers of the same name never share a staging file.
func StagingPath(dir, name string) string {
	return filepath.Join(dir, uuid.NewString()+"_"+SanitizeName(name))
}

// RemoveIfExists deletes path, treating "already gone" as success.
func RemoveIfExists(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: remove %s: %v", common.ErrFilesystem, path, err)
	}
	return nil
}

// Checksum streams the file at path through SHA-256 and returns the lowercase
// hex digest. The file is never loaded whole.
func Checksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: open %s: %v", common.ErrFilesystem, path, err)
	}
	defer f.Close()

	sum, err := ChecksumReader(f)
	if err != nil {
		return "", fmt.Errorf("%w: hash %s: %v", common.ErrFilesystem, path, err)
	}
	return sum, nil
}

// ChecksumReader hashes r to EOF in ChecksumChunkSize reads.
func ChecksumReader(r io.Reader) (string, error) {
	h := sha256.New()
	buf := make([]byte, ChecksumChunkSize)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Size returns the size of the regular file at path.
func Size(path string) (int64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("%w: stat %s: %v", common.ErrFilesystem, path, err)
	}
	if fi.IsDir() {
		return 0, fmt.Errorf("%w: %s is a directory", common.ErrFilesystem, path)
	}
	return fi.Size(), nil
}
