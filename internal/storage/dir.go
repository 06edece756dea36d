package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/dmitrijs2005/securexfer/internal/common"
	"github.com/dmitrijs2005/securexfer/internal/filex"
	"github.com/dmitrijs2005/securexfer/internal/logging"
)

// DirBackend keeps artifacts in a local directory using the same key layout
// as S3Backend.
type DirBackend struct {
	root string
	log  logging.Logger
}

// NewDirBackend creates root if needed.
func NewDirBackend(root string, log logging.Logger) (*DirBackend, error) {
	abs, err := filex.EnsureDir(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrStorageBackend, err)
	}
	return &DirBackend{root: abs, log: log.With("module", "storage", "backend", "dir")}, nil
}

func (b *DirBackend) path(id string) string {
	return filepath.Join(b.root, filepath.FromSlash(id))
}

func (b *DirBackend) Upload(ctx context.Context, localPath, name string) (string, error) {
	src, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("%w: open %s: %v", common.ErrFilesystem, localPath, err)
	}
	defer src.Close()

	key := NewObjectKey(now(), name)
	dst := b.path(key)
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrStorageBackend, err)
	}
	if err := writeFile(dst, src); err != nil {
		return "", err
	}

	b.log.Info(ctx, "object stored", "key", key)
	return key, nil
}

func (b *DirBackend) Download(_ context.Context, id, destPath string) (string, error) {
	if err := ValidateKey(id); err != nil {
		return "", err
	}

	src, err := os.Open(b.path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", common.ErrNotFound, id)
		}
		return "", fmt.Errorf("%w: %v", common.ErrStorageBackend, err)
	}
	defer src.Close()

	if err := writeFile(destPath, src); err != nil {
		return "", err
	}
	return NameFromKey(id), nil
}

func (b *DirBackend) List(_ context.Context) ([]FileRecord, error) {
	var records []FileRecord

	base := b.path(KeyPrefix)
	err := filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && p == base {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(b.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		name := NameFromKey(key)
		records = append(records, FileRecord{
			ID:          key,
			Name:        name,
			MimeType:    MimeType(name),
			Size:        info.Size(),
			CreatedTime: info.ModTime().UTC(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrStorageBackend, err)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records, nil
}

func (b *DirBackend) Delete(_ context.Context, id string) (bool, error) {
	if err := ValidateKey(id); err != nil {
		return false, nil
	}
	err := os.Remove(b.path(id))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %v", common.ErrStorageBackend, err)
	}
}
