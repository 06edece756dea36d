package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/securexfer/internal/common"
	"github.com/dmitrijs2005/securexfer/internal/logging"
)

// Catalog persists artifact metadata and a transfer audit trail.
type Catalog interface {
	Create(ctx context.Context, rec FileRecord) error
	RecordDownload(ctx context.Context, id, checksum string) error
	Get(ctx context.Context, id string) (FileRecord, error)
	List(ctx context.Context) ([]FileRecord, error)
	Delete(ctx context.Context, id string) error
}

// Cataloged decorates a Backend with a Catalog. Listing is served from the
// catalog; objects themselves still live in the wrapped backend.
type Cataloged struct {
	Backend
	catalog Catalog
	log     logging.Logger
}

var _ Recorder = (*Cataloged)(nil)

// NewCataloged wraps b.
func NewCataloged(b Backend, c Catalog, log logging.Logger) *Cataloged {
	return &Cataloged{Backend: b, catalog: c, log: log.With("module", "storage", "backend", "cataloged")}
}

func (c *Cataloged) RecordUpload(ctx context.Context, rec FileRecord) error {
	if rec.Name == "" {
		rec.Name = NameFromKey(rec.ID)
	}
	if rec.MimeType == "" {
		rec.MimeType = MimeType(rec.Name)
	}
	if err := c.catalog.Create(ctx, rec); err != nil {
		return fmt.Errorf("catalog upload %s: %w", rec.ID, err)
	}
	return nil
}

func (c *Cataloged) RecordDownload(ctx context.Context, id, checksum string) error {
	if err := c.catalog.RecordDownload(ctx, id, checksum); err != nil {
		return fmt.Errorf("catalog download %s: %w", id, err)
	}
	return nil
}

func (c *Cataloged) Stat(ctx context.Context, id string) (FileRecord, error) {
	return c.catalog.Get(ctx, id)
}

func (c *Cataloged) List(ctx context.Context) ([]FileRecord, error) {
	records, err := c.catalog.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: catalog list: %v", common.ErrStorageBackend, err)
	}
	return records, nil
}

// Delete removes the object and then its catalog row. A row without an
// object is still cleaned up.
func (c *Cataloged) Delete(ctx context.Context, id string) (bool, error) {
	deleted, err := c.Backend.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if err := c.catalog.Delete(ctx, id); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return deleted, nil
		}
		c.log.Warn(ctx, "catalog row not removed", "id", id, "error", err)
		return deleted, fmt.Errorf("catalog delete %s: %w", id, err)
	}
	return true, nil
}
