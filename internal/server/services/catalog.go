// Package services contains server-side business logic on top of the
// repositories. CatalogService keeps the file catalog and the transfer audit
// trail consistent and exposes them to the storage layer.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/securexfer/internal/common"
	"github.com/dmitrijs2005/securexfer/internal/dbx"
	"github.com/dmitrijs2005/securexfer/internal/server/models"
	"github.com/dmitrijs2005/securexfer/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/securexfer/internal/storage"
)

// CatalogService implements storage.Catalog over Postgres repositories.
type CatalogService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

var _ storage.Catalog = (*CatalogService)(nil)

// NewCatalogService constructs a CatalogService.
func NewCatalogService(db *sql.DB, m repomanager.RepositoryManager) *CatalogService {
	return &CatalogService{db: db, repomanager: m}
}

// Create inserts the file row and its upload event in one transaction.
func (s *CatalogService) Create(ctx context.Context, rec storage.FileRecord) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		f := &models.File{
			ID:       rec.ID,
			Name:     rec.Name,
			MimeType: rec.MimeType,
			Size:     rec.Size,
			Checksum: rec.Checksum,
		}
		if err := s.repomanager.Files(tx).Create(ctx, f); err != nil {
			return fmt.Errorf("error creating file: %w", err)
		}
		t := &models.Transfer{FileID: rec.ID, Direction: models.DirectionUpload, Checksum: rec.Checksum}
		if err := s.repomanager.Transfers(tx).Create(ctx, t); err != nil {
			return fmt.Errorf("error creating transfer: %w", err)
		}
		return nil
	})
}

// RecordDownload appends a download event for a cataloged file. The lookup
// and the insert share a transaction so a concurrent Delete cannot slip in.
func (s *CatalogService) RecordDownload(ctx context.Context, id, checksum string) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := s.repomanager.Files(tx).Get(ctx, id); err != nil {
			return err
		}
		t := &models.Transfer{FileID: id, Direction: models.DirectionDownload, Checksum: checksum}
		return s.repomanager.Transfers(tx).Create(ctx, t)
	})
}

func (s *CatalogService) Get(ctx context.Context, id string) (storage.FileRecord, error) {
	f, err := s.repomanager.Files(s.db).Get(ctx, id)
	if err != nil {
		return storage.FileRecord{}, err
	}
	return toRecord(f), nil
}

func (s *CatalogService) List(ctx context.Context) ([]storage.FileRecord, error) {
	files, err := s.repomanager.Files(s.db).List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]storage.FileRecord, 0, len(files))
	for _, f := range files {
		out = append(out, toRecord(f))
	}
	return out, nil
}

// Delete removes the file row; its transfer events cascade.
func (s *CatalogService) Delete(ctx context.Context, id string) error {
	err := s.repomanager.Files(s.db).Delete(ctx, id)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return fmt.Errorf("error deleting file: %w", err)
	}
	return err
}

func toRecord(f *models.File) storage.FileRecord {
	return storage.FileRecord{
		ID:          f.ID,
		Name:        f.Name,
		MimeType:    f.MimeType,
		Size:        f.Size,
		Checksum:    f.Checksum,
		CreatedTime: f.CreatedAt,
	}
}
