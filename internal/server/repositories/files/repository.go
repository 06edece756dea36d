// Package files declares the catalog repository for stored artifacts.
package files

import (
	"context"

	"github.com/dmitrijs2005/securexfer/internal/server/models"
)

// Repository defines catalog operations over the files table.
type Repository interface {
	// Create inserts a new row. CreatedAt is assigned by the database.
	Create(ctx context.Context, file *models.File) error
	// Get returns the row for id or common.ErrNotFound.
	Get(ctx context.Context, id string) (*models.File, error)
	// List returns all rows, newest first.
	List(ctx context.Context) ([]*models.File, error)
	// Delete removes the row for id or returns common.ErrNotFound.
	Delete(ctx context.Context, id string) error
}
