// Package transfers declares the repository for the transfer audit trail.
package transfers

import (
	"context"

	"github.com/dmitrijs2005/securexfer/internal/server/models"
)

// Repository records and reads transfer events.
type Repository interface {
	// Create stores a transfer event. ID and CreatedAt are assigned by the database.
	Create(ctx context.Context, t *models.Transfer) error

	// ListByFile returns the events of fileID, oldest first.
	ListByFile(ctx context.Context, fileID string) ([]*models.Transfer, error)
}
