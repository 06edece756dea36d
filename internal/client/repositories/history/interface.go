package history

import (
	"context"

	"github.com/dmitrijs2005/securexfer/internal/client/models"
)

// Repository stores the local transfer history.
type Repository interface {
	// Add appends a transfer and fills in its ID.
	Add(ctx context.Context, t *models.Transfer) error

	// List returns up to limit transfers, newest first. A limit <= 0 means all.
	List(ctx context.Context, limit int) ([]*models.Transfer, error)

	// LastByRemoteID returns the most recent transfer of remoteID.
	LastByRemoteID(ctx context.Context, remoteID string) (*models.Transfer, error)
}
