package transfers

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/securexfer/internal/dbx"
	"github.com/dmitrijs2005/securexfer/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, t *models.Transfer) error {

	query :=
		`INSERT INTO transfers (file_id, direction, checksum)
         VALUES ($1, $2, $3)
		 RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query, t.FileID, t.Direction, t.Checksum).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return fmt.Errorf("error performing sql request: %v", err)
	}

	return nil
}

func (r *PostgresRepository) ListByFile(ctx context.Context, fileID string) ([]*models.Transfer, error) {
	query := `SELECT id, file_id, direction, checksum, created_at FROM transfers
		WHERE file_id=$1 ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, query, fileID)
	if err != nil {
		return nil, fmt.Errorf("error performing sql request: %v", err)
	}
	defer rows.Close()

	var result []*models.Transfer
	for rows.Next() {
		var t models.Transfer
		if err := rows.Scan(&t.ID, &t.FileID, &t.Direction, &t.Checksum, &t.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
