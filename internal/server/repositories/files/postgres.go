package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/securexfer/internal/common"
	"github.com/dmitrijs2005/securexfer/internal/dbx"
	"github.com/dmitrijs2005/securexfer/internal/server/models"
)

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, file *models.File) error {
	query := `
		INSERT INTO files (id, name, mime_type, size, checksum)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		file.ID, file.Name, file.MimeType, file.Size, file.Checksum).Scan(&file.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.File, error) {
	query := `SELECT id, name, mime_type, size, checksum, created_at FROM files WHERE id=$1`

	var f models.File
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&f.ID, &f.Name, &f.MimeType, &f.Size, &f.Checksum, &f.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("failed to select file: %w", err)
	}
	return &f, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]*models.File, error) {
	query := `SELECT id, name, mime_type, size, checksum, created_at FROM files ORDER BY created_at DESC, id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select files: %w", err)
	}
	defer rows.Close()

	var result []*models.File
	for rows.Next() {
		var f models.File
		if err := rows.Scan(&f.ID, &f.Name, &f.MimeType, &f.Size, &f.Checksum, &f.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM files WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}
