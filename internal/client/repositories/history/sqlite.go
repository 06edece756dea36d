package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/securexfer/internal/client/models"
	"github.com/dmitrijs2005/securexfer/internal/common"
	"github.com/dmitrijs2005/securexfer/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Add(ctx context.Context, t *models.Transfer) error {

	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO transfers (remote_id, name, direction, size, checksum, created_at)
			values (?, ?, ?, ?, ?, ?)`
	result, err := r.db.ExecContext(ctx, query, t.RemoteID, t.Name, t.Direction, t.Size, t.Checksum, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert transfer: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	t.ID = id

	return nil
}

func (r *SQLiteRepository) List(ctx context.Context, limit int) ([]*models.Transfer, error) {

	query := `select id, remote_id, name, direction, size, checksum, created_at from transfers
			order by created_at desc, id desc`
	args := []any{}
	if limit > 0 {
		query += ` limit ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error selecting transfers: %w", err)
	}
	defer rows.Close()

	var result []*models.Transfer

	for rows.Next() {
		item := &models.Transfer{}
		err := rows.Scan(&item.ID, &item.RemoteID, &item.Name, &item.Direction, &item.Size, &item.Checksum, &item.CreatedAt)
		if err != nil {
			return nil, err
		}
		result = append(result, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *SQLiteRepository) LastByRemoteID(ctx context.Context, remoteID string) (*models.Transfer, error) {

	query := `select id, remote_id, name, direction, size, checksum, created_at from transfers
			where remote_id=? order by created_at desc, id desc limit 1`
	row := r.db.QueryRowContext(ctx, query, remoteID)

	t := &models.Transfer{}
	err := row.Scan(&t.ID, &t.RemoteID, &t.Name, &t.Direction, &t.Size, &t.Checksum, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("failed to select transfer: %w", err)
	}

	return t, nil
}
