package transfers

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/securexfer/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

const (
	insertQ = `(?s)^INSERT\s+INTO\s+transfers\b.*VALUES\s*\(\$1,\s*\$2,\s*\$3\)\s*RETURNING id, created_at$`
	listQ   = `(?s)^SELECT id, file_id, direction, checksum, created_at FROM transfers\s+WHERE file_id=\$1 ORDER BY created_at, id$`
)

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	created := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(insertQ).
		WithArgs("files/a", models.DirectionUpload, "abc").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("t-1", created))

	tr := &models.Transfer{FileID: "files/a", Direction: models.DirectionUpload, Checksum: "abc"}
	if err := repo.Create(context.Background(), tr); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.ID != "t-1" || !tr.CreatedAt.Equal(created) {
		t.Fatalf("returned columns not scanned: %+v", tr)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(insertQ).
		WithArgs("files/a", models.DirectionDownload, "").
		WillReturnError(errors.New("db down"))

	err := repo.Create(context.Background(), &models.Transfer{FileID: "files/a", Direction: models.DirectionDownload})
	if err == nil || !regexp.MustCompile(`error performing sql request: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestListByFile(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery(listQ).WithArgs("files/a").
		WillReturnRows(sqlmock.NewRows([]string{"id", "file_id", "direction", "checksum", "created_at"}).
			AddRow("t-1", "files/a", "upload", "c", now).
			AddRow("t-2", "files/a", "download", "c", now.Add(time.Minute)))

	got, err := repo.ListByFile(context.Background(), "files/a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].Direction != "upload" || got[1].Direction != "download" {
		t.Fatalf("bad rows: %+v", got)
	}

	mock.ExpectQuery(listQ).WithArgs("files/b").WillReturnError(errors.New("db err"))
	if _, err := repo.ListByFile(context.Background(), "files/b"); err == nil {
		t.Fatal("expected error")
	}
}
