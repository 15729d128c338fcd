package files

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/theworldofobi/mini-dropbox/internal/common"
	"github.com/theworldofobi/mini-dropbox/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func fileColumns() []string {
	return []string{"id", "owner_id", "name", "folder_id", "current_version", "content_ref", "size", "created_at", "modified_at", "deleted_at"}
}

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	q := `(?s)^\s*INSERT\s+INTO\s+files\b.*RETURNING\s+created_at,\s*modified_at;?\s*$`

	mock.ExpectQuery(q).
		WithArgs("f1", "u1", "notes.txt", "", "blob-1", int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "modified_at"}).AddRow(now, now))

	f := &models.FileRecord{ID: "f1", OwnerID: "u1", Name: "notes.txt", ContentRef: "blob-1", Size: 42}
	if err := repo.Create(context.Background(), f); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.CurrentVersion != 1 {
		t.Fatalf("expected version 1 after create, got %d", f.CurrentVersion)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT .* FROM files WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetByID_ReturnsTombstone(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	deleted := now.Add(-time.Hour)
	mock.ExpectQuery(`SELECT .* FROM files WHERE id = \$1`).
		WithArgs("f1").
		WillReturnRows(sqlmock.NewRows(fileColumns()).
			AddRow("f1", "u1", "old.txt", "", int64(5), "blob-5", int64(10), now.Add(-2*time.Hour), deleted, deleted))

	f, err := repo.GetByID(context.Background(), "f1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !f.Deleted() {
		t.Fatalf("expected tombstone to resolve with DeletedAt set")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestIncrementVersion_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	q := `(?s)^\s*UPDATE\s+files\s+SET\s+current_version\s*=\s*current_version\s*\+\s*1\b.*RETURNING\s+current_version,\s*modified_at;?\s*$`

	mock.ExpectQuery(q).
		WithArgs("f1", "blob-2", int64(7), false).
		WillReturnRows(sqlmock.NewRows([]string{"current_version", "modified_at"}).AddRow(int64(4), now))

	version, modifiedAt, err := repo.IncrementVersion(context.Background(), "f1", "blob-2", 7, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if version != 4 {
		t.Fatalf("expected version 4, got %d", version)
	}
	if !modifiedAt.Equal(now) {
		t.Fatalf("expected modified_at %v, got %v", now, modifiedAt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestIncrementVersion_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`UPDATE\s+files\s+SET`).
		WithArgs("missing", "", int64(0), true).
		WillReturnError(sql.ErrNoRows)

	_, _, err := repo.IncrementVersion(context.Background(), "missing", "", 0, true)
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSelectChangedSince_ReturnsRows(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	since := now.Add(-time.Hour)
	mock.ExpectQuery(`SELECT .* FROM files\s+WHERE owner_id = \$1 AND modified_at > \$2`).
		WithArgs("u1", since).
		WillReturnRows(sqlmock.NewRows(fileColumns()).
			AddRow("f1", "u1", "a.txt", "", int64(2), "blob-a", int64(1), now.Add(-2*time.Hour), now, nil).
			AddRow("f2", "u1", "b.txt", "", int64(1), "blob-b", int64(2), now, now, nil))

	result, err := repo.SelectChangedSince(context.Background(), "u1", since)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(result))
	}
	if result[0].ID != "f1" || result[1].ID != "f2" {
		t.Fatalf("unexpected rows: %+v", result)
	}
}

func TestSelectLiveByOwner_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT .* FROM files\s+WHERE owner_id = \$1 AND deleted_at IS NULL`).
		WithArgs("u1").
		WillReturnError(errors.New("connection reset"))

	_, err := repo.SelectLiveByOwner(context.Background(), "u1")
	if err == nil {
		t.Fatalf("expected error")
	}
}
