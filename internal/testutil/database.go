package testutil

import (
	"context"
	"testing"
	"time"

	"webfile-go/internal/database"
	"webfile-go/internal/database/migrations"
	"webfile-go/internal/model"
	"webfile-go/internal/webfile"
)

// NewTestDatabase creates a new in-memory SQLite database with schema applied.
// The database is automatically closed when the test completes.
func NewTestDatabase(t *testing.T) *database.SQLiteDatabase {
	t.Helper()

	db, err := database.NewSQLiteDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	if err := migrations.MigrateUp(db.DB()); err != nil {
		db.Close()
		t.Fatalf("failed to apply schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// FailingDatabase wraps a Database and fails selected writes with the
// configured errors. A nil error field passes the call through.
type FailingDatabase struct {
	webfile.Database

	InsertFileErr       error
	UpdateVisibilityErr error
	DeleteFileRowErr    error
	CountFilesAtErr     error
}

func (d *FailingDatabase) InsertFile(ctx context.Context, file *model.File) error {
	if d.InsertFileErr != nil {
		return d.InsertFileErr
	}
	return d.Database.InsertFile(ctx, file)
}

func (d *FailingDatabase) UpdateFileVisibility(ctx context.Context, id string, isPublic bool, modifiedAt time.Time) error {
	if d.UpdateVisibilityErr != nil {
		return d.UpdateVisibilityErr
	}
	return d.Database.UpdateFileVisibility(ctx, id, isPublic, modifiedAt)
}

func (d *FailingDatabase) DeleteFileRow(ctx context.Context, id string) error {
	if d.DeleteFileRowErr != nil {
		return d.DeleteFileRowErr
	}
	return d.Database.DeleteFileRow(ctx, id)
}

func (d *FailingDatabase) CountFilesAt(ctx context.Context, storagePath string, isPublic bool, excludeID string) (int, error) {
	if d.CountFilesAtErr != nil {
		return 0, d.CountFilesAtErr
	}
	return d.Database.CountFilesAt(ctx, storagePath, isPublic, excludeID)
}
