package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"webfile-go/internal/model"
	"webfile-go/internal/webfile"
)

const fileColumns = `id, name, folder_id, owner_id, is_public, digest, size, mime_type, storage_path,
	original_filename, description, created_at, uploaded_at, modified_at`

func scanFile(r rowScanner) (*model.File, error) {
	var f model.File
	var folder, owner sql.NullString
	err := r.Scan(&f.ID, &f.Name, &folder, &owner, &f.IsPublic, &f.Digest, &f.Size, &f.MimeType,
		&f.StoragePath, &f.OriginalFilename, &f.Description, &f.CreatedAt, &f.UploadedAt, &f.ModifiedAt)
	if err != nil {
		return nil, err
	}
	f.FolderID = fromNull(folder)
	f.OwnerID = fromNull(owner)
	return &f, nil
}

func queryFiles(ctx context.Context, q querier, query string, args ...any) ([]*model.File, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// InsertFile stores a new file row. The folder must exist.
func (s *SQLiteDatabase) InsertFile(ctx context.Context, file *model.File) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO files (`+fileColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		file.ID, file.Name, nullable(file.FolderID), nullable(file.OwnerID), file.IsPublic, file.Digest,
		file.Size, file.MimeType, file.StoragePath, file.OriginalFilename, file.Description,
		file.CreatedAt, file.UploadedAt, file.ModifiedAt)
	if err != nil {
		return fmt.Errorf("failed to insert file: %w", err)
	}
	return nil
}

// GetFile retrieves a file by ID. Returns nil if not found.
func (s *SQLiteDatabase) GetFile(ctx context.Context, id string) (*model.File, error) {
	f, err := scanFile(s.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return f, nil
}

// ListFolderFiles returns the files directly in folderID, by name.
func (s *SQLiteDatabase) ListFolderFiles(ctx context.Context, folderID *string) ([]*model.File, error) {
	files, err := queryFiles(ctx, s.db,
		`SELECT `+fileColumns+` FROM files WHERE folder_id IS ? ORDER BY name, id`, nullable(folderID))
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	return files, nil
}

// FilesInSubtree returns the files in folderID and every folder below it.
func (s *SQLiteDatabase) FilesInSubtree(ctx context.Context, folderID string) ([]*model.File, error) {
	files, err := queryFiles(ctx, s.db,
		`SELECT files.id, files.name, files.folder_id, files.owner_id, files.is_public, files.digest,
		        files.size, files.mime_type, files.storage_path, files.original_filename,
		        files.description, files.created_at, files.uploaded_at, files.modified_at
		 FROM files
		 JOIN folders d ON files.folder_id = d.id
		 JOIN folders f ON f.lft <= d.lft AND d.rgt <= f.rgt
		 WHERE f.id = ?
		 ORDER BY d.lft, files.name, files.id`, folderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subtree files: %w", err)
	}
	return files, nil
}

// UpdateFileVisibility flips the area flag of a file row.
func (s *SQLiteDatabase) UpdateFileVisibility(ctx context.Context, id string, isPublic bool, modifiedAt time.Time) error {
	return s.updateFile(ctx, id, `UPDATE files SET is_public = ? WHERE id = ?`, isPublic, modifiedAt)
}

// RenameFile changes the display name of a file. File names need not be
// unique within a folder.
func (s *SQLiteDatabase) RenameFile(ctx context.Context, id, name string, modifiedAt time.Time) error {
	return s.updateFile(ctx, id, `UPDATE files SET name = ? WHERE id = ?`, name, modifiedAt)
}

func (s *SQLiteDatabase) updateFile(ctx context.Context, id, query string, value any, modifiedAt time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, query, value, id)
	if err != nil {
		return fmt.Errorf("failed to update file: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: file %s", webfile.ErrNotFound, id)
	}
	if err := touchModified(ctx, tx, "files", id, modifiedAt); err != nil {
		return fmt.Errorf("failed to update modified time: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// DeleteFileRow removes a file row and the rules attached to it.
func (s *SQLiteDatabase) DeleteFileRow(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: file %s", webfile.ErrNotFound, id)
	}
	return nil
}

// CountFilesAt counts the rows sharing the blob at (storagePath, isPublic).
func (s *SQLiteDatabase) CountFilesAt(ctx context.Context, storagePath string, isPublic bool, excludeID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM files WHERE storage_path = ? AND is_public = ? AND id != ?`,
		storagePath, isPublic, excludeID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count blob references: %w", err)
	}
	return n, nil
}

// FilesByDigest returns every file with the given digest, oldest first.
func (s *SQLiteDatabase) FilesByDigest(ctx context.Context, digest string) ([]*model.File, error) {
	files, err := queryFiles(ctx, s.db,
		`SELECT `+fileColumns+` FROM files WHERE digest = ? ORDER BY uploaded_at, id`, digest)
	if err != nil {
		return nil, fmt.Errorf("failed to find files by digest: %w", err)
	}
	return files, nil
}

// DuplicateFiles returns every file whose non-empty digest is shared.
func (s *SQLiteDatabase) DuplicateFiles(ctx context.Context) ([]*model.File, error) {
	files, err := queryFiles(ctx, s.db,
		`SELECT `+fileColumns+` FROM files
		 WHERE digest IN (
		     SELECT digest FROM files WHERE digest != '' GROUP BY digest HAVING COUNT(*) > 1
		 )
		 ORDER BY digest, uploaded_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to find duplicates: %w", err)
	}
	return files, nil
}
