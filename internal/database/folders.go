package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"webfile-go/internal/model"
	"webfile-go/internal/tree"
	"webfile-go/internal/webfile"
)

const folderColumns = `id, name, parent_id, owner_id, is_public, lft, rgt, depth, created_at, uploaded_at, modified_at`

func scanFolder(r rowScanner) (*model.Folder, error) {
	var f model.Folder
	var parent, owner sql.NullString
	err := r.Scan(&f.ID, &f.Name, &parent, &owner, &f.IsPublic, &f.Left, &f.Right, &f.Depth,
		&f.CreatedAt, &f.UploadedAt, &f.ModifiedAt)
	if err != nil {
		return nil, err
	}
	f.ParentID = fromNull(parent)
	f.OwnerID = fromNull(owner)
	return &f, nil
}

func queryFolders(ctx context.Context, q querier, query string, args ...any) ([]*model.Folder, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Folder
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// loadForest reads the nested-set columns of every folder.
func loadForest(ctx context.Context, q querier) (*tree.Forest, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, parent_id, lft, rgt, depth FROM folders ORDER BY lft`)
	if err != nil {
		return nil, fmt.Errorf("loading folder tree: %w", err)
	}
	defer rows.Close()

	var rs []tree.Row
	for rows.Next() {
		var r tree.Row
		var parent sql.NullString
		if err := rows.Scan(&r.ID, &parent, &r.Left, &r.Right, &r.Depth); err != nil {
			return nil, fmt.Errorf("loading folder tree: %w", err)
		}
		r.ParentID = fromNull(parent)
		rs = append(rs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loading folder tree: %w", err)
	}

	forest, err := tree.New(rs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", webfile.ErrTreeIntegrity, err)
	}
	return forest, nil
}

// mutateTree runs fn against the in-memory forest inside one transaction,
// then writes back every row whose bounds changed. Nothing is committed if
// fn fails or the resulting tree is inconsistent.
func (s *SQLiteDatabase) mutateTree(ctx context.Context, fn func(tx *sql.Tx, forest *tree.Forest) error) error {
	s.treeMu.Lock()
	defer s.treeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	forest, err := loadForest(ctx, tx)
	if err != nil {
		return err
	}

	if err := fn(tx, forest); err != nil {
		return err
	}

	if err := forest.Validate(); err != nil {
		return fmt.Errorf("%w: %v", webfile.ErrTreeIntegrity, err)
	}

	stmt, err := tx.PrepareContext(ctx, `UPDATE folders SET lft = ?, rgt = ?, depth = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare bounds update: %w", err)
	}
	defer stmt.Close()

	for id, b := range forest.Changed() {
		if _, err := stmt.ExecContext(ctx, b.Left, b.Right, b.Depth, id); err != nil {
			return fmt.Errorf("failed to update bounds of %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// siblingNameTaken reports whether another folder under parent already uses
// name. excludeID is ignored so a folder never conflicts with itself.
func siblingNameTaken(ctx context.Context, q querier, parent *string, name, excludeID string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM folders WHERE parent_id IS ? AND name = ? AND id != ?`,
		nullable(parent), name, excludeID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking sibling names: %w", err)
	}
	return n > 0, nil
}

// touchModified sets modified_at to now unless the stored value is later.
func touchModified(ctx context.Context, q querier, table, id string, now time.Time) error {
	var prev time.Time
	err := q.QueryRowContext(ctx, `SELECT modified_at FROM `+table+` WHERE id = ?`, id).Scan(&prev)
	if err != nil {
		return err
	}
	if now.Before(prev) {
		now = prev
	}
	_, err = q.ExecContext(ctx, `UPDATE `+table+` SET modified_at = ? WHERE id = ?`, now, id)
	return err
}

// CreateFolder inserts a folder as the last child of its parent.
func (s *SQLiteDatabase) CreateFolder(ctx context.Context, folder *model.Folder) error {
	return s.mutateTree(ctx, func(tx *sql.Tx, forest *tree.Forest) error {
		parent := ""
		if folder.ParentID != nil {
			parent = *folder.ParentID
			if !forest.Has(parent) {
				return fmt.Errorf("%w: folder %s does not exist", webfile.ErrInvalidParent, parent)
			}
		}

		taken, err := siblingNameTaken(ctx, tx, folder.ParentID, folder.Name, folder.ID)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: folder %q already exists here", webfile.ErrNameConflict, folder.Name)
		}

		if err := forest.Add(folder.ID, parent); err != nil {
			return fmt.Errorf("%w: %v", webfile.ErrTreeIntegrity, err)
		}
		b, _ := forest.Bounds(folder.ID)
		folder.Left, folder.Right, folder.Depth = b.Left, b.Right, b.Depth

		_, err = tx.ExecContext(ctx,
			`INSERT INTO folders (`+folderColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			folder.ID, folder.Name, nullable(folder.ParentID), nullable(folder.OwnerID), folder.IsPublic,
			folder.Left, folder.Right, folder.Depth, folder.CreatedAt, folder.UploadedAt, folder.ModifiedAt)
		if err != nil {
			return fmt.Errorf("failed to insert folder: %w", err)
		}
		return nil
	})
}

// MoveFolder re-attaches a folder under newParent, or makes it a root.
func (s *SQLiteDatabase) MoveFolder(ctx context.Context, id string, newParent *string, modifiedAt time.Time) error {
	return s.mutateTree(ctx, func(tx *sql.Tx, forest *tree.Forest) error {
		if !forest.Has(id) {
			return fmt.Errorf("%w: folder %s", webfile.ErrNotFound, id)
		}
		parent := ""
		if newParent != nil {
			parent = *newParent
			if !forest.Has(parent) {
				return fmt.Errorf("%w: folder %s does not exist", webfile.ErrInvalidParent, parent)
			}
		}

		var name string
		if err := tx.QueryRowContext(ctx, `SELECT name FROM folders WHERE id = ?`, id).Scan(&name); err != nil {
			return fmt.Errorf("failed to load folder: %w", err)
		}
		taken, err := siblingNameTaken(ctx, tx, newParent, name, id)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: folder %q already exists in the destination", webfile.ErrNameConflict, name)
		}

		if err := forest.Move(id, parent); err != nil {
			if errors.Is(err, tree.ErrCyclicMove) {
				return fmt.Errorf("%w: %w", webfile.ErrTreeIntegrity, err)
			}
			return err
		}

		if _, err := tx.ExecContext(ctx, `UPDATE folders SET parent_id = ? WHERE id = ?`, nullable(newParent), id); err != nil {
			return fmt.Errorf("failed to update parent: %w", err)
		}
		if err := touchModified(ctx, tx, "folders", id, modifiedAt); err != nil {
			return fmt.Errorf("failed to update modified time: %w", err)
		}
		return nil
	})
}

// RenameFolder changes a folder name. It runs under the tree lock so the
// sibling check cannot race a concurrent create or move.
func (s *SQLiteDatabase) RenameFolder(ctx context.Context, id, name string, modifiedAt time.Time) error {
	return s.mutateTree(ctx, func(tx *sql.Tx, forest *tree.Forest) error {
		if !forest.Has(id) {
			return fmt.Errorf("%w: folder %s", webfile.ErrNotFound, id)
		}

		var parent sql.NullString
		if err := tx.QueryRowContext(ctx, `SELECT parent_id FROM folders WHERE id = ?`, id).Scan(&parent); err != nil {
			return fmt.Errorf("failed to load folder: %w", err)
		}
		taken, err := siblingNameTaken(ctx, tx, fromNull(parent), name, id)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: folder %q already exists here", webfile.ErrNameConflict, name)
		}

		if _, err := tx.ExecContext(ctx, `UPDATE folders SET name = ? WHERE id = ?`, name, id); err != nil {
			return fmt.Errorf("failed to rename folder: %w", err)
		}
		if err := touchModified(ctx, tx, "folders", id, modifiedAt); err != nil {
			return fmt.Errorf("failed to update modified time: %w", err)
		}
		return nil
	})
}

// DeleteFolderTree removes a folder and its subtree. Files and rules still
// attached to removed folders go with them through ON DELETE CASCADE; the
// file rows are returned so their blobs can be released.
func (s *SQLiteDatabase) DeleteFolderTree(ctx context.Context, id string) ([]string, []*model.File, error) {
	var removed []string
	var stragglers []*model.File

	err := s.mutateTree(ctx, func(tx *sql.Tx, forest *tree.Forest) error {
		ids, err := forest.Remove(id)
		if err != nil {
			if errors.Is(err, tree.ErrUnknownNode) {
				return fmt.Errorf("%w: folder %s", webfile.ErrNotFound, id)
			}
			return err
		}

		files, err := queryFiles(ctx, tx,
			`SELECT `+fileColumns+` FROM files WHERE folder_id IN (`+placeholders(len(ids))+`)`,
			stringArgs(ids)...)
		if err != nil {
			return fmt.Errorf("failed to collect files: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM folders WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete folder: %w", err)
		}

		removed = ids
		stragglers = files
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return removed, stragglers, nil
}

// GetFolder retrieves a folder by ID. Returns nil if not found.
func (s *SQLiteDatabase) GetFolder(ctx context.Context, id string) (*model.Folder, error) {
	f, err := scanFolder(s.db.QueryRowContext(ctx, `SELECT `+folderColumns+` FROM folders WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get folder: %w", err)
	}
	return f, nil
}

// ListChildFolders returns the direct children of parentID in tree order.
func (s *SQLiteDatabase) ListChildFolders(ctx context.Context, parentID *string) ([]*model.Folder, error) {
	folders, err := queryFolders(ctx, s.db,
		`SELECT `+folderColumns+` FROM folders WHERE parent_id IS ? ORDER BY lft`, nullable(parentID))
	if err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}
	return folders, nil
}

// FolderAncestors returns the folders whose range encloses id, root first.
func (s *SQLiteDatabase) FolderAncestors(ctx context.Context, id string) ([]*model.Folder, error) {
	folders, err := queryFolders(ctx, s.db,
		`SELECT a.id, a.name, a.parent_id, a.owner_id, a.is_public, a.lft, a.rgt, a.depth,
		        a.created_at, a.uploaded_at, a.modified_at
		 FROM folders a JOIN folders f ON a.lft < f.lft AND f.rgt < a.rgt
		 WHERE f.id = ?
		 ORDER BY a.lft`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list ancestors: %w", err)
	}
	return folders, nil
}

// FolderDescendants returns the folders inside id's range in tree order.
func (s *SQLiteDatabase) FolderDescendants(ctx context.Context, id string) ([]*model.Folder, error) {
	folders, err := queryFolders(ctx, s.db,
		`SELECT d.id, d.name, d.parent_id, d.owner_id, d.is_public, d.lft, d.rgt, d.depth,
		        d.created_at, d.uploaded_at, d.modified_at
		 FROM folders d JOIN folders f ON f.lft < d.lft AND d.rgt < f.rgt
		 WHERE f.id = ?
		 ORDER BY d.lft`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list descendants: %w", err)
	}
	return folders, nil
}

// CountFolderContents returns the number of direct child folders and files.
func (s *SQLiteDatabase) CountFolderContents(ctx context.Context, id string) (int, int, error) {
	var folders, files int
	err := s.db.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM folders WHERE parent_id = ?),
		        (SELECT COUNT(*) FROM files WHERE folder_id = ?)`, id, id).Scan(&folders, &files)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count folder contents: %w", err)
	}
	return folders, files, nil
}
