package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"webfile-go/internal/model"
	"webfile-go/internal/permission"
	"webfile-go/internal/webfile"
)

const permissionColumns = `id, folder_id, file_id, type, subject_kind, subject_id, can_edit, can_read, can_add_children`

func scanPermission(r rowScanner) (*model.ItemPermission, error) {
	var p model.ItemPermission
	var folder, file sql.NullString
	var kind string
	err := r.Scan(&p.ID, &folder, &file, &p.Type, &kind, &p.Subject.ID, &p.CanEdit, &p.CanRead, &p.CanAddChildren)
	if err != nil {
		return nil, err
	}
	p.Subject.Kind = model.SubjectKind(kind)
	switch {
	case folder.Valid:
		p.Item = &model.ItemRef{Kind: model.KindFolder, ID: folder.String}
	case file.Valid:
		p.Item = &model.ItemRef{Kind: model.KindFile, ID: file.String}
	}
	return &p, nil
}

func queryPermissions(ctx context.Context, q querier, query string, args ...any) ([]*model.ItemPermission, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.ItemPermission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// InsertPermission stores a rule. The item it points at must exist.
func (s *SQLiteDatabase) InsertPermission(ctx context.Context, p *model.ItemPermission) error {
	var folderID, fileID any
	if p.Item != nil {
		switch p.Item.Kind {
		case model.KindFolder:
			folderID = p.Item.ID
		case model.KindFile:
			fileID = p.Item.ID
		default:
			return fmt.Errorf("%w: unknown item kind %q", webfile.ErrInvalidInput, p.Item.Kind)
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO item_permissions (`+permissionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, folderID, fileID, p.Type, string(p.Subject.Kind), p.Subject.ID, p.CanEdit, p.CanRead, p.CanAddChildren)
	if err != nil {
		return fmt.Errorf("failed to insert permission: %w", err)
	}
	return nil
}

// DeletePermission removes a rule by ID.
func (s *SQLiteDatabase) DeletePermission(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM item_permissions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete permission: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: permission %s", webfile.ErrNotFound, id)
	}
	return nil
}

// GetPermission retrieves a rule by ID. Returns nil if not found.
func (s *SQLiteDatabase) GetPermission(ctx context.Context, id string) (*model.ItemPermission, error) {
	p, err := scanPermission(s.db.QueryRowContext(ctx,
		`SELECT `+permissionColumns+` FROM item_permissions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get permission: %w", err)
	}
	return p, nil
}

// ListPermissions returns the rules on item, or the global rules.
func (s *SQLiteDatabase) ListPermissions(ctx context.Context, item *model.ItemRef) ([]*model.ItemPermission, error) {
	query := `SELECT ` + permissionColumns + ` FROM item_permissions `
	var args []any
	switch {
	case item == nil:
		query += `WHERE folder_id IS NULL AND file_id IS NULL`
	case item.Kind == model.KindFolder:
		query += `WHERE folder_id = ?`
		args = append(args, item.ID)
	case item.Kind == model.KindFile:
		query += `WHERE file_id = ?`
		args = append(args, item.ID)
	default:
		return nil, fmt.Errorf("%w: unknown item kind %q", webfile.ErrInvalidInput, item.Kind)
	}

	rules, err := queryPermissions(ctx, s.db, query+` ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	return rules, nil
}

// PermissionSnapshot reads every rule and the folder tree in one transaction
// so a resolution never mixes rules and bounds from different moments.
func (s *SQLiteDatabase) PermissionSnapshot(ctx context.Context) (*permission.Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rules, err := queryPermissions(ctx, tx, `SELECT `+permissionColumns+` FROM item_permissions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to load permissions: %w", err)
	}
	forest, err := loadForest(ctx, tx)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &permission.Snapshot{Rules: rules, Forest: forest}, nil
}

// ForgetUser clears ownership and deletes rules that name userID.
func (s *SQLiteDatabase) ForgetUser(ctx context.Context, userID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		`UPDATE folders SET owner_id = NULL WHERE owner_id = ?`,
		`UPDATE files SET owner_id = NULL WHERE owner_id = ?`,
		`DELETE FROM item_permissions WHERE subject_kind = 'user' AND subject_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, userID); err != nil {
			return fmt.Errorf("failed to forget user: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
