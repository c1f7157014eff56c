package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"webfile-go/internal/model"
)

// CreateOperation records the start of a command and returns the new entry.
func (s *SQLiteDatabase) CreateOperation(ctx context.Context, operation, parameters string, startedAt time.Time) (*model.Operation, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO operations (operation, parameters, started_at, status) VALUES (?, ?, ?, 'running')`,
		operation, parameters, startedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create operation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read operation id: %w", err)
	}

	return &model.Operation{
		ID:         id,
		Operation:  operation,
		Parameters: parameters,
		StartedAt:  startedAt,
		Status:     "running",
	}, nil
}

// FinishOperation stores the final status of an operation.
func (s *SQLiteDatabase) FinishOperation(ctx context.Context, id int64, status string, finishedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE operations SET status = ?, finished_at = ? WHERE id = ?`, status, finishedAt, id)
	if err != nil {
		return fmt.Errorf("failed to finish operation: %w", err)
	}
	return nil
}

// ListOperations returns the most recent operations, newest first.
func (s *SQLiteDatabase) ListOperations(ctx context.Context, limit int) ([]*model.Operation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, operation, parameters, started_at, finished_at, status
		 FROM operations ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}
	defer rows.Close()

	var out []*model.Operation
	for rows.Next() {
		var op model.Operation
		var finished sql.NullTime
		if err := rows.Scan(&op.ID, &op.Operation, &op.Parameters, &op.StartedAt, &finished, &op.Status); err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			op.FinishedAt = &t
		}
		out = append(out, &op)
	}
	return out, rows.Err()
}

// InsertReconciliation records a blob that needs manual repair.
func (s *SQLiteDatabase) InsertReconciliation(ctx context.Context, r *model.Reconciliation) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO reconciliations (file_id, digest, area, detail, created_at) VALUES (?, ?, ?, ?, ?)`,
		r.FileID, r.Digest, r.Area, r.Detail, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert reconciliation: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		r.ID = id
	}
	return nil
}

// ListReconciliations returns every recorded inconsistency, oldest first.
func (s *SQLiteDatabase) ListReconciliations(ctx context.Context) ([]*model.Reconciliation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, file_id, digest, area, detail, created_at FROM reconciliations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list reconciliations: %w", err)
	}
	defer rows.Close()

	var out []*model.Reconciliation
	for rows.Next() {
		var r model.Reconciliation
		if err := rows.Scan(&r.ID, &r.FileID, &r.Digest, &r.Area, &r.Detail, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan reconciliation: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}
