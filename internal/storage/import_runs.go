package storage

import (
	"context"
	"fmt"
	"time"
)

// InterruptedMessage is recorded on runs closed by ReconcileStaleRuns.
const InterruptedMessage = "import interrupted"

// CreateImportRun opens an audit entry in the processing state.
func (s *SQLiteStorage) CreateImportRun(ctx context.Context, filename, adminUser string) (int64, error) {
	now := s.now()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO import_runs (filename, admin_user, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		filename, adminUser, RunProcessing, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to create import run: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get insert ID: %w", err)
	}
	return id, nil
}

// FinishImportRun writes the terminal state of a processing run.
// Returns ErrNotFound if no processing run has that ID.
func (s *SQLiteStorage) FinishImportRun(ctx context.Context, id int64, r ImportRunResult) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE import_runs SET status = ?, records_imported = ?, records_updated = ?,
			records_new = ?, errors = ?, duration_seconds = ?, error_message = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		r.Status, r.RecordsImported, r.RecordsUpdated, r.RecordsNew, r.Errors,
		r.DurationSeconds, r.ErrorMessage, s.now(), id, RunProcessing)
	if err != nil {
		return fmt.Errorf("failed to finish import run: %w", err)
	}
	return requireAffected(result)
}

// ListImportRuns returns a page of runs, newest first, and the total count.
func (s *SQLiteStorage) ListImportRuns(ctx context.Context, limit, offset int) ([]*ImportRun, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM import_runs").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count import runs: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, filename, records_imported, records_updated, records_new, errors,
			duration_seconds, admin_user, status, error_message, created_at, updated_at
		FROM import_runs ORDER BY id DESC LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query import runs: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	runs := make([]*ImportRun, 0)
	for rows.Next() {
		var r ImportRun
		err := rows.Scan(&r.ID, &r.Filename, &r.RecordsImported, &r.RecordsUpdated, &r.RecordsNew,
			&r.Errors, &r.DurationSeconds, &r.AdminUser, &r.Status, &r.ErrorMessage,
			&r.CreatedAt, &r.UpdatedAt)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan import run row: %w", err)
		}
		runs = append(runs, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating import runs: %w", err)
	}
	return runs, total, nil
}

// ReconcileStaleRuns closes runs still processing that started before the
// given time, marking them as errors. Returns how many were closed.
func (s *SQLiteStorage) ReconcileStaleRuns(ctx context.Context, startedBefore time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE import_runs SET status = ?, error_message = ?, updated_at = ?
		WHERE status = ? AND created_at < ?`,
		RunError, InterruptedMessage, s.now(), RunProcessing, startedBefore.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to reconcile import runs: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}
