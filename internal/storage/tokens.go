package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const tokenColumns = `id, token_hash, name, requests_per_hour, requests_used, window_start, is_active,
	expires_at, created_by, created_at, last_used_at`

func scanToken(row rowScanner) (*Token, error) {
	var t Token
	var expiresAt, lastUsedAt sql.NullTime
	err := row.Scan(&t.ID, &t.TokenHash, &t.Name, &t.RequestsPerHour, &t.RequestsUsed,
		&t.WindowStart, &t.IsActive, &expiresAt, &t.CreatedBy, &t.CreatedAt, &lastUsedAt)
	if err != nil {
		return nil, err
	}
	if expiresAt.Valid {
		v := expiresAt.Time
		t.ExpiresAt = &v
	}
	if lastUsedAt.Valid {
		v := lastUsedAt.Time
		t.LastUsedAt = &v
	}
	return &t, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// CreateToken stores a new active token with a fresh quota window.
// Returns ErrDuplicate if a token with this hash already exists.
func (s *SQLiteStorage) CreateToken(ctx context.Context, token *Token) (*Token, error) {
	now := s.now()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO api_tokens (token_hash, name, requests_per_hour, requests_used, window_start,
			is_active, expires_at, created_by, created_at)
		VALUES (?, ?, ?, 0, ?, TRUE, ?, ?, ?)`,
		token.TokenHash, token.Name, token.RequestsPerHour, now, nullTime(token.ExpiresAt),
		token.CreatedBy, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("failed to create token: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get insert ID: %w", err)
	}

	created := *token
	created.ID = id
	created.RequestsUsed = 0
	created.WindowStart = now
	created.IsActive = true
	created.CreatedAt = now
	created.LastUsedAt = nil
	return &created, nil
}

// GetTokenByID retrieves a token by ID.
// Returns ErrNotFound if the token doesn't exist.
func (s *SQLiteStorage) GetTokenByID(ctx context.Context, id int64) (*Token, error) {
	t, err := scanToken(s.db.QueryRowContext(ctx,
		"SELECT "+tokenColumns+" FROM api_tokens WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get token by ID: %w", err)
	}
	return t, nil
}

// GetTokenByHash retrieves a token by the hash of its credential.
// Returns ErrNotFound if the hash doesn't exist.
func (s *SQLiteStorage) GetTokenByHash(ctx context.Context, tokenHash string) (*Token, error) {
	t, err := scanToken(s.db.QueryRowContext(ctx,
		"SELECT "+tokenColumns+" FROM api_tokens WHERE token_hash = ?", tokenHash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get token by hash: %w", err)
	}
	return t, nil
}

// ListTokens returns all tokens, newest first.
// Returns empty slice if no tokens exist.
func (s *SQLiteStorage) ListTokens(ctx context.Context) ([]*Token, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+tokenColumns+" FROM api_tokens ORDER BY created_at DESC, id DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to query tokens: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	tokens := make([]*Token, 0)
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan token row: %w", err)
		}
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tokens: %w", err)
	}
	return tokens, nil
}

// SetTokenActive activates or deactivates a token.
// Returns ErrNotFound if the token doesn't exist.
func (s *SQLiteStorage) SetTokenActive(ctx context.Context, id int64, active bool) error {
	result, err := s.db.ExecContext(ctx, "UPDATE api_tokens SET is_active = ? WHERE id = ?", active, id)
	if err != nil {
		return fmt.Errorf("failed to update token: %w", err)
	}
	return requireAffected(result)
}

// DeleteToken deletes a token by ID.
// Returns ErrNotFound if the token doesn't exist.
func (s *SQLiteStorage) DeleteToken(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM api_tokens WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return requireAffected(result)
}

func requireAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountTokens returns the total and active token counts.
func (s *SQLiteStorage) CountTokens(ctx context.Context) (int, int, error) {
	var total, active int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(CASE WHEN is_active THEN 1 ELSE 0 END), 0) FROM api_tokens").
		Scan(&total, &active)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count tokens: %w", err)
	}
	return total, active, nil
}

// UpdateTokenQuota loads a token and lets fn adjust its quota counters,
// all inside one transaction. The counters are written back even when fn
// returns an error, so a rolled window persists for a rejected request.
// The token as left by fn is returned together with fn's error.
// Returns ErrNotFound if the hash doesn't exist.
func (s *SQLiteStorage) UpdateTokenQuota(ctx context.Context, tokenHash string, fn func(t *Token) error) (*Token, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin quota update: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	// Write before reading. A deferred transaction that reads first cannot
	// upgrade once another connection, such as a CLI import in a separate
	// process, commits in between, and busy_timeout does not retry that case.
	_, err = tx.ExecContext(ctx,
		"UPDATE api_tokens SET requests_used = requests_used WHERE token_hash = ?", tokenHash)
	if err != nil {
		return nil, fmt.Errorf("failed to lock token: %w", err)
	}

	t, err := scanToken(tx.QueryRowContext(ctx,
		"SELECT "+tokenColumns+" FROM api_tokens WHERE token_hash = ?", tokenHash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load token: %w", err)
	}

	fnErr := fn(t)

	_, err = tx.ExecContext(ctx,
		"UPDATE api_tokens SET requests_used = ?, window_start = ?, last_used_at = ? WHERE id = ?",
		t.RequestsUsed, t.WindowStart.UTC(), nullTime(t.LastUsedAt), t.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to save token quota: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit token quota: %w", err)
	}

	return t, fnErr
}
