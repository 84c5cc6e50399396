package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const recordColumns = `id, rnc, nombre, estado, categoria, actividad_economica, fecha_registro, regimen,
	campo_3, campo_4, campo_5, campo_6, campo_7, campo_8, created_at, updated_at`

const insertRecordSQL = `INSERT INTO rnc_records (rnc, nombre, estado, categoria, actividad_economica,
	fecha_registro, regimen, campo_3, campo_4, campo_5, campo_6, campo_7, campo_8, created_at, updated_at,
	nombre_search)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// upsertRecordSQL overwrites every mapped field except the key.
const upsertRecordSQL = insertRecordSQL + `
	ON CONFLICT(rnc) DO UPDATE SET
		nombre = excluded.nombre,
		nombre_search = excluded.nombre_search,
		estado = excluded.estado,
		categoria = excluded.categoria,
		actividad_economica = excluded.actividad_economica,
		fecha_registro = excluded.fecha_registro,
		regimen = excluded.regimen,
		campo_3 = excluded.campo_3,
		campo_4 = excluded.campo_4,
		campo_5 = excluded.campo_5,
		campo_6 = excluded.campo_6,
		campo_7 = excluded.campo_7,
		campo_8 = excluded.campo_8,
		updated_at = excluded.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var r Record
	err := row.Scan(&r.ID, &r.RNC, &r.Nombre, &r.Estado, &r.Categoria, &r.ActividadEconomica,
		&r.FechaRegistro, &r.Regimen, &r.Campo3, &r.Campo4, &r.Campo5, &r.Campo6, &r.Campo7,
		&r.Campo8, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func recordArgs(r *Record, now any) []any {
	return []any{r.RNC, r.Nombre, r.Estado, r.Categoria, r.ActividadEconomica, r.FechaRegistro,
		r.Regimen, r.Campo3, r.Campo4, r.Campo5, r.Campo6, r.Campo7, r.Campo8, now, now,
		searchKey(r.Nombre)}
}

// GetRecord returns the record with the exact RNC.
// Returns ErrNotFound if the RNC is not in the registry.
func (s *SQLiteStorage) GetRecord(ctx context.Context, rnc string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+recordColumns+" FROM rnc_records WHERE rnc = ?", rnc)
	r, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return r, nil
}

// searchKey is the form names are matched in. SQLite LIKE folds ASCII
// only, so names are stored upper-cased with Unicode rules.
func searchKey(s string) string {
	return strings.ToUpper(s)
}

// SearchByName returns up to limit records whose name contains query,
// ignoring case, ordered by name then RNC.
func (s *SQLiteStorage) SearchByName(ctx context.Context, query string, limit int) ([]*Record, error) {
	pattern := "%" + escapeLike(searchKey(query)) + "%"
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+recordColumns+` FROM rnc_records
		WHERE nombre_search LIKE ? ESCAPE '\'
		ORDER BY nombre ASC, rnc ASC
		LIMIT ?`,
		pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search records: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	records := make([]*Record, 0)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record row: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}
	return records, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// CountRecords returns the number of stored records.
func (s *SQLiteStorage) CountRecords(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM rnc_records").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return count, nil
}

// SampleRNC returns the RNC of the first stored record.
// Returns ErrNotFound if the registry is empty.
func (s *SQLiteStorage) SampleRNC(ctx context.Context) (string, error) {
	var rnc string
	err := s.db.QueryRowContext(ctx, "SELECT rnc FROM rnc_records ORDER BY id ASC LIMIT 1").Scan(&rnc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to sample record: %w", err)
	}
	return rnc, nil
}

// ListRNCs returns the set of every stored RNC.
func (s *SQLiteStorage) ListRNCs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT rnc FROM rnc_records")
	if err != nil {
		return nil, fmt.Errorf("failed to list RNCs: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	known := make(map[string]struct{})
	for rows.Next() {
		var rnc string
		if err := rows.Scan(&rnc); err != nil {
			return nil, fmt.Errorf("failed to scan RNC: %w", err)
		}
		known[rnc] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating RNCs: %w", err)
	}
	return known, nil
}

// UpsertBatch writes records in a single transaction.
// Any failing record rolls back the whole batch. In InsertOnly mode an
// existing RNC fails with ErrDuplicate.
func (s *SQLiteStorage) UpsertBatch(ctx context.Context, records []Record, mode WriteMode) (BatchResult, error) {
	var result BatchResult
	if len(records) == 0 {
		return result, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("failed to begin batch: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := s.now()
	for i := range records {
		inserted, err := writeRecord(ctx, tx, &records[i], mode, now)
		if err != nil {
			return BatchResult{}, fmt.Errorf("record %s: %w", records[i].RNC, err)
		}
		if inserted {
			result.Inserted++
		} else {
			result.Updated++
		}
	}

	if err := tx.Commit(); err != nil {
		return BatchResult{}, fmt.Errorf("failed to commit batch: %w", err)
	}
	return result, nil
}

// UpsertOne writes a single record in its own statement.
// Reports whether a new row was inserted.
func (s *SQLiteStorage) UpsertOne(ctx context.Context, record Record, mode WriteMode) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin write: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	inserted, err := writeRecord(ctx, tx, &record, mode, s.now())
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit record: %w", err)
	}
	return inserted, nil
}

func writeRecord(ctx context.Context, tx *sql.Tx, r *Record, mode WriteMode, now any) (bool, error) {
	if mode == InsertOnly {
		if _, err := tx.ExecContext(ctx, insertRecordSQL, recordArgs(r, now)...); err != nil {
			if isUniqueViolation(err) {
				return false, ErrDuplicate
			}
			return false, fmt.Errorf("failed to insert record: %w", err)
		}
		return true, nil
	}

	var exists bool
	err := tx.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM rnc_records WHERE rnc = ?)", r.RNC).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check record: %w", err)
	}
	if _, err := tx.ExecContext(ctx, upsertRecordSQL, recordArgs(r, now)...); err != nil {
		return false, fmt.Errorf("failed to upsert record: %w", err)
	}
	return !exists, nil
}
