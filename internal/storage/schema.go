package storage

import (
	"database/sql"
	"fmt"
)

// InitSchema creates all required tables and indexes.
// This is idempotent - safe to call multiple times.
func InitSchema(db *sql.DB) error {
	ddlStatements := []string{
		// rnc_records: one row per taxpayer, keyed by RNC
		`CREATE TABLE IF NOT EXISTS rnc_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			rnc TEXT NOT NULL UNIQUE,
			nombre TEXT NOT NULL DEFAULT '',
			nombre_search TEXT NOT NULL DEFAULT '',
			estado TEXT NOT NULL DEFAULT '',
			categoria TEXT NOT NULL DEFAULT '',
			actividad_economica TEXT NOT NULL DEFAULT '',
			fecha_registro TEXT NOT NULL DEFAULT '',
			regimen TEXT NOT NULL DEFAULT '',
			campo_3 TEXT NOT NULL DEFAULT '',
			campo_4 TEXT NOT NULL DEFAULT '',
			campo_5 TEXT NOT NULL DEFAULT '',
			campo_6 TEXT NOT NULL DEFAULT '',
			campo_7 TEXT NOT NULL DEFAULT '',
			campo_8 TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_rnc_records_nombre ON rnc_records(nombre)`,
		`CREATE INDEX IF NOT EXISTS idx_rnc_records_nombre_search ON rnc_records(nombre_search)`,

		// api_tokens: bearer credentials with an hourly quota window
		`CREATE TABLE IF NOT EXISTS api_tokens (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			token_hash TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			requests_per_hour INTEGER NOT NULL,
			requests_used INTEGER NOT NULL DEFAULT 0,
			window_start TIMESTAMP NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			expires_at TIMESTAMP,
			created_by TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			last_used_at TIMESTAMP
		)`,

		// import_runs: audit log of registry imports
		`CREATE TABLE IF NOT EXISTS import_runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			filename TEXT NOT NULL,
			records_imported INTEGER NOT NULL DEFAULT 0,
			records_updated INTEGER NOT NULL DEFAULT 0,
			records_new INTEGER NOT NULL DEFAULT 0,
			errors INTEGER NOT NULL DEFAULT 0,
			duration_seconds REAL NOT NULL DEFAULT 0,
			admin_user TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			error_message TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_import_runs_status ON import_runs(status)`,
	}

	for _, stmt := range ddlStatements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute DDL: %w", err)
		}
	}

	return nil
}
