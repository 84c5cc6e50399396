// Package storage provides SQLite persistence for registry records, access
// tokens and the import audit log.
package storage

import (
	"context"
	"time"
)

// RecordStore is the keyed collection of registry records.
type RecordStore interface {
	GetRecord(ctx context.Context, rnc string) (*Record, error)
	SearchByName(ctx context.Context, query string, limit int) ([]*Record, error)
	CountRecords(ctx context.Context) (int64, error)
	SampleRNC(ctx context.Context) (string, error)
	ListRNCs(ctx context.Context) (map[string]struct{}, error)
	UpsertBatch(ctx context.Context, records []Record, mode WriteMode) (BatchResult, error)
	UpsertOne(ctx context.Context, record Record, mode WriteMode) (inserted bool, err error)
}

// TokenStore persists access tokens and their hourly quota counters.
type TokenStore interface {
	CreateToken(ctx context.Context, token *Token) (*Token, error)
	GetTokenByID(ctx context.Context, id int64) (*Token, error)
	GetTokenByHash(ctx context.Context, tokenHash string) (*Token, error)
	ListTokens(ctx context.Context) ([]*Token, error)
	SetTokenActive(ctx context.Context, id int64, active bool) error
	DeleteToken(ctx context.Context, id int64) error
	CountTokens(ctx context.Context) (total int, active int, err error)
	UpdateTokenQuota(ctx context.Context, tokenHash string, fn func(t *Token) error) (*Token, error)
}

// ImportRunStore persists the import audit log.
type ImportRunStore interface {
	CreateImportRun(ctx context.Context, filename, adminUser string) (int64, error)
	FinishImportRun(ctx context.Context, id int64, result ImportRunResult) error
	ListImportRuns(ctx context.Context, limit, offset int) ([]*ImportRun, int, error)
	ReconcileStaleRuns(ctx context.Context, startedBefore time.Time) (int64, error)
}

// Storage is the full persistence surface backed by one SQLite database.
type Storage interface {
	RecordStore
	TokenStore
	ImportRunStore

	Ping(ctx context.Context) error
	Close() error
}
