// Package mockstore provides a configurable mock implementation of storage interfaces for testing.
//
// The MockStorage type uses function fields for each method, allowing tests to customize behavior
// as needed while providing sensible defaults for methods that aren't customized.
package mockstore

import (
	"context"
	"time"

	"github.com/fourone/rnc-api/internal/storage"
)

// MockStorage is a configurable mock implementation of storage.Storage.
// Each method can be customized by setting the corresponding function field.
// If a function field is nil, the method returns a sensible default value.
type MockStorage struct {
	// Record operations
	GetRecordFunc    func(ctx context.Context, rnc string) (*storage.Record, error)
	SearchByNameFunc func(ctx context.Context, query string, limit int) ([]*storage.Record, error)
	CountRecordsFunc func(ctx context.Context) (int64, error)
	SampleRNCFunc    func(ctx context.Context) (string, error)
	ListRNCsFunc     func(ctx context.Context) (map[string]struct{}, error)
	UpsertBatchFunc  func(ctx context.Context, records []storage.Record, mode storage.WriteMode) (storage.BatchResult, error)
	UpsertOneFunc    func(ctx context.Context, record storage.Record, mode storage.WriteMode) (bool, error)

	// Token operations
	CreateTokenFunc      func(ctx context.Context, token *storage.Token) (*storage.Token, error)
	GetTokenByIDFunc     func(ctx context.Context, id int64) (*storage.Token, error)
	GetTokenByHashFunc   func(ctx context.Context, tokenHash string) (*storage.Token, error)
	ListTokensFunc       func(ctx context.Context) ([]*storage.Token, error)
	SetTokenActiveFunc   func(ctx context.Context, id int64, active bool) error
	DeleteTokenFunc      func(ctx context.Context, id int64) error
	CountTokensFunc      func(ctx context.Context) (int, int, error)
	UpdateTokenQuotaFunc func(ctx context.Context, tokenHash string, fn func(t *storage.Token) error) (*storage.Token, error)

	// Import run operations
	CreateImportRunFunc    func(ctx context.Context, filename, adminUser string) (int64, error)
	FinishImportRunFunc    func(ctx context.Context, id int64, result storage.ImportRunResult) error
	ListImportRunsFunc     func(ctx context.Context, limit, offset int) ([]*storage.ImportRun, int, error)
	ReconcileStaleRunsFunc func(ctx context.Context, startedBefore time.Time) (int64, error)

	// Lifecycle
	PingFunc  func(ctx context.Context) error
	CloseFunc func() error
}

// GetRecord retrieves a record by RNC.
func (m *MockStorage) GetRecord(ctx context.Context, rnc string) (*storage.Record, error) {
	if m.GetRecordFunc != nil {
		return m.GetRecordFunc(ctx, rnc)
	}
	return nil, storage.ErrNotFound
}

// SearchByName searches records by name.
func (m *MockStorage) SearchByName(ctx context.Context, query string, limit int) ([]*storage.Record, error) {
	if m.SearchByNameFunc != nil {
		return m.SearchByNameFunc(ctx, query, limit)
	}
	return []*storage.Record{}, nil
}

// CountRecords counts stored records.
func (m *MockStorage) CountRecords(ctx context.Context) (int64, error) {
	if m.CountRecordsFunc != nil {
		return m.CountRecordsFunc(ctx)
	}
	return 0, nil
}

// SampleRNC returns one stored RNC.
func (m *MockStorage) SampleRNC(ctx context.Context) (string, error) {
	if m.SampleRNCFunc != nil {
		return m.SampleRNCFunc(ctx)
	}
	return "", storage.ErrNotFound
}

// ListRNCs returns the set of stored RNCs.
func (m *MockStorage) ListRNCs(ctx context.Context) (map[string]struct{}, error) {
	if m.ListRNCsFunc != nil {
		return m.ListRNCsFunc(ctx)
	}
	return map[string]struct{}{}, nil
}

// UpsertBatch writes a batch of records.
func (m *MockStorage) UpsertBatch(ctx context.Context, records []storage.Record, mode storage.WriteMode) (storage.BatchResult, error) {
	if m.UpsertBatchFunc != nil {
		return m.UpsertBatchFunc(ctx, records, mode)
	}
	return storage.BatchResult{Inserted: len(records)}, nil
}

// UpsertOne writes a single record.
func (m *MockStorage) UpsertOne(ctx context.Context, record storage.Record, mode storage.WriteMode) (bool, error) {
	if m.UpsertOneFunc != nil {
		return m.UpsertOneFunc(ctx, record, mode)
	}
	return true, nil
}

// CreateToken creates a new token.
func (m *MockStorage) CreateToken(ctx context.Context, token *storage.Token) (*storage.Token, error) {
	if m.CreateTokenFunc != nil {
		return m.CreateTokenFunc(ctx, token)
	}
	created := *token
	created.ID = 1
	created.IsActive = true
	return &created, nil
}

// GetTokenByID retrieves a token by ID.
func (m *MockStorage) GetTokenByID(ctx context.Context, id int64) (*storage.Token, error) {
	if m.GetTokenByIDFunc != nil {
		return m.GetTokenByIDFunc(ctx, id)
	}
	return nil, storage.ErrNotFound
}

// GetTokenByHash retrieves a token by hash.
func (m *MockStorage) GetTokenByHash(ctx context.Context, tokenHash string) (*storage.Token, error) {
	if m.GetTokenByHashFunc != nil {
		return m.GetTokenByHashFunc(ctx, tokenHash)
	}
	return nil, storage.ErrNotFound
}

// ListTokens lists all tokens.
func (m *MockStorage) ListTokens(ctx context.Context) ([]*storage.Token, error) {
	if m.ListTokensFunc != nil {
		return m.ListTokensFunc(ctx)
	}
	return []*storage.Token{}, nil
}

// SetTokenActive activates or deactivates a token.
func (m *MockStorage) SetTokenActive(ctx context.Context, id int64, active bool) error {
	if m.SetTokenActiveFunc != nil {
		return m.SetTokenActiveFunc(ctx, id, active)
	}
	return nil
}

// DeleteToken deletes a token.
func (m *MockStorage) DeleteToken(ctx context.Context, id int64) error {
	if m.DeleteTokenFunc != nil {
		return m.DeleteTokenFunc(ctx, id)
	}
	return nil
}

// CountTokens counts total and active tokens.
func (m *MockStorage) CountTokens(ctx context.Context) (int, int, error) {
	if m.CountTokensFunc != nil {
		return m.CountTokensFunc(ctx)
	}
	return 0, 0, nil
}

// UpdateTokenQuota adjusts a token's quota counters.
func (m *MockStorage) UpdateTokenQuota(ctx context.Context, tokenHash string, fn func(t *storage.Token) error) (*storage.Token, error) {
	if m.UpdateTokenQuotaFunc != nil {
		return m.UpdateTokenQuotaFunc(ctx, tokenHash, fn)
	}
	return nil, storage.ErrNotFound
}

// CreateImportRun opens an import audit entry.
func (m *MockStorage) CreateImportRun(ctx context.Context, filename, adminUser string) (int64, error) {
	if m.CreateImportRunFunc != nil {
		return m.CreateImportRunFunc(ctx, filename, adminUser)
	}
	return 1, nil
}

// FinishImportRun closes an import audit entry.
func (m *MockStorage) FinishImportRun(ctx context.Context, id int64, result storage.ImportRunResult) error {
	if m.FinishImportRunFunc != nil {
		return m.FinishImportRunFunc(ctx, id, result)
	}
	return nil
}

// ListImportRuns lists import audit entries.
func (m *MockStorage) ListImportRuns(ctx context.Context, limit, offset int) ([]*storage.ImportRun, int, error) {
	if m.ListImportRunsFunc != nil {
		return m.ListImportRunsFunc(ctx, limit, offset)
	}
	return []*storage.ImportRun{}, 0, nil
}

// ReconcileStaleRuns closes stale audit entries.
func (m *MockStorage) ReconcileStaleRuns(ctx context.Context, startedBefore time.Time) (int64, error) {
	if m.ReconcileStaleRunsFunc != nil {
		return m.ReconcileStaleRunsFunc(ctx, startedBefore)
	}
	return 0, nil
}

// Ping checks connectivity.
func (m *MockStorage) Ping(ctx context.Context) error {
	if m.PingFunc != nil {
		return m.PingFunc(ctx)
	}
	return nil
}

// Close closes the storage.
func (m *MockStorage) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}
