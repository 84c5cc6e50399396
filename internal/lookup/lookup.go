// Package lookup answers RNC queries against the record store.
package lookup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/fourone/rnc-api/internal/importer"
	"github.com/fourone/rnc-api/internal/metrics"
	"github.com/fourone/rnc-api/internal/storage"
)

// ErrInvalidInput is returned for malformed queries.
var ErrInvalidInput = errors.New("invalid input")

// Name search bounds.
const (
	MinQueryLength     = 2
	DefaultSearchLimit = 10
	MaxSearchLimit     = 50
)

// Cache defaults.
const (
	DefaultCacheSize = 10_000
	DefaultCacheTTL  = 10 * time.Minute
)

// Status is the outcome of a lookup.
type Status string

// Lookup outcomes.
const (
	Found    Status = "found"
	NotFound Status = "not_found"
	Invalid  Status = "invalid"
)

// User-facing lookup messages.
const (
	MessageFound    = "RNC found in database"
	MessageNotFound = "RNC not found in database"
	MessageInvalid  = "Invalid RNC format. RNC must be 9 or 11 digits."
)

// Result is the answer to one lookup. RNC is the cleaned input.
type Result struct {
	Status Status
	RNC    string
	Record *storage.Record
	Reason string
}

// Stats summarizes the loaded registry.
type Stats struct {
	Loaded       bool
	TotalRecords int64
	Columns      []string
	SampleRNC    string
}

// RecordReader is the read side of the record store.
type RecordReader interface {
	GetRecord(ctx context.Context, rnc string) (*storage.Record, error)
	SearchByName(ctx context.Context, query string, limit int) ([]*storage.Record, error)
	CountRecords(ctx context.Context) (int64, error)
	SampleRNC(ctx context.Context) (string, error)
}

// Service combines format validation, exact lookup and name search.
type Service struct {
	store  RecordReader
	cache  *expirable.LRU[string, *storage.Record]
	logger *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithCache sets the size and TTL of the found-record cache.
// A size of zero disables caching.
func WithCache(size int, ttl time.Duration) Option {
	return func(s *Service) {
		if size <= 0 {
			s.cache = nil
			return
		}
		s.cache = expirable.NewLRU[string, *storage.Record](size, nil, ttl)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// NewService creates a lookup service.
func NewService(store RecordReader, opts ...Option) *Service {
	s := &Service{
		store:  store,
		cache:  expirable.NewLRU[string, *storage.Record](DefaultCacheSize, nil, DefaultCacheTTL),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Normalize strips every non-digit character.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// ValidateFormat reports whether s holds a 9 or 11 digit RNC once
// non-digits are stripped.
func ValidateFormat(s string) bool {
	return importer.ValidRNC(Normalize(s))
}

// Lookup finds the record for raw by exact RNC. Only store failures are
// returned as errors.
func (s *Service) Lookup(ctx context.Context, raw string) (Result, error) {
	rnc := Normalize(raw)
	if !importer.ValidRNC(rnc) {
		metrics.RecordLookup(string(Invalid), "none")
		return Result{Status: Invalid, RNC: rnc, Reason: MessageInvalid}, nil
	}

	if s.cache != nil {
		if rec, ok := s.cache.Get(rnc); ok {
			metrics.RecordLookup(string(Found), "hit")
			return Result{Status: Found, RNC: rnc, Record: rec, Reason: MessageFound}, nil
		}
	}

	rec, err := s.store.GetRecord(ctx, rnc)
	if errors.Is(err, storage.ErrNotFound) {
		metrics.RecordLookup(string(NotFound), "miss")
		return Result{Status: NotFound, RNC: rnc, Reason: MessageNotFound}, nil
	}
	if err != nil {
		metrics.RecordLookup("error", "miss")
		return Result{RNC: rnc}, fmt.Errorf("lookup %s: %w", rnc, err)
	}

	if s.cache != nil {
		s.cache.Add(rnc, rec)
	}
	metrics.RecordLookup(string(Found), "miss")
	return Result{Status: Found, RNC: rnc, Record: rec, Reason: MessageFound}, nil
}

// ClampLimit maps a requested result count into [1, MaxSearchLimit];
// zero or negative selects DefaultSearchLimit.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultSearchLimit
	case limit > MaxSearchLimit:
		return MaxSearchLimit
	default:
		return limit
	}
}

// SearchByName returns records whose name contains query, ignoring case.
// The trimmed query must have at least MinQueryLength characters.
func (s *Service) SearchByName(ctx context.Context, query string, limit int) ([]*storage.Record, error) {
	q := strings.TrimSpace(query)
	if utf8.RuneCountInString(q) < MinQueryLength {
		return nil, fmt.Errorf("%w: query must have at least %d characters", ErrInvalidInput, MinQueryLength)
	}

	records, err := s.store.SearchByName(ctx, q, ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("search by name: %w", err)
	}
	return records, nil
}

// Stats reports whether the registry is loaded and its size.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	total, err := s.store.CountRecords(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("count records: %w", err)
	}

	st := Stats{
		Loaded:       total > 0,
		TotalRecords: total,
		Columns:      storage.RecordColumns,
	}
	if total > 0 {
		sample, err := s.store.SampleRNC(ctx)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return Stats{}, fmt.Errorf("sample record: %w", err)
		}
		st.SampleRNC = sample
	}
	return st, nil
}

// Purge drops every cached record. Called after each import.
func (s *Service) Purge() {
	if s.cache != nil {
		s.cache.Purge()
		s.logger.Debug("lookup cache purged")
	}
}
