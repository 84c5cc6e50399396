// Package admin provides the session-gated administration API: registry
// imports, the import audit log, API token management and runtime log level.
package admin

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/fourone/rnc-api/internal/auth"
	"github.com/fourone/rnc-api/internal/importer"
	"github.com/fourone/rnc-api/internal/logging"
	"github.com/fourone/rnc-api/internal/lookup"
	"github.com/fourone/rnc-api/internal/storage"
)

// Storage is the persistence the admin API reads and writes.
type Storage interface {
	CreateToken(ctx context.Context, token *storage.Token) (*storage.Token, error)
	GetTokenByID(ctx context.Context, id int64) (*storage.Token, error)
	ListTokens(ctx context.Context) ([]*storage.Token, error)
	SetTokenActive(ctx context.Context, id int64, active bool) error
	DeleteToken(ctx context.Context, id int64) error
	CountTokens(ctx context.Context) (total, active int, err error)
	ListImportRuns(ctx context.Context, limit, offset int) ([]*storage.ImportRun, int, error)
}

// Importer runs registry imports.
type Importer interface {
	Import(ctx context.Context, req importer.Request) (*importer.Stats, error)
}

// RegistryStats reports the loaded registry size.
type RegistryStats interface {
	Stats(ctx context.Context) (lookup.Stats, error)
}

// Config holds the admin settings taken from the process configuration.
type Config struct {
	UploadDir              string
	RegistryFile           string
	MaxUploadBytes         int64
	DefaultRequestsPerHour int
}

// Deps are the collaborators of the admin handler.
type Deps struct {
	Storage     Storage
	Importer    Importer
	Registry    RegistryStats
	Credentials *auth.Credentials
	Sessions    *SessionStore
	LogLevel    *slog.LevelVar
	Logger      *slog.Logger
}

// Handler provides admin endpoints
type Handler struct {
	storage  Storage
	importer Importer
	registry RegistryStats
	creds    *auth.Credentials
	sessions *SessionStore
	logLevel *slog.LevelVar
	logger   *slog.Logger
	cfg      Config
	now      func() time.Time
}

// NewHandler creates an admin handler
func NewHandler(deps Deps, cfg Config) *Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.LogLevel == nil {
		deps.LogLevel = new(slog.LevelVar)
	}
	if deps.Sessions == nil {
		deps.Sessions = NewSessionStore(0)
	}
	if cfg.DefaultRequestsPerHour <= 0 {
		cfg.DefaultRequestsPerHour = 60
	}

	return &Handler{
		storage:  deps.Storage,
		importer: deps.Importer,
		registry: deps.Registry,
		creds:    deps.Credentials,
		sessions: deps.Sessions,
		logLevel: deps.LogLevel,
		logger:   deps.Logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

func (h *Handler) log(r *http.Request) *slog.Logger {
	return logging.FromContext(r.Context(), h.logger)
}
