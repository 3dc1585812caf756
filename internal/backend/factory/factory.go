// Package factory builds the configured backend.Source.
package factory

import (
	"context"
	"fmt"
	"time"

	"bilancio/internal/backend"
	"bilancio/internal/backend/memory"
	"bilancio/internal/backend/rest"
	"bilancio/internal/log"
	"bilancio/internal/storage"
)

// Config holds the settings for every supported backend; only the fields
// relevant to Type are read.
type Config struct {
	Type          backend.Type
	SQLiteDBPath  string
	DataDirectory string
	APIBaseURL    string
	APITimeout    time.Duration
}

// Result holds the created backend and its cleanup function
type Result struct {
	Source  backend.Source
	Cleanup backend.CleanupFunc
}

type Factory struct {
	logger *log.Logger
}

func New(logger *log.Logger) *Factory {
	if logger == nil {
		logger = log.Discard()
	}
	return &Factory{logger: logger.WithComponent(log.ComponentBackend)}
}

func (f *Factory) Create(ctx context.Context, cfg Config) (*Result, error) {
	if !cfg.Type.IsValid() {
		return nil, fmt.Errorf("%w: %s", backend.ErrUnknownBackend, cfg.Type)
	}

	switch cfg.Type {
	case backend.SQLite:
		return f.createSQLite(ctx, cfg)
	case backend.REST:
		return f.createREST(ctx, cfg)
	default:
		return f.createMemory(ctx, cfg)
	}
}

func (f *Factory) createSQLite(ctx context.Context, cfg Config) (*Result, error) {
	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}
	f.logger.InfoContext(ctx, "Initialized SQLite backend", "db_path", cfg.SQLiteDBPath)
	return &Result{Source: repo, Cleanup: repo.Close}, nil
}

func (f *Factory) createREST(ctx context.Context, cfg Config) (*Result, error) {
	cli, err := rest.New(cfg.APIBaseURL, cfg.APITimeout, rest.WithLogger(f.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize REST client: %w", err)
	}
	f.logger.InfoContext(ctx, "Initialized REST backend", "base_url", cfg.APIBaseURL)
	return &Result{Source: cli, Cleanup: func() error { return nil }}, nil
}

func (f *Factory) createMemory(ctx context.Context, cfg Config) (*Result, error) {
	dataDir := cfg.DataDirectory
	if dataDir == "" {
		dataDir = "data"
	}
	store, err := memory.NewFromFiles(dataDir)
	if err != nil {
		return nil, fmt.Errorf("load memory backend from %s: %w", dataDir, err)
	}
	f.logger.InfoContext(ctx, "Initialized memory backend", "data_directory", dataDir)
	return &Result{Source: store, Cleanup: func() error { return nil }}, nil
}
