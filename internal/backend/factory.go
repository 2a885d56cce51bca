package backend

import (
	"context"
	"fmt"

	"ledger/internal/local"
	"ledger/internal/log"
	"ledger/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(ctx, config)
	case LocalBackend:
		return f.createLocalBackend(ctx, config)
	case MemoryBackend:
		f.logger.InfoContext(ctx, "Initialized in-memory backend; nothing will be persisted")
		return &BackendResult{Store: local.NewMemory()}, nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLiteBackend(ctx context.Context, config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	f.logger.InfoContext(ctx, "Initialized SQLite backend", "db_path", config.SQLiteDBPath)

	return &BackendResult{
		Store:   repo,
		Cleanup: repo.Close,
	}, nil
}

func (f *DefaultFactory) createLocalBackend(ctx context.Context, config Config) (*BackendResult, error) {
	store, err := local.New(config.DataDirectory)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize local store: %w", err)
	}

	f.logger.InfoContext(ctx, "Initialized local backend", "data_directory", config.DataDirectory)

	return &BackendResult{Store: store}, nil
}
