// Package backend builds the record store selected by configuration.
package backend

import (
	"context"

	"ledger/internal/ports"
)

// Pinger is implemented by stores that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HolderLister is implemented by stores that can enumerate holders.
type HolderLister interface {
	Holders(ctx context.Context) ([]string, error)
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the store and an optional cleanup function
type BackendResult struct {
	Store   ports.RecordStore
	Cleanup CleanupFunc
}

// Ping checks the store if it supports health checks.
func (r *BackendResult) Ping(ctx context.Context) error {
	if p, ok := r.Store.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Holders returns the store as a HolderLister, if it is one.
func (r *BackendResult) Holders() (HolderLister, bool) {
	h, ok := r.Store.(HolderLister)
	return h, ok
}

// Close runs the cleanup function, if any.
func (r *BackendResult) Close() error {
	if r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend creates a backend instance based on the provided config
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Local fallback specific
	DataDirectory string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	LocalBackend  BackendType = "local"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, LocalBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
