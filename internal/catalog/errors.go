package catalog

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured means the tenant lacks credentials required for a phase.
	// It is a precondition failure and is never retried.
	ErrNotConfigured = errors.New("not configured")

	// ErrAlreadyRunning is returned when a job already exists for the key.
	ErrAlreadyRunning = errors.New("sync already running")

	// ErrNotFound is returned when a tenant or item does not exist.
	ErrNotFound = errors.New("not found")
)

// SourceFetchError wraps a commerce source failure. It aborts the import.
type SourceFetchError struct {
	Op  string
	Err error
}

func (e *SourceFetchError) Error() string {
	return fmt.Sprintf("commerce source %s: %v", e.Op, e.Err)
}

func (e *SourceFetchError) Unwrap() error { return e.Err }

// EmbeddingProviderError wraps a failed embedding or vision model call.
type EmbeddingProviderError struct {
	Provider string
	Err      error
}

func (e *EmbeddingProviderError) Error() string {
	return fmt.Sprintf("embedding provider %s: %v", e.Provider, e.Err)
}

func (e *EmbeddingProviderError) Unwrap() error { return e.Err }

// VectorUpsertError wraps a failed vector index write for one item.
type VectorUpsertError struct {
	Namespace string
	VectorID  string
	Err       error
}

func (e *VectorUpsertError) Error() string {
	return fmt.Sprintf("vector upsert %s/%s: %v", e.Namespace, e.VectorID, e.Err)
}

func (e *VectorUpsertError) Unwrap() error { return e.Err }

// ImportUpsertError wraps a failed catalog store write during import.
type ImportUpsertError struct {
	ExternalItemID string
	Err            error
}

func (e *ImportUpsertError) Error() string {
	return fmt.Sprintf("importing item %s: %v", e.ExternalItemID, e.Err)
}

func (e *ImportUpsertError) Unwrap() error { return e.Err }
