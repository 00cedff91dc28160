package blob

import (
	"context"
	"fmt"
	"io"

	"github.com/chirino/ufdr-service/internal/tempfiles"
)

// StoreResult describes a stored evidence archive.
type StoreResult struct {
	StorageKey string
	Size       int64
	SHA256     string
}

// BlobStore keeps the raw uploaded evidence archives.
type BlobStore interface {
	// Store streams data into the store, rejecting anything over maxSize bytes.
	Store(ctx context.Context, data io.Reader, maxSize int64, contentType string) (*StoreResult, error)
	// Retrieve returns a reader for the stored archive.
	Retrieve(ctx context.Context, storageKey string) (io.ReadCloser, error)
	// Delete removes the stored archive.
	Delete(ctx context.Context, storageKey string) error
}

// ErrTooLarge is returned by Store when the payload exceeds maxSize.
type ErrTooLarge = tempfiles.ErrTooLarge

// Loader creates a BlobStore from config.
type Loader func(ctx context.Context) (BlobStore, error)

// Plugin represents a blob store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a blob store plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered blob store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named blob store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown blob store %q; valid: %v", name, Names())
}
