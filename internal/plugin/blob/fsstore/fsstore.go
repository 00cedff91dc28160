// Package fsstore keeps evidence archives in a local directory.
package fsstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/chirino/ufdr-service/internal/config"
	registryblob "github.com/chirino/ufdr-service/internal/registry/blob"
	"github.com/chirino/ufdr-service/internal/tempfiles"
	"github.com/google/uuid"
)

func init() {
	registryblob.Register(registryblob.Plugin{
		Name:   "fs",
		Loader: load,
	})
}

func load(ctx context.Context) (registryblob.BlobStore, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.BlobDir == "" {
		return nil, fmt.Errorf("fsstore: UFDR_SERVICE_BLOB_DIR is required")
	}
	return New(cfg.BlobDir)
}

// New creates a store rooted at dir.
func New(dir string) (*FSStore, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("fsstore: %w", err)
	}
	if err := os.MkdirAll(abs, 0o700); err != nil {
		return nil, fmt.Errorf("fsstore: create %q: %w", abs, err)
	}
	return &FSStore{dir: abs}, nil
}

type FSStore struct {
	dir string
}

// path maps a storage key to a file under the root. Keys are generated
// UUIDs, so anything else is rejected.
func (s *FSStore) path(storageKey string) (string, error) {
	if _, err := uuid.Parse(storageKey); err != nil {
		return "", fmt.Errorf("fsstore: invalid storage key %q", storageKey)
	}
	return filepath.Join(s.dir, storageKey), nil
}

func (s *FSStore) Store(_ context.Context, data io.Reader, maxSize int64, _ string) (*registryblob.StoreResult, error) {
	// Spool inside the root so the final rename never crosses filesystems.
	spooled, err := tempfiles.Spool(s.dir, ".upload-*", data, maxSize)
	if err != nil {
		return nil, err
	}
	storageKey := uuid.New().String()
	target, _ := s.path(storageKey)
	if err := spooled.File.Close(); err != nil {
		spooled.Remove()
		return nil, fmt.Errorf("fsstore: close spool: %w", err)
	}
	if err := os.Rename(spooled.File.Name(), target); err != nil {
		spooled.Remove()
		return nil, fmt.Errorf("fsstore: move upload: %w", err)
	}
	return &registryblob.StoreResult{
		StorageKey: storageKey,
		Size:       spooled.Size,
		SHA256:     spooled.SHA256,
	}, nil
}

func (s *FSStore) Retrieve(_ context.Context, storageKey string) (io.ReadCloser, error) {
	p, err := s.path(storageKey)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("fsstore: open: %w", err)
	}
	return f, nil
}

func (s *FSStore) Delete(_ context.Context, storageKey string) error {
	p, err := s.path(storageKey)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("fsstore: delete: %w", err)
	}
	return nil
}

var _ registryblob.BlobStore = (*FSStore)(nil)
