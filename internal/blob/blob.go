// Package blob provides read access to the vault's attachment blobs.
package blob

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when no blob exists for a key.
var ErrNotFound = errors.New("blob not found")

const defaultContentType = "application/octet-stream"

// Store reads attachment blobs by their "<cipherID>/<attachmentID>" key.
type Store interface {
	Get(ctx context.Context, key string) (data []byte, contentType string, err error)
}

// DiskStore keeps blobs as files under a root directory, one file per key,
// with an optional "<key>.meta" sidecar holding the content type.
type DiskStore struct {
	root string
}

func NewDiskStore(root string) *DiskStore {
	return &DiskStore{root: root}
}

func (s *DiskStore) Get(_ context.Context, key string) ([]byte, string, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, "", err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, "", fmt.Errorf("read blob %q: %w", key, err)
	}

	contentType := defaultContentType
	if meta, err := os.ReadFile(path + ".meta"); err == nil {
		if ct := strings.TrimSpace(string(meta)); ct != "" {
			contentType = ct
		}
	}
	return data, contentType, nil
}

// Put stores a blob. The vault's attachment API writes through this; the
// backup subsystem itself only reads.
func (s *DiskStore) Put(_ context.Context, key string, data []byte, contentType string) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create blob dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write blob %q: %w", key, err)
	}
	if contentType != "" && contentType != defaultContentType {
		if err := os.WriteFile(path+".meta", []byte(contentType), 0o644); err != nil {
			return fmt.Errorf("write blob meta %q: %w", key, err)
		}
	}
	return nil
}

// resolve maps a key to a path under root, rejecting escapes from the root.
func (s *DiskStore) resolve(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	return filepath.Join(s.root, clean), nil
}
