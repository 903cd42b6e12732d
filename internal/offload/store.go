// Package offload provides the addressable side-store backing the offloaded
// processing strategy: large payloads are written here and only a reference
// travels through the pipeline.
package offload

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// RefPrefix marks a payload reference handed to collaborators in place of
// inline content.
const RefPrefix = "sha256:"

// FileStore is a content-addressed payload store on the local filesystem.
// Writes go to a temp file first and are renamed into place, so a reference
// never resolves to a partially written payload.
type FileStore struct {
	dir string
}

// NewFileStore creates the store directory if needed
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("offload directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create offload directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Put stores the payload and returns its content-addressed reference.
// Storing the same payload twice yields the same reference.
func (s *FileStore) Put(_ context.Context, payload []byte) (string, error) {
	sum := sha256.Sum256(payload)
	name := hex.EncodeToString(sum[:])
	path := filepath.Join(s.dir, name)

	if _, err := os.Stat(path); err == nil {
		return RefPrefix + name, nil
	}

	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("failed to create offload temp file: %w", err)
	}
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write offload payload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to close offload temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to commit offload payload: %w", err)
	}
	return RefPrefix + name, nil
}

// Get resolves a reference back to its payload
func (s *FileStore) Get(_ context.Context, ref string) ([]byte, error) {
	name, ok := strings.CutPrefix(ref, RefPrefix)
	if !ok {
		return nil, fmt.Errorf("malformed payload reference: %q", ref)
	}
	if name != filepath.Base(name) {
		return nil, fmt.Errorf("malformed payload reference: %q", ref)
	}

	payload, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("payload reference not found: %s", ref)
		}
		return nil, fmt.Errorf("failed to read offloaded payload: %w", err)
	}
	return payload, nil
}
