// Package storage keeps the raw bytes of uploaded documents.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docrag/internal/sanitize"
)

// ErrInvalidPath is returned for object paths that would escape the root.
var ErrInvalidPath = errors.New("invalid object path")

// ObjectStore stores raw document bytes under a path.
type ObjectStore interface {
	Put(ctx context.Context, path string, data []byte) error
}

// ObjectPath returns the storage path for an upload received at now:
// "{unixMillis}-{sanitized base name}".
func ObjectPath(now time.Time, filename string) string {
	return strconv.FormatInt(now.UnixMilli(), 10) + "-" + sanitize.Filename(filename)
}

// FileStore is an ObjectStore rooted at a local directory.
type FileStore struct {
	root   string
	logger *zap.Logger
}

// NewFileStore creates root if needed and returns a store writing beneath it.
func NewFileStore(root string, logger *zap.Logger) (*FileStore, error) {
	if root == "" {
		return nil, fmt.Errorf("storage root is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("creating storage root: %w", err)
	}
	return &FileStore{root: abs, logger: logger}, nil
}

// Root returns the absolute root directory.
func (s *FileStore) Root() string {
	return s.root
}

// Put writes data to path atomically via a temp file and rename.
func (s *FileStore) Put(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := sanitize.ValidateObjectKey(path); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}

	target, err := sanitize.ValidatePath(filepath.Join(s.root, filepath.FromSlash(path)), s.root)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return fmt.Errorf("creating object directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing object: %w", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming object: %w", err)
	}

	s.logger.Debug("stored object", zap.String("path", path), zap.Int("size", len(data)))
	return nil
}

// Get reads the object stored at path.
func (s *FileStore) Get(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := sanitize.ValidateObjectKey(path); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	return os.ReadFile(filepath.Join(s.root, filepath.FromSlash(path)))
}

var _ ObjectStore = (*FileStore)(nil)
