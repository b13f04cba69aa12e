package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Local writes archive objects into a directory tree below a base path.
type Local struct {
	basePath string
}

// NewLocal creates a local object store rooted at path.
func NewLocal(path string) *Local {
	return &Local{basePath: path}
}

// Put writes the object, creating intermediate directories as needed.
func (l *Local) Put(ctx context.Context, key string, reader io.Reader, _ int64) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	target := filepath.Join(l.basePath, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}

	file, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}

	if _, err := io.Copy(file, reader); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
