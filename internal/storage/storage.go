// Package storage provides the object stores the archive sink writes to.
package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/dermotduffy/restic-exporter/internal/models"
)

// ObjectStore persists archive objects under slash-separated keys.
type ObjectStore interface {
	Put(ctx context.Context, key string, reader io.Reader, size int64) error
}

// New builds the object store selected by the archive configuration.
func New(cfg *models.ArchiveConfig) (ObjectStore, error) {
	switch cfg.Backend {
	case "local", "":
		if cfg.Local.Path == "" {
			return nil, fmt.Errorf("local archive backend requires a path")
		}
		return NewLocal(cfg.Local.Path), nil
	case "s3":
		if cfg.S3.Endpoint == "" || cfg.S3.Bucket == "" {
			return nil, fmt.Errorf("s3 archive backend requires endpoint and bucket")
		}
		return NewS3(cfg.S3)
	default:
		return nil, fmt.Errorf("unsupported archive backend: %s", cfg.Backend)
	}
}
