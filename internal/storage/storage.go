// Package storage keeps evidence files in an object store.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"crimesleuth/internal/config"
)

// Object describes a stored file.
type Object struct {
	Key         string
	URL         string
	ContentType string
	Size        int64
}

// Store persists evidence files.
type Store interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (*Object, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// New builds the store selected by cfg.Driver.
func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case "s3":
		return NewS3Store(ctx, cfg)
	case "disk":
		return NewDiskStore(cfg.DiskRoot, cfg.PublicBaseURL)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}

// NewKey returns a unique object key for a file attached to a case.
func NewKey(caseID uuid.UUID, filename string) string {
	d := time.Now().UTC()
	ext := strings.ToLower(path.Ext(path.Base(strings.ReplaceAll(filename, "\\", "/"))))
	return fmt.Sprintf("evidence/%s/%d/%02d/%s%s", caseID, d.Year(), d.Month(), uuid.New(), ext)
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + key
}
