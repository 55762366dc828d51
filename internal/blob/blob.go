// Package blob abstracts the archive object store that receives compressed
// projection partitions. Backends are create-only: an archive object is
// written once per run date and never rewritten in place.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"aquacast/internal/config"
)

// Driver identifies a concrete blob backend.
type Driver string

const (
	// DriverFilesystem is the local filesystem backend (default, dev).
	DriverFilesystem Driver = "fs"
	// DriverS3 is an S3 / MinIO compatible backend.
	DriverS3 Driver = "s3"
	// DriverMemory is the in-process backend used by tests.
	DriverMemory Driver = "memory"
)

// Info describes a stored archive object.
type Info struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size_bytes"`
	ContentType  string    `json:"content_type,omitempty"`
	ETag         string    `json:"etag,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// Store is the archive backend contract.
type Store interface {
	// Put writes a new object. Writing a key that already exists is an error.
	Put(ctx context.Context, key string, r io.Reader, contentType string) (Info, error)
	// Get returns an object's metadata and content.
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	// Delete removes an object, reporting whether it existed.
	Delete(ctx context.Context, key string) (bool, error)
	// List returns objects under a key prefix in key order.
	List(ctx context.Context, prefix string) ([]Info, error)
	Driver() Driver
}

// ErrNotFound is returned by Get for keys that were never written or were
// deleted.
var ErrNotFound = errors.New("blob: object not found")

// Open constructs the archive store named by cfg.BlobDriver.
func Open(ctx context.Context, cfg config.Config) (Store, error) {
	switch Driver(cfg.BlobDriver) {
	case DriverFilesystem:
		return NewFilesystem(cfg.BlobFSRoot)
	case DriverS3:
		return NewS3FromEnv(ctx)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.BlobDriver)
	}
}
