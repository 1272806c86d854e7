// Package storage contains the object storage abstraction the project store is
// built on, plus S3-compatible (MinIO) and Google Cloud Storage drivers.
// Object storage only offers put, delete, list, fetch and url; there are no
// transactions and no read-after-write guarantee between a put and a list.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotConfigured means no backend credentials were provided.
	ErrNotConfigured = errors.New("storage backend not configured")
	// ErrUnavailable wraps network, auth and server failures talking to a backend.
	ErrUnavailable = errors.New("storage backend unavailable")
	// ErrObjectNotFound is returned by Fetch when the key does not exist.
	ErrObjectNotFound = errors.New("object not found")
	// ErrAlreadyExists is returned by Put when Overwrite is false and the key exists.
	ErrAlreadyExists = errors.New("object already exists")
)

// PutObjectOptions define optional parameters for uploading objects.
type PutObjectOptions struct {
	// Overwrite replaces an existing object. When false, Put fails with
	// ErrAlreadyExists if the key is taken.
	Overwrite   bool
	ContentType string
	Metadata    map[string]string
}

// ObjectInfo contains basic information about an object in storage.
type ObjectInfo struct {
	Key          string
	URL          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
	Metadata     map[string]string
}

// Backend is a bucket scoped object store. Implementations must be safe for
// concurrent use by multiple goroutines.
type Backend interface {
	// Put uploads data under key.
	Put(ctx context.Context, key string, data []byte, opt PutObjectOptions) (ObjectInfo, error)
	// Delete removes key and reports whether it existed.
	Delete(ctx context.Context, key string) (bool, error)
	// List returns every object whose key starts with prefix.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	// Fetch downloads the content of key.
	Fetch(ctx context.Context, key string) ([]byte, error)
	// URL returns a URL the object can be downloaded from without credentials.
	URL(ctx context.Context, key string) (string, error)
	// Ping checks that the backend answers at all.
	Ping(ctx context.Context) error
	// NamespaceExists reports whether the bucket holding the documents exists.
	NamespaceExists(ctx context.Context) (bool, error)
	// EnsureNamespace creates the bucket when it is missing.
	EnsureNamespace(ctx context.Context) error
	// Name identifies the driver in logs and health reports.
	Name() string
}
