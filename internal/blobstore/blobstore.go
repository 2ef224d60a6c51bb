// Package blobstore abstracts the remote storage a blog syncs with as a
// named-byte-blob store.
//
// The sync engine only ever needs four operations: read a blob, write a
// blob, list the blobs under a directory path, and ask when a path last
// changed. Everything transport-specific (credentials, sessions, retries,
// timeouts) lives behind this interface. LastModified is a cheap-skip hint
// for the engine, never a correctness gate: a pull that ignores it must
// produce the same result.
package blobstore

import (
	"context"
	"fmt"
	"time"
)

// Store is implemented by every storage transport.
type Store interface {
	// Read returns the contents of the blob at path. A missing blob is
	// (nil, nil): absence is an answer, not an error.
	Read(ctx context.Context, path string) ([]byte, error)

	// Write stores data at path, creating or replacing the blob.
	Write(ctx context.Context, path string, data []byte) error

	// List returns the blob paths directly under path, in stable order.
	// Only used when a blog is directory-backed.
	List(ctx context.Context, path string) ([]string, error)

	// LastModified reports when path (or, for a directory, its newest
	// child) last changed. A missing path yields the zero time and no
	// error.
	LastModified(ctx context.Context, path string) (time.Time, error)
}

// Kinds of stores. This is a closed set selected by configuration; there is
// no runtime registry.
const (
	KindLocal  = "local"
	KindS3     = "s3"
	KindGist   = "gist"
	KindMemory = "memory"
)

// Options carries the per-transport settings needed to construct a Store.
// Only the fields for the selected kind are consulted.
type Options struct {
	// S3-compatible object storage.
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3UseSSL    bool

	// Gist-like single-document HTTP API.
	GistAPIBase string
	GistID      string
	GistToken   string
}

// New constructs a Store of the given kind. An unknown kind is a
// configuration error and fails immediately.
func New(kind string, opts Options) (Store, error) {
	switch kind {
	case KindLocal, "":
		return NewLocal(), nil
	case KindS3:
		return NewS3(opts)
	case KindGist:
		return NewGist(opts), nil
	case KindMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blobstore kind %q", kind)
	}
}
