// Package storage abstracts the content-addressable object store media
// uploads land in.
package storage

import (
	"context"
	"io"
)

// PutInput describes one object upload.
type PutInput struct {
	Key         string
	Reader      io.Reader
	Size        int64
	ContentType string
	// Tags are stored as object metadata (job id, location, media kind,
	// source channel, upload timestamp).
	Tags map[string]string
	// PublicRead requests anonymous-read visibility so the returned URL can
	// be linked into checklist records.
	PublicRead bool
}

// ObjectStore uploads objects and returns a stable public URL.
type ObjectStore interface {
	Put(ctx context.Context, in PutInput) (string, error)
}
