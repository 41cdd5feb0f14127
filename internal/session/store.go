package session

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get for an unknown phone key.
var ErrNotFound = errors.New("session not found")

// Seeder provisions the external conversation handle and initial metadata
// for a new session. Implemented by the orchestrator on top of the
// assistant engine and the inspector-by-phone lookup.
type Seeder interface {
	SeedSession(ctx context.Context, phoneKey string) (threadID string, meta Metadata, err error)
}

// Store persists sessions. Merge performs a read-modify-write against the
// latest stored value under the store's own lock so two tool handlers
// running back-to-back within one turn cannot lose updates.
//
// GetOrCreate for a given key is serialized by the orchestrator's per-key
// mutex; implementations still tolerate a create race by keeping the first
// written thread handle.
type Store interface {
	GetOrCreate(ctx context.Context, phoneKey string) (Session, bool, error)
	Get(ctx context.Context, phoneKey string) (Session, error)
	Merge(ctx context.Context, phoneKey string, apply func(*Metadata)) (Metadata, error)
}
