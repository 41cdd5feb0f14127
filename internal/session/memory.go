package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// MemoryStore is the in-process Store used by default and in tests.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]Session
	seeder   Seeder
	logger   *slog.Logger
}

// NewMemoryStore creates an in-memory session store.
func NewMemoryStore(log *slog.Logger, seeder Seeder) *MemoryStore {
	if log == nil {
		log = slog.Default()
	}
	return &MemoryStore{
		sessions: map[string]Session{},
		seeder:   seeder,
		logger:   log.With(slog.String("component", "session_store")),
	}
}

// GetOrCreate returns the existing session or seeds a new one. The seed call
// happens outside the store lock (it is a network round-trip); if a
// concurrent create slipped in, the earlier session wins and the freshly
// seeded thread is abandoned.
func (s *MemoryStore) GetOrCreate(ctx context.Context, phoneKey string) (Session, bool, error) {
	s.mu.Lock()
	if sess, ok := s.sessions[phoneKey]; ok {
		s.mu.Unlock()
		return sess, false, nil
	}
	s.mu.Unlock()

	threadID, meta, err := s.seeder.SeedSession(ctx, phoneKey)
	if err != nil {
		return Session{}, false, err
	}

	now := time.Now()
	sess := Session{
		PhoneKey:  phoneKey,
		ThreadID:  threadID,
		Metadata:  meta,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[phoneKey]; ok {
		s.logger.Warn("session create raced, keeping first thread",
			slog.String("phone_key", phoneKey),
			slog.String("kept_thread", existing.ThreadID),
			slog.String("abandoned_thread", threadID))
		return existing, false, nil
	}
	s.sessions[phoneKey] = sess
	s.logger.Info("session created", slog.String("phone_key", phoneKey), slog.String("thread_id", threadID))
	return sess, true, nil
}

// Get returns the session for the phone key or ErrNotFound.
func (s *MemoryStore) Get(_ context.Context, phoneKey string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[phoneKey]
	if !ok {
		return Session{}, ErrNotFound
	}
	return sess, nil
}

// Merge applies the mutation to the latest stored metadata and persists the
// result atomically.
func (s *MemoryStore) Merge(_ context.Context, phoneKey string, apply func(*Metadata)) (Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[phoneKey]
	if !ok {
		return Metadata{}, ErrNotFound
	}
	apply(&sess.Metadata)
	sess.UpdatedAt = time.Now()
	s.sessions[phoneKey] = sess
	return sess.Metadata, nil
}
