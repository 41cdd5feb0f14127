package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists sessions across restarts and instances.
//
// Schema:
//
//	CREATE TABLE IF NOT EXISTS sessions (
//	    phone_key  text PRIMARY KEY,
//	    thread_id  text NOT NULL,
//	    metadata   jsonb NOT NULL DEFAULT '{}',
//	    created_at timestamptz NOT NULL DEFAULT now(),
//	    updated_at timestamptz NOT NULL DEFAULT now()
//	);
type PostgresStore struct {
	pool   *pgxpool.Pool
	seeder Seeder
	logger *slog.Logger
}

// NewPostgresStore creates a session store backed by the given pool.
func NewPostgresStore(log *slog.Logger, pool *pgxpool.Pool, seeder Seeder) *PostgresStore {
	if log == nil {
		log = slog.Default()
	}
	return &PostgresStore{
		pool:   pool,
		seeder: seeder,
		logger: log.With(slog.String("component", "session_store_pg")),
	}
}

func (s *PostgresStore) GetOrCreate(ctx context.Context, phoneKey string) (Session, bool, error) {
	sess, err := s.Get(ctx, phoneKey)
	if err == nil {
		return sess, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Session{}, false, err
	}

	threadID, meta, err := s.seeder.SeedSession(ctx, phoneKey)
	if err != nil {
		return Session{}, false, err
	}
	metaJSON, err := json.Marshal(meta.ToMap())
	if err != nil {
		return Session{}, false, fmt.Errorf("marshal metadata: %w", err)
	}

	// On conflict keep the first writer's thread handle.
	row := s.pool.QueryRow(ctx, `
		INSERT INTO sessions (phone_key, thread_id, metadata)
		VALUES ($1, $2, $3)
		ON CONFLICT (phone_key) DO UPDATE SET phone_key = sessions.phone_key
		RETURNING thread_id, metadata, created_at, updated_at, (xmax = 0) AS inserted`,
		phoneKey, threadID, metaJSON)

	var (
		storedThread string
		storedMeta   []byte
		createdAt    time.Time
		updatedAt    time.Time
		inserted     bool
	)
	if err := row.Scan(&storedThread, &storedMeta, &createdAt, &updatedAt, &inserted); err != nil {
		return Session{}, false, fmt.Errorf("insert session: %w", err)
	}
	if !inserted && storedThread != threadID {
		s.logger.Warn("session create raced, keeping first thread",
			slog.String("phone_key", phoneKey), slog.String("abandoned_thread", threadID))
	}
	return Session{
		PhoneKey:  phoneKey,
		ThreadID:  storedThread,
		Metadata:  unmarshalMetadata(storedMeta),
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, inserted, nil
}

func (s *PostgresStore) Get(ctx context.Context, phoneKey string) (Session, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT thread_id, metadata, created_at, updated_at
		FROM sessions WHERE phone_key = $1`, phoneKey)

	var (
		threadID  string
		metaJSON  []byte
		createdAt time.Time
		updatedAt time.Time
	)
	if err := row.Scan(&threadID, &metaJSON, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, ErrNotFound
		}
		return Session{}, fmt.Errorf("get session: %w", err)
	}
	return Session{
		PhoneKey:  phoneKey,
		ThreadID:  threadID,
		Metadata:  unmarshalMetadata(metaJSON),
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}

// Merge reads the row FOR UPDATE, applies the mutation, and writes back, so
// the read-modify-write is atomic against concurrent handlers.
func (s *PostgresStore) Merge(ctx context.Context, phoneKey string, apply func(*Metadata)) (Metadata, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Metadata{}, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var metaJSON []byte
	err = tx.QueryRow(ctx,
		`SELECT metadata FROM sessions WHERE phone_key = $1 FOR UPDATE`, phoneKey).Scan(&metaJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Metadata{}, ErrNotFound
		}
		return Metadata{}, fmt.Errorf("lock session: %w", err)
	}

	meta := unmarshalMetadata(metaJSON)
	apply(&meta)
	updated, err := json.Marshal(meta.ToMap())
	if err != nil {
		return Metadata{}, fmt.Errorf("marshal metadata: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE sessions SET metadata = $2, updated_at = now() WHERE phone_key = $1`,
		phoneKey, updated); err != nil {
		return Metadata{}, fmt.Errorf("update session: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Metadata{}, fmt.Errorf("commit: %w", err)
	}
	return meta, nil
}

func unmarshalMetadata(raw []byte) Metadata {
	flat := map[string]string{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &flat)
	}
	return MetadataFromMap(flat)
}
