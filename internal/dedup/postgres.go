package dedup

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLedger backs the ledger with a table so dedup state survives
// restarts and is shared across instances.
//
// Schema:
//
//	CREATE TABLE IF NOT EXISTS inbound_messages (
//	    message_id  text PRIMARY KEY,
//	    first_seen  timestamptz NOT NULL DEFAULT now(),
//	    responded   boolean NOT NULL DEFAULT false
//	);
type PostgresLedger struct {
	pool   *pgxpool.Pool
	window time.Duration
	logger *slog.Logger
}

// NewPostgresLedger creates a ledger backed by the given pool.
func NewPostgresLedger(log *slog.Logger, pool *pgxpool.Pool, window time.Duration) *PostgresLedger {
	if log == nil {
		log = slog.Default()
	}
	if window <= 0 {
		window = Window
	}
	return &PostgresLedger{
		pool:   pool,
		window: window,
		logger: log.With(slog.String("component", "dedup_pg")),
	}
}

// ShouldProcess inserts the id; a conflict means it was already seen. On a
// store error the message is processed anyway (fail open).
func (l *PostgresLedger) ShouldProcess(ctx context.Context, messageID string) bool {
	if messageID == "" {
		return true
	}
	tag, err := l.pool.Exec(ctx,
		`INSERT INTO inbound_messages (message_id) VALUES ($1) ON CONFLICT (message_id) DO NOTHING`,
		messageID)
	if err != nil {
		l.logger.Warn("ledger insert failed, failing open", slog.Any("error", err))
		return true
	}
	return tag.RowsAffected() == 1
}

// MarkResponded flips the responded flag. Errors are logged only; the reply
// has already been sent at this point.
func (l *PostgresLedger) MarkResponded(ctx context.Context, messageID string) {
	if messageID == "" {
		return
	}
	if _, err := l.pool.Exec(ctx,
		`UPDATE inbound_messages SET responded = true WHERE message_id = $1`, messageID); err != nil {
		l.logger.Warn("mark responded failed", slog.String("message_id", messageID), slog.Any("error", err))
	}
}

// Sweep deletes entries older than the window.
func (l *PostgresLedger) Sweep(ctx context.Context, now time.Time) {
	tag, err := l.pool.Exec(ctx,
		`DELETE FROM inbound_messages WHERE first_seen < $1`, now.Add(-l.window))
	if err != nil {
		l.logger.Warn("dedup sweep failed", slog.Any("error", err))
		return
	}
	if tag.RowsAffected() > 0 {
		l.logger.Debug("dedup sweep", slog.Int64("evicted", tag.RowsAffected()))
	}
}
