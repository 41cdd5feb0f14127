package dedup

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type entry struct {
	firstSeen time.Time
	responded bool
}

// MemoryLedger is the in-process Ledger. State is lost on restart, which is
// acceptable: the worst case is one duplicate reply after a redeploy.
type MemoryLedger struct {
	mu      sync.Mutex
	entries map[string]entry
	window  time.Duration
	logger  *slog.Logger
}

// NewMemoryLedger creates an in-memory ledger. A non-positive window falls
// back to the default Window.
func NewMemoryLedger(log *slog.Logger, window time.Duration) *MemoryLedger {
	if log == nil {
		log = slog.Default()
	}
	if window <= 0 {
		window = Window
	}
	return &MemoryLedger{
		entries: map[string]entry{},
		window:  window,
		logger:  log.With(slog.String("component", "dedup")),
	}
}

// ShouldProcess records first sight and returns true exactly once per id
// within the window.
func (l *MemoryLedger) ShouldProcess(_ context.Context, messageID string) bool {
	if messageID == "" {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, seen := l.entries[messageID]; seen {
		l.logger.Debug("duplicate delivery suppressed", slog.String("message_id", messageID))
		return false
	}
	l.entries[messageID] = entry{firstSeen: time.Now()}
	return true
}

// MarkResponded records that a reply went out for the message id.
func (l *MemoryLedger) MarkResponded(_ context.Context, messageID string) {
	if messageID == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[messageID]
	if !ok {
		e = entry{firstSeen: time.Now()}
	}
	e.responded = true
	l.entries[messageID] = e
}

// Sweep evicts entries whose first sight is older than the window.
func (l *MemoryLedger) Sweep(_ context.Context, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	evicted := 0
	for id, e := range l.entries {
		if now.Sub(e.firstSeen) > l.window {
			delete(l.entries, id)
			evicted++
		}
	}
	if evicted > 0 {
		l.logger.Debug("dedup sweep", slog.Int("evicted", evicted), slog.Int("remaining", len(l.entries)))
	}
}

// Responded reports whether a reply was recorded for the message id. Used by
// tests and diagnostics.
func (l *MemoryLedger) Responded(messageID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entries[messageID].responded
}
