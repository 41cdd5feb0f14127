// Package orchestrator ties the channel, the conversation engine, the tool
// dispatcher, and the media pipeline into one inbound-message flow. One
// turn per phone key runs at a time; duplicate deliveries are suppressed
// before any work starts.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/inspectra/fieldbot/internal/inspection"
	"github.com/inspectra/fieldbot/internal/session"
)

// ThreadCreator provisions a conversation thread. Implemented by the
// assistant engine.
type ThreadCreator interface {
	CreateThread(ctx context.Context, meta map[string]string) (string, error)
}

// Seeder provisions a thread and initial metadata for a first-contact phone
// key. The inspector lookup is best-effort: an unknown number still gets a
// session, and identification happens in conversation.
type Seeder struct {
	threads ThreadCreator
	domain  inspection.Service
	logger  *slog.Logger
}

func NewSeeder(log *slog.Logger, threads ThreadCreator, domain inspection.Service) *Seeder {
	if log == nil {
		log = slog.Default()
	}
	return &Seeder{
		threads: threads,
		domain:  domain,
		logger:  log.With(slog.String("component", "session_seeder")),
	}
}

func (s *Seeder) SeedSession(ctx context.Context, phoneKey string) (string, session.Metadata, error) {
	var meta session.Metadata
	inspector, err := s.domain.GetInspectorByPhone(ctx, phoneKey)
	switch {
	case err == nil:
		meta.InspectorID = inspector.ID
		meta.InspectorName = inspector.Name
	case errors.Is(err, inspection.ErrNotFound):
		s.logger.Info("no inspector on record for number", slog.String("phone_key", phoneKey))
	default:
		// identification can still happen in conversation
		s.logger.Warn("inspector lookup failed during seeding", slog.Any("error", err))
	}

	threadID, err := s.threads.CreateThread(ctx, meta.ToMap())
	if err != nil {
		return "", session.Metadata{}, fmt.Errorf("seed session: %w", err)
	}
	return threadID, meta, nil
}
