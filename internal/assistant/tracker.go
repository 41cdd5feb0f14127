package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// OutcomeKind classifies the result of tracking one run.
type OutcomeKind int

const (
	// OutcomeReady means the run completed and the reply can be read.
	OutcomeReady OutcomeKind = iota
	// OutcomeNeedsTools means the run is waiting for tool outputs.
	OutcomeNeedsTools
	// OutcomeFailed is terminal for this run; no retry within the run.
	OutcomeFailed
	// OutcomeIncomplete means the attempt bound was hit while the run was
	// still queued or in progress. Not an error: the caller decides whether
	// to abandon or keep polling.
	OutcomeIncomplete
)

// Outcome is the tracker's verdict for one tracking pass.
type Outcome struct {
	Kind  OutcomeKind
	Calls []Invocation
}

// RunPoller observes a run. Implemented by Engine.
type RunPoller interface {
	PollRun(ctx context.Context, threadID, runID string) (RunSnapshot, error)
}

// Tracker advances an in-flight run by bounded polling.
type Tracker struct {
	poller      RunPoller
	interval    time.Duration
	maxAttempts int
	logger      *slog.Logger
}

// NewTracker creates a tracker. Defaults: 500ms interval, 60 attempts.
func NewTracker(log *slog.Logger, poller RunPoller, interval time.Duration, maxAttempts int) *Tracker {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	if maxAttempts <= 0 {
		maxAttempts = 60
	}
	return &Tracker{
		poller:      poller,
		interval:    interval,
		maxAttempts: maxAttempts,
		logger:      log.With(slog.String("component", "run_tracker")),
	}
}

// Await polls until the run leaves the latency states or the attempt bound
// is hit. A poll transport error counts as run failure; context cancellation
// is returned to the caller as an error.
func (t *Tracker) Await(ctx context.Context, threadID, runID string) (Outcome, error) {
	for attempt := 0; attempt < t.maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return Outcome{}, fmt.Errorf("await run: %w", ctx.Err())
			case <-time.After(t.interval):
			}
		}

		snap, err := t.poller.PollRun(ctx, threadID, runID)
		if err != nil {
			if ctx.Err() != nil {
				return Outcome{}, fmt.Errorf("await run: %w", ctx.Err())
			}
			t.logger.Error("run poll failed", slog.String("run_id", runID), slog.Any("error", err))
			return Outcome{Kind: OutcomeFailed}, nil
		}

		switch snap.State {
		case StateCompleted:
			return Outcome{Kind: OutcomeReady}, nil
		case StateRequiresAction:
			return Outcome{Kind: OutcomeNeedsTools, Calls: snap.Calls}, nil
		case StateFailed:
			return Outcome{Kind: OutcomeFailed}, nil
		case StateQueued, StateInProgress:
			continue
		default:
			t.logger.Warn("unknown run state", slog.String("state", string(snap.State)))
		}
	}
	t.logger.Warn("run still pending after attempt bound",
		slog.String("run_id", runID),
		slog.Int("attempts", t.maxAttempts))
	return Outcome{Kind: OutcomeIncomplete}, nil
}
