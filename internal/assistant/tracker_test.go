package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// scriptedPoller replays a fixed sequence of snapshots, then repeats the
// last one.
type scriptedPoller struct {
	script []RunSnapshot
	errAt  int
	calls  int
}

func (p *scriptedPoller) PollRun(context.Context, string, string) (RunSnapshot, error) {
	defer func() { p.calls++ }()
	if p.errAt > 0 && p.calls+1 == p.errAt {
		return RunSnapshot{}, errors.New("transport down")
	}
	idx := p.calls
	if idx >= len(p.script) {
		idx = len(p.script) - 1
	}
	return p.script[idx], nil
}

func newTestTracker(p RunPoller, maxAttempts int) *Tracker {
	return NewTracker(nil, p, time.Millisecond, maxAttempts)
}

func TestAwaitReachesReady(t *testing.T) {
	t.Parallel()

	poller := &scriptedPoller{script: []RunSnapshot{
		{State: StateQueued},
		{State: StateInProgress},
		{State: StateCompleted},
	}}
	out, err := newTestTracker(poller, 10).Await(context.Background(), "th", "run")
	require.NoError(t, err)
	require.Equal(t, OutcomeReady, out.Kind)
	require.Equal(t, 3, poller.calls)
}

func TestAwaitSurfacesToolCalls(t *testing.T) {
	t.Parallel()

	calls := []Invocation{{
		ID:        "call_1",
		Name:      ToolGetTodayJobs,
		Arguments: json.RawMessage(`{}`),
	}}
	poller := &scriptedPoller{script: []RunSnapshot{
		{State: StateQueued},
		{State: StateRequiresAction, Calls: calls},
	}}
	out, err := newTestTracker(poller, 10).Await(context.Background(), "th", "run")
	require.NoError(t, err)
	require.Equal(t, OutcomeNeedsTools, out.Kind)
	require.Equal(t, calls, out.Calls)
}

func TestAwaitTwoToolRoundsThenReady(t *testing.T) {
	t.Parallel()

	// the caller re-enters the tracker after each submission; simulate two
	// dependent tool rounds on the same run
	first := &scriptedPoller{script: []RunSnapshot{
		{State: StateRequiresAction, Calls: []Invocation{{ID: "c1", Name: ToolGetTodayJobs}}},
	}}
	second := &scriptedPoller{script: []RunSnapshot{
		{State: StateInProgress},
		{State: StateRequiresAction, Calls: []Invocation{{ID: "c2", Name: ToolGetJobLocations}}},
	}}
	third := &scriptedPoller{script: []RunSnapshot{
		{State: StateInProgress},
		{State: StateCompleted},
	}}

	ctx := context.Background()
	out, err := newTestTracker(first, 10).Await(ctx, "th", "run")
	require.NoError(t, err)
	require.Equal(t, OutcomeNeedsTools, out.Kind)

	out, err = newTestTracker(second, 10).Await(ctx, "th", "run")
	require.NoError(t, err)
	require.Equal(t, OutcomeNeedsTools, out.Kind)

	out, err = newTestTracker(third, 10).Await(ctx, "th", "run")
	require.NoError(t, err)
	require.Equal(t, OutcomeReady, out.Kind)
}

func TestAwaitBoundedAttemptsYieldIncomplete(t *testing.T) {
	t.Parallel()

	poller := &scriptedPoller{script: []RunSnapshot{{State: StateInProgress}}}
	out, err := newTestTracker(poller, 5).Await(context.Background(), "th", "run")
	require.NoError(t, err)
	require.Equal(t, OutcomeIncomplete, out.Kind)
	require.Equal(t, 5, poller.calls)
}

func TestAwaitPollErrorIsRunFailure(t *testing.T) {
	t.Parallel()

	poller := &scriptedPoller{
		script: []RunSnapshot{{State: StateQueued}},
		errAt:  2,
	}
	out, err := newTestTracker(poller, 10).Await(context.Background(), "th", "run")
	require.NoError(t, err)
	require.Equal(t, OutcomeFailed, out.Kind)
}

func TestAwaitTerminalFailure(t *testing.T) {
	t.Parallel()

	poller := &scriptedPoller{script: []RunSnapshot{{State: StateFailed}}}
	out, err := newTestTracker(poller, 10).Await(context.Background(), "th", "run")
	require.NoError(t, err)
	require.Equal(t, OutcomeFailed, out.Kind)
}

func TestAwaitHonorsContextCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	poller := &scriptedPoller{script: []RunSnapshot{{State: StateQueued}}}
	_, err := newTestTracker(poller, 10).Await(ctx, "th", "run")
	require.Error(t, err)
	require.ErrorIs(t, err, context.Canceled)
}
