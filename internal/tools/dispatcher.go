// Package tools maps the assistant's tool invocations onto the inspection
// domain. Handlers communicate failures to the model as structured payloads;
// nothing thrown here may ever reach the run-submission path, because a run
// with missing tool outputs is stranded.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/inspectra/fieldbot/internal/assistant"
	"github.com/inspectra/fieldbot/internal/inspection"
	"github.com/inspectra/fieldbot/internal/session"
)

// ErrIdentificationRequired is the structured "who are you" failure the
// model is expected to phrase for the user.
var ErrIdentificationRequired = errors.New("inspector not identified; ask for their name or registered phone number and call identify_inspector")

// SessionRef identifies the session a dispatch cycle runs against.
type SessionRef struct {
	PhoneKey string
	ThreadID string
}

// MetadataMirror propagates merged session metadata into the conversation
// engine's opaque bag. Implemented by assistant.Engine; best-effort.
type MetadataMirror interface {
	UpdateThreadMetadata(ctx context.Context, threadID string, meta map[string]string) error
}

type handlerFunc func(ctx context.Context, ref SessionRef, args json.RawMessage) (map[string]any, error)

// Dispatcher routes invocations by declared tool name.
type Dispatcher struct {
	domain   inspection.Service
	sessions session.Store
	mirror   MetadataMirror
	logger   *slog.Logger
	handlers map[string]handlerFunc
}

// NewDispatcher wires the handler table. mirror may be nil.
func NewDispatcher(log *slog.Logger, domain inspection.Service, sessions session.Store, mirror MetadataMirror) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	d := &Dispatcher{
		domain:   domain,
		sessions: sessions,
		mirror:   mirror,
		logger:   log.With(slog.String("component", "tool_dispatcher")),
	}
	d.handlers = map[string]handlerFunc{
		assistant.ToolGetTodayJobs:        d.handleGetTodayJobs,
		assistant.ToolConfirmJob:          d.handleConfirmJob,
		assistant.ToolStartJob:            d.handleStartJob,
		assistant.ToolGetJobLocations:     d.handleGetJobLocations,
		assistant.ToolGetTasksForLocation: d.handleGetTasksForLocation,
		assistant.ToolCompleteTask:        d.handleCompleteTask,
		assistant.ToolUpdateJobStatus:     d.handleUpdateJobStatus,
		assistant.ToolUpdateJobDetails:    d.handleUpdateJobDetails,
		assistant.ToolIdentifyInspector:   d.handleIdentifyInspector,
		assistant.ToolGetTaskMedia:        d.handleGetTaskMedia,
		assistant.ToolGetJobProgress:      d.handleGetJobProgress,
	}
	return d
}

// DispatchAll executes every invocation and returns one output per call, in
// order. All outputs are produced even when individual handlers fail.
func (d *Dispatcher) DispatchAll(ctx context.Context, ref SessionRef, calls []assistant.Invocation) []assistant.ToolOutput {
	outputs := make([]assistant.ToolOutput, 0, len(calls))
	for _, call := range calls {
		outputs = append(outputs, d.Dispatch(ctx, ref, call))
	}
	return outputs
}

// Dispatch executes one invocation. The output is always a serialized
// {"success": bool, ...} payload.
func (d *Dispatcher) Dispatch(ctx context.Context, ref SessionRef, call assistant.Invocation) assistant.ToolOutput {
	payload, err := d.run(ctx, ref, call)
	result := map[string]any{"success": err == nil}
	if err != nil {
		d.logger.Warn("tool handler failed",
			slog.String("tool", call.Name),
			slog.String("phone_key", ref.PhoneKey),
			slog.Any("error", err))
		result["error"] = err.Error()
	}
	for k, v := range payload {
		result[k] = v
	}
	encoded, marshalErr := json.Marshal(result)
	if marshalErr != nil {
		encoded = []byte(`{"success":false,"error":"internal: result not serializable"}`)
	}
	return assistant.ToolOutput{CallID: call.ID, Output: string(encoded)}
}

func (d *Dispatcher) run(ctx context.Context, ref SessionRef, call assistant.Invocation) (payload map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			payload = nil
			err = fmt.Errorf("internal error: %v", r)
		}
	}()
	handler, ok := d.handlers[call.Name]
	if !ok {
		return nil, fmt.Errorf("unknown tool %q", call.Name)
	}
	return handler(ctx, ref, call.Arguments)
}

// metadata reads the latest session metadata.
func (d *Dispatcher) metadata(ctx context.Context, ref SessionRef) (session.Metadata, error) {
	sess, err := d.sessions.Get(ctx, ref.PhoneKey)
	if err != nil {
		return session.Metadata{}, fmt.Errorf("load session: %w", err)
	}
	return sess.Metadata, nil
}

// merge applies a metadata mutation and mirrors the result onto the thread.
func (d *Dispatcher) merge(ctx context.Context, ref SessionRef, apply func(*session.Metadata)) (session.Metadata, error) {
	meta, err := d.sessions.Merge(ctx, ref.PhoneKey, apply)
	if err != nil {
		return session.Metadata{}, fmt.Errorf("update session: %w", err)
	}
	if d.mirror != nil && ref.ThreadID != "" {
		if mirrorErr := d.mirror.UpdateThreadMetadata(ctx, ref.ThreadID, meta.ToMap()); mirrorErr != nil {
			d.logger.Warn("thread metadata mirror failed",
				slog.String("thread_id", ref.ThreadID),
				slog.Any("error", mirrorErr))
		}
	}
	return meta, nil
}

// requireInspector resolves the acting inspector: session metadata first,
// then a phone lookup, then the structured identification error.
func (d *Dispatcher) requireInspector(ctx context.Context, ref SessionRef) (string, error) {
	meta, err := d.metadata(ctx, ref)
	if err != nil {
		return "", err
	}
	if meta.InspectorID != "" {
		return meta.InspectorID, nil
	}
	insp, err := d.domain.GetInspectorByPhone(ctx, ref.PhoneKey)
	if err != nil {
		if errors.Is(err, inspection.ErrNotFound) {
			return "", ErrIdentificationRequired
		}
		return "", fmt.Errorf("inspector lookup: %w", err)
	}
	if _, err := d.merge(ctx, ref, func(m *session.Metadata) {
		m.InspectorID = insp.ID
		m.InspectorName = insp.Name
	}); err != nil {
		return "", err
	}
	return insp.ID, nil
}
