package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/sashabaranov/go-openai"
)

// ErrNoAssistantReply is returned when a completed run produced no
// assistant message.
var ErrNoAssistantReply = errors.New("assistant: run completed without a reply")

// Engine owns assistant provisioning and all thread/run traffic.
type Engine struct {
	client *openai.Client
	model  string
	logger *slog.Logger

	provision   sync.Once
	assistantID string
	provisionEr error
}

// NewEngine creates the adapter. The assistant itself is provisioned lazily
// on first use.
func NewEngine(log *slog.Logger, apiKey, baseURL, model string) *Engine {
	if log == nil {
		log = slog.Default()
	}
	cfg := openai.DefaultConfig(apiKey)
	if strings.TrimSpace(baseURL) != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if strings.TrimSpace(model) == "" {
		model = openai.GPT4o
	}
	return &Engine{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		logger: log.With(slog.String("component", "assistant")),
	}
}

// ensureAssistant provisions the assistant with the fixed tool schema and
// behavioral policy exactly once per process.
func (e *Engine) ensureAssistant(ctx context.Context) (string, error) {
	e.provision.Do(func() {
		name := "fieldbot"
		instr := instructions
		created, err := e.client.CreateAssistant(ctx, openai.AssistantRequest{
			Model:        e.model,
			Name:         &name,
			Instructions: &instr,
			Tools:        toolDefinitions(),
		})
		if err != nil {
			e.provisionEr = fmt.Errorf("provision assistant: %w", err)
			return
		}
		e.assistantID = created.ID
		e.logger.Info("assistant provisioned",
			slog.String("assistant_id", created.ID),
			slog.String("model", e.model))
	})
	return e.assistantID, e.provisionEr
}

// CreateThread opens a new conversation seeded with the given metadata.
func (e *Engine) CreateThread(ctx context.Context, meta map[string]string) (string, error) {
	if _, err := e.ensureAssistant(ctx); err != nil {
		return "", err
	}
	thread, err := e.client.CreateThread(ctx, openai.ThreadRequest{
		Metadata: toAnyMap(meta),
	})
	if err != nil {
		return "", fmt.Errorf("create thread: %w", err)
	}
	return thread.ID, nil
}

// AppendUserTurn adds the inspector's message to the thread.
func (e *Engine) AppendUserTurn(ctx context.Context, threadID, text string) error {
	_, err := e.client.CreateMessage(ctx, threadID, openai.MessageRequest{
		Role:    openai.ChatMessageRoleUser,
		Content: text,
	})
	if err != nil {
		return fmt.Errorf("append user turn: %w", err)
	}
	return nil
}

// StartRun submits the thread for processing and returns the run id.
func (e *Engine) StartRun(ctx context.Context, threadID string) (string, error) {
	assistantID, err := e.ensureAssistant(ctx)
	if err != nil {
		return "", err
	}
	run, err := e.client.CreateRun(ctx, threadID, openai.RunRequest{AssistantID: assistantID})
	if err != nil {
		return "", fmt.Errorf("start run: %w", err)
	}
	return run.ID, nil
}

// PollRun observes the run once. Implements the Tracker's RunPoller.
func (e *Engine) PollRun(ctx context.Context, threadID, runID string) (RunSnapshot, error) {
	run, err := e.client.RetrieveRun(ctx, threadID, runID)
	if err != nil {
		return RunSnapshot{}, fmt.Errorf("retrieve run: %w", err)
	}
	switch run.Status {
	case openai.RunStatusQueued:
		return RunSnapshot{State: StateQueued}, nil
	case openai.RunStatusInProgress:
		return RunSnapshot{State: StateInProgress}, nil
	case openai.RunStatusCompleted:
		return RunSnapshot{State: StateCompleted}, nil
	case openai.RunStatusRequiresAction:
		return RunSnapshot{State: StateRequiresAction, Calls: extractCalls(run)}, nil
	default:
		// failed, expired, cancelling, cancelled, incomplete
		e.logger.Warn("run reached terminal failure",
			slog.String("run_id", runID),
			slog.String("status", string(run.Status)))
		return RunSnapshot{State: StateFailed}, nil
	}
}

func extractCalls(run openai.Run) []Invocation {
	if run.RequiredAction == nil || run.RequiredAction.SubmitToolOutputs == nil {
		return nil
	}
	calls := make([]Invocation, 0, len(run.RequiredAction.SubmitToolOutputs.ToolCalls))
	for _, tc := range run.RequiredAction.SubmitToolOutputs.ToolCalls {
		calls = append(calls, Invocation{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	return calls
}

// SubmitToolOutputs returns every requested tool result together. Partial
// submissions strand the run, so callers collect all outputs first.
func (e *Engine) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []ToolOutput) error {
	converted := make([]openai.ToolOutput, 0, len(outputs))
	for _, out := range outputs {
		converted = append(converted, openai.ToolOutput{
			ToolCallID: out.CallID,
			Output:     out.Output,
		})
	}
	_, err := e.client.SubmitToolOutputs(ctx, threadID, runID, openai.SubmitToolOutputsRequest{
		ToolOutputs: converted,
	})
	if err != nil {
		return fmt.Errorf("submit tool outputs: %w", err)
	}
	return nil
}

// LatestAssistantText returns the newest assistant message in the thread.
func (e *Engine) LatestAssistantText(ctx context.Context, threadID string) (string, error) {
	limit := 10
	order := "desc"
	list, err := e.client.ListMessage(ctx, threadID, &limit, &order, nil, nil, nil)
	if err != nil {
		return "", fmt.Errorf("list messages: %w", err)
	}
	for _, msg := range list.Messages {
		if msg.Role != openai.ChatMessageRoleAssistant {
			continue
		}
		for _, content := range msg.Content {
			if content.Text != nil && strings.TrimSpace(content.Text.Value) != "" {
				return content.Text.Value, nil
			}
		}
	}
	return "", ErrNoAssistantReply
}

// ThreadMetadata reads the opaque metadata bag stored on the thread.
func (e *Engine) ThreadMetadata(ctx context.Context, threadID string) (map[string]string, error) {
	thread, err := e.client.RetrieveThread(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("retrieve thread: %w", err)
	}
	out := map[string]string{}
	for k, v := range thread.Metadata {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out, nil
}

// UpdateThreadMetadata replaces the thread's metadata bag.
func (e *Engine) UpdateThreadMetadata(ctx context.Context, threadID string, meta map[string]string) error {
	_, err := e.client.ModifyThread(ctx, threadID, openai.ModifyThreadRequest{
		Metadata: toAnyMap(meta),
	})
	if err != nil {
		return fmt.Errorf("update thread metadata: %w", err)
	}
	return nil
}

func toAnyMap(in map[string]string) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
