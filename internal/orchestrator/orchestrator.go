package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/inspectra/fieldbot/internal/assistant"
	"github.com/inspectra/fieldbot/internal/dedup"
	"github.com/inspectra/fieldbot/internal/media"
	"github.com/inspectra/fieldbot/internal/phone"
	"github.com/inspectra/fieldbot/internal/session"
	"github.com/inspectra/fieldbot/internal/tools"
	"github.com/inspectra/fieldbot/internal/whatsapp"
)

// turnDeadline bounds one whole turn, tool rounds and all. The reply
// timeout only controls when the provisional message goes out; the turn
// keeps running detached until this deadline.
const turnDeadline = 5 * time.Minute

// maxToolRounds bounds requires-action cycles within one turn.
const maxToolRounds = 8

const (
	replyStillWorking = "I'm still working on that, give me a moment..."
	replyFailed       = "Sorry, I ran into a problem handling that. Please try again."
	replyMediaRetry   = "Sorry, I couldn't save your file. Please try sending it again."
)

// ConversationEngine is the orchestrator's slice of the assistant engine.
type ConversationEngine interface {
	AppendUserTurn(ctx context.Context, threadID, text string) error
	StartRun(ctx context.Context, threadID string) (string, error)
	SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []assistant.ToolOutput) error
	LatestAssistantText(ctx context.Context, threadID string) (string, error)
}

// RunAwaiter tracks one run to a verdict. Implemented by assistant.Tracker.
type RunAwaiter interface {
	Await(ctx context.Context, threadID, runID string) (assistant.Outcome, error)
}

// ToolRunner executes a batch of tool calls. Implemented by
// tools.Dispatcher.
type ToolRunner interface {
	DispatchAll(ctx context.Context, ref tools.SessionRef, calls []assistant.Invocation) []assistant.ToolOutput
}

// MediaIngestor files one attachment. Implemented by media.Service.
type MediaIngestor interface {
	Ingest(ctx context.Context, sess session.Session, att media.Attachment) (string, error)
}

// Orchestrator is the inbound-message pipeline. It implements
// whatsapp.InboundProcessor.
type Orchestrator struct {
	logger     *slog.Logger
	ledger     dedup.Ledger
	sessions   session.Store
	engine     ConversationEngine
	awaiter    RunAwaiter
	toolRunner ToolRunner
	ingestor   MediaIngestor
	sender     whatsapp.Sender
	phones     *phone.Normalizer

	replyTimeout time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	inflight sync.WaitGroup
}

// New wires the pipeline. replyTimeout is how long a turn may take before
// the inspector gets a provisional reply; zero picks 30s.
func New(log *slog.Logger, ledger dedup.Ledger, sessions session.Store, engine ConversationEngine,
	awaiter RunAwaiter, toolRunner ToolRunner, ingestor MediaIngestor, sender whatsapp.Sender,
	phones *phone.Normalizer, replyTimeout time.Duration) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	if replyTimeout <= 0 {
		replyTimeout = 30 * time.Second
	}
	return &Orchestrator{
		logger:       log.With(slog.String("component", "orchestrator")),
		ledger:       ledger,
		sessions:     sessions,
		engine:       engine,
		awaiter:      awaiter,
		toolRunner:   toolRunner,
		ingestor:     ingestor,
		sender:       sender,
		phones:       phones,
		replyTimeout: replyTimeout,
		locks:        make(map[string]*sync.Mutex),
	}
}

// HandleInbound accepts one deliverable message and returns once the work
// is scheduled. The webhook response never carries the reply; everything
// goes back out through the gateway.
func (o *Orchestrator) HandleInbound(ctx context.Context, data whatsapp.Data) {
	phoneKey := o.phones.Normalize(data.Phone())
	if phoneKey == "" {
		o.logger.Warn("inbound message without usable sender", slog.String("message_id", data.ID))
		return
	}
	if !o.ledger.ShouldProcess(ctx, data.ID) {
		o.logger.Info("duplicate delivery suppressed",
			slog.String("message_id", data.ID),
			slog.String("phone_key", phoneKey))
		return
	}

	o.inflight.Add(1)
	go func() {
		defer o.inflight.Done()
		turnCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), turnDeadline)
		defer cancel()
		o.runTurn(turnCtx, phoneKey, data)
	}()
}

// Drain waits for in-flight turns to finish, up to ctx.
func (o *Orchestrator) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runTurn serializes per phone key, races the turn against the reply
// timeout, and delivers whatever comes out. The provisional path marks the
// message responded so a redelivery after eviction cannot double-reply.
func (o *Orchestrator) runTurn(ctx context.Context, phoneKey string, data whatsapp.Data) {
	lock := o.lockFor(phoneKey)
	lock.Lock()
	defer lock.Unlock()

	replies := make(chan string, 1)
	go func() {
		replies <- o.processTurn(ctx, phoneKey, data)
	}()

	select {
	case reply := <-replies:
		o.deliver(ctx, phoneKey, data.ID, reply)
	case <-time.After(o.replyTimeout):
		o.logger.Info("turn exceeded reply timeout, sending provisional",
			slog.String("phone_key", phoneKey),
			slog.String("message_id", data.ID))
		o.deliver(ctx, phoneKey, data.ID, replyStillWorking)
		// detached continuation: the real reply still goes out when ready
		select {
		case reply := <-replies:
			o.deliver(ctx, phoneKey, data.ID, reply)
		case <-ctx.Done():
			o.logger.Error("turn abandoned at deadline",
				slog.String("phone_key", phoneKey),
				slog.String("message_id", data.ID))
		}
	}
}

func (o *Orchestrator) deliver(ctx context.Context, phoneKey, messageID, reply string) {
	if strings.TrimSpace(reply) == "" {
		return
	}
	if err := o.sender.SendText(ctx, phoneKey, reply); err != nil {
		o.logger.Error("reply delivery failed",
			slog.String("phone_key", phoneKey),
			slog.Any("error", err))
		return
	}
	o.ledger.MarkResponded(ctx, messageID)
}

// processTurn produces the reply text for one message. An empty return
// means nothing to say.
func (o *Orchestrator) processTurn(ctx context.Context, phoneKey string, data whatsapp.Data) string {
	sess, created, err := o.sessions.GetOrCreate(ctx, phoneKey)
	if err != nil {
		o.logger.Error("session unavailable", slog.String("phone_key", phoneKey), slog.Any("error", err))
		return replyFailed
	}
	if created {
		o.logger.Info("session created",
			slog.String("phone_key", phoneKey),
			slog.String("thread_id", sess.ThreadID))
	}

	if att, ok := media.Detect(data); ok {
		reply, err := o.ingestor.Ingest(ctx, sess, att)
		if err != nil {
			o.logger.Error("media ingestion failed",
				slog.String("phone_key", phoneKey),
				slog.Any("error", err))
			return replyMediaRetry
		}
		return reply
	}

	text := strings.TrimSpace(data.Text())
	if text == "" {
		return ""
	}
	return o.converse(ctx, sess, text)
}

func (o *Orchestrator) converse(ctx context.Context, sess session.Session, text string) string {
	if err := o.engine.AppendUserTurn(ctx, sess.ThreadID, text); err != nil {
		o.logger.Error("append turn failed", slog.String("thread_id", sess.ThreadID), slog.Any("error", err))
		return replyFailed
	}
	runID, err := o.engine.StartRun(ctx, sess.ThreadID)
	if err != nil {
		o.logger.Error("run start failed", slog.String("thread_id", sess.ThreadID), slog.Any("error", err))
		return replyFailed
	}

	ref := tools.SessionRef{PhoneKey: sess.PhoneKey, ThreadID: sess.ThreadID}
	for round := 0; round < maxToolRounds; round++ {
		outcome, err := o.awaiter.Await(ctx, sess.ThreadID, runID)
		if err != nil {
			o.logger.Error("run await failed", slog.String("run_id", runID), slog.Any("error", err))
			return replyFailed
		}

		switch outcome.Kind {
		case assistant.OutcomeReady:
			reply, err := o.engine.LatestAssistantText(ctx, sess.ThreadID)
			if err != nil {
				if errors.Is(err, assistant.ErrNoAssistantReply) {
					return ""
				}
				o.logger.Error("reply fetch failed", slog.String("thread_id", sess.ThreadID), slog.Any("error", err))
				return replyFailed
			}
			return reply
		case assistant.OutcomeNeedsTools:
			outputs := o.toolRunner.DispatchAll(ctx, ref, outcome.Calls)
			if err := o.engine.SubmitToolOutputs(ctx, sess.ThreadID, runID, outputs); err != nil {
				o.logger.Error("tool output submission failed", slog.String("run_id", runID), slog.Any("error", err))
				return replyFailed
			}
		case assistant.OutcomeFailed, assistant.OutcomeIncomplete:
			return replyFailed
		}
	}
	o.logger.Error("tool round bound exceeded", slog.String("run_id", runID))
	return replyFailed
}

func (o *Orchestrator) lockFor(phoneKey string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	lock, ok := o.locks[phoneKey]
	if !ok {
		lock = &sync.Mutex{}
		o.locks[phoneKey] = lock
	}
	return lock
}
