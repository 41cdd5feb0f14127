package whatsapp

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
)

const webhookMaxBodyBytes int64 = 1 << 20 // 1 MiB

// InboundProcessor handles one deliverable inbound message. Replies go out
// of band through the gateway, never on the webhook response.
type InboundProcessor interface {
	HandleInbound(ctx context.Context, data Data)
}

// WebhookHandler receives gateway message callbacks.
type WebhookHandler struct {
	logger    *slog.Logger
	secret    string
	processor InboundProcessor
}

// NewWebhookHandler creates the public webhook endpoint. secret gates both
// the verification probe and message deliveries.
func NewWebhookHandler(log *slog.Logger, secret string, processor InboundProcessor) *WebhookHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WebhookHandler{
		logger:    log.With(slog.String("handler", "whatsapp_webhook")),
		secret:    secret,
		processor: processor,
	}
}

// Register registers webhook routes.
func (h *WebhookHandler) Register(e *echo.Echo) {
	e.GET("/webhook/whatsapp", h.HandleProbe)
	e.POST("/webhook/whatsapp", h.Handle)
}

// HandleProbe answers the gateway's endpoint verification.
func (h *WebhookHandler) HandleProbe(c echo.Context) error {
	if !h.authorized(c) {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid webhook secret")
	}
	return c.String(http.StatusOK, "OK")
}

// Handle accepts one message delivery. Once the secret checks out the
// gateway always gets 200 with {"success":true}: processing failures are
// surfaced to the inspector over the chat channel, and a non-2xx here would
// only trigger redelivery of a message we already saw.
func (h *WebhookHandler) Handle(c echo.Context) error {
	if !h.authorized(c) {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid webhook secret")
	}

	ack := func() error { return c.JSON(http.StatusOK, map[string]bool{"success": true}) }

	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, webhookMaxBodyBytes+1))
	if err != nil || int64(len(payload)) > webhookMaxBodyBytes {
		h.logger.Warn("webhook body unreadable", slog.Any("error", err))
		return ack()
	}

	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		h.logger.Warn("webhook payload not json", slog.Any("error", err))
		return ack()
	}
	if !deliverable(env) {
		return ack()
	}

	h.processor.HandleInbound(context.WithoutCancel(c.Request().Context()), env.Data)
	return ack()
}

func (h *WebhookHandler) authorized(c echo.Context) bool {
	if h.secret == "" {
		return true
	}
	given := c.QueryParam("secret")
	if given == "" {
		given = c.Request().Header.Get("X-Webhook-Secret")
	}
	return subtle.ConstantTimeCompare([]byte(given), []byte(h.secret)) == 1
}

// deliverable filters out echoes of our own sends, status callbacks, and
// payloads with no sender.
func deliverable(env Envelope) bool {
	if env.Event != "" && env.Event != "message" && env.Event != "message.received" {
		return false
	}
	d := env.Data
	if d.FromMe || d.Self {
		return false
	}
	return d.Phone() != ""
}
