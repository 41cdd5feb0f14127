package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// chunkLimit bounds one outbound message. WhatsApp caps text bodies at
// 4096 characters; stay under it.
const chunkLimit = 4000

// Sender delivers one text message to a phone number.
type Sender interface {
	SendText(ctx context.Context, phone, message string) error
}

// Client talks to the WhatsApp gateway's send-message API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a gateway client. baseURL is the gateway root without a
// trailing slash.
func NewClient(log *slog.Logger, baseURL, token string) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     log.With(slog.String("client", "whatsapp")),
	}
}

// SendText delivers message to phone, splitting oversized text into chunks
// sent in order. Delivery stops at the first gateway failure.
func (c *Client) SendText(ctx context.Context, phone, message string) error {
	for _, chunk := range ChunkText(message, chunkLimit) {
		if err := c.send(ctx, phone, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) send(ctx context.Context, phone, message string) error {
	body, err := json.Marshal(Outbound{Phone: phone, Message: message})
	if err != nil {
		return fmt.Errorf("marshal send body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/send", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Error("gateway rejected message",
			slog.Int("status", resp.StatusCode),
			slog.String("phone", phone),
			slog.String("body_prefix", truncate(string(payload), 200)))
		return fmt.Errorf("send message: gateway status %d", resp.StatusCode)
	}
	return nil
}

// ChunkText splits text at newline boundaries, respecting the rune limit.
// Lines longer than the limit are hard-split.
func ChunkText(text string, limit int) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	if limit <= 0 || len([]rune(trimmed)) <= limit {
		return []string{trimmed}
	}
	lines := strings.Split(trimmed, "\n")
	chunks := make([]string, 0)
	buf := make([]string, 0, len(lines))
	bufLen := 0
	for _, line := range lines {
		lineLen := len([]rune(line))
		sepLen := 0
		if len(buf) > 0 {
			sepLen = 1
		}
		if bufLen+sepLen+lineLen <= limit {
			buf = append(buf, line)
			bufLen += sepLen + lineLen
			continue
		}
		if len(buf) > 0 {
			chunks = append(chunks, strings.Join(buf, "\n"))
			buf = buf[:0]
			bufLen = 0
		}
		if lineLen <= limit {
			buf = append(buf, line)
			bufLen = lineLen
			continue
		}
		chunks = append(chunks, splitLongLine(line, limit)...)
	}
	if len(buf) > 0 {
		chunks = append(chunks, strings.Join(buf, "\n"))
	}
	return chunks
}

func splitLongLine(line string, limit int) []string {
	runes := []rune(line)
	chunks := make([]string, 0, (len(runes)+limit-1)/limit)
	for start := 0; start < len(runes); start += limit {
		end := start + limit
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
