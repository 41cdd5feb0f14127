package whatsapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingProcessor struct {
	handled []Data
}

func (r *recordingProcessor) HandleInbound(_ context.Context, data Data) {
	r.handled = append(r.handled, data)
}

func postWebhook(t *testing.T, h *WebhookHandler, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	err := h.Handle(e.NewContext(req, rec))
	if err != nil {
		e.HTTPErrorHandler(err, e.NewContext(req, rec))
	}
	return rec
}

func TestWebhookProbe(t *testing.T) {
	t.Parallel()

	h := NewWebhookHandler(nil, "s3cret", &recordingProcessor{})
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/webhook/whatsapp?secret=s3cret", nil)
	rec := httptest.NewRecorder()
	require.NoError(t, h.HandleProbe(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/webhook/whatsapp?secret=wrong", nil)
	rec = httptest.NewRecorder()
	err := h.HandleProbe(e.NewContext(req, rec))
	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
}

func TestWebhookDeliversMessage(t *testing.T) {
	t.Parallel()

	proc := &recordingProcessor{}
	h := NewWebhookHandler(nil, "s3cret", proc)

	rec := postWebhook(t, h, "/webhook/whatsapp?secret=s3cret",
		`{"event":"message","data":{"id":"m1","fromNumber":"+6591234567","body":"hello"}}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())
	require.Len(t, proc.handled, 1)
	assert.Equal(t, "m1", proc.handled[0].ID)
	assert.Equal(t, "hello", proc.handled[0].Text())
}

func TestWebhookSkipsOwnAndStatusEvents(t *testing.T) {
	t.Parallel()

	proc := &recordingProcessor{}
	h := NewWebhookHandler(nil, "", proc)

	for _, body := range []string{
		`{"event":"message","data":{"id":"m1","from":"6591234567","body":"x","fromMe":true}}`,
		`{"event":"message","data":{"id":"m2","from":"6591234567","body":"x","self":true}}`,
		`{"event":"message.ack","data":{"id":"m3","from":"6591234567"}}`,
		`{"event":"message","data":{"id":"m4","body":"no sender"}}`,
		`not json at all`,
	} {
		rec := postWebhook(t, h, "/webhook/whatsapp", body)
		assert.Equal(t, http.StatusOK, rec.Code, "gateway always gets 200 for %q", body)
	}
	assert.Empty(t, proc.handled)
}

func TestWebhookRejectsBadSecret(t *testing.T) {
	t.Parallel()

	proc := &recordingProcessor{}
	h := NewWebhookHandler(nil, "s3cret", proc)

	rec := postWebhook(t, h, "/webhook/whatsapp?secret=nope",
		`{"event":"message","data":{"id":"m1","from":"6591234567","body":"hello"}}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, proc.handled)
}

func TestChunkText(t *testing.T) {
	t.Parallel()

	assert.Nil(t, ChunkText("   ", 10))
	assert.Equal(t, []string{"short"}, ChunkText("short", 10))

	chunks := ChunkText("aaaa\nbbbb\ncccc", 9)
	assert.Equal(t, []string{"aaaa\nbbbb", "cccc"}, chunks)

	long := strings.Repeat("x", 25)
	chunks = ChunkText(long, 10)
	assert.Equal(t, []string{strings.Repeat("x", 10), strings.Repeat("x", 10), "xxxxx"}, chunks)
}

func TestClientSendText(t *testing.T) {
	t.Parallel()

	var got []Outbound
	var auths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/send", r.URL.Path)
		auths = append(auths, r.Header.Get("Authorization"))
		var out Outbound
		require.NoError(t, json.NewDecoder(r.Body).Decode(&out))
		got = append(got, out)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(nil, srv.URL, "tok")
	require.NoError(t, c.SendText(context.Background(), "6591234567", "hello there"))
	require.Len(t, got, 1)
	assert.Equal(t, Outbound{Phone: "6591234567", Message: "hello there"}, got[0])
	assert.Equal(t, "Bearer tok", auths[0])
}

func TestClientSendTextGatewayError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(nil, srv.URL, "tok")
	err := c.SendText(context.Background(), "6591234567", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}
