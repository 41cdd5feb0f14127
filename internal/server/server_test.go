package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubHandler struct{ registered bool }

func (s *stubHandler) Register(e *echo.Echo) {
	s.registered = true
	e.GET("/stub", func(c echo.Context) error {
		return c.String(http.StatusOK, "stub")
	})
}

func TestPing(t *testing.T) {
	t.Parallel()

	s := New(nil, "", nil)
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHandlerRegistration(t *testing.T) {
	t.Parallel()

	h := &stubHandler{}
	s := New(nil, ":9090", h)
	require.True(t, h.registered)

	req := httptest.NewRequest(http.MethodGet, "/stub", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
