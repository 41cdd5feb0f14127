package inspection

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientGetInspectorByPhone(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/inspectors/by-phone/6591234567", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(Inspector{ID: "ins-1", Name: "Ravi", Phone: "6591234567", Active: true})
	}))
	t.Cleanup(srv.Close)

	c := NewClient(nil, srv.URL, "tok", 0)
	inspector, err := c.GetInspectorByPhone(context.Background(), "6591234567")
	require.NoError(t, err)
	assert.Equal(t, "ins-1", inspector.ID)
	assert.Equal(t, "Ravi", inspector.Name)
}

func TestClientNotFound(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"no such work order"}`, http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(nil, srv.URL, "", 0)
	_, err := c.GetWorkOrderByID(context.Background(), "wo-missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestClientUpdateTaskStatusBody(t *testing.T) {
	t.Parallel()

	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/tasks/task-1", r.URL.Path)
		got = nil
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(nil, srv.URL, "", 0)
	require.NoError(t, c.UpdateTaskStatus(context.Background(), "task-1", TaskCompleted, "scuffed skirting"))
	assert.Equal(t, map[string]string{"status": TaskCompleted, "notes": "scuffed skirting"}, got)

	require.NoError(t, c.UpdateTaskStatus(context.Background(), "task-1", TaskCompleted, "   "))
	assert.NotContains(t, got, "notes", "blank notes are omitted")
}

func TestClientServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(nil, srv.URL, "", 0)
	_, err := c.GetWorkOrderProgress(context.Background(), "wo-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}
