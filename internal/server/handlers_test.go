package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillworks/quill/internal/event"
	"github.com/quillworks/quill/internal/provider"
	"github.com/quillworks/quill/internal/runtime"
	"github.com/quillworks/quill/internal/storage"
	"github.com/quillworks/quill/internal/tool"
	"github.com/quillworks/quill/internal/workspace"
	"github.com/quillworks/quill/pkg/types"
)

func setupTestServer(t *testing.T, turns ...provider.MockTurn) *Server {
	t.Helper()

	cfg := &types.Config{DefaultProvider: "mock", DefaultModel: "mock-1"}

	providers := provider.NewRegistry(cfg)
	providers.Register(provider.NewMockProvider(turns...))

	records := storage.New(t.TempDir())
	ws := workspace.NewStore(t.TempDir())
	bus := event.NewBus()
	t.Cleanup(func() { bus.Close() })

	sessions := runtime.NewService(&runtime.Deps{
		Records:   records,
		Workspace: ws,
		Providers: providers,
		Tools:     tool.DefaultRegistry(&tool.Deps{Workspace: ws, Records: records}),
		Bus:       bus,
		Config:    cfg,
	})
	t.Cleanup(func() { sessions.Shutdown(context.Background()) })

	return New(DefaultConfig(), cfg, sessions)
}

func postJSON(t *testing.T, srv *Server, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func awaitSessionStatus(t *testing.T, srv *Server, id string, want types.SessionStatus) {
	t.Helper()
	require.Eventually(t, func() bool {
		s, err := srv.sessions.Get(context.Background(), id)
		return err == nil && s.Status == want
	}, 5*time.Second, 10*time.Millisecond)
}

func TestHealth(t *testing.T) {
	srv := setupTestServer(t)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status": "ok"}`, w.Body.String())
}

func TestGetSessionNotFound(t *testing.T) {
	srv := setupTestServer(t)

	req := httptest.NewRequest("GET", "/session/nope", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "not_found", resp.Error.Code)
}

func TestInteractRejectsEmptyContent(t *testing.T) {
	srv := setupTestServer(t)

	w := postJSON(t, srv, "/session/s1/interact", InteractBody{
		WorkspaceID: "ws1",
		Content:     "",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "validation", resp.Error.Code)
}

func TestInteractInvalidJSON(t *testing.T) {
	srv := setupTestServer(t)

	req := httptest.NewRequest("POST", "/session/s1/interact", bytes.NewReader([]byte("not json")))
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInteractCreatesAndRuns(t *testing.T) {
	srv := setupTestServer(t, provider.MockTurn{Chunks: []*schema.Message{
		provider.TextChunk("hello back"),
	}})

	w := postJSON(t, srv, "/session/s1/interact", InteractBody{
		WorkspaceID: "ws1",
		UserID:      "u1",
		Content:     "hello",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var session types.Session
	require.NoError(t, json.NewDecoder(w.Body).Decode(&session))
	assert.Equal(t, "s1", session.ID)

	awaitSessionStatus(t, srv, "s1", types.StatusIdle)
}

func TestCancelThenPauseConflicts(t *testing.T) {
	srv := setupTestServer(t, provider.MockTurn{Chunks: []*schema.Message{
		provider.TextChunk("ok"),
	}})

	w := postJSON(t, srv, "/session/s1/interact", InteractBody{
		WorkspaceID: "ws1",
		Content:     "work",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	awaitSessionStatus(t, srv, "s1", types.StatusIdle)

	w = postJSON(t, srv, "/session/s1/cancel", ReasonBody{Reason: "stop"})
	require.Equal(t, http.StatusOK, w.Code)
	awaitSessionStatus(t, srv, "s1", types.StatusCancelled)

	// Commands against a terminal session conflict, except cancel.
	w = postJSON(t, srv, "/session/s1/pause", ReasonBody{Reason: "wait"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = postJSON(t, srv, "/session/s1/cancel", ReasonBody{Reason: "again"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPauseIdleSession(t *testing.T) {
	srv := setupTestServer(t, provider.MockTurn{Chunks: []*schema.Message{
		provider.TextChunk("ok"),
	}})

	w := postJSON(t, srv, "/session/s1/interact", InteractBody{
		WorkspaceID: "ws1",
		Content:     "work",
	})
	require.Equal(t, http.StatusOK, w.Code)
	awaitSessionStatus(t, srv, "s1", types.StatusIdle)

	w = postJSON(t, srv, "/session/s1/pause", ReasonBody{Reason: "brb"})
	assert.Equal(t, http.StatusOK, w.Code)
	awaitSessionStatus(t, srv, "s1", types.StatusPaused)
}

func TestPingUnknownSession(t *testing.T) {
	srv := setupTestServer(t)

	w := postJSON(t, srv, "/session/ghost/ping", struct{}{})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSetMode(t *testing.T) {
	srv := setupTestServer(t, provider.MockTurn{Chunks: []*schema.Message{
		provider.TextChunk("ok"),
	}})

	w := postJSON(t, srv, "/session/s1/interact", InteractBody{
		WorkspaceID: "ws1",
		Content:     "work",
	})
	require.Equal(t, http.StatusOK, w.Code)
	awaitSessionStatus(t, srv, "s1", types.StatusIdle)

	w = postJSON(t, srv, "/session/s1/mode", ModeBody{Mode: "plan", PlanPath: "/plans/a.plan"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	session, err := srv.sessions.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, types.ModePlan, session.Mode)
	assert.Equal(t, "/plans/a.plan", session.PlanPath)

	w = postJSON(t, srv, "/session/s1/mode", ModeBody{Mode: "yolo"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestShutdownEndpointKeepsSessionState(t *testing.T) {
	srv := setupTestServer(t, provider.MockTurn{Chunks: []*schema.Message{
		provider.TextChunk("ok"),
	}})

	w := postJSON(t, srv, "/session/s1/interact", InteractBody{
		WorkspaceID: "ws1",
		Content:     "work",
	})
	require.Equal(t, http.StatusOK, w.Code)
	awaitSessionStatus(t, srv, "s1", types.StatusIdle)

	w = postJSON(t, srv, "/session/s1/shutdown", struct{}{})
	assert.Equal(t, http.StatusOK, w.Code)

	session, err := srv.sessions.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusIdle, session.Status)
}
