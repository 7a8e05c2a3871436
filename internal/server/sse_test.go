package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillworks/quill/internal/provider"
	"github.com/quillworks/quill/pkg/types"
)

// readFrames consumes SSE frames off the response body until wanted
// event types were all seen or the deadline passes.
func readFrames(t *testing.T, body *bufio.Reader, want ...string) map[string]json.RawMessage {
	t.Helper()

	seen := make(map[string]json.RawMessage)
	pending := make(map[string]bool)
	for _, w := range want {
		pending[w] = true
	}

	deadline := time.Now().Add(5 * time.Second)
	var eventType string
	for len(pending) > 0 {
		require.True(t, time.Now().Before(deadline), "timed out; still waiting for %v", pending)

		line, err := body.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")

		switch {
		case strings.HasPrefix(line, "event: "):
			eventType = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			if pending[eventType] {
				seen[eventType] = json.RawMessage(strings.TrimPrefix(line, "data: "))
				delete(pending, eventType)
			}
		}
	}
	return seen
}

func TestSessionEventsStream(t *testing.T) {
	srv := setupTestServer(t, provider.MockTurn{Chunks: []*schema.Message{
		provider.TextChunk("streamed reply"),
	}})

	w := postJSON(t, srv, "/session/s1/interact", InteractBody{
		WorkspaceID: "ws1",
		UserID:      "u1",
		Content:     "hello",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", ts.URL+"/session/s1/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	frames := readFrames(t, reader, "session.init")

	var init struct {
		Type       string                `json:"type"`
		Properties types.SessionInitData `json:"properties"`
	}
	require.NoError(t, json.Unmarshal(frames["session.init"], &init))
	assert.Equal(t, "s1", init.Properties.SessionID)

	// A second interaction while attached streams its chunks and done.
	awaitSessionStatus(t, srv, "s1", types.StatusIdle)
	w = postJSON(t, srv, "/session/s1/interact", InteractBody{
		UserID:  "u1",
		Content: "again",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	frames = readFrames(t, reader, "chunk", "done")

	var chunk struct {
		Properties types.ChunkData `json:"properties"`
	}
	require.NoError(t, json.Unmarshal(frames["chunk"], &chunk))
	assert.Equal(t, "streamed reply", chunk.Properties.Text)
}

func TestSessionEventsUnknownSession(t *testing.T) {
	srv := setupTestServer(t)

	req := httptest.NewRequest("GET", "/session/ghost/events", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
