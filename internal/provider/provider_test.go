package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillworks/quill/internal/apperr"
	"github.com/quillworks/quill/pkg/types"
)

func TestConvertToEinoTools(t *testing.T) {
	tools := []ToolInfo{
		{
			Name:        "read",
			Description: "Read a file",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"path": {"type": "string", "description": "File path"},
					"limit": {"type": "integer", "description": "Max lines"}
				},
				"required": ["path"]
			}`),
		},
	}

	result := ConvertToEinoTools(tools)
	require.Len(t, result, 1)
	assert.Equal(t, "read", result[0].Name)
	assert.Equal(t, "Read a file", result[0].Desc)
}

func TestCompletionStreamDeliversChunks(t *testing.T) {
	mock := NewMockProvider(MockTurn{Chunks: []*schema.Message{
		TextChunk("hello "),
		TextChunk("world"),
	}})

	stream, err := mock.CreateCompletion(context.Background(), &CompletionRequest{Model: "mock-1"})
	require.NoError(t, err)
	defer stream.Close()

	var got string
	for {
		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got += msg.Content
	}
	assert.Equal(t, "hello world", got)
}

func TestCompletionStreamSilenceIsTransient(t *testing.T) {
	reader, writer := schema.Pipe[*schema.Message](1)
	defer writer.Close()

	stream := NewCompletionStream(reader, 20*time.Millisecond)
	defer stream.Close()

	_, err := stream.Recv()
	require.Error(t, err)
	assert.True(t, apperr.IsTransient(err))
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline", context.DeadlineExceeded, true},
		{"rate limit", errors.New("anthropic: 429 rate limit exceeded"), true},
		{"overloaded", errors.New("overloaded_error"), true},
		{"service unavailable", errors.New("503 Service Unavailable"), true},
		{"tagged transient", apperr.New(apperr.KindTransient, "upstream"), true},
		{"bad request", errors.New("400 invalid request"), false},
		{"auth", errors.New("401 unauthorized"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestRegistryDefault(t *testing.T) {
	cfg := &types.Config{
		DefaultProvider: "mock",
		DefaultModel:    "mock-1",
	}
	r := NewRegistry(cfg)
	r.Register(NewMockProvider())

	ref, err := r.Default()
	require.NoError(t, err)
	assert.Equal(t, types.ModelRef{ProviderID: "mock", ModelID: "mock-1"}, ref)
}

func TestRegistryDefaultFallsBackToRegistered(t *testing.T) {
	r := NewRegistry(&types.Config{})
	r.Register(NewMockProvider())

	ref, err := r.Default()
	require.NoError(t, err)
	assert.Equal(t, "mock", ref.ProviderID)
	assert.Equal(t, "mock-1", ref.ModelID)
}

func TestRegistryGetMissing(t *testing.T) {
	r := NewRegistry(&types.Config{})

	_, err := r.Get("nonexistent")
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestParseModelRef(t *testing.T) {
	assert.Equal(t, types.ModelRef{ProviderID: "anthropic", ModelID: "claude-sonnet-4-20250514"},
		ParseModelRef("anthropic/claude-sonnet-4-20250514"))
	assert.Equal(t, types.ModelRef{ModelID: "gpt-4o"}, ParseModelRef("gpt-4o"))
}

func TestMockProviderReplaysTurns(t *testing.T) {
	mock := NewMockProvider(
		MockTurn{Err: errors.New("503 Service Unavailable")},
		MockTurn{Chunks: []*schema.Message{TextChunk("ok")}},
	)

	_, err := mock.CreateCompletion(context.Background(), &CompletionRequest{})
	require.Error(t, err)
	assert.True(t, IsTransient(err))

	stream, err := mock.CreateCompletion(context.Background(), &CompletionRequest{})
	require.NoError(t, err)
	defer stream.Close()

	msg, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, "ok", msg.Content)
	assert.Equal(t, 2, mock.Calls())
}
