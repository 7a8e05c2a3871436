package provider

import (
	"context"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/quillworks/quill/pkg/types"
)

// MockTurn scripts one CreateCompletion call of a MockProvider: the
// chunks to stream in order, then an optional error. An Err with no
// chunks fails the call outright; an Err after chunks surfaces
// mid-stream, after the chunks were delivered.
type MockTurn struct {
	Chunks []*schema.Message
	Err    error
}

// MockProvider replays scripted turns. Used by runtime tests in place
// of a real backend.
type MockProvider struct {
	mu       sync.Mutex
	turns    []MockTurn
	calls    int
	requests []*CompletionRequest

	// StreamTimeout is passed through to the completion stream.
	StreamTimeout time.Duration
}

// NewMockProvider creates a provider that replays turns in order.
// Calls past the script replay the last turn.
func NewMockProvider(turns ...MockTurn) *MockProvider {
	return &MockProvider{turns: turns}
}

func (p *MockProvider) ID() string   { return "mock" }
func (p *MockProvider) Name() string { return "Mock" }

func (p *MockProvider) Models() []types.Model {
	return []types.Model{{ID: "mock-1", Name: "Mock", SupportsTools: true}}
}

func (p *MockProvider) ChatModel() model.ToolCallingChatModel { return nil }

// Calls returns how many completions were requested.
func (p *MockProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// Requests returns the requests seen so far.
func (p *MockProvider) Requests() []*CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*CompletionRequest(nil), p.requests...)
}

// CreateCompletion replays the next scripted turn.
func (p *MockProvider) CreateCompletion(ctx context.Context, req *CompletionRequest) (*CompletionStream, error) {
	p.mu.Lock()
	turn := MockTurn{}
	if len(p.turns) > 0 {
		i := p.calls
		if i >= len(p.turns) {
			i = len(p.turns) - 1
		}
		turn = p.turns[i]
	}
	p.calls++
	p.requests = append(p.requests, req)
	p.mu.Unlock()

	if turn.Err != nil && len(turn.Chunks) == 0 {
		return nil, turn.Err
	}

	reader, writer := schema.Pipe[*schema.Message](len(turn.Chunks) + 1)
	go func() {
		defer writer.Close()
		for _, chunk := range turn.Chunks {
			if closed := writer.Send(chunk, nil); closed {
				return
			}
		}
		if turn.Err != nil {
			writer.Send(nil, turn.Err)
		}
	}()
	return NewCompletionStream(reader, p.StreamTimeout), nil
}

// TextChunk builds an assistant text chunk for scripting.
func TextChunk(text string) *schema.Message {
	return &schema.Message{Role: schema.Assistant, Content: text}
}

// ToolCallChunk builds an assistant tool-call chunk for scripting.
func ToolCallChunk(id, name, args string) *schema.Message {
	return &schema.Message{
		Role: schema.Assistant,
		ToolCalls: []schema.ToolCall{{
			ID: id,
			Function: schema.FunctionCall{
				Name:      name,
				Arguments: args,
			},
		}},
	}
}
