// Package provider abstracts the AI backends behind a streaming
// completion interface built on Eino chat models.
package provider

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/quillworks/quill/internal/apperr"
	"github.com/quillworks/quill/pkg/types"
)

// DefaultStreamTimeout bounds how long a stream read may go silent
// before it is reported as a transient failure.
const DefaultStreamTimeout = 120 * time.Second

// Provider is a single AI backend.
type Provider interface {
	// ID returns the provider identifier.
	ID() string

	// Name returns the human-readable provider name.
	Name() string

	// Models returns the list of available models.
	Models() []types.Model

	// ChatModel returns the underlying Eino chat model.
	ChatModel() model.ToolCallingChatModel

	// CreateCompletion starts a streaming completion.
	CreateCompletion(ctx context.Context, req *CompletionRequest) (*CompletionStream, error)
}

// CompletionRequest parameterizes one streaming completion call.
type CompletionRequest struct {
	Model       string             `json:"model"`
	Messages    []*schema.Message  `json:"messages"`
	Tools       []*schema.ToolInfo `json:"tools,omitempty"`
	MaxTokens   int                `json:"maxTokens,omitempty"`
	Temperature float64            `json:"temperature,omitempty"`
}

type recvResult struct {
	msg *schema.Message
	err error
}

// CompletionStream wraps an Eino stream reader with a per-read
// silence timeout. A read that sees no data within the timeout
// returns a transient error so the caller can retry the whole call.
type CompletionStream struct {
	reader  *schema.StreamReader[*schema.Message]
	timeout time.Duration
	ch      chan recvResult

	closeOnce sync.Once
}

// NewCompletionStream starts pumping reader. A timeout of zero means
// DefaultStreamTimeout.
func NewCompletionStream(reader *schema.StreamReader[*schema.Message], timeout time.Duration) *CompletionStream {
	if timeout <= 0 {
		timeout = DefaultStreamTimeout
	}
	s := &CompletionStream{
		reader:  reader,
		timeout: timeout,
		ch:      make(chan recvResult, 16),
	}
	go s.pump()
	return s
}

func (s *CompletionStream) pump() {
	defer close(s.ch)
	for {
		msg, err := s.reader.Recv()
		s.ch <- recvResult{msg: msg, err: err}
		if err != nil {
			return
		}
	}
}

// Recv returns the next chunk, io.EOF at end of stream, or a
// transient error after timeout of silence.
func (s *CompletionStream) Recv() (*schema.Message, error) {
	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case r, ok := <-s.ch:
		if !ok {
			return nil, io.EOF
		}
		return r.msg, r.err
	case <-timer.C:
		s.Close()
		return nil, apperr.Newf(apperr.KindTransient, "no stream data for %s", s.timeout)
	}
}

// Close releases the underlying reader. Safe to call more than once.
func (s *CompletionStream) Close() {
	s.closeOnce.Do(func() {
		s.reader.Close()
		// Unblock the pump; it exits once the closed reader errors.
		go func() {
			for range s.ch {
			}
		}()
	})
}

// ToolInfo is a provider-neutral tool definition.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"` // JSON Schema
}

// ConvertToEinoTools converts tool definitions to Eino format.
func ConvertToEinoTools(tools []ToolInfo) []*schema.ToolInfo {
	result := make([]*schema.ToolInfo, len(tools))
	for i, t := range tools {
		var params map[string]*schema.ParameterInfo
		if len(t.Parameters) > 0 {
			params = parseJSONSchemaToParams(t.Parameters)
		}
		result[i] = &schema.ToolInfo{
			Name:        t.Name,
			Desc:        t.Description,
			ParamsOneOf: schema.NewParamsOneOfByParams(params),
		}
	}
	return result
}

func parseJSONSchemaToParams(schemaJSON json.RawMessage) map[string]*schema.ParameterInfo {
	var jsonSchema struct {
		Properties map[string]struct {
			Type        string `json:"type"`
			Description string `json:"description"`
		} `json:"properties"`
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(schemaJSON, &jsonSchema); err != nil {
		return nil
	}

	requiredSet := make(map[string]bool)
	for _, r := range jsonSchema.Required {
		requiredSet[r] = true
	}

	params := make(map[string]*schema.ParameterInfo)
	for name, prop := range jsonSchema.Properties {
		paramType := schema.String
		switch prop.Type {
		case "integer":
			paramType = schema.Integer
		case "number":
			paramType = schema.Number
		case "boolean":
			paramType = schema.Boolean
		case "array":
			paramType = schema.Array
		case "object":
			paramType = schema.Object
		}
		params[name] = &schema.ParameterInfo{
			Type:     paramType,
			Desc:     prop.Description,
			Required: requiredSet[name],
		}
	}
	return params
}
