package tool

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/quillworks/quill/internal/apperr"
)

const askDescription = `Asks the user one or more questions and ends the current turn.

Usage:
- Use when the task cannot proceed without user input
- Ask all outstanding questions in a single call
- The questions are delivered to the user; a later interaction carries the answers`

// AskTool records questions for the user; the runtime surfaces them on
// the session stream as a pending-question event.
type AskTool struct{}

// AskInput is the input for the ask tool.
type AskInput struct {
	Questions []string `json:"questions"`
}

// AskResult is the typed result of an ask call.
type AskResult struct {
	QuestionID string   `json:"questionID"`
	Questions  []string `json:"questions"`
	CreatedAt  int64    `json:"createdAt"`
}

func (t *AskTool) Name() string        { return "ask" }
func (t *AskTool) Description() string { return askDescription }

func (t *AskTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"questions": {
				"type": "array",
				"description": "The questions to ask the user"
			}
		},
		"required": ["questions"]
	}`)
}

func (t *AskTool) Execute(ctx context.Context, deps *Deps, workspaceID, userID string, inv *InvocationContext, args json.RawMessage) (*Response, error) {
	var params AskInput
	if err := decodeArgs(args, &params); err != nil {
		return nil, err
	}
	if len(params.Questions) == 0 {
		return nil, apperr.New(apperr.KindValidation, "at least one question is required")
	}

	result := AskResult{
		QuestionID: ulid.Make().String(),
		Questions:  params.Questions,
		CreatedAt:  time.Now().UnixMilli(),
	}

	if deps.Records != nil && inv != nil && inv.SessionID != "" {
		if err := deps.Records.Put(ctx, []string{"question", inv.SessionID, result.QuestionID}, result); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "persist question", err)
		}
	}

	return ok(result), nil
}
