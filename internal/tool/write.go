package tool

import (
	"context"
	"encoding/json"
)

const writeDescription = `Writes content to a workspace file.

Usage:
- The path parameter must be an absolute workspace path
- Overwrites existing files by creating a new version
- Writing identical content is a no-op that keeps the current version
- ALWAYS prefer editing existing files over creating new ones`

// WriteTool writes a new version of a workspace file.
type WriteTool struct{}

// WriteInput is the input for the write tool.
type WriteInput struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// WriteResult is the typed result of a write.
type WriteResult struct {
	Path    string `json:"path"`
	Version string `json:"version"`
	Bytes   int    `json:"bytes"`
	Created bool   `json:"created"`
}

func (t *WriteTool) Name() string        { return "write" }
func (t *WriteTool) Description() string { return writeDescription }

func (t *WriteTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {
				"type": "string",
				"description": "The absolute workspace path of the file to write"
			},
			"content": {
				"type": "string",
				"description": "The content to write"
			}
		},
		"required": ["path", "content"]
	}`)
}

func (t *WriteTool) Execute(ctx context.Context, deps *Deps, workspaceID, userID string, inv *InvocationContext, args json.RawMessage) (*Response, error) {
	var params WriteInput
	if err := decodeArgs(args, &params); err != nil {
		return nil, err
	}

	path, err := requirePath("path", params.Path)
	if err != nil {
		return nil, err
	}
	if err := guardMutation(inv, path); err != nil {
		return nil, err
	}

	version, created, err := deps.Workspace.WriteVersion(ctx, workspaceID, path, []byte(params.Content))
	if err != nil {
		return nil, err
	}

	return ok(WriteResult{
		Path:    path,
		Version: version.ID,
		Bytes:   len(params.Content),
		Created: created,
	}), nil
}
