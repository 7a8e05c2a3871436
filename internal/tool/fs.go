package tool

import (
	"context"
	"encoding/json"

	"github.com/quillworks/quill/internal/workspace"
)

// DeleteTool soft-deletes a workspace file or empty folder.
type DeleteTool struct{}

// DeleteInput is the input for the delete tool.
type DeleteInput struct {
	Path string `json:"path"`
}

func (t *DeleteTool) Name() string { return "delete" }

func (t *DeleteTool) Description() string {
	return `Deletes a workspace file or an empty folder.

Usage:
- The path parameter must be an absolute workspace path
- Deleting a non-empty folder fails; delete its contents first
- File versions remain recoverable after deletion`
}

func (t *DeleteTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {
				"type": "string",
				"description": "The absolute workspace path to delete"
			}
		},
		"required": ["path"]
	}`)
}

func (t *DeleteTool) Execute(ctx context.Context, deps *Deps, workspaceID, userID string, inv *InvocationContext, args json.RawMessage) (*Response, error) {
	var params DeleteInput
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

	if err := deps.Workspace.SoftDelete(ctx, workspaceID, path); err != nil {
		return nil, err
	}
	return ok(map[string]any{"path": path, "deleted": true}), nil
}

// MoveTool renames a workspace file.
type MoveTool struct{}

// MoveInput is the input for the move tool.
type MoveInput struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func (t *MoveTool) Name() string { return "move" }

func (t *MoveTool) Description() string {
	return `Moves or renames a workspace file.

Usage:
- Both paths must be absolute workspace paths
- Fails if the destination already exists`
}

func (t *MoveTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"from": {
				"type": "string",
				"description": "The absolute workspace path of the file to move"
			},
			"to": {
				"type": "string",
				"description": "The absolute destination workspace path"
			}
		},
		"required": ["from", "to"]
	}`)
}

func (t *MoveTool) Execute(ctx context.Context, deps *Deps, workspaceID, userID string, inv *InvocationContext, args json.RawMessage) (*Response, error) {
	var params MoveInput
	if err := decodeArgs(args, &params); err != nil {
		return nil, err
	}

	from, err := requirePath("from", params.From)
	if err != nil {
		return nil, err
	}
	to, err := requirePath("to", params.To)
	if err != nil {
		return nil, err
	}
	// A move mutates both endpoints.
	if err := guardMutation(inv, from); err != nil {
		return nil, err
	}
	if err := guardMutation(inv, to); err != nil {
		return nil, err
	}

	version, err := deps.Workspace.Move(ctx, workspaceID, from, to)
	if err != nil {
		return nil, err
	}
	return ok(map[string]any{"from": from, "to": to, "version": version.ID}), nil
}

// MkdirTool creates a workspace folder.
type MkdirTool struct{}

// MkdirInput is the input for the mkdir tool.
type MkdirInput struct {
	Path string `json:"path"`
}

func (t *MkdirTool) Name() string { return "mkdir" }

func (t *MkdirTool) Description() string {
	return `Creates a folder in the workspace.

Usage:
- The path parameter must be an absolute workspace path
- Parent folders are created as needed
- Creating an existing folder is a no-op`
}

func (t *MkdirTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {
				"type": "string",
				"description": "The absolute workspace path of the folder to create"
			}
		},
		"required": ["path"]
	}`)
}

func (t *MkdirTool) Execute(ctx context.Context, deps *Deps, workspaceID, userID string, inv *InvocationContext, args json.RawMessage) (*Response, error) {
	var params MkdirInput
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

	if err := deps.Workspace.Mkdir(ctx, workspaceID, path); err != nil {
		return nil, err
	}
	return ok(map[string]any{"path": path}), nil
}

// TouchTool creates an empty workspace file.
type TouchTool struct{}

// TouchInput is the input for the touch tool.
type TouchInput struct {
	Path string `json:"path"`
}

func (t *TouchTool) Name() string { return "touch" }

func (t *TouchTool) Description() string {
	return `Creates an empty file in the workspace.

Usage:
- The path parameter must be an absolute workspace path
- Touching an existing file leaves its content unchanged`
}

func (t *TouchTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {
				"type": "string",
				"description": "The absolute workspace path of the file to create"
			}
		},
		"required": ["path"]
	}`)
}

func (t *TouchTool) Execute(ctx context.Context, deps *Deps, workspaceID, userID string, inv *InvocationContext, args json.RawMessage) (*Response, error) {
	var params TouchInput
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

	version, err := deps.Workspace.Touch(ctx, workspaceID, path)
	if err != nil {
		return nil, err
	}
	return ok(map[string]any{"path": path, "version": version.ID}), nil
}

// ListTool lists a workspace folder.
type ListTool struct{}

// ListInput is the input for the list tool.
type ListInput struct {
	Path string `json:"path,omitempty"`
}

// ListResult is the typed result of a listing.
type ListResult struct {
	Path    string            `json:"path"`
	Entries []workspace.Entry `json:"entries"`
}

func (t *ListTool) Name() string { return "list" }

func (t *ListTool) Description() string {
	return `Lists files and folders in a workspace directory.

Usage:
- The path parameter defaults to the workspace root
- Soft-deleted files are not listed`
}

func (t *ListTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {
				"type": "string",
				"description": "The absolute workspace path of the folder to list (default: /)"
			}
		}
	}`)
}

func (t *ListTool) Execute(ctx context.Context, deps *Deps, workspaceID, userID string, inv *InvocationContext, args json.RawMessage) (*Response, error) {
	var params ListInput
	if err := decodeArgs(args, &params); err != nil {
		return nil, err
	}

	path := params.Path
	if path == "" {
		path = "/"
	}
	path, err := normalizePathArg(path)
	if err != nil {
		return nil, err
	}

	entries, err := deps.Workspace.List(ctx, workspaceID, path)
	if err != nil {
		return nil, err
	}
	return ok(ListResult{Path: path, Entries: entries}), nil
}
