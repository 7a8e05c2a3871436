package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const readDescription = `Reads a file from the workspace.

Usage:
- The path parameter must be an absolute workspace path
- Returns the full file content with line numbers
- Use offset/limit to read a slice of a large file`

// ReadTool reads workspace file content.
type ReadTool struct{}

// ReadInput is the input for the read tool.
type ReadInput struct {
	Path   string `json:"path"`
	Offset int    `json:"offset,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// ReadResult is the typed result of a read.
type ReadResult struct {
	Path    string `json:"path"`
	Version string `json:"version"`
	Content string `json:"content"`
	Lines   int    `json:"lines"`
}

func (t *ReadTool) Name() string        { return "read" }
func (t *ReadTool) Description() string { return readDescription }

func (t *ReadTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {
				"type": "string",
				"description": "The absolute workspace path of the file to read"
			},
			"offset": {
				"type": "integer",
				"description": "The line number to start reading from (1-based)"
			},
			"limit": {
				"type": "integer",
				"description": "The maximum number of lines to return"
			}
		},
		"required": ["path"]
	}`)
}

func (t *ReadTool) Execute(ctx context.Context, deps *Deps, workspaceID, userID string, inv *InvocationContext, args json.RawMessage) (*Response, error) {
	var params ReadInput
	if err := decodeArgs(args, &params); err != nil {
		return nil, err
	}

	path, err := requirePath("path", params.Path)
	if err != nil {
		return nil, err
	}

	content, version, err := deps.Workspace.Read(ctx, workspaceID, path)
	if err != nil {
		return nil, err
	}

	lines := strings.Split(string(content), "\n")
	total := len(lines)

	if params.Offset > 0 {
		if params.Offset > total {
			lines = nil
		} else {
			lines = lines[params.Offset-1:]
		}
	}
	if params.Limit > 0 && len(lines) > params.Limit {
		lines = lines[:params.Limit]
	}

	var sb strings.Builder
	start := params.Offset
	if start < 1 {
		start = 1
	}
	for i, line := range lines {
		fmt.Fprintf(&sb, "%6d\t%s\n", start+i, line)
	}

	return ok(ReadResult{
		Path:    path,
		Version: version.ID,
		Content: sb.String(),
		Lines:   total,
	}), nil
}
