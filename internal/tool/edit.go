package tool

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/quillworks/quill/internal/apperr"
)

const editDescription = `Performs exact string replacements in a workspace file.

Usage:
- The path parameter must be an absolute workspace path
- The oldString must exist in the file (exact match required)
- The edit FAILS if oldString is not unique, unless replaceAll is set`

// EditTool performs string replacement edits on workspace files.
type EditTool struct{}

// EditInput is the input for the edit tool.
type EditInput struct {
	Path       string `json:"path"`
	OldString  string `json:"oldString"`
	NewString  string `json:"newString"`
	ReplaceAll bool   `json:"replaceAll,omitempty"`
}

// EditResult is the typed result of an edit.
type EditResult struct {
	Path         string `json:"path"`
	Version      string `json:"version"`
	Replacements int    `json:"replacements"`
	Diff         string `json:"diff,omitempty"`
}

func (t *EditTool) Name() string        { return "edit" }
func (t *EditTool) Description() string { return editDescription }

func (t *EditTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {
				"type": "string",
				"description": "The absolute workspace path of the file to edit"
			},
			"oldString": {
				"type": "string",
				"description": "The exact text to replace"
			},
			"newString": {
				"type": "string",
				"description": "The text to replace it with"
			},
			"replaceAll": {
				"type": "boolean",
				"description": "Replace all occurrences (default: false)"
			}
		},
		"required": ["path", "oldString", "newString"]
	}`)
}

func (t *EditTool) Execute(ctx context.Context, deps *Deps, workspaceID, userID string, inv *InvocationContext, args json.RawMessage) (*Response, error) {
	var params EditInput
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
	if params.OldString == params.NewString {
		return nil, apperr.New(apperr.KindValidation, "oldString and newString must be different")
	}

	content, _, err := deps.Workspace.Read(ctx, workspaceID, path)
	if err != nil {
		return nil, err
	}
	text := string(content)

	count := strings.Count(text, params.OldString)
	if count == 0 {
		return nil, apperr.Newf(apperr.KindValidation, "oldString not found in %s", path)
	}
	if count > 1 && !params.ReplaceAll {
		return nil, apperr.Newf(apperr.KindValidation,
			"oldString appears %d times in %s; use replaceAll or a longer unique match", count, path)
	}

	var newText string
	replacements := 1
	if params.ReplaceAll {
		newText = strings.ReplaceAll(text, params.OldString, params.NewString)
		replacements = count
	} else {
		newText = strings.Replace(text, params.OldString, params.NewString, 1)
	}

	version, _, err := deps.Workspace.WriteVersion(ctx, workspaceID, path, []byte(newText))
	if err != nil {
		return nil, err
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(text, newText, false)
	dmp.DiffCleanupSemantic(diffs)

	return ok(EditResult{
		Path:         path,
		Version:      version.ID,
		Replacements: replacements,
		Diff:         dmp.DiffPrettyText(diffs),
	}), nil
}
