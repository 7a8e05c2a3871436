package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/quillworks/quill/internal/apperr"
	"github.com/quillworks/quill/internal/workspace"
)

// searchMaxResults caps search output so a broad pattern cannot flood
// the model context.
const searchMaxResults = 200

const searchDescription = `Finds workspace files whose paths match a glob pattern.

Usage:
- Supports glob patterns like "**/*.md" or "/docs/**"
- Patterns are matched against absolute workspace paths
- Results are sorted by path`

// SearchTool matches workspace paths against a glob pattern.
type SearchTool struct{}

// SearchInput is the input for the search tool.
type SearchInput struct {
	Pattern string `json:"pattern"`
}

// SearchResult is the typed result of a path search.
type SearchResult struct {
	Pattern   string   `json:"pattern"`
	Paths     []string `json:"paths"`
	Truncated bool     `json:"truncated"`
}

func (t *SearchTool) Name() string        { return "search" }
func (t *SearchTool) Description() string { return searchDescription }

func (t *SearchTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"pattern": {
				"type": "string",
				"description": "The glob pattern to match workspace paths against (e.g. \"**/*.md\")"
			}
		},
		"required": ["pattern"]
	}`)
}

func (t *SearchTool) Execute(ctx context.Context, deps *Deps, workspaceID, userID string, inv *InvocationContext, args json.RawMessage) (*Response, error) {
	var params SearchInput
	if err := decodeArgs(args, &params); err != nil {
		return nil, err
	}
	if params.Pattern == "" {
		return nil, apperr.New(apperr.KindValidation, "pattern is required")
	}

	pattern := params.Pattern
	if !strings.HasPrefix(pattern, "/") && !strings.HasPrefix(pattern, "*") {
		pattern = "/" + pattern
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, apperr.Newf(apperr.KindValidation, "invalid glob pattern: %s", params.Pattern)
	}

	result := SearchResult{Pattern: params.Pattern}
	err := deps.Workspace.Walk(ctx, workspaceID, func(e workspace.Entry) error {
		if len(result.Paths) >= searchMaxResults {
			result.Truncated = true
			return nil
		}
		matched, _ := doublestar.Match(pattern, e.Path)
		if !matched {
			// Also allow bare patterns like "*.md" to match anywhere.
			matched, _ = doublestar.Match("/**/"+strings.TrimPrefix(params.Pattern, "/"), e.Path)
		}
		if matched {
			result.Paths = append(result.Paths, e.Path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return ok(result), nil
}

// grepMaxMatches caps grep output lines.
const grepMaxMatches = 100

const grepDescription = `Searches workspace file contents with a regular expression.

Usage:
- Supports Go regex syntax (e.g. "func\\s+\\w+")
- Filter candidate files with the include glob (e.g. "**/*.md")
- Returns matching lines with path and line number`

// GrepTool searches workspace file contents.
type GrepTool struct{}

// GrepInput is the input for the grep tool.
type GrepInput struct {
	Pattern string `json:"pattern"`
	Include string `json:"include,omitempty"`
}

// GrepMatch is a single matching line.
type GrepMatch struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

// GrepResult is the typed result of a content search.
type GrepResult struct {
	Pattern   string      `json:"pattern"`
	Matches   []GrepMatch `json:"matches"`
	Truncated bool        `json:"truncated"`
}

func (t *GrepTool) Name() string        { return "grep" }
func (t *GrepTool) Description() string { return grepDescription }

func (t *GrepTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"pattern": {
				"type": "string",
				"description": "The regex pattern to search for in file contents"
			},
			"include": {
				"type": "string",
				"description": "Glob pattern restricting which files are searched (e.g. \"**/*.md\")"
			}
		},
		"required": ["pattern"]
	}`)
}

func (t *GrepTool) Execute(ctx context.Context, deps *Deps, workspaceID, userID string, inv *InvocationContext, args json.RawMessage) (*Response, error) {
	var params GrepInput
	if err := decodeArgs(args, &params); err != nil {
		return nil, err
	}
	if params.Pattern == "" {
		return nil, apperr.New(apperr.KindValidation, "pattern is required")
	}

	re, err := regexp.Compile(params.Pattern)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, fmt.Sprintf("invalid regex %q", params.Pattern), err)
	}

	include := params.Include
	if include != "" && !strings.HasPrefix(include, "/") && !strings.HasPrefix(include, "*") {
		include = "/" + include
	}

	result := GrepResult{Pattern: params.Pattern}
	walkErr := deps.Workspace.Walk(ctx, workspaceID, func(e workspace.Entry) error {
		if result.Truncated {
			return nil
		}
		if include != "" {
			matched, _ := doublestar.Match(include, e.Path)
			if !matched {
				return nil
			}
		}

		content, _, err := deps.Workspace.Read(ctx, workspaceID, e.Path)
		if err != nil {
			return nil // raced with a delete; skip
		}
		for i, line := range strings.Split(string(content), "\n") {
			if !re.MatchString(line) {
				continue
			}
			if len(result.Matches) >= grepMaxMatches {
				result.Truncated = true
				return nil
			}
			result.Matches = append(result.Matches, GrepMatch{
				Path: e.Path,
				Line: i + 1,
				Text: line,
			})
		}
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}

	return ok(result), nil
}
