// Package tool provides the sandboxed tool framework for agent
// filesystem operations against the workspace store.
package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/quillworks/quill/internal/apperr"
	"github.com/quillworks/quill/internal/storage"
	"github.com/quillworks/quill/internal/workspace"
)

// Plan-mode restrictions.
const (
	// PlanDir is the directory mutating tools may touch in plan mode.
	PlanDir = "/plans"
	// PlanExt marks files writable in plan mode regardless of location.
	PlanExt = ".plan"
)

// InvocationContext carries per-request execution policy to every tool
// call. It is derived from the session's current mode and not persisted.
type InvocationContext struct {
	SessionID      string
	PlanMode       bool
	ActivePlanPath string
}

// Deps bundles the collaborators a tool may touch.
type Deps struct {
	Workspace *workspace.Store
	Records   *storage.Store
}

// Response is the generic envelope every tool execution returns.
// Storage errors never escape raw; they are folded into Error.
type Response struct {
	Success bool   `json:"success"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Tool is the contract any dispatchable tool must implement.
type Tool interface {
	// Name returns the tool identifier the agent calls it by.
	Name() string

	// Description returns the usage contract shown to the agent.
	Description() string

	// Parameters returns the JSON Schema for tool arguments.
	Parameters() json.RawMessage

	// Execute runs the tool. Implementations return domain errors with
	// apperr kinds; the registry folds them into a Response envelope.
	Execute(ctx context.Context, deps *Deps, workspaceID, userID string, inv *InvocationContext, args json.RawMessage) (*Response, error)
}

// normalizePathArg validates and canonicalizes a path argument before
// it reaches storage.
func normalizePathArg(p string) (string, error) {
	return workspace.NormalizePath(p)
}

// guardMutation rejects mutating operations outside the plan surface
// when plan mode is active. Reads are never guarded.
func guardMutation(inv *InvocationContext, target string) error {
	if inv == nil || !inv.PlanMode {
		return nil
	}
	if strings.HasSuffix(target, PlanExt) {
		return nil
	}
	planDir := PlanDir
	if inv.ActivePlanPath != "" {
		planDir = path.Dir(inv.ActivePlanPath)
	}
	if target == planDir || strings.HasPrefix(target, planDir+"/") {
		return nil
	}
	return apperr.Newf(apperr.KindValidation,
		"plan mode: mutation of %s is not allowed outside %s", target, planDir)
}

// ok wraps a typed result in a success envelope.
func ok(result any) *Response {
	return &Response{Success: true, Result: result}
}

// decodeArgs unmarshals tool arguments, mapping failures to validation
// errors.
func decodeArgs(args json.RawMessage, v any) error {
	if err := json.Unmarshal(args, v); err != nil {
		return apperr.Wrap(apperr.KindValidation, "invalid tool arguments", err)
	}
	return nil
}

// requirePath normalizes a required path argument.
func requirePath(name, value string) (string, error) {
	if value == "" {
		return "", apperr.Newf(apperr.KindValidation, "%s is required", name)
	}
	p, err := normalizePathArg(value)
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return p, nil
}
