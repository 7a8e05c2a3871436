package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillworks/quill/internal/storage"
	"github.com/quillworks/quill/internal/workspace"
)

const wsID = "ws1"

func newDeps(t *testing.T) *Deps {
	return &Deps{
		Workspace: workspace.NewStore(t.TempDir()),
		Records:   storage.New(t.TempDir()),
	}
}

func rawArgs(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func dispatch(t *testing.T, r *Registry, name string, inv *InvocationContext, args any) *Response {
	t.Helper()
	return r.Dispatch(context.Background(), name, wsID, "u1", inv, rawArgs(t, args))
}

func TestWriteThenRead(t *testing.T) {
	r := DefaultRegistry(newDeps(t))

	resp := dispatch(t, r, "write", nil, WriteInput{Path: "/notes/a.md", Content: "hello"})
	require.True(t, resp.Success, resp.Error)

	resp = dispatch(t, r, "read", nil, ReadInput{Path: "/notes/a.md"})
	require.True(t, resp.Success, resp.Error)

	result, isRead := resp.Result.(ReadResult)
	require.True(t, isRead)
	assert.Contains(t, result.Content, "hello")
	assert.NotEmpty(t, result.Version)
}

func TestParentDirectorySegmentRejectedEverywhere(t *testing.T) {
	r := DefaultRegistry(newDeps(t))

	// Every tool that accepts a path must reject traversal before
	// reaching storage.
	calls := []struct {
		tool string
		args any
	}{
		{"read", ReadInput{Path: "/a/../b.md"}},
		{"write", WriteInput{Path: "/a/../b.md", Content: "x"}},
		{"edit", EditInput{Path: "/a/../b.md", OldString: "a", NewString: "b"}},
		{"delete", DeleteInput{Path: "/a/../b.md"}},
		{"move", MoveInput{From: "/a/../b.md", To: "/c.md"}},
		{"move", MoveInput{From: "/c.md", To: "/a/../b.md"}},
		{"mkdir", MkdirInput{Path: "/a/../b"}},
		{"touch", TouchInput{Path: "/a/../b.md"}},
		{"list", ListInput{Path: "/a/../b"}},
	}

	for _, call := range calls {
		t.Run(fmt.Sprintf("%s %v", call.tool, call.args), func(t *testing.T) {
			resp := dispatch(t, r, call.tool, nil, call.args)
			assert.False(t, resp.Success)
			assert.Contains(t, resp.Error, "parent-directory")
		})
	}
}

func TestPlanModeBlocksWritesOutsidePlanDir(t *testing.T) {
	r := DefaultRegistry(newDeps(t))
	inv := &InvocationContext{SessionID: "s1", PlanMode: true}

	resp := dispatch(t, r, "write", inv, WriteInput{Path: "/notes/x.md", Content: "x"})
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "plan mode")

	resp = dispatch(t, r, "write", inv, WriteInput{Path: "/plans/a.plan", Content: "plan"})
	assert.True(t, resp.Success, resp.Error)

	// The plan extension is allowed anywhere.
	resp = dispatch(t, r, "write", inv, WriteInput{Path: "/notes/draft.plan", Content: "plan"})
	assert.True(t, resp.Success, resp.Error)
}

func TestPlanModeUsesActivePlanDirectory(t *testing.T) {
	r := DefaultRegistry(newDeps(t))
	inv := &InvocationContext{
		SessionID:      "s1",
		PlanMode:       true,
		ActivePlanPath: "/projects/alpha/main.plan",
	}

	resp := dispatch(t, r, "write", inv, WriteInput{Path: "/projects/alpha/notes.md", Content: "x"})
	assert.True(t, resp.Success, resp.Error)

	resp = dispatch(t, r, "write", inv, WriteInput{Path: "/projects/beta/notes.md", Content: "x"})
	assert.False(t, resp.Success)
}

func TestPlanModeReadsUnrestricted(t *testing.T) {
	deps := newDeps(t)
	r := DefaultRegistry(deps)

	resp := dispatch(t, r, "write", nil, WriteInput{Path: "/notes/a.md", Content: "secret"})
	require.True(t, resp.Success, resp.Error)

	inv := &InvocationContext{SessionID: "s1", PlanMode: true}
	resp = dispatch(t, r, "read", inv, ReadInput{Path: "/notes/a.md"})
	assert.True(t, resp.Success, resp.Error)

	resp = dispatch(t, r, "list", inv, ListInput{Path: "/notes"})
	assert.True(t, resp.Success, resp.Error)
}

func TestEditReplacesUniqueMatch(t *testing.T) {
	r := DefaultRegistry(newDeps(t))

	resp := dispatch(t, r, "write", nil, WriteInput{Path: "/a.md", Content: "alpha beta gamma"})
	require.True(t, resp.Success, resp.Error)

	resp = dispatch(t, r, "edit", nil, EditInput{Path: "/a.md", OldString: "beta", NewString: "delta"})
	require.True(t, resp.Success, resp.Error)

	resp = dispatch(t, r, "read", nil, ReadInput{Path: "/a.md"})
	require.True(t, resp.Success, resp.Error)
	assert.Contains(t, resp.Result.(ReadResult).Content, "alpha delta gamma")
}

func TestEditAmbiguousMatchFails(t *testing.T) {
	r := DefaultRegistry(newDeps(t))

	resp := dispatch(t, r, "write", nil, WriteInput{Path: "/a.md", Content: "x x"})
	require.True(t, resp.Success, resp.Error)

	resp = dispatch(t, r, "edit", nil, EditInput{Path: "/a.md", OldString: "x", NewString: "y"})
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "replaceAll")

	resp = dispatch(t, r, "edit", nil, EditInput{Path: "/a.md", OldString: "x", NewString: "y", ReplaceAll: true})
	assert.True(t, resp.Success, resp.Error)
}

func TestDeleteDistinguishesNotFoundAndConflict(t *testing.T) {
	r := DefaultRegistry(newDeps(t))

	resp := dispatch(t, r, "delete", nil, DeleteInput{Path: "/missing.md"})
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "not found")

	require.True(t, dispatch(t, r, "write", nil, WriteInput{Path: "/docs/a.md", Content: "x"}).Success)
	resp = dispatch(t, r, "delete", nil, DeleteInput{Path: "/docs"})
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "not empty")
}

func TestSearchGlob(t *testing.T) {
	r := DefaultRegistry(newDeps(t))

	for _, p := range []string{"/a.md", "/docs/b.md", "/docs/c.txt"} {
		require.True(t, dispatch(t, r, "write", nil, WriteInput{Path: p, Content: "x"}).Success)
	}

	resp := dispatch(t, r, "search", nil, SearchInput{Pattern: "**/*.md"})
	require.True(t, resp.Success, resp.Error)
	assert.ElementsMatch(t, []string{"/a.md", "/docs/b.md"}, resp.Result.(SearchResult).Paths)
}

func TestGrepContents(t *testing.T) {
	r := DefaultRegistry(newDeps(t))

	require.True(t, dispatch(t, r, "write", nil, WriteInput{Path: "/a.md", Content: "needle here\nnothing"}).Success)
	require.True(t, dispatch(t, r, "write", nil, WriteInput{Path: "/b.txt", Content: "needle too"}).Success)

	resp := dispatch(t, r, "grep", nil, GrepInput{Pattern: "needle", Include: "**/*.md"})
	require.True(t, resp.Success, resp.Error)

	result := resp.Result.(GrepResult)
	require.Len(t, result.Matches, 1)
	assert.Equal(t, "/a.md", result.Matches[0].Path)
	assert.Equal(t, 1, result.Matches[0].Line)
}

func TestUnknownToolRejected(t *testing.T) {
	r := DefaultRegistry(newDeps(t))

	resp := r.Dispatch(context.Background(), "bash", wsID, "u1", nil, json.RawMessage(`{}`))
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "unknown tool")
}

func TestMalformedArgumentsReported(t *testing.T) {
	r := DefaultRegistry(newDeps(t))

	resp := r.Dispatch(context.Background(), "write", wsID, "u1", nil, json.RawMessage(`{"path": 42}`))
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "invalid tool arguments")
}

func TestAskRecordsQuestions(t *testing.T) {
	deps := newDeps(t)
	r := DefaultRegistry(deps)
	inv := &InvocationContext{SessionID: "s1"}

	resp := dispatch(t, r, "ask", inv, AskInput{Questions: []string{"Which database?", "Which region?"}})
	require.True(t, resp.Success, resp.Error)

	result := resp.Result.(AskResult)
	assert.NotEmpty(t, result.QuestionID)
	assert.Len(t, result.Questions, 2)

	var stored AskResult
	require.NoError(t, deps.Records.Get(context.Background(), []string{"question", "s1", result.QuestionID}, &stored))
	assert.Equal(t, result.Questions, stored.Questions)
}
