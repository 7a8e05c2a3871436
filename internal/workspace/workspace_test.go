package workspace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillworks/quill/internal/apperr"
)

const ws = "ws1"

func newStore(t *testing.T) *Store {
	return NewStore(t.TempDir())
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"/a/b.md", "/a/b.md", false},
		{"a/b.md", "/a/b.md", false},
		{"/a//b.md", "/a/b.md", false},
		{"/a/./b.md", "/a/b.md", false},
		{"/", "/", false},
		{"", "", true},
		{"/a/../b.md", "", true},
		{"../etc/passwd", "", true},
		{"/notes/..", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := NormalizePath(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	version, created, err := s.WriteVersion(ctx, ws, "/notes/a.md", []byte("hello"))
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, version.ID)
	assert.Equal(t, 5, version.Size)

	content, got, err := s.Read(ctx, ws, "/notes/a.md")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(content))
	assert.Equal(t, version.ID, got.ID)
}

func TestWriteVersionDedup(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	first, created, err := s.WriteVersion(ctx, ws, "/a.md", []byte("same"))
	require.NoError(t, err)
	assert.True(t, created)

	// Identical content hash returns the existing version, no new row.
	second, created, err := s.WriteVersion(ctx, ws, "/a.md", []byte("same"))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	third, created, err := s.WriteVersion(ctx, ws, "/a.md", []byte("different"))
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, third.ID)
}

func TestReadMissing(t *testing.T) {
	s := newStore(t)

	_, _, err := s.Read(context.Background(), ws, "/missing.md")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestSoftDelete(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, _, err := s.WriteVersion(ctx, ws, "/a.md", []byte("x"))
	require.NoError(t, err)

	require.NoError(t, s.SoftDelete(ctx, ws, "/a.md"))

	_, _, err = s.Read(ctx, ws, "/a.md")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	// Deleting again reports not found.
	err = s.SoftDelete(ctx, ws, "/a.md")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestWriteAfterSoftDeleteRevives(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, _, err := s.WriteVersion(ctx, ws, "/a.md", []byte("x"))
	require.NoError(t, err)
	require.NoError(t, s.SoftDelete(ctx, ws, "/a.md"))

	// Same content as the deleted latest still creates a new version:
	// dedup only applies against a live latest.
	_, created, err := s.WriteVersion(ctx, ws, "/a.md", []byte("x"))
	require.NoError(t, err)
	assert.True(t, created)

	content, _, err := s.Read(ctx, ws, "/a.md")
	require.NoError(t, err)
	assert.Equal(t, "x", string(content))
}

func TestDeleteNonEmptyFolderConflicts(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, _, err := s.WriteVersion(ctx, ws, "/docs/a.md", []byte("x"))
	require.NoError(t, err)

	err = s.SoftDelete(ctx, ws, "/docs")
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	// Empty the folder; delete then succeeds.
	require.NoError(t, s.SoftDelete(ctx, ws, "/docs/a.md"))
	require.NoError(t, s.SoftDelete(ctx, ws, "/docs"))
}

func TestMkdirAndList(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Mkdir(ctx, ws, "/docs"))
	_, _, err := s.WriteVersion(ctx, ws, "/docs/a.md", []byte("a"))
	require.NoError(t, err)
	_, _, err = s.WriteVersion(ctx, ws, "/top.md", []byte("t"))
	require.NoError(t, err)

	entries, err := s.List(ctx, ws, "/")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "/docs", entries[0].Path)
	assert.True(t, entries[0].IsDir)
	assert.Equal(t, "/top.md", entries[1].Path)

	children, err := s.List(ctx, ws, "/docs")
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "/docs/a.md", children[0].Path)
}

func TestListSkipsDeleted(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, _, err := s.WriteVersion(ctx, ws, "/a.md", []byte("a"))
	require.NoError(t, err)
	_, _, err = s.WriteVersion(ctx, ws, "/b.md", []byte("b"))
	require.NoError(t, err)
	require.NoError(t, s.SoftDelete(ctx, ws, "/a.md"))

	entries, err := s.List(ctx, ws, "/")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "/b.md", entries[0].Path)
}

func TestMove(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, _, err := s.WriteVersion(ctx, ws, "/old.md", []byte("content"))
	require.NoError(t, err)

	_, err = s.Move(ctx, ws, "/old.md", "/new.md")
	require.NoError(t, err)

	_, _, err = s.Read(ctx, ws, "/old.md")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	content, _, err := s.Read(ctx, ws, "/new.md")
	require.NoError(t, err)
	assert.Equal(t, "content", string(content))
}

func TestMoveToExistingConflicts(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, _, err := s.WriteVersion(ctx, ws, "/a.md", []byte("a"))
	require.NoError(t, err)
	_, _, err = s.WriteVersion(ctx, ws, "/b.md", []byte("b"))
	require.NoError(t, err)

	_, err = s.Move(ctx, ws, "/a.md", "/b.md")
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestTouch(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	version, err := s.Touch(ctx, ws, "/empty.md")
	require.NoError(t, err)
	assert.Equal(t, 0, version.Size)

	// Touching an existing file does not create a new version.
	again, err := s.Touch(ctx, ws, "/empty.md")
	require.NoError(t, err)
	assert.Equal(t, version.ID, again.ID)
}

func TestWalk(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	for _, p := range []string{"/a.md", "/docs/b.md", "/docs/deep/c.md"} {
		_, _, err := s.WriteVersion(ctx, ws, p, []byte(p))
		require.NoError(t, err)
	}

	var seen []string
	require.NoError(t, s.Walk(ctx, ws, func(e Entry) error {
		seen = append(seen, e.Path)
		return nil
	}))
	assert.ElementsMatch(t, []string{"/a.md", "/docs/b.md", "/docs/deep/c.md"}, seen)
}

func TestWorkspaceIsolation(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, _, err := s.WriteVersion(ctx, "ws-a", "/f.md", []byte("a"))
	require.NoError(t, err)

	_, _, err = s.Read(ctx, "ws-b", "/f.md")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}
