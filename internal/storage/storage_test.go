package storage

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestPutGet(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	want := record{Name: "alpha", Count: 3}
	require.NoError(t, s.Put(ctx, []string{"session", "s1"}, want))

	var got record
	require.NoError(t, s.Get(ctx, []string{"session", "s1"}, &got))
	assert.Equal(t, want, got)
}

func TestGetMissing(t *testing.T) {
	s := New(t.TempDir())

	var got record
	err := s.Get(context.Background(), []string{"session", "nope"}, &got)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteIdempotent(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, []string{"session", "s1"}, record{}))
	require.NoError(t, s.Delete(ctx, []string{"session", "s1"}))
	require.NoError(t, s.Delete(ctx, []string{"session", "s1"}))
	assert.False(t, s.Exists(ctx, []string{"session", "s1"}))
}

func TestList(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, []string{"session", "a"}, record{}))
	require.NoError(t, s.Put(ctx, []string{"session", "b"}, record{}))

	keys, err := s.List(ctx, []string{"session"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, keys)

	empty, err := s.List(ctx, []string{"missing"})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestScan(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, []string{"session", "a"}, record{Name: "a"}))
	require.NoError(t, s.Put(ctx, []string{"session", "b"}, record{Name: "b"}))

	seen := map[string]string{}
	err := s.Scan(ctx, []string{"session"}, func(key string, data json.RawMessage) error {
		var r record
		if err := json.Unmarshal(data, &r); err != nil {
			return err
		}
		seen[key] = r.Name
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "a", "b": "b"}, seen)
}

func TestPutOverwrites(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, []string{"r"}, record{Count: 1}))
	require.NoError(t, s.Put(ctx, []string{"r"}, record{Count: 2}))

	var got record
	require.NoError(t, s.Get(ctx, []string{"r"}, &got))
	assert.Equal(t, 2, got.Count)
}
