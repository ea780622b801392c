package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type snapshot struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Set(ctx, "session:1", snapshot{ID: 1, Name: "W-12345678"}, time.Minute))

	var got snapshot
	ok, err := s.Get(ctx, "session:1", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, snapshot{ID: 1, Name: "W-12345678"}, got)
}

func TestMemoryStoreExpiry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStore()
	s.now = func() time.Time { return now }

	require.NoError(t, s.Set(ctx, "k", true, 300*time.Second))
	now = now.Add(299 * time.Second)
	var v bool
	ok, _ := s.Get(ctx, "k", &v)
	assert.True(t, ok)

	now = now.Add(2 * time.Second)
	ok, _ = s.Get(ctx, "k", &v)
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
}

func TestMemoryStoreOverwriteAndDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Set(ctx, "k", snapshot{ID: 1, Name: "a"}, 0))
	require.NoError(t, s.Set(ctx, "k", snapshot{ID: 1}, 0))

	var got snapshot
	ok, err := s.Get(ctx, "k", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, got.Name, "overwrite must replace, not merge")

	require.NoError(t, s.Delete(ctx, "k", "missing"))
	ok, _ = s.Get(ctx, "k", &got)
	assert.False(t, ok)
}

func TestLimiterDisabledAllowsEverything(t *testing.T) {
	t.Parallel()
	var l *Limiter
	ok, err := l.Allow(context.Background(), "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, ok)

	l = NewLimiter(nil, 0, time.Minute)
	ok, err = l.Allow(context.Background(), "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, ok)
}
