package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndRecent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.Record(ctx, Entry{
		RequestID: "req-123",
		Query:     "what is the weather in paris",
		Answer:    "Sunny, 24 degrees",
		Provider:  "weather",
		Operation: "weather_get_forecast",
		Source:    "provider",
		Attempts:  1,
		LatencyMS: 820,
	})
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.NotEmpty(t, first.ID)
	assert.False(t, first.CreatedAt.IsZero())

	time.Sleep(2 * time.Millisecond)
	_, err = s.Record(ctx, Entry{
		Query:    "tell me a joke",
		Answer:   "A very funny joke.",
		Source:   "fallback",
		Attempts: 0,
	})
	require.NoError(t, err)

	entries, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Newest first.
	assert.Equal(t, "tell me a joke", entries[0].Query)
	assert.Equal(t, "what is the weather in paris", entries[1].Query)
	assert.Equal(t, "req-123", entries[1].RequestID)
	assert.Equal(t, "weather", entries[1].Provider)
	assert.Equal(t, 1, entries[1].Attempts)
	assert.Equal(t, int64(820), entries[1].LatencyMS)
}

func TestRecentRespectsLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := s.Record(ctx, Entry{Query: "q", Answer: "a", Source: "fallback"})
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	entries, err := s.Recent(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	// Out-of-range limits fall back to the default instead of failing.
	entries, err = s.Recent(ctx, -1)
	require.NoError(t, err)
	assert.Len(t, entries, 5)
}

func TestRecentByProvider(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Record(ctx, Entry{Query: "weather?", Answer: "sunny", Provider: "weather", Source: "provider"})
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = s.Record(ctx, Entry{Query: "news?", Answer: "markets rally", Provider: "news", Source: "provider"})
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = s.Record(ctx, Entry{Query: "forecast?", Answer: "rainy", Provider: "weather", Source: "provider"})
	require.NoError(t, err)

	entries, err := s.RecentByProvider(ctx, "weather", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "forecast?", entries[0].Query)
	assert.Equal(t, "weather?", entries[1].Query)
}

func TestPurgeOlderThan(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Record(ctx, Entry{Query: "old", Answer: "a", Source: "fallback"})
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)

	// A zero age purges everything recorded so far.
	purged, err := s.PurgeOlderThan(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	entries, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)

	// A generous retention keeps fresh entries.
	_, err = s.Record(ctx, Entry{Query: "new", Answer: "b", Source: "fallback"})
	require.NoError(t, err)
	purged, err = s.PurgeOlderThan(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, purged)
}

func TestNilStoreIsSafe(t *testing.T) {
	var s *Store
	ctx := context.Background()

	entry, err := s.Record(ctx, Entry{Query: "q"})
	require.NoError(t, err)
	assert.Nil(t, entry)

	entries, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Nil(t, entries)

	require.NoError(t, s.Ping(ctx))
	require.NoError(t, s.Close())
}
