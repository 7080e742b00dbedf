package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheRoundTrip(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.SetCache("catalog:featured", []string{"p1", "p2"}, time.Minute))

	var got []string
	require.True(t, s.GetCache("catalog:featured", &got))
	assert.Equal(t, []string{"p1", "p2"}, got)
}

func TestCacheExpiryEvictsOnRead(t *testing.T) {
	s := newTestStore(t)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	require.NoError(t, s.SetCache("k", "v", 30*time.Second))

	// Within TTL the entry is served.
	s.now = func() time.Time { return base.Add(30 * time.Second) }
	var v string
	assert.True(t, s.GetCache("k", &v))

	// Past TTL the entry is absent and evicted.
	s.now = func() time.Time { return base.Add(31 * time.Second) }
	assert.False(t, s.GetCache("k", &v))

	// The eviction is durable: even rewinding the clock, the row is gone.
	s.now = func() time.Time { return base }
	assert.False(t, s.GetCache("k", &v))
}

func TestCacheOverwriteResetsCapture(t *testing.T) {
	s := newTestStore(t)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	require.NoError(t, s.SetCache("k", "old", 10*time.Second))

	s.now = func() time.Time { return base.Add(8 * time.Second) }
	require.NoError(t, s.SetCache("k", "new", 10*time.Second))

	s.now = func() time.Time { return base.Add(15 * time.Second) }
	var v string
	require.True(t, s.GetCache("k", &v))
	assert.Equal(t, "new", v)
}

func TestPurgeExpiredCache(t *testing.T) {
	s := newTestStore(t)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	require.NoError(t, s.SetCache("fresh", 1, time.Hour))
	require.NoError(t, s.SetCache("stale-1", 2, time.Second))
	require.NoError(t, s.SetCache("stale-2", 3, time.Second))

	s.now = func() time.Time { return base.Add(time.Minute) }
	assert.Equal(t, 2, s.PurgeExpiredCache())

	var v int
	assert.True(t, s.GetCache("fresh", &v))
}
