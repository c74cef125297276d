package dedupe_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/stat-radar/backend/internal/dedupe"
)

func TestCacheUnchangedRecord(t *testing.T) {
	cache := dedupe.NewCache(10, time.Minute)
	require.False(t, cache.Unchanged("place:country/USA", "v1"))
	cache.Remember("place:country/USA", "v1")
	require.True(t, cache.Unchanged("place:country/USA", "v1"))
}

func TestCacheChangedFingerprint(t *testing.T) {
	cache := dedupe.NewCache(10, time.Minute)
	cache.Remember("variable:Count_Person", "v1")
	require.False(t, cache.Unchanged("variable:Count_Person", "v2"))

	cache.Remember("variable:Count_Person", "v2")
	require.True(t, cache.Unchanged("variable:Count_Person", "v2"))
	require.Equal(t, 1, cache.Len())
}

func TestCacheTTLExpiry(t *testing.T) {
	cache := dedupe.NewCache(10, 20*time.Millisecond)
	cache.Remember("beta", "x")
	time.Sleep(25 * time.Millisecond)
	require.False(t, cache.Unchanged("beta", "x"))
}

func TestCacheCapacityEvictsOldest(t *testing.T) {
	cache := dedupe.NewCache(1, time.Minute)
	cache.Remember("first", "a")
	cache.Remember("second", "b")

	require.False(t, cache.Unchanged("first", "a"))
	require.True(t, cache.Unchanged("second", "b"))
}
