package archive

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRepoCacheGetInitializesAndReuses(t *testing.T) {
	rc := NewRepoCache(t.TempDir(), nil)

	repo1, err := rc.Get("p1")
	require.NoError(t, err)
	repo2, err := rc.Get("p1")
	require.NoError(t, err)
	require.Same(t, repo1, repo2, "second Get should reuse the cached handle")

	require.Equal(t, 1, rc.Stats().Open)
}

func TestRepoCacheEvictionMovesToPendingNotImmediateClose(t *testing.T) {
	rc := NewRepoCache(t.TempDir(), nil)

	for i := 0; i < defaultRepoCacheCapacity+1; i++ {
		_, err := rc.Get(string(rune('a' + i)))
		require.NoError(t, err)
	}

	stats := rc.Stats()
	require.LessOrEqual(t, stats.Open, defaultRepoCacheCapacity)
}

func TestRepoCacheClearDropsEverything(t *testing.T) {
	rc := NewRepoCache(t.TempDir(), nil)
	_, err := rc.Get("p1")
	require.NoError(t, err)

	rc.Clear()
	require.Equal(t, 0, rc.Stats().Open)
}

func TestRepoCacheEvictAgedTrimsToMax(t *testing.T) {
	rc := NewRepoCache(t.TempDir(), nil)
	for i := 0; i < 5; i++ {
		_, err := rc.Get(string(rune('a' + i)))
		require.NoError(t, err)
	}

	freed := rc.EvictAged(2)
	require.GreaterOrEqual(t, freed, 3)
	require.LessOrEqual(t, rc.Stats().Open, 2)
}
