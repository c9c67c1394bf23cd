package matching_test

import (
	"testing"

	"github.com/agentcoord/coordbus/internal/matching"
	"github.com/stretchr/testify/require"
)

func TestMatchPathWildmatch(t *testing.T) {
	m := matching.NewMatcher(false)
	require.True(t, m.MatchPath("src/auth/*.py", "src/auth/login.py", false))
	require.False(t, m.MatchPath("src/auth/*.py", "src/billing/login.py", false))
	require.True(t, m.MatchPath("agents/GreenCastle/inbox/*/*/*.md", "agents/GreenCastle/inbox/2026/08/12-test.md", false))
}

func TestMatchPathDoubleStarCrossesDirectories(t *testing.T) {
	m := matching.NewMatcher(false)
	require.True(t, m.MatchPath("src/**/*.py", "src/a/b/c.py", false))
}

func TestPatternsOverlapIsSymmetric(t *testing.T) {
	m := matching.NewMatcher(false)
	require.True(t, m.PatternsOverlap("src/auth/*.py", "src/auth/login.py"))
	require.True(t, m.PatternsOverlap("src/auth/login.py", "src/auth/*.py"))
	require.False(t, m.PatternsOverlap("src/auth/*.py", "src/billing/login.py"))
}

func TestPatternsOverlapExactMatch(t *testing.T) {
	m := matching.NewMatcher(false)
	require.True(t, m.PatternsOverlap("src/app.py", "src/app.py"))
}

func TestMatchPathCaseInsensitive(t *testing.T) {
	m := matching.NewMatcher(true)
	require.True(t, m.MatchPath("SRC/App.py", "src/app.py", false))
}

func TestCompilationIsCached(t *testing.T) {
	m := matching.NewMatcher(false)
	// Exercised indirectly: repeated calls with the same pattern string
	// must not error or behave inconsistently across calls.
	for i := 0; i < 3; i++ {
		require.True(t, m.MatchPath("src/*.go", "src/main.go", false))
	}
}
