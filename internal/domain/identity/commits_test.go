package identity_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/agentcoord/coordbus/internal/domain/identity"
	"github.com/stretchr/testify/require"
)

func initGitRepoWithCommits(t *testing.T, commitMessages ...string) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
		)
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}
	run("init", "-q")
	for _, msg := range commitMessages {
		name := filepath.Join(dir, "file.txt")
		require.NoError(t, os.WriteFile(name, []byte(msg), 0o644))
		run("add", ".")
		run("commit", "-q", "-m", msg)
	}
	return dir
}

func TestGitCommitHistoryReturnsNewestFirst(t *testing.T) {
	dir := initGitRepoWithCommits(t, "first", "second", "third")
	history := identity.NewGitCommitHistory()

	commits, err := history.RecentCommits(context.Background(), dir, 2)
	if err != nil {
		t.Skipf("git unavailable: %v", err)
	}
	require.Len(t, commits, 2)
	require.Equal(t, "third", commits[0].Summary)
	require.Equal(t, "second", commits[1].Summary)
}

func TestGitCommitHistoryNonRepoErrors(t *testing.T) {
	history := identity.NewGitCommitHistory()
	_, err := history.RecentCommits(context.Background(), t.TempDir(), 5)
	require.Error(t, err)
}

type fakeCommitHistory struct {
	commits []identity.RecentCommit
	err     error
}

func (f *fakeCommitHistory) RecentCommits(ctx context.Context, repoPath string, limit int) ([]identity.RecentCommit, error) {
	return f.commits, f.err
}

func TestServiceRecentCommitsIsBestEffort(t *testing.T) {
	ctx := context.Background()

	withNoPort := identity.NewService(newFakeAgentRepo(), newFakeWindowRepo(), nil, nil)
	commits, err := withNoPort.RecentCommits(ctx, "/anything", 5)
	require.NoError(t, err)
	require.Empty(t, commits)

	withFailingPort := identity.NewService(newFakeAgentRepo(), newFakeWindowRepo(), &fakeCommitHistory{err: context.DeadlineExceeded}, nil)
	commits, err = withFailingPort.RecentCommits(ctx, "/anything", 5)
	require.NoError(t, err)
	require.Empty(t, commits)

	withWorkingPort := identity.NewService(newFakeAgentRepo(), newFakeWindowRepo(), &fakeCommitHistory{commits: []identity.RecentCommit{{SHA: "abc", Summary: "fix"}}}, nil)
	commits, err = withWorkingPort.RecentCommits(ctx, "/anything", 5)
	require.NoError(t, err)
	require.Equal(t, "abc", commits[0].SHA)
}
