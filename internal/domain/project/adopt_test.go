package project_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/agentcoord/coordbus/internal/domain/project"
	"github.com/stretchr/testify/require"
)

type fakeRekeyer struct {
	conflicts  []string
	rekeyCalls int
	rekeyFrom  string
	rekeyTo    string
}

func (f *fakeRekeyer) ConflictingAgentNames(ctx context.Context, fromProjectID, toProjectID string) ([]string, error) {
	return f.conflicts, nil
}

func (f *fakeRekeyer) RekeyProject(ctx context.Context, fromProjectID, toProjectID string) error {
	f.rekeyCalls++
	f.rekeyFrom, f.rekeyTo = fromProjectID, toProjectID
	return nil
}

type fakeArchiveMerger struct {
	moved     []string
	mergeCall int
}

func (f *fakeArchiveMerger) Adopt(ctx context.Context, srcSlug, dstSlug string) ([]string, error) {
	f.mergeCall++
	return f.moved, nil
}

// gitRepoDirs returns two existing subdirectories of a freshly
// initialized git repository, so their git-common-dir is identical.
func gitRepoDirs(t *testing.T) (string, string) {
	t.Helper()
	root := t.TempDir()
	if err := exec.Command("git", "-C", root, "init", "-q").Run(); err != nil {
		t.Skipf("git unavailable: %v", err)
	}
	legacy := filepath.Join(root, "legacy")
	canonical := filepath.Join(root, "canonical")
	require.NoError(t, os.MkdirAll(legacy, 0o755))
	require.NoError(t, os.MkdirAll(canonical, 0o755))
	return legacy, canonical
}

func TestAdoptSameProjectIsNoop(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	svc := project.NewService(repo, nil, nil, nil)

	p, err := svc.Ensure(ctx, "/backend")
	require.NoError(t, err)

	result, err := svc.Adopt(ctx, p.Slug, p.Slug, true)
	require.NoError(t, err)
	require.False(t, result.Applied)
	require.Equal(t, p.ID, result.Source.ID)
	require.Equal(t, p.ID, result.Target.ID)
}

func TestAdoptRefusesDifferentRepositories(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	rekey := &fakeRekeyer{}
	merger := &fakeArchiveMerger{}
	svc := project.NewService(repo, rekey, merger, nil)

	src, err := svc.Ensure(ctx, t.TempDir())
	require.NoError(t, err)
	dst, err := svc.Ensure(ctx, t.TempDir())
	require.NoError(t, err)

	_, err = svc.Adopt(ctx, src.Slug, dst.Slug, true)
	require.ErrorIs(t, err, project.ErrNotSameRepository)
	require.Zero(t, rekey.rekeyCalls)
	require.Zero(t, merger.mergeCall)
}

func TestAdoptDryRunLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	rekey := &fakeRekeyer{}
	merger := &fakeArchiveMerger{}
	svc := project.NewService(repo, rekey, merger, nil)

	srcDir, dstDir := gitRepoDirs(t)
	src, err := svc.Ensure(ctx, srcDir)
	require.NoError(t, err)
	dst, err := svc.Ensure(ctx, dstDir)
	require.NoError(t, err)

	result, err := svc.Adopt(ctx, src.Slug, dst.Slug, false)
	require.NoError(t, err)
	require.False(t, result.Applied)
	require.NotEmpty(t, result.Plan)
	require.Zero(t, rekey.rekeyCalls)
	require.Zero(t, merger.mergeCall)
}

func TestAdoptAppliesRekeyAndArchiveMerge(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	rekey := &fakeRekeyer{}
	merger := &fakeArchiveMerger{moved: []string{"notes/a.md"}}
	svc := project.NewService(repo, rekey, merger, nil)

	srcDir, dstDir := gitRepoDirs(t)
	src, err := svc.Ensure(ctx, srcDir)
	require.NoError(t, err)
	dst, err := svc.Ensure(ctx, dstDir)
	require.NoError(t, err)

	result, err := svc.Adopt(ctx, src.Slug, dst.Slug, true)
	require.NoError(t, err)
	require.True(t, result.Applied)
	require.Equal(t, []string{"notes/a.md"}, result.MovedFiles)
	require.Equal(t, 1, merger.mergeCall)
	require.Equal(t, 1, rekey.rekeyCalls)
	require.Equal(t, src.ID, rekey.rekeyFrom)
	require.Equal(t, dst.ID, rekey.rekeyTo)
}

func TestAdoptRefusesOnAgentNameConflict(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	rekey := &fakeRekeyer{conflicts: []string{"alice"}}
	merger := &fakeArchiveMerger{}
	svc := project.NewService(repo, rekey, merger, nil)

	srcDir, dstDir := gitRepoDirs(t)
	src, err := svc.Ensure(ctx, srcDir)
	require.NoError(t, err)
	dst, err := svc.Ensure(ctx, dstDir)
	require.NoError(t, err)

	_, err = svc.Adopt(ctx, src.Slug, dst.Slug, true)
	require.ErrorIs(t, err, project.ErrAgentNameConflict)
	require.Zero(t, merger.mergeCall)
}
