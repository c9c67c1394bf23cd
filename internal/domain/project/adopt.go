package project

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// Rekeyer re-keys every project-scoped catalog row (agents, messages,
// file_reservations, agent_links, product links) from one project id to
// another. Defined here rather than importing the agent/message/
// reservation repositories directly, since Adopt only needs the narrow
// re-keying capability, not full read/write access to those tables.
type Rekeyer interface {
	ConflictingAgentNames(ctx context.Context, fromProjectID, toProjectID string) ([]string, error)
	RekeyProject(ctx context.Context, fromProjectID, toProjectID string) error
}

// ArchiveMerger moves a source project's archive files into a target
// project's archive, recording the merge as an alias, and returns the
// relative paths it moved.
type ArchiveMerger interface {
	Adopt(ctx context.Context, srcSlug, dstSlug string) ([]string, error)
}

// AdoptResult reports what Adopt did (or would do, in dry-run mode).
type AdoptResult struct {
	Source     Project  `json:"source"`
	Target     Project  `json:"target"`
	Plan       []string `json:"plan"`
	Applied    bool     `json:"applied"`
	MovedFiles []string `json:"moved_files,omitempty"`
}

// Adopt implements adopt_project: consolidating a legacy per-worktree
// project into a canonical one. Refuses unless source and target resolve
// to the same git repository, and defaults to dry-run — callers must pass
// apply=true to actually move archive files and re-key catalog rows.
func (s *Service) Adopt(ctx context.Context, sourceKey, targetKey string, apply bool) (*AdoptResult, error) {
	src, err := s.GetBySlug(ctx, sourceKey)
	if err != nil {
		return nil, fmt.Errorf("resolving source project: %w", err)
	}
	dst, err := s.GetBySlug(ctx, targetKey)
	if err != nil {
		return nil, fmt.Errorf("resolving target project: %w", err)
	}

	if src.ID == dst.ID {
		return &AdoptResult{
			Source: *src, Target: *dst,
			Plan: []string{"source and target refer to the same project; nothing to do"},
		}, nil
	}

	sameRepo := sameGitRepository(src.HumanKey, dst.HumanKey)
	plan := []string{
		fmt.Sprintf("source: id=%s slug=%s key=%s", src.ID, src.Slug, src.HumanKey),
		fmt.Sprintf("target: id=%s slug=%s key=%s", dst.ID, dst.Slug, dst.HumanKey),
		fmt.Sprintf("same repo (git-common-dir): %t", sameRepo),
	}
	if !sameRepo {
		return nil, fmt.Errorf("%w: %s and %s do not appear to belong to the same repository", ErrNotSameRepository, src.Slug, dst.Slug)
	}

	plan = append(plan,
		fmt.Sprintf("move archive files: projects/%s -> projects/%s", src.Slug, dst.Slug),
		"re-key catalog rows: source project_id -> target project_id (agents, messages, file_reservations, agent_links, product links)",
		fmt.Sprintf("record alias: former_slugs += %q under target archive", src.Slug),
	)

	result := &AdoptResult{Source: *src, Target: *dst, Plan: plan}
	if !apply {
		return result, nil
	}

	if s.rekey != nil {
		conflicts, err := s.rekey.ConflictingAgentNames(ctx, src.ID, dst.ID)
		if err != nil {
			return nil, fmt.Errorf("checking agent name conflicts: %w", err)
		}
		if len(conflicts) > 0 {
			return nil, fmt.Errorf("%w: %s", ErrAgentNameConflict, strings.Join(conflicts, ", "))
		}
	}

	if s.archiveMerger != nil {
		moved, err := s.archiveMerger.Adopt(ctx, src.Slug, dst.Slug)
		if err != nil {
			return nil, fmt.Errorf("moving archive files: %w", err)
		}
		result.MovedFiles = moved
	}

	if s.rekey != nil {
		if err := s.rekey.RekeyProject(ctx, src.ID, dst.ID); err != nil {
			return nil, fmt.Errorf("re-keying catalog rows: %w", err)
		}
	}

	result.Applied = true
	return result, nil
}

// sameGitRepository reports whether two paths share a git-common-dir —
// the heuristic the original adoption flow uses to refuse merging
// projects that don't actually belong to the same repository (e.g. a
// worktree and its main checkout do share one; two unrelated clones
// don't). Either key not being a real git working copy means "no" rather
// than erroring, since Adopt must fail closed.
func sameGitRepository(srcPath, dstPath string) bool {
	srcDir := gitCommonDir(srcPath)
	dstDir := gitCommonDir(dstPath)
	if srcDir == "" || dstDir == "" {
		return false
	}
	return srcDir == dstDir
}

func gitCommonDir(path string) string {
	if !filepath.IsAbs(path) {
		return ""
	}
	out, err := exec.Command("git", "-C", path, "rev-parse", "--git-common-dir").Output()
	if err != nil {
		return ""
	}
	dir := strings.TrimSpace(string(out))
	if dir == "" {
		return ""
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(path, dir)
	}
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return filepath.Clean(dir)
	}
	return resolved
}
