package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// projectAliases is the shape of a target project's aliases.json: the set
// of slugs that have been adopted into it over time.
type projectAliases struct {
	FormerSlugs []string `json:"former_slugs"`
}

// Adopt moves every tracked file out of srcSlug's archive and into
// dstSlug's, skipping any path that already exists at the destination,
// then records srcSlug under dstSlug's aliases.json and commits once.
// Both archives are locked for the duration, ordered by slug to avoid
// deadlocking against a concurrent adoption running in the other
// direction.
func (a *Archive) Adopt(ctx context.Context, srcSlug, dstSlug string) ([]string, error) {
	first, second := srcSlug, dstSlug
	if second < first {
		first, second = second, first
	}
	releaseFirst, err := a.locks.Acquire(ctx, first)
	if err != nil {
		return nil, fmt.Errorf("acquiring archive lock on %s: %w", first, err)
	}
	defer releaseFirst()
	releaseSecond, err := a.locks.Acquire(ctx, second)
	if err != nil {
		return nil, fmt.Errorf("acquiring archive lock on %s: %w", second, err)
	}
	defer releaseSecond()

	srcRepo, err := a.repos.Get(srcSlug)
	if err != nil {
		return nil, fmt.Errorf("opening source archive: %w", err)
	}
	dstRepo, err := a.repos.Get(dstSlug)
	if err != nil {
		return nil, fmt.Errorf("opening target archive: %w", err)
	}
	srcWT, err := srcRepo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("opening source worktree: %w", err)
	}
	dstWT, err := dstRepo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("opening target worktree: %w", err)
	}

	relPaths, err := walkArchiveFiles(srcWT.Filesystem, "")
	if err != nil {
		return nil, fmt.Errorf("walking source archive: %w", err)
	}

	var moved []string
	for _, rel := range relPaths {
		if _, err := dstWT.Filesystem.Stat(rel); err == nil {
			continue // already present at the destination; leave it where it is
		}
		content, err := readArchiveFile(srcWT.Filesystem, rel)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", rel, err)
		}
		if err := writeFile(dstWT, rel, content); err != nil {
			return nil, fmt.Errorf("staging %s: %w", rel, err)
		}
		if _, err := dstWT.Add(rel); err != nil {
			return nil, fmt.Errorf("adding %s: %w", rel, err)
		}
		moved = append(moved, rel)
	}

	aliasChanged, err := recordAlias(dstWT, srcSlug)
	if err != nil {
		return nil, fmt.Errorf("recording alias: %w", err)
	}
	if aliasChanged {
		if _, err := dstWT.Add(projectAliasesPath); err != nil {
			return nil, fmt.Errorf("adding aliases: %w", err)
		}
		moved = append(moved, projectAliasesPath)
	}

	if len(moved) == 0 {
		return nil, nil
	}

	_, err = dstWT.Commit(fmt.Sprintf("adopt: move %s into %s", srcSlug, dstSlug), &git.CommitOptions{
		Author: &object.Signature{Name: commitAuthorName, Email: commitAuthorEmail, When: time.Now()},
	})
	if err != nil {
		return nil, fmt.Errorf("committing adoption: %w", err)
	}
	return moved, nil
}

// walkArchiveFiles returns every regular file under dir, skipping the git
// metadata directory and lock/owner sidecars that belong to the archive
// itself rather than its journaled content.
func walkArchiveFiles(fs billy.Filesystem, dir string) ([]string, error) {
	entries, err := fs.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, entry := range entries {
		name := entry.Name()
		if dir == "" && (name == ".git" || name == lockFileName || name == ownerFileName) {
			continue
		}
		rel := name
		if dir != "" {
			rel = fs.Join(dir, name)
		}
		if entry.IsDir() {
			nested, err := walkArchiveFiles(fs, rel)
			if err != nil {
				return nil, err
			}
			out = append(out, nested...)
			continue
		}
		out = append(out, rel)
	}
	sort.Strings(out)
	return out, nil
}

func readArchiveFile(fs billy.Filesystem, relPath string) ([]byte, error) {
	f, err := fs.Open(relPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// recordAlias adds srcSlug to the target worktree's aliases.json,
// creating it if absent. Returns false if srcSlug was already recorded,
// so Adopt doesn't stage a no-op commit.
func recordAlias(wt *git.Worktree, srcSlug string) (bool, error) {
	var aliases projectAliases
	if existing, err := wt.Filesystem.Open(projectAliasesPath); err == nil {
		data, readErr := io.ReadAll(existing)
		existing.Close()
		if readErr != nil {
			return false, readErr
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &aliases); err != nil {
				return false, fmt.Errorf("parsing aliases.json: %w", err)
			}
		}
	}

	for _, slug := range aliases.FormerSlugs {
		if slug == srcSlug {
			return false, nil
		}
	}
	aliases.FormerSlugs = append(aliases.FormerSlugs, srcSlug)
	sort.Strings(aliases.FormerSlugs)

	data, err := json.MarshalIndent(aliases, "", "  ")
	if err != nil {
		return false, fmt.Errorf("marshaling aliases.json: %w", err)
	}
	if err := writeFile(wt, projectAliasesPath, data); err != nil {
		return false, err
	}
	return true, nil
}
