package identity

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// RecentCommit is one entry in a repository's recent commit log, as
// surfaced by whois's include_recent_commits option so an agent can see
// what landed in the codebase recently.
type RecentCommit struct {
	SHA        string    `json:"sha"`
	Summary    string    `json:"summary"`
	AuthorName string    `json:"author_name"`
	CommitTS   time.Time `json:"commit_ts"`
}

// CommitHistory looks up recent commits for a project's working copy.
type CommitHistory interface {
	RecentCommits(ctx context.Context, repoPath string, limit int) ([]RecentCommit, error)
}

// GitCommitHistory implements CommitHistory against a project's own git
// working copy (its human_key, when that resolves to a real checkout)
// using go-git rather than shelling out.
type GitCommitHistory struct{}

func NewGitCommitHistory() *GitCommitHistory {
	return &GitCommitHistory{}
}

func (GitCommitHistory) RecentCommits(ctx context.Context, repoPath string, limit int) ([]RecentCommit, error) {
	if repoPath == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}

	repo, err := git.PlainOpenWithOptions(repoPath, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, err
	}
	head, err := repo.Head()
	if err != nil {
		return nil, err
	}
	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var commits []RecentCommit
	for len(commits) < limit {
		c, err := iter.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		commits = append(commits, RecentCommit{
			SHA:        c.Hash.String(),
			Summary:    commitSummary(c),
			AuthorName: c.Author.Name,
			CommitTS:   c.Author.When,
		})
	}
	return commits, nil
}

func commitSummary(c *object.Commit) string {
	summary, _, _ := strings.Cut(c.Message, "\n")
	return strings.TrimSpace(summary)
}
