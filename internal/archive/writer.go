// Package archive implements the per-project Git journal: every write is
// staged in memory, locked, committed as a single batch, and never
// rewrites history. It is the second half of the dual-write, committed
// only after the catalog insert succeeds.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/agentcoord/coordbus/internal/domain/messaging"
	"github.com/agentcoord/coordbus/internal/domain/reservation"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const commitAuthorName = "coordbus"
const commitAuthorEmail = "coordbus@localhost"

// Archive implements messaging.ArchiveWriter and reservation.ArchiveWriter
// against a per-project Git working tree.
type Archive struct {
	root   string
	repos  *RepoCache
	locks  *LockManager
	logger *slog.Logger
}

func New(root string, logger *slog.Logger) *Archive {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archive{
		root:   root,
		repos:  NewRepoCache(root, logger),
		locks:  NewLockManager(root, logger),
		logger: logger,
	}
}

// RepoCache exposes the underlying cache so the FD-health worker can
// evict aged handles under descriptor pressure.
func (a *Archive) RepoCache() *RepoCache { return a.repos }

// stagedFile is one file to write before a commit.
type stagedFile struct {
	path    string
	content []byte
}

func (a *Archive) commitBatch(ctx context.Context, slug, message string, files []stagedFile) error {
	release, err := a.locks.Acquire(ctx, slug)
	if err != nil {
		return fmt.Errorf("acquiring archive lock: %w", err)
	}
	defer release()

	repo, err := a.repos.Get(slug)
	if err != nil {
		return fmt.Errorf("opening archive repo: %w", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("getting worktree: %w", err)
	}

	for _, f := range files {
		if err := writeFile(wt, f.path, f.content); err != nil {
			return fmt.Errorf("staging %s: %w", f.path, err)
		}
		if _, err := wt.Add(f.path); err != nil {
			return fmt.Errorf("adding %s: %w", f.path, err)
		}
	}
	// A fresh archive's .gitignore (written by RepoCache.open) starts
	// untracked; fold it into whatever the first real commit is rather
	// than leaving it to pollute status forever.
	if _, err := wt.Add(".gitignore"); err != nil {
		return fmt.Errorf("adding .gitignore: %w", err)
	}

	_, err = wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{Name: commitAuthorName, Email: commitAuthorEmail, When: time.Now()},
	})
	if err != nil {
		return fmt.Errorf("committing: %w", err)
	}
	return nil
}

func writeFile(wt *git.Worktree, relPath string, content []byte) error {
	if err := wt.Filesystem.MkdirAll(dirOf(relPath), 0o755); err != nil {
		return err
	}
	f, err := wt.Filesystem.OpenFile(relPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(content)
	return err
}

func dirOf(relPath string) string {
	idx := strings.LastIndex(relPath, "/")
	if idx < 0 {
		return "."
	}
	return relPath[:idx]
}

// WriteMessage journals a send: the canonical message copy, one inbox
// copy per recipient, in a single commit.
func (a *Archive) WriteMessage(ctx context.Context, input messaging.ArchiveMessageInput) error {
	return a.writeMessageBatch(ctx, input, false)
}

// WriteSystemNotification journals a system-originated message the same
// way as a regular send, tagged as such in the commit subject.
func (a *Archive) WriteSystemNotification(ctx context.Context, input messaging.ArchiveMessageInput) error {
	return a.writeMessageBatch(ctx, input, true)
}

func (a *Archive) writeMessageBatch(ctx context.Context, input messaging.ArchiveMessageInput, system bool) error {
	body := renderMessageMarkdown(input, system)
	canonical := canonicalMessagePath(input.Message.CreatedTS, input.Message.ID, input.Message.Subject)

	files := []stagedFile{{path: canonical, content: body}}
	for _, rec := range input.Recipients {
		name, ok := input.RecipientNames[rec.AgentID]
		if !ok || name == "" {
			continue
		}
		files = append(files, stagedFile{
			path:    agentInboxPath(name, input.Message.CreatedTS, input.Message.ID, input.Message.Subject),
			content: body,
		})
	}

	kind := "message"
	if system {
		kind = "notification"
	}
	commitMsg := fmt.Sprintf("%s #%d: %s", kind, input.Message.ID, input.Message.Subject)
	return a.commitBatch(ctx, input.ProjectSlug, commitMsg, files)
}

func renderMessageMarkdown(input messaging.ArchiveMessageInput, system bool) []byte {
	var b strings.Builder
	b.WriteString("---\n")
	fmt.Fprintf(&b, "id: %d\n", input.Message.ID)
	fmt.Fprintf(&b, "thread_id: %s\n", input.Message.EffectiveThreadID())
	fmt.Fprintf(&b, "from: %s\n", input.SenderName)
	fmt.Fprintf(&b, "subject: %s\n", input.Message.Subject)
	fmt.Fprintf(&b, "importance: %s\n", input.Message.Importance)
	fmt.Fprintf(&b, "ack_required: %t\n", input.Message.AckRequired)
	fmt.Fprintf(&b, "created_ts: %s\n", input.Message.CreatedTS.Format(time.RFC3339))
	if system {
		b.WriteString("system: true\n")
	}
	b.WriteString("---\n\n")
	b.WriteString(input.Message.BodyMD)
	b.WriteString("\n")
	return []byte(b.String())
}

// WriteReservations journals a batch of grants/releases/renewals as one
// sidecar-per-reservation, single commit.
func (a *Archive) WriteReservations(ctx context.Context, projectSlug string, reservations []reservation.FileReservation, verb string) error {
	if len(reservations) == 0 {
		return nil
	}

	files := make([]stagedFile, 0, len(reservations))
	ids := make([]string, 0, len(reservations))
	for _, res := range reservations {
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling reservation sidecar: %w", err)
		}
		files = append(files, stagedFile{path: reservationSidecarPath(res.ID), content: data})
		ids = append(ids, res.ID)
	}

	commitMsg := fmt.Sprintf("reservation %s #%s: %s", verb, strings.Join(ids, ","), reservations[0].PathPattern)
	return a.commitBatch(ctx, projectSlug, commitMsg, files)
}

// SidecarTouchedAt returns when a reservation's sidecar file was last
// written, read from the worktree's filesystem mtime.
func (a *Archive) SidecarTouchedAt(ctx context.Context, projectSlug, reservationID string) (time.Time, error) {
	repo, err := a.repos.Get(projectSlug)
	if err != nil {
		return time.Time{}, fmt.Errorf("opening archive repo: %w", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return time.Time{}, fmt.Errorf("getting worktree: %w", err)
	}
	info, err := wt.Filesystem.Stat(reservationSidecarPath(reservationID))
	if err != nil {
		return time.Time{}, fmt.Errorf("stat reservation sidecar: %w", err)
	}
	return info.ModTime(), nil
}
