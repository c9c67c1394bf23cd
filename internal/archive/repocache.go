package archive

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/go-git/go-git/v5"
)

// defaultRepoCacheCapacity is the default LRU capacity for open repo handles.
const defaultRepoCacheCapacity = 16

// defaultCloseGrace is how long an evicted handle is kept alive to
// tolerate in-flight operations still holding a reference.
const defaultCloseGrace = 30 * time.Second

// sweepEvery triggers an opportunistic pending-close sweep on every Nth Get.
const sweepEvery = 8

type cachedRepo struct {
	slug string
	repo *git.Repository
}

type pendingClose struct {
	slug    string
	evictAt time.Time
}

// RepoCache maintains an LRU of open Git working trees keyed by project
// slug. Eviction doesn't drop the handle immediately — it moves to a
// grace-timestamped pending list so an in-flight operation already
// holding the reference can finish.
type RepoCache struct {
	root  string
	grace time.Duration

	mu      sync.Mutex
	lru     *lru.Cache[string, *cachedRepo]
	pending []pendingClose
	gets    int
	logger  *slog.Logger
}

func NewRepoCache(root string, logger *slog.Logger) *RepoCache {
	if logger == nil {
		logger = slog.Default()
	}
	rc := &RepoCache{root: root, grace: defaultCloseGrace, logger: logger}
	cache, _ := lru.NewWithEvict(defaultRepoCacheCapacity, rc.onEvict)
	rc.lru = cache
	return rc
}

func (rc *RepoCache) onEvict(slug string, _ *cachedRepo) {
	rc.pending = append(rc.pending, pendingClose{slug: slug, evictAt: time.Now().Add(rc.grace)})
}

// Get opens (or reuses) the working tree for slug.
func (rc *RepoCache) Get(slug string) (*git.Repository, error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	rc.gets++
	if rc.gets%sweepEvery == 0 {
		rc.sweepLocked()
	}

	// A slug resurrected from the pending-close list is still valid —
	// drop it from pending instead of reopening.
	rc.removePendingLocked(slug)

	if cached, ok := rc.lru.Get(slug); ok {
		return cached.repo, nil
	}

	repo, err := rc.open(slug)
	if err != nil {
		return nil, err
	}
	rc.lru.Add(slug, &cachedRepo{slug: slug, repo: repo})
	return repo, nil
}

func (rc *RepoCache) open(slug string) (*git.Repository, error) {
	dir := filepath.Join(rc.root, "projects", slug)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating project archive dir: %w", err)
	}

	repo, err := git.PlainOpen(dir)
	if err != nil {
		if err != git.ErrRepositoryNotExists {
			return nil, fmt.Errorf("opening archive repo: %w", err)
		}
		repo, err = git.PlainInit(dir, false)
		if err != nil {
			return nil, fmt.Errorf("initializing archive repo: %w", err)
		}
	}

	// .lock/.owner.json live inside the same directory as the worktree;
	// ignore them so they never show up as untracked noise in status.
	gitignorePath := filepath.Join(dir, ".gitignore")
	if _, err := os.Stat(gitignorePath); os.IsNotExist(err) {
		if werr := os.WriteFile(gitignorePath, []byte(lockFileName+"\n"+ownerFileName+"\n"), 0o644); werr != nil {
			return nil, fmt.Errorf("writing archive .gitignore: %w", werr)
		}
	}

	return repo, nil
}

func (rc *RepoCache) removePendingLocked(slug string) {
	filtered := rc.pending[:0]
	for _, p := range rc.pending {
		if p.slug != slug {
			filtered = append(filtered, p)
		}
	}
	rc.pending = filtered
}

func (rc *RepoCache) sweepLocked() {
	now := time.Now()
	filtered := rc.pending[:0]
	for _, p := range rc.pending {
		if now.Before(p.evictAt) {
			filtered = append(filtered, p)
			continue
		}
		rc.logger.Debug("repo cache handle closed past grace window", "slug", p.slug)
	}
	rc.pending = filtered
}

// Clear drops every cached handle and pending-close entry immediately.
func (rc *RepoCache) Clear() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.lru.Purge()
	rc.pending = nil
}

// Stats reports current cache occupancy, for the FD-health worker.
type Stats struct {
	Open    int
	Pending int
}

func (rc *RepoCache) Stats() Stats {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return Stats{Open: rc.lru.Len(), Pending: len(rc.pending)}
}

// EvictAged forcibly closes every pending-close entry regardless of grace,
// and trims the LRU to at most maxOpen handles. Used by the FD-health
// worker when descriptor headroom drops below its proactive-cleanup
// threshold.
func (rc *RepoCache) EvictAged(maxOpen int) int {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	freed := len(rc.pending)
	rc.pending = nil

	for rc.lru.Len() > maxOpen {
		_, _, ok := rc.lru.RemoveOldest()
		if !ok {
			break
		}
		freed++
	}
	return freed
}
