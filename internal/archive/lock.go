package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/agentcoord/coordbus/internal/concurrency"
)

const (
	lockFileName  = ".lock"
	ownerFileName = ".owner.json"

	defaultHeartbeatInterval = 5 * time.Second
	defaultStaleThreshold    = 30 * time.Second
	defaultAcquireTimeout    = 15 * time.Second
)

// owner is the heartbeat sidecar a lock holder writes alongside the
// lockfile.
type owner struct {
	PID         int       `json:"pid"`
	Hostname    string    `json:"hostname"`
	AcquiredAt  time.Time `json:"acquired_at"`
	HeartbeatAt time.Time `json:"heartbeat_at"`
}

// LockManager serializes writes to one project's archive working tree
// across processes via a lockfile + heartbeat owner sidecar, with a heal
// procedure for an owner that died without releasing.
type LockManager struct {
	root              string
	heartbeatInterval time.Duration
	staleThreshold    time.Duration
	acquireTimeout    time.Duration
	retry             concurrency.RetryConfig
	inProcess         *concurrency.KeyedMutex
	logger            *slog.Logger
}

func NewLockManager(root string, logger *slog.Logger) *LockManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &LockManager{
		root:              root,
		heartbeatInterval: defaultHeartbeatInterval,
		staleThreshold:    defaultStaleThreshold,
		acquireTimeout:    defaultAcquireTimeout,
		retry:             concurrency.DefaultRetryConfig(),
		inProcess:         concurrency.NewKeyedMutex(),
		logger:            logger,
	}
}

// Acquire blocks (with timeout) until the named project's archive lock is
// held, healing a stale lock from a dead owner along the way. The
// returned func releases both the in-process and on-disk lock.
func (lm *LockManager) Acquire(ctx context.Context, slug string) (func(), error) {
	// Serialize within this process first — cheaper than touching the
	// filesystem, and avoids two goroutines in the same process racing
	// to heal the same stale lock.
	unlockLocal := lm.inProcess.Lock(slug)

	ctx, cancel := context.WithTimeout(ctx, lm.acquireTimeout)
	defer cancel()

	dir := filepath.Join(lm.root, "projects", slug)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		unlockLocal()
		return nil, fmt.Errorf("creating project archive dir: %w", err)
	}
	lockPath := filepath.Join(dir, lockFileName)
	ownerPath := filepath.Join(dir, ownerFileName)

	err := concurrency.WithRetry(ctx, lm.retry, func() error {
		return lm.tryAcquire(lockPath, ownerPath)
	})
	if err != nil {
		unlockLocal()
		return nil, fmt.Errorf("acquiring archive lock for %s: %w", slug, err)
	}

	stopHeartbeat := make(chan struct{})
	done := make(chan struct{})
	go lm.heartbeat(ownerPath, stopHeartbeat, done)

	release := func() {
		close(stopHeartbeat)
		<-done
		_ = os.Remove(ownerPath)
		_ = os.Remove(lockPath)
		unlockLocal()
	}
	return release, nil
}

func (lm *LockManager) tryAcquire(lockPath, ownerPath string) error {
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err == nil {
		f.Close()
		return lm.writeOwner(ownerPath)
	}
	if !errors.Is(err, os.ErrExist) {
		return err
	}

	if lm.healIfStale(lockPath, ownerPath) {
		return errors.New("healed stale lock, retrying")
	}
	return errors.New("archive lock held by another owner")
}

// healIfStale removes a lock whose owner sidecar is missing or hasn't
// heartbeat within staleThreshold, and records the recovery.
func (lm *LockManager) healIfStale(lockPath, ownerPath string) bool {
	data, err := os.ReadFile(ownerPath)
	if err != nil {
		// Lock exists with no owner sidecar at all — crashed before the
		// first heartbeat. Safe to heal.
		lm.logger.Warn("healing archive lock with missing owner sidecar", "lock", lockPath)
		_ = os.Remove(lockPath)
		return true
	}

	var o owner
	if err := json.Unmarshal(data, &o); err != nil {
		_ = os.Remove(lockPath)
		_ = os.Remove(ownerPath)
		return true
	}

	if time.Since(o.HeartbeatAt) <= lm.staleThreshold {
		return false
	}

	lm.logger.Warn("healing stale archive lock", "lock", lockPath, "owner_pid", o.PID, "last_heartbeat", o.HeartbeatAt)
	_ = os.Remove(lockPath)
	_ = os.Remove(ownerPath)
	return true
}

func (lm *LockManager) writeOwner(ownerPath string) error {
	hostname, _ := os.Hostname()
	now := time.Now()
	o := owner{PID: os.Getpid(), Hostname: hostname, AcquiredAt: now, HeartbeatAt: now}
	return lm.writeOwnerFile(ownerPath, o)
}

func (lm *LockManager) writeOwnerFile(ownerPath string, o owner) error {
	data, err := json.Marshal(o)
	if err != nil {
		return err
	}
	return os.WriteFile(ownerPath, data, 0o644)
}

func (lm *LockManager) heartbeat(ownerPath string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(lm.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			data, err := os.ReadFile(ownerPath)
			if err != nil {
				continue
			}
			var o owner
			if err := json.Unmarshal(data, &o); err != nil {
				continue
			}
			o.HeartbeatAt = time.Now()
			_ = lm.writeOwnerFile(ownerPath, o)
		case <-stop:
			return
		}
	}
}
