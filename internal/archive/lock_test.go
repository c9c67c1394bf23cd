package archive

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLockManagerAcquireAndRelease(t *testing.T) {
	lm := NewLockManager(t.TempDir(), nil)
	ctx := context.Background()

	release, err := lm.Acquire(ctx, "p1")
	require.NoError(t, err)
	release()

	release2, err := lm.Acquire(ctx, "p1")
	require.NoError(t, err)
	release2()
}

func TestLockManagerHealsStaleLock(t *testing.T) {
	root := t.TempDir()
	lm := NewLockManager(root, nil)
	lm.staleThreshold = 10 * time.Millisecond
	lm.acquireTimeout = time.Second
	lm.retry.BaseDelay = time.Millisecond
	lm.retry.MaxDelay = 5 * time.Millisecond

	dir := filepath.Join(root, "projects", "p1")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, lockFileName), nil, 0o644))

	staleOwner := owner{PID: 999999, HeartbeatAt: time.Now().Add(-time.Hour)}
	data, err := json.Marshal(staleOwner)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ownerFileName), data, 0o644))

	release, err := lm.Acquire(context.Background(), "p1")
	require.NoError(t, err, "should heal the stale lock and acquire")
	release()
}

func TestLockManagerBlocksConcurrentHolder(t *testing.T) {
	root := t.TempDir()
	lm := NewLockManager(root, nil)
	lm.acquireTimeout = 200 * time.Millisecond
	lm.retry.BaseDelay = 10 * time.Millisecond
	lm.retry.MaxDelay = 20 * time.Millisecond

	dir := filepath.Join(root, "projects", "p1")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, lockFileName), nil, 0o644))

	fresh := owner{PID: os.Getpid(), HeartbeatAt: time.Now()}
	data, err := json.Marshal(fresh)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ownerFileName), data, 0o644))

	_, err = lm.Acquire(context.Background(), "p1")
	require.Error(t, err, "a fresh heartbeat should not be healed")
}
