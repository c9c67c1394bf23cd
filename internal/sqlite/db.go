// Package sqlite implements the Catalog on top of
// modernc.org/sqlite: WAL concurrency controls, a lock-retry wrapper with
// exponential backoff and jitter, a circuit breaker for sustained lock
// contention, and one repository per domain package's Repository
// interface.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/agentcoord/coordbus/internal/repository"
	"github.com/cenkalti/backoff/v4"
	_ "modernc.org/sqlite"
)

// DB wraps a SQLite connection pool with the concurrency controls a
// SQLite-class backend needs under concurrent multi-agent load.
type DB struct {
	*sql.DB
	breaker *circuitBreaker
	logger  *slog.Logger
	cfg     Config
}

// Config tunes the retry/circuit-breaker policy. Zero values fall back to
// defaultConfig.
type Config struct {
	BusyTimeoutMS         int
	MaxRetries            int
	BaseRetryDelay        time.Duration
	MaxRetryDelay         time.Duration
	CircuitFailThreshold  int
	CircuitResetInterval  time.Duration
	ConnMaxLifetime       time.Duration
}

func defaultConfig() Config {
	return Config{
		BusyTimeoutMS:        60_000,
		MaxRetries:           7,
		BaseRetryDelay:       100 * time.Millisecond,
		MaxRetryDelay:        8 * time.Second,
		CircuitFailThreshold: 5,
		CircuitResetInterval: 30 * time.Second,
		ConnMaxLifetime:      30 * time.Minute,
	}
}

// New opens a SQLite database and applies the WAL/busy-timeout pragmas
// this backend relies on under concurrent load: WAL journal mode, NORMAL
// synchronous, a long busy_timeout to ride out checkpoint stalls, and
// passive autocheckpointing every ~4MB.
func New(dataSourceName string, cfg Config, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BusyTimeoutMS == 0 {
		cfg = defaultConfig()
	}

	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// One writer at a time is a SQLite constraint; keep the write path
	// serialized in-process rather than fighting the file lock.
	if !strings.Contains(dataSourceName, ":memory:") {
		db.SetMaxOpenConns(1)
	}
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", cfg.BusyTimeoutMS),
		"PRAGMA wal_autocheckpoint=1000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("applying %q: %w", p, err)
		}
	}

	return &DB{
		DB:      db,
		logger:  logger,
		cfg:     cfg,
		breaker: newCircuitBreaker(cfg.CircuitFailThreshold, cfg.CircuitResetInterval),
	}, nil
}

// RunMigrations applies migrations/001_initial_schema.up.sql. In
// production this runs once at startup; tests call it against an
// in-memory database.
func (db *DB) RunMigrations() error {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return fmt.Errorf("locating migration path")
	}
	rootDir := filepath.Dir(filepath.Dir(filepath.Dir(filename)))
	migrationPath := filepath.Join(rootDir, "migrations", "001_initial_schema.up.sql")
	migration, err := os.ReadFile(migrationPath)
	if err != nil {
		return fmt.Errorf("reading migrations: %w", err)
	}
	if _, err := db.Exec(string(migration)); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// circuitBreaker trips after a run of sustained lock errors and fails
// fast until the reset interval elapses (5 failures, 30s reset).
type circuitBreaker struct {
	mu          sync.Mutex
	threshold   int
	reset       time.Duration
	failures    int
	openUntil   time.Time
}

func newCircuitBreaker(threshold int, reset time.Duration) *circuitBreaker {
	return &circuitBreaker{threshold: threshold, reset: reset}
}

func (c *circuitBreaker) allow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Now().After(c.openUntil)
}

func (c *circuitBreaker) recordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = 0
	c.openUntil = time.Time{}
}

func (c *circuitBreaker) recordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures++
	if c.failures >= c.threshold {
		c.openUntil = time.Now().Add(c.reset)
	}
}

// ErrCircuitOpen is returned by withRetry when the circuit breaker is open.
// It wraps repository.ErrCircuitOpen.
var ErrCircuitOpen = fmt.Errorf("sqlite: circuit open, failing fast: %w", repository.ErrCircuitOpen)

// withRetry runs fn, retrying on SQLite lock errors with exponential
// backoff and ±25% jitter (base 0.1s, max 8s, 7 retries ≈ 12.7s total).
// A lock error that outlasts the retries is returned wrapping
// repository.ErrBusy.
// The circuit breaker short-circuits retries entirely once open.
func (db *DB) withRetry(ctx context.Context, fn func() error) error {
	if !db.breaker.allow() {
		return ErrCircuitOpen
	}

	cfg := db.cfg
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.BaseRetryDelay
	b.MaxInterval = cfg.MaxRetryDelay
	b.RandomizationFactor = 0.25
	b.Multiplier = 2
	b.MaxElapsedTime = 0
	bctx := backoff.WithContext(backoff.WithMaxRetries(b, uint64(cfg.MaxRetries)), ctx)

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := fn()
		if err == nil {
			db.breaker.recordSuccess()
			return nil
		}
		if !isLockError(err) {
			return backoff.Permanent(err)
		}
		db.breaker.recordFailure()
		db.logger.Warn("sqlite lock contention, retrying", "attempt", attempt, "error", err)
		return err
	}, bctx)

	if err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			return permanent.Err
		}
		if isLockError(err) {
			return fmt.Errorf("%w: %v", repository.ErrBusy, err)
		}
	}
	return err
}

func isLockError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database table is locked")
}

// jitteredDelay computes the same ±25% jittered exponential delay without a
// full backoff.ExponentialBackOff. Nothing in the repository calls it.
func jitteredDelay(base time.Duration, attempt int) time.Duration {
	exp := base * time.Duration(math.Pow(2, float64(attempt)))
	jitter := float64(exp) * 0.25 * (2*rand.Float64() - 1)
	d := time.Duration(float64(exp) + jitter)
	if d < 0 {
		d = base
	}
	return d
}
