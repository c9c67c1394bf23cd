package workers

import (
	"context"
	"log/slog"

	"github.com/agentcoord/coordbus/internal/concurrency"
)

// RepoCacheEvictor is the narrow surface of archive.RepoCache the
// FD-health job needs to relieve descriptor pressure.
type RepoCacheEvictor interface {
	EvictAged(maxOpen int) int
}

// FDHealthConfig holds the three escalating headroom thresholds.
type FDHealthConfig struct {
	WarnHeadroomPct     float64 // < 30%: warn only
	EvictHeadroomPct    float64 // < 20%: proactively evict aged repo cache handles
	AggressiveHeadroomPct float64 // < 15%: aggressive close, log error
	// AggressiveMaxOpen is how hard EvictAged trims the cache once headroom
	// drops below AggressiveHeadroomPct.
	AggressiveMaxOpen int
	// EvictMaxOpen is the softer trim target for the 20% threshold.
	EvictMaxOpen int
}

func DefaultFDHealthConfig() FDHealthConfig {
	return FDHealthConfig{
		WarnHeadroomPct:       0.30,
		EvictHeadroomPct:      0.20,
		AggressiveHeadroomPct: 0.15,
		EvictMaxOpen:          8,
		AggressiveMaxOpen:     2,
	}
}

// FDHealthJob inspects process file-descriptor usage against the rlimit
// every tick and proactively relieves pressure before an EMFILE cascade
// makes the server unreachable.
type FDHealthJob struct {
	repos  RepoCacheEvictor
	cfg    FDHealthConfig
	logger *slog.Logger
}

func NewFDHealthJob(repos RepoCacheEvictor, cfg FDHealthConfig, logger *slog.Logger) *FDHealthJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &FDHealthJob{repos: repos, cfg: cfg, logger: logger}
}

func (j *FDHealthJob) Name() string { return "fd_health_monitor" }

func (j *FDHealthJob) Run(ctx context.Context) error {
	usage := concurrency.ReadFDUsage()
	headroom := usage.HeadroomPct()
	if headroom < 0 {
		return nil // rlimit unavailable on this platform; nothing to act on.
	}

	switch {
	case headroom < j.cfg.AggressiveHeadroomPct:
		freed := j.repos.EvictAged(j.cfg.AggressiveMaxOpen)
		j.logger.Error("fd headroom critical, aggressively evicting repo cache",
			"open_fds", usage.Open, "limit", usage.Limit, "headroom_pct", headroom, "freed", freed)
	case headroom < j.cfg.EvictHeadroomPct:
		freed := j.repos.EvictAged(j.cfg.EvictMaxOpen)
		j.logger.Warn("fd headroom low, evicting aged repo cache handles",
			"open_fds", usage.Open, "limit", usage.Limit, "headroom_pct", headroom, "freed", freed)
	case headroom < j.cfg.WarnHeadroomPct:
		j.logger.Warn("fd headroom below warn threshold",
			"open_fds", usage.Open, "limit", usage.Limit, "headroom_pct", headroom)
	}
	return nil
}
