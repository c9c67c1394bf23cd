package workers

import (
	"context"
	"log/slog"

	"github.com/agentcoord/coordbus/internal/archive"
	"github.com/agentcoord/coordbus/internal/domain/project"
)

// ProjectLister enumerates every known project, for the retention report's
// per-project scan.
type ProjectLister interface {
	List(ctx context.Context) ([]project.Summary, error)
}

// ArchiveStatter reports one project's archive footprint.
type ArchiveStatter interface {
	Stats(slug string) (archive.ProjectStats, error)
}

// RetentionConfig names the per-project byte quota that triggers a warning.
// A zero quota disables the check (unbounded).
type RetentionConfig struct {
	QuotaBytes int64
}

// RetentionReportJob periodically scans every project's archive and logs
// counts and byte totals, warning when a project exceeds its configured
// quota. It never deletes anything.
type RetentionReportJob struct {
	projects ProjectLister
	archive  ArchiveStatter
	cfg      RetentionConfig
	logger   *slog.Logger
}

func NewRetentionReportJob(projects ProjectLister, archive ArchiveStatter, cfg RetentionConfig, logger *slog.Logger) *RetentionReportJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetentionReportJob{projects: projects, archive: archive, cfg: cfg, logger: logger}
}

func (j *RetentionReportJob) Name() string { return "retention_quota_report" }

func (j *RetentionReportJob) Run(ctx context.Context) error {
	summaries, err := j.projects.List(ctx)
	if err != nil {
		return err
	}

	for _, p := range summaries {
		stats, err := j.archive.Stats(p.Slug)
		if err != nil {
			j.logger.Warn("retention report: reading archive stats failed", "project", p.Slug, "error", err)
			continue
		}
		j.logger.Info("retention report", "project", p.Slug, "files", stats.Files, "bytes", stats.Bytes)
		if j.cfg.QuotaBytes > 0 && stats.Bytes > j.cfg.QuotaBytes {
			j.logger.Warn("project archive exceeds quota", "project", p.Slug, "bytes", stats.Bytes, "quota_bytes", j.cfg.QuotaBytes)
		}
	}
	return nil
}
