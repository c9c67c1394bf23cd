package workers

import (
	"context"
	"log/slog"

	"github.com/agentcoord/coordbus/internal/metrics"
)

// MetricsSnapshotter is the narrow surface of metrics.Recorder this job
// needs.
type MetricsSnapshotter interface {
	Snapshot() []metrics.Snapshot
}

// ToolMetricsJob periodically logs aggregate per-tool call counts,
// latency percentiles, and error rates.
type ToolMetricsJob struct {
	recorder MetricsSnapshotter
	logger   *slog.Logger
}

func NewToolMetricsJob(recorder MetricsSnapshotter, logger *slog.Logger) *ToolMetricsJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &ToolMetricsJob{recorder: recorder, logger: logger}
}

func (j *ToolMetricsJob) Name() string { return "tool_metrics_snapshot" }

func (j *ToolMetricsJob) Run(ctx context.Context) error {
	for _, snap := range j.recorder.Snapshot() {
		j.logger.Info("tool metrics",
			"tool", snap.Tool, "count", snap.Count, "error_rate", snap.ErrorRate,
			"p50_latency_ms", snap.P50Latency.Milliseconds(), "p95_latency_ms", snap.P95Latency.Milliseconds())
	}
	return nil
}
