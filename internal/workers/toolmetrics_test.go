package workers_test

import (
	"context"
	"testing"
	"time"

	"github.com/agentcoord/coordbus/internal/metrics"
	"github.com/agentcoord/coordbus/internal/workers"
	"github.com/stretchr/testify/require"
)

func TestToolMetricsJobLogsCurrentSnapshot(t *testing.T) {
	recorder := metrics.NewRecorder()
	recorder.Record("send_message", 5*time.Millisecond, nil)

	job := workers.NewToolMetricsJob(recorder, nil)
	require.Equal(t, "tool_metrics_snapshot", job.Name())
	require.NoError(t, job.Run(context.Background()))
}
