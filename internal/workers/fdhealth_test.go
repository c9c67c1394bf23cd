package workers_test

import (
	"context"
	"testing"

	"github.com/agentcoord/coordbus/internal/workers"
	"github.com/stretchr/testify/require"
)

type fakeEvictor struct {
	calledWithMaxOpen int
	called            bool
}

func (f *fakeEvictor) EvictAged(maxOpen int) int {
	f.calledWithMaxOpen = maxOpen
	f.called = true
	return 0
}

func TestFDHealthJobDoesNothingWhenHeadroomHealthy(t *testing.T) {
	evictor := &fakeEvictor{}
	job := workers.NewFDHealthJob(evictor, workers.DefaultFDHealthConfig(), nil)

	require.NoError(t, job.Run(context.Background()))
	// Headroom on a freshly started test process should be well above any
	// threshold, so the evictor should not be invoked.
	require.False(t, evictor.called)
}

func TestFDHealthJobNameIsStable(t *testing.T) {
	job := workers.NewFDHealthJob(&fakeEvictor{}, workers.DefaultFDHealthConfig(), nil)
	require.Equal(t, "fd_health_monitor", job.Name())
}
