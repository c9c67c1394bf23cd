package workers_test

import (
	"context"
	"testing"
	"time"

	"github.com/agentcoord/coordbus/internal/domain/identity"
	"github.com/agentcoord/coordbus/internal/domain/messaging"
	"github.com/agentcoord/coordbus/internal/domain/project"
	"github.com/agentcoord/coordbus/internal/domain/reservation"
	"github.com/agentcoord/coordbus/internal/workers"
	"github.com/stretchr/testify/require"
)

type fakeAckRepo struct {
	overdue []messaging.InboxItem
}

func (f *fakeAckRepo) ListOverdueAcks(ctx context.Context, cutoff time.Time) ([]messaging.InboxItem, error) {
	return f.overdue, nil
}

type fakeAgentLookup struct {
	byID     map[string]*identity.Agent
	autoName string
}

func (f *fakeAgentLookup) GetByID(ctx context.Context, agentID string) (*identity.Agent, error) {
	return f.byID[agentID], nil
}

func (f *fakeAgentLookup) ResolveOrAutoCreate(ctx context.Context, projectID, name string, autoCreate bool) (*identity.Agent, error) {
	f.autoName = name
	return &identity.Agent{ID: "system-agent", ProjectID: projectID, Name: name}, nil
}

type fakeProjectLookup struct {
	slug string
}

func (f *fakeProjectLookup) GetByID(ctx context.Context, id string) (*project.Project, error) {
	return &project.Project{ID: id, Slug: f.slug}, nil
}

type fakeGranter struct {
	calls []string
}

func (f *fakeGranter) GrantPaths(ctx context.Context, projectSlug, projectID, agentID string, paths []string, ttlSeconds int64, exclusive bool, reason string) (*reservation.GrantResult, error) {
	f.calls = append(f.calls, paths[0])
	return &reservation.GrantResult{}, nil
}

func TestAckTTLJobWarnsWithoutEscalation(t *testing.T) {
	repo := &fakeAckRepo{overdue: []messaging.InboxItem{
		{Message: messaging.Message{ID: 1, ProjectID: "p1", CreatedTS: time.Now().Add(-time.Hour)}, Recipient: messaging.MessageRecipient{AgentID: "a1"}},
	}}
	agents := &fakeAgentLookup{byID: map[string]*identity.Agent{"a1": {ID: "a1", Name: "BlueLake"}}}
	granter := &fakeGranter{}

	job := workers.NewAckTTLJob(repo, agents, &fakeProjectLookup{slug: "backend"}, granter,
		workers.AckTTLConfig{AckTTL: 30 * time.Minute}, nil)

	require.NoError(t, job.Run(context.Background()))
	require.Empty(t, granter.calls, "escalation disabled, should not grant any reservation")
}

func TestAckTTLJobEscalatesWhenEnabled(t *testing.T) {
	repo := &fakeAckRepo{overdue: []messaging.InboxItem{
		{Message: messaging.Message{ID: 1, ProjectID: "p1", CreatedTS: time.Now().Add(-time.Hour)}, Recipient: messaging.MessageRecipient{AgentID: "a1"}},
	}}
	agents := &fakeAgentLookup{byID: map[string]*identity.Agent{"a1": {ID: "a1", Name: "BlueLake"}}}
	granter := &fakeGranter{}

	job := workers.NewAckTTLJob(repo, agents, &fakeProjectLookup{slug: "backend"}, granter,
		workers.AckTTLConfig{AckTTL: 30 * time.Minute, EscalationEnabled: true, EscalationReservationTTL: time.Hour}, nil)

	require.NoError(t, job.Run(context.Background()))
	require.Len(t, granter.calls, 1)
	require.Equal(t, "agents/BlueLake/inbox/**", granter.calls[0])
	require.Equal(t, "system", agents.autoName)
}
