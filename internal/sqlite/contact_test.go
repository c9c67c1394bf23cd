package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/agentcoord/coordbus/internal/domain/contact"
	"github.com/agentcoord/coordbus/internal/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func testLink(aProject, aAgent, bProject, bAgent string, status contact.LinkStatus) *contact.AgentLink {
	return &contact.AgentLink{
		ID:         uuid.NewString(),
		AProjectID: aProject,
		AAgentID:   aAgent,
		BProjectID: bProject,
		BAgentID:   bAgent,
		Status:     status,
		CreatedTS:  time.Now(),
	}
}

func TestContactRepositoryUpsertAndGetDirected(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	seedProjectWithAgents(t, db, "p1", "a1")
	seedProjectWithAgents(t, db, "p2", "b1")
	repo := NewContactRepository(db)

	link := testLink("p1", "a1", "p2", "b1", contact.StatusPending)
	require.NoError(t, repo.Upsert(ctx, link))

	got, err := repo.GetDirected(ctx, "p1", "a1", "p2", "b1")
	require.NoError(t, err)
	require.Equal(t, contact.StatusPending, got.Status)
}

func TestContactRepositoryGetDirectedNotFound(t *testing.T) {
	db := NewTestDB(t)
	repo := NewContactRepository(db)

	_, err := repo.GetDirected(context.Background(), "p1", "a1", "p2", "b1")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestContactRepositoryUpsertUpdatesExistingDirectedLink(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	seedProjectWithAgents(t, db, "p1", "a1")
	seedProjectWithAgents(t, db, "p2", "b1")
	repo := NewContactRepository(db)

	link := testLink("p1", "a1", "p2", "b1", contact.StatusPending)
	require.NoError(t, repo.Upsert(ctx, link))

	now := time.Now()
	link.Status = contact.StatusApproved
	link.RespondedTS = &now
	require.NoError(t, repo.Upsert(ctx, link))

	got, err := repo.GetDirected(ctx, "p1", "a1", "p2", "b1")
	require.NoError(t, err)
	require.Equal(t, contact.StatusApproved, got.Status)
	require.NotNil(t, got.RespondedTS)
}

func TestContactRepositoryListOutbound(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	seedProjectWithAgents(t, db, "p1", "a1")
	seedProjectWithAgents(t, db, "p2", "b1")
	seedProjectWithAgents(t, db, "p3", "c1")
	repo := NewContactRepository(db)

	require.NoError(t, repo.Upsert(ctx, testLink("p1", "a1", "p2", "b1", contact.StatusPending)))
	require.NoError(t, repo.Upsert(ctx, testLink("p1", "a1", "p3", "c1", contact.StatusApproved)))

	links, err := repo.ListOutbound(ctx, "p1", "a1")
	require.NoError(t, err)
	require.Len(t, links, 2)
}
