package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/agentcoord/coordbus/internal/domain/identity"
	"github.com/agentcoord/coordbus/internal/domain/project"
	"github.com/agentcoord/coordbus/internal/repository"
	"github.com/stretchr/testify/require"
)

func seedProject(t *testing.T, db *DB, id, slug string) {
	t.Helper()
	require.NoError(t, NewProjectRepository(db).Create(context.Background(),
		&project.Project{ID: id, Slug: slug, HumanKey: slug, CreatedAt: time.Now()}))
}

func TestAgentRepositoryCreateAndGet(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	seedProject(t, db, "p1", "s1")
	repo := NewAgentRepository(db)

	a := testAgent("a1", "p1", "agent-one")
	a.RegistrationToken = "tok-123"
	require.NoError(t, repo.Create(ctx, a))

	byName, err := repo.GetByName(ctx, "p1", "agent-one")
	require.NoError(t, err)
	require.Equal(t, "a1", byName.ID)
	require.Equal(t, "tok-123", byName.RegistrationToken)

	byID, err := repo.GetByID(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, "agent-one", byID.Name)
}

func TestAgentRepositoryGetByNameNotFound(t *testing.T) {
	db := NewTestDB(t)
	seedProject(t, db, "p1", "s1")
	repo := NewAgentRepository(db)

	_, err := repo.GetByName(context.Background(), "p1", "nobody")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestAgentRepositoryDuplicateNameInProjectIsUniqueViolation(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	seedProject(t, db, "p1", "s1")
	repo := NewAgentRepository(db)

	require.NoError(t, repo.Create(ctx, testAgent("a1", "p1", "dup")))
	err := repo.Create(ctx, testAgent("a2", "p1", "dup"))
	require.ErrorIs(t, err, repository.ErrUniqueViolation)
}

func TestAgentRepositoryUpdateAndTouchLastActive(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	seedProject(t, db, "p1", "s1")
	repo := NewAgentRepository(db)

	a := testAgent("a1", "p1", "agent-one")
	require.NoError(t, repo.Create(ctx, a))

	a.Program = "codex"
	a.ContactPolicy = identity.ContactBlockAll
	require.NoError(t, repo.Update(ctx, a))

	got, err := repo.GetByID(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, "codex", got.Program)
	require.Equal(t, identity.ContactBlockAll, got.ContactPolicy)

	before := got.LastActiveTS
	time.Sleep(time.Millisecond)
	require.NoError(t, repo.TouchLastActive(ctx, "a1"))
	after, err := repo.GetByID(ctx, "a1")
	require.NoError(t, err)
	require.True(t, after.LastActiveTS.After(before) || after.LastActiveTS.Equal(before))
}

func TestAgentRepositoryListByProject(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	seedProject(t, db, "p1", "s1")
	repo := NewAgentRepository(db)

	require.NoError(t, repo.Create(ctx, testAgent("a1", "p1", "bravo")))
	require.NoError(t, repo.Create(ctx, testAgent("a2", "p1", "alpha")))

	agents, err := repo.ListByProject(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, agents, 2)
	require.Equal(t, "alpha", agents[0].Name)
}

func TestWindowRepositoryUpsert(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	seedProject(t, db, "p1", "s1")
	repo := NewWindowRepository(db)

	w := &identity.WindowIdentity{ProjectID: "p1", WindowUUID: "w1", DisplayName: "first", LastActiveTS: time.Now()}
	require.NoError(t, repo.Upsert(ctx, w))

	got, err := repo.Get(ctx, "p1", "w1")
	require.NoError(t, err)
	require.Equal(t, "first", got.DisplayName)

	w.DisplayName = "renamed"
	require.NoError(t, repo.Upsert(ctx, w))

	got, err = repo.Get(ctx, "p1", "w1")
	require.NoError(t, err)
	require.Equal(t, "renamed", got.DisplayName)
}

func TestWindowRepositoryGetNotFound(t *testing.T) {
	db := NewTestDB(t)
	seedProject(t, db, "p1", "s1")
	repo := NewWindowRepository(db)

	_, err := repo.Get(context.Background(), "p1", "missing")
	require.ErrorIs(t, err, repository.ErrNotFound)
}
