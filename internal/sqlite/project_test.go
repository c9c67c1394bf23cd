package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/agentcoord/coordbus/internal/domain/project"
	"github.com/agentcoord/coordbus/internal/repository"
	"github.com/stretchr/testify/require"
)

func TestProjectRepositoryCreateAndGet(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewProjectRepository(db)

	p := &project.Project{ID: "p1", Slug: "my-project", HumanKey: "/home/user/my-project", CreatedAt: time.Now()}
	require.NoError(t, repo.Create(ctx, p))

	bySlug, err := repo.GetBySlug(ctx, "my-project")
	require.NoError(t, err)
	require.Equal(t, "p1", bySlug.ID)

	byID, err := repo.GetByID(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, "my-project", byID.Slug)
}

func TestProjectRepositoryGetBySlugNotFound(t *testing.T) {
	db := NewTestDB(t)
	repo := NewProjectRepository(db)

	_, err := repo.GetBySlug(context.Background(), "missing")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestProjectRepositoryDuplicateSlugIsUniqueViolation(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewProjectRepository(db)

	require.NoError(t, repo.Create(ctx, &project.Project{ID: "p1", Slug: "dup", HumanKey: "k1", CreatedAt: time.Now()}))
	err := repo.Create(ctx, &project.Project{ID: "p2", Slug: "dup", HumanKey: "k2", CreatedAt: time.Now()})
	require.ErrorIs(t, err, repository.ErrUniqueViolation)
}

func TestProjectRepositoryUpdateHumanKey(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewProjectRepository(db)

	require.NoError(t, repo.Create(ctx, &project.Project{ID: "p1", Slug: "s1", HumanKey: "old", CreatedAt: time.Now()}))
	require.NoError(t, repo.UpdateHumanKey(ctx, "p1", "new"))

	got, err := repo.GetByID(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, "new", got.HumanKey)
}

func TestProjectRepositoryListIncludesCounts(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	projects := NewProjectRepository(db)
	agents := NewAgentRepository(db)
	messages := NewMessageRepository(db)

	require.NoError(t, projects.Create(ctx, &project.Project{ID: "p1", Slug: "s1", HumanKey: "k1", CreatedAt: time.Now()}))
	require.NoError(t, agents.Create(ctx, testAgent("a1", "p1", "agent-one")))

	msg := testMessage("p1", "a1")
	require.NoError(t, messages.InsertMessage(ctx, msg, testRecipients(0, "a1")))

	summaries, err := projects.List(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	require.Equal(t, 1, summaries[0].AgentCount)
	require.Equal(t, 1, summaries[0].MessageCount)
}
