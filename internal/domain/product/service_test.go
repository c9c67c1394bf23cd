package product_test

import (
	"context"
	"testing"

	"github.com/agentcoord/coordbus/internal/domain/product"
	"github.com/agentcoord/coordbus/internal/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	byID    map[string]*product.Product
	links   map[string][]string // productID -> projectIDs
	byNameU map[string]string   // uid or name -> productID
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		byID:    map[string]*product.Product{},
		links:   map[string][]string{},
		byNameU: map[string]string{},
	}
}

func (f *fakeRepo) Create(ctx context.Context, p *product.Product) error {
	cp := *p
	f.byID[p.ID] = &cp
	f.byNameU[p.UID] = p.ID
	f.byNameU[p.Name] = p.ID
	return nil
}

func (f *fakeRepo) GetByUIDOrName(ctx context.Context, key string) (*product.Product, error) {
	if id, ok := f.byNameU[key]; ok {
		cp := *f.byID[id]
		return &cp, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeRepo) GetByID(ctx context.Context, id string) (*product.Product, error) {
	if p, ok := f.byID[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeRepo) LinkProject(ctx context.Context, link *product.ProjectLink) error {
	for _, existing := range f.links[link.ProductID] {
		if existing == link.ProjectID {
			return nil
		}
	}
	f.links[link.ProductID] = append(f.links[link.ProductID], link.ProjectID)
	return nil
}

func (f *fakeRepo) ListLinkedProjectIDs(ctx context.Context, productID string) ([]string, error) {
	return f.links[productID], nil
}

type fakeProjects struct {
	bySlug map[string]product.ProjectRef
}

func (f *fakeProjects) GetBySlug(ctx context.Context, slugOrKey string) (product.ProjectRef, error) {
	ref, ok := f.bySlug[slugOrKey]
	if !ok {
		return product.ProjectRef{}, repository.ErrNotFound
	}
	return ref, nil
}

func newTestService(projects map[string]product.ProjectRef) (*product.Service, *fakeRepo) {
	repo := newFakeRepo()
	svc := product.NewService(repo, &fakeProjects{bySlug: projects}, nil)
	return svc, repo
}

func TestEnsureIsIdempotentByName(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(nil)

	first, err := svc.Ensure(ctx, "platform", "Platform Suite")
	require.NoError(t, err)
	require.Equal(t, "Platform Suite", first.Name)

	second, err := svc.Ensure(ctx, "platform", "")
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID, "re-ensuring the same key must not create a duplicate")
}

func TestLinkProjectThenStatusReportsLinkedProjects(t *testing.T) {
	ctx := context.Background()
	projectID := uuid.NewString()
	svc, _ := newTestService(map[string]product.ProjectRef{
		"backend": {ID: projectID, Slug: "backend"},
	})

	_, err := svc.Ensure(ctx, "platform", "Platform Suite")
	require.NoError(t, err)

	_, proj, err := svc.LinkProject(ctx, "platform", "backend")
	require.NoError(t, err)
	require.Equal(t, projectID, proj.ID)

	status, err := svc.Status(ctx, "platform")
	require.NoError(t, err)
	require.Equal(t, []string{projectID}, status.ProjectIDs)
}

func TestLinkProjectIsIdempotent(t *testing.T) {
	ctx := context.Background()
	projectID := uuid.NewString()
	svc, _ := newTestService(map[string]product.ProjectRef{
		"backend": {ID: projectID, Slug: "backend"},
	})

	_, err := svc.Ensure(ctx, "platform", "Platform Suite")
	require.NoError(t, err)

	_, _, err = svc.LinkProject(ctx, "platform", "backend")
	require.NoError(t, err)
	_, _, err = svc.LinkProject(ctx, "platform", "backend")
	require.NoError(t, err)

	ids, err := svc.LinkedProjectIDs(ctx, "platform")
	require.NoError(t, err)
	require.Len(t, ids, 1, "linking the same project twice must not duplicate the edge")
}

func TestStatusUnknownProductFails(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(nil)

	_, err := svc.Status(ctx, "missing")
	require.ErrorIs(t, err, product.ErrProductNotFound)
}
