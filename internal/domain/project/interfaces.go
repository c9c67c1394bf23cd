package project

import "context"

// Repository provides persistence for projects.
type Repository interface {
	Create(ctx context.Context, proj *Project) error
	GetBySlug(ctx context.Context, slug string) (*Project, error)
	GetByID(ctx context.Context, id string) (*Project, error)
	UpdateHumanKey(ctx context.Context, id, humanKey string) error
	List(ctx context.Context) ([]Summary, error)
}
