package product

import "context"

// Repository is the Catalog-facing persistence port for products and their
// project links.
type Repository interface {
	Create(ctx context.Context, p *Product) error
	GetByUIDOrName(ctx context.Context, key string) (*Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	LinkProject(ctx context.Context, link *ProjectLink) error
	ListLinkedProjectIDs(ctx context.Context, productID string) ([]string, error)
}

// ProjectResolver resolves a project reference (slug or human key) to its
// internal id, without importing the project package's service.
type ProjectResolver interface {
	GetBySlug(ctx context.Context, slugOrKey string) (ProjectRef, error)
}

// ProjectRef is the minimal project identity product needs to link a
// project into a product.
type ProjectRef struct {
	ID   string
	Slug string
}
