package identity

import "context"

// Repository provides persistence for agents.
type Repository interface {
	Create(ctx context.Context, agent *Agent) error
	GetByName(ctx context.Context, projectID, name string) (*Agent, error)
	GetByID(ctx context.Context, id string) (*Agent, error)
	Update(ctx context.Context, agent *Agent) error
	TouchLastActive(ctx context.Context, id string) error
	ListByProject(ctx context.Context, projectID string) ([]Agent, error)
}

// WindowRepository provides persistence for window identity bindings.
type WindowRepository interface {
	Get(ctx context.Context, projectID, windowUUID string) (*WindowIdentity, error)
	Upsert(ctx context.Context, w *WindowIdentity) error
}
