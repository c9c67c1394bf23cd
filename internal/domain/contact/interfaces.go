package contact

import "context"

// Repository is the Catalog-facing persistence port for contact links.
type Repository interface {
	Upsert(ctx context.Context, link *AgentLink) error
	GetDirected(ctx context.Context, aProjectID, aAgentID, bProjectID, bAgentID string) (*AgentLink, error)
	ListOutbound(ctx context.Context, projectID, agentID string) ([]AgentLink, error)
}

// NotificationSender lets the Contact Engine deliver a system message to
// the target of a contact request, without importing the Messaging Engine
// directly.
type NotificationSender interface {
	SendSystemNotification(ctx context.Context, projectID, recipientAgentID, subject, body string) error
}
