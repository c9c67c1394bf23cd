package messaging

import (
	"context"
	"time"

	"github.com/agentcoord/coordbus/internal/domain/identity"
	"github.com/agentcoord/coordbus/internal/domain/project"
)

// Repository is the Catalog-facing persistence port for messages and
// recipients.
type Repository interface {
	InsertMessage(ctx context.Context, msg *Message, recipients []MessageRecipient) error
	GetMessage(ctx context.Context, projectID string, id int64) (*Message, error)
	GetRecipients(ctx context.Context, messageID int64) ([]MessageRecipient, error)
	MarkRead(ctx context.Context, messageID int64, agentID string, at time.Time) error
	MarkAcknowledged(ctx context.Context, messageID int64, agentID string, at time.Time) error
	FetchInbox(ctx context.Context, projectID, agentID string, opts InboxOptions) ([]InboxItem, error)
	ListOutbox(ctx context.Context, projectID, agentID string, opts InboxOptions) ([]InboxItem, error)
	ListThread(ctx context.Context, projectID, threadID string) ([]Message, error)
	Search(ctx context.Context, projectID, query string, opts SearchOptions) ([]Message, error)
	// ListOverdueAcks scans every project for ack_required deliveries still
	// unacknowledged past cutoff, for the ACK TTL monitor.
	ListOverdueAcks(ctx context.Context, cutoff time.Time) ([]InboxItem, error)
}

// InboxOptions parameterizes fetch_inbox / list_outbox.
type InboxOptions struct {
	Limit         int
	IncludeBodies bool
	UrgentOnly    bool
	SinceTS       *time.Time
	Topic         string
	ThreadID      string
}

// SearchOptions parameterizes search_messages.
type SearchOptions struct {
	Limit int
}

// AgentResolver resolves and touches agent identities on the messaging
// send/read/ack paths.
type AgentResolver interface {
	Whois(ctx context.Context, projectID, name string) (*identity.Agent, error)
	GetByID(ctx context.Context, agentID string) (*identity.Agent, error)
	ResolveOrAutoCreate(ctx context.Context, projectID, name string, autoCreate bool) (*identity.Agent, error)
	TouchLastActive(ctx context.Context, agentID string) error
}

// ProjectResolver resolves a project by slug/human key or by id.
type ProjectResolver interface {
	GetBySlug(ctx context.Context, slugOrKey string) (*project.Project, error)
	GetByID(ctx context.Context, id string) (*project.Project, error)
}

// LinkStatus mirrors contact.AgentLink's status for the narrow gating check
// the Messaging Engine needs, without importing the full contact package
// surface.
type LinkStatus string

const (
	LinkNone     LinkStatus = ""
	LinkPending  LinkStatus = "pending"
	LinkApproved LinkStatus = "approved"
	LinkBlocked  LinkStatus = "blocked"
)

// ContactGate is the narrow contact-checking port the Messaging Engine
// consults for cross-project sends.
type ContactGate interface {
	LinkStatus(ctx context.Context, fromProjectID, fromAgentID, toProjectID, toAgentID string) (LinkStatus, error)
	RequestLink(ctx context.Context, fromProjectID, fromAgentID, toProjectID, toAgentID, reason string) error
}

// ConflictHolder names one active exclusive reservation holder overlapping
// a send's target paths.
type ConflictHolder struct {
	Agent     string    `json:"agent"`
	Pattern   string    `json:"pattern"`
	ExpiresTS time.Time `json:"expires_ts"`
	ID        string    `json:"id"`
}

// PathConflict groups holders by the pattern they collided on.
type PathConflict struct {
	Pattern string           `json:"pattern"`
	Holders []ConflictHolder `json:"holders"`
}

// ReservationGate is the narrow conflict-checking port the Messaging Engine
// consults before writing to a recipient's inbox path.
type ReservationGate interface {
	CheckConflicts(ctx context.Context, projectID, actingAgentID string, paths []string) ([]PathConflict, error)
}

// ProductResolver resolves the set of project ids linked to a product, for
// product-scoped inbox/search fan-out.
type ProductResolver interface {
	LinkedProjectIDs(ctx context.Context, productKey string) ([]string, error)
}

// ArchiveWriter journals a send to the per-project Git archive: the
// canonical message copy, each recipient's inbox copy, and any attachment
// files, in a single commit.
type ArchiveWriter interface {
	WriteMessage(ctx context.Context, input ArchiveMessageInput) error
	WriteSystemNotification(ctx context.Context, input ArchiveMessageInput) error
}

// ArchiveMessageInput carries everything the archive needs to stage and
// commit one send.
type ArchiveMessageInput struct {
	ProjectSlug    string
	Message        Message
	Recipients     []MessageRecipient
	RecipientNames map[string]string // agent id -> name, for inbox path construction
	SenderName     string
}

// TargetPaths returns every Archive-relative path a send will touch: the
// canonical message path plus each recipient's inbox copy. Used for the
// pre-write reservation conflict check.
func TargetPaths(canonicalPath string, recipientInboxPaths []string) []string {
	paths := make([]string, 0, 1+len(recipientInboxPaths))
	paths = append(paths, canonicalPath)
	paths = append(paths, recipientInboxPaths...)
	return paths
}
