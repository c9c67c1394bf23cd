package reservation

import (
	"context"
	"time"

	"github.com/agentcoord/coordbus/internal/domain/identity"
	"github.com/agentcoord/coordbus/internal/domain/project"
)

// Repository is the Catalog-facing persistence port for reservations.
type Repository interface {
	GrantBatch(ctx context.Context, reservations []*FileReservation) error
	GetByID(ctx context.Context, id string) (*FileReservation, error)
	ActiveConflicts(ctx context.Context, projectID string, paths []string, excludeAgentID string) ([]FileReservation, error)
	ListActiveByAgent(ctx context.Context, projectID, agentID string, patterns []string) ([]FileReservation, error)
	ListActive(ctx context.Context, projectID string) ([]FileReservation, error)
	ReleaseByIDs(ctx context.Context, ids []string, releasedAt time.Time) error
	UpdateExpiry(ctx context.Context, id string, expiresTS time.Time) error
	SweepExpired(ctx context.Context, now time.Time) ([]FileReservation, error)
}

// PatternMatcher is the narrow surface of internal/matching.Matcher the
// Reservation Engine needs: concrete-path matching for conflict checks and
// grant-time exclusivity, and pattern-vs-pattern overlap for a path list
// that itself contains patterns (e.g. a send's recipient-inbox globs).
type PatternMatcher interface {
	MatchPath(pattern, concretePath string, isDir bool) bool
	MatchAnyPath(pattern string, paths []string) bool
	PatternsOverlap(a, b string) bool
}

// AgentResolver resolves an agent's last-activity timestamp for the
// force-release staleness check.
type AgentResolver interface {
	GetByID(ctx context.Context, agentID string) (*identity.Agent, error)
}

// ProjectResolver resolves a project's slug by ID, for grouping the
// cross-project sweep's archive writes, and by slug for read lookups.
type ProjectResolver interface {
	GetByID(ctx context.Context, id string) (*project.Project, error)
	GetBySlug(ctx context.Context, slugOrKey string) (*project.Project, error)
}

// NotificationSender lets the Reservation Engine deliver a system message
// to a reservation's original holder (e.g. on force-release) without
// importing the Messaging Engine directly.
type NotificationSender interface {
	SendSystemNotification(ctx context.Context, projectID, recipientAgentID, subject, body string) error
}

// ArchiveWriter journals reservation grants/releases/renewals to the
// per-project archive's file_reservations/ sidecars, batched into one
// commit per call.
type ArchiveWriter interface {
	WriteReservations(ctx context.Context, projectSlug string, reservations []FileReservation, verb string) error
	// SidecarTouchedAt returns when a reservation's sidecar file was last
	// written, for the force-release activity-grace check.
	SidecarTouchedAt(ctx context.Context, projectSlug, reservationID string) (time.Time, error)
}
