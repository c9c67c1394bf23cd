package workers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/agentcoord/coordbus/internal/domain/identity"
	"github.com/agentcoord/coordbus/internal/domain/messaging"
	"github.com/agentcoord/coordbus/internal/domain/project"
	"github.com/agentcoord/coordbus/internal/domain/reservation"
)

// AckRepository is the narrow persistence surface the ACK TTL monitor needs.
type AckRepository interface {
	ListOverdueAcks(ctx context.Context, cutoff time.Time) ([]messaging.InboxItem, error)
}

// AgentLookup resolves agent identities for escalation bookkeeping.
type AgentLookup interface {
	GetByID(ctx context.Context, agentID string) (*identity.Agent, error)
	ResolveOrAutoCreate(ctx context.Context, projectID, name string, autoCreate bool) (*identity.Agent, error)
}

// ProjectLookup resolves a project's slug for escalation reservations.
type ProjectLookup interface {
	GetByID(ctx context.Context, id string) (*project.Project, error)
}

// ReservationGranter is the narrow surface of reservation.Service the
// escalation path needs to open a system-held reservation.
type ReservationGranter interface {
	GrantPaths(ctx context.Context, projectSlug, projectID, agentID string, paths []string, ttlSeconds int64, exclusive bool, reason string) (*reservation.GrantResult, error)
}

// AckTTLConfig parameterizes the monitor.
type AckTTLConfig struct {
	// AckTTL is how long ack_required messages may go unacknowledged before
	// a warning is logged.
	AckTTL time.Duration
	// EscalationEnabled also opens a system-held reservation on the
	// recipient's inbox surface, flagging the issue for other agents.
	EscalationEnabled bool
	// EscalationReservationTTL bounds how long that flagging reservation
	// lasts before it expires on its own via the sweep job.
	EscalationReservationTTL time.Duration
}

const systemAgentName = "system"

// AckTTLJob warns (and optionally escalates) on messages whose required
// acknowledgment hasn't arrived within AckTTL.
type AckTTLJob struct {
	repo     AckRepository
	agents   AgentLookup
	projects ProjectLookup
	reserver ReservationGranter
	cfg      AckTTLConfig
	logger   *slog.Logger
}

func NewAckTTLJob(repo AckRepository, agents AgentLookup, projects ProjectLookup, reserver ReservationGranter, cfg AckTTLConfig, logger *slog.Logger) *AckTTLJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &AckTTLJob{repo: repo, agents: agents, projects: projects, reserver: reserver, cfg: cfg, logger: logger}
}

func (j *AckTTLJob) Name() string { return "ack_ttl_monitor" }

func (j *AckTTLJob) Run(ctx context.Context) error {
	cutoff := time.Now().Add(-j.cfg.AckTTL)
	overdue, err := j.repo.ListOverdueAcks(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("listing overdue acks: %w", err)
	}

	for _, item := range overdue {
		age := time.Since(item.Message.CreatedTS)
		j.logger.Warn("message acknowledgment overdue",
			"message_id", item.Message.ID, "project_id", item.Message.ProjectID,
			"recipient_agent_id", item.Recipient.AgentID, "age", age.Round(time.Second))

		if j.cfg.EscalationEnabled {
			if err := j.escalate(ctx, item); err != nil {
				j.logger.Warn("ack escalation failed", "message_id", item.Message.ID, "error", err)
			}
		}
	}
	return nil
}

func (j *AckTTLJob) escalate(ctx context.Context, item messaging.InboxItem) error {
	proj, err := j.projects.GetByID(ctx, item.Message.ProjectID)
	if err != nil {
		return fmt.Errorf("resolving project: %w", err)
	}
	recipient, err := j.agents.GetByID(ctx, item.Recipient.AgentID)
	if err != nil {
		return fmt.Errorf("resolving recipient: %w", err)
	}
	system, err := j.agents.ResolveOrAutoCreate(ctx, item.Message.ProjectID, systemAgentName, true)
	if err != nil {
		return fmt.Errorf("resolving system agent: %w", err)
	}

	glob := messaging.RecipientInboxGlob(recipient.Name)
	reason := fmt.Sprintf("ack overdue for message #%d", item.Message.ID)
	ttlSeconds := int64(j.cfg.EscalationReservationTTL.Seconds())
	if _, err := j.reserver.GrantPaths(ctx, proj.Slug, item.Message.ProjectID, system.ID, []string{glob}, ttlSeconds, false, reason); err != nil {
		return fmt.Errorf("granting escalation reservation: %w", err)
	}
	return nil
}
