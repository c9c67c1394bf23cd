package contact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/agentcoord/coordbus/internal/repository"
	"github.com/google/uuid"
)

// Config holds contact-related server settings.
type Config struct {
	AutoTTLSeconds int64
}

// Service implements request/respond/list/link-status for the contact engine.
type Service struct {
	repo     Repository
	notifier NotificationSender
	cfg      Config
	logger   *slog.Logger
}

func NewService(repo Repository, notifier NotificationSender, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, notifier: notifier, cfg: cfg, logger: logger}
}

// RequestContact implements request_contact: creates or refreshes a
// pending link and notifies the target.
func (s *Service) RequestContact(ctx context.Context, fromProjectID, fromAgentID, toProjectID, toAgentID, reason string) (*AgentLink, error) {
	if strings.TrimSpace(fromAgentID) == "" || strings.TrimSpace(toAgentID) == "" {
		return nil, ErrInvalidInput
	}

	existing, err := s.repo.GetDirected(ctx, fromProjectID, fromAgentID, toProjectID, toAgentID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("loading existing link: %w", err)
	}

	now := time.Now()
	link := existing
	if link == nil {
		link = &AgentLink{
			ID:         uuid.NewString(),
			AProjectID: fromProjectID,
			AAgentID:   fromAgentID,
			BProjectID: toProjectID,
			BAgentID:   toAgentID,
			CreatedTS:  now,
		}
	}
	if link.Status != StatusApproved {
		link.Status = StatusPending
	}
	link.Reason = reason

	if err := s.repo.Upsert(ctx, link); err != nil {
		return nil, fmt.Errorf("saving contact link: %w", err)
	}

	if s.notifier != nil {
		subject := "Contact request"
		body := fmt.Sprintf("A cross-project contact request was opened: %s", reason)
		if err := s.notifier.SendSystemNotification(ctx, toProjectID, toAgentID, subject, body); err != nil {
			s.logger.Warn("sending contact request notification", "error", err)
		}
	}

	return link, nil
}

// RespondContact implements respond_contact: flips pending -> approved or
// blocked, with an expiry when approving.
func (s *Service) RespondContact(ctx context.Context, fromProjectID, fromAgentID, toProjectID, toAgentID string, accept bool, ttlSeconds int64) (*AgentLink, error) {
	link, err := s.repo.GetDirected(ctx, fromProjectID, fromAgentID, toProjectID, toAgentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("loading contact link: %w", err)
	}

	now := time.Now()
	link.RespondedTS = &now
	if accept {
		link.Status = StatusApproved
		ttl := ttlSeconds
		if ttl <= 0 {
			ttl = s.cfg.AutoTTLSeconds
		}
		if ttl > 0 {
			expires := now.Add(time.Duration(ttl) * time.Second)
			link.ExpiresTS = &expires
		}
	} else {
		link.Status = StatusBlocked
		link.ExpiresTS = nil
	}

	if err := s.repo.Upsert(ctx, link); err != nil {
		return nil, fmt.Errorf("saving contact link: %w", err)
	}
	return link, nil
}

// ListContacts implements list_contacts: outbound links from (project, agent).
func (s *Service) ListContacts(ctx context.Context, projectID, agentID string) ([]AgentLink, error) {
	return s.repo.ListOutbound(ctx, projectID, agentID)
}

// LinkStatus reports the current status of a directed link, or the empty
// status when no link exists or an approved link has expired. It backs the
// Messaging Engine's contact gate.
func (s *Service) LinkStatus(ctx context.Context, fromProjectID, fromAgentID, toProjectID, toAgentID string) (LinkStatus, error) {
	link, err := s.repo.GetDirected(ctx, fromProjectID, fromAgentID, toProjectID, toAgentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("loading contact link: %w", err)
	}
	now := time.Now()
	if link.Status == StatusApproved && link.ExpiresTS != nil && !link.ExpiresTS.After(now) {
		return "", nil
	}
	return link.Status, nil
}
