package identity

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

const maxNameGenerationAttempts = 8

// Service handles agent registration, resolution, and window binding.
type Service struct {
	repo    Repository
	windows WindowRepository
	commits CommitHistory
	logger  *slog.Logger
}

func NewService(repo Repository, windows WindowRepository, commits CommitHistory, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, windows: windows, commits: commits, logger: logger}
}

// RecentCommits backs whois's include_recent_commits option. It's a
// best-effort lookup: a project whose human_key isn't a real git working
// copy, or that has no CommitHistory configured, yields an empty list
// rather than an error.
func (s *Service) RecentCommits(ctx context.Context, repoPath string, limit int) ([]RecentCommit, error) {
	if s.commits == nil {
		return nil, nil
	}
	commits, err := s.commits.RecentCommits(ctx, repoPath, limit)
	if err != nil {
		s.logger.Debug("recent commits lookup failed", "repo_path", repoPath, "error", err)
		return nil, nil
	}
	return commits, nil
}

// RegisterRequest describes a register_agent call.
type RegisterRequest struct {
	ProjectID         string
	Name              string
	Program           string
	Model             string
	TaskDescription   string
	AttachmentsPolicy AttachmentsPolicy
	ContactPolicy     ContactPolicy
}

// Register implements register_agent: idempotent on (project_id, name) —
// a second registration under the same name refreshes the profile fields
// rather than failing.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Agent, error) {
	if strings.TrimSpace(req.ProjectID) == "" || strings.TrimSpace(req.Program) == "" || strings.TrimSpace(req.Model) == "" {
		return nil, ErrInvalidInput
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		generated, err := GenerateName()
		if err != nil {
			return nil, fmt.Errorf("generating name: %w", err)
		}
		name = generated
	}

	attachPolicy := req.AttachmentsPolicy
	if attachPolicy == "" {
		attachPolicy = AttachmentsAuto
	}
	if !validAttachmentsPolicy(attachPolicy) {
		return nil, ErrInvalidPolicy
	}
	contactPolicy := req.ContactPolicy
	if contactPolicy == "" {
		contactPolicy = ContactAuto
	}
	if !validContactPolicy(contactPolicy) {
		return nil, ErrInvalidPolicy
	}

	existing, err := s.repo.GetByName(ctx, req.ProjectID, name)
	if err == nil {
		existing.Program = req.Program
		existing.Model = req.Model
		if req.TaskDescription != "" {
			existing.TaskDescription = req.TaskDescription
		}
		existing.AttachmentsPolicy = attachPolicy
		existing.ContactPolicy = contactPolicy
		existing.LastActiveTS = time.Now()
		if err := s.repo.Update(ctx, existing); err != nil {
			return nil, fmt.Errorf("updating agent: %w", err)
		}
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("looking up agent: %w", err)
	}

	now := time.Now()
	agent := &Agent{
		ID:                uuid.NewString(),
		ProjectID:         req.ProjectID,
		Name:              name,
		Program:           req.Program,
		Model:             req.Model,
		TaskDescription:   req.TaskDescription,
		InceptionTS:       now,
		LastActiveTS:      now,
		AttachmentsPolicy: attachPolicy,
		ContactPolicy:     contactPolicy,
		RegistrationToken: uuid.NewString(),
	}
	if err := s.repo.Create(ctx, agent); err != nil {
		if errors.Is(err, repository.ErrUniqueViolation) {
			return s.repo.GetByName(ctx, req.ProjectID, name)
		}
		return nil, fmt.Errorf("creating agent: %w", err)
	}
	return agent, nil
}

// CreateIdentityRequest describes a create_agent_identity call: like
// Register but always mints a fresh name, retrying on collision.
type CreateIdentityRequest struct {
	ProjectID       string
	Program         string
	Model           string
	NameHint        string
	TaskDescription string
}

// CreateIdentity implements create_agent_identity.
func (s *Service) CreateIdentity(ctx context.Context, req CreateIdentityRequest) (*Agent, error) {
	if strings.TrimSpace(req.ProjectID) == "" || strings.TrimSpace(req.Program) == "" || strings.TrimSpace(req.Model) == "" {
		return nil, ErrInvalidInput
	}

	candidate := strings.TrimSpace(req.NameHint)
	for attempt := 0; attempt < maxNameGenerationAttempts; attempt++ {
		if candidate == "" {
			generated, err := GenerateName()
			if err != nil {
				return nil, fmt.Errorf("generating name: %w", err)
			}
			candidate = generated
		}

		_, err := s.repo.GetByName(ctx, req.ProjectID, candidate)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				break
			}
			return nil, fmt.Errorf("looking up agent: %w", err)
		}
		// Name taken; try again with a fresh generated name.
		candidate = ""
	}

	now := time.Now()
	agent := &Agent{
		ID:                uuid.NewString(),
		ProjectID:         req.ProjectID,
		Name:              candidate,
		Program:           req.Program,
		Model:             req.Model,
		TaskDescription:   req.TaskDescription,
		InceptionTS:       now,
		LastActiveTS:      now,
		AttachmentsPolicy: AttachmentsAuto,
		ContactPolicy:     ContactAuto,
		RegistrationToken: uuid.NewString(),
	}
	if err := s.repo.Create(ctx, agent); err != nil {
		return nil, fmt.Errorf("creating agent: %w", err)
	}
	return agent, nil
}

// GetByID resolves an agent by its internal id.
func (s *Service) GetByID(ctx context.Context, agentID string) (*Agent, error) {
	agent, err := s.repo.GetByID(ctx, agentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAgentNotFound
		}
		return nil, fmt.Errorf("getting agent: %w", err)
	}
	return agent, nil
}

// Whois implements whois: resolve an agent by case-insensitive name.
func (s *Service) Whois(ctx context.Context, projectID, name string) (*Agent, error) {
	agent, err := s.repo.GetByName(ctx, projectID, name)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAgentNotFound
		}
		return nil, fmt.Errorf("looking up agent: %w", err)
	}
	return agent, nil
}

// ResolveOrAutoCreate loads an agent by name, optionally creating a stub
// when missing — the send-path recipient resolution behavior gated by
// messaging_auto_register_recipients.
func (s *Service) ResolveOrAutoCreate(ctx context.Context, projectID, name string, autoCreate bool) (*Agent, error) {
	agent, err := s.repo.GetByName(ctx, projectID, name)
	if err == nil {
		return agent, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("looking up agent: %w", err)
	}
	if !autoCreate {
		return nil, ErrAgentNotFound
	}

	now := time.Now()
	stub := &Agent{
		ID:                uuid.NewString(),
		ProjectID:         projectID,
		Name:              name,
		Program:           "unknown",
		Model:             "unknown",
		InceptionTS:       now,
		LastActiveTS:      now,
		AttachmentsPolicy: AttachmentsAuto,
		ContactPolicy:     ContactAuto,
		Stub:              true,
	}
	if err := s.repo.Create(ctx, stub); err != nil {
		if errors.Is(err, repository.ErrUniqueViolation) {
			return s.repo.GetByName(ctx, projectID, name)
		}
		return nil, fmt.Errorf("creating stub agent: %w", err)
	}
	return stub, nil
}

// SetContactPolicy implements set_contact_policy.
func (s *Service) SetContactPolicy(ctx context.Context, projectID, name string, policy ContactPolicy) error {
	if !validContactPolicy(policy) {
		return ErrInvalidPolicy
	}
	agent, err := s.repo.GetByName(ctx, projectID, name)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrAgentNotFound
		}
		return fmt.Errorf("looking up agent: %w", err)
	}
	agent.ContactPolicy = policy
	if err := s.repo.Update(ctx, agent); err != nil {
		return fmt.Errorf("updating agent: %w", err)
	}
	return nil
}

// TouchLastActive is called by tool dispatch on every successful tool call.
func (s *Service) TouchLastActive(ctx context.Context, agentID string) error {
	if err := s.repo.TouchLastActive(ctx, agentID); err != nil {
		return fmt.Errorf("touching last active: %w", err)
	}
	return nil
}

// BindWindow implements the persistent per-terminal-window identity
// binding: the same window_uuid in the same project always resolves to
// display_name, across process restarts.
func (s *Service) BindWindow(ctx context.Context, projectID, windowUUID, displayName string, ttl time.Duration) (*WindowIdentity, error) {
	if windowUUID == "" {
		return nil, ErrInvalidInput
	}

	existing, err := s.windows.Get(ctx, projectID, windowUUID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("loading window identity: %w", err)
	}

	now := time.Now()
	var expires *time.Time
	if ttl > 0 {
		t := now.Add(ttl)
		expires = &t
	}

	if existing != nil {
		existing.LastActiveTS = now
		if expires != nil {
			existing.ExpiresTS = expires
		}
		if displayName != "" {
			existing.DisplayName = displayName
		}
		if err := s.windows.Upsert(ctx, existing); err != nil {
			return nil, fmt.Errorf("updating window identity: %w", err)
		}
		return existing, nil
	}

	w := &WindowIdentity{
		ProjectID:    projectID,
		WindowUUID:   windowUUID,
		DisplayName:  displayName,
		LastActiveTS: now,
		ExpiresTS:    expires,
	}
	if err := s.windows.Upsert(ctx, w); err != nil {
		return nil, fmt.Errorf("creating window identity: %w", err)
	}
	return w, nil
}

func validAttachmentsPolicy(p AttachmentsPolicy) bool {
	switch p {
	case AttachmentsAuto, AttachmentsInline, AttachmentsFile, AttachmentsDrop:
		return true
	}
	return false
}

func validContactPolicy(p ContactPolicy) bool {
	switch p {
	case ContactOpen, ContactAuto, ContactContactsOnly, ContactBlockAll:
		return true
	}
	return false
}
