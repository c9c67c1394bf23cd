package reservation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Config holds the subset of server configuration the Reservation Engine
// consults for force-release gating.
type Config struct {
	InactivitySeconds    int64
	ActivityGraceSeconds int64
}

// Holder names one active exclusive reservation holder overlapping a
// requested pattern or path.
type Holder struct {
	Agent     string    `json:"agent"`
	Pattern   string    `json:"pattern"`
	ExpiresTS time.Time `json:"expires_ts"`
	ID        string    `json:"id"`
}

// Conflict groups holders colliding with one requested pattern.
type Conflict struct {
	Pattern string   `json:"pattern"`
	Holders []Holder `json:"holders"`
}

// Service implements grant/release/renew/force-release for file reservations.
type Service struct {
	repo     Repository
	matcher  PatternMatcher
	agents   AgentResolver
	projects ProjectResolver
	notifier NotificationSender
	archive  ArchiveWriter
	cfg      Config
	logger   *slog.Logger
}

func NewService(repo Repository, matcher PatternMatcher, agents AgentResolver, projects ProjectResolver, notifier NotificationSender, archive ArchiveWriter, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, matcher: matcher, agents: agents, projects: projects, notifier: notifier, archive: archive, cfg: cfg, logger: logger}
}

// GrantResult is file_reservation_paths's response shape.
type GrantResult struct {
	Granted   []FileReservation
	Conflicts []Conflict
}

// GrantPaths implements file_reservation_paths. The call always grants the
// new reservations; conflicts are advisory reporting only.
func (s *Service) GrantPaths(ctx context.Context, projectSlug, projectID, agentID string, paths []string, ttlSeconds int64, exclusive bool, reason string) (*GrantResult, error) {
	if len(paths) == 0 || ttlSeconds <= 0 {
		return nil, ErrInvalidInput
	}

	now := time.Now()
	expires := now.Add(time.Duration(ttlSeconds) * time.Second)

	conflicts, err := s.checkConflicts(ctx, projectID, agentID, paths)
	if err != nil {
		return nil, err
	}

	granted := make([]FileReservation, 0, len(paths))
	for _, p := range paths {
		granted = append(granted, FileReservation{
			ID:          uuid.NewString(),
			ProjectID:   projectID,
			AgentID:     agentID,
			PathPattern: normalizePath(p),
			Exclusive:   exclusive,
			Reason:      reason,
			CreatedTS:   now,
			ExpiresTS:   expires,
		})
	}

	refs := make([]*FileReservation, len(granted))
	for i := range granted {
		refs[i] = &granted[i]
	}
	if err := s.repo.GrantBatch(ctx, refs); err != nil {
		return nil, fmt.Errorf("granting reservations: %w", err)
	}

	if err := s.archive.WriteReservations(ctx, projectSlug, granted, "reserve"); err != nil {
		s.logger.Warn("archive write pending for reservation grant", "error", err)
	}

	return &GrantResult{Granted: granted, Conflicts: conflicts}, nil
}

// CheckConflicts exposes the conflict-detection step for other engines
// (e.g. the Messaging Engine's pre-write gate) without granting anything.
// It implements the messaging.ReservationGate surface.
func (s *Service) CheckConflicts(ctx context.Context, projectID, actingAgentID string, paths []string) ([]Conflict, error) {
	return s.checkConflicts(ctx, projectID, actingAgentID, paths)
}

func (s *Service) checkConflicts(ctx context.Context, projectID, actingAgentID string, paths []string) ([]Conflict, error) {
	active, err := s.repo.ActiveConflicts(ctx, projectID, paths, actingAgentID)
	if err != nil {
		return nil, fmt.Errorf("loading active reservations: %w", err)
	}

	var conflicts []Conflict
	for _, requested := range paths {
		var holders []Holder
		for _, res := range active {
			if !res.Exclusive || res.AgentID == actingAgentID {
				continue
			}
			if s.matcher.MatchPath(res.PathPattern, requested, false) || s.matcher.PatternsOverlap(res.PathPattern, requested) {
				holders = append(holders, Holder{Agent: res.AgentID, Pattern: res.PathPattern, ExpiresTS: res.ExpiresTS, ID: res.ID})
			}
		}
		if len(holders) > 0 {
			conflicts = append(conflicts, Conflict{Pattern: requested, Holders: holders})
		}
	}
	return conflicts, nil
}

// ListActiveReservations resolves a project by slug and returns its active
// reservations, for the read-only file_reservations/<slug> resource.
func (s *Service) ListActiveReservations(ctx context.Context, projectSlug string) ([]FileReservation, error) {
	proj, err := s.projects.GetBySlug(ctx, projectSlug)
	if err != nil {
		return nil, fmt.Errorf("resolving project: %w", err)
	}
	return s.repo.ListActive(ctx, proj.ID)
}

// Release implements release_file_reservations.
func (s *Service) Release(ctx context.Context, projectSlug, projectID, agentID string, paths []string) (int, error) {
	if len(paths) == 0 {
		return 0, ErrInvalidInput
	}

	active, err := s.repo.ListActiveByAgent(ctx, projectID, agentID, paths)
	if err != nil {
		return 0, fmt.Errorf("loading active reservations: %w", err)
	}
	if len(active) == 0 {
		return 0, nil
	}

	ids := make([]string, len(active))
	for i, r := range active {
		ids[i] = r.ID
	}
	now := time.Now()
	if err := s.repo.ReleaseByIDs(ctx, ids, now); err != nil {
		return 0, fmt.Errorf("releasing reservations: %w", err)
	}

	for i := range active {
		released := now
		active[i].ReleasedTS = &released
	}
	if err := s.archive.WriteReservations(ctx, projectSlug, active, "release"); err != nil {
		s.logger.Warn("archive write pending for reservation release", "error", err)
	}

	return len(active), nil
}

// Renew implements renew_file_reservations: expires_ts := max(expires_ts, now + extend_seconds).
func (s *Service) Renew(ctx context.Context, projectSlug, projectID, agentID string, paths []string, extendSeconds int64) (int, error) {
	if len(paths) == 0 || extendSeconds <= 0 {
		return 0, ErrInvalidInput
	}

	active, err := s.repo.ListActiveByAgent(ctx, projectID, agentID, paths)
	if err != nil {
		return 0, fmt.Errorf("loading active reservations: %w", err)
	}

	now := time.Now()
	candidate := now.Add(time.Duration(extendSeconds) * time.Second)
	renewed := make([]FileReservation, 0, len(active))
	for _, r := range active {
		newExpiry := r.ExpiresTS
		if candidate.After(newExpiry) {
			newExpiry = candidate
		}
		if err := s.repo.UpdateExpiry(ctx, r.ID, newExpiry); err != nil {
			return 0, fmt.Errorf("renewing reservation %s: %w", r.ID, err)
		}
		r.ExpiresTS = newExpiry
		renewed = append(renewed, r)
	}

	if len(renewed) > 0 {
		if err := s.archive.WriteReservations(ctx, projectSlug, renewed, "renew"); err != nil {
			s.logger.Warn("archive write pending for reservation renewal", "error", err)
		}
	}

	return len(renewed), nil
}

// ForceRelease implements force_release_file_reservation. Allowed only
// when the holder has been inactive beyond InactivitySeconds AND the
// reservation's archive sidecar hasn't been touched within
// ActivityGraceSeconds — the source enforces both conditions, not either
//.
func (s *Service) ForceRelease(ctx context.Context, projectSlug, projectID, requesterAgentID, reservationID string) error {
	res, err := s.repo.GetByID(ctx, reservationID)
	if err != nil {
		return fmt.Errorf("loading reservation: %w", err)
	}
	if res.ProjectID != projectID {
		return ErrReservationNotFound
	}
	now := time.Now()
	if !res.IsActive(now) {
		return ErrNotStale
	}

	holder, err := s.agents.GetByID(ctx, res.AgentID)
	if err != nil {
		return fmt.Errorf("loading holder: %w", err)
	}

	inactiveFor := now.Sub(holder.LastActiveTS)
	if inactiveFor < time.Duration(s.cfg.InactivitySeconds)*time.Second {
		return ErrNotStale
	}

	touchedAt, err := s.archive.SidecarTouchedAt(ctx, projectSlug, reservationID)
	if err == nil {
		sinceTouch := now.Sub(touchedAt)
		if sinceTouch < time.Duration(s.cfg.ActivityGraceSeconds)*time.Second {
			return ErrNotStale
		}
	}

	if err := s.repo.ReleaseByIDs(ctx, []string{reservationID}, now); err != nil {
		return fmt.Errorf("force-releasing reservation: %w", err)
	}
	res.ReleasedTS = &now

	if err := s.archive.WriteReservations(ctx, projectSlug, []FileReservation{*res}, "force-release"); err != nil {
		s.logger.Warn("archive write pending for force-release", "error", err)
	}

	if s.notifier != nil {
		subject := fmt.Sprintf("Released stale lock: %s", res.PathPattern)
		body := fmt.Sprintf(
			"Your reservation on `%s` was force-released by %s because it had been inactive for %s.",
			res.PathPattern, requesterAgentID, inactiveFor.Round(time.Second),
		)
		if err := s.notifier.SendSystemNotification(ctx, projectID, res.AgentID, subject, body); err != nil {
			s.logger.Warn("sending force-release notification", "error", err)
		}
	}

	return nil
}

// Sweep implements the background reservation-expiry sweep. SweepExpired operates across every project in one
// transaction, so the results are grouped by project here before being
// archived — each project gets its own single commit, and one project's
// archive failure doesn't block another's.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	expired, err := s.repo.SweepExpired(ctx, time.Now())
	if err != nil {
		return 0, fmt.Errorf("sweeping expired reservations: %w", err)
	}
	if len(expired) == 0 {
		return 0, nil
	}

	byProject := make(map[string][]FileReservation)
	order := make([]string, 0)
	for _, res := range expired {
		if _, ok := byProject[res.ProjectID]; !ok {
			order = append(order, res.ProjectID)
		}
		byProject[res.ProjectID] = append(byProject[res.ProjectID], res)
	}

	for _, projectID := range order {
		proj, err := s.projects.GetByID(ctx, projectID)
		if err != nil {
			s.logger.Warn("resolving project for reservation sweep archive write", "project_id", projectID, "error", err)
			continue
		}
		if err := s.archive.WriteReservations(ctx, proj.Slug, byProject[projectID], "expire"); err != nil {
			s.logger.Warn("archive write pending for reservation sweep", "project_id", projectID, "error", err)
		}
	}
	return len(expired), nil
}

func normalizePath(p string) string {
	return strings.TrimPrefix(strings.TrimSpace(p), "/")
}
