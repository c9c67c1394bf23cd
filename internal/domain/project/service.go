package project

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

// Service handles project operations: the Identity Engine's notion of
// "which working copy is this" lives here, one level below agents.
type Service struct {
	repo          Repository
	rekey         Rekeyer
	archiveMerger ArchiveMerger
	logger        *slog.Logger
}

// NewService creates a new project service. rekey and archiveMerger are
// only consulted by Adopt and may be nil for callers that never invoke
// it (Adopt then plans but never applies).
func NewService(repo Repository, rekey Rekeyer, archiveMerger ArchiveMerger, logger *slog.Logger) *Service {
	return &Service{repo: repo, rekey: rekey, archiveMerger: archiveMerger, logger: logger}
}

// Ensure implements ensure_project: idempotent by (canonicalized) slug.
// Repeated calls with the same human_key never create duplicates
//.
func (s *Service) Ensure(ctx context.Context, humanKey string) (*Project, error) {
	if strings.TrimSpace(humanKey) == "" {
		return nil, ErrInvalidInput
	}

	canonical, slug := CanonicalizeKey(humanKey)

	existing, err := s.repo.GetBySlug(ctx, slug)
	if err == nil {
		if existing.HumanKey != canonical {
			if err := s.repo.UpdateHumanKey(ctx, existing.ID, canonical); err != nil {
				return nil, fmt.Errorf("updating human key: %w", err)
			}
			existing.HumanKey = canonical
		}
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("looking up project: %w", err)
	}

	proj := &Project{
		ID:        uuid.NewString(),
		Slug:      slug,
		HumanKey:  canonical,
		CreatedAt: time.Now(),
	}
	if err := s.repo.Create(ctx, proj); err != nil {
		if errors.Is(err, repository.ErrUniqueViolation) {
			// Lost a race with a concurrent Ensure of the same slug.
			return s.repo.GetBySlug(ctx, slug)
		}
		return nil, fmt.Errorf("creating project: %w", err)
	}
	return proj, nil
}

// GetBySlug fetches a project by its slug or raw human key (whichever was
// supplied as the recipient/project reference).
func (s *Service) GetBySlug(ctx context.Context, slugOrKey string) (*Project, error) {
	_, slug := CanonicalizeKey(slugOrKey)
	proj, err := s.repo.GetBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// The caller may have already passed a bare slug that isn't
			// path-shaped; try it unmodified too.
			proj, err = s.repo.GetBySlug(ctx, slugOrKey)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return nil, ErrProjectNotFound
				}
				return nil, fmt.Errorf("getting project: %w", err)
			}
			return proj, nil
		}
		return nil, fmt.Errorf("getting project: %w", err)
	}
	return proj, nil
}

// GetByID fetches a project by its internal id.
func (s *Service) GetByID(ctx context.Context, id string) (*Project, error) {
	proj, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("getting project: %w", err)
	}
	return proj, nil
}

// List returns project summaries.
func (s *Service) List(ctx context.Context) ([]Summary, error) {
	return s.repo.List(ctx)
}
