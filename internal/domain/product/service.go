package product

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/agentcoord/coordbus/internal/repository"
	"github.com/google/uuid"
)

var uidPattern = regexp.MustCompile(`^[a-f0-9]{8}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{12}$`)

// Service implements the Product Bus: ensure_product / link_project /
// product_status.
type Service struct {
	repo     Repository
	projects ProjectResolver
	logger   *slog.Logger
}

func NewService(repo Repository, projects ProjectResolver, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, projects: projects, logger: logger}
}

// Ensure implements ensure_product: idempotent by uid or name, creating the
// product if neither matches an existing row.
func (s *Service) Ensure(ctx context.Context, productKey, name string) (*Product, error) {
	key := strings.TrimSpace(productKey)
	if key == "" {
		key = strings.TrimSpace(name)
	}
	if key == "" {
		return nil, ErrInvalidInput
	}

	if existing, err := s.repo.GetByUIDOrName(ctx, key); err == nil {
		return existing, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("looking up product: %w", err)
	}

	uid := key
	displayName := name
	if strings.TrimSpace(productKey) == "" && !uidPattern.MatchString(strings.ToLower(key)) {
		uid = uuid.NewString()
		if displayName == "" {
			displayName = key
		}
	}
	if displayName == "" {
		displayName = uid
	}

	prod := &Product{
		ID:        uuid.NewString(),
		UID:       uid,
		Name:      displayName,
		CreatedTS: time.Now(),
	}
	if err := s.repo.Create(ctx, prod); err != nil {
		if errors.Is(err, repository.ErrUniqueViolation) {
			return s.repo.GetByUIDOrName(ctx, key)
		}
		return nil, fmt.Errorf("creating product: %w", err)
	}
	return prod, nil
}

// LinkProject implements the "products link" operation: idempotently
// associates a project with a product.
func (s *Service) LinkProject(ctx context.Context, productKey, projectKey string) (*Product, ProjectRef, error) {
	prod, err := s.repo.GetByUIDOrName(ctx, productKey)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ProjectRef{}, ErrProductNotFound
		}
		return nil, ProjectRef{}, fmt.Errorf("looking up product: %w", err)
	}

	proj, err := s.projects.GetBySlug(ctx, projectKey)
	if err != nil {
		return nil, ProjectRef{}, fmt.Errorf("resolving project: %w", err)
	}

	link := &ProjectLink{ProductID: prod.ID, ProjectID: proj.ID, LinkedTS: time.Now()}
	if err := s.repo.LinkProject(ctx, link); err != nil {
		return nil, ProjectRef{}, fmt.Errorf("linking project to product: %w", err)
	}
	return prod, proj, nil
}

// Status implements "products status": the product plus its linked project ids.
func (s *Service) Status(ctx context.Context, productKey string) (*Status, error) {
	prod, err := s.repo.GetByUIDOrName(ctx, productKey)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("looking up product: %w", err)
	}

	ids, err := s.repo.ListLinkedProjectIDs(ctx, prod.ID)
	if err != nil {
		return nil, fmt.Errorf("listing linked projects: %w", err)
	}
	return &Status{Product: *prod, ProjectIDs: ids}, nil
}

// LinkedProjectIDs exposes the linked project id set for product-wide
// inbox/search callers (the Messaging Engine, when a caller addresses a
// product instead of a single project).
func (s *Service) LinkedProjectIDs(ctx context.Context, productKey string) ([]string, error) {
	prod, err := s.repo.GetByUIDOrName(ctx, productKey)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("looking up product: %w", err)
	}
	return s.repo.ListLinkedProjectIDs(ctx, prod.ID)
}
