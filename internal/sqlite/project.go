package sqlite

import (
	"context"
	"fmt"

	"github.com/agentcoord/coordbus/internal/domain/project"
)

// ProjectRepository implements project.Repository for SQLite.
type ProjectRepository struct {
	db *DB
}

func NewProjectRepository(db *DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

func (r *ProjectRepository) Create(ctx context.Context, proj *project.Project) error {
	err := r.db.withRetry(ctx, func() error {
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO projects (id, slug, human_key, created_at) VALUES (?, ?, ?, ?)`,
			proj.ID, proj.Slug, proj.HumanKey, proj.CreatedAt)
		return err
	})
	if err != nil {
		return fmt.Errorf("creating project: %w", mapWriteError(err))
	}
	return nil
}

func (r *ProjectRepository) GetBySlug(ctx context.Context, slug string) (*project.Project, error) {
	var proj project.Project
	err := r.db.QueryRowContext(ctx,
		`SELECT id, slug, human_key, created_at FROM projects WHERE slug = ?`, slug,
	).Scan(&proj.ID, &proj.Slug, &proj.HumanKey, &proj.CreatedAt)
	if err != nil {
		return nil, mapReadError(err)
	}
	return &proj, nil
}

func (r *ProjectRepository) GetByID(ctx context.Context, id string) (*project.Project, error) {
	var proj project.Project
	err := r.db.QueryRowContext(ctx,
		`SELECT id, slug, human_key, created_at FROM projects WHERE id = ?`, id,
	).Scan(&proj.ID, &proj.Slug, &proj.HumanKey, &proj.CreatedAt)
	if err != nil {
		return nil, mapReadError(err)
	}
	return &proj, nil
}

func (r *ProjectRepository) UpdateHumanKey(ctx context.Context, id, humanKey string) error {
	return r.db.withRetry(ctx, func() error {
		_, err := r.db.ExecContext(ctx, `UPDATE projects SET human_key = ? WHERE id = ?`, humanKey, id)
		return err
	})
}

func (r *ProjectRepository) List(ctx context.Context) ([]project.Summary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT p.id, p.slug, p.human_key, p.created_at,
		       (SELECT COUNT(*) FROM agents a WHERE a.project_id = p.id) AS agent_count,
		       (SELECT COUNT(*) FROM messages m WHERE m.project_id = p.id) AS message_count
		FROM projects p
		ORDER BY p.created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	defer rows.Close()

	var summaries []project.Summary
	for rows.Next() {
		var s project.Summary
		if err := rows.Scan(&s.ID, &s.Slug, &s.HumanKey, &s.CreatedAt, &s.AgentCount, &s.MessageCount); err != nil {
			return nil, fmt.Errorf("scanning project summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}
