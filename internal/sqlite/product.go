package sqlite

import (
	"context"
	"fmt"

	"github.com/agentcoord/coordbus/internal/domain/product"
)

// ProductRepository implements product.Repository for SQLite.
type ProductRepository struct {
	db *DB
}

func NewProductRepository(db *DB) *ProductRepository {
	return &ProductRepository{db: db}
}

func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	err := r.db.withRetry(ctx, func() error {
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO products (id, product_uid, name, created_ts) VALUES (?, ?, ?, ?)`,
			p.ID, p.UID, p.Name, p.CreatedTS)
		return err
	})
	if err != nil {
		return fmt.Errorf("creating product: %w", mapWriteError(err))
	}
	return nil
}

func (r *ProductRepository) GetByUIDOrName(ctx context.Context, key string) (*product.Product, error) {
	var p product.Product
	err := r.db.QueryRowContext(ctx,
		`SELECT id, product_uid, name, created_ts FROM products WHERE product_uid = ? OR name = ?`,
		key, key,
	).Scan(&p.ID, &p.UID, &p.Name, &p.CreatedTS)
	if err != nil {
		return nil, mapReadError(err)
	}
	return &p, nil
}

func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	var p product.Product
	err := r.db.QueryRowContext(ctx,
		`SELECT id, product_uid, name, created_ts FROM products WHERE id = ?`, id,
	).Scan(&p.ID, &p.UID, &p.Name, &p.CreatedTS)
	if err != nil {
		return nil, mapReadError(err)
	}
	return &p, nil
}

func (r *ProductRepository) LinkProject(ctx context.Context, link *product.ProjectLink) error {
	err := r.db.withRetry(ctx, func() error {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO product_project_links (product_id, project_id, linked_ts)
			VALUES (?, ?, ?)
			ON CONFLICT (product_id, project_id) DO NOTHING
		`, link.ProductID, link.ProjectID, link.LinkedTS)
		return err
	})
	if err != nil {
		return fmt.Errorf("linking project to product: %w", mapWriteError(err))
	}
	return nil
}

func (r *ProductRepository) ListLinkedProjectIDs(ctx context.Context, productID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT project_id FROM product_project_links WHERE product_id = ? ORDER BY linked_ts ASC`, productID)
	if err != nil {
		return nil, fmt.Errorf("listing linked projects: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning linked project id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
