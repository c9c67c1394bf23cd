package sqlite

import (
	"context"
	"fmt"
)

// AdoptStore implements project.Rekeyer: re-keying every project-scoped
// row when adopt_project merges a source project into a target one.
type AdoptStore struct {
	db *DB
}

func NewAdoptStore(db *DB) *AdoptStore {
	return &AdoptStore{db: db}
}

// ConflictingAgentNames returns agent names registered under both
// projects — adopt_project refuses to apply while any exist, since
// re-keying would otherwise collide on the (project_id, name) unique
// constraint.
func (s *AdoptStore) ConflictingAgentNames(ctx context.Context, fromProjectID, toProjectID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name FROM agents WHERE project_id = ?
		INTERSECT
		SELECT name FROM agents WHERE project_id = ?
		ORDER BY name
	`, fromProjectID, toProjectID)
	if err != nil {
		return nil, fmt.Errorf("checking agent name conflicts: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning conflicting agent name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// RekeyProject re-points every row scoped to fromProjectID at
// toProjectID, across every table a project id appears in. Runs in one
// transaction so a partial adoption never lands in the catalog.
func (s *AdoptStore) RekeyProject(ctx context.Context, fromProjectID, toProjectID string) error {
	return s.db.withRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("beginning rekey transaction: %w", err)
		}
		defer tx.Rollback()

		stmts := []string{
			`UPDATE agents SET project_id = ? WHERE project_id = ?`,
			`UPDATE window_identities SET project_id = ? WHERE project_id = ?`,
			`UPDATE messages SET project_id = ? WHERE project_id = ?`,
			`UPDATE file_reservations SET project_id = ? WHERE project_id = ?`,
			`UPDATE product_project_links SET project_id = ? WHERE project_id = ?`,
			`UPDATE agent_links SET a_project_id = ? WHERE a_project_id = ?`,
			`UPDATE agent_links SET b_project_id = ? WHERE b_project_id = ?`,
		}
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt, toProjectID, fromProjectID); err != nil {
				return fmt.Errorf("rekeying project rows: %w", err)
			}
		}
		return tx.Commit()
	})
}
