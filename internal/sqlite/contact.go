package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/agentcoord/coordbus/internal/domain/contact"
)

// ContactRepository implements contact.Repository for SQLite.
type ContactRepository struct {
	db *DB
}

func NewContactRepository(db *DB) *ContactRepository {
	return &ContactRepository{db: db}
}

const linkColumns = `id, a_project_id, a_agent_id, b_project_id, b_agent_id, status, reason, created_ts, responded_ts, expires_ts`

func scanLink(scan func(...any) error) (*contact.AgentLink, error) {
	var l contact.AgentLink
	var status string
	var responded, expires sql.NullTime
	if err := scan(&l.ID, &l.AProjectID, &l.AAgentID, &l.BProjectID, &l.BAgentID,
		&status, &l.Reason, &l.CreatedTS, &responded, &expires); err != nil {
		return nil, err
	}
	l.Status = contact.LinkStatus(status)
	if responded.Valid {
		l.RespondedTS = &responded.Time
	}
	if expires.Valid {
		l.ExpiresTS = &expires.Time
	}
	return &l, nil
}

func (r *ContactRepository) Upsert(ctx context.Context, link *contact.AgentLink) error {
	var responded, expires any
	if link.RespondedTS != nil {
		responded = *link.RespondedTS
	}
	if link.ExpiresTS != nil {
		expires = *link.ExpiresTS
	}
	err := r.db.withRetry(ctx, func() error {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO agent_links (id, a_project_id, a_agent_id, b_project_id, b_agent_id, status, reason, created_ts, responded_ts, expires_ts)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (a_project_id, a_agent_id, b_project_id, b_agent_id) DO UPDATE SET
				status = excluded.status,
				reason = excluded.reason,
				responded_ts = excluded.responded_ts,
				expires_ts = excluded.expires_ts
		`, link.ID, link.AProjectID, link.AAgentID, link.BProjectID, link.BAgentID,
			string(link.Status), link.Reason, link.CreatedTS, responded, expires)
		return err
	})
	if err != nil {
		return fmt.Errorf("upserting agent link: %w", mapWriteError(err))
	}
	return nil
}

func (r *ContactRepository) GetDirected(ctx context.Context, aProjectID, aAgentID, bProjectID, bAgentID string) (*contact.AgentLink, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+linkColumns+` FROM agent_links
		WHERE a_project_id = ? AND a_agent_id = ? AND b_project_id = ? AND b_agent_id = ?
	`, aProjectID, aAgentID, bProjectID, bAgentID)
	link, err := scanLink(row.Scan)
	if err != nil {
		return nil, mapReadError(err)
	}
	return link, nil
}

func (r *ContactRepository) ListOutbound(ctx context.Context, projectID, agentID string) ([]contact.AgentLink, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+linkColumns+` FROM agent_links
		WHERE a_project_id = ? AND a_agent_id = ?
		ORDER BY created_ts DESC
	`, projectID, agentID)
	if err != nil {
		return nil, fmt.Errorf("listing outbound links: %w", err)
	}
	defer rows.Close()

	var out []contact.AgentLink
	for rows.Next() {
		link, err := scanLink(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning agent link: %w", err)
		}
		out = append(out, *link)
	}
	return out, rows.Err()
}
