package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/agentcoord/coordbus/internal/domain/identity"
)

// AgentRepository implements identity.Repository for SQLite.
type AgentRepository struct {
	db *DB
}

func NewAgentRepository(db *DB) *AgentRepository {
	return &AgentRepository{db: db}
}

func (r *AgentRepository) Create(ctx context.Context, agent *identity.Agent) error {
	err := r.db.withRetry(ctx, func() error {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO agents (id, project_id, name, program, model, task_description,
				inception_ts, last_active_ts, attachments_policy, contact_policy,
				registration_token, is_stub)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			agent.ID, agent.ProjectID, agent.Name, agent.Program, agent.Model, agent.TaskDescription,
			agent.InceptionTS, agent.LastActiveTS, string(agent.AttachmentsPolicy), string(agent.ContactPolicy),
			nullableString(agent.RegistrationToken), agent.Stub)
		return err
	})
	if err != nil {
		return fmt.Errorf("creating agent: %w", mapWriteError(err))
	}
	return nil
}

func (r *AgentRepository) scanAgent(row *sql.Row) (*identity.Agent, error) {
	var a identity.Agent
	var attachPolicy, contactPolicy string
	var token sql.NullString
	var isStub bool
	err := row.Scan(&a.ID, &a.ProjectID, &a.Name, &a.Program, &a.Model, &a.TaskDescription,
		&a.InceptionTS, &a.LastActiveTS, &attachPolicy, &contactPolicy, &token, &isStub)
	if err != nil {
		return nil, mapReadError(err)
	}
	a.AttachmentsPolicy = identity.AttachmentsPolicy(attachPolicy)
	a.ContactPolicy = identity.ContactPolicy(contactPolicy)
	a.RegistrationToken = token.String
	a.Stub = isStub
	return &a, nil
}

const agentColumns = `id, project_id, name, program, model, task_description,
	inception_ts, last_active_ts, attachments_policy, contact_policy, registration_token, is_stub`

func (r *AgentRepository) GetByName(ctx context.Context, projectID, name string) (*identity.Agent, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE project_id = ? AND name = ?`, projectID, name)
	return r.scanAgent(row)
}

func (r *AgentRepository) GetByID(ctx context.Context, id string) (*identity.Agent, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = ?`, id)
	return r.scanAgent(row)
}

func (r *AgentRepository) Update(ctx context.Context, agent *identity.Agent) error {
	return r.db.withRetry(ctx, func() error {
		_, err := r.db.ExecContext(ctx, `
			UPDATE agents SET program = ?, model = ?, task_description = ?, last_active_ts = ?,
				attachments_policy = ?, contact_policy = ?, registration_token = ?
			WHERE id = ?
		`,
			agent.Program, agent.Model, agent.TaskDescription, agent.LastActiveTS,
			string(agent.AttachmentsPolicy), string(agent.ContactPolicy),
			nullableString(agent.RegistrationToken), agent.ID)
		return err
	})
}

func (r *AgentRepository) TouchLastActive(ctx context.Context, id string) error {
	return r.db.withRetry(ctx, func() error {
		_, err := r.db.ExecContext(ctx, `UPDATE agents SET last_active_ts = CURRENT_TIMESTAMP WHERE id = ?`, id)
		return err
	})
}

func (r *AgentRepository) ListByProject(ctx context.Context, projectID string) ([]identity.Agent, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE project_id = ? ORDER BY name`, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing agents: %w", err)
	}
	defer rows.Close()

	var agents []identity.Agent
	for rows.Next() {
		var a identity.Agent
		var attachPolicy, contactPolicy string
		var token sql.NullString
		var isStub bool
		if err := rows.Scan(&a.ID, &a.ProjectID, &a.Name, &a.Program, &a.Model, &a.TaskDescription,
			&a.InceptionTS, &a.LastActiveTS, &attachPolicy, &contactPolicy, &token, &isStub); err != nil {
			return nil, fmt.Errorf("scanning agent: %w", err)
		}
		a.AttachmentsPolicy = identity.AttachmentsPolicy(attachPolicy)
		a.ContactPolicy = identity.ContactPolicy(contactPolicy)
		a.RegistrationToken = token.String
		a.Stub = isStub
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// WindowRepository implements identity.WindowRepository for SQLite.
type WindowRepository struct {
	db *DB
}

func NewWindowRepository(db *DB) *WindowRepository {
	return &WindowRepository{db: db}
}

func (r *WindowRepository) Get(ctx context.Context, projectID, windowUUID string) (*identity.WindowIdentity, error) {
	var w identity.WindowIdentity
	var expires sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT project_id, window_uuid, display_name, last_active_ts, expires_ts
		FROM window_identities WHERE project_id = ? AND window_uuid = ?
	`, projectID, windowUUID).Scan(&w.ProjectID, &w.WindowUUID, &w.DisplayName, &w.LastActiveTS, &expires)
	if err != nil {
		return nil, mapReadError(err)
	}
	if expires.Valid {
		w.ExpiresTS = &expires.Time
	}
	return &w, nil
}

func (r *WindowRepository) Upsert(ctx context.Context, w *identity.WindowIdentity) error {
	var expires any
	if w.ExpiresTS != nil {
		expires = *w.ExpiresTS
	}
	return r.db.withRetry(ctx, func() error {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO window_identities (project_id, window_uuid, display_name, last_active_ts, expires_ts)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (project_id, window_uuid) DO UPDATE SET
				display_name = excluded.display_name,
				last_active_ts = excluded.last_active_ts,
				expires_ts = excluded.expires_ts
		`, w.ProjectID, w.WindowUUID, w.DisplayName, w.LastActiveTS, expires)
		return err
	})
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
