package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/agentcoord/coordbus/internal/domain/reservation"
)

// ReservationRepository implements reservation.Repository for SQLite.
type ReservationRepository struct {
	db *DB
}

func NewReservationRepository(db *DB) *ReservationRepository {
	return &ReservationRepository{db: db}
}

const reservationColumns = `id, project_id, agent_id, path_pattern, exclusive, reason, created_ts, expires_ts, released_ts`

func scanReservation(scan func(...any) error) (*reservation.FileReservation, error) {
	var res reservation.FileReservation
	var released sql.NullTime
	if err := scan(&res.ID, &res.ProjectID, &res.AgentID, &res.PathPattern, &res.Exclusive,
		&res.Reason, &res.CreatedTS, &res.ExpiresTS, &released); err != nil {
		return nil, err
	}
	if released.Valid {
		res.ReleasedTS = &released.Time
	}
	return &res, nil
}

func (r *ReservationRepository) GrantBatch(ctx context.Context, reservations []*reservation.FileReservation) error {
	return r.db.withRetry(ctx, func() error {
		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		for _, res := range reservations {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO file_reservations (id, project_id, agent_id, path_pattern, exclusive, reason, created_ts, expires_ts)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			`, res.ID, res.ProjectID, res.AgentID, res.PathPattern, res.Exclusive, res.Reason, res.CreatedTS, res.ExpiresTS); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

func (r *ReservationRepository) GetByID(ctx context.Context, id string) (*reservation.FileReservation, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM file_reservations WHERE id = ?`, id)
	res, err := scanReservation(row.Scan)
	if err != nil {
		return nil, mapReadError(err)
	}
	return res, nil
}

// ActiveConflicts returns every active exclusive reservation in the
// project not held by excludeAgentID. Pattern-vs-path matching happens
// in-process (internal/matching), so the path list is only used by the
// caller, not filtered here.
func (r *ReservationRepository) ActiveConflicts(ctx context.Context, projectID string, paths []string, excludeAgentID string) ([]reservation.FileReservation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+reservationColumns+` FROM file_reservations
		WHERE project_id = ? AND released_ts IS NULL AND expires_ts > ? AND agent_id != ?
	`, projectID, time.Now(), excludeAgentID)
	if err != nil {
		return nil, fmt.Errorf("listing active conflicts: %w", err)
	}
	defer rows.Close()
	return scanReservationRows(rows)
}

func (r *ReservationRepository) ListActiveByAgent(ctx context.Context, projectID, agentID string, patterns []string) ([]reservation.FileReservation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+reservationColumns+` FROM file_reservations
		WHERE project_id = ? AND agent_id = ? AND released_ts IS NULL AND expires_ts > ?
	`, projectID, agentID, time.Now())
	if err != nil {
		return nil, fmt.Errorf("listing agent reservations: %w", err)
	}
	defer rows.Close()
	all, err := scanReservationRows(rows)
	if err != nil {
		return nil, err
	}
	if len(patterns) == 0 {
		return all, nil
	}
	wanted := make(map[string]bool, len(patterns))
	for _, p := range patterns {
		wanted[p] = true
	}
	var filtered []reservation.FileReservation
	for _, res := range all {
		if wanted[res.PathPattern] {
			filtered = append(filtered, res)
		}
	}
	return filtered, nil
}

func (r *ReservationRepository) ListActive(ctx context.Context, projectID string) ([]reservation.FileReservation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+reservationColumns+` FROM file_reservations
		WHERE project_id = ? AND released_ts IS NULL AND expires_ts > ?
		ORDER BY created_ts DESC
	`, projectID, time.Now())
	if err != nil {
		return nil, fmt.Errorf("listing active reservations: %w", err)
	}
	defer rows.Close()
	return scanReservationRows(rows)
}

func (r *ReservationRepository) ReleaseByIDs(ctx context.Context, ids []string, releasedAt time.Time) error {
	return r.db.withRetry(ctx, func() error {
		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx, `
				UPDATE file_reservations SET released_ts = ? WHERE id = ? AND released_ts IS NULL
			`, releasedAt, id); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

func (r *ReservationRepository) UpdateExpiry(ctx context.Context, id string, expiresTS time.Time) error {
	return r.db.withRetry(ctx, func() error {
		_, err := r.db.ExecContext(ctx, `UPDATE file_reservations SET expires_ts = ? WHERE id = ?`, expiresTS, id)
		return err
	})
}

func (r *ReservationRepository) SweepExpired(ctx context.Context, now time.Time) ([]reservation.FileReservation, error) {
	var expired []reservation.FileReservation
	err := r.db.withRetry(ctx, func() error {
		expired = nil
		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		rows, err := tx.QueryContext(ctx, `
			SELECT `+reservationColumns+` FROM file_reservations
			WHERE released_ts IS NULL AND expires_ts <= ?
		`, now)
		if err != nil {
			return err
		}
		toRelease, err := scanReservationRows(rows)
		rows.Close()
		if err != nil {
			return err
		}

		for _, res := range toRelease {
			if _, err := tx.ExecContext(ctx, `UPDATE file_reservations SET released_ts = ? WHERE id = ?`, now, res.ID); err != nil {
				return err
			}
			res.ReleasedTS = &now
			expired = append(expired, res)
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, fmt.Errorf("sweeping expired reservations: %w", err)
	}
	return expired, nil
}

func scanReservationRows(rows *sql.Rows) ([]reservation.FileReservation, error) {
	var out []reservation.FileReservation
	for rows.Next() {
		res, err := scanReservation(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning reservation: %w", err)
		}
		out = append(out, *res)
	}
	return out, rows.Err()
}
