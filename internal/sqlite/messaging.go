package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/agentcoord/coordbus/internal/domain/messaging"
	"github.com/agentcoord/coordbus/internal/repository"
)

// MessageRepository implements messaging.Repository for SQLite.
type MessageRepository struct {
	db *DB
}

func NewMessageRepository(db *DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) InsertMessage(ctx context.Context, msg *messaging.Message, recipients []messaging.MessageRecipient) error {
	attachmentsJSON, err := json.Marshal(msg.Attachments)
	if err != nil {
		return fmt.Errorf("marshaling attachments: %w", err)
	}

	err = r.db.withRetry(ctx, func() error {
		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		res, err := tx.ExecContext(ctx, `
			INSERT INTO messages (project_id, sender_id, thread_id, topic, subject, body_md,
				importance, ack_required, attachments, created_ts)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, msg.ProjectID, msg.SenderID, msg.ThreadID, msg.Topic, msg.Subject, msg.BodyMD,
			string(msg.Importance), msg.AckRequired, string(attachmentsJSON), msg.CreatedTS)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		msg.ID = id

		for i := range recipients {
			recipients[i].MessageID = id
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO message_recipients (message_id, agent_id, kind) VALUES (?, ?, ?)
			`, id, recipients[i].AgentID, string(recipients[i].Kind)); err != nil {
				return err
			}
		}

		return tx.Commit()
	})
	if err != nil {
		return fmt.Errorf("inserting message: %w", mapWriteError(err))
	}
	return nil
}

const messageColumns = `id, project_id, sender_id, thread_id, topic, subject, body_md,
	importance, ack_required, attachments, created_ts, archived_ts`

func scanMessage(scan func(...any) error) (*messaging.Message, error) {
	var m messaging.Message
	var importance string
	var attachmentsJSON string
	var archived sql.NullTime
	if err := scan(&m.ID, &m.ProjectID, &m.SenderID, &m.ThreadID, &m.Topic, &m.Subject, &m.BodyMD,
		&importance, &m.AckRequired, &attachmentsJSON, &m.CreatedTS, &archived); err != nil {
		return nil, err
	}
	m.Importance = messaging.Importance(importance)
	if archived.Valid {
		m.ArchivedTS = &archived.Time
	}
	if attachmentsJSON != "" {
		if err := json.Unmarshal([]byte(attachmentsJSON), &m.Attachments); err != nil {
			return nil, fmt.Errorf("unmarshaling attachments: %w", err)
		}
	}
	return &m, nil
}

func (r *MessageRepository) GetMessage(ctx context.Context, projectID string, id int64) (*messaging.Message, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ? AND project_id = ?`, id, projectID)
	msg, err := scanMessage(row.Scan)
	if err != nil {
		return nil, mapReadError(err)
	}
	return msg, nil
}

func (r *MessageRepository) GetRecipients(ctx context.Context, messageID int64) ([]messaging.MessageRecipient, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT message_id, agent_id, kind, read_ts, ack_ts FROM message_recipients WHERE message_id = ?
	`, messageID)
	if err != nil {
		return nil, fmt.Errorf("listing recipients: %w", err)
	}
	defer rows.Close()

	var recipients []messaging.MessageRecipient
	for rows.Next() {
		var rec messaging.MessageRecipient
		var kind string
		var readTS, ackTS sql.NullTime
		if err := rows.Scan(&rec.MessageID, &rec.AgentID, &kind, &readTS, &ackTS); err != nil {
			return nil, fmt.Errorf("scanning recipient: %w", err)
		}
		rec.Kind = messaging.RecipientKind(kind)
		if readTS.Valid {
			rec.ReadTS = &readTS.Time
		}
		if ackTS.Valid {
			rec.AckTS = &ackTS.Time
		}
		recipients = append(recipients, rec)
	}
	return recipients, rows.Err()
}

func (r *MessageRepository) MarkRead(ctx context.Context, messageID int64, agentID string, at time.Time) error {
	err := r.db.withRetry(ctx, func() error {
		res, err := r.db.ExecContext(ctx, `
			UPDATE message_recipients SET read_ts = ? WHERE message_id = ? AND agent_id = ? AND read_ts IS NULL
		`, at, messageID, agentID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return repository.ErrNotFound
		}
		return nil
	})
	return err
}

func (r *MessageRepository) MarkAcknowledged(ctx context.Context, messageID int64, agentID string, at time.Time) error {
	return r.db.withRetry(ctx, func() error {
		_, err := r.db.ExecContext(ctx, `
			UPDATE message_recipients SET ack_ts = ? WHERE message_id = ? AND agent_id = ?
		`, at, messageID, agentID)
		return err
	})
}

func (r *MessageRepository) FetchInbox(ctx context.Context, projectID, agentID string, opts messaging.InboxOptions) ([]messaging.InboxItem, error) {
	return r.fetchByDirection(ctx, projectID, agentID, false, opts)
}

func (r *MessageRepository) ListOutbox(ctx context.Context, projectID, agentID string, opts messaging.InboxOptions) ([]messaging.InboxItem, error) {
	return r.fetchByDirection(ctx, projectID, agentID, true, opts)
}

func (r *MessageRepository) fetchByDirection(ctx context.Context, projectID, agentID string, outbox bool, opts messaging.InboxOptions) ([]messaging.InboxItem, error) {
	query := `SELECT ` + qualify("m", messageColumns) + `, mr.message_id, mr.agent_id, mr.kind, mr.read_ts, mr.ack_ts
		FROM messages m `
	args := []any{}

	if outbox {
		query += `JOIN message_recipients mr ON mr.message_id = m.id
			WHERE m.project_id = ? AND m.sender_id = ?`
		args = append(args, projectID, agentID)
	} else {
		query += `JOIN message_recipients mr ON mr.message_id = m.id
			WHERE m.project_id = ? AND mr.agent_id = ?`
		args = append(args, projectID, agentID)
	}

	if opts.UrgentOnly {
		query += ` AND m.importance = 'urgent'`
	}
	if opts.SinceTS != nil {
		query += ` AND m.created_ts >= ?`
		args = append(args, *opts.SinceTS)
	}
	if opts.Topic != "" {
		query += ` AND m.topic = ?`
		args = append(args, opts.Topic)
	}
	if opts.ThreadID != "" {
		query += ` AND m.thread_id = ?`
		args = append(args, opts.ThreadID)
	}

	query += ` ORDER BY m.created_ts DESC, m.id DESC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetching inbox: %w", err)
	}
	defer rows.Close()

	var items []messaging.InboxItem
	for rows.Next() {
		var m messaging.Message
		var importance, attachmentsJSON string
		var archived sql.NullTime
		var rec messaging.MessageRecipient
		var kind string
		var readTS, ackTS sql.NullTime

		if err := rows.Scan(&m.ID, &m.ProjectID, &m.SenderID, &m.ThreadID, &m.Topic, &m.Subject, &m.BodyMD,
			&importance, &m.AckRequired, &attachmentsJSON, &m.CreatedTS, &archived,
			&rec.MessageID, &rec.AgentID, &kind, &readTS, &ackTS); err != nil {
			return nil, fmt.Errorf("scanning inbox item: %w", err)
		}
		m.Importance = messaging.Importance(importance)
		if archived.Valid {
			m.ArchivedTS = &archived.Time
		}
		if opts.IncludeBodies && attachmentsJSON != "" {
			if err := json.Unmarshal([]byte(attachmentsJSON), &m.Attachments); err != nil {
				return nil, fmt.Errorf("unmarshaling attachments: %w", err)
			}
		}
		if !opts.IncludeBodies {
			m.BodyMD = ""
		}
		rec.Kind = messaging.RecipientKind(kind)
		if readTS.Valid {
			rec.ReadTS = &readTS.Time
		}
		if ackTS.Valid {
			rec.AckTS = &ackTS.Time
		}
		items = append(items, messaging.InboxItem{Message: m, Recipient: rec})
	}
	return items, rows.Err()
}

// ListOverdueAcks scans every project's recipients for ack_required
// deliveries still unacknowledged past cutoff, for the ACK TTL monitor
//.
func (r *MessageRepository) ListOverdueAcks(ctx context.Context, cutoff time.Time) ([]messaging.InboxItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+qualify("m", messageColumns)+`, mr.message_id, mr.agent_id, mr.kind, mr.read_ts, mr.ack_ts
		FROM messages m
		JOIN message_recipients mr ON mr.message_id = m.id
		WHERE m.ack_required = 1 AND mr.ack_ts IS NULL AND m.created_ts <= ?
		ORDER BY m.created_ts ASC
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("listing overdue acks: %w", err)
	}
	defer rows.Close()

	var items []messaging.InboxItem
	for rows.Next() {
		var m messaging.Message
		var importance, attachmentsJSON string
		var archived sql.NullTime
		var rec messaging.MessageRecipient
		var kind string
		var readTS, ackTS sql.NullTime

		if err := rows.Scan(&m.ID, &m.ProjectID, &m.SenderID, &m.ThreadID, &m.Topic, &m.Subject, &m.BodyMD,
			&importance, &m.AckRequired, &attachmentsJSON, &m.CreatedTS, &archived,
			&rec.MessageID, &rec.AgentID, &kind, &readTS, &ackTS); err != nil {
			return nil, fmt.Errorf("scanning overdue ack: %w", err)
		}
		m.Importance = messaging.Importance(importance)
		if archived.Valid {
			m.ArchivedTS = &archived.Time
		}
		rec.Kind = messaging.RecipientKind(kind)
		if readTS.Valid {
			rec.ReadTS = &readTS.Time
		}
		if ackTS.Valid {
			rec.AckTS = &ackTS.Time
		}
		items = append(items, messaging.InboxItem{Message: m, Recipient: rec})
	}
	return items, rows.Err()
}

func (r *MessageRepository) ListThread(ctx context.Context, projectID, threadID string) ([]messaging.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM messages WHERE project_id = ? AND thread_id = ? ORDER BY created_ts ASC, id ASC
	`, projectID, threadID)
	if err != nil {
		return nil, fmt.Errorf("listing thread: %w", err)
	}
	defer rows.Close()

	var messages []messaging.Message
	for rows.Next() {
		m, err := scanMessage(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning thread message: %w", err)
		}
		messages = append(messages, *m)
	}
	return messages, rows.Err()
}

// Search implements search_messages using the FTS5 index over
// (subject, body_md), falling back to a LIKE scan for backends or rows
// the index hasn't caught up with yet.
func (r *MessageRepository) Search(ctx context.Context, projectID, query string, opts messaging.SearchOptions) ([]messaging.Message, error) {
	parsed := messaging.ParseSearchQuery(query)
	if parsed.IsEmpty() {
		return nil, nil
	}

	matchExpr := buildFTSMatch(parsed)
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+qualify("m", messageColumns)+`
		FROM messages_fts
		JOIN messages m ON m.id = messages_fts.rowid
		WHERE m.project_id = ? AND messages_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, projectID, matchExpr, limit)
	if err != nil {
		// FTS5 syntax errors on pathological input fall back to a plain
		// recency-ordered LIKE scan rather than surfacing a 500.
		return r.searchLike(ctx, projectID, parsed, limit)
	}
	defer rows.Close()

	var messages []messaging.Message
	for rows.Next() {
		m, err := scanMessage(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning search result: %w", err)
		}
		messages = append(messages, *m)
	}
	return messages, rows.Err()
}

func (r *MessageRepository) searchLike(ctx context.Context, projectID string, parsed messaging.ParsedQuery, limit int) ([]messaging.Message, error) {
	var conditions []string
	var args []any
	for _, t := range append(append([]string{}, parsed.Tokens...), parsed.Phrases...) {
		conditions = append(conditions, "(subject LIKE ? OR body_md LIKE ?)")
		like := "%" + t + "%"
		args = append(args, like, like)
	}
	for _, s := range parsed.Subject {
		conditions = append(conditions, "subject LIKE ?")
		args = append(args, "%"+s+"%")
	}
	for _, b := range parsed.Body {
		conditions = append(conditions, "body_md LIKE ?")
		args = append(args, "%"+b+"%")
	}
	if len(conditions) == 0 {
		return nil, nil
	}

	query := `SELECT ` + messageColumns + ` FROM messages WHERE project_id = ? AND ` + strings.Join(conditions, " AND ") +
		` ORDER BY created_ts DESC LIMIT ?`
	args = append([]any{projectID}, args...)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("like-scan search: %w", err)
	}
	defer rows.Close()

	var messages []messaging.Message
	for rows.Next() {
		m, err := scanMessage(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning like-scan result: %w", err)
		}
		messages = append(messages, *m)
	}
	return messages, rows.Err()
}

func buildFTSMatch(q messaging.ParsedQuery) string {
	var parts []string
	for _, t := range q.Tokens {
		parts = append(parts, fmt.Sprintf("%q", t))
	}
	for _, p := range q.Phrases {
		parts = append(parts, fmt.Sprintf("%q", p))
	}
	for _, s := range q.Subject {
		parts = append(parts, fmt.Sprintf("subject:%q", s))
	}
	for _, b := range q.Body {
		parts = append(parts, fmt.Sprintf("body_md:%q", b))
	}
	return strings.Join(parts, " AND ")
}

func qualify(alias, columns string) string {
	fields := strings.Split(columns, ",")
	for i, f := range fields {
		fields[i] = alias + "." + strings.TrimSpace(f)
	}
	return strings.Join(fields, ", ")
}
