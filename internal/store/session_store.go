package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/boternity/boternity/internal/sessions"
	"github.com/boternity/boternity/pkg/models"
)

// SessionStore implements sessions.Store against the sqlite schema applied
// by DB.migrate, the sqlite counterpart to
// internal/sessions.PostgresStore's lib/pq implementation.
type SessionStore struct {
	db *DB
}

// NewSessionStore builds a SessionStore over an already-opened DB.
func NewSessionStore(db *DB) *SessionStore {
	return &SessionStore{db: db}
}

var _ sessions.Store = (*SessionStore)(nil)

func (s *SessionStore) Create(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now

	metadata, err := json.Marshal(session.Metadata)
	if err != nil {
		return fmt.Errorf("store: marshal session metadata: %w", err)
	}

	_, err = s.db.conn.ExecContext(ctx, `
		INSERT INTO sessions (
			id, agent_id, channel, channel_id, key, title, metadata,
			bot_id, status, total_input_tokens, total_output_tokens,
			message_count, model, started_at, ended_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.AgentID, string(session.Channel), session.ChannelID,
		session.Key, session.Title, string(metadata), session.BotID, string(session.Status),
		session.TotalInputTokens, session.TotalOutputTokens, session.MessageCount,
		session.Model, nullTime(session.StartedAt), nullTime(session.EndedAt),
		session.CreatedAt, session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: create session: %w", err)
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, id string) (*models.Session, error) {
	row := s.db.conn.QueryRowContext(ctx, sessionSelectColumns+` WHERE id = ?`, id)
	return scanSession(row)
}

func (s *SessionStore) GetByKey(ctx context.Context, key string) (*models.Session, error) {
	row := s.db.conn.QueryRowContext(ctx, sessionSelectColumns+` WHERE key = ?`, key)
	return scanSession(row)
}

func (s *SessionStore) Update(ctx context.Context, session *models.Session) error {
	session.UpdatedAt = time.Now().UTC()
	metadata, err := json.Marshal(session.Metadata)
	if err != nil {
		return fmt.Errorf("store: marshal session metadata: %w", err)
	}
	res, err := s.db.conn.ExecContext(ctx, `
		UPDATE sessions SET title = ?, metadata = ?, status = ?,
			total_input_tokens = ?, total_output_tokens = ?, message_count = ?,
			model = ?, ended_at = ?, updated_at = ?
		WHERE id = ?`,
		session.Title, string(metadata), string(session.Status),
		session.TotalInputTokens, session.TotalOutputTokens, session.MessageCount,
		session.Model, nullTime(session.EndedAt), session.UpdatedAt, session.ID,
	)
	if err != nil {
		return fmt.Errorf("store: update session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sessions.ErrNotFound
	}
	return nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.conn.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete session: %w", err)
	}
	return nil
}

func (s *SessionStore) GetOrCreate(ctx context.Context, key string, agentID string, channel models.ChannelType, channelID string) (*models.Session, error) {
	existing, err := s.GetByKey(ctx, key)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sessions.ErrNotFound) {
		return nil, err
	}
	session := &models.Session{
		AgentID:   agentID,
		Channel:   channel,
		ChannelID: channelID,
		Key:       key,
		Status:    models.SessionActive,
		StartedAt: time.Now().UTC(),
	}
	if err := s.Create(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *SessionStore) List(ctx context.Context, agentID string, opts sessions.ListOptions) ([]*models.Session, error) {
	query := sessionSelectColumns + ` WHERE agent_id = ?`
	args := []any{agentID}
	if opts.Channel != "" {
		query += ` AND channel = ?`
		args = append(args, string(opts.Channel))
	}
	query += ` ORDER BY created_at DESC`
	if opts.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, opts.Limit, opts.Offset)
	}

	rows, err := s.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list sessions: %w", err)
	}
	defer rows.Close()

	var out []*models.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, session)
	}
	return out, rows.Err()
}

func (s *SessionStore) AppendMessage(ctx context.Context, sessionID string, msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.CreatedAt = time.Now().UTC()

	attachments, err := json.Marshal(msg.Attachments)
	if err != nil {
		return fmt.Errorf("store: marshal attachments: %w", err)
	}
	toolCalls, err := json.Marshal(msg.ToolCalls)
	if err != nil {
		return fmt.Errorf("store: marshal tool calls: %w", err)
	}
	toolResults, err := json.Marshal(msg.ToolResults)
	if err != nil {
		return fmt.Errorf("store: marshal tool results: %w", err)
	}
	metadata, err := json.Marshal(msg.Metadata)
	if err != nil {
		return fmt.Errorf("store: marshal message metadata: %w", err)
	}

	return s.db.withTx(func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO messages (
				id, session_id, channel, channel_id, direction, role, content,
				attachments, tool_calls, tool_results, metadata,
				input_tokens, output_tokens, model, stop_reason, response_ms, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			msg.ID, sessionID, string(msg.Channel), msg.ChannelID, string(msg.Direction),
			string(msg.Role), msg.Content, string(attachments), string(toolCalls),
			string(toolResults), string(metadata), msg.InputTokens, msg.OutputTokens,
			msg.Model, msg.StopReason, msg.ResponseMs, msg.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("store: append message: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE sessions SET message_count = message_count + 1,
				total_input_tokens = total_input_tokens + ?,
				total_output_tokens = total_output_tokens + ?,
				updated_at = ?
			WHERE id = ?`,
			msg.InputTokens, msg.OutputTokens, time.Now().UTC(), sessionID,
		)
		if err != nil {
			return fmt.Errorf("store: bump session counters: %w", err)
		}
		return nil
	})
}

func (s *SessionStore) GetHistory(ctx context.Context, sessionID string, limit int) ([]*models.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT id, session_id, channel, channel_id, direction, role, content,
			attachments, tool_calls, tool_results, metadata,
			input_tokens, output_tokens, model, stop_reason, response_ms, created_at
		FROM (
			SELECT * FROM messages WHERE session_id = ? ORDER BY created_at DESC LIMIT ?
		) ORDER BY created_at ASC`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: get history: %w", err)
	}
	defer rows.Close()

	var out []*models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

const sessionSelectColumns = `
	SELECT id, agent_id, channel, channel_id, key, title, metadata, bot_id, status,
		total_input_tokens, total_output_tokens, message_count, model,
		started_at, ended_at, created_at, updated_at
	FROM sessions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var session models.Session
	var metadata string
	var channel, status string
	var startedAt, endedAt sql.NullTime

	err := row.Scan(
		&session.ID, &session.AgentID, &channel, &session.ChannelID, &session.Key,
		&session.Title, &metadata, &session.BotID, &status,
		&session.TotalInputTokens, &session.TotalOutputTokens, &session.MessageCount,
		&session.Model, &startedAt, &endedAt, &session.CreatedAt, &session.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sessions.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan session: %w", err)
	}

	session.Channel = models.ChannelType(channel)
	session.Status = models.SessionStatus(status)
	if startedAt.Valid {
		session.StartedAt = startedAt.Time
	}
	if endedAt.Valid {
		session.EndedAt = endedAt.Time
	}
	if metadata != "" {
		if err := json.Unmarshal([]byte(metadata), &session.Metadata); err != nil {
			return nil, fmt.Errorf("store: unmarshal session metadata: %w", err)
		}
	}
	return &session, nil
}

func scanMessage(row rowScanner) (*models.Message, error) {
	var msg models.Message
	var channel, direction, role string
	var attachments, toolCalls, toolResults, metadata string

	err := row.Scan(
		&msg.ID, &msg.SessionID, &channel, &msg.ChannelID, &direction, &role, &msg.Content,
		&attachments, &toolCalls, &toolResults, &metadata,
		&msg.InputTokens, &msg.OutputTokens, &msg.Model, &msg.StopReason, &msg.ResponseMs,
		&msg.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("store: scan message: %w", err)
	}
	msg.Channel = models.ChannelType(channel)
	msg.Direction = models.Direction(direction)
	msg.Role = models.Role(role)

	if attachments != "" && attachments != "null" {
		if err := json.Unmarshal([]byte(attachments), &msg.Attachments); err != nil {
			return nil, fmt.Errorf("store: unmarshal attachments: %w", err)
		}
	}
	if toolCalls != "" && toolCalls != "null" {
		if err := json.Unmarshal([]byte(toolCalls), &msg.ToolCalls); err != nil {
			return nil, fmt.Errorf("store: unmarshal tool calls: %w", err)
		}
	}
	if toolResults != "" && toolResults != "null" {
		if err := json.Unmarshal([]byte(toolResults), &msg.ToolResults); err != nil {
			return nil, fmt.Errorf("store: unmarshal tool results: %w", err)
		}
	}
	if metadata != "" && metadata != "null" {
		if err := json.Unmarshal([]byte(metadata), &msg.Metadata); err != nil {
			return nil, fmt.Errorf("store: unmarshal message metadata: %w", err)
		}
	}
	return &msg, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
