package assistant

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"time"

	"github.com/HerbHall/aquabot/pkg/llm"
)

// Message is one stored chat turn.
type Message struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Intent    string    `json:"intent,omitempty"`
	Outcome   string    `json:"outcome,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryStore persists chat turns per session.
type HistoryStore struct {
	db *sql.DB
}

// NewHistoryStore creates a HistoryStore on db. The assistant migrations
// must already be applied.
func NewHistoryStore(db *sql.DB) *HistoryStore {
	return &HistoryStore{db: db}
}

// Append stores msg. ID and CreatedAt are filled in.
func (s *HistoryStore) Append(ctx context.Context, msg *Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO assistant_messages (session_id, role, content, intent, outcome, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		msg.SessionID, msg.Role, msg.Content, msg.Intent, msg.Outcome, msg.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	msg.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("append message id: %w", err)
	}
	return nil
}

// List returns the last limit messages of a session, oldest first. A
// limit of zero or less returns the whole session.
func (s *HistoryStore) List(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	query := `
		SELECT id, session_id, role, content, intent, outcome, created_at
		FROM assistant_messages WHERE session_id = ?
		ORDER BY id DESC`
	args := []any{sessionID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var created int64
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.Intent, &m.Outcome, &created); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		m.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Reverse(out)
	return out, nil
}

// Turns returns the last limit messages of a session as LLM chat turns.
func (s *HistoryStore) Turns(ctx context.Context, sessionID string, limit int) ([]llm.Message, error) {
	msgs, err := s.List(ctx, sessionID, limit)
	if err != nil {
		return nil, err
	}
	turns := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		turns = append(turns, llm.Message{Role: m.Role, Content: m.Content})
	}
	return turns, nil
}
