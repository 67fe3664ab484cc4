package store

import (
	"fmt"
	"time"

	"github.com/revisionhiep-create/Project-Astral/internal/logging"
)

// Turn is one message in a channel's history.
type Turn struct {
	ID        int64
	ChannelID string
	MessageID string
	Role      string // "user" or "bot"
	UserName  string
	Content   string
	CreatedAt time.Time
}

// StoreTurn appends a message to channel history. Redelivered messages
// (same message_id) are ignored.
func (s *Store) StoreTurn(turn Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		"INSERT OR IGNORE INTO turns (channel_id, message_id, role, user_name, content) VALUES (?, ?, ?, ?, ?)",
		turn.ChannelID, turn.MessageID, turn.Role, turn.UserName, turn.Content,
	)
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}
	return nil
}

// RecentTurns returns the last n turns for a channel in chronological
// order.
func (s *Store) RecentTurns(channelID string, n int) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n <= 0 {
		n = 12
	}

	rows, err := s.db.Query(`
		SELECT id, channel_id, message_id, role, user_name, content, created_at
		FROM (
			SELECT id, channel_id, message_id, role, user_name, content, created_at
			FROM turns WHERE channel_id = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`,
		channelID, n,
	)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.ID, &t.ChannelID, &t.MessageID, &t.Role, &t.UserName, &t.Content, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// UpdateTurnContent replaces a turn's text after a platform edit event.
// Missing message IDs are a no-op.
func (s *Store) UpdateTurnContent(messageID, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec("UPDATE turns SET content = ? WHERE message_id = ?", content, messageID)
	if err != nil {
		return fmt.Errorf("update turn: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		logging.StoreDebug("Updated turn content for message %s", messageID)
	}
	return nil
}

// DeleteTurn removes a turn after a platform delete event.
func (s *Store) DeleteTurn(messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM turns WHERE message_id = ?", messageID); err != nil {
		return fmt.Errorf("delete turn: %w", err)
	}
	return nil
}

// TrimTurns keeps only the newest keep turns per channel. Returns rows
// removed.
func (s *Store) TrimTurns(channelID string, keep int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		DELETE FROM turns WHERE channel_id = ? AND id NOT IN (
			SELECT id FROM turns WHERE channel_id = ? ORDER BY id DESC LIMIT ?
		)`,
		channelID, channelID, keep,
	)
	if err != nil {
		return 0, fmt.Errorf("trim turns: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
