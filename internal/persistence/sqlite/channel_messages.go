package sqlite

import (
	"context"
	"fmt"
	"time"

	"flock/internal/persistence"
)

type channelMessageStore Backend

func (s *channelMessageStore) b() *Backend { return (*Backend)(s) }

// Append assigns the next sequence number transactionally so concurrent
// appends to the same channel from different connections still produce
// strictly increasing, gap-free sequence numbers (§4.1 contract). The
// msgSeqMu mutex additionally serializes this at the Go level since the
// backend's connection pool is already single-writer, but a future
// multi-process deployment sharing this file would still need the
// transaction's atomic SELECT+INSERT.
func (s *channelMessageStore) Append(ctx context.Context, channelID, agentID, content string) (persistence.ChannelMessage, error) {
	s.b().msgSeqMu.Lock()
	defer s.b().msgSeqMu.Unlock()

	tx, err := s.b().db.BeginTx(ctx, nil)
	if err != nil {
		return persistence.ChannelMessage{}, fmt.Errorf("begin append tx: %w", err)
	}
	defer tx.Rollback()

	var next int64
	row := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM channel_messages WHERE channel_id = ?`, channelID)
	if err := row.Scan(&next); err != nil {
		return persistence.ChannelMessage{}, fmt.Errorf("compute next seq: %w", err)
	}

	now := time.Now()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO channel_messages (channel_id, seq, agent_id, content, ts) VALUES (?, ?, ?, ?, ?)`,
		channelID, next, agentID, content, now.UnixMilli()); err != nil {
		return persistence.ChannelMessage{}, fmt.Errorf("insert channel message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return persistence.ChannelMessage{}, fmt.Errorf("commit append tx: %w", err)
	}

	return persistence.ChannelMessage{
		ChannelID: channelID,
		Seq:       next,
		AgentID:   agentID,
		Content:   content,
		Timestamp: now,
	}, nil
}

func (s *channelMessageStore) List(ctx context.Context, filter persistence.ChannelMessageFilter) ([]persistence.ChannelMessage, error) {
	q := `SELECT channel_id, seq, agent_id, content, ts FROM channel_messages WHERE channel_id = ? AND seq > ? ORDER BY seq`
	args := []any{filter.ChannelID, filter.SinceSeq}
	if filter.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	rows, err := s.b().db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list channel messages: %w", err)
	}
	defer rows.Close()

	var out []persistence.ChannelMessage
	for rows.Next() {
		var m persistence.ChannelMessage
		var ts int64
		if err := rows.Scan(&m.ChannelID, &m.Seq, &m.AgentID, &m.Content, &ts); err != nil {
			return nil, fmt.Errorf("scan channel message: %w", err)
		}
		m.Timestamp = timeFromUnixMillis(ts)
		out = append(out, m)
	}
	return out, rows.Err()
}
