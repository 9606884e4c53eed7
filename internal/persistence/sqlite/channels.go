package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"flock/internal/persistence"
)

type channelStore Backend

func (s *channelStore) b() *Backend { return (*Backend)(s) }

func (s *channelStore) Insert(ctx context.Context, c persistence.Channel) error {
	_, err := s.b().db.ExecContext(ctx, `
		INSERT INTO channels (channel_id, name, topic, created_by, members, archived)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.ChannelID, c.Name, c.Topic, c.CreatedBy, marshalStrings(c.Members), boolToInt(c.Archived))
	if err != nil {
		if isUniqueViolation(err) {
			return persistence.ErrDuplicate
		}
		return fmt.Errorf("insert channel: %w", err)
	}
	return nil
}

func (s *channelStore) Update(ctx context.Context, channelID string, mutate func(*persistence.Channel)) error {
	s.b().channelMu.Lock()
	defer s.b().channelMu.Unlock()

	c, err := s.getLocked(ctx, channelID)
	if err != nil {
		return err
	}
	mutate(&c)
	_, err = s.b().db.ExecContext(ctx, `
		UPDATE channels SET name=?, topic=?, created_by=?, members=?, archived=? WHERE channel_id=?`,
		c.Name, c.Topic, c.CreatedBy, marshalStrings(c.Members), boolToInt(c.Archived), channelID)
	if err != nil {
		return fmt.Errorf("update channel: %w", err)
	}
	return nil
}

func (s *channelStore) Get(ctx context.Context, channelID string) (persistence.Channel, error) {
	return s.getLocked(ctx, channelID)
}

func (s *channelStore) getLocked(ctx context.Context, channelID string) (persistence.Channel, error) {
	row := s.b().db.QueryRowContext(ctx, `
		SELECT channel_id, name, topic, created_by, members, archived FROM channels WHERE channel_id=?`, channelID)
	var c persistence.Channel
	var members string
	var archived int
	if err := row.Scan(&c.ChannelID, &c.Name, &c.Topic, &c.CreatedBy, &members, &archived); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Channel{}, persistence.ErrNotFound
		}
		return persistence.Channel{}, fmt.Errorf("scan channel: %w", err)
	}
	c.Members = unmarshalStrings(members)
	c.Archived = archived != 0
	return c, nil
}

func (s *channelStore) List(ctx context.Context, filter persistence.ChannelFilter) ([]persistence.Channel, error) {
	q := `SELECT channel_id, name, topic, created_by, members, archived FROM channels WHERE 1=1`
	var args []any
	if filter.Archived != nil {
		q += " AND archived = ?"
		args = append(args, boolToInt(*filter.Archived))
	}
	q += " ORDER BY channel_id"
	if filter.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	rows, err := s.b().db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer rows.Close()

	var out []persistence.Channel
	for rows.Next() {
		var c persistence.Channel
		var members string
		var archived int
		if err := rows.Scan(&c.ChannelID, &c.Name, &c.Topic, &c.CreatedBy, &members, &archived); err != nil {
			return nil, fmt.Errorf("scan channel row: %w", err)
		}
		c.Members = unmarshalStrings(members)
		c.Archived = archived != 0
		out = append(out, c)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
