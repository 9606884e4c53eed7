package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"flock/internal/persistence"
)

type bridgeStore Backend

func (s *bridgeStore) b() *Backend { return (*Backend)(s) }

func (s *bridgeStore) Insert(ctx context.Context, br persistence.Bridge) error {
	_, err := s.b().db.ExecContext(ctx, `
		INSERT INTO bridges (bridge_id, channel_id, platform, external_channel_id, active, webhook_url, account_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		br.BridgeID, br.ChannelID, br.Platform, br.ExternalChannelID, boolToInt(br.Active), br.WebhookURL, br.AccountID)
	if err != nil {
		if isUniqueViolation(err) {
			return persistence.ErrDuplicate
		}
		return fmt.Errorf("insert bridge: %w", err)
	}
	return nil
}

func (s *bridgeStore) Update(ctx context.Context, bridgeID string, mutate func(*persistence.Bridge)) error {
	s.b().bridgeMu.Lock()
	defer s.b().bridgeMu.Unlock()

	br, err := s.getLocked(ctx, bridgeID)
	if err != nil {
		return err
	}
	mutate(&br)
	_, err = s.b().db.ExecContext(ctx, `
		UPDATE bridges SET channel_id=?, platform=?, external_channel_id=?, active=?, webhook_url=?, account_id=?
		WHERE bridge_id=?`,
		br.ChannelID, br.Platform, br.ExternalChannelID, boolToInt(br.Active), br.WebhookURL, br.AccountID, bridgeID)
	if err != nil {
		return fmt.Errorf("update bridge: %w", err)
	}
	return nil
}

func (s *bridgeStore) Get(ctx context.Context, bridgeID string) (persistence.Bridge, error) {
	return s.getLocked(ctx, bridgeID)
}

func (s *bridgeStore) getLocked(ctx context.Context, bridgeID string) (persistence.Bridge, error) {
	row := s.b().db.QueryRowContext(ctx, `
		SELECT bridge_id, channel_id, platform, external_channel_id, active, webhook_url, account_id
		FROM bridges WHERE bridge_id=?`, bridgeID)
	return scanBridge(row)
}

func scanBridge(row *sql.Row) (persistence.Bridge, error) {
	var b persistence.Bridge
	var active int
	if err := row.Scan(&b.BridgeID, &b.ChannelID, &b.Platform, &b.ExternalChannelID, &active, &b.WebhookURL, &b.AccountID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Bridge{}, persistence.ErrNotFound
		}
		return persistence.Bridge{}, fmt.Errorf("scan bridge: %w", err)
	}
	b.Active = active != 0
	return b, nil
}

func (s *bridgeStore) GetActiveByExternal(ctx context.Context, platform, externalChannelID string) (persistence.Bridge, error) {
	row := s.b().db.QueryRowContext(ctx, `
		SELECT bridge_id, channel_id, platform, external_channel_id, active, webhook_url, account_id
		FROM bridges WHERE platform=? AND external_channel_id=? AND active=1 LIMIT 1`, platform, externalChannelID)
	return scanBridge(row)
}

func (s *bridgeStore) List(ctx context.Context, filter persistence.BridgeFilter) ([]persistence.Bridge, error) {
	q := `SELECT bridge_id, channel_id, platform, external_channel_id, active, webhook_url, account_id FROM bridges WHERE 1=1`
	var args []any
	if filter.ChannelID != "" {
		q += " AND channel_id = ?"
		args = append(args, filter.ChannelID)
	}
	if filter.Platform != "" {
		q += " AND platform = ?"
		args = append(args, filter.Platform)
	}
	if filter.Active != nil {
		q += " AND active = ?"
		args = append(args, boolToInt(*filter.Active))
	}
	q += " ORDER BY bridge_id"
	if filter.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	rows, err := s.b().db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list bridges: %w", err)
	}
	defer rows.Close()

	var out []persistence.Bridge
	for rows.Next() {
		var b persistence.Bridge
		var active int
		if err := rows.Scan(&b.BridgeID, &b.ChannelID, &b.Platform, &b.ExternalChannelID, &active, &b.WebhookURL, &b.AccountID); err != nil {
			return nil, fmt.Errorf("scan bridge row: %w", err)
		}
		b.Active = active != 0
		out = append(out, b)
	}
	return out, rows.Err()
}
