package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"flock/internal/persistence"
)

type homeStore Backend

func (s *homeStore) b() *Backend { return (*Backend)(s) }

func (s *homeStore) Insert(ctx context.Context, h persistence.Home) error {
	_, err := s.b().db.ExecContext(ctx, `
		INSERT INTO homes (home_id, agent_id, node_id, state, lease_expires_at, created_at, updated_at, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		h.HomeID, h.AgentID, h.NodeID, string(h.State), nullableUnixMillis(h.LeaseExpiresAt),
		h.CreatedAt.UnixMilli(), h.UpdatedAt.UnixMilli(), marshalMeta(h.Metadata))
	if err != nil {
		if isUniqueViolation(err) {
			return persistence.ErrDuplicate
		}
		return fmt.Errorf("insert home: %w", err)
	}
	return nil
}

func (s *homeStore) Update(ctx context.Context, homeID string, mutate func(*persistence.Home)) error {
	s.b().homeMu.Lock()
	defer s.b().homeMu.Unlock()

	h, err := s.getLocked(ctx, homeID)
	if err != nil {
		return err
	}
	mutate(&h)
	_, err = s.b().db.ExecContext(ctx, `
		UPDATE homes SET agent_id=?, node_id=?, state=?, lease_expires_at=?, created_at=?, updated_at=?, metadata=?
		WHERE home_id=?`,
		h.AgentID, h.NodeID, string(h.State), nullableUnixMillis(h.LeaseExpiresAt),
		h.CreatedAt.UnixMilli(), h.UpdatedAt.UnixMilli(), marshalMeta(h.Metadata), homeID)
	if err != nil {
		return fmt.Errorf("update home: %w", err)
	}
	return nil
}

func (s *homeStore) Get(ctx context.Context, homeID string) (persistence.Home, error) {
	return s.getLocked(ctx, homeID)
}

func (s *homeStore) getLocked(ctx context.Context, homeID string) (persistence.Home, error) {
	row := s.b().db.QueryRowContext(ctx, `
		SELECT home_id, agent_id, node_id, state, lease_expires_at, created_at, updated_at, metadata
		FROM homes WHERE home_id=?`, homeID)
	return scanHome(row)
}

func scanHome(row *sql.Row) (persistence.Home, error) {
	var h persistence.Home
	var state string
	var lease sql.NullInt64
	var created, updated int64
	var meta string
	if err := row.Scan(&h.HomeID, &h.AgentID, &h.NodeID, &state, &lease, &created, &updated, &meta); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Home{}, persistence.ErrNotFound
		}
		return persistence.Home{}, fmt.Errorf("scan home: %w", err)
	}
	h.State = persistence.HomeState(state)
	if lease.Valid {
		t := timeFromUnixMillis(lease.Int64)
		h.LeaseExpiresAt = &t
	}
	h.CreatedAt = timeFromUnixMillis(created)
	h.UpdatedAt = timeFromUnixMillis(updated)
	h.Metadata = unmarshalMeta(meta)
	return h, nil
}

func (s *homeStore) List(ctx context.Context, filter persistence.HomeFilter) ([]persistence.Home, error) {
	q := `SELECT home_id, agent_id, node_id, state, lease_expires_at, created_at, updated_at, metadata FROM homes WHERE 1=1`
	var args []any
	if filter.State != nil {
		q += " AND state = ?"
		args = append(args, string(*filter.State))
	}
	if filter.NodeID != "" {
		q += " AND node_id = ?"
		args = append(args, filter.NodeID)
	}
	q += " ORDER BY home_id"
	if filter.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	rows, err := s.b().db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list homes: %w", err)
	}
	defer rows.Close()

	var out []persistence.Home
	for rows.Next() {
		var h persistence.Home
		var state string
		var lease sql.NullInt64
		var created, updated int64
		var meta string
		if err := rows.Scan(&h.HomeID, &h.AgentID, &h.NodeID, &state, &lease, &created, &updated, &meta); err != nil {
			return nil, fmt.Errorf("scan home row: %w", err)
		}
		h.State = persistence.HomeState(state)
		if lease.Valid {
			t := timeFromUnixMillis(lease.Int64)
			h.LeaseExpiresAt = &t
		}
		h.CreatedAt = timeFromUnixMillis(created)
		h.UpdatedAt = timeFromUnixMillis(updated)
		h.Metadata = unmarshalMeta(meta)
		out = append(out, h)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "unique")
}
