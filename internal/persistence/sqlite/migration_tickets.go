package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"flock/internal/persistence"
)

type migrationTicketStore Backend

func (s *migrationTicketStore) b() *Backend { return (*Backend)(s) }

func (s *migrationTicketStore) Insert(ctx context.Context, t persistence.MigrationTicket) error {
	_, err := s.b().db.ExecContext(ctx, `
		INSERT INTO migration_tickets (migration_id, agent_id, source_node, source_home, source_endpoint,
			target_node, target_home, target_endpoint, phase, reason, created_at, updated_at, error,
			snapshot_digest, snapshot_size_bytes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.MigrationID, t.AgentID, t.Source.NodeID, t.Source.HomeID, t.Source.Endpoint,
		t.Target.NodeID, t.Target.HomeID, t.Target.Endpoint, string(t.Phase), t.Reason,
		t.CreatedAt.UnixMilli(), t.UpdatedAt.UnixMilli(), t.Error, t.SnapshotDigest, t.SnapshotSizeBytes)
	if err != nil {
		if isUniqueViolation(err) {
			return persistence.ErrDuplicate
		}
		return fmt.Errorf("insert migration ticket: %w", err)
	}
	return nil
}

func (s *migrationTicketStore) Update(ctx context.Context, migrationID string, mutate func(*persistence.MigrationTicket)) error {
	s.b().ticketMu.Lock()
	defer s.b().ticketMu.Unlock()

	t, err := s.getLocked(ctx, migrationID)
	if err != nil {
		return err
	}
	mutate(&t)
	_, err = s.b().db.ExecContext(ctx, `
		UPDATE migration_tickets SET agent_id=?, source_node=?, source_home=?, source_endpoint=?,
			target_node=?, target_home=?, target_endpoint=?, phase=?, reason=?, updated_at=?, error=?,
			snapshot_digest=?, snapshot_size_bytes=?
		WHERE migration_id=?`,
		t.AgentID, t.Source.NodeID, t.Source.HomeID, t.Source.Endpoint,
		t.Target.NodeID, t.Target.HomeID, t.Target.Endpoint, string(t.Phase), t.Reason,
		t.UpdatedAt.UnixMilli(), t.Error, t.SnapshotDigest, t.SnapshotSizeBytes, migrationID)
	if err != nil {
		return fmt.Errorf("update migration ticket: %w", err)
	}
	return nil
}

func (s *migrationTicketStore) Get(ctx context.Context, migrationID string) (persistence.MigrationTicket, error) {
	return s.getLocked(ctx, migrationID)
}

func (s *migrationTicketStore) getLocked(ctx context.Context, migrationID string) (persistence.MigrationTicket, error) {
	row := s.b().db.QueryRowContext(ctx, `
		SELECT migration_id, agent_id, source_node, source_home, source_endpoint,
			target_node, target_home, target_endpoint, phase, reason, created_at, updated_at, error,
			snapshot_digest, snapshot_size_bytes
		FROM migration_tickets WHERE migration_id=?`, migrationID)
	return scanTicket(row)
}

func scanTicket(row *sql.Row) (persistence.MigrationTicket, error) {
	var t persistence.MigrationTicket
	var phase string
	var created, updated int64
	if err := row.Scan(&t.MigrationID, &t.AgentID, &t.Source.NodeID, &t.Source.HomeID, &t.Source.Endpoint,
		&t.Target.NodeID, &t.Target.HomeID, &t.Target.Endpoint, &phase, &t.Reason, &created, &updated, &t.Error,
		&t.SnapshotDigest, &t.SnapshotSizeBytes); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.MigrationTicket{}, persistence.ErrNotFound
		}
		return persistence.MigrationTicket{}, fmt.Errorf("scan migration ticket: %w", err)
	}
	t.Phase = persistence.MigrationPhase(phase)
	t.CreatedAt = timeFromUnixMillis(created)
	t.UpdatedAt = timeFromUnixMillis(updated)
	return t, nil
}

func (s *migrationTicketStore) List(ctx context.Context, filter persistence.MigrationFilter) ([]persistence.MigrationTicket, error) {
	q := `SELECT migration_id, agent_id, source_node, source_home, source_endpoint,
		target_node, target_home, target_endpoint, phase, reason, created_at, updated_at, error,
		snapshot_digest, snapshot_size_bytes FROM migration_tickets WHERE 1=1`
	var args []any
	if filter.AgentID != "" {
		q += " AND agent_id = ?"
		args = append(args, filter.AgentID)
	}
	if filter.Phase != nil {
		q += " AND phase = ?"
		args = append(args, string(*filter.Phase))
	}
	q += " ORDER BY created_at"
	if filter.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	rows, err := s.b().db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list migration tickets: %w", err)
	}
	defer rows.Close()

	var out []persistence.MigrationTicket
	for rows.Next() {
		var t persistence.MigrationTicket
		var phase string
		var created, updated int64
		if err := rows.Scan(&t.MigrationID, &t.AgentID, &t.Source.NodeID, &t.Source.HomeID, &t.Source.Endpoint,
			&t.Target.NodeID, &t.Target.HomeID, &t.Target.Endpoint, &phase, &t.Reason, &created, &updated, &t.Error,
			&t.SnapshotDigest, &t.SnapshotSizeBytes); err != nil {
			return nil, fmt.Errorf("scan migration ticket row: %w", err)
		}
		t.Phase = persistence.MigrationPhase(phase)
		t.CreatedAt = timeFromUnixMillis(created)
		t.UpdatedAt = timeFromUnixMillis(updated)
		out = append(out, t)
	}
	return out, rows.Err()
}
