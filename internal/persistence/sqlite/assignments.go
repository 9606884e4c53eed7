package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"flock/internal/persistence"
)

type assignmentStore Backend

func (s *assignmentStore) b() *Backend { return (*Backend)(s) }

// Upsert preserves PortablePath across reassignment when the caller does
// not explicitly override it (§3 Assignment invariant).
func (s *assignmentStore) Upsert(ctx context.Context, a persistence.Assignment) error {
	if a.PortablePath == "" {
		if existing, err := s.Get(ctx, a.AgentID); err == nil {
			a.PortablePath = existing.PortablePath
		}
	}
	_, err := s.b().db.ExecContext(ctx, `
		INSERT INTO assignments (agent_id, node_id, assigned_at, portable_path) VALUES (?, ?, ?, ?)
		ON CONFLICT(agent_id) DO UPDATE SET node_id=excluded.node_id, assigned_at=excluded.assigned_at, portable_path=excluded.portable_path`,
		a.AgentID, a.NodeID, a.AssignedAt.UnixMilli(), a.PortablePath)
	if err != nil {
		return fmt.Errorf("upsert assignment: %w", err)
	}
	return nil
}

func (s *assignmentStore) Get(ctx context.Context, agentID string) (persistence.Assignment, error) {
	row := s.b().db.QueryRowContext(ctx, `
		SELECT agent_id, node_id, assigned_at, portable_path FROM assignments WHERE agent_id=?`, agentID)
	var a persistence.Assignment
	var assignedAt int64
	if err := row.Scan(&a.AgentID, &a.NodeID, &assignedAt, &a.PortablePath); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Assignment{}, persistence.ErrNotFound
		}
		return persistence.Assignment{}, fmt.Errorf("scan assignment: %w", err)
	}
	a.AssignedAt = timeFromUnixMillis(assignedAt)
	return a, nil
}
