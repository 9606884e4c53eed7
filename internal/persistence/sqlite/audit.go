package sqlite

import (
	"context"
	"fmt"

	"flock/internal/persistence"
)

type auditStore Backend

func (s *auditStore) b() *Backend { return (*Backend)(s) }

func (s *auditStore) Insert(ctx context.Context, e persistence.AuditEntry) error {
	_, err := s.b().db.ExecContext(ctx, `
		INSERT INTO audit_entries (id, ts, agent_id, home_id, action, level, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Timestamp.UnixMilli(), e.AgentID, e.HomeID, e.Action, string(e.Level), e.Detail)
	if err != nil {
		if isUniqueViolation(err) {
			return persistence.ErrDuplicate
		}
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *auditStore) List(ctx context.Context, filter persistence.AuditFilter) ([]persistence.AuditEntry, error) {
	q := `SELECT id, ts, agent_id, home_id, action, level, detail FROM audit_entries WHERE 1=1`
	var args []any
	if filter.AgentID != "" {
		q += " AND agent_id = ?"
		args = append(args, filter.AgentID)
	}
	if filter.HomeID != "" {
		q += " AND home_id = ?"
		args = append(args, filter.HomeID)
	}
	if filter.Level != nil {
		q += " AND level = ?"
		args = append(args, string(*filter.Level))
	}
	if filter.Since != nil {
		q += " AND ts >= ?"
		args = append(args, filter.Since.UnixMilli())
	}
	q += " ORDER BY ts"
	if filter.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	rows, err := s.b().db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var out []persistence.AuditEntry
	for rows.Next() {
		var e persistence.AuditEntry
		var ts int64
		var level string
		if err := rows.Scan(&e.ID, &ts, &e.AgentID, &e.HomeID, &e.Action, &level, &e.Detail); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Timestamp = timeFromUnixMillis(ts)
		e.Level = persistence.AuditLevel(level)
		out = append(out, e)
	}
	return out, rows.Err()
}
