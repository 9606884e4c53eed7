package sqlite

import (
	"context"
	"fmt"

	"flock/internal/persistence"
)

type transitionStore Backend

func (s *transitionStore) b() *Backend { return (*Backend)(s) }

func (s *transitionStore) Insert(ctx context.Context, t persistence.HomeTransition) error {
	_, err := s.b().db.ExecContext(ctx, `
		INSERT INTO home_transitions (home_id, ts, from_state, to_state, reason, triggered_by)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.HomeID, t.Timestamp.UnixMilli(), string(t.FromState), string(t.ToState), t.Reason, t.TriggeredBy)
	if err != nil {
		return fmt.Errorf("insert transition: %w", err)
	}
	return nil
}

func (s *transitionStore) List(ctx context.Context, filter persistence.TransitionFilter) ([]persistence.HomeTransition, error) {
	q := `SELECT home_id, ts, from_state, to_state, reason, triggered_by FROM home_transitions WHERE 1=1`
	var args []any
	if filter.HomeID != "" {
		q += " AND home_id = ?"
		args = append(args, filter.HomeID)
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
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	defer rows.Close()

	var out []persistence.HomeTransition
	for rows.Next() {
		var t persistence.HomeTransition
		var ts int64
		var from, to string
		if err := rows.Scan(&t.HomeID, &ts, &from, &to, &t.Reason, &t.TriggeredBy); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		t.Timestamp = timeFromUnixMillis(ts)
		t.FromState = persistence.HomeState(from)
		t.ToState = persistence.HomeState(to)
		out = append(out, t)
	}
	return out, rows.Err()
}
