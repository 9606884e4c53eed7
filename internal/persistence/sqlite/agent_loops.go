package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"flock/internal/persistence"
)

type agentLoopStore Backend

func (s *agentLoopStore) b() *Backend { return (*Backend)(s) }

func (s *agentLoopStore) Init(ctx context.Context, agentID string) (persistence.AgentLoopRecord, error) {
	s.b().loopMu.Lock()
	defer s.b().loopMu.Unlock()

	existing, err := s.getLocked(ctx, agentID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, persistence.ErrNotFound) {
		return persistence.AgentLoopRecord{}, err
	}
	r := persistence.AgentLoopRecord{AgentID: agentID, State: persistence.LoopSleep}
	_, err = s.b().db.ExecContext(ctx, `
		INSERT INTO agent_loops (agent_id, state, last_tick_at, awakened_at, slept_at, sleep_reason)
		VALUES (?, ?, NULL, NULL, NULL, '')`, agentID, string(r.State))
	if err != nil {
		return persistence.AgentLoopRecord{}, fmt.Errorf("init agent loop: %w", err)
	}
	return r, nil
}

func (s *agentLoopStore) Get(ctx context.Context, agentID string) (persistence.AgentLoopRecord, error) {
	return s.getLocked(ctx, agentID)
}

func (s *agentLoopStore) getLocked(ctx context.Context, agentID string) (persistence.AgentLoopRecord, error) {
	row := s.b().db.QueryRowContext(ctx, `
		SELECT agent_id, state, last_tick_at, awakened_at, slept_at, sleep_reason FROM agent_loops WHERE agent_id=?`, agentID)
	var r persistence.AgentLoopRecord
	var state string
	var lastTick, awakened, slept sql.NullInt64
	if err := row.Scan(&r.AgentID, &state, &lastTick, &awakened, &slept, &r.SleepReason); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.AgentLoopRecord{}, persistence.ErrNotFound
		}
		return persistence.AgentLoopRecord{}, fmt.Errorf("scan agent loop: %w", err)
	}
	r.State = persistence.LoopState(state)
	if lastTick.Valid {
		r.LastTickAt = timeFromUnixMillis(lastTick.Int64)
	}
	if awakened.Valid {
		r.AwakenedAt = timeFromUnixMillis(awakened.Int64)
	}
	if slept.Valid {
		t := timeFromUnixMillis(slept.Int64)
		r.SleptAt = &t
	}
	return r, nil
}

func (s *agentLoopStore) Update(ctx context.Context, agentID string, mutate func(*persistence.AgentLoopRecord)) error {
	s.b().loopMu.Lock()
	defer s.b().loopMu.Unlock()

	r, err := s.getLocked(ctx, agentID)
	if err != nil {
		return err
	}
	mutate(&r)
	_, err = s.b().db.ExecContext(ctx, `
		UPDATE agent_loops SET state=?, last_tick_at=?, awakened_at=?, slept_at=?, sleep_reason=? WHERE agent_id=?`,
		string(r.State), nullableZeroUnixMillis(r.LastTickAt), nullableZeroUnixMillis(r.AwakenedAt),
		nullableUnixMillis(r.SleptAt), r.SleepReason, agentID)
	if err != nil {
		return fmt.Errorf("update agent loop: %w", err)
	}
	return nil
}

func (s *agentLoopStore) ListAwake(ctx context.Context) ([]persistence.AgentLoopRecord, error) {
	rows, err := s.b().db.QueryContext(ctx, `
		SELECT agent_id, state, last_tick_at, awakened_at, slept_at, sleep_reason FROM agent_loops WHERE state=? ORDER BY agent_id`,
		string(persistence.LoopAwake))
	if err != nil {
		return nil, fmt.Errorf("list awake agents: %w", err)
	}
	defer rows.Close()

	var out []persistence.AgentLoopRecord
	for rows.Next() {
		var r persistence.AgentLoopRecord
		var state string
		var lastTick, awakened, slept sql.NullInt64
		if err := rows.Scan(&r.AgentID, &state, &lastTick, &awakened, &slept, &r.SleepReason); err != nil {
			return nil, fmt.Errorf("scan agent loop row: %w", err)
		}
		r.State = persistence.LoopState(state)
		if lastTick.Valid {
			r.LastTickAt = timeFromUnixMillis(lastTick.Int64)
		}
		if awakened.Valid {
			r.AwakenedAt = timeFromUnixMillis(awakened.Int64)
		}
		if slept.Valid {
			t := timeFromUnixMillis(slept.Int64)
			r.SleptAt = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullableZeroUnixMillis(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}
