// Package home implements the home lifecycle state machine: home
// creation, legal-transition enforcement, transition/audit emission, and
// lease expiry sweeping. The machine is persistence-store-backed, not a
// single in-process FSM, since Home records must survive process restarts
// and be visible to routing and migration.
package home

import (
	"context"
	"fmt"
	"time"

	"flock/internal/ferrors"
	"flock/internal/ids"
	"flock/internal/logx"
	"flock/internal/metrics"
	"flock/internal/persistence"
)

// TransitionTable is the adjacency list of legal home state transitions,
// exactly the table in spec §4.2.
var TransitionTable = map[persistence.HomeState][]persistence.HomeState{
	persistence.HomeUnassigned:   {persistence.HomeProvisioning, persistence.HomeRetired},
	persistence.HomeProvisioning: {persistence.HomeIdle, persistence.HomeError},
	persistence.HomeIdle:         {persistence.HomeLeased, persistence.HomeFrozen, persistence.HomeRetired, persistence.HomeError},
	persistence.HomeLeased:       {persistence.HomeActive, persistence.HomeFrozen, persistence.HomeIdle, persistence.HomeError},
	persistence.HomeActive:       {persistence.HomeLeased, persistence.HomeFrozen, persistence.HomeIdle, persistence.HomeError},
	persistence.HomeFrozen:       {persistence.HomeLeased, persistence.HomeMigrating, persistence.HomeIdle, persistence.HomeRetired, persistence.HomeError},
	persistence.HomeMigrating:    {persistence.HomeProvisioning, persistence.HomeFrozen, persistence.HomeError},
	persistence.HomeError:        {persistence.HomeProvisioning, persistence.HomeRetired, persistence.HomeUnassigned},
	persistence.HomeRetired:      {},
}

// IsValidTransition reports whether to is reachable from from.
func IsValidTransition(from, to persistence.HomeState) bool {
	for _, allowed := range TransitionTable[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func allowedSetString(from persistence.HomeState) string {
	allowed := TransitionTable[from]
	if len(allowed) == 0 {
		return "(none, terminal)"
	}
	out := ""
	for i, s := range allowed {
		if i > 0 {
			out += ", "
		}
		out += string(s)
	}
	return out
}

// Machine is the home state machine.
type Machine struct {
	homes   persistence.HomeStore
	trans   persistence.TransitionStore
	audit   persistence.AuditStore
	logger  *logx.Logger
	metrics metrics.Recorder
}

// New constructs a Machine over the given stores.
func New(homes persistence.HomeStore, trans persistence.TransitionStore, audit persistence.AuditStore, logger *logx.Logger) *Machine {
	return &Machine{homes: homes, trans: trans, audit: audit, logger: logger, metrics: metrics.Noop{}}
}

// SetMetrics wires a metrics.Recorder into the machine; omit to keep the
// no-op default.
func (m *Machine) SetMetrics(rec metrics.Recorder) {
	m.metrics = rec
}

// Create inserts a new UNASSIGNED home for agentID on nodeID.
func (m *Machine) Create(ctx context.Context, agentID, nodeID string) (persistence.Home, error) {
	if err := ids.Validate("agentID", agentID); err != nil {
		return persistence.Home{}, err
	}
	if err := ids.Validate("nodeID", nodeID); err != nil {
		return persistence.Home{}, err
	}
	now := time.Now()
	h := persistence.Home{
		HomeID:    ids.HomeID(agentID, nodeID),
		AgentID:   agentID,
		NodeID:    nodeID,
		State:     persistence.HomeUnassigned,
		CreatedAt: now,
		UpdatedAt: now,
		Metadata:  map[string]string{},
	}
	if err := m.homes.Insert(ctx, h); err != nil {
		return persistence.Home{}, fmt.Errorf("create home %s: %w", h.HomeID, err)
	}
	return h, nil
}

// Get returns the current Home record.
func (m *Machine) Get(ctx context.Context, homeID string) (persistence.Home, error) {
	h, err := m.homes.Get(ctx, homeID)
	if err != nil {
		return persistence.Home{}, ferrors.New(ferrors.NotFound, ferrors.ErrHomeNotFound, fmt.Sprintf("home %q not found", homeID))
	}
	return h, nil
}

// List returns homes matching filter.
func (m *Machine) List(ctx context.Context, filter persistence.HomeFilter) ([]persistence.Home, error) {
	return m.homes.List(ctx, filter)
}

// Transition enforces a legal state change, then records a HomeTransition
// and an AuditEntry alongside the home update, per §4.2. These are
// separate store calls, not one atomic write.
func (m *Machine) Transition(ctx context.Context, homeID string, to persistence.HomeState, reason, triggeredBy string) (persistence.HomeTransition, error) {
	h, err := m.homes.Get(ctx, homeID)
	if err != nil {
		return persistence.HomeTransition{}, ferrors.New(ferrors.NotFound, ferrors.ErrHomeNotFound, fmt.Sprintf("home %q not found", homeID))
	}

	from := h.State
	if !IsValidTransition(from, to) {
		return persistence.HomeTransition{}, ferrors.Newf(ferrors.Validation, ferrors.ErrInvalidTransition,
			"cannot transition home %q from %s to %s (allowed: %s)", homeID, from, to, allowedSetString(from))
	}

	now := time.Now()
	if err := m.homes.Update(ctx, homeID, func(rec *persistence.Home) {
		rec.State = to
		rec.UpdatedAt = now
		if to == persistence.HomeFrozen || to == persistence.HomeRetired {
			rec.LeaseExpiresAt = nil
		}
	}); err != nil {
		return persistence.HomeTransition{}, fmt.Errorf("update home %s: %w", homeID, err)
	}

	t := persistence.HomeTransition{
		HomeID:      homeID,
		Timestamp:   now,
		FromState:   from,
		ToState:     to,
		Reason:      reason,
		TriggeredBy: triggeredBy,
	}
	if err := m.trans.Insert(ctx, t); err != nil {
		return persistence.HomeTransition{}, fmt.Errorf("insert transition for %s: %w", homeID, err)
	}

	level := persistence.AuditGreen
	if to == persistence.HomeFrozen || to == persistence.HomeError {
		level = persistence.AuditYellow
	}
	entry := persistence.AuditEntry{
		ID:        fmt.Sprintf("transition-%s-%d", homeID, now.UnixNano()),
		Timestamp: now,
		AgentID:   h.AgentID,
		HomeID:    homeID,
		Action:    "home.transition",
		Level:     level,
		Detail:    fmt.Sprintf("%s -> %s (%s)", from, to, reason),
	}
	if err := persistence.InsertAudit(ctx, m.audit, m.logger, entry); err != nil {
		return persistence.HomeTransition{}, fmt.Errorf("insert audit entry for %s: %w", homeID, err)
	}
	m.metrics.IncAuditEntry(string(level))
	if level == persistence.AuditYellow {
		m.logger.Warn("home %s: %s", homeID, entry.Detail)
	}

	return t, nil
}

// SetLeaseExpiry sets or clears the home's lease expiry timestamp.
func (m *Machine) SetLeaseExpiry(ctx context.Context, homeID string, t time.Time) error {
	return m.homes.Update(ctx, homeID, func(rec *persistence.Home) {
		expiry := t
		rec.LeaseExpiresAt = &expiry
		rec.UpdatedAt = time.Now()
	})
}

// CheckLeaseExpiry scans LEASED/ACTIVE homes and transitions any whose
// lease has expired into FROZEN, per §4.2.
func (m *Machine) CheckLeaseExpiry(ctx context.Context) ([]persistence.HomeTransition, error) {
	now := time.Now()
	var expired []persistence.Home
	for _, st := range []persistence.HomeState{persistence.HomeLeased, persistence.HomeActive} {
		state := st
		homes, err := m.homes.List(ctx, persistence.HomeFilter{State: &state})
		if err != nil {
			return nil, fmt.Errorf("list %s homes: %w", st, err)
		}
		for _, h := range homes {
			if h.LeaseExpiresAt != nil && !h.LeaseExpiresAt.After(now) {
				expired = append(expired, h)
			}
		}
	}

	var out []persistence.HomeTransition
	for _, h := range expired {
		t, err := m.Transition(ctx, h.HomeID, persistence.HomeFrozen, "lease expired", "system")
		if err != nil {
			m.logger.Warn("lease expiry transition failed for %s: %v", h.HomeID, err)
			continue
		}
		out = append(out, t)
	}
	return out, nil
}
