package migration

import (
	"context"
	"fmt"
	"sync"
	"time"

	"flock/internal/ferrors"
	"flock/internal/logx"
	"flock/internal/persistence"
)

// Engine owns the MigrationTicket phase machine: it persists every phase
// transition and serializes concurrent AdvancePhase calls on the same
// ticket so exactly one succeeds (§4.6 invariant, property: "concurrent
// advancePhase on the same ticket ... produce exactly one success; the
// loser sees ErrInvalidPhase"). The per-ticket mutex is held only across
// the compare-and-set, never across I/O (§5), mirroring internal/home's
// store-serialized transition pattern.
type Engine struct {
	tickets persistence.MigrationTicketStore
	audit   persistence.AuditStore
	logger  *logx.Logger

	ticketLocksMu sync.Mutex
	ticketLocks   map[string]*sync.Mutex
}

// NewEngine constructs an Engine.
func NewEngine(tickets persistence.MigrationTicketStore) *Engine {
	return &Engine{
		tickets:     tickets,
		ticketLocks: map[string]*sync.Mutex{},
	}
}

// SetAudit wires an audit trail into the engine: every phase transition
// (AdvancePhase, Fail, Abort) then records an AuditEntry, mirroring
// internal/home's transition+audit emission. Omit to keep ticket phase
// transitions unaudited.
func (e *Engine) SetAudit(audit persistence.AuditStore, logger *logx.Logger) {
	e.audit = audit
	e.logger = logger
}

// auditTransition records one migration phase transition. No-op if
// SetAudit was never called.
func (e *Engine) auditTransition(migrationID string, from, to persistence.MigrationPhase, detail string, level persistence.AuditLevel) {
	if e.audit == nil {
		return
	}
	now := time.Now()
	entry := persistence.AuditEntry{
		ID:        fmt.Sprintf("migration-phase-%s-%d", migrationID, now.UnixNano()),
		Timestamp: now,
		Action:    "migration.phase",
		Level:     level,
		Detail:    fmt.Sprintf("%s -> %s (%s)", from, to, detail),
	}
	if err := persistence.InsertAudit(context.Background(), e.audit, e.logger, entry); err != nil {
		e.logger.Warn("failed to record phase-transition audit entry for %s: %v", migrationID, err)
	}
}

func (e *Engine) lockFor(migrationID string) *sync.Mutex {
	e.ticketLocksMu.Lock()
	defer e.ticketLocksMu.Unlock()
	m, ok := e.ticketLocks[migrationID]
	if !ok {
		m = &sync.Mutex{}
		e.ticketLocks[migrationID] = m
	}
	return m
}

// Initiate creates a REQUESTED ticket.
func (e *Engine) Initiate(ctx context.Context, migrationID, agentID string, source, target persistence.Endpoint, reason string) (persistence.MigrationTicket, error) {
	now := time.Now()
	ticket := persistence.MigrationTicket{
		MigrationID: migrationID,
		AgentID:     agentID,
		Source:      source,
		Target:      target,
		Phase:       persistence.PhaseRequested,
		Reason:      reason,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.tickets.Insert(ctx, ticket); err != nil {
		return persistence.MigrationTicket{}, err
	}
	return ticket, nil
}

// Get fetches the ticket.
func (e *Engine) Get(ctx context.Context, migrationID string) (persistence.MigrationTicket, error) {
	t, err := e.tickets.Get(ctx, migrationID)
	if err != nil {
		return persistence.MigrationTicket{}, ferrors.New(ferrors.NotFound, ferrors.ErrTicketNotFound, "migration ticket not found")
	}
	return t, nil
}

// AdvancePhase validates to against the phase DAG from the ticket's
// current phase, then persists the transition under the per-ticket lock.
// The lock guards only the compare-and-set: the validity check reads the
// current phase, and the store write is the atomic commit point.
func (e *Engine) AdvancePhase(ctx context.Context, migrationID string, to persistence.MigrationPhase, mutate func(*persistence.MigrationTicket)) (persistence.MigrationTicket, error) {
	lock := e.lockFor(migrationID)
	lock.Lock()
	defer lock.Unlock()

	current, err := e.tickets.Get(ctx, migrationID)
	if err != nil {
		return persistence.MigrationTicket{}, ferrors.New(ferrors.NotFound, ferrors.ErrTicketNotFound, "migration ticket not found")
	}
	if !IsValidPhaseTransition(current.Phase, to) {
		return persistence.MigrationTicket{}, ErrInvalidPhaseTransition(current.Phase, to)
	}

	now := time.Now()
	if err := e.tickets.Update(ctx, migrationID, func(t *persistence.MigrationTicket) {
		t.Phase = to
		t.UpdatedAt = now
		if mutate != nil {
			mutate(t)
		}
	}); err != nil {
		return persistence.MigrationTicket{}, err
	}

	level := persistence.AuditGreen
	if FrozenPhases[to] {
		level = persistence.AuditYellow
	}
	e.auditTransition(migrationID, current.Phase, to, "advance", level)

	return e.tickets.Get(ctx, migrationID)
}

// SetSnapshotMeta records the computed snapshot digest/size on the ticket
// without a phase transition.
func (e *Engine) SetSnapshotMeta(ctx context.Context, migrationID, digest string, sizeBytes int64) error {
	return e.tickets.Update(ctx, migrationID, func(t *persistence.MigrationTicket) {
		t.SnapshotDigest = digest
		t.SnapshotSizeBytes = sizeBytes
		t.UpdatedAt = time.Now()
	})
}

// Fail transitions a ticket directly to FAILED, recording err's message,
// ignoring the normal DAG check failure if the current phase is already
// terminal (a no-op in that case).
func (e *Engine) Fail(ctx context.Context, migrationID string, cause error) error {
	lock := e.lockFor(migrationID)
	lock.Lock()
	defer lock.Unlock()

	current, err := e.tickets.Get(ctx, migrationID)
	if err != nil {
		return ferrors.New(ferrors.NotFound, ferrors.ErrTicketNotFound, "migration ticket not found")
	}
	if IsTerminal(current.Phase) {
		return nil
	}
	now := time.Now()
	if err := e.tickets.Update(ctx, migrationID, func(t *persistence.MigrationTicket) {
		t.Phase = persistence.PhaseFailed
		t.UpdatedAt = now
		if cause != nil {
			t.Error = cause.Error()
		}
	}); err != nil {
		return err
	}
	detail := ""
	if cause != nil {
		detail = cause.Error()
	}
	e.auditTransition(migrationID, current.Phase, persistence.PhaseFailed, detail, persistence.AuditRed)
	return nil
}

// Abort transitions a ticket directly to ABORTED with reason, a no-op if
// already terminal.
func (e *Engine) Abort(ctx context.Context, migrationID, reason string) error {
	lock := e.lockFor(migrationID)
	lock.Lock()
	defer lock.Unlock()

	current, err := e.tickets.Get(ctx, migrationID)
	if err != nil {
		return ferrors.New(ferrors.NotFound, ferrors.ErrTicketNotFound, "migration ticket not found")
	}
	if IsTerminal(current.Phase) {
		return nil
	}
	now := time.Now()
	if err := e.tickets.Update(ctx, migrationID, func(t *persistence.MigrationTicket) {
		t.Phase = persistence.PhaseAborted
		t.UpdatedAt = now
		t.Error = reason
	}); err != nil {
		return err
	}
	e.auditTransition(migrationID, current.Phase, persistence.PhaseAborted, reason, persistence.AuditYellow)
	return nil
}
