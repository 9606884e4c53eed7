package migration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"flock/internal/ferrors"
	"flock/internal/home"
	"flock/internal/logx"
	"flock/internal/metrics"
	"flock/internal/persistence"
)

// MaxPortableSizeBytes is the §6 default for MAX_PORTABLE_SIZE_BYTES.
const MaxPortableSizeBytes int64 = 512 * 1024 * 1024

// Orchestrator is the thin driver that walks a ticket through the full
// phase sequence, building the snapshot, delegating to Transport, and
// rolling back on any non-terminal failure or cancellation (§4.6).
type Orchestrator struct {
	engine      *Engine
	homes       *home.Machine
	assignments persistence.AssignmentStore
	transport   Transport
	retry       *RetryPolicy
	timeouts    PhaseTimeouts
	source      func(homeID string) SnapshotSource
	audit       persistence.AuditStore
	logger      *logx.Logger
	metrics     metrics.Recorder
}

// SetMetrics wires a metrics.Recorder into the orchestrator; omit to keep
// the no-op default.
func (o *Orchestrator) SetMetrics(m metrics.Recorder) {
	o.metrics = m
}

// NewOrchestrator constructs an Orchestrator.
func NewOrchestrator(engine *Engine, homes *home.Machine, assignments persistence.AssignmentStore, transport Transport,
	retry *RetryPolicy, timeouts PhaseTimeouts, source func(homeID string) SnapshotSource,
	audit persistence.AuditStore, logger *logx.Logger) *Orchestrator {
	return &Orchestrator{
		engine:      engine,
		homes:       homes,
		assignments: assignments,
		transport:   transport,
		retry:       retry,
		timeouts:    timeouts,
		source:      source,
		audit:       audit,
		logger:      logger,
		metrics:     metrics.Noop{},
	}
}

// advance wraps Engine.AdvancePhase with phase-duration/outcome metrics
// (the time spent in the phase being LEFT, i.e. since the ticket's
// previous UpdatedAt).
func (o *Orchestrator) advance(ctx context.Context, migrationID string, to persistence.MigrationPhase, mutate func(*persistence.MigrationTicket)) (persistence.MigrationTicket, error) {
	before, _ := o.engine.Get(ctx, migrationID)
	start := before.UpdatedAt
	if start.IsZero() {
		start = time.Now()
	}
	ticket, err := o.engine.AdvancePhase(ctx, migrationID, to, mutate)
	o.metrics.ObserveMigrationPhase(string(to), err == nil, time.Since(start))
	return ticket, err
}

func (o *Orchestrator) phaseCtx(ctx context.Context, phase persistence.MigrationPhase) (context.Context, context.CancelFunc) {
	if ms := o.timeouts[phase]; ms > 0 {
		return context.WithTimeout(ctx, time.Duration(ms)*time.Millisecond)
	}
	return context.WithCancel(ctx)
}

// Run drives migrationID from REQUESTED to COMPLETED, or rolls back to
// ABORTED/FAILED on the first error.
func (o *Orchestrator) Run(ctx context.Context, migrationID string) error {
	ticket, err := o.engine.Get(ctx, migrationID)
	if err != nil {
		return err
	}

	notifyCtx, cancel := o.phaseCtx(ctx, persistence.PhaseRequested)
	err = o.transport.NotifyRequest(notifyCtx, ticket.Target, ticket)
	cancel()
	if err != nil {
		return o.rollback(ctx, migrationID, err)
	}

	if ticket, err = o.advance(ctx, migrationID, persistence.PhaseAuthorized, nil); err != nil {
		return o.rollback(ctx, migrationID, err)
	}

	if ticket, err = o.advance(ctx, migrationID, persistence.PhaseFreezing, nil); err != nil {
		return o.rollback(ctx, migrationID, err)
	}
	if _, err := o.homes.Transition(ctx, ticket.Source.HomeID, persistence.HomeFrozen, "migration in progress", "migration:"+migrationID); err != nil {
		return o.rollback(ctx, migrationID, err)
	}

	if ticket, err = o.advance(ctx, migrationID, persistence.PhaseFrozen, nil); err != nil {
		return o.rollback(ctx, migrationID, err)
	}

	if ticket, err = o.advance(ctx, migrationID, persistence.PhaseSnapshotting, nil); err != nil {
		return o.rollback(ctx, migrationID, err)
	}
	snapCtx, cancel := o.phaseCtx(ctx, persistence.PhaseSnapshotting)
	snap, err := BuildSnapshot(snapCtx, o.source(ticket.Source.HomeID))
	cancel()
	if err != nil {
		return o.rollback(ctx, migrationID, err)
	}
	if snap.SizeBytes > MaxPortableSizeBytes {
		return o.rollback(ctx, migrationID, ferrors.Newf(ferrors.Fatal, ferrors.ErrVerificationFailed,
			"snapshot size %d exceeds MAX_PORTABLE_SIZE_BYTES %d", snap.SizeBytes, MaxPortableSizeBytes))
	}
	if err := o.engine.SetSnapshotMeta(ctx, migrationID, snap.Digest, snap.SizeBytes); err != nil {
		return o.rollback(ctx, migrationID, err)
	}

	if ticket, err = o.advance(ctx, migrationID, persistence.PhaseTransferring, nil); err != nil {
		return o.rollback(ctx, migrationID, err)
	}
	transferCtx, cancel := o.phaseCtx(ctx, persistence.PhaseTransferring)
	err = o.transferWithRetry(transferCtx, ticket, snap)
	cancel()
	if err != nil {
		return o.rollback(ctx, migrationID, escalateIfExhausted(err))
	}

	if ticket, err = o.advance(ctx, migrationID, persistence.PhaseVerifying, nil); err != nil {
		return o.rollback(ctx, migrationID, err)
	}

	if ticket, err = o.advance(ctx, migrationID, persistence.PhaseRehydrating, nil); err != nil {
		return o.rollback(ctx, migrationID, err)
	}
	rehydrateCtx, cancel := o.phaseCtx(ctx, persistence.PhaseRehydrating)
	warnings, err := o.transport.Rehydrate(rehydrateCtx, ticket.Target, migrationID)
	cancel()
	if err != nil {
		return o.rollback(ctx, migrationID, err)
	}
	for _, w := range warnings {
		o.logger.Warn("rehydrate warning for %s: %s", migrationID, w)
	}

	if ticket, err = o.advance(ctx, migrationID, persistence.PhaseFinalizing, nil); err != nil {
		return o.rollback(ctx, migrationID, err)
	}
	if err := o.finalize(ctx, ticket); err != nil {
		return o.rollback(ctx, migrationID, err)
	}

	if _, err = o.advance(ctx, migrationID, persistence.PhaseCompleted, nil); err != nil {
		return o.rollback(ctx, migrationID, err)
	}
	return nil
}

func (o *Orchestrator) finalize(ctx context.Context, ticket persistence.MigrationTicket) error {
	if _, err := o.homes.Transition(ctx, ticket.Source.HomeID, persistence.HomeRetired, "migration complete", "migration:"+ticket.MigrationID); err != nil {
		return err
	}
	existing, err := o.assignments.Get(ctx, ticket.AgentID)
	portablePath := ""
	if err == nil {
		portablePath = existing.PortablePath
	}
	return o.assignments.Upsert(ctx, persistence.Assignment{
		AgentID:      ticket.AgentID,
		NodeID:       ticket.Target.NodeID,
		AssignedAt:   time.Now(),
		PortablePath: portablePath,
	})
}

// transferWithRetry retries TransferAndVerify per RetryPolicy's
// exponential backoff, bounded by ctx (the TRANSFERRING phase timeout).
func (o *Orchestrator) transferWithRetry(ctx context.Context, ticket persistence.MigrationTicket, snap Snapshot) error {
	var lastErr error
	for attempt := 0; attempt < o.retry.Config.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(o.retry.Delay(attempt)):
			}
		}
		err := o.transport.TransferAndVerify(ctx, ticket.Target, ticket.MigrationID, snap.Archive, snap.Digest)
		if err == nil {
			return nil
		}
		lastErr = err
		if !o.retry.ShouldRetry(err) {
			return err
		}
	}
	return fmt.Errorf("transferAndVerify exhausted %d attempts: %w", o.retry.Config.MaxAttempts, lastErr)
}

// escalateIfExhausted turns a Transient verification failure that has run
// out of retries into a Fatal one (§7: "unrecoverable verification
// mismatch" is Fatal; the recoverable variant, while retries remain, is
// Transient).
func escalateIfExhausted(err error) error {
	if errors.Is(err, ferrors.ErrVerificationFailed) {
		return ferrors.New(ferrors.Fatal, ferrors.ErrVerificationFailed, err.Error())
	}
	return err
}

// rollback aborts or fails the ticket depending on the triggering cause,
// records a RED audit entry, and best-effort unfreezes the source home so
// it returns to service (§4.6 "Any exception triggers rollback(reason) if
// the current phase is non-terminal").
func (o *Orchestrator) rollback(ctx context.Context, migrationID string, cause error) error {
	ticket, getErr := o.engine.Get(ctx, migrationID)

	var rollbackErr error
	if errors.Is(cause, context.Canceled) {
		rollbackErr = o.engine.Abort(ctx, migrationID, "canceled")
	} else {
		rollbackErr = o.engine.Fail(ctx, migrationID, cause)
	}
	if rollbackErr != nil {
		o.logger.Error("rollback of ticket %s failed: %v", migrationID, rollbackErr)
	}

	o.auditRollback(migrationID, cause)

	if getErr == nil && ticket.Source.HomeID != "" {
		if current, err := o.homes.Get(ctx, ticket.Source.HomeID); err == nil && current.State == persistence.HomeFrozen {
			if _, err := o.homes.Transition(ctx, ticket.Source.HomeID, persistence.HomeIdle, "migration rolled back", "migration:"+migrationID); err != nil {
				o.logger.Warn("failed to unfreeze source home %s after rollback: %v", ticket.Source.HomeID, err)
			}
		}
	}

	return fmt.Errorf("migration %s rolled back: %w", migrationID, cause)
}

func (o *Orchestrator) auditRollback(migrationID string, cause error) {
	if o.audit == nil {
		return
	}
	now := time.Now()
	entry := persistence.AuditEntry{
		ID:        "migration-rollback-" + migrationID + "-" + now.Format(time.RFC3339Nano),
		Timestamp: now,
		Action:    "migration.rollback",
		Level:     persistence.AuditRed,
		Detail:    cause.Error(),
	}
	if err := persistence.InsertAudit(context.Background(), o.audit, o.logger, entry); err != nil {
		o.logger.Warn("failed to record rollback audit entry for %s: %v", migrationID, err)
		return
	}
	o.metrics.IncAuditEntry(string(entry.Level))
}
