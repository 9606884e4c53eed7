// Package migration implements the multi-phase agent-relocation protocol:
// ticket phase machine, snapshot builder, transport abstraction, frozen
// guard, and the orchestrator that drives a ticket from REQUESTED to one
// of {COMPLETED, ABORTED, FAILED}. The phase table follows the same
// adjacency-list shape as internal/home's transition table, generalized
// from a linear table to the branching DAG migration phases require.
package migration

import (
	"strings"
	"time"

	"flock/internal/ferrors"
	"flock/internal/persistence"
)

// PhaseTable is the exact phase DAG from §4.6.
var PhaseTable = map[persistence.MigrationPhase][]persistence.MigrationPhase{
	persistence.PhaseRequested:    {persistence.PhaseAuthorized, persistence.PhaseAborted, persistence.PhaseFailed},
	persistence.PhaseAuthorized:   {persistence.PhaseFreezing, persistence.PhaseAborted, persistence.PhaseFailed},
	persistence.PhaseFreezing:     {persistence.PhaseFrozen, persistence.PhaseAborted, persistence.PhaseFailed},
	persistence.PhaseFrozen:       {persistence.PhaseSnapshotting, persistence.PhaseAborted, persistence.PhaseFailed},
	persistence.PhaseSnapshotting: {persistence.PhaseTransferring, persistence.PhaseAborted, persistence.PhaseFailed},
	persistence.PhaseTransferring: {persistence.PhaseVerifying, persistence.PhaseAborted, persistence.PhaseFailed},
	persistence.PhaseVerifying:    {persistence.PhaseRehydrating, persistence.PhaseAborted, persistence.PhaseFailed},
	persistence.PhaseRehydrating:  {persistence.PhaseFinalizing, persistence.PhaseAborted, persistence.PhaseFailed},
	persistence.PhaseFinalizing:   {persistence.PhaseCompleted, persistence.PhaseAborted, persistence.PhaseFailed},
	persistence.PhaseCompleted:    {},
	persistence.PhaseAborted:      {},
	persistence.PhaseFailed:       {},
}

// FrozenPhases is the set of phases during which the frozen guard rejects
// operations on the agent (§4.6 "Frozen guard").
var FrozenPhases = map[persistence.MigrationPhase]bool{
	persistence.PhaseFreezing:     true,
	persistence.PhaseFrozen:       true,
	persistence.PhaseSnapshotting: true,
	persistence.PhaseTransferring: true,
	persistence.PhaseVerifying:    true,
	persistence.PhaseRehydrating:  true,
}

// IsTerminal reports whether phase has no outgoing transitions.
func IsTerminal(phase persistence.MigrationPhase) bool {
	return phase == persistence.PhaseCompleted || phase == persistence.PhaseAborted || phase == persistence.PhaseFailed
}

// IsValidPhaseTransition reports whether to is reachable from from in one
// hop of the phase DAG.
func IsValidPhaseTransition(from, to persistence.MigrationPhase) bool {
	allowed, ok := PhaseTable[from]
	if !ok {
		return false
	}
	for _, p := range allowed {
		if p == to {
			return true
		}
	}
	return false
}

// ErrInvalidPhaseTransition builds the diagnostic error §4.6 requires:
// naming both from/to and the allowed set.
func ErrInvalidPhaseTransition(from, to persistence.MigrationPhase) error {
	allowed, _ := PhaseTable[from]
	names := make([]string, len(allowed))
	for i, p := range allowed {
		names[i] = string(p)
	}
	return ferrors.Newf(ferrors.Validation, ferrors.ErrInvalidPhase,
		"invalid migration phase transition %s -> %s (allowed: %s)", from, to, strings.Join(names, ", "))
}

// PhaseTimeouts is the §6 phase-timeout default table, keyed by the phase
// a ticket is entering (e.g. PhaseTransferring's timeout bounds how long
// the ticket may remain in TRANSFERRING before the orchestrator rolls
// back). Also used verbatim as the frozen guard's estimatedDowntime per
// phase (§4.6/S5: "estimatedDowntime=300000" while TRANSFERRING).
type PhaseTimeouts map[persistence.MigrationPhase]int64 // milliseconds

// DefaultPhaseTimeouts matches the §6 phase-timeout-defaults table.
func DefaultPhaseTimeouts() PhaseTimeouts {
	return PhaseTimeouts{
		persistence.PhaseFreezing:     30_000,
		persistence.PhaseSnapshotting: 300_000,
		persistence.PhaseTransferring: 300_000,
		persistence.PhaseVerifying:    60_000,
		persistence.PhaseRehydrating:  300_000,
		persistence.PhaseFinalizing:   30_000,
	}
}

// PhaseTimeoutsFromConfig converts internal/config's
// MigrationConfig.PhaseTimeouts (map[string]time.Duration, keyed by phase
// name, as YAML documents it) into the engine-internal millisecond-keyed
// representation. Unrecognized or malformed keys are skipped rather than
// rejected, so an operator typo in flock.yaml degrades to the §6 default
// for that one phase instead of failing config load.
func PhaseTimeoutsFromConfig(cfg map[string]time.Duration) PhaseTimeouts {
	out := DefaultPhaseTimeouts()
	for name, d := range cfg {
		phase := persistence.MigrationPhase(name)
		if _, ok := PhaseTable[phase]; !ok {
			continue
		}
		out[phase] = d.Milliseconds()
	}
	return out
}
