package migration_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"flock/internal/migration"
	"flock/internal/persistence"
)

// property 5: every observed phase sequence is a path in the phase graph
// and ends in one of {COMPLETED, ABORTED, FAILED}.
func TestPhaseTableEveryPathEndsTerminal(t *testing.T) {
	visited := map[persistence.MigrationPhase]bool{}
	var walk func(phase persistence.MigrationPhase, depth int)
	walk = func(phase persistence.MigrationPhase, depth int) {
		if depth > 20 {
			t.Fatalf("phase graph appears cyclic at %s", phase)
		}
		if visited[phase] {
			return
		}
		visited[phase] = true
		if migration.IsTerminal(phase) {
			return
		}
		next, ok := migration.PhaseTable[phase]
		if !ok || len(next) == 0 {
			t.Fatalf("non-terminal phase %s has no outgoing transitions", phase)
		}
		for _, n := range next {
			walk(n, depth+1)
		}
	}
	walk(persistence.PhaseRequested, 0)

	for _, terminal := range []persistence.MigrationPhase{persistence.PhaseCompleted, persistence.PhaseAborted, persistence.PhaseFailed} {
		assert.True(t, migration.IsTerminal(terminal))
		assert.Empty(t, migration.PhaseTable[terminal])
	}
}

func TestIsValidPhaseTransition(t *testing.T) {
	assert.True(t, migration.IsValidPhaseTransition(persistence.PhaseRequested, persistence.PhaseAuthorized))
	assert.True(t, migration.IsValidPhaseTransition(persistence.PhaseFrozen, persistence.PhaseAborted))
	assert.False(t, migration.IsValidPhaseTransition(persistence.PhaseRequested, persistence.PhaseCompleted))
	assert.False(t, migration.IsValidPhaseTransition(persistence.PhaseCompleted, persistence.PhaseRequested))
}

func TestErrInvalidPhaseTransitionNamesFromToAndAllowed(t *testing.T) {
	err := migration.ErrInvalidPhaseTransition(persistence.PhaseRequested, persistence.PhaseCompleted)
	msg := err.Error()
	assert.Contains(t, msg, "REQUESTED")
	assert.Contains(t, msg, "COMPLETED")
	assert.Contains(t, msg, "AUTHORIZED")
}
