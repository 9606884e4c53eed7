package migration_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flock/internal/migration"
	"flock/internal/persistence"
	"flock/internal/persistence/memstore"
)

// property 9: frozen-guard rejection agrees with the §4.6 phase table.
func TestFrozenGuardAgreesWithPhaseTable(t *testing.T) {
	ctx := context.Background()
	backend := memstore.New()
	guard := migration.NewFrozenGuard(backend.MigrationTickets(), migration.DefaultPhaseTimeouts())

	allPhases := []persistence.MigrationPhase{
		persistence.PhaseRequested, persistence.PhaseAuthorized, persistence.PhaseFreezing,
		persistence.PhaseFrozen, persistence.PhaseSnapshotting, persistence.PhaseTransferring,
		persistence.PhaseVerifying, persistence.PhaseRehydrating, persistence.PhaseFinalizing,
		persistence.PhaseCompleted, persistence.PhaseAborted, persistence.PhaseFailed,
	}

	for i, phase := range allPhases {
		agentID := "agent" + string(rune('a'+i))
		require.NoError(t, backend.MigrationTickets().Insert(ctx, persistence.MigrationTicket{
			MigrationID: "m" + string(rune('a'+i)),
			AgentID:     agentID,
			Phase:       phase,
		}))
		result, err := guard.Check(ctx, agentID)
		require.NoError(t, err)
		assert.Equal(t, migration.FrozenPhases[phase], result.Rejected, "phase %s", phase)
	}
}

// S5 (partial): while TRANSFERRING, frozen guard returns
// estimatedDowntime=300000.
func TestFrozenGuardTransferringDowntime(t *testing.T) {
	ctx := context.Background()
	backend := memstore.New()
	guard := migration.NewFrozenGuard(backend.MigrationTickets(), migration.DefaultPhaseTimeouts())

	require.NoError(t, backend.MigrationTickets().Insert(ctx, persistence.MigrationTicket{
		MigrationID: "m1", AgentID: "a1", Phase: persistence.PhaseTransferring,
	}))

	result, err := guard.Check(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, result.Rejected)
	assert.Equal(t, int64(300_000), result.EstimatedDowntimeMS)
}

func TestFrozenGuardUnaffectedAgentNotRejected(t *testing.T) {
	ctx := context.Background()
	backend := memstore.New()
	guard := migration.NewFrozenGuard(backend.MigrationTickets(), migration.DefaultPhaseTimeouts())

	require.NoError(t, backend.MigrationTickets().Insert(ctx, persistence.MigrationTicket{
		MigrationID: "m1", AgentID: "a1", Phase: persistence.PhaseTransferring,
	}))

	result, err := guard.Check(ctx, "a2")
	require.NoError(t, err)
	assert.False(t, result.Rejected)
}
