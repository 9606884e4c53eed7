package migration_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flock/internal/home"
	"flock/internal/logx"
	"flock/internal/migration"
	"flock/internal/persistence"
	"flock/internal/persistence/memstore"
)

type staticSnapshotSource struct {
	files map[string][]byte
}

func (s staticSnapshotSource) Files(ctx context.Context) (map[string][]byte, error) {
	return s.files, nil
}

// tamperingTransport wraps a Transport and corrupts the archive passed to
// TransferAndVerify, simulating data corruption in transit.
type tamperingTransport struct {
	inner migration.Transport
}

func (t *tamperingTransport) NotifyRequest(ctx context.Context, target persistence.Endpoint, ticket persistence.MigrationTicket) error {
	return t.inner.NotifyRequest(ctx, target, ticket)
}

func (t *tamperingTransport) TransferAndVerify(ctx context.Context, target persistence.Endpoint, migrationID string, archive []byte, digestHex string) error {
	corrupted := append([]byte{}, archive...)
	if len(corrupted) > 0 {
		corrupted[0] ^= 0xFF
	}
	return t.inner.TransferAndVerify(ctx, target, migrationID, corrupted, digestHex)
}

func (t *tamperingTransport) Rehydrate(ctx context.Context, target persistence.Endpoint, migrationID string) ([]string, error) {
	return t.inner.Rehydrate(ctx, target, migrationID)
}

type testRig struct {
	orch    *migration.Orchestrator
	engine  *migration.Engine
	homes   *home.Machine
	backend *memstore.Backend
}

func newTestRig(transport migration.Transport) testRig {
	backend := memstore.New()
	logger := logx.New("test")
	homes := home.New(backend.Homes(), backend.Transitions(), backend.Audit(), logger)
	engine := migration.NewEngine(backend.MigrationTickets())
	retry := migration.NewRetryPolicy(migration.RetryConfig{
		MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, BackoffFactor: 2.0,
	})
	source := func(homeID string) migration.SnapshotSource {
		return staticSnapshotSource{files: map[string][]byte{"SOUL.md": []byte("hello " + homeID)}}
	}
	orch := migration.NewOrchestrator(engine, homes, backend.Assignments(), transport, retry,
		migration.DefaultPhaseTimeouts(), source, backend.Audit(), logger)
	return testRig{orch: orch, engine: engine, homes: homes, backend: backend}
}

// setupMigration creates a source home in IDLE and an initiated ticket
// targeting node-dst, returning the source home.
func (r testRig) setupMigration(ctx context.Context, t *testing.T, agentID, migrationID string) persistence.Home {
	srcHome, err := r.homes.Create(ctx, agentID, "node-src")
	require.NoError(t, err)
	_, err = r.homes.Transition(ctx, srcHome.HomeID, persistence.HomeProvisioning, "provisioning", "test")
	require.NoError(t, err)
	_, err = r.homes.Transition(ctx, srcHome.HomeID, persistence.HomeIdle, "provisioned", "test")
	require.NoError(t, err)

	source := persistence.Endpoint{NodeID: "node-src", HomeID: srcHome.HomeID, Endpoint: "node-src:7000"}
	target := persistence.Endpoint{NodeID: "node-dst", HomeID: agentID + "@node-dst", Endpoint: "node-dst:7000"}
	_, err = r.engine.Initiate(ctx, migrationID, agentID, source, target, "rebalance")
	require.NoError(t, err)
	return srcHome
}

// S5: migration happy path.
func TestOrchestratorHappyPathCompletes(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig(migration.NewTransportInProcess(logx.New("transport")))
	srcHome := rig.setupMigration(ctx, t, "agent-a", "mig-1")

	require.NoError(t, rig.orch.Run(ctx, "mig-1"))

	ticket, err := rig.engine.Get(ctx, "mig-1")
	require.NoError(t, err)
	assert.Equal(t, persistence.PhaseCompleted, ticket.Phase)

	assignment, err := rig.backend.Assignments().Get(ctx, "agent-a")
	require.NoError(t, err)
	assert.Equal(t, "node-dst", assignment.NodeID)

	finalHome, err := rig.homes.Get(ctx, srcHome.HomeID)
	require.NoError(t, err)
	assert.Equal(t, persistence.HomeRetired, finalHome.State)

	guard := migration.NewFrozenGuard(rig.backend.MigrationTickets(), migration.DefaultPhaseTimeouts())
	result, err := guard.Check(ctx, "agent-a")
	require.NoError(t, err)
	assert.False(t, result.Rejected)
}

// S6: a verification failure (tampered archive) rolls the migration back.
func TestOrchestratorVerificationFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	inproc := migration.NewTransportInProcess(logx.New("transport"))
	rig := newTestRig(&tamperingTransport{inner: inproc})
	srcHome := rig.setupMigration(ctx, t, "agent-c", "mig-3")

	err := rig.orch.Run(ctx, "mig-3")
	assert.Error(t, err)

	ticket, gerr := rig.engine.Get(ctx, "mig-3")
	require.NoError(t, gerr)
	assert.Contains(t, []persistence.MigrationPhase{persistence.PhaseFailed, persistence.PhaseAborted}, ticket.Phase)

	finalHome, gerr := rig.homes.Get(ctx, srcHome.HomeID)
	require.NoError(t, gerr)
	assert.NotEqual(t, persistence.HomeRetired, finalHome.State)

	_, aerr := rig.backend.Assignments().Get(ctx, "agent-c")
	assert.Error(t, aerr)

	guard := migration.NewFrozenGuard(rig.backend.MigrationTickets(), migration.DefaultPhaseTimeouts())
	result, gerr := guard.Check(ctx, "agent-c")
	require.NoError(t, gerr)
	assert.False(t, result.Rejected)
}
