package home_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flock/internal/home"
	"flock/internal/logx"
	"flock/internal/persistence"
	"flock/internal/persistence/memstore"
)

func newMachine(t *testing.T) (*home.Machine, *memstore.Backend) {
	t.Helper()
	be := memstore.New()
	return home.New(be.Homes(), be.Transitions(), be.Audit(), logx.New("test")), be
}

// S1 — lease expiry.
func TestLeaseExpiry(t *testing.T) {
	ctx := context.Background()
	m, be := newMachine(t)

	h, err := m.Create(ctx, "a1", "n1")
	require.NoError(t, err)

	_, err = m.Transition(ctx, h.HomeID, persistence.HomeProvisioning, "provisioning", "test")
	require.NoError(t, err)
	_, err = m.Transition(ctx, h.HomeID, persistence.HomeIdle, "ready", "test")
	require.NoError(t, err)
	_, err = m.Transition(ctx, h.HomeID, persistence.HomeLeased, "leased", "test")
	require.NoError(t, err)

	require.NoError(t, m.SetLeaseExpiry(ctx, h.HomeID, time.Now().Add(-time.Second)))

	transitions, err := m.CheckLeaseExpiry(ctx)
	require.NoError(t, err)
	require.Len(t, transitions, 1)
	assert.Equal(t, persistence.HomeFrozen, transitions[0].ToState)
	assert.Equal(t, "lease expired", transitions[0].Reason)

	got, err := m.Get(ctx, h.HomeID)
	require.NoError(t, err)
	assert.Equal(t, persistence.HomeFrozen, got.State)
	assert.Nil(t, got.LeaseExpiresAt)

	level := persistence.AuditYellow
	entries, err := be.Audit().List(ctx, persistence.AuditFilter{HomeID: h.HomeID, Level: &level})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Detail, "lease expired")
}

// S2 — invalid transition.
func TestInvalidTransition(t *testing.T) {
	ctx := context.Background()
	m, _ := newMachine(t)

	h, err := m.Create(ctx, "a1", "n1")
	require.NoError(t, err)

	_, err = m.Transition(ctx, h.HomeID, persistence.HomeActive, "bad", "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UNASSIGNED")
	assert.Contains(t, err.Error(), "ACTIVE")
	assert.Contains(t, err.Error(), "PROVISIONING, RETIRED")
}

func TestRetiredIsTerminal(t *testing.T) {
	assert.False(t, home.IsValidTransition(persistence.HomeRetired, persistence.HomeUnassigned))
	assert.True(t, home.IsValidTransition(persistence.HomeUnassigned, persistence.HomeRetired))
}
