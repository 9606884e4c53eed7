package scheduler_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flock/internal/logx"
	"flock/internal/persistence"
	"flock/internal/persistence/memstore"
	"flock/internal/scheduler"
)

type trackingSender struct {
	mu        sync.Mutex
	inFlight  map[string]bool
	overlaps  int32
	sentCount int32
	delay     time.Duration
}

func newTrackingSender(delay time.Duration) *trackingSender {
	return &trackingSender{inFlight: map[string]bool{}, delay: delay}
}

func (s *trackingSender) SendTick(ctx context.Context, agentID string, content scheduler.TickContent) error {
	s.mu.Lock()
	if s.inFlight[agentID] {
		atomic.AddInt32(&s.overlaps, 1)
	}
	s.inFlight[agentID] = true
	s.mu.Unlock()

	time.Sleep(s.delay)
	atomic.AddInt32(&s.sentCount, 1)

	s.mu.Lock()
	s.inFlight[agentID] = false
	s.mu.Unlock()
	return nil
}

func newCoordinator(t *testing.T, sender scheduler.TickSender) (*scheduler.Coordinator, persistence.Backend) {
	t.Helper()
	backend := memstore.New()
	cfg := scheduler.Config{
		BaseTickInterval:  100 * time.Millisecond,
		JitterWindow:      0,
		CheckInterval:     10 * time.Millisecond,
		MaxConcurrentTick: 4,
	}
	c := scheduler.New(cfg, backend.AgentLoops(), backend.Channels(), backend.ChannelMessages(), backend.Audit(), sender, logx.New("test"))
	return c, backend
}

// property 4: no two tick dispatches to the same agent overlap, and a SLEEP
// agent is never dispatched.
func TestNoOverlappingTicksAndSleepSkipped(t *testing.T) {
	sender := newTrackingSender(20 * time.Millisecond)
	c, backend := newCoordinator(t, sender)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, id := range []string{"a1", "a2"} {
		_, err := backend.AgentLoops().Init(ctx, id)
		require.NoError(t, err)
		require.NoError(t, backend.AgentLoops().Update(ctx, id, func(r *persistence.AgentLoopRecord) {
			r.State = persistence.LoopAwake
			r.AwakenedAt = time.Now()
		}))
	}
	_, err := backend.AgentLoops().Init(ctx, "sleepy")
	require.NoError(t, err) // defaults to SLEEP per Init

	go c.Run(ctx)
	time.Sleep(150 * time.Millisecond)
	cancel()
	c.Stop()

	assert.Equal(t, int32(0), atomic.LoadInt32(&sender.overlaps))
	assert.Greater(t, atomic.LoadInt32(&sender.sentCount), int32(0))

	sender.mu.Lock()
	_, sleptWasSent := sender.inFlight["sleepy"]
	sender.mu.Unlock()
	assert.False(t, sleptWasSent)
}

func TestRequestImmediateTickBypassesJitter(t *testing.T) {
	sender := newTrackingSender(0)
	cfg := scheduler.Config{
		BaseTickInterval:  time.Hour,
		JitterWindow:      time.Minute,
		CheckInterval:     time.Hour,
		MaxConcurrentTick: 4,
	}
	backend := memstore.New()
	c := scheduler.New(cfg, backend.AgentLoops(), backend.Channels(), backend.ChannelMessages(), backend.Audit(), sender, logx.New("test"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := backend.AgentLoops().Init(ctx, "a1")
	require.NoError(t, err)
	require.NoError(t, backend.AgentLoops().Update(ctx, "a1", func(r *persistence.AgentLoopRecord) {
		r.State = persistence.LoopAwake
	}))

	go c.Run(ctx)
	defer c.Stop()

	c.RequestImmediateTick("a1")
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, int32(1), atomic.LoadInt32(&sender.sentCount))
}

func TestWakeAndTickTransitionsSleepToAwake(t *testing.T) {
	sender := newTrackingSender(0)
	c, backend := newCoordinator(t, sender)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)
	defer c.Stop()

	require.NoError(t, c.WakeAndTick(ctx, "bob"))

	record, err := backend.AgentLoops().Get(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, persistence.LoopAwake, record.State)

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&sender.sentCount))
}
