package channels_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flock/internal/channels"
	"flock/internal/logx"
	"flock/internal/persistence"
	"flock/internal/persistence/memstore"
)

type recordedSend struct {
	platform   channels.Platform
	externalID string
	message    string
}

type fakeExternal struct {
	mu    sync.Mutex
	sends []recordedSend
	err   error
}

func (f *fakeExternal) Send(ctx context.Context, platform channels.Platform, externalChannelID, message string, opts channels.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, recordedSend{platform: platform, externalID: externalChannelID, message: message})
	return f.err
}

type fakeWake struct {
	mu     sync.Mutex
	woken  []string
}

func (f *fakeWake) WakeAndTick(ctx context.Context, agentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.woken = append(f.woken, agentID)
	return nil
}

func newService(t *testing.T) (*channels.Service, persistence.Backend, *fakeExternal, *fakeWake) {
	t.Helper()
	backend := memstore.New()
	external := &fakeExternal{}
	wake := &fakeWake{}
	echo := channels.NewEchoTracker(30*time.Second, time.Hour)
	t.Cleanup(echo.Dispose)
	svc := channels.New(backend.Channels(), backend.ChannelMessages(), backend.Bridges(), echo, external, wake, logx.New("test"))
	return svc, backend, external, wake
}

// S3 — channel echo suppression.
func TestChannelEchoSuppression(t *testing.T) {
	ctx := context.Background()
	svc, backend, external, wake := newService(t)

	require.NoError(t, backend.Channels().Insert(ctx, persistence.Channel{
		ChannelID: "c1", Name: "general", Members: []string{"bob"},
	}))
	require.NoError(t, backend.Bridges().Insert(ctx, persistence.Bridge{
		BridgeID: "br1", ChannelID: "c1", Platform: "discord", ExternalChannelID: "dc-1", Active: true,
	}))

	msg, err := svc.HandleInbound(ctx, channels.InboundEvent{
		From: "Alice!",
		Text: "hi @bob",
		Ctx:  channels.InboundContext{Platform: channels.PlatformDiscord, ConversationID: "dc-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), msg.Seq)
	assert.Equal(t, "human:alice", msg.AgentID)

	assert.Contains(t, wake.woken, "bob")

	// The echo-tracked inbound message must not be relayed back outbound.
	errs := svc.HandleOutbound(ctx, channels.OutboundMessage{
		ChannelID: "c1", Message: "hi @bob", AgentID: "human:alice", Seq: 1,
	})
	assert.Empty(t, errs)
	assert.Empty(t, external.sends)

	// A genuine agent-originated message on a later seq must relay exactly once.
	_, err = backend.ChannelMessages().Append(ctx, "c1", "bob", "hello")
	require.NoError(t, err)

	errs = svc.HandleOutbound(ctx, channels.OutboundMessage{
		ChannelID: "c1", Message: "hello", AgentID: "bob", Seq: 2,
	})
	assert.Empty(t, errs)
	require.Len(t, external.sends, 1)
	assert.Equal(t, channels.PlatformDiscord, external.sends[0].platform)
	assert.Equal(t, "dc-1", external.sends[0].externalID)
	assert.Equal(t, "hello", external.sends[0].message)
}

// outbound from a human-prefixed agent is always skipped.
func TestHandleOutboundSkipsHumanPrefix(t *testing.T) {
	ctx := context.Background()
	svc, backend, external, _ := newService(t)

	require.NoError(t, backend.Channels().Insert(ctx, persistence.Channel{ChannelID: "c1", Name: "general"}))
	require.NoError(t, backend.Bridges().Insert(ctx, persistence.Bridge{
		BridgeID: "br1", ChannelID: "c1", Platform: "slack", ExternalChannelID: "sl-1", Active: true,
	}))

	errs := svc.HandleOutbound(ctx, channels.OutboundMessage{
		ChannelID: "c1", Message: "hi", AgentID: "human:alice", Seq: 5,
	})
	assert.Empty(t, errs)
	assert.Empty(t, external.sends)
}

// one bridge's send failure never prevents relay to another.
func TestHandleOutboundContinuesAfterBridgeFailure(t *testing.T) {
	ctx := context.Background()
	svc, backend, external, _ := newService(t)
	external.err = assertErr{}

	require.NoError(t, backend.Channels().Insert(ctx, persistence.Channel{ChannelID: "c1", Name: "general"}))
	require.NoError(t, backend.Bridges().Insert(ctx, persistence.Bridge{
		BridgeID: "br1", ChannelID: "c1", Platform: "discord", ExternalChannelID: "dc-1", Active: true,
	}))
	require.NoError(t, backend.Bridges().Insert(ctx, persistence.Bridge{
		BridgeID: "br2", ChannelID: "c1", Platform: "slack", ExternalChannelID: "sl-1", Active: true,
	}))

	errs := svc.HandleOutbound(ctx, channels.OutboundMessage{
		ChannelID: "c1", Message: "hi", AgentID: "bob", Seq: 1,
	})
	assert.Len(t, errs, 2) // both bridges fail, but both were attempted
	assert.Len(t, external.sends, 2)
}

type assertErr struct{}

func (assertErr) Error() string { return "send failed" }

func TestArchiveChannelDeactivatesBridgesAndNotifies(t *testing.T) {
	ctx := context.Background()
	svc, backend, external, _ := newService(t)

	require.NoError(t, backend.Channels().Insert(ctx, persistence.Channel{ChannelID: "c1", Name: "general"}))
	require.NoError(t, backend.Bridges().Insert(ctx, persistence.Bridge{
		BridgeID: "br1", ChannelID: "c1", Platform: "discord", ExternalChannelID: "dc-1", Active: true,
	}))

	require.NoError(t, svc.ArchiveChannel(ctx, "c1"))

	c, err := backend.Channels().Get(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, c.Archived)

	b, err := backend.Bridges().Get(ctx, "br1")
	require.NoError(t, err)
	assert.False(t, b.Active)

	require.Len(t, external.sends, 1)
	assert.Equal(t, "dc-1", external.sends[0].externalID)
}
