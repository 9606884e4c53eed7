// Package channels implements named message streams shared by agents,
// optional bidirectional bridging to external chat platforms, and echo
// suppression.
package channels

import (
	"context"
	"fmt"

	"flock/internal/ferrors"
	"flock/internal/ids"
	"flock/internal/logx"
	"flock/internal/metrics"
	"flock/internal/persistence"
)

// Platform is a supported external bridge platform.
type Platform string

const (
	PlatformDiscord Platform = "discord"
	PlatformSlack   Platform = "slack"
)

func validPlatform(p Platform) bool {
	return p == PlatformDiscord || p == PlatformSlack
}

// InboundContext identifies the external source of an inbound event.
type InboundContext struct {
	Platform       Platform
	ConversationID string
}

// InboundEvent is one message received from an external platform.
type InboundEvent struct {
	From string
	Text string
	Ctx  InboundContext
}

// SendOptions carries display metadata for an outbound relay.
type SendOptions struct {
	DisplayName string
	WebhookURL  string
	AccountID   string
}

// SendExternal is the abstract sink for relaying a message to an external
// platform (§1: "treated as an abstract SendExternal sink").
type SendExternal interface {
	Send(ctx context.Context, platform Platform, externalChannelID, message string, opts SendOptions) error
}

// WakeHook notifies the scheduler that an agent should wake immediately
// (transition SLEEP->AWAKE and request an immediate tick). Modeled as a
// capability interface per §9 rather than a direct scheduler dependency.
type WakeHook interface {
	WakeAndTick(ctx context.Context, agentID string) error
}

// OutboundMessage is the payload passed to HandleOutbound.
type OutboundMessage struct {
	ChannelID string
	Message   string
	AgentID   string
	Seq       int64 // 0 means "no echo-suppression check" (seq unset)
}

// CursorAdvancer notifies the scheduler that agentID has already seen up
// to seq in threadID, so its own post isn't re-reported to it as new
// activity on its next tick (§4.5 "updated when the agent posts").
type CursorAdvancer interface {
	AdvanceCursor(agentID, threadID string, seq int64)
}

type noopCursorAdvancer struct{}

func (noopCursorAdvancer) AdvanceCursor(string, string, int64) {}

// Service implements the channel/bridge/echo subsystem.
type Service struct {
	channels persistence.ChannelStore
	messages persistence.ChannelMessageStore
	bridges  persistence.BridgeStore
	echo     *EchoTracker
	external SendExternal
	wake     WakeHook
	logger   *logx.Logger
	metrics  metrics.Recorder
	cursors  CursorAdvancer
}

// New constructs a Service.
func New(channels persistence.ChannelStore, messages persistence.ChannelMessageStore, bridges persistence.BridgeStore,
	echo *EchoTracker, external SendExternal, wake WakeHook, logger *logx.Logger) *Service {
	return &Service{
		channels: channels,
		messages: messages,
		bridges:  bridges,
		echo:     echo,
		external: external,
		wake:     wake,
		logger:   logger,
		metrics:  metrics.Noop{},
		cursors:  noopCursorAdvancer{},
	}
}

// SetMetrics wires a metrics.Recorder into the service; omit to keep the
// no-op default.
func (s *Service) SetMetrics(m metrics.Recorder) {
	s.metrics = m
}

// SetCursorAdvancer wires the scheduler's per-agent thread cursor into the
// service; omit to keep the no-op default.
func (s *Service) SetCursorAdvancer(c CursorAdvancer) {
	s.cursors = c
}

// HandleInbound implements the §4.4 append path for a message arriving
// from a bridged external platform.
func (s *Service) HandleInbound(ctx context.Context, event InboundEvent) (persistence.ChannelMessage, error) {
	if !validPlatform(event.Ctx.Platform) {
		return persistence.ChannelMessage{}, ferrors.Newf(ferrors.Validation, ferrors.ErrInvalidID,
			"unsupported platform %q", event.Ctx.Platform)
	}
	if event.Ctx.ConversationID == "" {
		return persistence.ChannelMessage{}, ferrors.New(ferrors.Validation, ferrors.ErrInvalidID, "conversationID is required")
	}

	bridge, err := s.bridges.GetActiveByExternal(ctx, string(event.Ctx.Platform), event.Ctx.ConversationID)
	if err != nil {
		return persistence.ChannelMessage{}, ferrors.Newf(ferrors.NotFound, ferrors.ErrChannelNotFound,
			"no active bridge for %s/%s", event.Ctx.Platform, event.Ctx.ConversationID)
	}

	channel, err := s.channels.Get(ctx, bridge.ChannelID)
	if err != nil {
		s.logger.Warn("bridge %s references missing channel %s", bridge.BridgeID, bridge.ChannelID)
		return persistence.ChannelMessage{}, ferrors.New(ferrors.NotFound, ferrors.ErrChannelNotFound, "channel not found")
	}
	if channel.Archived {
		s.logger.Warn("dropping inbound message for archived channel %s", channel.ChannelID)
		return persistence.ChannelMessage{}, ferrors.New(ferrors.Conflict, ferrors.ErrAlreadyExists, "channel is archived")
	}

	agentID := "human:" + NormalizeUsername(event.From)

	msg, err := s.messages.Append(ctx, channel.ChannelID, agentID, event.Text)
	if err != nil {
		return persistence.ChannelMessage{}, fmt.Errorf("append inbound message: %w", err)
	}
	s.echo.MarkBridgedIn(channel.ChannelID, msg.Seq)
	s.metrics.ObserveChannelAppend(channel.ChannelID)

	if err := s.addMemberIfMissing(ctx, channel.ChannelID, agentID); err != nil {
		s.logger.Warn("failed to add %s to channel %s members: %v", agentID, channel.ChannelID, err)
	}

	refreshed, err := s.channels.Get(ctx, channel.ChannelID)
	if err != nil {
		refreshed = channel
	}
	for _, mentioned := range ExtractMentions(event.Text, refreshed.Members) {
		if err := s.wake.WakeAndTick(ctx, mentioned); err != nil {
			s.logger.Warn("failed to wake mentioned agent %s: %v", mentioned, err)
		}
	}

	return msg, nil
}

func (s *Service) addMemberIfMissing(ctx context.Context, channelID, agentID string) error {
	return s.channels.Update(ctx, channelID, func(c *persistence.Channel) {
		for _, m := range c.Members {
			if m == agentID {
				return
			}
		}
		c.Members = append(c.Members, agentID)
	})
}

// PostMessage appends a message an agent originates directly into
// channelID (as opposed to one relayed in from a bridged platform via
// HandleInbound), advances the poster's own scheduler cursor past it so it
// is never re-reported to the poster as new activity, wakes mentioned
// members, and relays the message to any active bridges.
func (s *Service) PostMessage(ctx context.Context, channelID, agentID, text string) (persistence.ChannelMessage, []error) {
	msg, err := s.messages.Append(ctx, channelID, agentID, text)
	if err != nil {
		return persistence.ChannelMessage{}, []error{fmt.Errorf("append message to channel %s: %w", channelID, err)}
	}
	s.metrics.ObserveChannelAppend(channelID)
	s.cursors.AdvanceCursor(agentID, channelID, msg.Seq)

	channel, err := s.channels.Get(ctx, channelID)
	if err == nil {
		for _, mentioned := range ExtractMentions(text, channel.Members) {
			if err := s.wake.WakeAndTick(ctx, mentioned); err != nil {
				s.logger.Warn("failed to wake mentioned agent %s: %v", mentioned, err)
			}
		}
	}

	errs := s.HandleOutbound(ctx, OutboundMessage{ChannelID: channelID, Message: text, AgentID: agentID, Seq: msg.Seq})
	return msg, errs
}

// HandleOutbound implements the §4.4 relay path: skip human-originated
// messages (already visible on-platform) and echo-suppressed bridged-in
// messages; one bridge's failure never aborts another's relay.
func (s *Service) HandleOutbound(ctx context.Context, out OutboundMessage) []error {
	if hasHumanPrefix(out.AgentID) {
		return nil
	}

	bridges, err := s.bridges.List(ctx, persistence.BridgeFilter{ChannelID: out.ChannelID, Active: boolPtr(true)})
	if err != nil {
		return []error{fmt.Errorf("list bridges for channel %s: %w", out.ChannelID, err)}
	}

	var errs []error
	for _, b := range bridges {
		if out.Seq != 0 && s.echo.WasBridgedIn(out.ChannelID, out.Seq) {
			continue
		}
		sendErr := s.external.Send(ctx, Platform(b.Platform), b.ExternalChannelID, out.Message, SendOptions{
			DisplayName: out.AgentID,
			WebhookURL:  b.WebhookURL,
			AccountID:   b.AccountID,
		})
		if sendErr != nil {
			s.logger.Warn("relay to bridge %s failed: %v", b.BridgeID, sendErr)
			errs = append(errs, sendErr)
		}
	}
	return errs
}

func hasHumanPrefix(agentID string) bool {
	return len(agentID) >= 6 && agentID[:6] == "human:"
}

func boolPtr(b bool) *bool { return &b }

// ArchiveChannel marks a channel archived, then deactivates every active
// bridge on it; a best-effort farewell notification is attempted through
// each deactivated bridge, and notification failures never prevent the
// archive or deactivation (§4.4). The archive and each bridge deactivation
// are separate store updates, not one transaction: a bridge whose
// deactivation fails is logged and left active while the channel stays
// archived.
func (s *Service) ArchiveChannel(ctx context.Context, channelID string) error {
	if err := ids.Validate("channelID", channelID); err != nil {
		return err
	}

	bridges, err := s.bridges.List(ctx, persistence.BridgeFilter{ChannelID: channelID, Active: boolPtr(true)})
	if err != nil {
		return fmt.Errorf("list active bridges for channel %s: %w", channelID, err)
	}

	if err := s.channels.Update(ctx, channelID, func(c *persistence.Channel) { c.Archived = true }); err != nil {
		return fmt.Errorf("archive channel %s: %w", channelID, err)
	}

	for _, b := range bridges {
		bridgeID := b.BridgeID
		if err := s.bridges.Update(ctx, bridgeID, func(rec *persistence.Bridge) { rec.Active = false }); err != nil {
			s.logger.Warn("failed to deactivate bridge %s during archive: %v", bridgeID, err)
			continue
		}
		if err := s.external.Send(ctx, Platform(b.Platform), b.ExternalChannelID, "this channel has been archived.", SendOptions{
			WebhookURL: b.WebhookURL,
			AccountID:  b.AccountID,
		}); err != nil {
			s.logger.Warn("farewell notification for bridge %s failed: %v", bridgeID, err)
		}
	}
	return nil
}
