// Package scheduler implements the global work-loop coordinator: periodic,
// jittered ticking of AWAKE agents with bounded parallelism and immediate
// wake-on-mention. Fine-grained per-concern mutexes and pre-update-before-
// send serialization keep a given agent's ticks from overlapping; the
// bounded pool itself is built on golang.org/x/sync/semaphore.
package scheduler

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"flock/internal/logx"
	"flock/internal/metrics"
	"flock/internal/persistence"
)

// ThreadActivity describes new messages an agent has not yet seen in one
// thread (channel) it participates in. LastSeq is the highest seq among
// those new messages, the value the agent's cursor advances to once shown.
type ThreadActivity struct {
	ThreadID    string
	NewMessages int64
	LastSeq     int64
}

// TickContent is the payload delivered to a ticked agent (§4.5 item 5).
type TickContent struct {
	AgentID          string
	LoopState        persistence.LoopState
	AwakeDuration    time.Duration
	Activity         []ThreadActivity
	SleepHintEnabled bool
}

// TickSender is the abstract SessionSend sink a tick is delivered through.
type TickSender interface {
	SendTick(ctx context.Context, agentID string, content TickContent) error
}

// Config holds the coordinator's fixed timing parameters (§4.5).
type Config struct {
	BaseTickInterval  time.Duration
	JitterWindow      time.Duration
	CheckInterval     time.Duration
	MaxConcurrentTick int64
}

// Coordinator is the global periodic work-loop coordinator.
type Coordinator struct {
	cfg      Config
	loops    persistence.AgentLoopStore
	channels persistence.ChannelStore
	messages persistence.ChannelMessageStore
	audit    persistence.AuditStore
	sender   TickSender
	logger   *logx.Logger
	metrics  metrics.Recorder

	sem *semaphore.Weighted

	cursorMu sync.RWMutex
	cursors  map[string]map[string]int64 // agentID -> threadID -> lastSeenSeq

	inFlightMu sync.Mutex
	inFlight   map[string]bool // agentID -> tick currently dispatched

	immediate chan string
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// New constructs a Coordinator.
func New(cfg Config, loops persistence.AgentLoopStore, channels persistence.ChannelStore,
	messages persistence.ChannelMessageStore, audit persistence.AuditStore, sender TickSender, logger *logx.Logger) *Coordinator {
	return &Coordinator{
		cfg:       cfg,
		loops:     loops,
		channels:  channels,
		messages:  messages,
		audit:     audit,
		sender:    sender,
		logger:    logger,
		metrics:   metrics.Noop{},
		sem:       semaphore.NewWeighted(cfg.MaxConcurrentTick),
		cursors:   map[string]map[string]int64{},
		inFlight:  map[string]bool{},
		immediate: make(chan string, 256),
		stopCh:    make(chan struct{}),
	}
}

// Run starts the coordinator's check-interval loop and the immediate-tick
// consumer. It blocks until ctx is cancelled or Stop is called.
func (c *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.runCheck(ctx)
		case agentID := <-c.immediate:
			c.dispatchOne(ctx, agentID)
		}
	}
}

// SetMetrics wires a metrics.Recorder into the coordinator; omit to keep
// the no-op default.
func (c *Coordinator) SetMetrics(m metrics.Recorder) {
	c.metrics = m
}

// Stop halts the coordinator loop. Safe to call more than once.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}

// RequestImmediateTick bypasses the jitter check and queues agentID for
// dispatch as soon as a pool slot is free. Non-blocking; a full immediate
// queue drops the request and logs a warning rather than blocking the
// caller (§4.4 "errors logged, not thrown").
func (c *Coordinator) RequestImmediateTick(agentID string) {
	select {
	case c.immediate <- agentID:
	default:
		c.logger.Warn("immediate tick queue full, dropping request for %s", agentID)
	}
}

// WakeAndTick implements channels.WakeHook: transitions agentID to AWAKE if
// it was SLEEP, then requests an immediate tick.
func (c *Coordinator) WakeAndTick(ctx context.Context, agentID string) error {
	record, err := c.loops.Init(ctx, agentID)
	if err != nil {
		return err
	}
	if record.State == persistence.LoopSleep {
		now := time.Now()
		if err := c.loops.Update(ctx, agentID, func(r *persistence.AgentLoopRecord) {
			r.State = persistence.LoopAwake
			r.AwakenedAt = now
			r.SleptAt = nil
			r.SleepReason = ""
		}); err != nil {
			return err
		}
	}
	c.RequestImmediateTick(agentID)
	return nil
}

func (c *Coordinator) runCheck(ctx context.Context) {
	awake, err := c.loops.ListAwake(ctx)
	if err != nil {
		c.logger.Warn("list awake agents failed: %v", err)
		return
	}
	now := time.Now()
	for _, rec := range awake {
		if now.Sub(rec.LastTickAt) < c.cfg.BaseTickInterval+jitter(rec.AgentID, c.cfg.JitterWindow) {
			continue
		}
		c.dispatchOne(ctx, rec.AgentID)
	}
}

// dispatchOne marks lastTickAt before handing the send off to the bounded
// pool; this pre-update is the serialization point preventing overlapping
// ticks to the same agent (§4.5 item 3, property 4).
func (c *Coordinator) dispatchOne(ctx context.Context, agentID string) {
	record, err := c.loops.Get(ctx, agentID)
	if err != nil {
		c.logger.Warn("dispatch skipped, no loop record for %s: %v", agentID, err)
		return
	}
	if record.State != persistence.LoopAwake {
		return
	}

	c.inFlightMu.Lock()
	if c.inFlight[agentID] {
		c.inFlightMu.Unlock()
		return
	}
	c.inFlight[agentID] = true
	c.inFlightMu.Unlock()

	now := time.Now()
	if err := c.loops.Update(ctx, agentID, func(r *persistence.AgentLoopRecord) { r.LastTickAt = now }); err != nil {
		c.logger.Warn("failed to update lastTickAt for %s: %v", agentID, err)
		c.clearInFlight(agentID)
		return
	}

	content := c.buildContent(ctx, record, now)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.clearInFlight(agentID)
		if err := c.sem.Acquire(ctx, 1); err != nil {
			return
		}
		defer c.sem.Release(1)
		c.send(ctx, agentID, content)
	}()
}

func (c *Coordinator) clearInFlight(agentID string) {
	c.inFlightMu.Lock()
	delete(c.inFlight, agentID)
	c.inFlightMu.Unlock()
}

func (c *Coordinator) send(ctx context.Context, agentID string, content TickContent) {
	start := time.Now()
	err := c.sender.SendTick(ctx, agentID, content)
	c.metrics.ObserveTick(agentID, err == nil, time.Since(start))
	if err != nil {
		c.logger.Warn("tick send to %s failed: %v", agentID, err)
		c.auditTickFailure(agentID, err)
		return
	}
	c.updateCursorsAfterTick(agentID, content.Activity)
}

func (c *Coordinator) auditTickFailure(agentID string, err error) {
	if c.audit == nil {
		return
	}
	now := time.Now()
	entry := persistence.AuditEntry{
		ID:        "tick-failure-" + agentID + "-" + now.Format(time.RFC3339Nano),
		Timestamp: now,
		AgentID:   agentID,
		Action:    "scheduler.tick",
		Level:     persistence.AuditYellow,
		Detail:    err.Error(),
	}
	if insertErr := persistence.InsertAudit(context.Background(), c.audit, c.logger, entry); insertErr != nil {
		c.logger.Warn("failed to record tick-failure audit entry for %s: %v", agentID, insertErr)
		return
	}
	c.metrics.IncAuditEntry(string(entry.Level))
}

// buildContent assembles the tick payload: loop state, AWAKE duration, and
// new-activity-per-thread computed against the agent's thread cursors.
func (c *Coordinator) buildContent(ctx context.Context, record persistence.AgentLoopRecord, now time.Time) TickContent {
	channels, err := c.channels.List(ctx, persistence.ChannelFilter{})
	if err != nil {
		c.logger.Warn("list channels for tick content failed: %v", err)
		channels = nil
	}

	c.cursorMu.RLock()
	agentCursors := c.cursors[record.AgentID]
	c.cursorMu.RUnlock()

	var activity []ThreadActivity
	for _, ch := range channels {
		if !isMember(ch.Members, record.AgentID) {
			continue
		}
		since := agentCursors[ch.ChannelID]
		msgs, err := c.messages.List(ctx, persistence.ChannelMessageFilter{ChannelID: ch.ChannelID, SinceSeq: since})
		if err != nil {
			c.logger.Warn("list messages for channel %s failed: %v", ch.ChannelID, err)
			continue
		}
		if len(msgs) == 0 {
			continue
		}
		lastSeq := since
		for _, m := range msgs {
			if m.Seq > lastSeq {
				lastSeq = m.Seq
			}
		}
		activity = append(activity, ThreadActivity{ThreadID: ch.ChannelID, NewMessages: int64(len(msgs)), LastSeq: lastSeq})
	}

	awakeSince := record.AwakenedAt
	var duration time.Duration
	if !awakeSince.IsZero() {
		duration = now.Sub(awakeSince)
	}

	return TickContent{
		AgentID:          record.AgentID,
		LoopState:        record.State,
		AwakeDuration:    duration,
		Activity:         activity,
		SleepHintEnabled: true,
	}
}

// updateCursorsAfterTick advances the agent's per-thread cursor to the
// highest seq it was just shown. Updates are monotone (property / §4.5
// "Per-agent thread cursors").
func (c *Coordinator) updateCursorsAfterTick(agentID string, activity []ThreadActivity) {
	for _, a := range activity {
		c.AdvanceCursor(agentID, a.ThreadID, a.LastSeq)
	}
}

// AdvanceCursor implements channels.CursorAdvancer: it moves agentID's
// cursor on threadID forward to seq, monotonically (never decreasing).
func (c *Coordinator) AdvanceCursor(agentID, threadID string, seq int64) {
	c.cursorMu.Lock()
	defer c.cursorMu.Unlock()
	agentCursors, ok := c.cursors[agentID]
	if !ok {
		agentCursors = map[string]int64{}
		c.cursors[agentID] = agentCursors
	}
	if seq > agentCursors[threadID] {
		agentCursors[threadID] = seq
	}
}

func isMember(members []string, agentID string) bool {
	for _, m := range members {
		if m == agentID {
			return true
		}
	}
	return false
}

// jitter returns the deterministic per-agent offset in [-window, +window]
// derived from a 32-bit FNV hash of agentID (§4.5 item "per-agent
// deterministic jitter"). hash/fnv is a stdlib-justified leaf: no
// ecosystem hash library appears anywhere in the example pack, and a
// non-cryptographic 32-bit hash has no third-party library warranted
// (DESIGN.md).
func jitter(agentID string, window time.Duration) time.Duration {
	h := fnv.New32a()
	_, _ = h.Write([]byte(agentID))
	span := int64(2*window/time.Millisecond) + 1
	offset := int64(h.Sum32())%span - int64(window/time.Millisecond)
	return time.Duration(offset) * time.Millisecond
}
