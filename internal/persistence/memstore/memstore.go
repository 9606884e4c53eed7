// Package memstore is the in-memory persistence.Backend used by every unit
// test in this repo: plain mutex-guarded maps rather than a sqlite file,
// with the same filter-struct query surface as the durable backend.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"flock/internal/persistence"
)

// Backend is an in-memory persistence.Backend.
type Backend struct {
	homes    *homeStore
	trans    *transitionStore
	audit    *auditStore
	channels *channelStore
	chMsgs   *channelMessageStore
	bridges  *bridgeStore
	loops    *agentLoopStore
	assigns  *assignmentStore
	tickets  *migrationTicketStore
}

// New creates an empty in-memory backend.
func New() *Backend {
	return &Backend{
		homes:    &homeStore{rows: map[string]persistence.Home{}},
		trans:    &transitionStore{},
		audit:    &auditStore{seen: map[string]bool{}},
		channels: &channelStore{rows: map[string]persistence.Channel{}},
		chMsgs:   &channelMessageStore{byChannel: map[string][]persistence.ChannelMessage{}},
		bridges:  &bridgeStore{rows: map[string]persistence.Bridge{}},
		loops:    &agentLoopStore{rows: map[string]persistence.AgentLoopRecord{}},
		assigns:  &assignmentStore{rows: map[string]persistence.Assignment{}},
		tickets:  &migrationTicketStore{rows: map[string]persistence.MigrationTicket{}},
	}
}

func (b *Backend) Homes() persistence.HomeStore                       { return b.homes }
func (b *Backend) Transitions() persistence.TransitionStore           { return b.trans }
func (b *Backend) Audit() persistence.AuditStore                      { return b.audit }
func (b *Backend) Channels() persistence.ChannelStore                 { return b.channels }
func (b *Backend) ChannelMessages() persistence.ChannelMessageStore   { return b.chMsgs }
func (b *Backend) Bridges() persistence.BridgeStore                   { return b.bridges }
func (b *Backend) AgentLoops() persistence.AgentLoopStore             { return b.loops }
func (b *Backend) Assignments() persistence.AssignmentStore           { return b.assigns }
func (b *Backend) MigrationTickets() persistence.MigrationTicketStore { return b.tickets }

func (b *Backend) Migrate(ctx context.Context) error { return nil }
func (b *Backend) Close() error                      { return nil }

// --- homes ---

type homeStore struct {
	mu   sync.RWMutex
	rows map[string]persistence.Home
}

func (s *homeStore) Insert(ctx context.Context, h persistence.Home) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[h.HomeID]; ok {
		return persistence.ErrDuplicate
	}
	s.rows[h.HomeID] = h
	return nil
}

func (s *homeStore) Update(ctx context.Context, homeID string, mutate func(*persistence.Home)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.rows[homeID]
	if !ok {
		return persistence.ErrNotFound
	}
	mutate(&h)
	s.rows[homeID] = h
	return nil
}

func (s *homeStore) Get(ctx context.Context, homeID string) (persistence.Home, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.rows[homeID]
	if !ok {
		return persistence.Home{}, persistence.ErrNotFound
	}
	return h, nil
}

func (s *homeStore) List(ctx context.Context, filter persistence.HomeFilter) ([]persistence.Home, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []persistence.Home
	for _, h := range s.rows {
		if filter.State != nil && h.State != *filter.State {
			continue
		}
		if filter.NodeID != "" && h.NodeID != filter.NodeID {
			continue
		}
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].HomeID < out[j].HomeID })
	return applyLimit(out, filter.Limit), nil
}

func applyLimit[T any](rows []T, limit int) []T {
	if limit > 0 && len(rows) > limit {
		return rows[:limit]
	}
	return rows
}

// --- transitions ---

type transitionStore struct {
	mu   sync.RWMutex
	rows []persistence.HomeTransition
}

func (s *transitionStore) Insert(ctx context.Context, t persistence.HomeTransition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, t)
	return nil
}

func (s *transitionStore) List(ctx context.Context, filter persistence.TransitionFilter) ([]persistence.HomeTransition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []persistence.HomeTransition
	for _, t := range s.rows {
		if filter.HomeID != "" && t.HomeID != filter.HomeID {
			continue
		}
		if filter.Since != nil && t.Timestamp.Before(*filter.Since) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return applyLimit(out, filter.Limit), nil
}

// --- audit ---

type auditStore struct {
	mu   sync.RWMutex
	rows []persistence.AuditEntry
	seen map[string]bool
}

func (s *auditStore) Insert(ctx context.Context, e persistence.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen[e.ID] {
		return persistence.ErrDuplicate
	}
	s.seen[e.ID] = true
	s.rows = append(s.rows, e)
	return nil
}

func (s *auditStore) List(ctx context.Context, filter persistence.AuditFilter) ([]persistence.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []persistence.AuditEntry
	for _, e := range s.rows {
		if filter.AgentID != "" && e.AgentID != filter.AgentID {
			continue
		}
		if filter.HomeID != "" && e.HomeID != filter.HomeID {
			continue
		}
		if filter.Level != nil && e.Level != *filter.Level {
			continue
		}
		if filter.Since != nil && e.Timestamp.Before(*filter.Since) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return applyLimit(out, filter.Limit), nil
}

// --- channels ---

type channelStore struct {
	mu   sync.RWMutex
	rows map[string]persistence.Channel
}

func (s *channelStore) Insert(ctx context.Context, c persistence.Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[c.ChannelID]; ok {
		return persistence.ErrDuplicate
	}
	s.rows[c.ChannelID] = c
	return nil
}

func (s *channelStore) Update(ctx context.Context, channelID string, mutate func(*persistence.Channel)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.rows[channelID]
	if !ok {
		return persistence.ErrNotFound
	}
	mutate(&c)
	s.rows[channelID] = c
	return nil
}

func (s *channelStore) Get(ctx context.Context, channelID string) (persistence.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.rows[channelID]
	if !ok {
		return persistence.Channel{}, persistence.ErrNotFound
	}
	return c, nil
}

func (s *channelStore) List(ctx context.Context, filter persistence.ChannelFilter) ([]persistence.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []persistence.Channel
	for _, c := range s.rows {
		if filter.Archived != nil && c.Archived != *filter.Archived {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChannelID < out[j].ChannelID })
	return applyLimit(out, filter.Limit), nil
}

// --- channel messages ---

type channelMessageStore struct {
	mu        sync.Mutex
	byChannel map[string][]persistence.ChannelMessage
}

func (s *channelMessageStore) Append(ctx context.Context, channelID, agentID, content string) (persistence.ChannelMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := int64(len(s.byChannel[channelID]) + 1)
	msg := persistence.ChannelMessage{
		ChannelID: channelID,
		Seq:       next,
		AgentID:   agentID,
		Content:   content,
		Timestamp: time.Now(),
	}
	s.byChannel[channelID] = append(s.byChannel[channelID], msg)
	return msg, nil
}

func (s *channelMessageStore) List(ctx context.Context, filter persistence.ChannelMessageFilter) ([]persistence.ChannelMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []persistence.ChannelMessage
	for _, m := range s.byChannel[filter.ChannelID] {
		if m.Seq <= filter.SinceSeq {
			continue
		}
		out = append(out, m)
	}
	return applyLimit(out, filter.Limit), nil
}

// --- bridges ---

type bridgeStore struct {
	mu   sync.RWMutex
	rows map[string]persistence.Bridge
}

func (s *bridgeStore) Insert(ctx context.Context, b persistence.Bridge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[b.BridgeID]; ok {
		return persistence.ErrDuplicate
	}
	s.rows[b.BridgeID] = b
	return nil
}

func (s *bridgeStore) Update(ctx context.Context, bridgeID string, mutate func(*persistence.Bridge)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.rows[bridgeID]
	if !ok {
		return persistence.ErrNotFound
	}
	mutate(&b)
	s.rows[bridgeID] = b
	return nil
}

func (s *bridgeStore) Get(ctx context.Context, bridgeID string) (persistence.Bridge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.rows[bridgeID]
	if !ok {
		return persistence.Bridge{}, persistence.ErrNotFound
	}
	return b, nil
}

func (s *bridgeStore) GetActiveByExternal(ctx context.Context, platform, externalChannelID string) (persistence.Bridge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.rows {
		if b.Active && b.Platform == platform && b.ExternalChannelID == externalChannelID {
			return b, nil
		}
	}
	return persistence.Bridge{}, persistence.ErrNotFound
}

func (s *bridgeStore) List(ctx context.Context, filter persistence.BridgeFilter) ([]persistence.Bridge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []persistence.Bridge
	for _, b := range s.rows {
		if filter.ChannelID != "" && b.ChannelID != filter.ChannelID {
			continue
		}
		if filter.Platform != "" && b.Platform != filter.Platform {
			continue
		}
		if filter.Active != nil && b.Active != *filter.Active {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BridgeID < out[j].BridgeID })
	return applyLimit(out, filter.Limit), nil
}

// --- agent loops ---

type agentLoopStore struct {
	mu   sync.Mutex
	rows map[string]persistence.AgentLoopRecord
}

func (s *agentLoopStore) Init(ctx context.Context, agentID string) (persistence.AgentLoopRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rows[agentID]; ok {
		return r, nil
	}
	r := persistence.AgentLoopRecord{AgentID: agentID, State: persistence.LoopSleep}
	s.rows[agentID] = r
	return r, nil
}

func (s *agentLoopStore) Get(ctx context.Context, agentID string) (persistence.AgentLoopRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[agentID]
	if !ok {
		return persistence.AgentLoopRecord{}, persistence.ErrNotFound
	}
	return r, nil
}

func (s *agentLoopStore) Update(ctx context.Context, agentID string, mutate func(*persistence.AgentLoopRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[agentID]
	if !ok {
		return persistence.ErrNotFound
	}
	mutate(&r)
	s.rows[agentID] = r
	return nil
}

func (s *agentLoopStore) ListAwake(ctx context.Context) ([]persistence.AgentLoopRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []persistence.AgentLoopRecord
	for _, r := range s.rows {
		if r.State == persistence.LoopAwake {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out, nil
}

// --- assignments ---

type assignmentStore struct {
	mu   sync.RWMutex
	rows map[string]persistence.Assignment
}

func (s *assignmentStore) Upsert(ctx context.Context, a persistence.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.rows[a.AgentID]; ok && a.PortablePath == "" {
		a.PortablePath = existing.PortablePath
	}
	s.rows[a.AgentID] = a
	return nil
}

func (s *assignmentStore) Get(ctx context.Context, agentID string) (persistence.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.rows[agentID]
	if !ok {
		return persistence.Assignment{}, persistence.ErrNotFound
	}
	return a, nil
}

// --- migration tickets ---

type migrationTicketStore struct {
	mu   sync.Mutex
	rows map[string]persistence.MigrationTicket
}

func (s *migrationTicketStore) Insert(ctx context.Context, t persistence.MigrationTicket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[t.MigrationID]; ok {
		return persistence.ErrDuplicate
	}
	s.rows[t.MigrationID] = t
	return nil
}

func (s *migrationTicketStore) Update(ctx context.Context, migrationID string, mutate func(*persistence.MigrationTicket)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.rows[migrationID]
	if !ok {
		return persistence.ErrNotFound
	}
	mutate(&t)
	s.rows[migrationID] = t
	return nil
}

func (s *migrationTicketStore) Get(ctx context.Context, migrationID string) (persistence.MigrationTicket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.rows[migrationID]
	if !ok {
		return persistence.MigrationTicket{}, persistence.ErrNotFound
	}
	return t, nil
}

func (s *migrationTicketStore) List(ctx context.Context, filter persistence.MigrationFilter) ([]persistence.MigrationTicket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []persistence.MigrationTicket
	for _, t := range s.rows {
		if filter.AgentID != "" && t.AgentID != filter.AgentID {
			continue
		}
		if filter.Phase != nil && t.Phase != *filter.Phase {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return applyLimit(out, filter.Limit), nil
}
