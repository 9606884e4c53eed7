package persistence

import (
	"context"
	"errors"

	"flock/internal/logx"
)

// ErrDuplicate is returned by AuditStore.Insert on a colliding id, per §4.1.
var ErrDuplicate = errors.New("persistence: duplicate key")

// ErrNotFound is returned by any Get when the key does not exist.
var ErrNotFound = errors.New("persistence: not found")

// InsertAudit inserts entry into store and, per the AuditEntry contract
// ("RED entries trigger a logger warn side-effect"), logs a warning
// whenever a successfully recorded entry is RED. Every component that
// records an audit entry should go through this helper rather than calling
// store.Insert directly, so the RED/warn invariant can't be forgotten at a
// new call site.
func InsertAudit(ctx context.Context, store AuditStore, logger *logx.Logger, entry AuditEntry) error {
	if err := store.Insert(ctx, entry); err != nil {
		return err
	}
	if entry.Level == AuditRed {
		logger.Warn("%s: %s", entry.Action, entry.Detail)
	}
	return nil
}

// HomeStore owns Home records.
type HomeStore interface {
	Insert(ctx context.Context, h Home) error
	Update(ctx context.Context, homeID string, mutate func(*Home)) error
	Get(ctx context.Context, homeID string) (Home, error)
	List(ctx context.Context, filter HomeFilter) ([]Home, error)
}

// TransitionStore owns immutable HomeTransition rows.
type TransitionStore interface {
	Insert(ctx context.Context, t HomeTransition) error
	List(ctx context.Context, filter TransitionFilter) ([]HomeTransition, error)
}

// AuditStore owns append-only AuditEntry rows.
type AuditStore interface {
	Insert(ctx context.Context, e AuditEntry) error // ErrDuplicate on id collision
	List(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

// ChannelStore owns Channel metadata.
type ChannelStore interface {
	Insert(ctx context.Context, c Channel) error
	Update(ctx context.Context, channelID string, mutate func(*Channel)) error
	Get(ctx context.Context, channelID string) (Channel, error)
	List(ctx context.Context, filter ChannelFilter) ([]Channel, error)
}

// ChannelMessageStore owns the append-only per-channel message log.
type ChannelMessageStore interface {
	// Append assigns and returns the next sequence number for the channel
	// atomically; concurrent appends to the same channel produce strictly
	// increasing, gap-free sequence numbers (§4.1 contract).
	Append(ctx context.Context, channelID, agentID, content string) (ChannelMessage, error)
	List(ctx context.Context, filter ChannelMessageFilter) ([]ChannelMessage, error)
}

// BridgeStore owns Bridge records.
type BridgeStore interface {
	Insert(ctx context.Context, b Bridge) error
	Update(ctx context.Context, bridgeID string, mutate func(*Bridge)) error
	Get(ctx context.Context, bridgeID string) (Bridge, error)
	GetActiveByExternal(ctx context.Context, platform, externalChannelID string) (Bridge, error)
	List(ctx context.Context, filter BridgeFilter) ([]Bridge, error)
}

// AgentLoopStore owns AgentLoopRecord rows.
type AgentLoopStore interface {
	// Init is idempotent: if a record already exists it is returned
	// unmodified (§3 invariant "init is idempotent").
	Init(ctx context.Context, agentID string) (AgentLoopRecord, error)
	Get(ctx context.Context, agentID string) (AgentLoopRecord, error)
	Update(ctx context.Context, agentID string, mutate func(*AgentLoopRecord)) error
	ListAwake(ctx context.Context) ([]AgentLoopRecord, error)
}

// AssignmentStore owns the agent -> node mapping.
type AssignmentStore interface {
	Upsert(ctx context.Context, a Assignment) error
	Get(ctx context.Context, agentID string) (Assignment, error)
}

// MigrationTicketStore owns MigrationTicket rows.
type MigrationTicketStore interface {
	Insert(ctx context.Context, t MigrationTicket) error
	Update(ctx context.Context, migrationID string, mutate func(*MigrationTicket)) error
	Get(ctx context.Context, migrationID string) (MigrationTicket, error)
	List(ctx context.Context, filter MigrationFilter) ([]MigrationTicket, error)
}

// Backend bundles every store plus the migrate/close lifecycle the unified
// backend exposes per §4.1.
type Backend interface {
	Homes() HomeStore
	Transitions() TransitionStore
	Audit() AuditStore
	Channels() ChannelStore
	ChannelMessages() ChannelMessageStore
	Bridges() BridgeStore
	AgentLoops() AgentLoopStore
	Assignments() AssignmentStore
	MigrationTickets() MigrationTicketStore

	Migrate(ctx context.Context) error
	Close() error
}
