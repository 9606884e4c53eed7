// Package sqlite is the durable persistence.Backend: a pure-Go
// modernc.org/sqlite driver, WAL mode, a bounded busy-timeout, and a
// single-writer connection pool (SetMaxOpenConns(1)) so SQLITE_BUSY never
// surfaces to callers.
//
// Open returns an independent *Backend per call rather than a process-wide
// singleton: flock's components take a persistence.Backend by constructor
// injection, never through global state, so a singleton would fight the
// rest of the codebase's capability-interface style rather than help it.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"flock/internal/persistence"
)

// Backend is the sqlite-backed persistence.Backend.
type Backend struct {
	db *sql.DB

	homeMu     sync.Mutex
	channelMu  sync.Mutex
	bridgeMu   sync.Mutex
	loopMu     sync.Mutex
	ticketMu   sync.Mutex
	msgSeqMu   sync.Mutex
}

// Open opens (creating if necessary) a sqlite database at path and applies
// the schema. The caller must call Close when done.
func Open(path string) (*Backend, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	b := &Backend{db: db}
	if err := b.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

func (b *Backend) Migrate(ctx context.Context) error {
	_, err := b.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (b *Backend) Close() error { return b.db.Close() }

func (b *Backend) Homes() persistence.HomeStore                       { return (*homeStore)(b) }
func (b *Backend) Transitions() persistence.TransitionStore           { return (*transitionStore)(b) }
func (b *Backend) Audit() persistence.AuditStore                      { return (*auditStore)(b) }
func (b *Backend) Channels() persistence.ChannelStore                 { return (*channelStore)(b) }
func (b *Backend) ChannelMessages() persistence.ChannelMessageStore   { return (*channelMessageStore)(b) }
func (b *Backend) Bridges() persistence.BridgeStore                   { return (*bridgeStore)(b) }
func (b *Backend) AgentLoops() persistence.AgentLoopStore             { return (*agentLoopStore)(b) }
func (b *Backend) Assignments() persistence.AssignmentStore           { return (*assignmentStore)(b) }
func (b *Backend) MigrationTickets() persistence.MigrationTicketStore { return (*migrationTicketStore)(b) }

func marshalMeta(m map[string]string) string {
	if m == nil {
		m = map[string]string{}
	}
	b, _ := json.Marshal(m)
	return string(b)
}

func unmarshalMeta(s string) map[string]string {
	m := map[string]string{}
	if s == "" {
		return m
	}
	_ = json.Unmarshal([]byte(s), &m)
	return m
}

func marshalStrings(ss []string) string {
	if ss == nil {
		ss = []string{}
	}
	b, _ := json.Marshal(ss)
	return string(b)
}

func unmarshalStrings(s string) []string {
	var ss []string
	if s == "" {
		return nil
	}
	_ = json.Unmarshal([]byte(s), &ss)
	return ss
}

func nullableUnixMillis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func timeFromUnixMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
