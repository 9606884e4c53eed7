// Package persistence defines the typed store interfaces flock's other
// components are built on: homes, transitions, audit entries, channels,
// channel messages, bridges, agent-loop records, migration tickets, and
// node assignments. Two implementations exist — internal/persistence/memstore
// (in-memory, used by every test in this repo) and internal/persistence/sqlite
// (durable, modernc.org/sqlite-backed) — both offering the same
// insert/update/get/list shape per entity.
package persistence

import "time"

// HomeState is the home lifecycle state (§3, §4.2).
type HomeState string

const (
	HomeUnassigned  HomeState = "UNASSIGNED"
	HomeProvisioning HomeState = "PROVISIONING"
	HomeIdle        HomeState = "IDLE"
	HomeLeased      HomeState = "LEASED"
	HomeActive      HomeState = "ACTIVE"
	HomeFrozen      HomeState = "FROZEN"
	HomeMigrating   HomeState = "MIGRATING"
	HomeError       HomeState = "ERROR"
	HomeRetired     HomeState = "RETIRED"
)

// Home is the authoritative status of an agent on a node.
type Home struct {
	HomeID         string
	AgentID        string
	NodeID         string
	State          HomeState
	LeaseExpiresAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Metadata       map[string]string
}

// HomeTransition is an immutable record of one successful state change.
type HomeTransition struct {
	HomeID      string
	Timestamp   time.Time
	FromState   HomeState
	ToState     HomeState
	Reason      string
	TriggeredBy string
}

// AuditLevel is the severity of an AuditEntry.
type AuditLevel string

const (
	AuditGreen  AuditLevel = "GREEN"
	AuditYellow AuditLevel = "YELLOW"
	AuditRed    AuditLevel = "RED"
)

// AuditEntry is an append-only operator-facing log row.
type AuditEntry struct {
	ID        string
	Timestamp time.Time
	AgentID   string
	HomeID    string // optional, may be empty
	Action    string
	Level     AuditLevel
	Detail    string
}

// Channel is a named, append-only message stream.
type Channel struct {
	ChannelID string
	Name      string
	Topic     string
	CreatedBy string
	Members   []string
	Archived  bool
}

// ChannelMessage is one append-only entry in a channel.
type ChannelMessage struct {
	ChannelID string
	Seq       int64
	AgentID   string
	Content   string
	Timestamp time.Time
}

// Bridge links a channel to an external chat platform channel.
type Bridge struct {
	BridgeID         string
	ChannelID        string
	Platform         string
	ExternalChannelID string
	Active           bool
	WebhookURL       string
	AccountID        string
}

// LoopState is an agent's work-loop wake state.
type LoopState string

const (
	LoopAwake LoopState = "AWAKE"
	LoopSleep LoopState = "SLEEP"
)

// AgentLoopRecord tracks an agent's scheduler wake state.
type AgentLoopRecord struct {
	AgentID      string
	State        LoopState
	LastTickAt   time.Time
	AwakenedAt   time.Time
	SleptAt      *time.Time
	SleepReason  string
}

// Assignment is the agent -> physical node mapping.
type Assignment struct {
	AgentID      string
	NodeID       string
	AssignedAt   time.Time
	PortablePath string
}

// MigrationPhase is a node in the migration ticket phase DAG (§4.6).
type MigrationPhase string

const (
	PhaseRequested    MigrationPhase = "REQUESTED"
	PhaseAuthorized   MigrationPhase = "AUTHORIZED"
	PhaseFreezing     MigrationPhase = "FREEZING"
	PhaseFrozen       MigrationPhase = "FROZEN"
	PhaseSnapshotting MigrationPhase = "SNAPSHOTTING"
	PhaseTransferring MigrationPhase = "TRANSFERRING"
	PhaseVerifying    MigrationPhase = "VERIFYING"
	PhaseRehydrating  MigrationPhase = "REHYDRATING"
	PhaseFinalizing   MigrationPhase = "FINALIZING"
	PhaseCompleted    MigrationPhase = "COMPLETED"
	PhaseAborted      MigrationPhase = "ABORTED"
	PhaseFailed       MigrationPhase = "FAILED"
)

// Endpoint identifies one side of a migration.
type Endpoint struct {
	NodeID   string
	HomeID   string
	Endpoint string
}

// MigrationTicket is the durable record of one in-flight or completed
// migration.
type MigrationTicket struct {
	MigrationID       string
	AgentID           string
	Source            Endpoint
	Target            Endpoint
	Phase             MigrationPhase
	Reason            string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	Error             string
	SnapshotDigest    string
	SnapshotSizeBytes int64
}

// Filter types. Zero-value fields are treated as "no constraint"; nil
// pointers distinguish "unset" from "zero value" where relevant.

type HomeFilter struct {
	State  *HomeState
	NodeID string
	Limit  int
}

type TransitionFilter struct {
	HomeID string
	Since  *time.Time
	Limit  int
}

type AuditFilter struct {
	AgentID string
	HomeID  string
	Level   *AuditLevel
	Since   *time.Time
	Limit   int
}

type ChannelFilter struct {
	Archived *bool
	Limit    int
}

type ChannelMessageFilter struct {
	ChannelID string
	SinceSeq  int64
	Limit     int
}

type BridgeFilter struct {
	ChannelID string
	Platform  string
	Active    *bool
	Limit     int
}

type MigrationFilter struct {
	AgentID string
	Phase   *MigrationPhase
	Limit   int
}
