// Package a2a implements the agent-to-agent JSON-RPC wire protocol: the
// message/send and tasks/* methods over JSON-RPC 2.0/HTTP, the well-known
// agent-card directory, and the migration JSON-RPC methods.
//
// Dynamic payload shapes (message Parts, arbitrary metadata) are modeled
// as tagged variants with explicit narrowing helpers: a json.RawMessage
// backed union keyed by a Kind discriminator.
package a2a

import (
	"encoding/json"
	"fmt"
)

// PartKind discriminates the two Part variants.
type PartKind string

const (
	PartText PartKind = "text"
	PartData PartKind = "data"
)

// Part is a tagged variant: either a TextPart or a DataPart. Unknown vendor
// fields are preserved in Extensions rather than dropped on round-trip.
type Part struct {
	Kind       PartKind
	Text       string
	Data       map[string]any
	Extensions map[string]any
}

type partWire struct {
	Kind       PartKind       `json:"kind"`
	Text       string         `json:"text,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

func (p Part) MarshalJSON() ([]byte, error) {
	return json.Marshal(partWire{Kind: p.Kind, Text: p.Text, Data: p.Data, Extensions: p.Extensions})
}

func (p *Part) UnmarshalJSON(b []byte) error {
	var w partWire
	if err := json.Unmarshal(b, &w); err != nil {
		return fmt.Errorf("unmarshal part: %w", err)
	}
	p.Kind, p.Text, p.Data, p.Extensions = w.Kind, w.Text, w.Data, w.Extensions
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("unmarshal part: %w", err)
	}
	for k, v := range raw {
		switch k {
		case "kind", "text", "data", "extensions":
			continue
		}
		if p.Extensions == nil {
			p.Extensions = map[string]any{}
		}
		p.Extensions[k] = v
	}
	return nil
}

// IsDataPart narrows a Part to its data-shaped variant.
func (p Part) IsDataPart() bool { return p.Kind == PartData }

// IsTextPart narrows a Part to its text-shaped variant.
func (p Part) IsTextPart() bool { return p.Kind == PartText }

func TextPart(text string) Part { return Part{Kind: PartText, Text: text} }
func DataPart(data map[string]any) Part { return Part{Kind: PartData, Data: data} }

// MessageRole is the sender role on an A2A Message.
type MessageRole string

const (
	RoleUser  MessageRole = "user"
	RoleAgent MessageRole = "agent"
)

// Message is the A2A wire message envelope.
type Message struct {
	Kind      string      `json:"kind"` // always "message"
	Role      MessageRole `json:"role"`
	MessageID string      `json:"messageID"`
	Parts     []Part      `json:"parts"`
}

// TaskState is the lifecycle state of an A2A Task (§6).
type TaskState string

const (
	TaskSubmitted     TaskState = "submitted"
	TaskAccepted      TaskState = "accepted"
	TaskRejected      TaskState = "rejected"
	TaskWorking       TaskState = "working"
	TaskInputRequired TaskState = "input-required"
	TaskCompleted     TaskState = "completed"
	TaskFailed        TaskState = "failed"
	TaskCanceled      TaskState = "canceled"
)

// TaskStatus wraps a Task's current state plus optional human-readable
// detail (e.g. a failure reason).
type TaskStatus struct {
	State  TaskState `json:"state"`
	Detail string    `json:"detail,omitempty"`
}

// Artifact is an opaque named result attached to a completed Task.
type Artifact struct {
	Name string         `json:"name"`
	Data map[string]any `json:"data,omitempty"`
}

// Task is the response to a message/send call.
type Task struct {
	ID        string     `json:"id"`
	Status    TaskStatus `json:"status"`
	Artifacts []Artifact `json:"artifacts,omitempty"`
}

// JSONRPCRequest is the generic JSON-RPC 2.0 request envelope.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      any             `json:"id"`
}

// JSONRPCError is the JSON-RPC 2.0 error object.
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// JSONRPCResponse is the generic JSON-RPC 2.0 response envelope.
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
	ID      any             `json:"id"`
}

// MessageSendParams is the params object for method "message/send".
type MessageSendParams struct {
	Message Message `json:"message"`
}

// AgentCardEntry is one row of the `.well-known/agent-card.json` directory.
type AgentCardEntry struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	URL          string   `json:"url"`
	Version      string   `json:"version"`
	Capabilities []string `json:"capabilities,omitempty"`
	Skills       []string `json:"skills,omitempty"`
}

// AgentCardDirectory is the full response body of the agent-card endpoint.
type AgentCardDirectory struct {
	Agents []AgentCardEntry `json:"agents"`
}

// AgentRole is the side-table role classification augmenting an
// AgentCardEntry (§6); never embedded in the card itself.
type AgentRole string

const (
	RoleSysadmin     AgentRole = "sysadmin"
	RoleWorker       AgentRole = "worker"
	RoleSystem       AgentRole = "system"
	RoleOrchestrator AgentRole = "orchestrator"
)

// AgentMetadata is the registry's private side-table entry for one agent.
type AgentMetadata struct {
	Role   AgentRole
	NodeID string
	HomeID string
}
