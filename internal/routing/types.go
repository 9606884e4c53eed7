// Package routing resolves an agentID to a local executor or a remote
// endpoint (§4.3): a pluggable Resolver interface with peer and central
// topology implementations, and a topology-agnostic Client that dispatches
// accordingly.
package routing

import (
	"context"
	"sync"
	"time"
)

// RouteKind distinguishes a Route's two variants, per the §9 tagged-variant
// guidance for dynamic shapes.
type RouteKind int

const (
	Local RouteKind = iota
	Remote
)

// Route is the result of resolving an agentID.
type Route struct {
	Kind     RouteKind
	Endpoint string // set when Kind == Remote
	NodeID   string // set when Kind == Remote
}

func LocalRoute() Route { return Route{Kind: Local} }

func RemoteRoute(endpoint, nodeID string) Route {
	return Route{Kind: Remote, Endpoint: endpoint, NodeID: nodeID}
}

// Resolver maps an agentID to a Route.
type Resolver interface {
	Resolve(ctx context.Context, agentID string) (Route, error)
}

// NodeStatus is a remote node's last-known reachability.
type NodeStatus string

const (
	NodeOnline  NodeStatus = "online"
	NodeOffline NodeStatus = "offline"
)

// NodeEntry is one row of the local node registry.
type NodeEntry struct {
	NodeID   string
	Endpoint string
	Status   NodeStatus
	AgentIDs []string
}

// Registry is the in-memory node registry consulted by the peer resolver,
// mutated under a fine-grained lock per §5/§9 (not a global lock).
type Registry struct {
	mu    sync.RWMutex
	nodes map[string]NodeEntry
}

// NewRegistry creates an empty node registry.
func NewRegistry() *Registry {
	return &Registry{nodes: map[string]NodeEntry{}}
}

// Upsert adds or replaces a node entry.
func (r *Registry) Upsert(n NodeEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes[n.NodeID] = n
}

// SetStatus updates a node's reachability status in place.
func (r *Registry) SetStatus(nodeID string, status NodeStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n, ok := r.nodes[nodeID]; ok {
		n.Status = status
		r.nodes[nodeID] = n
	}
}

// Get returns a copy of the node entry for nodeID.
func (r *Registry) Get(nodeID string) (NodeEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.nodes[nodeID]
	return n, ok
}

// All returns a snapshot of every registered node.
func (r *Registry) All() []NodeEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]NodeEntry, 0, len(r.nodes))
	for _, n := range r.nodes {
		out = append(out, n)
	}
	return out
}

// FindAgent returns the first online node whose AgentIDs contains agentID.
func (r *Registry) FindAgent(agentID string) (NodeEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, n := range r.nodes {
		if n.Status == NodeOffline {
			continue
		}
		for _, id := range n.AgentIDs {
			if id == agentID {
				return n, true
			}
		}
	}
	return NodeEntry{}, false
}

// LocalAgents is the capability interface over the local A2A server's
// agent table, used to decide step 1 of the peer resolver chain.
type LocalAgents interface {
	HasAgent(agentID string) bool
}

// DiscoveryTimeout is the fixed remote-discovery timeout mandated by §5.
const DiscoveryTimeout = 10 * time.Second
