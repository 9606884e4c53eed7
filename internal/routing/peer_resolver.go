package routing

import (
	"context"
	"fmt"
	"sync"

	"flock/internal/a2a"
	"flock/internal/logx"
)

// PeerResolver implements the default peer topology (§4.3): local agent
// table, then the local node registry, then an optional parent registry
// with a permanent cache of successful lookups, then a local fallback.
type PeerResolver struct {
	local    LocalAgents
	registry *Registry
	card     *a2a.Client
	parentURL string
	logger   *logx.Logger

	cacheMu sync.RWMutex
	cache   map[string]Route // agentID -> cached parent-resolved route
}

// NewPeerResolver constructs a PeerResolver. parentURL may be empty to
// disable step 3 entirely.
func NewPeerResolver(local LocalAgents, registry *Registry, cardClient *a2a.Client, parentURL string, logger *logx.Logger) *PeerResolver {
	return &PeerResolver{
		local:     local,
		registry:  registry,
		card:      cardClient,
		parentURL: parentURL,
		logger:    logger,
		cache:     map[string]Route{},
	}
}

func (p *PeerResolver) Resolve(ctx context.Context, agentID string) (Route, error) {
	// 1. local agent table
	if p.local.HasAgent(agentID) {
		return LocalRoute(), nil
	}

	// 2. local node registry
	if n, ok := p.registry.FindAgent(agentID); ok {
		return RemoteRoute(n.Endpoint, n.NodeID), nil
	}

	// cached parent result takes priority over a fresh parent query
	p.cacheMu.RLock()
	cached, ok := p.cache[agentID]
	p.cacheMu.RUnlock()
	if ok {
		return cached, nil
	}

	// 3. optional parent registry
	if p.parentURL != "" {
		route, found := p.queryParent(ctx, agentID)
		if found {
			return route, nil
		}
	}

	// 4. fallback: local (caller's local server 404s if truly absent)
	return LocalRoute(), nil
}

func (p *PeerResolver) queryParent(ctx context.Context, agentID string) (Route, bool) {
	discoveryCtx, cancel := context.WithTimeout(ctx, DiscoveryTimeout)
	defer cancel()

	dir, err := p.card.FetchAgentCard(discoveryCtx, p.parentURL)
	if err != nil {
		// §9 open question: parent-registry errors are not distinguished from
		// "not found" — treat every failure as "agent not known to parent".
		p.logger.Debug("parent registry query for %s failed: %v", agentID, err)
		return Route{}, false
	}

	for _, entry := range dir.Agents {
		if entry.ID != agentID {
			continue
		}
		nodeID := fmt.Sprintf("parent-resolved-%s", p.parentURL)
		route := RemoteRoute(entry.URL, nodeID)

		p.registry.Upsert(NodeEntry{NodeID: nodeID, Endpoint: entry.URL, Status: NodeOnline, AgentIDs: []string{agentID}})

		p.cacheMu.Lock()
		p.cache[agentID] = route
		p.cacheMu.Unlock()

		return route, true
	}
	return Route{}, false
}
