package routing

import (
	"context"

	"flock/internal/persistence"
)

// CentralResolver implements the central topology (§4.3): every worker
// lives on the central node, so Resolve always returns LocalRoute.
// ResolveSysadmin separately consults the assignment store and node
// registry to find the sysadmin agent's physical node.
type CentralResolver struct {
	assignments persistence.AssignmentStore
	registry    *Registry
}

// NewCentralResolver constructs a CentralResolver.
func NewCentralResolver(assignments persistence.AssignmentStore, registry *Registry) *CentralResolver {
	return &CentralResolver{assignments: assignments, registry: registry}
}

func (c *CentralResolver) Resolve(ctx context.Context, agentID string) (Route, error) {
	return LocalRoute(), nil
}

// ResolveSysadmin looks up agentID's physical node assignment, then that
// node's registry endpoint; falls back to LocalRoute if either is missing
// or the node is offline.
func (c *CentralResolver) ResolveSysadmin(ctx context.Context, agentID string) (Route, error) {
	assignment, err := c.assignments.Get(ctx, agentID)
	if err != nil {
		return LocalRoute(), nil
	}
	node, ok := c.registry.Get(assignment.NodeID)
	if !ok || node.Status == NodeOffline {
		return LocalRoute(), nil
	}
	return RemoteRoute(node.Endpoint, node.NodeID), nil
}
