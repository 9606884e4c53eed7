package routing_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flock/internal/a2a"
	"flock/internal/logx"
	"flock/internal/routing"
)

type fakeLocalAgents struct{ ids map[string]bool }

func (f fakeLocalAgents) HasAgent(agentID string) bool { return f.ids[agentID] }

// S4 — peer routing fallback chain.
func TestPeerResolverFallbackChain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dir := a2a.AgentCardDirectory{Agents: []a2a.AgentCardEntry{
			{ID: "workerC", URL: "http://far/flock/a2a/workerC"},
		}}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(dir)
	}))
	defer srv.Close()

	local := fakeLocalAgents{ids: map[string]bool{"workerA": true}}
	registry := routing.NewRegistry()
	registry.Upsert(routing.NodeEntry{NodeID: "node-B", Endpoint: "http://node-b", Status: routing.NodeOnline, AgentIDs: []string{"workerB"}})

	resolver := routing.NewPeerResolver(local, registry, a2a.NewClient(0), srv.URL, logx.New("test"))

	ctx := context.Background()

	route, err := resolver.Resolve(ctx, "workerA")
	require.NoError(t, err)
	assert.Equal(t, routing.Local, route.Kind)

	route, err = resolver.Resolve(ctx, "workerB")
	require.NoError(t, err)
	assert.Equal(t, routing.Remote, route.Kind)
	assert.Equal(t, "node-B", route.NodeID)

	route, err = resolver.Resolve(ctx, "workerC")
	require.NoError(t, err)
	assert.Equal(t, routing.Remote, route.Kind)
	assert.Equal(t, "http://far/flock/a2a/workerC", route.Endpoint)

	srv.Close() // parent now unreachable; cached result must still serve workerC
	route, err = resolver.Resolve(ctx, "workerC")
	require.NoError(t, err)
	assert.Equal(t, routing.Remote, route.Kind)
	assert.Equal(t, "http://far/flock/a2a/workerC", route.Endpoint)

	route, err = resolver.Resolve(ctx, "workerZ")
	require.NoError(t, err)
	assert.Equal(t, routing.Local, route.Kind)
}
