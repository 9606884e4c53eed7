package ids_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flock/internal/ids"
)

// property 10: a string round-trips through HomeID/SplitHomeID iff both
// components are valid IDs.
func TestValidAcceptsSafeComponents(t *testing.T) {
	for _, s := range []string{"agent-1", "node_7", "ABCxyz123", "a", "under_score-and-dash"} {
		assert.True(t, ids.Valid(s), "expected %q to be valid", s)
	}
}

func TestValidRejectsUnsafeComponents(t *testing.T) {
	for _, s := range []string{"", "has space", "slash/in/it", "at@sign", "dot.dot", "emoji😀"} {
		assert.False(t, ids.Valid(s), "expected %q to be invalid", s)
	}
}

func TestValidateReturnsInvalidIDError(t *testing.T) {
	err := ids.Validate("agentID", "bad id")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "agentID")
}

func TestHomeIDRoundTripsThroughSplit(t *testing.T) {
	agentID, nodeID := "agent-a", "node-src"
	homeID := ids.HomeID(agentID, nodeID)
	assert.Equal(t, "agent-a@node-src", homeID)

	gotAgent, gotNode, err := ids.SplitHomeID(homeID)
	require.NoError(t, err)
	assert.Equal(t, agentID, gotAgent)
	assert.Equal(t, nodeID, gotNode)
}

func TestSplitHomeIDRejectsMissingSeparator(t *testing.T) {
	_, _, err := ids.SplitHomeID("agent-a-node-src")
	require.Error(t, err)
}

func TestSplitHomeIDRejectsInvalidComponents(t *testing.T) {
	_, _, err := ids.SplitHomeID("bad id@node-src")
	require.Error(t, err)

	_, _, err = ids.SplitHomeID("agent-a@bad id")
	require.Error(t, err)
}

func TestSplitHomeIDRejectsDoubleAt(t *testing.T) {
	// Valid IDs never contain '@', so an extra separator always leaves
	// the agentID component invalid rather than silently picking a side.
	_, _, err := ids.SplitHomeID("a@b@c")
	require.Error(t, err)
}
