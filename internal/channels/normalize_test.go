package channels_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"flock/internal/channels"
)

// property 7: NormalizeUsername is idempotent.
func TestNormalizeUsernameIdempotent(t *testing.T) {
	inputs := []string{"Alice!", "  Bob_Smith  ", "曾", "___", "a..b--c", "CAPS-LOCK"}
	for _, in := range inputs {
		once := channels.NormalizeUsername(in)
		twice := channels.NormalizeUsername(once)
		assert.Equal(t, once, twice, "not idempotent for %q", in)
	}
}

func TestNormalizeUsernameEmptyFallsBackToUnknown(t *testing.T) {
	assert.Equal(t, "unknown", channels.NormalizeUsername("!!!"))
	assert.Equal(t, "unknown", channels.NormalizeUsername(""))
}

func TestNormalizeUsernameBasic(t *testing.T) {
	assert.Equal(t, "alice", channels.NormalizeUsername("Alice!"))
	assert.Equal(t, "bob_smith", channels.NormalizeUsername("  Bob_Smith  "))
}

// property 8: ExtractMentions only returns canonical, non-human channel members.
func TestExtractMentionsOnlyCanonicalMembers(t *testing.T) {
	members := []string{"bob", "carol", "human:alice"}
	mentions := channels.ExtractMentions("hey @Bob and @dave, cc @human:alice", members)
	assert.Equal(t, []string{"bob"}, mentions)
}

func TestExtractMentionsDedupes(t *testing.T) {
	members := []string{"bob"}
	mentions := channels.ExtractMentions("@bob @bob @Bob", members)
	assert.Equal(t, []string{"bob"}, mentions)
}

func TestExtractMentionsNoMatches(t *testing.T) {
	mentions := channels.ExtractMentions("no mentions here", []string{"bob"})
	assert.Empty(t, mentions)
}
