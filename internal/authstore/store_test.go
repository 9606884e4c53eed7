package authstore_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flock/internal/authstore"
	"flock/internal/logx"
)

func TestOpenMissingFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.json")
	s, err := authstore.Open(path)
	require.NoError(t, err)

	_, ok, err := s.Get("anthropic", nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSetPersistsWithFileMode0600(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "auth.json")
	s, err := authstore.Open(path)
	require.NoError(t, err)

	require.NoError(t, s.Set("anthropic", authstore.Credential{Access: "tok-1"}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	s2, err := authstore.Open(path)
	require.NoError(t, err)
	cred, ok, err := s2.Get("anthropic", nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "tok-1", cred.Access)
}

func TestIncompatibleVersionResetsToEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.json")
	raw, err := json.Marshal(map[string]any{
		"version":     2,
		"credentials": map[string]any{"anthropic": map[string]string{"access": "stale"}},
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0600))

	s, err := authstore.Open(path)
	require.NoError(t, err)
	_, ok, err := s.Get("anthropic", nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

type fakeRefresher struct {
	refreshed authstore.Credential
	err       error
}

func (f *fakeRefresher) Refresh(providerID string, cred authstore.Credential) (authstore.Credential, error) {
	return f.refreshed, f.err
}

func TestGetRefreshesExpiredCredential(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.json")
	s, err := authstore.Open(path)
	require.NoError(t, err)

	past := time.Now().Add(-time.Hour)
	require.NoError(t, s.Set("anthropic", authstore.Credential{Access: "old", Refresh: "rt-1", Expires: &past}))

	refresher := &fakeRefresher{refreshed: authstore.Credential{Access: "new"}}
	cred, ok, err := s.Get("anthropic", refresher)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "new", cred.Access)

	cred2, ok, err := s.Get("anthropic", nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "new", cred2.Access)
}

func TestLookupFallsBackToEnvVar(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.json")
	s, err := authstore.Open(path)
	require.NoError(t, err)

	t.Setenv("FLOCK_TEST_PROVIDER_TOKEN", "env-token")
	val, ok := authstore.Lookup(s, nil, "unused-provider", "FLOCK_TEST_PROVIDER_TOKEN", logx.New("test"))
	assert.True(t, ok)
	assert.Equal(t, "env-token", val)
}

func TestLookupPrefersStoreOverEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.json")
	s, err := authstore.Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Set("anthropic", authstore.Credential{Access: "store-token"}))

	t.Setenv("FLOCK_TEST_PROVIDER_TOKEN", "env-token")
	val, ok := authstore.Lookup(s, nil, "anthropic", "FLOCK_TEST_PROVIDER_TOKEN", logx.New("test"))
	assert.True(t, ok)
	assert.Equal(t, "store-token", val)
}
