package workspace_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flock/internal/logx"
	"flock/internal/workspace"
)

func TestProvisionCreatesTreeAndSeeds(t *testing.T) {
	base := t.TempDir()
	l, err := workspace.NewLayout(base, "agent-a@node-1", map[string]string{
		"AGENTS.md": "agents doc",
		"SOUL.md":   "seed soul",
	}, logx.New("test"))
	require.NoError(t, err)

	require.NoError(t, l.Provision(context.Background()))

	for _, dir := range []string{"agent", "work", "run", "log", "audit", "secrets", "workspace", "node"} {
		info, err := os.Stat(filepath.Join(l.Root, dir))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}

	content, err := os.ReadFile(filepath.Join(l.Root, "AGENTS.md"))
	require.NoError(t, err)
	assert.Equal(t, "agents doc", string(content))

	content, err = os.ReadFile(filepath.Join(l.Root, "SOUL.md"))
	require.NoError(t, err)
	assert.Equal(t, "seed soul", string(content))
}

func TestProvisionIsIdempotentOverMutableSeeds(t *testing.T) {
	base := t.TempDir()
	l, err := workspace.NewLayout(base, "agent-a@node-1", map[string]string{"SOUL.md": "initial"}, logx.New("test"))
	require.NoError(t, err)
	require.NoError(t, l.Provision(context.Background()))

	soulPath := filepath.Join(l.Root, "SOUL.md")
	require.NoError(t, os.WriteFile(soulPath, []byte("edited by agent"), 0600))

	require.NoError(t, l.Provision(context.Background()))

	content, err := os.ReadFile(soulPath)
	require.NoError(t, err)
	assert.Equal(t, "edited by agent", string(content))
}

func TestBindMountsOrderedWorkspaceFirstThenImmutable(t *testing.T) {
	base := t.TempDir()
	l, err := workspace.NewLayout(base, "agent-a@node-1", nil, logx.New("test"))
	require.NoError(t, err)

	mounts := l.BindMounts()
	require.Len(t, mounts, 3)
	assert.Equal(t, filepath.Join(l.Root, "workspace"), mounts[0].Path)
	assert.False(t, mounts[0].ReadOnly)
	assert.Equal(t, filepath.Join(l.Root, "AGENTS.md"), mounts[1].Path)
	assert.True(t, mounts[1].ReadOnly)
	assert.Equal(t, filepath.Join(l.Root, "USER.md"), mounts[2].Path)
	assert.True(t, mounts[2].ReadOnly)
}

func TestFilesReturnsPortableSubtreeAndMutableSeeds(t *testing.T) {
	base := t.TempDir()
	l, err := workspace.NewLayout(base, "agent-a@node-1", map[string]string{"SOUL.md": "soul"}, logx.New("test"))
	require.NoError(t, err)
	require.NoError(t, l.Provision(context.Background()))

	require.NoError(t, os.WriteFile(filepath.Join(l.Root, "work", "notes.txt"), []byte("note"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(l.Root, "node", "runtime.json"), []byte("node-local"), 0600))

	files, err := l.Files(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []byte("note"), files["work/notes.txt"])
	assert.Equal(t, []byte("soul"), files["SOUL.md"])
	_, hasNodeFile := files["node/runtime.json"]
	assert.False(t, hasNodeFile, "node/ is not portable")
}

func TestNewLayoutRejectsInvalidHomeID(t *testing.T) {
	_, err := workspace.NewLayout(t.TempDir(), "not-a-valid-homeid", nil, logx.New("test"))
	assert.Error(t, err)
}
