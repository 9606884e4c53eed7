// Package workspace provisions the fixed per-home directory tree: agent/,
// work/, run/, log/, audit/, secrets/, workspace/, node/, plus the
// immutable and mutable seed files a home's container is bind-mounted
// with.
package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"flock/internal/ferrors"
	"flock/internal/ids"
	"flock/internal/logx"
	"flock/internal/migration"
)

// subdirs is the fixed home directory tree, §6.2.
var subdirs = []string{"agent", "work", "run", "log", "audit", "secrets", "workspace", "node"}

const (
	dirMode      os.FileMode = 0700
	secretMode   os.FileMode = 0600
	seedFileMode os.FileMode = 0600
)

// immutableFiles are bind-mounted read-only into the home's container.
var immutableFiles = []string{"AGENTS.md", "USER.md"}

// mutableSeedFiles are created writable; an agent may modify them in place.
var mutableSeedFiles = []string{"SOUL.md", "IDENTITY.md", "MEMORY.md", "HEARTBEAT.md", "TOOLS.md"}

// BindMount describes one path to be bind-mounted into the home's
// container, in the order the container runtime should apply them.
type BindMount struct {
	Path     string
	ReadOnly bool
}

// Layout is the provisioned directory tree for one home.
type Layout struct {
	HomeID  string
	Root    string // <baseDir>/<homeID>
	Seeds   map[string]string // seed file name -> initial content
	logger  *logx.Logger
}

// NewLayout returns a Layout rooted at baseDir/homeID. homeID must already
// be a validated agentID@nodeID pair (internal/ids.HomeID).
func NewLayout(baseDir, homeID string, seeds map[string]string, logger *logx.Logger) (*Layout, error) {
	if _, _, err := ids.SplitHomeID(homeID); err != nil {
		return nil, err
	}
	return &Layout{
		HomeID: homeID,
		Root:   filepath.Join(baseDir, homeID),
		Seeds:  seeds,
		logger: logger,
	}, nil
}

// Provision creates the directory tree and seed files. It is idempotent:
// re-running it over an already-provisioned home leaves existing mutable
// seed file contents untouched.
func (l *Layout) Provision(ctx context.Context) error {
	if err := os.MkdirAll(l.Root, dirMode); err != nil {
		return ferrors.Newf(ferrors.Fatal, ferrors.ErrInternal, "create home root %s: %v", l.Root, err)
	}
	for _, name := range subdirs {
		mode := dirMode
		path := filepath.Join(l.Root, name)
		if err := os.MkdirAll(path, mode); err != nil {
			return ferrors.Newf(ferrors.Fatal, ferrors.ErrInternal, "create %s: %v", path, err)
		}
	}
	if err := os.Chmod(filepath.Join(l.Root, "secrets"), secretMode); err != nil {
		return ferrors.Newf(ferrors.Fatal, ferrors.ErrInternal, "chmod secrets dir: %v", err)
	}

	for _, name := range immutableFiles {
		path := filepath.Join(l.Root, name)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			content := l.Seeds[name]
			if err := os.WriteFile(path, []byte(content), seedFileMode); err != nil {
				return ferrors.Newf(ferrors.Fatal, ferrors.ErrInternal, "write %s: %v", path, err)
			}
		}
	}
	for _, name := range mutableSeedFiles {
		path := filepath.Join(l.Root, name)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			content := l.Seeds[name]
			if err := os.WriteFile(path, []byte(content), seedFileMode); err != nil {
				return ferrors.Newf(ferrors.Fatal, ferrors.ErrInternal, "write %s: %v", path, err)
			}
		}
	}

	l.logger.Info("provisioned home layout at %s", l.Root)
	return nil
}

// BindMounts returns the sorted bind-mount descriptor list: the
// workspace/ directory first, then the immutable files in listed order
// (§6.2: "bind-mount descriptors sort workspace-directory-first, then
// immutable files in listed order").
func (l *Layout) BindMounts() []BindMount {
	mounts := make([]BindMount, 0, 1+len(immutableFiles))
	mounts = append(mounts, BindMount{Path: filepath.Join(l.Root, "workspace"), ReadOnly: false})
	for _, name := range immutableFiles {
		mounts = append(mounts, BindMount{Path: filepath.Join(l.Root, name), ReadOnly: true})
	}
	return mounts
}

// portableSubdirs are the directories carried across a migration. node/
// holds node-local state (e.g. container runtime metadata) and is
// intentionally excluded.
var portableSubdirs = []string{"agent", "work", "log", "audit", "workspace"}

// Files implements migration.SnapshotSource over the portable subtree:
// every regular file under the portable subdirectories plus the mutable
// seed files, keyed by path relative to Root.
func (l *Layout) Files(ctx context.Context) (map[string][]byte, error) {
	out := map[string][]byte{}

	var dirs []string
	dirs = append(dirs, portableSubdirs...)
	sort.Strings(dirs)
	for _, dir := range dirs {
		root := filepath.Join(l.Root, dir)
		err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				return err
			}
			if info.IsDir() {
				return nil
			}
			rel, relErr := filepath.Rel(l.Root, path)
			if relErr != nil {
				return relErr
			}
			content, readErr := os.ReadFile(path)
			if readErr != nil {
				return readErr
			}
			out[rel] = content
			return nil
		})
		if err != nil {
			return nil, ferrors.Newf(ferrors.Fatal, ferrors.ErrInternal, "walk %s: %v", root, err)
		}
	}

	for _, name := range mutableSeedFiles {
		path := filepath.Join(l.Root, name)
		content, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, ferrors.Newf(ferrors.Fatal, ferrors.ErrInternal, "read %s: %v", path, err)
		}
		out[name] = content
	}

	return out, nil
}

var _ migration.SnapshotSource = (*Layout)(nil)

// Remove deletes the home's entire directory tree. Used when retiring a
// home after a completed migration frees the source node.
func (l *Layout) Remove() error {
	if err := os.RemoveAll(l.Root); err != nil {
		return fmt.Errorf("remove home root %s: %w", l.Root, err)
	}
	return nil
}
