// Package authstore implements the auth store: a small JSON file of
// per-provider OAuth credentials, consulted before falling back to
// environment variables. Strict file-mode enforcement (0600 on the file,
// 0700 on its parent directory) plus an env-var fallback path; the on-disk
// format is a plain, unencrypted JSON document, since file-mode
// enforcement is the entire security model here.
package authstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"flock/internal/ferrors"
	"flock/internal/logx"
)

const currentVersion = 1

const (
	fileMode   os.FileMode = 0600
	parentMode os.FileMode = 0700
)

// Credential is one provider's stored OAuth material.
type Credential struct {
	Access  string     `json:"access"`
	Refresh string     `json:"refresh,omitempty"`
	Expires *time.Time `json:"expires,omitempty"`
}

// Expired reports whether the credential's access token is past its
// expiry, if one is recorded.
func (c Credential) Expired(now time.Time) bool {
	return c.Expires != nil && !c.Expires.After(now)
}

type fileFormat struct {
	Version     int                   `json:"version"`
	Credentials map[string]Credential `json:"credentials"`
}

// Refresher exchanges a refresh token for a new Credential, e.g. by
// calling the provider's token endpoint.
type Refresher interface {
	Refresh(providerID string, cred Credential) (Credential, error)
}

// Store is the JSON-file-backed credential store. Safe for concurrent use.
type Store struct {
	path string

	mu          sync.Mutex
	credentials map[string]Credential
}

// Open loads path, resetting to an empty store if it does not exist or
// carries an incompatible version (§6.3).
func Open(path string) (*Store, error) {
	s := &Store{path: path, credentials: map[string]Credential{}}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, ferrors.Newf(ferrors.Fatal, ferrors.ErrInternal, "read auth store %s: %v", path, err)
	}

	var ff fileFormat
	if err := json.Unmarshal(data, &ff); err != nil || ff.Version != currentVersion {
		// Corrupt or incompatible: reset to empty rather than fail closed
		// on every lookup.
		return s, nil
	}
	s.credentials = ff.Credentials
	if s.credentials == nil {
		s.credentials = map[string]Credential{}
	}
	return s, nil
}

// Get returns the stored credential for providerID, refreshing it first
// via refresher if it is expired and a refresh token is present.
func (s *Store) Get(providerID string, refresher Refresher) (Credential, bool, error) {
	s.mu.Lock()
	cred, ok := s.credentials[providerID]
	s.mu.Unlock()
	if !ok {
		return Credential{}, false, nil
	}

	if cred.Expired(time.Now()) && cred.Refresh != "" && refresher != nil {
		refreshed, err := refresher.Refresh(providerID, cred)
		if err != nil {
			return Credential{}, false, err
		}
		if err := s.Set(providerID, refreshed); err != nil {
			return Credential{}, false, err
		}
		return refreshed, true, nil
	}

	return cred, true, nil
}

// Set stores (or replaces) the credential for providerID and persists the
// store to disk.
func (s *Store) Set(providerID string, cred Credential) error {
	s.mu.Lock()
	s.credentials[providerID] = cred
	snapshot := make(map[string]Credential, len(s.credentials))
	for k, v := range s.credentials {
		snapshot[k] = v
	}
	s.mu.Unlock()
	return s.persist(snapshot)
}

// Delete removes providerID's credential, if present, and persists.
func (s *Store) Delete(providerID string) error {
	s.mu.Lock()
	delete(s.credentials, providerID)
	snapshot := make(map[string]Credential, len(s.credentials))
	for k, v := range s.credentials {
		snapshot[k] = v
	}
	s.mu.Unlock()
	return s.persist(snapshot)
}

func (s *Store) persist(credentials map[string]Credential) error {
	if err := os.MkdirAll(filepath.Dir(s.path), parentMode); err != nil {
		return ferrors.Newf(ferrors.Fatal, ferrors.ErrInternal, "create auth store dir: %v", err)
	}
	data, err := json.MarshalIndent(fileFormat{Version: currentVersion, Credentials: credentials}, "", "  ")
	if err != nil {
		return ferrors.Newf(ferrors.Fatal, ferrors.ErrInternal, "marshal auth store: %v", err)
	}
	if err := os.WriteFile(s.path, data, fileMode); err != nil {
		return ferrors.Newf(ferrors.Fatal, ferrors.ErrInternal, "write auth store %s: %v", s.path, err)
	}
	return os.Chmod(s.path, fileMode)
}

// Lookup resolves a credential's access token for providerID by the §6.3
// order: the OAuth store (refreshing on expiry) first, then the named
// environment variable. Returns ("", false) if neither has a value.
func Lookup(store *Store, refresher Refresher, providerID, envVar string, logger *logx.Logger) (string, bool) {
	if store != nil {
		if cred, ok, err := store.Get(providerID, refresher); err != nil {
			logger.Warn("auth store lookup for %s failed: %v", providerID, err)
		} else if ok {
			return cred.Access, true
		}
	}
	if v := os.Getenv(envVar); v != "" {
		return v, true
	}
	return "", false
}
