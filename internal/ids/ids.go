// Package ids validates and constructs the identifiers flock embeds in
// filesystem paths: agent IDs, node IDs, and the homeID composed from them.
package ids

import (
	"fmt"
	"regexp"
	"strings"

	"flock/internal/ferrors"
)

var safePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Valid reports whether s is safe to use as a filesystem path component.
func Valid(s string) bool {
	return s != "" && safePattern.MatchString(s)
}

// Validate returns ferrors.ErrInvalidID if s is not a safe path component.
func Validate(field, s string) error {
	if !Valid(s) {
		return ferrors.Newf(ferrors.Validation, ferrors.ErrInvalidID,
			"%s %q must match [A-Za-z0-9_-]+", field, s)
	}
	return nil
}

// HomeID composes the canonical homeID from an agentID and nodeID, both of
// which must already be validated — HomeID never embeds raw user input.
func HomeID(agentID, nodeID string) string {
	return fmt.Sprintf("%s@%s", agentID, nodeID)
}

// SplitHomeID reverses HomeID. It fails if homeID does not contain exactly
// one '@' separating two valid IDs.
func SplitHomeID(homeID string) (agentID, nodeID string, err error) {
	i := strings.LastIndex(homeID, "@")
	if i < 0 {
		return "", "", ferrors.Newf(ferrors.Validation, ferrors.ErrInvalidID,
			"homeID %q is not of the form agentID@nodeID", homeID)
	}
	agentID, nodeID = homeID[:i], homeID[i+1:]
	if !Valid(agentID) || !Valid(nodeID) {
		return "", "", ferrors.Newf(ferrors.Validation, ferrors.ErrInvalidID,
			"homeID %q has an invalid agentID or nodeID component", homeID)
	}
	return agentID, nodeID, nil
}
