package migration

import (
	"context"

	"flock/internal/persistence"
)

// Transport is the §4.6 "MigrationTransport abstraction": three total,
// async operations. The orchestrator never depends on which concrete
// implementation is wired in — test-mode (TransportInProcess) or
// production (TransportHTTP, JSON-RPC over the A2A transport).
type Transport interface {
	// NotifyRequest informs the target node that a migration has been
	// requested for ticket.
	NotifyRequest(ctx context.Context, target persistence.Endpoint, ticket persistence.MigrationTicket) error

	// TransferAndVerify sends archive+digest to target for migrationID and
	// returns once the target has recomputed and compared the digest. A
	// digest mismatch is surfaced as a Transient ferrors.ErrVerificationFailed
	// (retryable by the orchestrator's RetryPolicy); transport-level failures
	// are likewise Transient.
	TransferAndVerify(ctx context.Context, target persistence.Endpoint, migrationID string, archive []byte, digestHex string) error

	// Rehydrate asks target to materialize the already-transferred archive
	// into the target home path. Returns non-fatal warnings plus an error
	// only for a fatal rehydrate failure.
	Rehydrate(ctx context.Context, target persistence.Endpoint, migrationID string) (warnings []string, err error)
}
