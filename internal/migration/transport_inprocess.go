package migration

import (
	"context"

	"flock/internal/ferrors"
	"flock/internal/logx"
	"flock/internal/persistence"
)

// TransportInProcess is the test-mode Transport: a direct in-process
// dispatch with no network hop, per §4.6's "test-mode implementation is a
// direct in-process dispatch".
type TransportInProcess struct {
	logger *logx.Logger

	// Rehydrator, if set, is invoked during Rehydrate to apply a
	// caller-supplied work-state transformer and surface warnings. nil
	// means "no warnings".
	Rehydrator func(migrationID string) (warnings []string, err error)

	// LastArchive stores the most recent TransferAndVerify archive in a
	// single slot: in-process transport has no separate wire hop, so the
	// orchestrator passes the archive directly and this field exists only
	// to let test code tamper with it between transfer and rehydrate if
	// desired.
	LastArchive []byte
}

// NewTransportInProcess constructs a TransportInProcess.
func NewTransportInProcess(logger *logx.Logger) *TransportInProcess {
	return &TransportInProcess{logger: logger}
}

func (t *TransportInProcess) NotifyRequest(ctx context.Context, target persistence.Endpoint, ticket persistence.MigrationTicket) error {
	t.logger.Debug("in-process notifyRequest for ticket %s -> %s", ticket.MigrationID, target.NodeID)
	return nil
}

func (t *TransportInProcess) TransferAndVerify(ctx context.Context, target persistence.Endpoint, migrationID string, archive []byte, digestHex string) error {
	t.LastArchive = archive
	if !VerifyDigest(archive, digestHex) {
		return ferrors.New(ferrors.Transient, ferrors.ErrVerificationFailed, "digest mismatch during in-process transfer")
	}
	return nil
}

func (t *TransportInProcess) Rehydrate(ctx context.Context, target persistence.Endpoint, migrationID string) ([]string, error) {
	if t.Rehydrator != nil {
		return t.Rehydrator(migrationID)
	}
	return nil, nil
}
