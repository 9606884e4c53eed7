package migration

import (
	"context"

	"flock/internal/metrics"
	"flock/internal/persistence"
)

// FrozenGuardResult is the frozen guard's verdict for one agent.
type FrozenGuardResult struct {
	Rejected            bool
	Reason              string
	EstimatedDowntimeMS int64
}

// FrozenGuard is the predicate other subsystems consult before acting on
// an agent that may be mid-migration (§4.6 "Frozen guard").
type FrozenGuard struct {
	tickets  persistence.MigrationTicketStore
	timeouts PhaseTimeouts
	metrics  metrics.Recorder
}

// NewFrozenGuard constructs a FrozenGuard. timeouts supplies the
// phase-dependent estimated-downtime constants (the §6 phase-timeout
// table, reused verbatim per S5).
func NewFrozenGuard(tickets persistence.MigrationTicketStore, timeouts PhaseTimeouts) *FrozenGuard {
	return &FrozenGuard{tickets: tickets, timeouts: timeouts, metrics: metrics.Noop{}}
}

// SetMetrics wires a metrics.Recorder into the guard; omit to keep the
// no-op default.
func (g *FrozenGuard) SetMetrics(m metrics.Recorder) {
	g.metrics = m
}

// Check returns rejected=true with a human reason and estimated downtime
// if agentID has any ticket in a frozen phase. Tickets in FINALIZING,
// COMPLETED, ABORTED, REQUESTED, or AUTHORIZED never reject.
func (g *FrozenGuard) Check(ctx context.Context, agentID string) (FrozenGuardResult, error) {
	tickets, err := g.tickets.List(ctx, persistence.MigrationFilter{AgentID: agentID})
	if err != nil {
		return FrozenGuardResult{}, err
	}
	for _, t := range tickets {
		if FrozenPhases[t.Phase] {
			g.metrics.IncFrozenGuardRejection(agentID)
			return FrozenGuardResult{
				Rejected:            true,
				Reason:              "agent " + agentID + " is mid-migration (phase " + string(t.Phase) + ")",
				EstimatedDowntimeMS: g.timeouts[t.Phase],
			}, nil
		}
	}
	return FrozenGuardResult{Rejected: false}, nil
}
