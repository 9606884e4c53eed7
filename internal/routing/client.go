package routing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"flock/internal/a2a"
	"flock/internal/ferrors"
	"flock/internal/logx"
	"flock/internal/persistence"
)

// DefaultMaxRetries is the system-failure handler's default retry ceiling
// for "timeout" outcomes (§7).
const DefaultMaxRetries = 2

// SendTimeout is the per-call timeout bounding a remote dispatch.
const SendTimeout = 120 * time.Second

// SendOutcome classifies an agent-to-agent send failure per §7.
type SendOutcome string

const (
	OutcomeOK               SendOutcome = "ok"
	OutcomeTimeout          SendOutcome = "timeout"
	OutcomeAgentUnavailable SendOutcome = "agent-unavailable"
	OutcomeInternalError    SendOutcome = "internal-error"
	OutcomeMaxRetries       SendOutcome = "max-retries"
)

// Client is the topology-agnostic dispatcher: local calls invoke the
// in-process executor directly; remote calls go out as A2A JSON-RPC. It
// also implements the §7 system-failure classifier for agent-to-agent
// sends.
type Client struct {
	resolver   Resolver
	executor   a2a.LocalExecutor
	remote     *a2a.Client
	audit      persistence.AuditStore
	logger     *logx.Logger
	maxRetries int
}

// NewClient constructs a Client. audit may be nil to disable audit-trail
// side effects (e.g. in tests exercising routing logic in isolation).
func NewClient(resolver Resolver, executor a2a.LocalExecutor, remote *a2a.Client, audit persistence.AuditStore, logger *logx.Logger) *Client {
	return &Client{
		resolver:   resolver,
		executor:   executor,
		remote:     remote,
		audit:      audit,
		logger:     logger,
		maxRetries: DefaultMaxRetries,
	}
}

// Dispatch implements a2a.Dispatcher: resolve then send, classifying and
// retrying failures per §7.
func (c *Client) Dispatch(ctx context.Context, agentID string, msg a2a.Message) (a2a.Task, error) {
	route, err := c.resolver.Resolve(ctx, agentID)
	if err != nil {
		return a2a.Task{}, err
	}

	attempts := 0
	for {
		attempts++
		callCtx, cancel := context.WithTimeout(ctx, SendTimeout)
		task, sendErr := c.send(callCtx, route, agentID, msg)
		cancel()
		if sendErr == nil {
			return task, nil
		}

		outcome := classify(sendErr)
		if outcome != OutcomeTimeout {
			c.auditFailure(agentID, outcome, sendErr)
			return a2a.Task{}, sendErr
		}
		if attempts > c.maxRetries {
			c.auditFailure(agentID, OutcomeMaxRetries, sendErr)
			return a2a.Task{}, ferrors.Newf(ferrors.Transient, ferrors.ErrTimeout,
				"send to %s timed out after %d attempts; try flock_discover", agentID, attempts)
		}
	}
}

func (c *Client) send(ctx context.Context, route Route, agentID string, msg a2a.Message) (a2a.Task, error) {
	if route.Kind == Local {
		return c.executor.SendLocal(ctx, agentID, msg)
	}
	return c.remote.SendMessage(ctx, route.Endpoint, agentID, msg)
}

// classify maps a send error onto the §7 outcome taxonomy.
func classify(err error) SendOutcome {
	if errors.Is(err, context.DeadlineExceeded) || ferrors.KindOf(err) == ferrors.Transient && errors.Is(err, ferrors.ErrTimeout) {
		return OutcomeTimeout
	}
	switch ferrors.KindOf(err) {
	case ferrors.NotFound:
		return OutcomeAgentUnavailable
	case ferrors.Transient:
		return OutcomeTimeout
	default:
		return OutcomeInternalError
	}
}

func (c *Client) auditFailure(agentID string, outcome SendOutcome, err error) {
	level := persistence.AuditRed
	if outcome == OutcomeMaxRetries {
		level = persistence.AuditYellow
	}
	if level == persistence.AuditYellow {
		c.logger.Warn("send to %s exhausted retries: %v", agentID, err)
	}
	if c.audit == nil {
		return
	}
	now := time.Now()
	entry := persistence.AuditEntry{
		ID:        fmt.Sprintf("send-failure-%s-%d", agentID, now.UnixNano()),
		Timestamp: now,
		AgentID:   agentID,
		Action:    "routing.send",
		Level:     level,
		Detail:    fmt.Sprintf("%s: %v", outcome, err),
	}
	if insertErr := persistence.InsertAudit(context.Background(), c.audit, c.logger, entry); insertErr != nil {
		c.logger.Warn("failed to record audit entry for send failure to %s: %v", agentID, insertErr)
	}
}
