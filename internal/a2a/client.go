package a2a

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"flock/internal/ferrors"
)

// Client issues JSON-RPC 2.0 calls against a remote A2A endpoint over HTTP.
// Kept deliberately thin: stdlib net/http plus encoding/json, with no
// third-party JSON-RPC or HTTP client library pulled in (see DESIGN.md).
type Client struct {
	http *http.Client
}

// NewClient creates a Client with the given per-request timeout.
func NewClient(timeout time.Duration) *Client {
	return &Client{http: &http.Client{Timeout: timeout}}
}

// SendMessage POSTs a message/send request to {endpoint}/a2a/{agentID}.
func (c *Client) SendMessage(ctx context.Context, endpoint, agentID string, msg Message) (Task, error) {
	params, err := json.Marshal(MessageSendParams{Message: msg})
	if err != nil {
		return Task{}, fmt.Errorf("marshal message/send params: %w", err)
	}
	req := JSONRPCRequest{
		JSONRPC: "2.0",
		Method:  "message/send",
		Params:  params,
		ID:      uuid.NewString(),
	}
	var task Task
	if err := c.call(ctx, fmt.Sprintf("%s/a2a/%s", endpoint, agentID), req, &task); err != nil {
		return Task{}, err
	}
	return task, nil
}

// FetchAgentCard GETs {endpoint}/.well-known/agent-card.json.
func (c *Client) FetchAgentCard(ctx context.Context, endpoint string) (AgentCardDirectory, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"/.well-known/agent-card.json", nil)
	if err != nil {
		return AgentCardDirectory{}, fmt.Errorf("build agent-card request: %w", err)
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return AgentCardDirectory{}, ferrors.New(ferrors.Transient, ferrors.ErrNetwork, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return AgentCardDirectory{}, ferrors.Newf(ferrors.Transient, ferrors.ErrNetwork,
			"agent-card fetch from %s: status %d", endpoint, resp.StatusCode)
	}
	var dir AgentCardDirectory
	if err := json.NewDecoder(resp.Body).Decode(&dir); err != nil {
		return AgentCardDirectory{}, fmt.Errorf("decode agent-card response: %w", err)
	}
	return dir, nil
}

// call performs one JSON-RPC 2.0 round trip and unmarshals the result into
// out.
func (c *Client) call(ctx context.Context, url string, rpcReq JSONRPCRequest, out any) error {
	body, err := json.Marshal(rpcReq)
	if err != nil {
		return fmt.Errorf("marshal jsonrpc request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build jsonrpc request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return ferrors.New(ferrors.Transient, ferrors.ErrTimeout, fmt.Sprintf("request to %s timed out", url))
		}
		return ferrors.New(ferrors.Transient, ferrors.ErrNetwork, err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	var rpcResp JSONRPCResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return fmt.Errorf("unmarshal jsonrpc response: %w", err)
	}
	if rpcResp.Error != nil {
		return ferrors.Newf(ferrors.Fatal, ferrors.ErrInternal, "jsonrpc error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}
	if out != nil && rpcResp.Result != nil {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return fmt.Errorf("unmarshal jsonrpc result: %w", err)
		}
	}
	return nil
}
