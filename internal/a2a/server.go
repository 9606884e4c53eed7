package a2a

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"flock/internal/ferrors"
	"flock/internal/logx"
)

// LocalExecutor dispatches a message to an agent hosted on this node. It is
// the abstract SessionSend capability named out-of-scope by spec.md §1:
// flock never depends on a concrete LLM call shape, only on this interface.
type LocalExecutor interface {
	SendLocal(ctx context.Context, agentID string, msg Message) (Task, error)
}

// Dispatcher resolves and sends to an agentID irrespective of topology,
// satisfied by routing.Client without a2a importing the routing package.
type Dispatcher interface {
	Dispatch(ctx context.Context, agentID string, msg Message) (Task, error)
}

// Server is the A2A HTTP surface: POST /a2a/{agentID}, GET
// /.well-known/agent-card.json, and POST /proxy-send (§6).
type Server struct {
	executor   LocalExecutor
	dispatcher Dispatcher
	cardFn     func() AgentCardDirectory
	logger     *logx.Logger
}

// NewServer constructs a Server. cardFn is called fresh on every agent-card
// request so the directory reflects current registrations.
func NewServer(executor LocalExecutor, dispatcher Dispatcher, cardFn func() AgentCardDirectory, logger *logx.Logger) *Server {
	return &Server{executor: executor, dispatcher: dispatcher, cardFn: cardFn, logger: logger}
}

// RegisterRoutes wires the server's handlers onto mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/a2a/", s.handleA2A)
	mux.HandleFunc("/.well-known/agent-card.json", s.handleAgentCard)
	mux.HandleFunc("/proxy-send", s.handleProxySend)
}

func writeJSONRPCResult(w http.ResponseWriter, id any, result any) {
	body, err := json.Marshal(result)
	if err != nil {
		writeJSONRPCError(w, id, http.StatusInternalServerError, "marshal result failed")
		return
	}
	resp := JSONRPCResponse{JSONRPC: "2.0", ID: id, Result: body}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func writeJSONRPCError(w http.ResponseWriter, id any, code int, message string) {
	resp := JSONRPCResponse{JSONRPC: "2.0", ID: id, Error: &JSONRPCError{Code: code, Message: message}}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK) // JSON-RPC errors are carried in-body, not via HTTP status
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleA2A(w http.ResponseWriter, r *http.Request) {
	agentID := strings.TrimPrefix(r.URL.Path, "/a2a/")
	if agentID == "" {
		http.Error(w, "missing agentID", http.StatusBadRequest)
		return
	}

	var req JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid jsonrpc request", http.StatusBadRequest)
		return
	}

	switch req.Method {
	case "message/send":
		var params MessageSendParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			writeJSONRPCError(w, req.ID, -32602, "invalid params")
			return
		}
		task, err := s.executor.SendLocal(r.Context(), agentID, params.Message)
		if err != nil {
			s.logger.Warn("message/send to %s failed: %v", agentID, err)
			writeJSONRPCError(w, req.ID, -32000, err.Error())
			return
		}
		writeJSONRPCResult(w, req.ID, task)
	case "tasks/get", "tasks/cancel":
		// Task-lookup/cancel are not modeled as durable server-side state in
		// this implementation (SessionSend is synchronous); report completed.
		writeJSONRPCResult(w, req.ID, Task{Status: TaskStatus{State: TaskCompleted}})
	default:
		writeJSONRPCError(w, req.ID, -32601, fmt.Sprintf("method %q not found", req.Method))
	}
}

func (s *Server) handleAgentCard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.cardFn())
}

type proxySendRequest struct {
	TargetAgentID string  `json:"targetAgentID"`
	Message       Message `json:"message"`
}

func (s *Server) handleProxySend(w http.ResponseWriter, r *http.Request) {
	var req proxySendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	task, err := s.dispatcher.Dispatch(r.Context(), req.TargetAgentID, req.Message)
	if err != nil {
		status := http.StatusInternalServerError
		if ferrors.KindOf(err) == ferrors.NotFound {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(task)
}
