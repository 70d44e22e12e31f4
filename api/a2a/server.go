// Package a2a implements the JSON-RPC 2.0 A2A surface (spec.md section
// 4.7, component C10): message/send (blocking), message/stream (SSE),
// tasks/get, tasks/cancel, tasks/resubscribe.
package a2a

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/proofport/gateway/api/sse"
	"github.com/proofport/gateway/models/gateway"
	"github.com/proofport/gateway/paymentgate"
	"github.com/proofport/gateway/prover"
	"github.com/proofport/gateway/router"
	"github.com/proofport/gateway/service/eventbus"
	"github.com/proofport/gateway/service/taskstore"
)

// blockingDeadline caps message/send's wait for a terminal task state
// (spec.md section 4.7).
const blockingDeadline = 120 * time.Second

// pollInterval is how often message/send re-reads the task store while
// waiting for a terminal task state.
const pollInterval = 250 * time.Millisecond

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Server dispatches A2A JSON-RPC methods over the shared task store,
// event bus, skill router and payment gate.
type Server struct {
	tasks    *taskstore.Store
	bus      *eventbus.Bus
	llm      prover.LLMProvider
	contexts router.ContextResolver
	gate     *paymentgate.Gate
	log      zerolog.Logger
}

// NewServer builds an A2A Server.
func NewServer(tasks *taskstore.Store, bus *eventbus.Bus, llm prover.LLMProvider, contexts router.ContextResolver, gate *paymentgate.Gate, log zerolog.Logger) *Server {
	return &Server{tasks: tasks, bus: bus, llm: llm, contexts: contexts, gate: gate, log: log.With().Str("component", "a2a").Logger()}
}

// RegisterRoutes wires the single JSON-RPC POST endpoint.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.POST("/a2a", s.Handle)
}

// Handle dispatches one JSON-RPC request, switching to an SSE response
// for message/stream and tasks/resubscribe.
func (s *Server) Handle(c echo.Context) error {
	var req rpcRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return c.JSON(http.StatusOK, rpcResponse{JSONRPC: "2.0", Error: &rpcError{Code: -32600, Message: "invalid request"}})
	}

	switch req.Method {
	case "message/send":
		return s.handleMessageSend(c, req)
	case "message/stream":
		return s.handleMessageStream(c, req)
	case "tasks/get":
		return s.handleTasksGet(c, req)
	case "tasks/cancel":
		return s.handleTasksCancel(c, req)
	case "tasks/resubscribe":
		return s.handleTasksResubscribe(c, req)
	default:
		return c.JSON(http.StatusOK, rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: -32601, Message: "method not found"}})
	}
}

type messageParams struct {
	Message gateway.Message `json:"message"`
}

// handleMessageSend resolves the skill, gates payment for non-free
// skills, enqueues the task, and blocks up to blockingDeadline for a
// terminal state.
func (s *Server) handleMessageSend(c echo.Context, req rpcRequest) error {
	task, rpcErr := s.submit(c, req)
	if rpcErr != nil {
		return c.JSON(http.StatusOK, rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: rpcErr})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), blockingDeadline)
	defer cancel()

	final := s.awaitTerminal(ctx, task.ID, task)
	return c.JSON(http.StatusOK, rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: final})
}

// handleMessageStream enqueues the task, subscribes before returning
// the initial snapshot (eventbus's documented ordering requirement),
// then forwards every event as an SSE frame until the task is terminal.
func (s *Server) handleMessageStream(c echo.Context, req rpcRequest) error {
	task, rpcErr := s.submit(c, req)
	if rpcErr != nil {
		return c.JSON(http.StatusOK, rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: rpcErr})
	}

	sub := s.bus.Subscribe(task.ID)
	defer sub.Close()

	w := c.Response()
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sse.Write(w, "task", task)
	if task.Status.Final {
		return nil
	}
	s.forward(c.Request().Context(), sub, w)
	return nil
}

// handleTasksResubscribe re-attaches to an in-flight task's event
// stream without re-submitting it.
func (s *Server) handleTasksResubscribe(c echo.Context, req rpcRequest) error {
	var params struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return c.JSON(http.StatusOK, rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: -32602, Message: "invalid params"}})
	}
	task, err := s.tasks.GetTask(c.Request().Context(), params.ID)
	if err != nil {
		return c.JSON(http.StatusOK, rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: -32001, Message: err.Error()}})
	}

	sub := s.bus.Subscribe(task.ID)
	defer sub.Close()

	w := c.Response()
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sse.Write(w, "task", task)
	if task.Status.Final {
		return nil
	}
	s.forward(c.Request().Context(), sub, w)
	return nil
}

func (s *Server) handleTasksGet(c echo.Context, req rpcRequest) error {
	var params struct {
		ID            string `json:"id"`
		HistoryLength *int   `json:"historyLength"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return c.JSON(http.StatusOK, rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: -32602, Message: "invalid params"}})
	}
	task, err := s.tasks.GetTask(c.Request().Context(), params.ID)
	if err != nil {
		return c.JSON(http.StatusOK, rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: -32001, Message: err.Error()}})
	}
	if params.HistoryLength != nil {
		task.History = gateway.TrimHistory(task.History, *params.HistoryLength)
	}
	return c.JSON(http.StatusOK, rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: task})
}

func (s *Server) handleTasksCancel(c echo.Context, req rpcRequest) error {
	var params struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return c.JSON(http.StatusOK, rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: -32602, Message: "invalid params"}})
	}
	task, err := s.tasks.UpdateTaskStatus(c.Request().Context(), params.ID, gateway.TaskCanceled, nil)
	if err != nil {
		return c.JSON(http.StatusOK, rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: cancelErrorCode(err), Message: err.Error()}})
	}
	return c.JSON(http.StatusOK, rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: task})
}

// cancelErrorCode maps tasks/cancel failures per spec.md section 4.7:
// an unknown task id is -32001 ("not found"), an already-terminal task
// rejecting the cancel transition is -32002 ("invalid status
// transition"), anything else falls back to the generic -32603.
func cancelErrorCode(err error) int {
	switch gateway.KindOf(err) {
	case gateway.KindNotFound:
		return -32001
	case gateway.KindInvalidTransition:
		return -32002
	default:
		return -32603
	}
}

// submit resolves the skill call, runs the payment gate for non-free
// skills, and enqueues the task. Returns a ready-made rpcError on any
// failure so callers don't need their own Kind->code mapping.
func (s *Server) submit(c echo.Context, req rpcRequest) (gateway.Task, *rpcError) {
	var params messageParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return gateway.Task{}, &rpcError{Code: -32602, Message: "invalid params"}
	}

	ctx := c.Request().Context()
	skillName, skillParams, _, err := router.ResolveSkill(ctx, params.Message, s.llm, s.contexts)
	if err != nil {
		return gateway.Task{}, &rpcError{Code: errorCode(err), Message: err.Error()}
	}

	if !paymentgate.IsFreeSkill(skillName) {
		handled := false
		if gateErr := s.gate.Require()(func(echo.Context) error { handled = true; return nil })(c); gateErr != nil || !handled {
			return gateway.Task{}, &rpcError{Code: -32002, Message: "payment required"}
		}
	}

	task, err := s.tasks.CreateTask(ctx, skillName, skillParams, params.Message, params.Message.ContextID)
	if err != nil {
		return gateway.Task{}, &rpcError{Code: -32603, Message: err.Error()}
	}
	return task, nil
}

// awaitTerminal polls the task store until it reaches a terminal
// state or ctx expires, whichever comes first.
func (s *Server) awaitTerminal(ctx context.Context, taskID string, last gateway.Task) gateway.Task {
	if last.Status.Final {
		return last
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return last
		case <-ticker.C:
			task, err := s.tasks.GetTask(ctx, taskID)
			if err != nil {
				return last
			}
			last = task
			if task.Status.Final {
				return task
			}
		}
	}
}

// forward streams bus events as SSE frames until the task reaches a
// terminal state or the client disconnects. Canceling ctx closes the
// subscription, which unblocks sub.Next() with ok=false.
func (s *Server) forward(ctx context.Context, sub *eventbus.Subscription, w http.ResponseWriter) {
	go func() {
		<-ctx.Done()
		sub.Close()
	}()
	for {
		event, ok := sub.Next()
		if !ok {
			return
		}
		switch event.Kind {
		case eventbus.KindStatusUpdate:
			sse.Write(w, "status-update", event.Status)
			if event.Status.Final {
				return
			}
		case eventbus.KindArtifactUpdate:
			sse.Write(w, "artifact-update", event.Artifact)
		case eventbus.KindTaskComplete:
			sse.Write(w, "task-complete", event.Task)
			return
		}
	}
}

func errorCode(err error) int {
	gerr, ok := err.(*gateway.Error)
	if !ok {
		return -32603
	}
	switch gerr.Kind {
	case gateway.KindInvalidArgument:
		return -32602
	case gateway.KindNotRoutable:
		return -32601
	case gateway.KindPaymentRequired:
		return -32002
	case gateway.KindNotFound:
		return -32001
	default:
		return -32603
	}
}
