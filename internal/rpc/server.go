// Package rpc exposes the optimization service over line-delimited
// JSON-RPC 2.0 on a reader/writer pair, stdio in practice. Event bus
// subscriptions stream to the client as notifications on the same
// connection.
package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/rybkagreen/pagetune/internal/bus"
	"github.com/rybkagreen/pagetune/internal/config"
	"github.com/rybkagreen/pagetune/internal/orchestrator"
	"github.com/rybkagreen/pagetune/internal/stats"
)

// Server handles one JSON-RPC connection.
type Server struct {
	orch   *orchestrator.Orchestrator
	cfg    *config.Config
	stats  *stats.Collector
	events *bus.Bus
	logger *slog.Logger

	// wmu serializes writes: responses from the request loop and
	// notifications from subscription goroutines share one writer.
	wmu sync.Mutex
	bw  *bufio.Writer

	smu  sync.Mutex
	subs map[string]*bus.Subscription
}

// NewServer constructs a Server over the shared service components.
func NewServer(orch *orchestrator.Orchestrator, cfg *config.Config, collector *stats.Collector, events *bus.Bus, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		orch:   orch,
		cfg:    cfg,
		stats:  collector,
		events: events,
		logger: logger,
		subs:   make(map[string]*bus.Subscription),
	}
}

// jsonrpcRequest is a JSON-RPC 2.0 request message.
type jsonrpcRequest struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      *json.RawMessage `json:"id,omitempty"`
	Method  string           `json:"method"`
	Params  json.RawMessage  `json:"params,omitempty"`
}

// jsonrpcResponse is a JSON-RPC 2.0 response message.
type jsonrpcResponse struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      *json.RawMessage `json:"id,omitempty"`
	Result  any              `json:"result,omitempty"`
	Error   *jsonrpcError    `json:"error,omitempty"`
}

// jsonrpcNotification is a server-initiated message without an id.
type jsonrpcNotification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// jsonrpcError represents a JSON-RPC 2.0 error object. Data carries the
// stable error kind so clients can branch without parsing messages.
type jsonrpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

const (
	codeParseError     = -32700
	codeInvalidParams  = -32602
	codeMethodNotFound = -32601
	codeAppError       = -32000
)

// Run blocks, reading JSON-RPC 2.0 messages from r and writing responses
// to w, until ctx is cancelled or r returns EOF. Returns nil on clean
// shutdown, or a non-nil error for unexpected I/O failures.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	s.bw = bufio.NewWriter(w)
	defer s.closeSubscriptions()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	lineCh := make(chan string)
	errCh := make(chan error, 1)

	go func() {
		for scanner.Scan() {
			line := scanner.Text()
			select {
			case lineCh <- line:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			errCh <- err
		}
		close(lineCh)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			return err
		case line, ok := <-lineCh:
			if !ok {
				// EOF — clean shutdown
				return nil
			}
			if err := s.handleLine(ctx, line); err != nil {
				return err
			}
		}
	}
}

// handleLine processes a single JSON-RPC line and writes the response.
func (s *Server) handleLine(ctx context.Context, line string) error {
	var req jsonrpcRequest
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		return s.writeResponse(jsonrpcResponse{
			JSONRPC: "2.0",
			Error:   &jsonrpcError{Code: codeParseError, Message: "Parse error"},
		})
	}

	// Notifications (no id) — write no response.
	if req.ID == nil {
		return nil
	}

	resp := jsonrpcResponse{JSONRPC: "2.0", ID: req.ID}

	result, err := s.dispatch(ctx, req.Method, req.Params)
	if err != nil {
		resp.Error = toRPCError(err)
	} else {
		resp.Result = result
	}
	return s.writeResponse(resp)
}

// errKinder is satisfied by the domain error types.
type errKinder interface {
	Kind() string
}

func toRPCError(err error) *jsonrpcError {
	e := &jsonrpcError{Code: codeAppError, Message: err.Error()}
	if mn, ok := err.(*methodNotFoundError); ok {
		return &jsonrpcError{Code: codeMethodNotFound, Message: mn.Error()}
	}
	if ip, ok := err.(*invalidParamsError); ok {
		return &jsonrpcError{Code: codeInvalidParams, Message: ip.Error()}
	}
	if k, ok := err.(errKinder); ok {
		e.Data = map[string]string{"kind": k.Kind()}
	}
	return e
}

// writeResponse marshals resp as a single JSON line and flushes.
func (s *Server) writeResponse(resp jsonrpcResponse) error {
	return s.writeLine(resp)
}

func (s *Server) writeLine(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()
	if _, err := s.bw.Write(data); err != nil {
		return err
	}
	if err := s.bw.WriteByte('\n'); err != nil {
		return err
	}
	return s.bw.Flush()
}

// notify writes a server-initiated notification line. Failures are
// logged, not propagated; a broken pipe surfaces through the read loop.
func (s *Server) notify(method string, params any) {
	if err := s.writeLine(jsonrpcNotification{JSONRPC: "2.0", Method: method, Params: params}); err != nil {
		s.logger.Warn("writing notification failed", "method", method, "error", err)
	}
}

// subscribe registers a bus subscription and streams its events as
// events/event notifications until the bus closes it.
func (s *Server) subscribe(f bus.Filter) string {
	sub := s.events.Subscribe(f)
	id := uuid.NewString()

	s.smu.Lock()
	s.subs[id] = sub
	s.smu.Unlock()

	go func() {
		for e := range sub.C {
			s.notify("events/event", map[string]any{
				"subscription": id,
				"event":        e,
			})
		}
	}()
	return id
}

// unsubscribe stops the stream. Unknown ids are ignored.
func (s *Server) unsubscribe(id string) {
	s.smu.Lock()
	sub, ok := s.subs[id]
	delete(s.subs, id)
	s.smu.Unlock()
	if ok {
		s.events.Unsubscribe(sub)
	}
}

func (s *Server) closeSubscriptions() {
	s.smu.Lock()
	subs := s.subs
	s.subs = make(map[string]*bus.Subscription)
	s.smu.Unlock()
	for _, sub := range subs {
		s.events.Unsubscribe(sub)
	}
}
