package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rybkagreen/pagetune/internal/analyzer"
	"github.com/rybkagreen/pagetune/internal/bus"
	"github.com/rybkagreen/pagetune/internal/orchestrator"
	"github.com/rybkagreen/pagetune/internal/session"
)

type methodNotFoundError struct{ method string }

func (e *methodNotFoundError) Error() string {
	return fmt.Sprintf("method not found: %s", e.method)
}

type invalidParamsError struct{ reason string }

func (e *invalidParamsError) Error() string {
	return fmt.Sprintf("invalid params: %s", e.reason)
}

func decodeParams[T any](raw json.RawMessage) (T, error) {
	var params T
	if len(raw) == 0 {
		return params, nil
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		return params, &invalidParamsError{reason: err.Error()}
	}
	return params, nil
}

type startParams struct {
	SessionID string   `json:"session_id,omitempty"`
	Caller    string   `json:"caller,omitempty"`
	HTML      string   `json:"html"`
	Keywords  []string `json:"target_keywords,omitempty"`

	// Wait makes the call block until the run reaches a terminal state
	// and return the final snapshot instead of an acknowledgement.
	Wait bool `json:"wait,omitempty"`
}

type sessionParams struct {
	SessionID string `json:"session_id"`
}

// startResult is the synchronous start response: the terminal outcome
// of the run, including the optimized document itself.
type startResult struct {
	SessionID          string             `json:"session_id"`
	OptimizationResult optimizationResult `json:"optimization_result"`
}

type optimizationResult struct {
	State           session.State    `json:"state"`
	CyclesPerformed int              `json:"cycles_performed"`
	OptimizedHTML   string           `json:"optimized_html"`
	FinalAnalysis   *analyzer.Report `json:"final_analysis,omitempty"`
	Improved        bool             `json:"improved"`
}

func newStartResult(sess *session.Session) startResult {
	snap := sess.Snapshot()
	improved := snap.InitialScore != nil && snap.FinalScore != nil &&
		*snap.FinalScore > *snap.InitialScore
	return startResult{
		SessionID: sess.ID,
		OptimizationResult: optimizationResult{
			State:           snap.State,
			CyclesPerformed: snap.CyclesPerformed,
			OptimizedHTML:   sess.HTML(),
			FinalAnalysis:   sess.FinalAnalysis(),
			Improved:        improved,
		},
	}
}

type subscribeParams struct {
	SessionID string          `json:"session_id,omitempty"`
	Types     []bus.EventType `json:"types,omitempty"`
	FinalOnly bool            `json:"final_only,omitempty"`
}

type unsubscribeParams struct {
	Subscription string `json:"subscription"`
}

func (s *Server) dispatch(ctx context.Context, method string, raw json.RawMessage) (any, error) {
	switch method {
	case "optimize/start":
		return s.handleStart(ctx, raw)
	case "optimize/status":
		return s.handleStatus(raw)
	case "optimize/cancel":
		return s.handleCancel(raw)
	case "sessions/list":
		return s.orch.ListActive(), nil
	case "config/get":
		return s.cfg.Optimization, nil
	case "config/set":
		return s.handleConfigSet(raw)
	case "stats/get":
		return s.stats.Summary(), nil
	case "events/subscribe":
		return s.handleSubscribe(raw)
	case "events/unsubscribe":
		return s.handleUnsubscribe(raw)
	default:
		return nil, &methodNotFoundError{method: method}
	}
}

func (s *Server) handleStart(ctx context.Context, raw json.RawMessage) (any, error) {
	params, err := decodeParams[startParams](raw)
	if err != nil {
		return nil, err
	}

	req := orchestrator.StartRequest{
		SessionID: params.SessionID,
		Caller:    params.Caller,
		HTML:      params.HTML,
		Keywords:  params.Keywords,
	}

	if params.Wait {
		sess, err := s.orch.Create(req)
		if err != nil {
			return nil, err
		}
		if err := s.orch.Run(ctx, sess); err != nil {
			return nil, err
		}
		return newStartResult(sess), nil
	}

	sess, err := s.orch.Start(ctx, req)
	if err != nil {
		return nil, err
	}
	return sess.Snapshot(), nil
}

func (s *Server) handleStatus(raw json.RawMessage) (any, error) {
	params, err := decodeParams[sessionParams](raw)
	if err != nil {
		return nil, err
	}
	if params.SessionID == "" {
		return nil, &invalidParamsError{reason: "session_id is required"}
	}
	return s.orch.Status(params.SessionID)
}

func (s *Server) handleCancel(raw json.RawMessage) (any, error) {
	params, err := decodeParams[sessionParams](raw)
	if err != nil {
		return nil, err
	}
	if params.SessionID == "" {
		return nil, &invalidParamsError{reason: "session_id is required"}
	}
	if err := s.orch.Cancel(params.SessionID); err != nil {
		return nil, err
	}
	return map[string]any{"session_id": params.SessionID, "cancelled": true}, nil
}

func (s *Server) handleConfigSet(raw json.RawMessage) (any, error) {
	patch, err := decodeParams[map[string]any](raw)
	if err != nil {
		return nil, err
	}
	if len(patch) == 0 {
		return nil, &invalidParamsError{reason: "empty patch"}
	}
	if err := s.cfg.Optimization.ApplyPatch(patch); err != nil {
		return nil, err
	}
	return s.cfg.Optimization, nil
}

func (s *Server) handleSubscribe(raw json.RawMessage) (any, error) {
	params, err := decodeParams[subscribeParams](raw)
	if err != nil {
		return nil, err
	}
	id := s.subscribe(bus.Filter{
		SessionID: params.SessionID,
		Types:     params.Types,
		FinalOnly: params.FinalOnly,
	})
	return map[string]any{"subscription": id}, nil
}

func (s *Server) handleUnsubscribe(raw json.RawMessage) (any, error) {
	params, err := decodeParams[unsubscribeParams](raw)
	if err != nil {
		return nil, err
	}
	if params.Subscription == "" {
		return nil, &invalidParamsError{reason: "subscription is required"}
	}
	s.unsubscribe(params.Subscription)
	return map[string]any{"unsubscribed": true}, nil
}
