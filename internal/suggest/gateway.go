package suggest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// FailureReason classifies why a suggestion was not usable.
type FailureReason string

const (
	// ReasonTimeout: the provider did not answer within the deadline.
	ReasonTimeout FailureReason = "timeout"

	// ReasonProvider: the provider returned an error or malformed response.
	ReasonProvider FailureReason = "provider-error"

	// ReasonEmpty: the provider answered with no content.
	ReasonEmpty FailureReason = "empty-output"

	// ReasonOversized: the returned markup exceeded the session size cap.
	ReasonOversized FailureReason = "oversized-output"
)

// Failure is the only error type the gateway returns. Raw transport errors
// never escape it.
type Failure struct {
	Reason  FailureReason
	Message string
	Err     error
}

// Kind returns the stable error kind string for events and logs.
func (f *Failure) Kind() string { return "suggestion_failure" }

func (f *Failure) Error() string {
	return fmt.Sprintf("suggestion failure (%s): %s", f.Reason, f.Message)
}

func (f *Failure) Unwrap() error { return f.Err }

// AsFailure extracts a *Failure from an error chain.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// Gateway wraps a Provider with output validation. Retries are not the
// gateway's job: it makes exactly one provider call per Suggest.
type Gateway struct {
	provider Provider
	maxBytes int
	logger   *slog.Logger
}

// NewGateway builds a Gateway. maxBytes caps accepted provider output;
// zero disables the cap (callers normally pass 2x the session's initial
// HTML size).
func NewGateway(provider Provider, maxBytes int, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{provider: provider, maxBytes: maxBytes, logger: logger}
}

// Suggest calls the provider once and validates the result. On any
// problem it returns ("", *Failure).
func (g *Gateway) Suggest(ctx context.Context, req Request) (string, error) {
	out, err := g.provider.Suggest(ctx, req)
	if err != nil {
		reason := ReasonProvider
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			reason = ReasonTimeout
		}
		g.logger.Warn("suggestion provider call failed",
			slog.String("reason", string(reason)),
			slog.String("error", err.Error()))
		return "", &Failure{Reason: reason, Message: err.Error(), Err: err}
	}

	if out == "" {
		return "", &Failure{Reason: ReasonEmpty, Message: "provider returned no content"}
	}
	if g.maxBytes > 0 && len(out) > g.maxBytes {
		return "", &Failure{
			Reason:  ReasonOversized,
			Message: fmt.Sprintf("provider returned %d bytes, cap is %d", len(out), g.maxBytes),
		}
	}

	return out, nil
}
