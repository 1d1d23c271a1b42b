package session

import "fmt"

// ValidationError rejects bad input before a session exists. It is never
// retried.
type ValidationError struct {
	Field   string
	Message string
}

// Kind returns the stable error kind string.
func (e *ValidationError) Kind() string { return "validation_error" }

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation error: %s", e.Message)
	}
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// CapacityError rejects a session when the caller already holds too many
// live sessions. The caller may retry later.
type CapacityError struct {
	Caller string
	Limit  int
}

// Kind returns the stable error kind string.
func (e *CapacityError) Kind() string { return "capacity_error" }

func (e *CapacityError) Error() string {
	return fmt.Sprintf("capacity error: caller %q already has %d live sessions", e.Caller, e.Limit)
}

// ConflictError rejects reuse of a live session identifier, including a
// second start call while the first is still running.
type ConflictError struct {
	ID string
}

// Kind returns the stable error kind string.
func (e *ConflictError) Kind() string { return "conflict_error" }

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict error: session %q is already live", e.ID)
}

// NotFoundError reports an unknown session identifier.
type NotFoundError struct {
	ID string
}

// Kind returns the stable error kind string.
func (e *NotFoundError) Kind() string { return "not_found" }

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("session %q not found", e.ID)
}
