package errorutil

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
)

// Error codes for queue engine failures. Every rejected operation carries one
// of these so callers can resynchronize their local state deliberately.
const (
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeAgentBusy         = "AGENT_BUSY"
	CodeQueueEmpty        = "QUEUE_EMPTY"
	CodeSetMismatch       = "SET_MISMATCH"
	CodeTokenExhausted    = "TOKEN_EXHAUSTED"
	CodeConflictRetry     = "CONFLICT_RETRY"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError("UNAUTHORIZED", message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError("FORBIDDEN", message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError("CONFLICT", message, http.StatusConflict, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewInvalidTransition reports a state change outside the transition table.
func NewInvalidTransition(current, attempted string) error {
	return NewDomainError(CodeInvalidTransition,
		fmt.Sprintf("cannot move ticket from %s to %s", current, attempted),
		http.StatusConflict,
		map[string]any{"current_status": current, "attempted_status": attempted})
}

// NewAgentBusy reports a serving-slot conflict for the agent.
func NewAgentBusy(agentID string) error {
	return NewDomainError(CodeAgentBusy,
		"agent already has a ticket in serving",
		http.StatusConflict,
		map[string]any{"agent_id": agentID})
}

// NewQueueEmpty reports call-next on an empty queue. A normal negative result,
// not a defect.
func NewQueueEmpty(agentID string) error {
	return NewDomainError(CodeQueueEmpty,
		"no pending tickets for agent",
		http.StatusNotFound,
		map[string]any{"agent_id": agentID})
}

// NewSetMismatch rejects a reorder payload that is not exactly the agent's
// current pending set.
func NewSetMismatch(agentID string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	details["agent_id"] = agentID
	return NewDomainError(CodeSetMismatch,
		"reorder payload does not match current pending set",
		http.StatusConflict, details)
}

// NewTokenExhausted reports an exhausted daily token sequence.
func NewTokenExhausted(categoryID string) error {
	return NewDomainError(CodeTokenExhausted,
		"token sequence exhausted for category today",
		http.StatusConflict,
		map[string]any{"category_id": categoryID})
}

// NewConflictRetry reports token contention that outlived the retry budget.
func NewConflictRetry(categoryID string, attempts int) error {
	return NewDomainError(CodeConflictRetry,
		"token allocation kept conflicting, try again",
		http.StatusConflict,
		map[string]any{"category_id": categoryID, "attempts": attempts})
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, pgx.ErrNoRows) {
		if de, ok := NewNotFound("resource", nil).(*DomainError); ok {
			return de
		}
	}
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// MapError converts an error to its DomainError form.
func MapError(err error) error {
	return ToDomainError(err)
}

// CodeOf extracts the error code, or empty for nil.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	return ToDomainError(err).Code
}
