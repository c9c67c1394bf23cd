package mcp

import (
	"errors"
	"fmt"

	"github.com/agentcoord/coordbus/internal/domain/contact"
	"github.com/agentcoord/coordbus/internal/domain/identity"
	"github.com/agentcoord/coordbus/internal/domain/messaging"
	"github.com/agentcoord/coordbus/internal/domain/project"
	"github.com/agentcoord/coordbus/internal/domain/reservation"
	"github.com/agentcoord/coordbus/internal/repository"
)

// APIError represents a structured tool error response: a
// machine-readable kind, a human message, and an optional data payload.
type APIError struct {
	Kind        string `json:"kind"`
	Message     string `json:"message"`
	Data        any    `json:"data,omitempty"`
	Recoverable bool   `json:"recoverable,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// MapError maps domain errors to the tool error taxonomy. Unknown errors
// fall through to INTERNAL_ERROR with a redacted message; the caller logs
// the original.
func MapError(err error) *APIError {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, errInvalidArgument):
		return &APIError{Kind: "INVALID_ARGUMENT", Message: err.Error()}
	case errors.Is(err, project.ErrProjectNotFound):
		return &APIError{Kind: "PROJECT_NOT_FOUND", Message: "project not found"}
	case errors.Is(err, project.ErrInvalidInput):
		return &APIError{Kind: "INVALID_ARGUMENT", Message: "invalid project input"}
	case errors.Is(err, project.ErrNotSameRepository):
		return &APIError{Kind: "PROJECTS_NOT_SAME_REPOSITORY", Message: err.Error()}
	case errors.Is(err, project.ErrAgentNameConflict):
		return &APIError{Kind: "ADOPT_AGENT_NAME_CONFLICT", Message: err.Error()}
	case errors.Is(err, identity.ErrAgentNotFound):
		return &APIError{Kind: "AGENT_NOT_FOUND", Message: "agent not found"}
	case errors.Is(err, identity.ErrInvalidInput), errors.Is(err, identity.ErrInvalidPolicy):
		return &APIError{Kind: "INVALID_ARGUMENT", Message: err.Error()}
	case errors.Is(err, messaging.ErrRecipientProjectNotFound):
		return &APIError{Kind: "RECIPIENT_PROJECT_NOT_FOUND", Message: "recipient project not found"}
	case errors.Is(err, messaging.ErrRecipientNotFound):
		return &APIError{Kind: "RECIPIENT_NOT_FOUND", Message: "recipient not found"}
	case errors.Is(err, messaging.ErrContactRequired):
		return &APIError{Kind: "CONTACT_REQUIRED", Message: "an approved contact link is required for this cross-project send"}
	case errors.Is(err, messaging.ErrContactPending):
		return &APIError{Kind: "CONTACT_PENDING", Message: "a contact request was opened instead of delivering"}
	case errors.Is(err, messaging.ErrFileReservationConflict):
		var conflictErr *messaging.ConflictError
		data := any(nil)
		if errors.As(err, &conflictErr) {
			data = map[string]any{"conflicts": conflictErr.Conflicts}
		}
		return &APIError{Kind: "FILE_RESERVATION_CONFLICT", Message: "the send overlaps an active exclusive reservation", Data: data}
	case errors.Is(err, messaging.ErrMessageNotFound):
		return &APIError{Kind: "INVALID_ARGUMENT", Message: "message not found"}
	case errors.Is(err, messaging.ErrInvalidInput), errors.Is(err, messaging.ErrNoRecipients):
		return &APIError{Kind: "INVALID_ARGUMENT", Message: err.Error()}
	case errors.Is(err, reservation.ErrNotStale):
		return &APIError{Kind: "FILE_RESERVATION_NOT_STALE", Message: "the reservation is still active and its holder is not stale"}
	case errors.Is(err, reservation.ErrReservationNotFound):
		return &APIError{Kind: "INVALID_ARGUMENT", Message: "reservation not found"}
	case errors.Is(err, reservation.ErrInvalidInput):
		return &APIError{Kind: "INVALID_ARGUMENT", Message: err.Error()}
	case errors.Is(err, contact.ErrLinkNotFound):
		return &APIError{Kind: "INVALID_ARGUMENT", Message: "contact link not found"}
	case errors.Is(err, contact.ErrInvalidInput):
		return &APIError{Kind: "INVALID_ARGUMENT", Message: err.Error()}
	case errors.Is(err, errResourceBusy):
		return &APIError{Kind: "RESOURCE_BUSY", Message: "storage is temporarily busy, retry the call", Recoverable: true}
	case errors.Is(err, errCircuitOpen):
		return &APIError{Kind: "CIRCUIT_OPEN", Message: "the storage circuit breaker is open, retry later", Recoverable: true}
	default:
		return nil
	}
}

// errInvalidArgument tags ad-hoc argument validation failures raised by the
// dispatch layer itself (missing required fields) rather than by a domain
// service.
var errInvalidArgument = errors.New("invalid argument")

// errResourceBusy and errCircuitOpen are the repository sentinels that the
// sqlite lock-retry wrapper and circuit breaker wrap into their errors;
// domain services wrap with %w, so MapError recognizes them via errors.Is.
var (
	errResourceBusy = repository.ErrBusy
	errCircuitOpen  = repository.ErrCircuitOpen
)

func invalidArgument(msg string) error {
	return fmt.Errorf("%s: %w", msg, errInvalidArgument)
}
