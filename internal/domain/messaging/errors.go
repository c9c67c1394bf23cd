package messaging

import "errors"

var (
	// ErrInvalidInput indicates malformed send/reply/query input.
	ErrInvalidInput = errors.New("invalid messaging input")
	// ErrMessageNotFound indicates the referenced message doesn't exist.
	ErrMessageNotFound = errors.New("message not found")
	// ErrRecipientProjectNotFound indicates a recipient reference names an
	// unknown project.
	ErrRecipientProjectNotFound = errors.New("recipient project not found")
	// ErrRecipientNotFound indicates a recipient reference names an unknown
	// agent and auto-registration is disabled.
	ErrRecipientNotFound = errors.New("recipient not found")
	// ErrContactRequired indicates a cross-project send was blocked by the
	// recipient's contact policy with no approved link and no auto-handshake.
	ErrContactRequired = errors.New("contact required")
	// ErrContactPending indicates auto-handshake opened a pending link
	// instead of delivering immediately.
	ErrContactPending = errors.New("contact pending")
	// ErrFileReservationConflict indicates the send touches a path covered
	// by another agent's active exclusive reservation.
	ErrFileReservationConflict = errors.New("file reservation conflict")
	// ErrNoRecipients indicates a send resolved to zero recipients.
	ErrNoRecipients = errors.New("no recipients")
)
