package reservation

import "errors"

var (
	// ErrInvalidInput indicates malformed reservation input.
	ErrInvalidInput = errors.New("invalid reservation input")
	// ErrReservationNotFound indicates the referenced reservation doesn't exist.
	ErrReservationNotFound = errors.New("reservation not found")
	// ErrNotStale indicates a force-release was attempted on a reservation
	// whose holder is still active or whose sidecar was touched too
	// recently.
	ErrNotStale = errors.New("reservation is not stale")
)
