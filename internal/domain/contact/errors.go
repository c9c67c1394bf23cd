package contact

import "errors"

var (
	// ErrInvalidInput indicates malformed contact request/response input.
	ErrInvalidInput = errors.New("invalid contact input")
	// ErrLinkNotFound indicates no link exists in the requested direction.
	ErrLinkNotFound = errors.New("contact link not found")
)
