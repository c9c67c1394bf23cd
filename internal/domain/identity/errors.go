package identity

import "errors"

var (
	// ErrAgentNotFound indicates the named agent doesn't exist in the project.
	ErrAgentNotFound = errors.New("agent not found")
	// ErrAgentAlreadyExists indicates (project_id, name) collides on register.
	ErrAgentAlreadyExists = errors.New("agent already exists")
	// ErrInvalidInput indicates invalid agent input.
	ErrInvalidInput = errors.New("invalid agent input")
	// ErrInvalidPolicy indicates an unrecognized attachments/contact policy value.
	ErrInvalidPolicy = errors.New("invalid policy value")
)
