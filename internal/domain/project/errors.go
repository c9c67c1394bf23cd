package project

import "errors"

var (
	// ErrProjectNotFound indicates the project doesn't exist.
	ErrProjectNotFound = errors.New("project not found")
	// ErrInvalidInput indicates invalid project input.
	ErrInvalidInput = errors.New("invalid project input")
	// ErrNotSameRepository indicates Adopt refused because source and
	// target don't resolve to the same git-common-dir.
	ErrNotSameRepository = errors.New("source and target are not the same repository")
	// ErrAgentNameConflict indicates Adopt refused because an agent name
	// exists in both the source and target projects.
	ErrAgentNameConflict = errors.New("agent name conflict between source and target projects")
)
