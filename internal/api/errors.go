package api

import (
	"fmt"

	"github.com/pkg/errors"
)

// Sentinel errors for blocking client operations.
// These can be checked using errors.Is().
var (
	// ErrNoActiveProject is returned by Await when a command needing a
	// project was skipped because none is selected.
	ErrNoActiveProject = errors.New("api: no active project")

	// ErrProjectNotCreated is delivered by CreateProjectVerified when the
	// server does not list the new project.
	ErrProjectNotCreated = errors.New("api: project not created")
)

// ServerError is an error reported in a server reply.
type ServerError struct {
	Operation string
	Message   string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Operation, e.Message)
}

// NewServerError creates a new ServerError for the given operation.
func NewServerError(operation, message string) *ServerError {
	return &ServerError{
		Operation: operation,
		Message:   message,
	}
}
