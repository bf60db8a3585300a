package config

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Validation errors.
var (
	ErrEmptyProjectName   = errors.New("project name cannot be empty")
	ErrInvalidProjectName = errors.New("project name contains invalid characters")
	ErrProjectNameTooLong = errors.New("project name exceeds maximum length")
	ErrEmptyHost          = errors.New("host cannot be empty")
	ErrInvalidPort        = errors.New("port must be between 1 and 65535")
	ErrInvalidNamespace   = errors.New("namespace must start with /")
	ErrInvalidPath        = errors.New("path must start with /")
	ErrNegativeValue      = errors.New("value cannot be negative")
	ErrInvalidLogLevel    = errors.New("log level must be debug, info, warn, or error")
)

// Maximum project name length.
const MaxProjectNameLength = 64

// validProjectNameRegex matches valid project names:
// alphanumeric, dash, underscore, dot, no path separators.
var validProjectNameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// validLogLevels is the list of accepted log levels.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// ValidationError wraps a validation error with context.
type ValidationError struct {
	Field   string
	Value   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("%s: %s (got %q)", e.Field, e.Message, e.Value)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ValidateProjectName validates a project name.
func ValidateProjectName(name string) error {
	if name == "" {
		return &ValidationError{
			Field:   "name",
			Message: "cannot be empty",
			Err:     ErrEmptyProjectName,
		}
	}

	if len(name) > MaxProjectNameLength {
		return &ValidationError{
			Field:   "name",
			Value:   name,
			Message: fmt.Sprintf("exceeds maximum length of %d characters", MaxProjectNameLength),
			Err:     ErrProjectNameTooLong,
		}
	}

	if !validProjectNameRegex.MatchString(name) {
		return &ValidationError{
			Field:   "name",
			Value:   name,
			Message: "must start with alphanumeric and contain only alphanumeric, dash, underscore, or dot",
			Err:     ErrInvalidProjectName,
		}
	}

	return nil
}

// ValidatePort validates a TCP port.
func ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Value:   strconv.Itoa(port),
			Message: "must be between 1 and 65535",
			Err:     ErrInvalidPort,
		}
	}
	return nil
}

// ValidateNamespace validates a Socket.IO namespace.
func ValidateNamespace(ns string) error {
	if !strings.HasPrefix(ns, "/") {
		return &ValidationError{
			Field:   "server.namespace",
			Value:   ns,
			Message: "must start with /",
			Err:     ErrInvalidNamespace,
		}
	}
	return nil
}

// ValidatePath validates the Socket.IO endpoint path.
func ValidatePath(path string) error {
	if !strings.HasPrefix(path, "/") {
		return &ValidationError{
			Field:   "server.path",
			Value:   path,
			Message: "must start with /",
			Err:     ErrInvalidPath,
		}
	}
	return nil
}

// ValidateDuration rejects negative durations.
func ValidateDuration(field string, d time.Duration) error {
	if d < 0 {
		return &ValidationError{
			Field:   field,
			Value:   d.String(),
			Message: "cannot be negative",
			Err:     ErrNegativeValue,
		}
	}
	return nil
}

// ValidateLogLevel validates a log level name. Empty means the default.
func ValidateLogLevel(level string) error {
	if level == "" || validLogLevels[strings.ToLower(level)] {
		return nil
	}
	return &ValidationError{
		Field:   "log.level",
		Value:   level,
		Message: "must be debug, info, warn, or error",
		Err:     ErrInvalidLogLevel,
	}
}
