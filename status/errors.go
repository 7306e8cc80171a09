package status

import (
	"errors"
	"fmt"
)

// ErrPrecondition marks misuse of the translation path, e.g. asking for the
// error of a successful result.
var ErrPrecondition = errors.New("mcdb: precondition violated")

// ConfigError reports malformed or contradictory configuration. It is raised at
// parse or connection-acquisition time and is never worth retrying.
type ConfigError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	msg := "mcdb: invalid config"
	if e.Field != "" {
		msg += " " + e.Field
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Configf is a shorthand for a ConfigError with a formatted reason.
func Configf(field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// BackendFault is any backend state the adapter cannot express as a boolean:
// connection refused, protocol errors, unexpected statuses.
type BackendFault struct {
	Op      string
	Code    Code
	Message string
}

func (e *BackendFault) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("mcdb: %s failed: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("mcdb: %s failed: %s: %s", e.Op, e.Code, e.Message)
}

// IsConfig reports whether err is or wraps a *ConfigError.
func IsConfig(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsFault reports whether err is or wraps a *BackendFault.
func IsFault(err error) bool {
	var bf *BackendFault
	return errors.As(err, &bf)
}
