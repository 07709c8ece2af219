package cli

import (
	"errors"
	"fmt"

	"mercator-hq/creditgate/pkg/config"
	"mercator-hq/creditgate/pkg/costs"
	"mercator-hq/creditgate/pkg/gate"
)

// Process exit codes.
const (
	ExitOK          = 0
	ExitError       = 1
	ExitUsage       = 2
	ExitConfig      = 3
	ExitDenied      = 4
	ExitUnavailable = 5
)

// ConfigError represents an error in configuration or flags.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error in %s: %s", e.Field, e.Message)
}

// CommandError represents an error from a command execution.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s failed: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{
		Field:   field,
		Message: message,
	}
}

// NewCommandError creates a new CommandError.
func NewCommandError(command string, err error) *CommandError {
	return &CommandError{
		Command: command,
		Err:     err,
	}
}

// ExitCode maps err to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var (
		cfgErr     *ConfigError
		validation config.ValidationError
		denial     *gate.DenialError
	)
	switch {
	case errors.As(err, &cfgErr), errors.As(err, &validation):
		return ExitConfig
	case errors.Is(err, costs.ErrUnknownFeature):
		return ExitUsage
	case errors.As(err, &denial):
		if denial.Reason == gate.ReasonLedgerUnavailable {
			return ExitUnavailable
		}
		return ExitDenied
	}
	return ExitError
}
