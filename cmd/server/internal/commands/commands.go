package commands

import (
	"errors"
	"fmt"
)

type Globals struct {
	Debug   bool
	Version string
}

// ConfigError reports a start-up failure that restarting will not fix.
// The process exits with code 2 for these and 1 for everything else.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string { return e.Err.Error() }

func (e *ConfigError) Unwrap() error { return e.Err }

func configErrorf(format string, args ...any) error {
	return &ConfigError{Err: fmt.Errorf(format, args...)}
}

// ExitCode maps a Run error onto the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var cfgErr *ConfigError
	if errors.As(err, &cfgErr) {
		return 2
	}
	return 1
}
