package cmd

import (
	"errors"
	"fmt"
)

// ExitError reports findings that must end the process with a non-zero code
// without being logged as a command failure.
type ExitError struct {
	Code   int
	Reason string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit %d: %s", e.Code, e.Reason)
}

func findings(reason string) error {
	return &ExitError{Code: 1, Reason: reason}
}

// ExitCode maps an Execute error to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 2
}
