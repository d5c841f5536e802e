package executor

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownTransport is returned when an unsupported transport is configured
	ErrUnknownTransport = errors.New("unknown transport")

	// ErrEmptyCommand is returned when a command has no arguments
	ErrEmptyCommand = errors.New("empty command")
)

// ExecError is returned when a remote command could not run or exited
// non-zero
type ExecError struct {
	Node       string
	Command    string
	ExitStatus int
	Stderr     string
	Err        error
}

func (e *ExecError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "command on %s failed", e.Node)
	if e.ExitStatus != 0 {
		fmt.Fprintf(&b, " with exit status %d", e.ExitStatus)
	}
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		fmt.Fprintf(&b, ": %s", stderr)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// IsExitError reports whether err is a command that ran and exited non-zero
func IsExitError(err error) bool {
	var execErr *ExecError
	return errors.As(err, &execErr) && execErr.ExitStatus != 0
}
