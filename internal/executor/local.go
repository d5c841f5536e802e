package executor

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/t77yq/cloudbench/internal/model"
)

// LocalExecutor runs commands with sh on the controller host. The target
// node is only used for logging and error reporting.
type LocalExecutor struct {
	logger *zap.Logger
	shell  string
}

// NewLocalExecutor creates a new local executor
func NewLocalExecutor(logger *zap.Logger) *LocalExecutor {
	return &LocalExecutor{
		logger: logger.Named("local"),
		shell:  "sh",
	}
}

// Run implements RemoteExecutor
func (e *LocalExecutor) Run(ctx context.Context, node model.Node, cmd model.Command) (string, error) {
	if cmd.Empty() {
		return "", ErrEmptyCommand
	}

	line := cmd.String()
	c := exec.CommandContext(ctx, e.shell, "-c", line)
	if cmd.Stdin != "" {
		c.Stdin = strings.NewReader(cmd.Stdin)
	}

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	e.logger.Debug("Executing local command",
		zap.String("node", node.Address()),
		zap.String("command", line))

	if err := c.Run(); err != nil {
		execErr := &ExecError{
			Node:    node.Address(),
			Command: line,
			Stderr:  stderr.String(),
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			execErr.ExitStatus = exitErr.ExitCode()
		} else {
			execErr.Err = err
			if ctx.Err() != nil {
				execErr.Err = ctx.Err()
			}
		}
		return stdout.String(), execErr
	}

	return stdout.String(), nil
}

// Close implements Transport
func (e *LocalExecutor) Close() error {
	return nil
}
