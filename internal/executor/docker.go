package executor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"go.uber.org/zap"

	"github.com/t77yq/cloudbench/internal/model"
)

// DockerExecutor runs commands inside containers, treating each container
// as a cluster node. The container is looked up by the node's name.
type DockerExecutor struct {
	logger *zap.Logger
	docker *client.Client
}

// NewDockerExecutor creates a Docker executor from the environment
func NewDockerExecutor(logger *zap.Logger) (*DockerExecutor, error) {
	docker, err := client.NewClientWithOpts(
		client.FromEnv,
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	return &DockerExecutor{
		logger: logger.Named("docker"),
		docker: docker,
	}, nil
}

// Run implements RemoteExecutor
func (e *DockerExecutor) Run(ctx context.Context, node model.Node, cmd model.Command) (string, error) {
	if cmd.Empty() {
		return "", ErrEmptyCommand
	}
	line := cmd.String()
	target := node.Host()

	fail := func(err error) (string, error) {
		return "", &ExecError{Node: node.Address(), Command: line, Err: err}
	}

	created, err := e.docker.ContainerExecCreate(ctx, target, container.ExecOptions{
		Cmd:          []string{"sh", "-c", line},
		AttachStdin:  cmd.Stdin != "",
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return fail(fmt.Errorf("failed to create exec in %s: %w", target, err))
	}

	attached, err := e.docker.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return fail(fmt.Errorf("failed to attach exec in %s: %w", target, err))
	}
	defer attached.Close()

	e.logger.Debug("Executing container command",
		zap.String("container", target),
		zap.String("command", line))

	stdout, stderr, err := pumpExec(attached.Conn, attached.CloseWrite, attached.Reader, cmd.Stdin)
	if err != nil {
		return fail(err)
	}

	inspect, err := e.docker.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return fail(fmt.Errorf("failed to inspect exec: %w", err))
	}
	if inspect.ExitCode != 0 {
		return stdout, &ExecError{
			Node:       node.Address(),
			Command:    line,
			ExitStatus: inspect.ExitCode,
			Stderr:     stderr,
		}
	}

	return stdout, nil
}

// pumpExec writes stdin to an attached exec while demultiplexing its
// output, so a command that prints before reading its input cannot stall
func pumpExec(w io.Writer, closeWrite func() error, r io.Reader, stdin string) (string, string, error) {
	stdinDone := make(chan error, 1)
	if stdin != "" {
		go func() {
			if _, err := io.Copy(w, strings.NewReader(stdin)); err != nil {
				stdinDone <- fmt.Errorf("failed to write stdin: %w", err)
				return
			}
			if err := closeWrite(); err != nil {
				stdinDone <- fmt.Errorf("failed to close stdin: %w", err)
				return
			}
			stdinDone <- nil
		}()
	} else {
		stdinDone <- nil
	}

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, r); err != nil {
		return "", "", fmt.Errorf("failed to read exec output: %w", err)
	}
	if err := <-stdinDone; err != nil {
		return "", "", err
	}
	return stdout.String(), stderr.String(), nil
}

// Close closes the Docker client
func (e *DockerExecutor) Close() error {
	return e.docker.Close()
}
