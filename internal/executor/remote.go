package executor

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/t77yq/cloudbench/internal/model"
)

// RemoteExecutor runs a command on a single node and returns its stdout
type RemoteExecutor interface {
	Run(ctx context.Context, node model.Node, cmd model.Command) (string, error)
}

// Transport is a RemoteExecutor that holds connections open
type Transport interface {
	RemoteExecutor
	Close() error
}

// TransportKind selects a Transport implementation
type TransportKind string

const (
	TransportSSH    TransportKind = "ssh"
	TransportDocker TransportKind = "docker"
	TransportLocal  TransportKind = "local"
)

// TransportConfig defines configuration for every transport kind
type TransportConfig struct {
	Kind TransportKind `mapstructure:"kind"`
	SSH  SSHConfig     `mapstructure:"ssh"`
}

// NewTransport creates the transport named by config.Kind
func NewTransport(config TransportConfig, logger *zap.Logger) (Transport, error) {
	switch config.Kind {
	case TransportSSH, "":
		return NewSSHExecutor(config.SSH, logger)
	case TransportDocker:
		return NewDockerExecutor(logger)
	case TransportLocal:
		return NewLocalExecutor(logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransport, config.Kind)
	}
}
