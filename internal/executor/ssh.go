package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kevinburke/ssh_config"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
	"golang.org/x/sync/singleflight"

	"github.com/t77yq/cloudbench/internal/model"
)

// SSHConfig defines configuration for the SSH transport
type SSHConfig struct {
	User           string        `mapstructure:"user"`
	Port           int           `mapstructure:"port"`
	KeyPath        string        `mapstructure:"key_path"`
	ConfigPath     string        `mapstructure:"config_path"`
	KnownHostsPath string        `mapstructure:"known_hosts_path"`
	Insecure       bool          `mapstructure:"insecure"`
	DialTimeout    time.Duration `mapstructure:"dial_timeout"`
}

// SSHExecutor runs commands over SSH, keeping one client per endpoint
type SSHExecutor struct {
	logger     *zap.Logger
	config     SSHConfig
	signer     ssh.Signer
	hostKeys   ssh.HostKeyCallback
	userConfig *ssh_config.Config
	dial       func(ctx context.Context, network, addr string) (net.Conn, error)

	connecting singleflight.Group

	mu      sync.Mutex
	clients map[string]*ssh.Client
	closed  bool
}

var errExecutorClosed = errors.New("ssh executor closed")

// NewSSHExecutor creates a new SSH executor
func NewSSHExecutor(config SSHConfig, logger *zap.Logger) (*SSHExecutor, error) {
	if config.Port == 0 {
		config.Port = 22
	}
	if config.DialTimeout == 0 {
		config.DialTimeout = 10 * time.Second
	}

	key, err := os.ReadFile(expandHome(config.KeyPath))
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	hostKeys := ssh.InsecureIgnoreHostKey()
	if !config.Insecure {
		hostKeys, err = knownhosts.New(expandHome(config.KnownHostsPath))
		if err != nil {
			return nil, fmt.Errorf("failed to load known hosts: %w", err)
		}
	}

	var userConfig *ssh_config.Config
	if config.ConfigPath != "" {
		userConfig, err = loadSSHConfig(expandHome(config.ConfigPath))
		if err != nil {
			return nil, err
		}
	}

	dialer := &net.Dialer{Timeout: config.DialTimeout}
	return &SSHExecutor{
		logger:     logger.Named("ssh"),
		config:     config,
		signer:     signer,
		hostKeys:   hostKeys,
		userConfig: userConfig,
		dial:       dialer.DialContext,
		clients:    make(map[string]*ssh.Client),
	}, nil
}

func loadSSHConfig(path string) (*ssh_config.Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open ssh config: %w", err)
	}
	defer f.Close()

	cfg, err := ssh_config.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ssh config: %w", err)
	}
	return cfg, nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

// lookup returns an ssh_config value for the node's name, if any
func (e *SSHExecutor) lookup(node model.Node, key string) string {
	if e.userConfig == nil || node.Name == "" {
		return ""
	}
	v, err := e.userConfig.Get(node.Name, key)
	if err != nil {
		return ""
	}
	return v
}

// endpoint resolves the dial address and login user for a node.
// Explicit node settings win over ssh_config, which wins over defaults.
func (e *SSHExecutor) endpoint(node model.Node) (addr, user string) {
	host := node.Address()
	if h := e.lookup(node, "HostName"); h != "" && node.IntfIP(model.DefaultInterface) == "" {
		host = h
	}

	port := node.SSHPort
	if port == 0 {
		if p, err := strconv.Atoi(e.lookup(node, "Port")); err == nil {
			port = p
		}
	}
	if port == 0 {
		port = e.config.Port
	}

	user = node.SSHUser
	if user == "" {
		user = e.lookup(node, "User")
	}
	if user == "" {
		user = e.config.User
	}

	return net.JoinHostPort(host, strconv.Itoa(port)), user
}

// client returns the cached connection for the node's endpoint, dialing
// it if needed. Concurrent first connections to one endpoint share a single
// dial; different endpoints dial in parallel. The dial and handshake are
// bounded by DialTimeout, and ctx only bounds how long the caller waits.
func (e *SSHExecutor) client(ctx context.Context, node model.Node) (*ssh.Client, string, error) {
	addr, user := e.endpoint(node)
	key := user + "@" + addr

	e.mu.Lock()
	c, ok := e.clients[key]
	e.mu.Unlock()
	if ok {
		return c, key, nil
	}

	result := e.connecting.DoChan(key, func() (interface{}, error) {
		e.mu.Lock()
		if c, ok := e.clients[key]; ok {
			e.mu.Unlock()
			return c, nil
		}
		e.mu.Unlock()

		// The first waiter may give up; the connection still serves the rest.
		c, err := e.connect(context.WithoutCancel(ctx), addr, user)
		if err != nil {
			return nil, err
		}

		e.mu.Lock()
		defer e.mu.Unlock()
		if e.closed {
			c.Close()
			return nil, errExecutorClosed
		}
		e.clients[key] = c

		e.logger.Info("SSH connection established",
			zap.String("node", node.String()),
			zap.String("addr", addr),
			zap.String("user", user))
		return c, nil
	})

	select {
	case <-ctx.Done():
		return nil, key, ctx.Err()
	case res := <-result:
		if res.Err != nil {
			return nil, key, res.Err
		}
		return res.Val.(*ssh.Client), key, nil
	}
}

// connect dials addr and completes the SSH handshake within DialTimeout
func (e *SSHExecutor) connect(ctx context.Context, addr, user string) (*ssh.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, e.config.DialTimeout)
	defer cancel()

	conn, err := e.dial(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}

	// ssh.ClientConfig.Timeout only applies to ssh.Dial
	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set deadline on %s: %w", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(e.signer)},
		HostKeyCallback: e.hostKeys,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s failed: %w", addr, err)
	}

	if err := conn.SetDeadline(time.Time{}); err != nil {
		sshConn.Close()
		return nil, fmt.Errorf("failed to clear deadline on %s: %w", addr, err)
	}

	return ssh.NewClient(sshConn, chans, reqs), nil
}

func (e *SSHExecutor) drop(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if c, ok := e.clients[key]; ok {
		c.Close()
		delete(e.clients, key)
	}
}

// Run implements RemoteExecutor
func (e *SSHExecutor) Run(ctx context.Context, node model.Node, cmd model.Command) (string, error) {
	if cmd.Empty() {
		return "", ErrEmptyCommand
	}
	line := cmd.String()

	c, key, err := e.client(ctx, node)
	if err != nil {
		return "", &ExecError{Node: node.Address(), Command: line, Err: err}
	}

	session, err := c.NewSession()
	if err != nil {
		// A dead connection is only noticed here; redial next time.
		e.drop(key)
		return "", &ExecError{Node: node.Address(), Command: line, Err: fmt.Errorf("failed to open session: %w", err)}
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr
	if cmd.Stdin != "" {
		session.Stdin = strings.NewReader(cmd.Stdin)
	}

	e.logger.Debug("Executing remote command",
		zap.String("node", node.String()),
		zap.String("command", line))

	done := make(chan error, 1)
	go func() {
		done <- session.Run(line)
	}()

	select {
	case <-ctx.Done():
		session.Signal(ssh.SIGKILL)
		session.Close()
		return "", &ExecError{Node: node.Address(), Command: line, Err: ctx.Err()}
	case err = <-done:
	}

	if err != nil {
		execErr := &ExecError{Node: node.Address(), Command: line, Stderr: stderr.String()}
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			execErr.ExitStatus = exitErr.ExitStatus()
		} else {
			execErr.Err = err
			e.drop(key)
		}
		return stdout.String(), execErr
	}

	return stdout.String(), nil
}

// Close closes every cached connection
func (e *SSHExecutor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.closed = true
	var firstErr error
	for key, c := range e.clients {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(e.clients, key)
	}
	return firstErr
}
