// Package cluster drives a Hadoop cluster: one coordinator running the
// name node and resource manager, and a set of workers. Phases are not
// transactional; a failure leaves earlier phases applied.
package cluster

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/t77yq/cloudbench/internal/dispatch"
	"github.com/t77yq/cloudbench/internal/events"
	"github.com/t77yq/cloudbench/internal/executor"
	"github.com/t77yq/cloudbench/internal/model"
	"github.com/t77yq/cloudbench/internal/render"
)

// Hadoop orchestrates configuration and lifecycle of one cluster
type Hadoop struct {
	logger    *zap.Logger
	exec      executor.RemoteExecutor
	topology  model.Topology
	settings  model.ClusterSettings
	renderer  *render.Renderer
	publisher events.Publisher

	mu     sync.RWMutex
	status model.ClusterStatus
}

// Option configures a Hadoop orchestrator
type Option func(*Hadoop)

// WithPublisher publishes an event after every phase
func WithPublisher(p events.Publisher) Option {
	return func(h *Hadoop) {
		h.publisher = p
	}
}

// NewHadoop creates an orchestrator for the given topology
func NewHadoop(exec executor.RemoteExecutor, topology model.Topology, settings model.ClusterSettings, logger *zap.Logger, opts ...Option) (*Hadoop, error) {
	if topology.Coordinator().Address() == "" {
		return nil, ErrNoCoordinator
	}

	h := &Hadoop{
		logger:   logger.Named("hadoop"),
		exec:     exec,
		topology: topology,
		settings: settings,
		renderer: render.NewRenderer(settings),
		status:   model.ClusterStatus{State: model.ClusterStateUnconfigured},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// WithTopology returns an orchestrator bound to a different topology.
// The receiver is left unchanged.
func (h *Hadoop) WithTopology(topology model.Topology) (*Hadoop, error) {
	if topology.Coordinator().Address() == "" {
		return nil, ErrNoCoordinator
	}

	next := &Hadoop{
		logger:    h.logger,
		exec:      h.exec,
		topology:  topology,
		settings:  h.settings,
		renderer:  h.renderer,
		publisher: h.publisher,
		status:    h.Status(),
	}
	return next, nil
}

// Topology returns the cluster layout
func (h *Hadoop) Topology() model.Topology {
	return h.topology
}

// Coordinator returns the coordinator node
func (h *Hadoop) Coordinator() model.Node {
	return h.topology.Coordinator()
}

// Workers returns the worker nodes as declared
func (h *Hadoop) Workers() []model.Node {
	return h.topology.Workers()
}

// AllNodes returns every distinct node, coordinator first
func (h *Hadoop) AllNodes() []model.Node {
	return h.topology.AllNodes()
}

// Status returns the last known lifecycle position
func (h *Hadoop) Status() model.ClusterStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status
}

// Render renders a configuration document for the current topology
func (h *Hadoop) Render(kind render.DocumentKind) (render.Document, error) {
	return h.renderer.Render(kind, h.topology)
}

// asServiceUser runs cmd in the service user's login shell
func (h *Hadoop) asServiceUser(cmd model.Command) model.Command {
	return cmd.As(h.settings.ServiceUser)
}

// writeFile returns the command that writes doc to its place under the
// install directory
func (h *Hadoop) writeFile(doc render.Document) model.Command {
	path := h.settings.ConfigPath(doc.Path)
	return h.asServiceUser(model.NewCommand("sh", "-c", `cat > "$1"`, "sh", path)).WithStdin(doc.Content)
}

// onCoordinator runs cmd on the coordinator only
func (h *Hadoop) onCoordinator(ctx context.Context, cmd model.Command) (string, error) {
	return h.exec.Run(ctx, h.Coordinator(), cmd)
}

// onAll runs cmd on every node in parallel
func (h *Hadoop) onAll(ctx context.Context, cmd model.Command) error {
	return dispatch.Run(ctx, h.exec, h.AllNodes(), cmd)
}

// runPhase executes fn, records the resulting status and publishes an event
func (h *Hadoop) runPhase(ctx context.Context, phase model.Phase, targets []model.Node, apply func(*model.ClusterStatus), fn func(ctx context.Context) error) error {
	started := time.Now()
	h.logger.Info("Phase started", zap.String("phase", string(phase)))

	err := fn(ctx)

	h.mu.Lock()
	if err == nil && apply != nil {
		apply(&h.status)
	}
	status := h.status
	h.mu.Unlock()

	event := model.Event{
		ID:         uuid.New().String(),
		Phase:      phase,
		Status:     status,
		Nodes:      addresses(targets),
		StartedAt:  started,
		FinishedAt: time.Now(),
	}

	if err != nil {
		event.Error = err.Error()
		h.logger.Error("Phase failed",
			zap.String("phase", string(phase)),
			zap.Strings("nodes", event.Nodes),
			zap.Error(err))
	} else {
		h.logger.Info("Phase completed",
			zap.String("phase", string(phase)),
			zap.String("state", string(status.State)),
			zap.Duration("duration", event.FinishedAt.Sub(started)))
	}

	if h.publisher != nil {
		if perr := h.publisher.Publish(ctx, event); perr != nil {
			h.logger.Warn("Failed to publish event",
				zap.String("phase", string(phase)),
				zap.Error(perr))
		}
	}

	if err != nil {
		return fmt.Errorf("%s: %w", phase, err)
	}
	return nil
}

func setState(state model.ClusterState) func(*model.ClusterStatus) {
	return func(s *model.ClusterStatus) {
		s.State = state
	}
}

func addresses(nodes []model.Node) []string {
	return lo.Map(nodes, func(n model.Node, _ int) string {
		return n.Address()
	})
}
