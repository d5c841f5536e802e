package cluster

import (
	"context"

	"github.com/t77yq/cloudbench/internal/model"
)

// StartDFS starts the storage daemons from the coordinator
func (h *Hadoop) StartDFS(ctx context.Context) error {
	return h.script(ctx, model.PhaseStartDFS, "start-dfs.sh", func(s *model.ClusterStatus) {
		s.StorageRunning = true
	})
}

// StopDFS stops the storage daemons from the coordinator
func (h *Hadoop) StopDFS(ctx context.Context) error {
	return h.script(ctx, model.PhaseStopDFS, "stop-dfs.sh", func(s *model.ClusterStatus) {
		s.StorageRunning = false
	})
}

// RestartDFS stops then starts the storage daemons. No readiness check is
// made in between.
func (h *Hadoop) RestartDFS(ctx context.Context) error {
	if err := h.StopDFS(ctx); err != nil {
		return err
	}
	return h.StartDFS(ctx)
}

// StartYarn starts the resource manager and node managers
func (h *Hadoop) StartYarn(ctx context.Context) error {
	return h.script(ctx, model.PhaseStartYarn, "start-yarn.sh", func(s *model.ClusterStatus) {
		s.ComputeRunning = true
	})
}

// StopYarn stops the resource manager and node managers
func (h *Hadoop) StopYarn(ctx context.Context) error {
	return h.script(ctx, model.PhaseStopYarn, "stop-yarn.sh", func(s *model.ClusterStatus) {
		s.ComputeRunning = false
	})
}

// RestartYarn stops then starts YARN
func (h *Hadoop) RestartYarn(ctx context.Context) error {
	if err := h.StopYarn(ctx); err != nil {
		return err
	}
	return h.StartYarn(ctx)
}

// FormatHDFS wipes the storage directories on every node and re-creates
// the name node metadata on the coordinator. It is irreversible and must
// only run while the storage daemons are stopped; neither is checked.
func (h *Hadoop) FormatHDFS(ctx context.Context) error {
	apply := func(s *model.ClusterStatus) {
		s.State = model.ClusterStateFormatted
		s.StorageRunning = false
	}
	return h.runPhase(ctx, model.PhaseFormatHDFS, h.AllNodes(), apply, func(ctx context.Context) error {
		home := h.settings.HomeDir()

		if err := h.onAll(ctx, h.asServiceUser(model.NewCommand("rm", "-rf", home+"/hdfs"))); err != nil {
			return err
		}
		if err := h.onAll(ctx, h.asServiceUser(model.NewCommand("rm", "-rf", home+"/tmp"))); err != nil {
			return err
		}

		_, err := h.onCoordinator(ctx, h.asServiceUser(model.NewCommand("hdfs", "namenode", "-format", "-force")))
		return err
	})
}

// Execute runs an arbitrary shell command on the coordinator as the
// service user and returns its output unmodified
func (h *Hadoop) Execute(ctx context.Context, command string) (string, error) {
	var out string
	err := h.runPhase(ctx, model.PhaseExecute, []model.Node{h.Coordinator()}, nil, func(ctx context.Context) error {
		var err error
		out, err = h.onCoordinator(ctx, h.asServiceUser(model.Shell(command)))
		return err
	})
	return out, err
}

// script runs one of the node image's control scripts on the coordinator
func (h *Hadoop) script(ctx context.Context, phase model.Phase, name string, apply func(*model.ClusterStatus)) error {
	return h.runPhase(ctx, phase, []model.Node{h.Coordinator()}, apply, func(ctx context.Context) error {
		_, err := h.onCoordinator(ctx, h.asServiceUser(model.NewCommand(name)))
		return err
	})
}
