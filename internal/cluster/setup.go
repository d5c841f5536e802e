package cluster

import (
	"context"
	"strings"

	"github.com/t77yq/cloudbench/internal/dispatch"
	"github.com/t77yq/cloudbench/internal/model"
	"github.com/t77yq/cloudbench/internal/render"
)

const (
	generateKeyScript = `test -f ~/.ssh/id_rsa || ssh-keygen -q -t rsa -N "" -f ~/.ssh/id_rsa`
	authorizeScript   = `mkdir -p ~/.ssh && chmod 700 ~/.ssh && touch ~/.ssh/authorized_keys && ` +
		`chmod 600 ~/.ssh/authorized_keys && ` +
		`(grep -qxF "$1" ~/.ssh/authorized_keys || printf '%s\n' "$1" >> ~/.ssh/authorized_keys)`
	knownHostsScript = `ssh-keyscan -H "$@" >> ~/.ssh/known_hosts 2>/dev/null`
)

// Setup runs every configuration phase in order, stopping at the first
// failure. Completed phases are not rolled back.
func (h *Hadoop) Setup(ctx context.Context) error {
	phases := []func(context.Context) error{
		h.SetupKeys,
		h.SetupCoreSite,
		h.SetupYarnSite,
		h.SetupHDFSSite,
		h.SetupMapredSite,
		h.SetupSlaves,
	}
	for _, phase := range phases {
		if err := phase(ctx); err != nil {
			return err
		}
	}
	return nil
}

// SetupKeys lets the service user on the coordinator log into every node
// without a password, which the start scripts rely on
func (h *Hadoop) SetupKeys(ctx context.Context) error {
	nodes := h.AllNodes()
	return h.runPhase(ctx, model.PhaseSetupKeys, nodes, setState(model.ClusterStateKeysExchanged), func(ctx context.Context) error {
		if _, err := h.onCoordinator(ctx, h.asServiceUser(model.Shell(generateKeyScript))); err != nil {
			return err
		}

		out, err := h.onCoordinator(ctx, h.asServiceUser(model.NewCommand("cat", ".ssh/id_rsa.pub")))
		if err != nil {
			return err
		}
		key := strings.TrimSpace(out)
		if key == "" {
			return ErrNoPublicKey
		}

		if err := h.onAll(ctx, h.asServiceUser(model.NewCommand("sh", "-c", authorizeScript, "sh", key))); err != nil {
			return err
		}

		hosts := append([]string{"localhost", "0.0.0.0"}, h.Topology().Addresses()...)
		_, err = h.onCoordinator(ctx, h.asServiceUser(model.NewCommand(append([]string{"sh", "-c", knownHostsScript, "sh"}, hosts...)...)))
		return err
	})
}

// SetupCoreSite writes core-site.xml to every node
func (h *Hadoop) SetupCoreSite(ctx context.Context) error {
	return h.distribute(ctx, model.PhaseCoreSite, render.DocumentCore, h.AllNodes(), model.ClusterStateCoreConfigured)
}

// SetupYarnSite writes yarn-site.xml to every node; node managers need the
// resource manager addresses as much as the coordinator does
func (h *Hadoop) SetupYarnSite(ctx context.Context) error {
	return h.distribute(ctx, model.PhaseYarnSite, render.DocumentResourceManager, h.AllNodes(), model.ClusterStateResourceConfigured)
}

// SetupHDFSSite creates the name node and data node directories on every
// node, then writes hdfs-site.xml to every node
func (h *Hadoop) SetupHDFSSite(ctx context.Context) error {
	nodes := h.AllNodes()
	return h.runPhase(ctx, model.PhaseHDFSSite, nodes, setState(model.ClusterStateStorageConfigured), func(ctx context.Context) error {
		mkdirs := model.NewCommand("mkdir", "-p", h.renderer.DataNodeDir(), h.renderer.NameNodeDir())
		if err := h.onAll(ctx, h.asServiceUser(mkdirs)); err != nil {
			return err
		}

		doc, err := h.renderer.HDFSSite(h.topology)
		if err != nil {
			return err
		}
		return h.onAll(ctx, h.writeFile(doc))
	})
}

// SetupMapredSite writes mapred-site.xml to the coordinator
func (h *Hadoop) SetupMapredSite(ctx context.Context) error {
	return h.distribute(ctx, model.PhaseMapredSite, render.DocumentCompute, []model.Node{h.Coordinator()}, model.ClusterStateComputeConfigured)
}

// SetupSlaves writes the membership list to the coordinator
func (h *Hadoop) SetupSlaves(ctx context.Context) error {
	return h.distribute(ctx, model.PhaseSlaves, render.DocumentMembership, []model.Node{h.Coordinator()}, model.ClusterStateMembershipConfigured)
}

// distribute renders a document and writes it to targets. A single target
// is written directly, more go through the dispatcher.
func (h *Hadoop) distribute(ctx context.Context, phase model.Phase, kind render.DocumentKind, targets []model.Node, state model.ClusterState) error {
	return h.runPhase(ctx, phase, targets, setState(state), func(ctx context.Context) error {
		doc, err := h.renderer.Render(kind, h.topology)
		if err != nil {
			return err
		}

		cmd := h.writeFile(doc)
		if len(targets) == 1 {
			_, err := h.exec.Run(ctx, targets[0], cmd)
			return err
		}
		return dispatch.Run(ctx, h.exec, targets, cmd)
	})
}
