package model

import "github.com/samber/lo"

// Topology is an immutable coordinator/worker layout.
// Workers may include the coordinator; AllNodes collapses duplicates.
type Topology struct {
	coordinator Node
	workers     []Node
}

// NewTopology creates a topology from a coordinator and its workers
func NewTopology(coordinator Node, workers []Node) Topology {
	coordinator.Role = NodeRoleCoordinator
	return Topology{
		coordinator: coordinator,
		workers:     copyWorkers(workers),
	}
}

// Coordinator returns the coordinator node
func (t Topology) Coordinator() Node {
	return t.coordinator
}

// Workers returns a copy of the worker set as declared
func (t Topology) Workers() []Node {
	return copyWorkers(t.workers)
}

// WithCoordinator returns a topology with the coordinator replaced
func (t Topology) WithCoordinator(coordinator Node) Topology {
	return NewTopology(coordinator, t.workers)
}

// WithWorkers returns a topology with the worker set replaced
func (t Topology) WithWorkers(workers []Node) Topology {
	return NewTopology(t.coordinator, workers)
}

// AllNodes returns the coordinator followed by every distinct worker, in
// first-appearance order, deduplicated by address.
func (t Topology) AllNodes() []Node {
	nodes := append([]Node{t.coordinator}, t.workers...)
	return lo.UniqBy(nodes, Node.Address)
}

// Addresses returns the address of every distinct node
func (t Topology) Addresses() []string {
	return lo.Map(t.AllNodes(), func(n Node, _ int) string {
		return n.Address()
	})
}

func copyWorkers(workers []Node) []Node {
	out := make([]Node, len(workers))
	for i, w := range workers {
		if w.Role == "" {
			w.Role = NodeRoleWorker
		}
		out[i] = w
	}
	return out
}
