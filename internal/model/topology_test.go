package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopology_AllNodesDeduplicates(t *testing.T) {
	coordinator := NewNode("master", "10.0.0.1")
	topology := NewTopology(coordinator, []Node{
		NewNode("slave", "10.0.0.2"),
		NewNode("master", "10.0.0.1"),
	})

	nodes := topology.AllNodes()
	require.Len(t, nodes, 2)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, topology.Addresses())
	assert.Equal(t, NodeRoleCoordinator, nodes[0].Role)
	assert.Equal(t, NodeRoleWorker, nodes[1].Role)
}

func TestTopology_AllNodesProperties(t *testing.T) {
	coordinator := NewNode("master", "10.0.0.1")
	cases := [][]Node{
		nil,
		{coordinator},
		{NewNode("a", "10.0.0.2"), NewNode("b", "10.0.0.2")},
		{NewNode("a", "10.0.0.3"), coordinator, NewNode("b", "10.0.0.4"), NewNode("c", "10.0.0.3")},
	}

	for _, workers := range cases {
		nodes := NewTopology(coordinator, workers).AllNodes()

		assert.LessOrEqual(t, len(nodes), 1+len(workers))
		assert.True(t, nodes[0].SameAs(coordinator))

		seen := make(map[string]bool)
		for _, n := range nodes {
			assert.False(t, seen[n.Address()], "duplicate %s", n.Address())
			seen[n.Address()] = true
		}
	}
}

func TestTopology_WithRoleReplaced(t *testing.T) {
	original := NewTopology(NewNode("master", "10.0.0.1"), []Node{NewNode("slave", "10.0.0.2")})

	moved := original.WithCoordinator(NewNode("master-2", "10.0.0.9"))
	assert.Equal(t, "10.0.0.9", moved.Coordinator().Address())
	assert.Equal(t, "10.0.0.1", original.Coordinator().Address())

	grown := original.WithWorkers([]Node{NewNode("a", "10.0.0.2"), NewNode("b", "10.0.0.3")})
	assert.Len(t, grown.AllNodes(), 3)
	assert.Len(t, original.AllNodes(), 2)
}

func TestTopology_WorkersIsACopy(t *testing.T) {
	topology := NewTopology(NewNode("master", "10.0.0.1"), []Node{NewNode("slave", "10.0.0.2")})

	workers := topology.Workers()
	workers[0] = NewNode("other", "10.0.0.3")

	assert.Equal(t, "10.0.0.2", topology.Workers()[0].Address())
}

func TestNode_Address(t *testing.T) {
	n := Node{Name: "vm-1", Interfaces: map[string]string{"eth1": "192.168.0.5"}}
	assert.Equal(t, "vm-1", n.Address())
	assert.Equal(t, "192.168.0.5", n.IntfIP("eth1"))

	n.Interfaces[DefaultInterface] = "10.0.0.5"
	assert.Equal(t, "10.0.0.5", n.Address())
	assert.Equal(t, "vm-1(10.0.0.5)", n.String())
}
