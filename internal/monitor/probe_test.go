package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/t77yq/cloudbench/internal/model"
	"github.com/t77yq/cloudbench/internal/testutil"
)

func testTopology() model.Topology {
	return model.NewTopology(model.NewNode("master", "10.0.0.1"), []model.Node{
		model.NewNode("slave-1", "10.0.0.2"),
		model.NewNode("slave-2", "10.0.0.3"),
	})
}

func TestProber_Probe(t *testing.T) {
	fake := &testutil.FakeExecutor{
		Handler: func(ctx context.Context, node model.Node, cmd model.Command) (string, error) {
			if node.Address() == "10.0.0.3" {
				return "", errors.New("no route to host")
			}
			return "", nil
		},
	}
	prober := NewProber(fake, testTopology(), nil, zap.NewNop())

	report, err := prober.Probe(context.Background())
	require.Error(t, err)
	require.NotNil(t, report)

	require.Len(t, report.Nodes, 3)
	assert.Equal(t, "10.0.0.1", report.Nodes[0].Node)
	assert.True(t, report.Nodes[0].Reachable)
	assert.True(t, report.Nodes[1].Reachable)
	assert.False(t, report.Nodes[2].Reachable)
	assert.Contains(t, report.Nodes[2].Error, "no route to host")
	assert.Equal(t, []string{"10.0.0.3"}, report.Unreachable())

	assert.Same(t, report, prober.LastReport())
	assert.ElementsMatch(t, []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"}, fake.Nodes("true"))
}

func TestProber_Schedule(t *testing.T) {
	fake := &testutil.FakeExecutor{}
	prober := NewProber(fake, testTopology(), nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, prober.Start(ctx, "@every 1s"))
	defer prober.Stop()

	require.Eventually(t, func() bool {
		return prober.LastReport() != nil
	}, 5*time.Second, 50*time.Millisecond)
	assert.Empty(t, prober.LastReport().Unreachable())
}

func TestProber_InvalidExpression(t *testing.T) {
	prober := NewProber(&testutil.FakeExecutor{}, testTopology(), nil, zap.NewNop())
	assert.Error(t, prober.Start(context.Background(), "not a schedule"))
}
