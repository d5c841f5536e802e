package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/t77yq/cloudbench/internal/model"
	"github.com/t77yq/cloudbench/internal/testutil"
)

func nodes(addrs ...string) []model.Node {
	out := make([]model.Node, len(addrs))
	for i, addr := range addrs {
		out[i] = model.NewNode("", addr)
	}
	return out
}

func TestParallel_RunsEveryNode(t *testing.T) {
	var done atomic.Int32
	err := Parallel(context.Background(), nodes("10.0.0.1", "10.0.0.2", "10.0.0.3", "10.0.0.4"),
		func(ctx context.Context, node model.Node) error {
			time.Sleep(10 * time.Millisecond)
			done.Add(1)
			return nil
		})

	require.NoError(t, err)
	assert.Equal(t, int32(4), done.Load())
}

func TestParallel_RunsConcurrently(t *testing.T) {
	release := make(chan struct{})
	var started atomic.Int32

	go func() {
		// Only closes if all three are in flight at once.
		for started.Load() < 3 {
			time.Sleep(time.Millisecond)
		}
		close(release)
	}()

	err := Parallel(context.Background(), nodes("10.0.0.1", "10.0.0.2", "10.0.0.3"),
		func(ctx context.Context, node model.Node) error {
			started.Add(1)
			select {
			case <-release:
				return nil
			case <-time.After(5 * time.Second):
				return errors.New("not concurrent")
			}
		})
	require.NoError(t, err)
}

func TestParallel_WaitsForAllOnFailure(t *testing.T) {
	var done atomic.Int32
	err := Parallel(context.Background(), nodes("10.0.0.1", "10.0.0.2", "10.0.0.3"),
		func(ctx context.Context, node model.Node) error {
			if node.Address() == "10.0.0.1" {
				return errors.New("disk full")
			}
			time.Sleep(50 * time.Millisecond)
			done.Add(1)
			return nil
		})

	require.Error(t, err)
	assert.Equal(t, int32(2), done.Load())

	failures := Failures(err)
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0].Error(), "10.0.0.1: disk full")
}

func TestParallel_CollectsAllFailuresInNodeOrder(t *testing.T) {
	boom := errors.New("boom")
	err := Parallel(context.Background(), nodes("10.0.0.1", "10.0.0.2", "10.0.0.3"),
		func(ctx context.Context, node model.Node) error {
			if node.Address() == "10.0.0.1" {
				time.Sleep(20 * time.Millisecond)
			}
			if node.Address() == "10.0.0.2" {
				return nil
			}
			return boom
		})

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	failures := Failures(err)
	require.Len(t, failures, 2)
	assert.Contains(t, failures[0].Error(), "10.0.0.1")
	assert.Contains(t, failures[1].Error(), "10.0.0.3")

	wrapped := fmt.Errorf("hdfs_site: %w", err)
	assert.Len(t, Failures(wrapped), 2)
	assert.Equal(t, []error{boom}, Failures(boom))
	assert.Nil(t, Failures(nil))
}

func TestParallel_NoNodes(t *testing.T) {
	assert.NoError(t, Parallel(context.Background(), nil, func(ctx context.Context, node model.Node) error {
		return errors.New("unreachable")
	}))
}

func TestRun(t *testing.T) {
	fake := &testutil.FakeExecutor{}
	cmd := model.NewCommand("mkdir", "-p", "/home/hduser/hdfs/datanode")

	require.NoError(t, Run(context.Background(), fake, nodes("10.0.0.1", "10.0.0.2"), cmd))
	assert.ElementsMatch(t, []string{"10.0.0.1", "10.0.0.2"}, fake.Nodes("mkdir"))
}
