package executor

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/t77yq/cloudbench/internal/model"
	"github.com/t77yq/cloudbench/internal/storage"
	"github.com/t77yq/cloudbench/internal/testutil"
)

func TestRecorder_Run(t *testing.T) {
	logger := zap.NewNop()
	history, err := storage.NewSQLiteExecutionHistory(logger, filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer history.Close()

	fake := &testutil.FakeExecutor{
		Handler: func(ctx context.Context, node model.Node, cmd model.Command) (string, error) {
			if node.Address() == "10.0.0.2" {
				return "", errors.New("connection refused")
			}
			return "formatted", nil
		},
	}
	recorder := NewRecorder(fake, history, logger)
	ctx := context.Background()

	out, err := recorder.Run(ctx, model.NewNode("master", "10.0.0.1"), model.NewCommand("hdfs", "namenode", "-format", "-force"))
	require.NoError(t, err)
	assert.Equal(t, "formatted", out)

	_, err = recorder.Run(ctx, model.NewNode("slave", "10.0.0.2"), model.NewCommand("true"))
	require.EqualError(t, err, "connection refused")

	records, err := history.List(ctx, storage.ExecutionFilter{}, 0, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)

	succeeded, err := history.List(ctx, storage.ExecutionFilter{Status: model.ExecutionStatusSucceeded}, 0, 10)
	require.NoError(t, err)
	require.Len(t, succeeded, 1)
	assert.Equal(t, "10.0.0.1", succeeded[0].Node)
	assert.Equal(t, "hdfs namenode -format -force", succeeded[0].Command)
	assert.Equal(t, "formatted", succeeded[0].Output)
	require.NotNil(t, succeeded[0].CompletedAt)

	failed, err := history.List(ctx, storage.ExecutionFilter{Status: model.ExecutionStatusFailed}, 0, 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "connection refused", failed[0].Error)

	assert.Empty(t, recorder.Running())
}

func TestRecorder_WithoutHistory(t *testing.T) {
	fake := &testutil.FakeExecutor{}
	recorder := NewRecorder(fake, nil, zap.NewNop())

	_, err := recorder.Run(context.Background(), model.NewNode("", "10.0.0.1"), model.NewCommand("true"))
	require.NoError(t, err)
	assert.Len(t, fake.Calls(), 1)
}

func TestRecorder_Running(t *testing.T) {
	release := make(chan struct{})
	fake := &testutil.FakeExecutor{
		Handler: func(ctx context.Context, node model.Node, cmd model.Command) (string, error) {
			<-release
			return "", nil
		},
	}
	recorder := NewRecorder(fake, nil, zap.NewNop())

	done := make(chan error, 1)
	go func() {
		_, err := recorder.Run(context.Background(), model.NewNode("master", "10.0.0.1"), model.NewCommand("start-dfs.sh").As("hduser"))
		done <- err
	}()

	require.Eventually(t, func() bool {
		return len(recorder.Running()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	running := recorder.Running()[0]
	assert.Equal(t, "10.0.0.1", running.Node)
	assert.Equal(t, "sudo su - hduser -c start-dfs.sh", running.Command)
	assert.Equal(t, model.ExecutionStatusRunning, running.Status)

	close(release)
	require.NoError(t, <-done)
	assert.Empty(t, recorder.Running())
}
