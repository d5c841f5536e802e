package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/t77yq/cloudbench/internal/model"
)

func TestLocalExecutor_Run(t *testing.T) {
	e := NewLocalExecutor(zap.NewNop())
	node := model.NewNode("local", "127.0.0.1")
	ctx := context.Background()

	t.Run("captures stdout", func(t *testing.T) {
		out, err := e.Run(ctx, node, model.NewCommand("echo", "hello world"))
		require.NoError(t, err)
		assert.Equal(t, "hello world\n", out)
	})

	t.Run("quotes hostile arguments", func(t *testing.T) {
		out, err := e.Run(ctx, node, model.NewCommand("echo", "a; echo pwned", "$(id)"))
		require.NoError(t, err)
		assert.Equal(t, "a; echo pwned $(id)\n", out)
	})

	t.Run("feeds stdin", func(t *testing.T) {
		out, err := e.Run(ctx, node, model.NewCommand("cat").WithStdin("<configuration/>"))
		require.NoError(t, err)
		assert.Equal(t, "<configuration/>", out)
	})

	t.Run("changes directory", func(t *testing.T) {
		dir := t.TempDir()
		out, err := e.Run(ctx, node, model.NewCommand("pwd").In(dir))
		require.NoError(t, err)
		assert.Contains(t, out, dir)
	})

	t.Run("surfaces exit status", func(t *testing.T) {
		_, err := e.Run(ctx, node, model.Shell("echo broken >&2; exit 3"))
		require.Error(t, err)

		var execErr *ExecError
		require.True(t, errors.As(err, &execErr))
		assert.Equal(t, 3, execErr.ExitStatus)
		assert.Equal(t, "127.0.0.1", execErr.Node)
		assert.Contains(t, execErr.Error(), "broken")
		assert.True(t, IsExitError(err))
	})

	t.Run("rejects empty command", func(t *testing.T) {
		_, err := e.Run(ctx, node, model.Command{})
		assert.ErrorIs(t, err, ErrEmptyCommand)
	})

	t.Run("honours cancellation", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()

		_, err := e.Run(ctx, node, model.NewCommand("sleep", "5"))
		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.False(t, IsExitError(err))
	})
}
