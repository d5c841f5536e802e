package executor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/docker/docker/pkg/stdcopy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/t77yq/cloudbench/internal/model"
)

// TestDockerExecutor_Run needs a running container named by
// CLOUDBENCH_TEST_CONTAINER.
func TestDockerExecutor_Run(t *testing.T) {
	name := os.Getenv("CLOUDBENCH_TEST_CONTAINER")
	if name == "" {
		t.Skip("CLOUDBENCH_TEST_CONTAINER not set")
	}

	e, err := NewDockerExecutor(zap.NewNop())
	require.NoError(t, err)
	defer e.Close()

	node := model.Node{Name: name}
	ctx := context.Background()

	out, err := e.Run(ctx, node, model.NewCommand("cat").WithStdin("hello"))
	require.NoError(t, err)
	assert.Equal(t, "hello", out)

	_, err = e.Run(ctx, node, model.Shell("exit 4"))
	require.Error(t, err)
	assert.True(t, IsExitError(err))
}

func TestPumpExec_OutputBeforeInput(t *testing.T) {
	// Unbuffered on both sides: the command blocks writing output until it
	// is drained, and the caller blocks writing stdin until it is read.
	stdinClient, stdinServer := net.Pipe()
	outReader, outWriter := io.Pipe()
	defer stdinServer.Close()

	banner := strings.Repeat("x", 256*1024)
	input := strings.Repeat("10.0.0.1\n", 4096)

	go func() {
		defer outWriter.Close()
		stdoutStream := stdcopy.NewStdWriter(outWriter, stdcopy.Stdout)
		if _, err := io.WriteString(stdoutStream, banner); err != nil {
			return
		}
		got, err := io.ReadAll(stdinServer)
		if err != nil {
			return
		}
		fmt.Fprintf(stdcopy.NewStdWriter(outWriter, stdcopy.Stderr), "%d", len(got))
	}()

	type result struct {
		stdout, stderr string
		err            error
	}
	done := make(chan result, 1)
	go func() {
		stdout, stderr, err := pumpExec(stdinClient, stdinClient.Close, outReader, input)
		done <- result{stdout, stderr, err}
	}()

	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.Equal(t, banner, r.stdout)
		assert.Equal(t, strconv.Itoa(len(input)), r.stderr)
	case <-time.After(5 * time.Second):
		t.Fatal("exec stream stalled")
	}
}

func TestPumpExec_NoStdin(t *testing.T) {
	var framed bytes.Buffer
	_, err := io.WriteString(stdcopy.NewStdWriter(&framed, stdcopy.Stdout), "done\n")
	require.NoError(t, err)

	closeWrite := func() error {
		t.Fatal("stdin closed without input")
		return nil
	}
	stdout, stderr, err := pumpExec(io.Discard, closeWrite, &framed, "")
	require.NoError(t, err)
	assert.Equal(t, "done\n", stdout)
	assert.Empty(t, stderr)
}
