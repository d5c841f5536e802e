// Package dispatch fans work out to cluster nodes.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/t77yq/cloudbench/internal/executor"
	"github.com/t77yq/cloudbench/internal/model"
)

// NodeFunc is a unit of work applied to one node
type NodeFunc func(ctx context.Context, node model.Node) error

// Parallel runs fn against every node concurrently and returns once all
// of them have finished. A failing node does not cancel the others. Every
// failure is collected, in node order, into a *multierror.Error.
func Parallel(ctx context.Context, nodes []model.Node, fn NodeFunc) error {
	errs := make([]error, len(nodes))

	var wg sync.WaitGroup
	for i, node := range nodes {
		wg.Add(1)
		go func(i int, node model.Node) {
			defer wg.Done()
			if err := fn(ctx, node); err != nil {
				errs[i] = fmt.Errorf("%s: %w", node.Address(), err)
			}
		}(i, node)
	}
	wg.Wait()

	var result *multierror.Error
	for _, err := range errs {
		if err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Run sends the same command to every node in parallel
func Run(ctx context.Context, exec executor.RemoteExecutor, nodes []model.Node, cmd model.Command) error {
	return Parallel(ctx, nodes, func(ctx context.Context, node model.Node) error {
		_, err := exec.Run(ctx, node, cmd)
		return err
	})
}

// Failures returns the individual node errors carried by err
func Failures(err error) []error {
	if err == nil {
		return nil
	}
	var merr *multierror.Error
	if errors.As(err, &merr) {
		return merr.WrappedErrors()
	}
	return []error{err}
}
