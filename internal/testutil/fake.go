package testutil

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/t77yq/cloudbench/internal/model"
)

// Call is one command received by a FakeExecutor
type Call struct {
	Node    string
	Command model.Command
	Started time.Time
}

// FakeExecutor records commands instead of running them. It is safe for
// concurrent use by dispatcher goroutines.
type FakeExecutor struct {
	// Handler, when set, produces the result of each call
	Handler func(ctx context.Context, node model.Node, cmd model.Command) (string, error)

	// Delay is applied before every call returns
	Delay time.Duration

	mu    sync.Mutex
	calls []Call
}

// Run records the call and delegates to Handler
func (f *FakeExecutor) Run(ctx context.Context, node model.Node, cmd model.Command) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Node: node.Address(), Command: cmd, Started: time.Now()})
	f.mu.Unlock()

	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if f.Handler != nil {
		return f.Handler(ctx, node, cmd)
	}
	return "", nil
}

// Calls returns every recorded call in arrival order
func (f *FakeExecutor) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallsTo returns the calls that targeted addr
func (f *FakeExecutor) CallsTo(addr string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Node == addr {
			out = append(out, c)
		}
	}
	return out
}

// CallsContaining returns the calls whose command line contains substr
func (f *FakeExecutor) CallsContaining(substr string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if strings.Contains(c.Command.String(), substr) {
			out = append(out, c)
		}
	}
	return out
}

// Nodes returns the distinct targets of calls containing substr
func (f *FakeExecutor) Nodes(substr string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, c := range f.CallsContaining(substr) {
		if _, ok := seen[c.Node]; ok {
			continue
		}
		seen[c.Node] = struct{}{}
		out = append(out, c.Node)
	}
	return out
}

// Reset forgets every recorded call
func (f *FakeExecutor) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}
