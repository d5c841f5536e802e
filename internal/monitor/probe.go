package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/t77yq/cloudbench/internal/dispatch"
	"github.com/t77yq/cloudbench/internal/events"
	"github.com/t77yq/cloudbench/internal/executor"
	"github.com/t77yq/cloudbench/internal/model"
)

// NodeHealth is the probe outcome for one node
type NodeHealth struct {
	Node      string        `json:"node"`
	Reachable bool          `json:"reachable"`
	Latency   time.Duration `json:"latency"`
	Error     string        `json:"error,omitempty"`
}

// ProbeReport summarises one probe round
type ProbeReport struct {
	ID        string       `json:"id"`
	StartedAt time.Time    `json:"started_at"`
	Nodes     []NodeHealth `json:"nodes"`
	// Load on the host running the probe
	ControllerCPU    float64 `json:"controller_cpu"`
	ControllerMemory float64 `json:"controller_memory"`
}

// Unreachable returns the addresses that failed the probe
func (r *ProbeReport) Unreachable() []string {
	var out []string
	for _, n := range r.Nodes {
		if !n.Reachable {
			out = append(out, n.Node)
		}
	}
	return out
}

// Prober checks that every node of a topology accepts commands
type Prober struct {
	logger    *zap.Logger
	exec      executor.RemoteExecutor
	topology  model.Topology
	publisher events.Publisher
	cron      *cron.Cron

	mu   sync.RWMutex
	last *ProbeReport
}

// cronLogger adapts zap.Logger to cron.Logger
type cronLogger struct {
	logger *zap.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, zap.Any("details", keysAndValues))
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, zap.Error(err), zap.Any("details", keysAndValues))
}

// NewProber creates a prober. publisher may be nil.
func NewProber(exec executor.RemoteExecutor, topology model.Topology, publisher events.Publisher, logger *zap.Logger) *Prober {
	logger = logger.Named("probe")
	cl := &cronLogger{logger: logger.Named("cron")}

	return &Prober{
		logger:    logger,
		exec:      exec,
		topology:  topology,
		publisher: publisher,
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
	}
}

// Probe runs a no-op command on every node in parallel and reports which
// ones answered
func (p *Prober) Probe(ctx context.Context) (*ProbeReport, error) {
	nodes := p.topology.AllNodes()
	report := &ProbeReport{
		ID:        uuid.New().String(),
		StartedAt: time.Now(),
		Nodes:     make([]NodeHealth, len(nodes)),
	}

	index := make(map[string]int, len(nodes))
	for i, n := range nodes {
		index[n.Address()] = i
		report.Nodes[i].Node = n.Address()
	}

	err := dispatch.Parallel(ctx, nodes, func(ctx context.Context, node model.Node) error {
		started := time.Now()
		_, err := p.exec.Run(ctx, node, model.NewCommand("true"))

		health := &report.Nodes[index[node.Address()]]
		health.Latency = time.Since(started)
		health.Reachable = err == nil
		if err != nil {
			health.Error = err.Error()
		}
		return err
	})

	p.sampleController(report)

	p.mu.Lock()
	p.last = report
	p.mu.Unlock()

	if unreachable := report.Unreachable(); len(unreachable) > 0 {
		p.logger.Warn("Nodes unreachable", zap.Strings("nodes", unreachable))
	} else {
		p.logger.Info("All nodes reachable", zap.Int("count", len(nodes)))
	}

	if p.publisher != nil {
		event := model.Event{
			ID:         report.ID,
			Phase:      model.PhaseProbe,
			Nodes:      p.topology.Addresses(),
			StartedAt:  report.StartedAt,
			FinishedAt: time.Now(),
		}
		if err != nil {
			event.Error = err.Error()
		}
		if perr := p.publisher.Publish(ctx, event); perr != nil {
			p.logger.Warn("Failed to publish probe event", zap.Error(perr))
		}
	}

	return report, err
}

func (p *Prober) sampleController(report *ProbeReport) {
	cpuPercent, err := cpu.Percent(0, false)
	if err != nil {
		p.logger.Debug("Failed to get CPU usage", zap.Error(err))
	} else if len(cpuPercent) > 0 {
		report.ControllerCPU = cpuPercent[0]
	}

	memInfo, err := mem.VirtualMemory()
	if err != nil {
		p.logger.Debug("Failed to get memory usage", zap.Error(err))
	} else {
		report.ControllerMemory = memInfo.UsedPercent
	}
}

// Start probes on the given cron schedule (seconds field included) until
// ctx is done or Stop is called
func (p *Prober) Start(ctx context.Context, expression string) error {
	_, err := p.cron.AddFunc(expression, func() {
		if _, err := p.Probe(ctx); err != nil {
			p.logger.Debug("Probe round finished with failures", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	p.cron.Start()
	p.logger.Info("Probe scheduled", zap.String("expression", expression))

	go func() {
		<-ctx.Done()
		p.Stop()
	}()
	return nil
}

// Stop stops scheduling probes and waits for a running one to finish
func (p *Prober) Stop() {
	<-p.cron.Stop().Done()
}

// LastReport returns the most recent probe report, or nil
func (p *Prober) LastReport() *ProbeReport {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last
}
