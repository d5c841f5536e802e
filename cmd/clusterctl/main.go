package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/t77yq/cloudbench/internal/cluster"
	"github.com/t77yq/cloudbench/internal/config"
	"github.com/t77yq/cloudbench/internal/events"
	"github.com/t77yq/cloudbench/internal/executor"
	"github.com/t77yq/cloudbench/internal/storage"
)

// app holds everything built from the loaded configuration
type app struct {
	configFile string
	debug      bool

	cfg       *config.Config
	logger    *zap.Logger
	transport executor.Transport
	history   *storage.SQLiteExecutionHistory
	conn      *nats.Conn
	publisher *events.JetStreamPublisher
}

func (a *app) init(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(a.configFile)
	if err != nil {
		return err
	}
	a.cfg = cfg

	if a.debug || cfg.Debug {
		a.logger, err = zap.NewDevelopment()
	} else {
		a.logger, err = zap.NewProduction()
	}
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	return nil
}

func (a *app) openHistory() (*storage.SQLiteExecutionHistory, error) {
	if a.history != nil {
		return a.history, nil
	}
	history, err := storage.NewSQLiteExecutionHistory(a.logger, a.cfg.History.Path)
	if err != nil {
		return nil, err
	}
	a.history = history
	return history, nil
}

// connectNATS connects with retry and returns a publisher, or nil when no
// URL is configured
func (a *app) connectNATS() (*events.JetStreamPublisher, error) {
	if a.cfg.NATS.URL == "" {
		return nil, nil
	}
	if a.publisher != nil {
		return a.publisher, nil
	}

	logger := a.logger
	opts := []nats.Option{
		nats.Name(a.cfg.NATS.Name),
		nats.MaxReconnects(a.cfg.NATS.MaxReconnects),
		nats.ReconnectWait(a.cfg.NATS.ReconnectWait),
		nats.Timeout(a.cfg.NATS.ConnectTimeout),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	var (
		nc  *nats.Conn
		err error
	)
	const maxRetries = 3
	for i := 0; i < maxRetries; i++ {
		nc, err = nats.Connect(a.cfg.NATS.URL, opts...)
		if err == nil {
			break
		}
		logger.Warn("Failed to connect to NATS, retrying...",
			zap.Int("attempt", i+1),
			zap.Error(err))
		time.Sleep(time.Second * time.Duration(i+1))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	a.conn = nc

	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}
	publisher, err := events.NewJetStreamPublisher(js, logger)
	if err != nil {
		return nil, err
	}
	a.publisher = publisher
	return publisher, nil
}

// executor returns the configured transport wrapped in a history recorder.
// Commands still in flight when ctx is cancelled are logged.
func (a *app) executor(ctx context.Context) (executor.RemoteExecutor, error) {
	if a.transport == nil {
		transport, err := executor.NewTransport(a.cfg.Transport, a.logger)
		if err != nil {
			return nil, err
		}
		a.transport = transport
	}

	history, err := a.openHistory()
	if err != nil {
		return nil, err
	}
	recorder := executor.NewRecorder(a.transport, history, a.logger)
	logger := a.logger
	go func() {
		<-ctx.Done()
		for _, r := range recorder.Running() {
			logger.Warn("Interrupted while running",
				zap.String("node", r.Node),
				zap.String("command", r.Command),
				zap.Duration("elapsed", time.Since(r.StartedAt)))
		}
	}()
	return recorder, nil
}

func (a *app) hadoop(ctx context.Context) (*cluster.Hadoop, error) {
	exec, err := a.executor(ctx)
	if err != nil {
		return nil, err
	}

	var opts []cluster.Option
	publisher, err := a.connectNATS()
	if err != nil {
		return nil, err
	}
	if publisher != nil {
		opts = append(opts, cluster.WithPublisher(publisher))
	}

	return cluster.NewHadoop(exec, a.cfg.BuildTopology(), a.cfg.Cluster, a.logger, opts...)
}

func (a *app) close() {
	if a.transport != nil {
		if err := a.transport.Close(); err != nil {
			a.logger.Warn("Failed to close transport", zap.Error(err))
		}
	}
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			a.logger.Warn("Failed to close history", zap.Error(err))
		}
	}
	if a.conn != nil {
		a.conn.Close()
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

func main() {
	a := &app{}

	root := &cobra.Command{
		Use:               "clusterctl",
		Short:             "Configure and operate a Hadoop cluster over SSH",
		SilenceUsage:      true,
		PersistentPreRunE: a.init,
	}
	root.PersistentFlags().StringVarP(&a.configFile, "config", "c", "", "config file (default ./config/config.yaml)")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "enable development logging")

	root.AddCommand(
		a.setupCmd(),
		a.lifecycleCmd("start-dfs", "Start the storage daemons", (*cluster.Hadoop).StartDFS),
		a.lifecycleCmd("stop-dfs", "Stop the storage daemons", (*cluster.Hadoop).StopDFS),
		a.lifecycleCmd("restart-dfs", "Restart the storage daemons", (*cluster.Hadoop).RestartDFS),
		a.lifecycleCmd("start-yarn", "Start the compute daemons", (*cluster.Hadoop).StartYarn),
		a.lifecycleCmd("stop-yarn", "Stop the compute daemons", (*cluster.Hadoop).StopYarn),
		a.lifecycleCmd("restart-yarn", "Restart the compute daemons", (*cluster.Hadoop).RestartYarn),
		a.lifecycleCmd("format-hdfs", "Wipe storage directories and format the namenode", (*cluster.Hadoop).FormatHDFS),
		a.execCmd(),
		a.renderCmd(),
		a.historyCmd(),
		a.probeCmd(),
		a.eventsCmd(),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := root.ExecuteContext(ctx)
	cancel()
	a.close()
	if err != nil {
		os.Exit(1)
	}
}
