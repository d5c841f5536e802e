package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/t77yq/cloudbench/internal/cluster"
	"github.com/t77yq/cloudbench/internal/dispatch"
	"github.com/t77yq/cloudbench/internal/events"
	"github.com/t77yq/cloudbench/internal/model"
	"github.com/t77yq/cloudbench/internal/monitor"
	"github.com/t77yq/cloudbench/internal/render"
	"github.com/t77yq/cloudbench/internal/storage"
)

func (a *app) setupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Exchange keys and write every configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := a.hadoop(cmd.Context())
			if err != nil {
				return err
			}
			if err := h.Setup(cmd.Context()); err != nil {
				printFailures(cmd, err)
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), color.GreenString("cluster configured"))
			return nil
		},
	}
}

func (a *app) lifecycleCmd(use, short string, op func(*cluster.Hadoop, context.Context) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := a.hadoop(cmd.Context())
			if err != nil {
				return err
			}
			if err := op(h, cmd.Context()); err != nil {
				printFailures(cmd, err)
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), color.GreenString("%s: ok", use))
			return nil
		},
	}
}

func (a *app) execCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exec <command>",
		Short: "Run a shell command on the coordinator as the service user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := a.hadoop(cmd.Context())
			if err != nil {
				return err
			}
			out, err := h.Execute(cmd.Context(), args[0])
			fmt.Fprint(cmd.OutOrStdout(), out)
			return err
		},
	}
}

func (a *app) renderCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "render <kind>",
		Short:     "Print a configuration document for the configured topology",
		Args:      cobra.ExactArgs(1),
		ValidArgs: kindNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := render.NewRenderer(a.cfg.Cluster).Render(render.DocumentKind(args[0]), a.cfg.BuildTopology())
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), doc.Content)
			return nil
		},
	}
}

func kindNames() []string {
	names := make([]string, 0, len(render.Kinds))
	for _, k := range render.Kinds {
		names = append(names, string(k))
	}
	return names
}

func (a *app) historyCmd() *cobra.Command {
	var (
		filter storage.ExecutionFilter
		status string
		offset int
		limit  int
		prune  bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded remote executions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			history, err := a.openHistory()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			if prune {
				cutoff := time.Now().Add(-a.cfg.History.Retention)
				if err := history.DeleteBefore(ctx, cutoff); err != nil {
					return err
				}
				a.logger.Info("Pruned execution history", zap.Time("before", cutoff))
			}

			filter.Status = model.ExecutionStatus(status)
			records, err := history.List(ctx, filter, offset, limit)
			if err != nil {
				return err
			}
			total, err := history.Count(ctx, filter)
			if err != nil {
				return err
			}

			ta := newTable(cmd)
			ta.AppendHeader(table.Row{"STARTED", "NODE", "STATUS", "DURATION", "COMMAND"})
			for _, r := range records {
				ta.AppendRow(table.Row{
					r.StartedAt.Format(time.RFC3339), r.Node, colorStatus(r.Status), r.Duration.Round(time.Millisecond), r.Command,
				})
			}
			ta.Render()
			fmt.Fprintf(cmd.OutOrStdout(), "%d of %d\n", len(records), total)
			return nil
		},
	}
	cmd.Flags().StringVar(&filter.Node, "node", "", "only show executions on this node address")
	cmd.Flags().StringVar(&status, "status", "", "only show executions with this status (running, succeeded, failed)")
	cmd.Flags().IntVar(&offset, "offset", 0, "skip this many records")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of records")
	cmd.Flags().BoolVar(&prune, "prune", false, "delete records older than the configured retention first")
	return cmd
}

func (a *app) probeCmd() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Check that every node accepts commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			exec, err := a.executor(cmd.Context())
			if err != nil {
				return err
			}
			publisher, err := a.connectNATS()
			if err != nil {
				return err
			}
			var sink events.Publisher
			if publisher != nil {
				sink = publisher
			}
			prober := monitor.NewProber(exec, a.cfg.BuildTopology(), sink, a.logger)

			if !watch {
				report, err := prober.Probe(cmd.Context())
				printReport(cmd, report)
				return err
			}

			if err := prober.Start(cmd.Context(), a.cfg.Probe.Schedule); err != nil {
				return err
			}
			<-cmd.Context().Done()
			prober.Stop()
			return nil
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep probing on the configured schedule until interrupted")
	return cmd
}

func (a *app) eventsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "events",
		Short: "Stream cluster lifecycle events, oldest first, until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			publisher, err := a.connectNATS()
			if err != nil {
				return err
			}
			if publisher == nil {
				return errors.New("nats.url is not configured")
			}

			out := cmd.OutOrStdout()
			err = publisher.Subscribe(cmd.Context(), func(e model.Event) {
				status := color.GreenString("ok")
				if e.Failed() {
					status = color.RedString("failed: %s", e.Error)
				}
				fmt.Fprintf(out, "%s %-12s %-22s %s\n",
					e.FinishedAt.Format(time.RFC3339), e.Phase, e.Status.State, status)
			})
			if err != nil {
				return err
			}

			<-cmd.Context().Done()
			return nil
		},
	}
}

func printReport(cmd *cobra.Command, report *monitor.ProbeReport) {
	ta := newTable(cmd)
	ta.AppendHeader(table.Row{"NODE", "REACHABLE", "LATENCY", "ERROR"})
	for _, n := range report.Nodes {
		reachable := color.GreenString("yes")
		if !n.Reachable {
			reachable = color.RedString("no")
		}
		ta.AppendRow(table.Row{n.Node, reachable, n.Latency.Round(time.Millisecond), n.Error})
	}
	ta.Render()
	fmt.Fprintf(cmd.OutOrStdout(), "controller cpu %.1f%% mem %.1f%%\n", report.ControllerCPU, report.ControllerMemory)
}

// printFailures lists each node failure of a fan-out phase on its own line
func printFailures(cmd *cobra.Command, err error) {
	for _, f := range dispatch.Failures(err) {
		fmt.Fprintln(cmd.ErrOrStderr(), color.RedString("  %v", f))
	}
}

func colorStatus(s model.ExecutionStatus) string {
	switch s {
	case model.ExecutionStatusSucceeded:
		return color.GreenString(string(s))
	case model.ExecutionStatusFailed:
		return color.RedString(string(s))
	default:
		return color.YellowString(string(s))
	}
}

func newTable(cmd *cobra.Command) table.Writer {
	ta := table.NewWriter()
	ta.SetOutputMirror(cmd.OutOrStdout())
	options := table.OptionsDefault
	options.DrawBorder = false
	options.SeparateColumns = false
	options.SeparateRows = false
	options.SeparateHeader = false
	ta.Style().Options = options
	return ta
}
