package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"chunkq/internal/api"
	"chunkq/internal/daemonctl"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, processor and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			snap, err := daemonctl.BuildStatusSnapshot(commandCtx(cmd), ctx.client(), cfg)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, snap)
			}
			renderStatus(cmd.OutOrStdout(), snap)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}

func renderStatus(out io.Writer, snap daemonctl.Snapshot) {
	if snap.Reachable {
		fmt.Fprintf(out, "Daemon:   running (pid %d)\n", snap.Daemon.PID)
	} else {
		fmt.Fprintln(out, "Daemon:   not running")
	}
	fmt.Fprintf(out, "Database: %s\n", snap.Daemon.DatabasePath)
	fmt.Fprintf(out, "Lock:     %s\n", snap.Daemon.LockFilePath)
	if snap.Reachable {
		push := snap.Daemon.Push
		fmt.Fprintf(out, "Push:     enabled=%s subscribers=%d delivered=%d dropped=%d\n",
			yesNo(push.Enabled), push.Subscribers, push.Delivered, push.Dropped)
	}

	if len(snap.Daemon.Processors) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, renderProcessorTable(snap.Daemon.Processors))
	}
	if len(snap.Queue) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, renderStatsTable(snap.Queue))
	}
	if len(snap.Checks) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Checks:")
		for _, c := range snap.Checks {
			mark := "ok"
			if !c.Passed {
				mark = "FAIL"
			}
			fmt.Fprintf(out, "  [%s] %s: %s\n", mark, c.Name, c.Detail)
		}
	}
}

func renderProcessorTable(processors []api.ProcessorStatus) string {
	rows := make([][]string, len(processors))
	for i, p := range processors {
		lastErr := "-"
		if p.LastError != "" {
			lastErr = p.LastErrorKind + ": " + truncate(p.LastError, 60)
		}
		rows[i] = []string{
			p.Index,
			yesNo(p.Running),
			p.State,
			strconv.Itoa(p.QueueSize),
			strconv.FormatInt(p.ProcessedTotal, 10),
			strconv.FormatInt(p.ErrorsTotal, 10),
			strconv.FormatInt(p.Cursor, 10),
			lastErr,
		}
	}
	return renderTable(
		[]string{"Index", "Running", "State", "Queue", "Processed", "Errors", "Cursor", "Last error"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft},
	)
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}
