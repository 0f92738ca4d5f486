package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"chunkq/internal/api"
	"chunkq/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect pending queue rows",
	}
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueStatsCommand(ctx))
	queueCmd.AddCommand(newQueueArtifactsCommand(ctx))
	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var index string
	var limit int
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending rows in id order",
		RunE: func(cmd *cobra.Command, args []string) error {
			if index != "" {
				validated, err := ctx.validateIndex(index)
				if err != nil {
					return err
				}
				index = validated
			}
			return ctx.withStore(func(store *queue.Store) error {
				rows, err := store.List(commandCtx(cmd), index, limit)
				if err != nil {
					return err
				}
				dtos := api.FromRows(rows)
				if jsonOut {
					return writeJSON(cmd, api.QueueListResponse{Rows: dtos})
				}
				out := cmd.OutOrStdout()
				if len(dtos) == 0 {
					fmt.Fprintln(out, "Queue is empty")
					return nil
				}
				table := make([][]string, len(dtos))
				for i, row := range dtos {
					table[i] = []string{strconv.FormatInt(row.ID, 10), row.Index, row.ChunkKey, row.EnqueuedAt}
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Index", "Key", "Enqueued"},
					table,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&index, "index", "i", "", "Only list rows of this index")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum rows to list (0 for all)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}

func newQueueStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show per-index queue, chunk and artifact counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *queue.Store) error {
				stats, err := store.Stats(commandCtx(cmd))
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(stats) == 0 {
					fmt.Fprintln(out, "No indexes have data yet")
					return nil
				}
				fmt.Fprintln(out, renderStatsTable(stats))
				return nil
			})
		},
	}
}

func renderStatsTable(stats []queue.IndexStats) string {
	rows := make([][]string, len(stats))
	for i, st := range stats {
		oldest := "-"
		if !st.OldestQueued.IsZero() {
			oldest = st.OldestQueued.Local().Format("2006-01-02 15:04:05")
		}
		rows[i] = []string{
			st.Index,
			strconv.Itoa(st.PendingRows),
			oldest,
			strconv.Itoa(st.Chunks),
			strconv.Itoa(st.Artifacts),
		}
	}
	return renderTable(
		[]string{"Index", "Pending", "Oldest", "Chunks", "Artifacts"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignLeft, alignRight, alignRight},
	)
}

func newQueueArtifactsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "artifacts <index>",
		Short: "List recorded block payloads whose rows are still queued",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := ctx.validateIndex(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *queue.Store) error {
				artifacts, err := store.ListArtifacts(commandCtx(cmd), index)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(artifacts) == 0 {
					fmt.Fprintln(out, "No block artifacts")
					return nil
				}
				rows := make([][]string, len(artifacts))
				for i, a := range artifacts {
					rows[i] = []string{
						a.ID,
						strconv.Itoa(a.ItemCount),
						fmt.Sprintf("%d-%d", a.MinRowID, a.MaxRowID),
						strconv.Itoa(len(a.Payload)),
						a.CreatedAt.Local().Format("2006-01-02 15:04:05"),
					}
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Block", "Rows", "Row IDs", "Bytes", "Created"},
					rows,
					[]columnAlignment{alignLeft, alignRight, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
}
