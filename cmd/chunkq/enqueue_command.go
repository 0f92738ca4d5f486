package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"chunkq/internal/api"
	"chunkq/internal/daemonctl"
	"chunkq/internal/queue"
)

func newEnqueueCommand(ctx *commandContext) *cobra.Command {
	var fromStdin bool
	var direct bool
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "enqueue <index> [key...]",
		Short: "Record that chunk keys changed and need recompiling",
		Long: "Appends one queue row per key. Keys are sent to the running daemon when it is\n" +
			"reachable and written to the queue database directly otherwise.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := ctx.validateIndex(args[0])
			if err != nil {
				return err
			}
			keys := append([]string(nil), args[1:]...)
			if fromStdin {
				more, err := readKeys(cmd.InOrStdin())
				if err != nil {
					return err
				}
				keys = append(keys, more...)
			}
			if len(keys) == 0 {
				return errors.New("no keys given")
			}

			rows, via, err := enqueue(cmd, ctx, index, keys, direct)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, api.EnqueueResponse{Rows: rows})
			}
			out := cmd.OutOrStdout()
			if len(rows) == 0 {
				fmt.Fprintln(out, "Nothing enqueued")
				return nil
			}
			fmt.Fprintf(out, "Enqueued %d row(s) for %s via %s (ids %d-%d)\n",
				len(rows), index, via, rows[0].ID, rows[len(rows)-1].ID)
			return nil
		},
	}

	cmd.Flags().BoolVar(&fromStdin, "stdin", false, "Read additional keys from stdin, one per line")
	cmd.Flags().BoolVar(&direct, "direct", false, "Write to the queue database without contacting the daemon")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}

func enqueue(cmd *cobra.Command, ctx *commandContext, index string, keys []string, direct bool) ([]api.QueueRow, string, error) {
	if client := ctx.client(); client != nil && !direct {
		rows, err := client.Enqueue(commandCtx(cmd), index, keys)
		if err == nil {
			return rows, "daemon", nil
		}
		if !errors.Is(err, daemonctl.ErrUnavailable) {
			return nil, "", err
		}
	}

	var rows []api.QueueRow
	err := ctx.withStore(func(store *queue.Store) error {
		inserted, err := store.Enqueue(commandCtx(cmd), index, keys...)
		if err != nil {
			return err
		}
		rows = api.FromRows(inserted)
		return nil
	})
	return rows, "database", err
}

func readKeys(r io.Reader) ([]string, error) {
	var keys []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		keys = append(keys, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read keys: %w", err)
	}
	return keys, nil
}
