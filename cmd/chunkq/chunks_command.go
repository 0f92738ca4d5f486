package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"chunkq/internal/api"
	"chunkq/internal/queue"
)

func newChunksCommand(ctx *commandContext) *cobra.Command {
	chunksCmd := &cobra.Command{
		Use:   "chunks",
		Short: "Inspect compiled chunks",
	}
	chunksCmd.AddCommand(newChunksShowCommand(ctx))
	chunksCmd.AddCommand(newChunksListCommand(ctx))
	return chunksCmd
}

func newChunksShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "show <index> <key>",
		Short: "Show the latest compiled version of a chunk",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := ctx.validateIndex(args[0])
			if err != nil {
				return err
			}
			key := args[1]
			return ctx.withStore(func(store *queue.Store) error {
				chunk, ok, err := store.GetChunk(commandCtx(cmd), index, key)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("chunk %s/%s has not been compiled", index, key)
				}
				if jsonOut {
					return writeJSON(cmd, api.ChunkResponse{Chunk: api.FromChunk(chunk)})
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Index:   %s\n", chunk.Index)
				fmt.Fprintf(out, "Key:     %s\n", chunk.ChunkKey)
				fmt.Fprintf(out, "Version: %d\n", chunk.Version)
				fmt.Fprintf(out, "Updated: %s\n", chunk.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
				fmt.Fprintln(out, "Data:")
				fmt.Fprintln(out, formatChunkData(chunk.Data))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}

func newChunksListCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list <index>",
		Short: "List compiled chunks of an index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := ctx.validateIndex(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *queue.Store) error {
				chunks, err := store.ListChunks(commandCtx(cmd), index, limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(chunks) == 0 {
					fmt.Fprintln(out, "No compiled chunks")
					return nil
				}
				rows := make([][]string, len(chunks))
				for i, c := range chunks {
					rows[i] = []string{c.ChunkKey, strconv.FormatInt(c.Version, 10), c.UpdatedAt.Local().Format("2006-01-02 15:04:05")}
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Key", "Version", "Updated"},
					rows,
					[]columnAlignment{alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 100, "Maximum chunks to list (0 for all)")
	return cmd
}

func formatChunkData(data []byte) string {
	if len(data) == 0 {
		return "(empty)"
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err == nil {
		return buf.String()
	}
	return fmt.Sprintf("%d bytes (binary)", len(data))
}
