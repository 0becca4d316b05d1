package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"scorch/internal/history"
)

func newHistoryCommand(cctx *commandContext) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect the job ledger",
	}

	historyCmd.AddCommand(newHistoryListCommand(cctx))
	historyCmd.AddCommand(newHistoryClearCommand(cctx))

	return historyCmd
}

func newHistoryListCommand(cctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List finished jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := history.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close() //nolint:errcheck

			records, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println("history is empty")
				return nil
			}

			rows := make([][]string, 0, len(records))
			for _, r := range records {
				rows = append(rows, []string{
					r.FinishedAt.Local().Format("2006-01-02 15:04"),
					r.Mode,
					dash(r.Label),
					formatBytes(r.TotalBytes),
					r.Duration().Round(time.Second).String(),
					r.Outcome,
					dash(r.Message),
				})
			}
			fmt.Println(renderTable(
				[]string{"Finished", "Mode", "Label", "Size", "Duration", "Outcome", "Message"},
				rows, 3, 4))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum records to show (0 shows all)")
	return cmd
}

func newHistoryClearCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete all history records",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := history.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close() //nolint:errcheck

			removed, err := store.Clear(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("removed %d records\n", removed)
			return nil
		},
	}
}
