package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/ganymede/pkg/cli"
	"mercator-hq/ganymede/pkg/quota/history"
)

var historyFlags struct {
	limit  int
	totals bool
	output string
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent usage history",
	Long: `Show recent usage history entries from the journal, newest first,
or per-model aggregate totals.

Examples:
  # Last 20 usage events
  ganymede history

  # Last 100 usage events as JSON
  ganymede history --limit 100 --output json

  # Per-model totals
  ganymede history --totals`,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&historyFlags.limit, "limit", "n", 20, "maximum entries to show")
	historyCmd.Flags().BoolVar(&historyFlags.totals, "totals", false, "show per-model totals instead of entries")
	historyCmd.Flags().StringVarP(&historyFlags.output, "output", "o", "text", "output format (text, json)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(historyFlags.output)
	if err != nil {
		return cli.NewCommandError("history", err)
	}

	cfg, err := loadConfiguration()
	if err != nil {
		return cli.NewCommandError("history", err)
	}
	if !cfg.History.Enabled {
		return cli.NewCommandError("history", fmt.Errorf("usage history is disabled in configuration"))
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return cli.NewCommandError("history", err)
	}

	journal, err := history.Open(cfg.History.Path, logger)
	if err != nil {
		return cli.NewCommandError("history", err)
	}
	defer journal.Close()

	ctx := cmd.Context()

	if historyFlags.totals {
		totals, err := journal.TotalsByModel(ctx)
		if err != nil {
			return cli.NewCommandError("history", err)
		}
		if format == cli.FormatJSON {
			return cli.WriteJSON(os.Stdout, totals)
		}
		rows := [][]string{{"MODEL", "TOKENS", "REQUESTS", "ENTRIES"}}
		for _, tot := range totals {
			rows = append(rows, []string{
				tot.ModelID,
				fmt.Sprintf("%d", tot.Tokens),
				fmt.Sprintf("%d", tot.Requests),
				fmt.Sprintf("%d", tot.Entries),
			})
		}
		return cli.Table(os.Stdout, rows)
	}

	entries, err := journal.Recent(ctx, historyFlags.limit)
	if err != nil {
		return cli.NewCommandError("history", err)
	}
	if format == cli.FormatJSON {
		return cli.WriteJSON(os.Stdout, entries)
	}

	rows := [][]string{{"TIMESTAMP", "MODEL", "TOKENS", "REQUESTS"}}
	for _, e := range entries {
		rows = append(rows, []string{
			e.Timestamp.Format(time.RFC3339),
			e.ModelID,
			fmt.Sprintf("%d", e.TotalTokens),
			fmt.Sprintf("%d", e.Requests),
		})
	}
	return cli.Table(os.Stdout, rows)
}
