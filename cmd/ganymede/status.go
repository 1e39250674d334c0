package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/ganymede/pkg/cli"
	"mercator-hq/ganymede/pkg/quota"
)

var statusFlags struct {
	output string
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current quota snapshot",
	Long: `Show the current quota snapshot: per-dimension consumption, ceilings,
reset times, and whether the quota is over limit.

Examples:
  # Human-readable status
  ganymede status

  # Machine-readable status
  ganymede status --output json`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVarP(&statusFlags.output, "output", "o", "text", "output format (text, json)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(statusFlags.output)
	if err != nil {
		return cli.NewCommandError("status", err)
	}

	rt, cleanup, err := buildRuntime(cmd.Context(), false)
	if err != nil {
		return cli.NewCommandError("status", err)
	}
	defer cleanup()

	snap := rt.tracker.Snapshot()

	if format == cli.FormatJSON {
		return cli.WriteJSON(os.Stdout, snap)
	}
	return printSnapshot(snap)
}

func printSnapshot(snap quota.Snapshot) error {
	fmt.Printf("Model: %s\n", snap.ModelID)
	if snap.OverLimit {
		fmt.Printf("State: OVER LIMIT (capacity in ~%ds)\n", snap.SecondsUntilCapacity)
	} else {
		fmt.Println("State: ok")
	}
	fmt.Println()

	rows := [][]string{
		{"DIMENSION", "USED", "LIMIT", "USAGE"},
		{
			"requests/minute",
			fmt.Sprintf("%d", snap.RequestsThisMinute),
			fmt.Sprintf("%d", snap.Limits.RequestsPerMinute),
			fmt.Sprintf("%.1f%%", snap.Percent.RequestsPerMinute*100),
		},
		{
			"requests/day",
			fmt.Sprintf("%d", snap.RequestsToday),
			fmt.Sprintf("%d", snap.Limits.RequestsPerDay),
			fmt.Sprintf("%.1f%%", snap.Percent.RequestsPerDay*100),
		},
		{
			"tokens/minute",
			fmt.Sprintf("%d", snap.TokensThisMinute),
			fmt.Sprintf("%d", snap.Limits.TokensPerMinute),
			fmt.Sprintf("%.1f%%", snap.Percent.TokensPerMinute*100),
		},
		{
			"tokens/day",
			fmt.Sprintf("%d", snap.TokensToday),
			fmt.Sprintf("%d", snap.Limits.TokensPerDay),
			fmt.Sprintf("%.1f%%", snap.Percent.TokensPerDay*100),
		},
	}
	if err := cli.Table(os.Stdout, rows); err != nil {
		return err
	}

	fmt.Println()
	fmt.Printf("Minute window resets: %s\n", snap.MinuteResetAt.Format(time.RFC3339))
	fmt.Printf("Day window resets:    %s\n", snap.DayResetAt.Format(time.RFC3339))
	return nil
}
