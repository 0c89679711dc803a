package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/mapswitch/internal/history"
	"github.com/Iron-Ham/mapswitch/internal/tui/styles"
	"github.com/Iron-Ham/mapswitch/internal/tui/watch"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current map, running sessions and the next switch",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent swaps and votes",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

var (
	statusWatch    bool
	statusInterval time.Duration
	historyLimit   int
)

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
	statusCmd.Flags().BoolVarP(&statusWatch, "watch", "w", false, "Refresh the status live until q is pressed")
	statusCmd.Flags().DurationVar(&statusInterval, "interval", watch.DefaultInterval, "Refresh interval with --watch")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", history.DefaultLimit, "Number of entries to show")
}

func runStatus(cmd *cobra.Command, args []string) error {
	setupOutput(cmd)
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client := newClient(cfg)

	if statusWatch {
		if !isTerminal(cmd.OutOrStdout()) {
			return fmt.Errorf("--watch needs an interactive terminal")
		}
		return watch.Run(client, statusInterval)
	}

	st, err := client.Status(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), watch.Render(st, time.Now(), 0))
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	setupOutput(cmd)
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	entries, err := newClient(cfg).History(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(out, "No swaps or votes recorded yet.")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(out, "%s  %-5s %-12s %s\n",
			styles.Muted.Render(e.At.Local().Format("2006-01-02 15:04:05")),
			e.Kind,
			outcomeStyle(e.Outcome),
			describeEntry(e))
	}
	return nil
}

func outcomeStyle(outcome string) string {
	switch outcome {
	case history.OutcomeCommitted, history.OutcomeResolved:
		return styles.Secondary.Render(fmt.Sprintf("%-12s", outcome))
	case history.OutcomeRolledBack:
		return styles.Error.Render(fmt.Sprintf("%-12s", outcome))
	default:
		return styles.Warning.Render(fmt.Sprintf("%-12s", outcome))
	}
}

func describeEntry(e history.Entry) string {
	desc := e.Subject
	if e.Trigger != "" {
		desc += " (" + e.Trigger + ")"
	}
	if e.Detail != "" {
		desc += ": " + e.Detail
	}
	if e.Duration > 0 {
		desc += styles.Muted.Render(" in " + e.Duration.Round(time.Second).String())
	}
	return desc
}
