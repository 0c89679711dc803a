package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/mapswitch/internal/session"
)

var rollingCmd = &cobra.Command{
	Use:   "rolling",
	Short: "Control automatic map rolling",
}

var rollingStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start (or restart) automatic rolling",
	Args:  cobra.NoArgs,
	RunE:  runRollingStart,
}

var rollingStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop automatic rolling",
	Args:  cobra.NoArgs,
	RunE:  runRollingStop,
}

var rollingDelayCmd = &cobra.Command{
	Use:   "delay [minutes]",
	Short: "Delay the next automatic switch without a vote",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRollingDelay,
}

func init() {
	rootCmd.AddCommand(rollingCmd)
	rollingCmd.AddCommand(rollingStartCmd)
	rollingCmd.AddCommand(rollingStopCmd)
	rollingCmd.AddCommand(rollingDelayCmd)
}

func runRollingStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	next, err := newClient(cfg).StartRolling(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Automatic rolling started, next map at %s\n", next.Local().Format("15:04"))
	return nil
}

func runRollingStop(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := newClient(cfg).StopRolling(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Automatic rolling stopped")
	return nil
}

func runRollingDelay(cmd *cobra.Command, args []string) error {
	minutes := 0
	if len(args) == 1 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 0 {
			return fmt.Errorf("%w: %q is not a number of minutes", session.ErrInvalidDelay, args[0])
		}
		minutes = n
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	next, err := newClient(cfg).DelayRolling(cmd.Context(), minutes)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Next map delayed to %s (in %s)\n",
		next.Local().Format("15:04"), time.Until(next).Round(time.Second))
	return nil
}
