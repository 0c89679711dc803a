package cmd

import (
	"fmt"
	"io"
	"os/user"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/mapswitch/internal/orchestrator"
	"github.com/Iron-Ham/mapswitch/internal/session"
	"github.com/Iron-Ham/mapswitch/internal/tui/styles"
)

var voteCmd = &cobra.Command{
	Use:   "vote",
	Short: "Start, show or cancel a vote",
	Long: `Players vote with 'mapswitch choose <option>'. A tie starts an overtime
round between the tied options; the vote ends when one option leads.`,
}

var voteSwitchCmd = &cobra.Command{
	Use:   "switch",
	Short: "Vote on switching to another map",
	Long: `Start a vote whose options are every slot except the current one, plus
"keep" to stay on the current map.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return startVote(cmd, orchestrator.VoteRequest{Kind: orchestrator.VoteSwitch})
	},
}

var voteDelayCmd = &cobra.Command{
	Use:   "delay [minutes]",
	Short: "Vote on delaying the next automatic switch",
	Long: `Start a vote between "delay" and "keep". If "delay" wins, the next
automatic switch is pushed back by the given minutes (default
rolling.default_delay_minutes).`,
	Args: cobra.MaximumNArgs(1),
	RunE: runVoteDelay,
}

var voteShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the running vote",
	Args:  cobra.NoArgs,
	RunE:  runVoteShow,
}

var voteCancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Cancel the running vote",
	Args:  cobra.NoArgs,
	RunE:  runVoteCancel,
}

var chooseCmd = &cobra.Command{
	Use:   "choose <option>",
	Short: "Cast a ballot in the running vote",
	Long: `Cast a ballot for an option of the running vote. Voting again replaces
the earlier ballot of the same voter.`,
	Args: cobra.ExactArgs(1),
	RunE: runChoose,
}

var (
	voteInitiator string
	chooseVoter   string
)

func init() {
	rootCmd.AddCommand(voteCmd)
	rootCmd.AddCommand(chooseCmd)
	voteCmd.AddCommand(voteSwitchCmd)
	voteCmd.AddCommand(voteDelayCmd)
	voteCmd.AddCommand(voteShowCmd)
	voteCmd.AddCommand(voteCancelCmd)

	voteCmd.PersistentFlags().StringVar(&voteInitiator, "by", "", "Name announced as the vote's initiator (default: current user)")
	chooseCmd.Flags().StringVar(&chooseVoter, "voter", "", "Voter name (default: current user)")
}

func runVoteDelay(cmd *cobra.Command, args []string) error {
	req := orchestrator.VoteRequest{Kind: orchestrator.VoteDelay}
	if len(args) == 1 {
		minutes, err := strconv.Atoi(args[0])
		if err != nil || minutes < 0 {
			return fmt.Errorf("%w: %q is not a number of minutes", session.ErrInvalidDelay, args[0])
		}
		req.Minutes = minutes
	}
	return startVote(cmd, req)
}

func startVote(cmd *cobra.Command, req orchestrator.VoteRequest) error {
	setupOutput(cmd)
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	req.Initiator = voteInitiator
	if req.Initiator == "" {
		req.Initiator = currentUser()
	}
	state, err := newClient(cfg).StartVote(cmd.Context(), req)
	if err != nil {
		return err
	}
	printVote(cmd.OutOrStdout(), state)
	return nil
}

func runVoteShow(cmd *cobra.Command, args []string) error {
	setupOutput(cmd)
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	state, err := newClient(cfg).CurrentVote(cmd.Context())
	if err != nil {
		return err
	}
	printVote(cmd.OutOrStdout(), state)
	return nil
}

func runVoteCancel(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := newClient(cfg).CancelVote(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Vote cancelled")
	return nil
}

func runChoose(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	voter := chooseVoter
	if voter == "" {
		voter = currentUser()
	}
	opt, err := newClient(cfg).Cast(cmd.Context(), voter, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s voted for %s\n", voter, opt.Label)
	return nil
}

func printVote(w io.Writer, state session.VoteState) {
	fmt.Fprintln(w, styles.Title.Render("Vote: "+state.Target))
	left := time.Until(state.Deadline).Round(time.Second)
	if left < 0 {
		left = 0
	}
	fmt.Fprintf(w, "Started by %s, %d ballot(s), %s left\n", state.Initiator, state.Ballots, left)
	if state.Overtime > 0 {
		fmt.Fprintf(w, "Overtime round %d\n", state.Overtime)
	}
	for _, t := range state.Options {
		if !t.Active {
			continue
		}
		name := styles.OptionColor(t.Option.Color).Render(t.Option.Name)
		fmt.Fprintf(w, "  %-3d %s  %s\n", t.Votes, name, t.Option.Label)
	}
	fmt.Fprintln(w, styles.Muted.Render("Vote with: mapswitch choose <option>"))
}

// currentUser names the person running the command.
func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "console"
}
