package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/mapswitch/internal/catalog"
	"github.com/Iron-Ham/mapswitch/internal/session"
	"github.com/Iron-Ham/mapswitch/internal/tui/styles"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List saved slots, least recently used first",
	Args:    cobra.NoArgs,
	RunE:    runList,
}

var infoCmd = &cobra.Command{
	Use:   "info <slot>",
	Short: "Show a slot's metadata and size on disk",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

var commentCmd = &cobra.Command{
	Use:   "comment <slot> <text>",
	Short: "Set a slot's comment",
	Long: `Set the comment shown next to a slot in 'mapswitch list'.
An empty text clears the comment.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runComment,
}

var loadCmd = &cobra.Command{
	Use:   "load <slot>",
	Short: "Swap the server to a slot now",
	Long: `Swap the server's world for the given slot.

The daemon announces a countdown, stops the server, installs the slot and
starts the server again. If another operation is in progress the load fails,
unless --wait is given, in which case it queues until the operation ends.`,
	Args: cobra.ExactArgs(1),
	RunE: runLoad,
}

// maxCommentWidth bounds comments in the slot list; info shows them whole.
const maxCommentWidth = 60

var (
	listReverse bool
	loadWait    bool
)

func init() {
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(commentCmd)
	rootCmd.AddCommand(loadCmd)
	listCmd.Flags().BoolVarP(&listReverse, "reverse", "r", false, "List most recently used first")
	loadCmd.Flags().BoolVarP(&loadWait, "wait", "w", false, "Wait for a running operation instead of failing")
}

func runList(cmd *cobra.Command, args []string) error {
	setupOutput(cmd)
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cat, err := openCatalog(cfg)
	if err != nil {
		return err
	}
	slots, err := cat.List(listReverse)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(slots) == 0 {
		fmt.Fprintf(out, "No slots in %s. Copy a world there with an %s to add one.\n", cat.Root(), catalog.InfoFileName)
		return nil
	}

	current := cat.Current()
	fmt.Fprintln(out, styles.Title.Render(fmt.Sprintf("Slots (%d)", len(slots))))
	for i, s := range slots {
		name := s.Name
		if name == current {
			name = styles.SuccessMsg.Render(name + " *")
		}
		line := fmt.Sprintf("%3d. %-24s %s", i+1, name, styles.Muted.Render(formatLastUsed(s.LastUsed)))
		if s.Comment != "" {
			line += "  " + styles.Truncate(s.Comment, maxCommentWidth)
		}
		fmt.Fprintln(out, line)
	}
	return nil
}

func runInfo(cmd *cobra.Command, args []string) error {
	setupOutput(cmd)
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cat, err := openCatalog(cfg)
	if err != nil {
		return err
	}
	slot, err := cat.Get(args[0])
	if err != nil {
		return err
	}
	size, err := cat.Size(slot.Name)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, styles.Title.Render(slot.Name))
	fmt.Fprintln(out, styles.Label.Render("Last used")+formatLastUsed(slot.LastUsed))
	fmt.Fprintln(out, styles.Label.Render("Size")+catalog.FormatSize(size))
	comment := slot.Comment
	if comment == "" {
		comment = styles.Muted.Render("(none)")
	}
	fmt.Fprintln(out, styles.Label.Render("Comment")+comment)
	fmt.Fprintln(out, styles.Label.Render("Installed")+fmt.Sprintf("%v", cat.Current() == slot.Name))
	fmt.Fprintln(out, styles.Label.Render("Path")+cat.SlotDir(slot.Name))
	return nil
}

func runComment(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cat, err := openCatalog(cfg)
	if err != nil {
		return err
	}
	text := strings.Join(args[1:], " ")
	if err := cat.SetComment(args[0], text); err != nil {
		return err
	}
	if text == "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Cleared the comment of %s\n", args[0])
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Updated the comment of %s\n", args[0])
	}
	return nil
}

func runLoad(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client := newClient(cfg)
	if loadWait {
		fmt.Fprintf(cmd.OutOrStdout(), "Waiting to load %s...\n", args[0])
	}
	if err := client.Load(cmd.Context(), args[0], loadWait); err != nil {
		if errors.Is(err, session.ErrGateBusy) && !loadWait {
			return fmt.Errorf("%w (use --wait to queue)", err)
		}
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Loaded %s\n", args[0])
	return nil
}

// formatLastUsed renders a slot's last use; zero means never.
func formatLastUsed(t time.Time) string {
	if t.IsZero() {
		return "never used"
	}
	return "last used " + t.Local().Format("2006-01-02 15:04")
}
