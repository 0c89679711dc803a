package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Iron-Ham/mapswitch/internal/api"
	"github.com/Iron-Ham/mapswitch/internal/catalog"
	"github.com/Iron-Ham/mapswitch/internal/config"
	"github.com/Iron-Ham/mapswitch/internal/pidlock"
)

// loadConfig reads and validates the configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		var verrs config.ValidationErrors
		if errors.As(err, &verrs) {
			return nil, fmt.Errorf("invalid configuration (see 'mapswitch config show'):\n%w", err)
		}
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// openCatalog opens the slot directory for commands that read it directly.
func openCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	return catalog.New(catalog.Options{
		Root:             cfg.Slots.Path,
		RandomPercentage: cfg.Slots.RandomPercentage,
		MaxRandom:        cfg.Slots.MaxRandom,
	})
}

// newClient connects to the daemon. When a daemon lock in the slot
// directory records a listen address, that address wins over the config.
func newClient(cfg *config.Config) *api.Client {
	addr := cfg.API.Listen
	if lock, ok := pidlock.Holder(cfg.Slots.Path); ok && lock.Listen != "" {
		addr = lock.Listen
	}
	return api.NewClient(addr, nil)
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// setupOutput disables styling when the command's output is not a terminal.
func setupOutput(cmd *cobra.Command) {
	if !isTerminal(cmd.OutOrStdout()) {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}
