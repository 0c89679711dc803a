// Package cmd implements the mapswitch command line.
package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	configcmd "github.com/Iron-Ham/mapswitch/internal/cmd/config"
	"github.com/Iron-Ham/mapswitch/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "mapswitch",
	Short: "Swap a game server's world between saved map slots",
	Long: `mapswitch manages a game server's active world and swaps it for one of a
set of saved slots, by hand, by player vote, or on a rolling timer.

Run 'mapswitch serve' to start the daemon that owns the server. Every other
command either reads the slot directory directly or talks to that daemon.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/mapswitch/config.yaml)")
	rootCmd.PersistentFlags().String("addr", "", "daemon API address (default is api.listen)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("api.listen", rootCmd.PersistentFlags().Lookup("addr"))

	configcmd.Register(rootCmd)
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("MAPSWITCH")
	// e.g. MAPSWITCH_ROLLING_INTERVAL_MINUTES for rolling.interval_minutes
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
