// Command mapswitch swaps a game server's world between saved map slots.
package main

import (
	"os"

	"github.com/Iron-Ham/mapswitch/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
