package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dwsmith1983/narrator/internal/commands"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "narrator",
		Short: "Asynchronous game-master core for tabletop RPG sessions",
		Long: `Narrator turns player actions into AI-drafted narration that a human
director approves before players see it. It also stages which NPCs are
present in each region and suggests narrative events as their triggers fire.`,
		Version: version,
	}

	root.AddCommand(
		commands.NewServeCmd(),
		commands.NewEnqueueCmd(),
		commands.NewQueueCmd(),
		commands.NewStagingCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
