package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "corkboard",
		Short: "Corkboard - collaborative board coordination engine",
		Long: `Corkboard serves collaborative kanban boards. One actor per board
serializes all writes against a canonical SQLite store, broadcasts
applied changes to connected clients, and runs scheduled background
generation tasks with model fallback.`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
