// Package cli implements the agentdeck command line interface.
package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/agentdeck/agentdeck/internal/cli.version=1.2.3"
	version = "0.4.1"
	logo    = "\n" +
		"     _                    _      _           _\n" +
		"    / \\   __ _  ___ _ __ | |_ __| | ___  ___| | __\n" +
		"   / _ \\ / _` |/ _ \\ '_ \\| __/ _` |/ _ \\/ __| |/ /\n" +
		"  / ___ \\ (_| |  __/ | | | || (_| |  __/ (__|   <\n" +
		" /_/   \\_\\__, |\\___|_| |_|\\__\\__,_|\\___|\\___|_|\\_\\\n" +
		"         |___/\n"
)

var rootCmd = &cobra.Command{
	Use:   "agentdeck",
	Short: "AgentDeck - agent operations console runtime",
	Long:  color.CyanString(logo) + "\nThe client runtime for chatting with managed agents: sync and job-based delivery, live channel updates, and artifact export.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func printHeader(title string) {
	fmt.Println(color.CyanString(logo))
	if title != "" {
		fmt.Println(title)
		fmt.Println("─────────────────────")
	}
}
