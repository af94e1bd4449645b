package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentdeck/agentdeck/internal/config"
	"github.com/agentdeck/agentdeck/internal/store"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List locally stored session transcripts",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Printf("Config error: %v\n", err)
			os.Exit(1)
		}
		transcripts, err := store.Open(cfg.Store.Path)
		if err != nil {
			fmt.Printf("Store error: %v\n", err)
			os.Exit(1)
		}
		defer transcripts.Close()

		infos, err := transcripts.ListSessions()
		if err != nil {
			fmt.Printf("Store error: %v\n", err)
			os.Exit(1)
		}
		if len(infos) == 0 {
			fmt.Println("No stored sessions.")
			return
		}
		for _, info := range infos {
			fmt.Printf("%-36s  %-20s  %4d messages  updated %s\n",
				info.ID, info.Agent, info.Messages, info.UpdatedAt.Format("2006-01-02 15:04"))
		}
	},
}
