package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentdeck/agentdeck/internal/backend"
	"github.com/agentdeck/agentdeck/internal/config"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("AgentDeck Version")
		fmt.Printf("Version: %s\n", version)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show runtime status",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("AgentDeck Status")
		fmt.Printf("Version: %s\n", version)

		path, err := config.ConfigPath()
		if err == nil {
			if _, statErr := os.Stat(path); statErr == nil {
				fmt.Println("Config:  ✓ Found (" + path + ")")
			} else {
				fmt.Println("Config:  ✗ Not found (" + path + ")")
			}
		}

		cfg, err := config.Load()
		if err != nil {
			fmt.Printf("Config error: %v\n", err)
			return
		}
		fmt.Printf("Backend: %s (agent %q, %s delivery)\n", cfg.Backend.BaseURL, cfg.Backend.AgentID, cfg.Backend.DeliveryMode)

		client := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.Token, cfg.Backend.Timeout)
		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()
		if err := client.Health(ctx); err != nil {
			fmt.Printf("Health:  ✗ %v\n", err)
		} else {
			fmt.Println("Health:  ✓ Reachable")
		}

		if cfg.Channel.Enabled {
			fmt.Printf("Channel: ✓ Enabled (%s)\n", cfg.Channel.URL)
		} else {
			fmt.Println("Channel: ✗ Disabled")
		}
		if cfg.Audit.Brokers != "" {
			fmt.Printf("Audit:   ✓ Enabled (%s → %s)\n", cfg.Audit.Brokers, cfg.Audit.Topic)
		} else {
			fmt.Println("Audit:   ✗ Disabled")
		}
	},
}
