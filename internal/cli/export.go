package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/agentdeck/agentdeck/internal/archive"
	"github.com/agentdeck/agentdeck/internal/artifact"
	"github.com/agentdeck/agentdeck/internal/backend"
	"github.com/agentdeck/agentdeck/internal/config"
	"github.com/agentdeck/agentdeck/internal/session"
	"github.com/agentdeck/agentdeck/internal/store"
)

var (
	exportOutDir string
	exportRemote bool
)

var exportCmd = &cobra.Command{
	Use:   "export <session-id>",
	Short: "Export the latest generated file bundle of a session as a zip archive",
	Args:  cobra.ExactArgs(1),
	Run:   runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutDir, "out", "o", ".", "Directory to write the archive into")
	exportCmd.Flags().BoolVar(&exportRemote, "remote", false, "Fetch the session from the backend instead of the local store")
}

func runExport(cmd *cobra.Command, args []string) {
	sessionID := args[0]

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Config error: %v\n", err)
		os.Exit(1)
	}

	var msgs []session.Message
	if exportRemote {
		client := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.Token, cfg.Backend.Timeout)
		msgs, err = client.FetchSession(context.Background(), sessionID)
		if err != nil {
			fmt.Printf("Fetch error: %v\n", err)
			os.Exit(1)
		}
	} else {
		transcripts, err := store.Open(cfg.Store.Path)
		if err != nil {
			fmt.Printf("Store error: %v\n", err)
			os.Exit(1)
		}
		defer transcripts.Close()

		var ok bool
		msgs, ok, err = transcripts.LoadSession(sessionID)
		if err != nil {
			fmt.Printf("Store error: %v\n", err)
			os.Exit(1)
		}
		if !ok {
			fmt.Printf("No local transcript for session %s (try --remote)\n", sessionID)
			os.Exit(1)
		}
	}

	bundle := artifact.Latest(msgs)
	if bundle == nil {
		fmt.Println("Session has no generated file bundle.")
		os.Exit(1)
	}
	if !bundle.Validation.Valid && len(bundle.Validation.Errors) > 0 {
		fmt.Println(color.YellowString("Warning: bundle failed validation:"))
		for _, e := range bundle.Validation.Errors {
			fmt.Printf("  - %s\n", e)
		}
	}

	blob := archive.Build(bundle.Files)
	outPath := filepath.Join(exportOutDir, bundle.Slug+".zip")
	if err := os.WriteFile(outPath, blob, 0o644); err != nil {
		fmt.Printf("Write error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%s Wrote %s (%d files, %d bytes)\n", color.GreenString("✓"), outPath, len(bundle.Files), len(blob))
}
