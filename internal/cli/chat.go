package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/agentdeck/agentdeck/internal/agent"
	"github.com/agentdeck/agentdeck/internal/audit"
	"github.com/agentdeck/agentdeck/internal/backend"
	"github.com/agentdeck/agentdeck/internal/bus"
	"github.com/agentdeck/agentdeck/internal/channel"
	"github.com/agentdeck/agentdeck/internal/config"
	"github.com/agentdeck/agentdeck/internal/jobs"
	"github.com/agentdeck/agentdeck/internal/store"
)

var (
	chatAgentID   string
	chatSessionID string
	chatMessage   string
	chatAsync     bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with a managed agent",
	Run:   runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatAgentID, "agent", "a", "", "Agent ID (defaults to the configured agent)")
	chatCmd.Flags().StringVarP(&chatSessionID, "session", "s", "", "Session ID (a new one is generated when empty)")
	chatCmd.Flags().StringVarP(&chatMessage, "message", "m", "", "Send one message and exit instead of starting a prompt loop")
	chatCmd.Flags().BoolVar(&chatAsync, "async", false, "Force job-based delivery regardless of configuration")
}

func runChat(cmd *cobra.Command, args []string) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Config error: %v\n", err)
		os.Exit(1)
	}
	agentID := chatAgentID
	if agentID == "" {
		agentID = cfg.Backend.AgentID
	}
	if agentID == "" {
		fmt.Println("Error: no agent configured; pass --agent or set backend.agentId")
		os.Exit(1)
	}
	mode := cfg.Backend.DeliveryMode
	if chatAsync {
		mode = config.DeliveryAsync
	}

	printHeader("AgentDeck Chat")
	fmt.Printf("Agent: %s (%s delivery)\n\n", agentID, mode)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	events := bus.NewEventBus()
	go events.Dispatch(ctx)

	client := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.Token, cfg.Backend.Timeout)
	poller := jobs.NewPoller(client)
	poller.Interval = cfg.Jobs.PollInterval
	poller.MaxAttempts = cfg.Jobs.MaxAttempts

	controller := agent.NewController(agent.Options{
		Backend:      client,
		Poller:       poller,
		Events:       events,
		AgentID:      agentID,
		SessionID:    chatSessionID,
		WorkspaceID:  cfg.Backend.WorkspaceID,
		DeliveryMode: mode,
	})

	defer controller.Close()

	controller.Restore(ctx)
	if history := controller.Messages(); len(history) > 0 {
		fmt.Printf("(restored %d messages)\n", len(history))
	}

	if cfg.Channel.Enabled {
		mgr := channel.NewManager(channel.Options{
			URL:           cfg.Channel.URL,
			AutoReconnect: cfg.Channel.AutoReconnect,
			BackoffBase:   cfg.Channel.BackoffBase,
			BackoffMax:    cfg.Channel.BackoffMax,
		}, events)
		defer mgr.Close()
		if err := mgr.Connect(ctx); err != nil {
			fmt.Printf("Channel warning: %v (continuing without live updates)\n", err)
		}
	}

	if cfg.Audit.Brokers != "" {
		mirror := audit.NewMirror(cfg.Audit.Brokers, cfg.Audit.Topic)
		defer mirror.Close()
		mirror.Attach(events)
	}

	events.Subscribe(bus.EventJobProgress, func(ev *bus.Event) {
		if ev.SessionID == "" || ev.SessionID == controller.SessionID() {
			fmt.Printf("\r%s %d%% %s", color.YellowString("⋯"), ev.Progress, ev.Message)
		}
	})

	transcripts, err := store.Open(cfg.Store.Path)
	if err != nil {
		fmt.Printf("Store warning: %v (transcripts will not be saved)\n", err)
		transcripts = nil
	} else {
		defer transcripts.Close()
	}

	send := func(text string) {
		if err := controller.SendMessage(ctx, text, nil); err != nil {
			fmt.Printf("\n%s %s\n", color.RedString("✗"), controller.Err())
			return
		}
		msgs := controller.Messages()
		last := msgs[len(msgs)-1]
		fmt.Printf("\r%s %s\n", color.GreenString("agent>"), last.Content)
		if transcripts != nil {
			if err := transcripts.SaveSession(controller.SessionID(), agentID, msgs); err != nil {
				fmt.Printf("Store warning: %v\n", err)
			}
		}
	}

	if chatMessage != "" {
		send(chatMessage)
		return
	}

	fmt.Println("Type a message, or /quit to exit.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(color.CyanString("you> "))
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit" || line == "/exit":
			return
		case line == "/clear":
			controller.ClearMessages()
			fmt.Println("(local log cleared)")
			continue
		}
		send(line)
	}
}
