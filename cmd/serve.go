package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/linanwx/nagochat/channel"
	"github.com/linanwx/nagochat/config"
	"github.com/linanwx/nagochat/logger"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the chat widget on the web and bot channels",
	Long: `Start nagochat as a long-running service.

Supported channels:
  - web: Browser chat widget (http + websocket), the default
  - telegram: Telegram bot (requires a bot token)
  - discord: Discord bot (requires a bot token)

Every browser tab and every bot chat gets its own conversation.

Examples:
  nagochat serve              # Start the web widget
  nagochat serve --telegram   # Start the Telegram bot only
  nagochat serve --all        # Start all configured channels`,
	RunE: runServe,
}

var (
	serveWeb      bool
	serveTelegram bool
	serveDiscord  bool
	serveAll      bool
	serveFlags    providerOverrides
)

func init() {
	serveCmd.Flags().BoolVar(&serveWeb, "web", true, "Enable the web widget")
	serveCmd.Flags().BoolVar(&serveTelegram, "telegram", false, "Enable Telegram bot channel")
	serveCmd.Flags().BoolVar(&serveDiscord, "discord", false, "Enable Discord bot channel")
	serveCmd.Flags().BoolVar(&serveAll, "all", false, "Enable all configured channels")
	serveCmd.Flags().StringVar(&serveFlags.Provider, "provider", "", "Override provider (openrouter, openai, anthropic)")
	serveCmd.Flags().StringVar(&serveFlags.Model, "model", "", "Override model")
	serveCmd.Flags().StringVar(&serveFlags.APIKey, "api-key", "", "Override API key")
	serveCmd.Flags().StringVar(&serveFlags.APIBase, "api-base", "", "Override API base URL")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadChatConfig()
	if err != nil {
		return err
	}
	applyOverrides(cfg, serveFlags)

	targets, err := resolveServeTargets(cmd)
	if err != nil {
		return err
	}

	p, err := buildProvider(cfg)
	if err != nil {
		return err
	}
	newConv := conversationFactory(cfg, p)

	manager := channel.NewManager()
	registerServices(manager, cfg, targets, newConv)
	if manager.Len() == 0 {
		return fmt.Errorf("no channels could be started; check tokens in config.yaml")
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			logger.Info("shutdown signal received")
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := manager.StartAll(ctx); err != nil {
		return fmt.Errorf("failed to start channels: %w", err)
	}

	logger.Info("nagochat service started")
	if web, ok := manager.Get("web"); ok {
		fmt.Printf("nagochat is running at http://%s. Press Ctrl+C to stop.\n", web.(*channel.WebService).Addr())
	} else {
		fmt.Println("nagochat is running. Press Ctrl+C to stop.")
	}

	// Dispatcher reads from bot channels. Blocks until ctx done.
	dispatcher := NewDispatcher(manager, newConv)
	dispatcher.Run(ctx)

	if err := manager.StopAll(); err != nil {
		logger.Error("error stopping channels", "err", err)
	}

	logger.Info("nagochat service stopped")
	return nil
}

type serveTargets struct {
	web, telegram, discord bool
}

func registerServices(manager *channel.Manager, cfg *config.Config, t serveTargets, newConv channel.ConversationFactory) {
	if t.web {
		manager.Register(channel.NewWebService(channel.WebConfig{
			Addr:            cfg.GetWebAddr(),
			NewConversation: newConv,
		}))
	}
	if t.telegram {
		if ch := channel.NewTelegramChannel(cfg); ch != nil {
			manager.Register(ch)
		}
	}
	if t.discord {
		if ch := channel.NewDiscordChannel(cfg); ch != nil {
			manager.Register(ch)
		}
	}
}

func resolveServeTargets(cmd *cobra.Command) (serveTargets, error) {
	if cmd == nil {
		return serveTargets{}, fmt.Errorf("serve command is nil")
	}
	if serveAll {
		return serveTargets{web: true, telegram: true, discord: true}, nil
	}

	flags := cmd.Flags()
	webChanged := flags.Changed("web")
	telegramChanged := flags.Changed("telegram")
	discordChanged := flags.Changed("discord")

	// No explicit channel flags -> web only.
	if !webChanged && !telegramChanged && !discordChanged {
		return serveTargets{web: true}, nil
	}

	// Any explicit channel flag -> use explicit switches only.
	var t serveTargets
	if webChanged {
		t.web = serveWeb
	}
	if telegramChanged {
		t.telegram = serveTelegram
	}
	if discordChanged {
		t.discord = serveDiscord
	}
	if !t.web && !t.telegram && !t.discord {
		return serveTargets{}, fmt.Errorf("no channels enabled; use --web, --telegram, --discord, or --all")
	}
	return t, nil
}
