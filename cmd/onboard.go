package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/linanwx/nagochat/config"
	"github.com/linanwx/nagochat/provider"
)

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize nagochat configuration",
	Long:  `Create the nagochat configuration directory and config file.`,
	RunE:  runOnboard,
}

func init() {
	rootCmd.AddCommand(onboardCmd)
}

// providerURLs maps provider names to their API key portal URLs.
var providerURLs = map[string]string{
	"openrouter": "https://openrouter.ai/keys",
	"openai":     "https://platform.openai.com/api-keys",
	"anthropic":  "https://console.anthropic.com",
}

// onboardAnswers collects the wizard input.
type onboardAnswers struct {
	Provider string
	Model    string
	APIKey   string

	ConfigureTelegram bool
	TelegramToken     string
	TelegramAllowed   string

	ConfigureDiscord bool
	DiscordToken     string
	DiscordAllowed   string
}

func runOnboard(_ *cobra.Command, _ []string) error {
	configPath, err := config.ConfigPath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(configPath); err == nil {
		fmt.Println("Config already exists at:", configPath)
		fmt.Println("To reconfigure, edit the file directly or delete it first.")
		return nil
	}

	var a onboardAnswers

	// Step 1: select provider
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Choose your LLM provider").
				Description("OpenRouter gives access to many models with one key.").
				Options(buildProviderOptions()...).
				Value(&a.Provider),
		),
	).Run()
	if err != nil {
		return err
	}

	// Step 2: model and API key
	reg, _ := provider.Lookup(a.Provider)
	a.Model = reg.DefaultModel
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Model for "+a.Provider).
				Description("Leave as is to use the default.").
				Value(&a.Model),
			huh.NewInput().
				Title("Enter your "+a.Provider+" API key").
				Description("Create one at "+providerURLs[a.Provider]+" (or set "+reg.EnvKey+" instead).").
				EchoMode(huh.EchoModePassword).
				Value(&a.APIKey),
		),
	).Run()
	if err != nil {
		return err
	}

	// Step 3: optional bots
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Configure Telegram bot?").
				Description("You can skip and configure later in config.yaml.").
				Value(&a.ConfigureTelegram),
			huh.NewConfirm().
				Title("Configure Discord bot?").
				Description("You can skip and configure later in config.yaml.").
				Value(&a.ConfigureDiscord),
		),
	).Run()
	if err != nil {
		return err
	}

	if a.ConfigureTelegram {
		err = huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Telegram Bot Token").
					Description("Open @BotFather on Telegram, run /newbot, and paste the token here.").
					Validate(requireNonEmpty("bot token")).
					Value(&a.TelegramToken),
				huh.NewInput().
					Title("Allowed User IDs").
					Description("Comma-separated numeric IDs. Leave empty to allow all.").
					Value(&a.TelegramAllowed),
			),
		).Run()
		if err != nil {
			return err
		}
	}

	if a.ConfigureDiscord {
		err = huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Discord Bot Token").
					Description("From the Bot page of your application in the Discord developer portal.").
					Validate(requireNonEmpty("bot token")).
					Value(&a.DiscordToken),
				huh.NewInput().
					Title("Allowed User IDs").
					Description("Comma-separated Discord user IDs. Leave empty to allow all.").
					Value(&a.DiscordAllowed),
			),
		).Run()
		if err != nil {
			return err
		}
	}

	cfg := buildOnboardConfig(a)
	if err := cfg.Save(); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Println()
	fmt.Println("nagochat initialized successfully!")
	fmt.Println()
	fmt.Println("  Config:", configPath)
	fmt.Println("  Provider:", cfg.Chat.Provider)
	fmt.Println("  Model:", firstNonEmpty(cfg.Chat.ModelType, reg.DefaultModel))
	fmt.Println()
	fmt.Println("Run 'nagochat chat' or 'nagochat serve' to start.")
	return nil
}

// buildOnboardConfig turns wizard answers into a config.
func buildOnboardConfig(a onboardAnswers) *config.Config {
	cfg := config.DefaultConfig()
	if a.Provider != "" && a.Provider != cfg.Chat.Provider {
		cfg.Chat.Provider = a.Provider
		cfg.Chat.ModelType = ""
	}
	if m := strings.TrimSpace(a.Model); m != "" {
		cfg.Chat.ModelType = m
	}
	if key := strings.TrimSpace(a.APIKey); key != "" {
		if pc := cfg.EnsureProviderConfig(cfg.Chat.Provider); pc != nil {
			pc.APIKey = key
		}
	}

	if a.ConfigureTelegram {
		cfg.Channels.Telegram = &config.TelegramChannelConfig{
			Token:      strings.TrimSpace(a.TelegramToken),
			AllowedIDs: parseAllowedIDs(a.TelegramAllowed),
		}
	}
	if a.ConfigureDiscord {
		cfg.Channels.Discord = &config.DiscordChannelConfig{
			Token:          strings.TrimSpace(a.DiscordToken),
			AllowedUserIDs: splitList(a.DiscordAllowed),
		}
	}
	return cfg
}

func buildProviderOptions() []huh.Option[string] {
	names := provider.SupportedProviders()
	// Put openrouter first.
	sorted := make([]string, 0, len(names))
	for _, n := range names {
		if n == "openrouter" {
			sorted = append([]string{n}, sorted...)
		} else {
			sorted = append(sorted, n)
		}
	}
	options := make([]huh.Option[string], 0, len(sorted))
	for _, name := range sorted {
		label := name
		if reg, ok := provider.Lookup(name); ok && reg.DefaultModel != "" {
			label += " (" + reg.DefaultModel + ")"
		}
		if name == "openrouter" {
			label += " [Recommended]"
		}
		options = append(options, huh.NewOption(label, name))
	}
	return options
}

func requireNonEmpty(what string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", what)
		}
		return nil
	}
}

func parseAllowedIDs(raw string) []int64 {
	var ids []int64
	for _, part := range splitList(raw) {
		if id, err := strconv.ParseInt(part, 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
