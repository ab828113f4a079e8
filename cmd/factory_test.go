package cmd

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/linanwx/nagochat/config"
	"github.com/linanwx/nagochat/conversation"
	"github.com/linanwx/nagochat/provider"
	"github.com/spf13/cobra"
)

func TestApplyOverridesPrecedence(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "sk-env")
	t.Setenv("OPENROUTER_API_BASE", "")

	cfg := config.DefaultConfig()
	cfg.Providers.OpenRouter.APIKey = "sk-file"

	applyOverrides(cfg, providerOverrides{})
	if got := cfg.Providers.OpenRouter.APIKey; got != "sk-env" {
		t.Fatalf("env should beat file, got %q", got)
	}

	applyOverrides(cfg, providerOverrides{APIKey: "sk-flag", APIBase: "http://localhost:1"})
	if got := cfg.Providers.OpenRouter.APIKey; got != "sk-flag" {
		t.Fatalf("flag should beat env, got %q", got)
	}
	if got := cfg.Providers.OpenRouter.APIBase; got != "http://localhost:1" {
		t.Fatalf("APIBase = %q", got)
	}
}

func TestApplyOverridesProviderSwitchResetsModel(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	cfg := config.DefaultConfig()
	cfg.Chat.ModelName = "custom"

	applyOverrides(cfg, providerOverrides{Provider: "anthropic"})
	if cfg.Chat.Provider != "anthropic" || cfg.Chat.ModelType != "" || cfg.Chat.ModelName != "" {
		t.Fatalf("chat = %+v", cfg.Chat)
	}

	applyOverrides(cfg, providerOverrides{Model: "claude-x"})
	if cfg.Chat.ModelType != "claude-x" {
		t.Fatalf("ModelType = %q", cfg.Chat.ModelType)
	}
}

func TestBuildProviderRequiresKey(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "")
	cfg := config.DefaultConfig()
	applyOverrides(cfg, providerOverrides{})

	_, err := buildProvider(cfg)
	if err == nil || !strings.Contains(err.Error(), "OPENROUTER_API_KEY") {
		t.Fatalf("err = %v, want missing key error naming the env var", err)
	}
}

func TestBuildProviderUnknown(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Chat.Provider = "nope"
	if _, err := buildProvider(cfg); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestConversationFactoryUsesConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Chat.Greeting = "welcome aboard"
	ctrl, err := conversationFactory(cfg, nil)()
	if err != nil {
		t.Fatal(err)
	}
	defer ctrl.Close()
	if got := ctrl.Transcript()[0].Text; got != "welcome aboard" {
		t.Fatalf("greeting = %q", got)
	}
}

type replyProvider struct {
	reply string
	err   error
}

func (p replyProvider) Chat(context.Context, *provider.Request) (*provider.Response, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &provider.Response{Content: p.reply}, nil
}

func TestSendOnce(t *testing.T) {
	tests := []struct {
		name string
		p    replyProvider
		want string
	}{
		{"success", replyProvider{reply: "Hello back!"}, "Hello back!"},
		{"failure", replyProvider{err: errors.New("down")}, conversation.DefaultFallback},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := conversation.New(tt.p, conversation.Options{})
			defer ctrl.Close()
			got, err := sendOnce(context.Background(), ctrl, "Hi")
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Fatalf("reply = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSendOnceEmpty(t *testing.T) {
	ctrl := conversation.New(replyProvider{}, conversation.Options{})
	defer ctrl.Close()
	if _, err := sendOnce(context.Background(), ctrl, "   "); err == nil {
		t.Fatal("expected error for blank message")
	}
}

func TestResolveServeTargets(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    serveTargets
		wantErr bool
	}{
		{"default", nil, serveTargets{web: true}, false},
		{"telegram only", []string{"--telegram"}, serveTargets{telegram: true}, false},
		{"web and discord", []string{"--web", "--discord"}, serveTargets{web: true, discord: true}, false},
		{"all", []string{"--all"}, serveTargets{web: true, telegram: true, discord: true}, false},
		{"none", []string{"--web=false"}, serveTargets{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			serveWeb, serveTelegram, serveDiscord, serveAll = true, false, false, false
			cmd := &cobra.Command{Use: "serve"}
			cmd.Flags().BoolVar(&serveWeb, "web", true, "")
			cmd.Flags().BoolVar(&serveTelegram, "telegram", false, "")
			cmd.Flags().BoolVar(&serveDiscord, "discord", false, "")
			cmd.Flags().BoolVar(&serveAll, "all", false, "")
			if err := cmd.Flags().Parse(tt.args); err != nil {
				t.Fatal(err)
			}

			got, err := resolveServeTargets(cmd)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("targets = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestBuildOnboardConfig(t *testing.T) {
	cfg := buildOnboardConfig(onboardAnswers{
		Provider:          "openai",
		Model:             " gpt-4o ",
		APIKey:            " sk-test ",
		ConfigureTelegram: true,
		TelegramToken:     "123:abc",
		TelegramAllowed:   "1, 2,x,,3",
		ConfigureDiscord:  true,
		DiscordToken:      "disc",
		DiscordAllowed:    "u1, u2",
	})

	if cfg.Chat.Provider != "openai" || cfg.Chat.ModelType != "gpt-4o" {
		t.Fatalf("chat = %+v", cfg.Chat)
	}
	if pc := cfg.ProviderConfigFor("openai"); pc == nil || pc.APIKey != "sk-test" {
		t.Fatalf("openai config = %+v", pc)
	}
	if ids := cfg.GetTelegramAllowedIDs(); len(ids) != 3 || ids[2] != 3 {
		t.Fatalf("telegram ids = %v", ids)
	}
	if cfg.GetDiscordToken() != "disc" || len(cfg.GetDiscordAllowedUserIDs()) != 2 {
		t.Fatalf("discord = %+v", cfg.Channels.Discord)
	}
}
