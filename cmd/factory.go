package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/linanwx/nagochat/config"
	"github.com/linanwx/nagochat/conversation"
	"github.com/linanwx/nagochat/logger"
	"github.com/linanwx/nagochat/provider"
)

// providerOverrides are runtime replacements for the chat/provider config,
// used to try other providers without editing config.yaml.
type providerOverrides struct {
	Provider string
	Model    string
	APIKey   string
	APIBase  string
}

// applyProviderEnv copies provider credentials from the environment into cfg.
// Environment values win over the file.
func applyProviderEnv(cfg *config.Config) {
	reg, ok := provider.Lookup(cfg.Chat.Provider)
	if !ok {
		return
	}
	key := strings.TrimSpace(os.Getenv(reg.EnvKey))
	base := ""
	if reg.EnvBase != "" {
		base = strings.TrimSpace(os.Getenv(reg.EnvBase))
	}
	if key == "" && base == "" {
		return
	}
	pc := cfg.EnsureProviderConfig(cfg.Chat.Provider)
	if pc == nil {
		return
	}
	if key != "" {
		pc.APIKey = key
	}
	if base != "" {
		pc.APIBase = base
	}
}

// applyOverrides applies flag overrides on top of file and environment.
func applyOverrides(cfg *config.Config, o providerOverrides) {
	if p := strings.TrimSpace(o.Provider); p != "" && p != cfg.Chat.Provider {
		cfg.Chat.Provider = p
		// The configured model belongs to the previous provider.
		cfg.Chat.ModelType = ""
		cfg.Chat.ModelName = ""
	}
	if m := strings.TrimSpace(o.Model); m != "" {
		cfg.Chat.ModelType = m
		cfg.Chat.ModelName = "" // reset so modelType takes effect
	}

	applyProviderEnv(cfg)

	if o.APIKey == "" && o.APIBase == "" {
		return
	}
	pc := cfg.EnsureProviderConfig(cfg.Chat.Provider)
	if pc == nil {
		return
	}
	if o.APIKey != "" {
		pc.APIKey = o.APIKey
	}
	if o.APIBase != "" {
		pc.APIBase = o.APIBase
	}
}

// buildProvider creates the configured completion provider.
func buildProvider(cfg *config.Config) (provider.Provider, error) {
	s := provider.Settings{
		ModelType:   cfg.Chat.ModelType,
		ModelName:   cfg.Chat.ModelName,
		MaxTokens:   cfg.Chat.MaxTokens,
		Temperature: cfg.Chat.Temperature,
		Title:       cfg.Chat.Title,
		Referer:     cfg.Chat.Referer,
		Timeout:     chatTimeout(cfg),
	}
	if pc := cfg.ProviderConfigFor(cfg.Chat.Provider); pc != nil {
		s.APIKey = pc.APIKey
		s.APIBase = pc.APIBase
	}

	p, err := provider.New(cfg.Chat.Provider, s)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}
	logger.Info("provider ready",
		"provider", cfg.Chat.Provider,
		"model", firstNonEmpty(s.ModelName, s.ModelType),
		"apiBase", s.APIBase,
	)
	return p, nil
}

func chatTimeout(cfg *config.Config) time.Duration {
	if cfg.Chat.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(cfg.Chat.TimeoutSeconds) * time.Second
}

// conversationFactory returns a constructor for conversations that share one
// provider.
func conversationFactory(cfg *config.Config, p provider.Provider) func() (*conversation.Controller, error) {
	opts := conversation.Options{
		Greeting: cfg.Chat.Greeting,
		Fallback: cfg.Chat.Fallback,
		Timeout:  chatTimeout(cfg),
	}
	return func() (*conversation.Controller, error) {
		return conversation.New(p, opts), nil
	}
}

// loadChatConfig loads config.yaml, or defaults when it does not exist yet so
// that environment credentials alone are enough to chat.
func loadChatConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		logger.Warn("config not found, using defaults; run 'nagochat onboard' to create one")
		return config.DefaultConfig(), nil
	}
	return nil, fmt.Errorf("failed to load config: %w", err)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
