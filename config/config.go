// Package config handles configuration loading and saving.
package config

import (
	"strings"

	"github.com/linanwx/nagochat/logger"
)

const (
	configFileName = "config.yaml"
	configDirEnv   = "NAGOCHAT_CONFIG_DIR"
)

var configDirOverride string

// SetConfigDir overrides the config directory for the current process.
// Empty value clears the override.
func SetConfigDir(dir string) {
	configDirOverride = strings.TrimSpace(dir)
}

// Config is the root configuration structure.
type Config struct {
	Chat      ChatConfig      `json:"chat" yaml:"chat"`
	Providers ProvidersConfig `json:"providers" yaml:"providers"`
	Channels  *ChannelsConfig `json:"channels" yaml:"channels"`
	Logging   LoggingConfig   `json:"logging,omitempty" yaml:"logging,omitempty"`
}

// ChatConfig contains conversation and completion defaults.
type ChatConfig struct {
	Provider       string  `json:"provider" yaml:"provider"` // openrouter, openai, anthropic
	ModelType      string  `json:"modelType" yaml:"modelType"`
	ModelName      string  `json:"modelName,omitempty" yaml:"modelName,omitempty"`     // optional, defaults to modelType
	MaxTokens      int     `json:"maxTokens,omitempty" yaml:"maxTokens,omitempty"`     // 0 = provider default
	Temperature    float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"` // 0 = provider default
	Greeting       string  `json:"greeting,omitempty" yaml:"greeting,omitempty"`
	Fallback       string  `json:"fallback,omitempty" yaml:"fallback,omitempty"`
	Title          string  `json:"title,omitempty" yaml:"title,omitempty"`     // sent as X-Title
	Referer        string  `json:"referer,omitempty" yaml:"referer,omitempty"` // sent as HTTP-Referer
	TimeoutSeconds int     `json:"timeoutSeconds,omitempty" yaml:"timeoutSeconds,omitempty"`
}

// ProvidersConfig contains provider API configurations.
type ProvidersConfig struct {
	OpenRouter *ProviderConfig `json:"openrouter,omitempty" yaml:"openrouter,omitempty"`
	OpenAI     *ProviderConfig `json:"openai,omitempty" yaml:"openai,omitempty"`
	Anthropic  *ProviderConfig `json:"anthropic,omitempty" yaml:"anthropic,omitempty"`
}

// ProviderConfig contains API credentials for a provider.
type ProviderConfig struct {
	APIKey  string `json:"apiKey" yaml:"apiKey"`
	APIBase string `json:"apiBase,omitempty" yaml:"apiBase,omitempty"` // optional custom base URL
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Enabled *bool  `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Level   string `json:"level,omitempty" yaml:"level,omitempty"`   // debug, info, warn, error
	Stdout  bool   `json:"stdout,omitempty" yaml:"stdout,omitempty"` // log to stdout
	File    string `json:"file,omitempty" yaml:"file,omitempty"`     // log file path
}

// ChannelsConfig contains channel configurations.
type ChannelsConfig struct {
	Telegram *TelegramChannelConfig `json:"telegram,omitempty" yaml:"telegram,omitempty"`
	Discord  *DiscordChannelConfig  `json:"discord,omitempty" yaml:"discord,omitempty"`
	Web      *WebChannelConfig      `json:"web,omitempty" yaml:"web,omitempty"`
}

// TelegramChannelConfig contains Telegram bot configuration.
type TelegramChannelConfig struct {
	Token      string  `json:"token" yaml:"token"`           // Bot token from BotFather
	AllowedIDs []int64 `json:"allowedIds" yaml:"allowedIds"` // Allowed user/chat IDs
}

// DiscordChannelConfig contains Discord bot configuration.
type DiscordChannelConfig struct {
	Token          string   `json:"token" yaml:"token"`
	AllowedUserIDs []string `json:"allowedUserIds,omitempty" yaml:"allowedUserIds,omitempty"` // empty = allow all
}

// WebChannelConfig contains web widget configuration.
type WebChannelConfig struct {
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"` // default: 127.0.0.1:8080
}

// ProviderConfigFor returns the credentials block for a provider name,
// or nil if none is configured.
func (c *Config) ProviderConfigFor(name string) *ProviderConfig {
	switch name {
	case "openrouter":
		return c.Providers.OpenRouter
	case "openai":
		return c.Providers.OpenAI
	case "anthropic":
		return c.Providers.Anthropic
	}
	return nil
}

// EnsureProviderConfig returns the credentials block for name, creating it
// when missing. Unknown names return nil.
func (c *Config) EnsureProviderConfig(name string) *ProviderConfig {
	if pc := c.ProviderConfigFor(name); pc != nil {
		return pc
	}
	pc := &ProviderConfig{}
	switch name {
	case "openrouter":
		c.Providers.OpenRouter = pc
	case "openai":
		c.Providers.OpenAI = pc
	case "anthropic":
		c.Providers.Anthropic = pc
	default:
		return nil
	}
	return pc
}

// GetTelegramToken returns the configured Telegram bot token.
func (c *Config) GetTelegramToken() string {
	if c.Channels == nil || c.Channels.Telegram == nil {
		return ""
	}
	return strings.TrimSpace(c.Channels.Telegram.Token)
}

// GetTelegramAllowedIDs returns the Telegram allowlist.
func (c *Config) GetTelegramAllowedIDs() []int64 {
	if c.Channels == nil || c.Channels.Telegram == nil {
		return nil
	}
	return c.Channels.Telegram.AllowedIDs
}

// GetDiscordToken returns the configured Discord bot token.
func (c *Config) GetDiscordToken() string {
	if c.Channels == nil || c.Channels.Discord == nil {
		return ""
	}
	return strings.TrimSpace(c.Channels.Discord.Token)
}

// GetDiscordAllowedUserIDs returns the Discord user allowlist.
func (c *Config) GetDiscordAllowedUserIDs() []string {
	if c.Channels == nil || c.Channels.Discord == nil {
		return nil
	}
	return c.Channels.Discord.AllowedUserIDs
}

// GetWebAddr returns the web widget listen address.
func (c *Config) GetWebAddr() string {
	if c.Channels == nil || c.Channels.Web == nil || strings.TrimSpace(c.Channels.Web.Addr) == "" {
		return defaultWebAddr
	}
	return strings.TrimSpace(c.Channels.Web.Addr)
}

// BuildLoggerConfig converts the logging section into logger settings.
func (c *Config) BuildLoggerConfig() logger.Config {
	enabled := true
	if c.Logging.Enabled != nil {
		enabled = *c.Logging.Enabled
	}
	return logger.Config{
		Enabled: enabled,
		Level:   c.Logging.Level,
		Stdout:  c.Logging.Stdout,
		File:    c.Logging.File,
	}
}
