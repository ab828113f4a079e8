package config

const (
	defaultProvider       = "openrouter"
	defaultModelType      = "deepseek/deepseek-r1:free"
	defaultGreeting       = "Hello! I am your AI assistant. How can I help you today?"
	defaultFallback       = "Sorry, I encountered an error. Please try again."
	defaultTitle          = "nagochat"
	defaultReferer        = "https://github.com/linanwx/nagochat"
	defaultTimeoutSeconds = 120
	defaultWebAddr        = "127.0.0.1:8080"
)

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Chat: ChatConfig{
			Provider:       defaultProvider,
			ModelType:      defaultModelType,
			Greeting:       defaultGreeting,
			Fallback:       defaultFallback,
			Title:          defaultTitle,
			Referer:        defaultReferer,
			TimeoutSeconds: defaultTimeoutSeconds,
		},
		Providers: ProvidersConfig{
			OpenRouter: &ProviderConfig{APIKey: ""},
		},
		Channels: &ChannelsConfig{
			Telegram: &TelegramChannelConfig{AllowedIDs: []int64{}},
			Web:      &WebChannelConfig{Addr: defaultWebAddr},
		},
		Logging: defaultLoggingConfig(),
	}
}

func defaultLoggingConfig() LoggingConfig {
	enabled := true
	return LoggingConfig{
		Enabled: &enabled,
		Level:   "info",
		Stdout:  true,
		File:    "logs/nagochat.log",
	}
}

func (c *Config) applyDefaults() {
	if c.Chat.Provider == "" {
		c.Chat.Provider = defaultProvider
	}
	// Other providers fall back to their registered default model.
	if c.Chat.ModelType == "" && c.Chat.Provider == defaultProvider {
		c.Chat.ModelType = defaultModelType
	}
	if c.Chat.Greeting == "" {
		c.Chat.Greeting = defaultGreeting
	}
	if c.Chat.Fallback == "" {
		c.Chat.Fallback = defaultFallback
	}
	if c.Chat.Title == "" {
		c.Chat.Title = defaultTitle
	}
	if c.Chat.Referer == "" {
		c.Chat.Referer = defaultReferer
	}
	if c.Chat.TimeoutSeconds <= 0 {
		c.Chat.TimeoutSeconds = defaultTimeoutSeconds
	}
	if c.Chat.MaxTokens < 0 {
		c.Chat.MaxTokens = 0
	}

	if c.Channels == nil {
		c.Channels = &ChannelsConfig{}
	}
	if c.Channels.Web == nil {
		c.Channels.Web = &WebChannelConfig{}
	}
	if c.Channels.Web.Addr == "" {
		c.Channels.Web.Addr = defaultWebAddr
	}

	def := defaultLoggingConfig()
	if c.Logging == (LoggingConfig{}) {
		c.Logging = def
		return
	}
	if c.Logging.Enabled == nil {
		enabled := true
		c.Logging.Enabled = &enabled
	}
	if c.Logging.Level == "" {
		c.Logging.Level = def.Level
	}
	if !c.Logging.Stdout && c.Logging.File == "" {
		c.Logging.Stdout = def.Stdout
	}
}
