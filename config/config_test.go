package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func useTempConfigDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	SetConfigDir(dir)
	t.Cleanup(func() { SetConfigDir("") })
	return dir
}

func TestLoadMissingFile(t *testing.T) {
	useTempConfigDir(t)
	_, err := Load()
	if err == nil {
		t.Fatal("Load() should fail without config file")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Load() error = %v, want ErrNotExist", err)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := useTempConfigDir(t)

	cfg := DefaultConfig()
	cfg.Chat.ModelType = "openai/gpt-4o-mini"
	cfg.Providers.OpenRouter.APIKey = "sk-or-test"
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(filepath.Join(dir, configFileName))
	if err != nil {
		t.Fatalf("config file missing: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("config perm = %o, want 600", perm)
	}

	got, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Chat.ModelType != "openai/gpt-4o-mini" {
		t.Fatalf("ModelType = %q", got.Chat.ModelType)
	}
	if got.Providers.OpenRouter == nil || got.Providers.OpenRouter.APIKey != "sk-or-test" {
		t.Fatalf("OpenRouter = %+v", got.Providers.OpenRouter)
	}
}

func TestApplyDefaultsFillsChatSection(t *testing.T) {
	dir := useTempConfigDir(t)
	yamlText := "chat:\n  provider: openai\nlogging:\n  level: debug\n"
	if err := os.WriteFile(filepath.Join(dir, configFileName), []byte(yamlText), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Chat.Provider != "openai" {
		t.Fatalf("Provider = %q", cfg.Chat.Provider)
	}
	if cfg.Chat.ModelType != "" {
		t.Fatalf("ModelType = %q, want empty for non-default provider", cfg.Chat.ModelType)
	}
	if cfg.Chat.Greeting != defaultGreeting {
		t.Fatalf("Greeting = %q", cfg.Chat.Greeting)
	}
	if cfg.Chat.Fallback != defaultFallback {
		t.Fatalf("Fallback = %q", cfg.Chat.Fallback)
	}
	if cfg.Chat.TimeoutSeconds != defaultTimeoutSeconds {
		t.Fatalf("TimeoutSeconds = %d", cfg.Chat.TimeoutSeconds)
	}
	if cfg.GetWebAddr() != defaultWebAddr {
		t.Fatalf("GetWebAddr() = %q", cfg.GetWebAddr())
	}

	lc := cfg.BuildLoggerConfig()
	if !lc.Enabled || lc.Level != "debug" || !lc.Stdout {
		t.Fatalf("BuildLoggerConfig() = %+v", lc)
	}
}

func TestEnsureProviderConfig(t *testing.T) {
	cfg := &Config{}
	if cfg.ProviderConfigFor("anthropic") != nil {
		t.Fatal("anthropic should start unset")
	}
	pc := cfg.EnsureProviderConfig("anthropic")
	if pc == nil || cfg.Providers.Anthropic != pc {
		t.Fatal("EnsureProviderConfig did not attach block")
	}
	if cfg.EnsureProviderConfig("bogus") != nil {
		t.Fatal("unknown provider should return nil")
	}
}

func TestConfigDirFromEnv(t *testing.T) {
	SetConfigDir("")
	t.Setenv(configDirEnv, "/tmp/nagochat-env")
	dir, err := ConfigDir()
	if err != nil {
		t.Fatal(err)
	}
	if dir != "/tmp/nagochat-env" {
		t.Fatalf("ConfigDir() = %q", dir)
	}
}
