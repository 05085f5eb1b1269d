package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{Telegram: TelegramConfig{Token: "123:abc"}}
}

func TestNormalizeDefaults(t *testing.T) {
	cfg := validConfig()
	if err := Normalize(cfg); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.Telegram.RunMode != RunModeLongpoll {
		t.Fatalf("run mode = %q", cfg.Telegram.RunMode)
	}
	d := cfg.Dialog
	if d.HandoffTimeout() != 30*time.Minute {
		t.Fatalf("handoff timeout = %v", d.HandoffTimeout())
	}
	if len(d.HandoffTokens) != 2 || d.HandoffTokens[0] != "1" || d.HandoffTokens[1] != "8" {
		t.Fatalf("handoff tokens = %v", d.HandoffTokens)
	}
	if d.CloseToken != "10" || d.HandoffCloseReply != CloseReplyMenu {
		t.Fatalf("close token %q reply %q", d.CloseToken, d.HandoffCloseReply)
	}
}

func TestNormalizeRejectsInvalid(t *testing.T) {
	cases := map[string]func(*Config){
		"no transport":        func(c *Config) { c.Telegram.Token = "" },
		"bad run mode":        func(c *Config) { c.Telegram.RunMode = "smoke" },
		"webhook without url": func(c *Config) { c.Telegram.RunMode = RunModeWebhook },
		"negative timeout":    func(c *Config) { c.Dialog.HandoffTimeoutMS = -1 },
		"close in handoff": func(c *Config) {
			c.Dialog.HandoffTokens = []string{"1", "10"}
		},
		"bad close reply":       func(c *Config) { c.Dialog.HandoffCloseReply = "bye" },
		"watch without file":    func(c *Config) { c.Dialog.WatchMenu = true },
		"webchat without http":  func(c *Config) { c.WebChat.Enabled = true },
		"bad exclude update":    func(c *Config) { c.RateLimit.ExcludeUpdates = []string{"inline"} },
		"negative send retries": func(c *Config) { c.Sender.MaxRetries = -1 },
	}
	for name, mutate := range cases {
		cfg := validConfig()
		mutate(cfg)
		if err := Normalize(cfg); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestNormalizeWebChatOnly(t *testing.T) {
	cfg := &Config{
		WebChat: WebChatConfig{Enabled: true},
		HTTP:    HTTPConfig{Listen: ":8080"},
	}
	if err := Normalize(cfg); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.WebChat.Path != "/ws" {
		t.Fatalf("webchat path = %q", cfg.WebChat.Path)
	}
	if cfg.Telegram.RunMode != "" {
		t.Fatalf("telegram disabled but run mode set to %q", cfg.Telegram.RunMode)
	}
}

func TestNormalizeOptionalBackends(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Host = "localhost"
	cfg.Redis.Addr = "localhost:6379"
	if err := Normalize(cfg); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.Database.Port != "5432" || cfg.Database.SSLMode != "disable" || cfg.Database.MigrationsDir != "migrations" {
		t.Fatalf("database defaults %+v", cfg.Database)
	}
	if cfg.Redis.HandoffQueue != "queue:handoffs" {
		t.Fatalf("redis queue = %q", cfg.Redis.HandoffQueue)
	}
}

func TestLoadAppliesEnvOverYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := strings.Join([]string{
		"telegram:",
		"  token: from-yaml",
		"dialog:",
		"  close_token: \"0\"",
		"  handoff_tokens: [\"5\"]",
		"",
	}, "\n")
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DOTENV_PATH", filepath.Join(dir, "missing.env"))
	t.Setenv("BOT_TOKEN", "from-env")
	t.Setenv("DIALOG_HANDOFF_TIMEOUT_MS", "1500")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Telegram.Token != "from-env" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if cfg.Dialog.CloseToken != "0" || cfg.Dialog.HandoffTokens[0] != "5" {
		t.Fatalf("dialog = %+v", cfg.Dialog)
	}
	if cfg.Dialog.HandoffTimeout() != 1500*time.Millisecond {
		t.Fatalf("timeout = %v", cfg.Dialog.HandoffTimeout())
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("MENUBOT_TEST_KEY=dotenv\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MENUBOT_TEST_KEY", "")
	os.Unsetenv("MENUBOT_TEST_KEY")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("load dotenv: %v", err)
	}
	if got := os.Getenv("MENUBOT_TEST_KEY"); got != "dotenv" {
		t.Fatalf("MENUBOT_TEST_KEY = %q", got)
	}
	if err := LoadDotEnv(filepath.Join(dir, "nope.env")); err != nil {
		t.Fatalf("missing file should be ignored: %v", err)
	}
}
