package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram bot settings. An empty token disables the Telegram transport.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
	// LogQR prints a QR code of the bot's t.me link on startup when stdout is a terminal.
	LogQR bool `yaml:"log_qr" envconfig:"TELEGRAM_LOG_QR"`
	// AdminID unlocks operator commands such as /stats; 0 disables them.
	AdminID int64 `yaml:"admin_id" envconfig:"ADMIN_ID"`
}

// Enabled reports whether a bot token was supplied.
func (t TelegramConfig) Enabled() bool { return strings.TrimSpace(t.Token) != "" }

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format" envconfig:"LOG_FORMAT"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile" envconfig:"LOG_PROFILE"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// UpdateCallback identifies callback updates for rate limit exclusions.
	UpdateCallback = "callback"
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
)

// RateLimitConfig holds settings for per-sender rate limiting of Telegram updates.
// ExcludeUpdates accepts update types to bypass limiting: "callback", "message".
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// SenderConfig tunes the outbound dispatcher.
type SenderConfig struct {
	QueueSize      int `yaml:"queue_size" envconfig:"SENDER_QUEUE_SIZE"`
	Workers        int `yaml:"workers" envconfig:"SENDER_WORKERS"`
	MaxRetries     int `yaml:"max_retries" envconfig:"SENDER_MAX_RETRIES"`
	RetryBackoffMS int `yaml:"retry_backoff_ms" envconfig:"SENDER_RETRY_BACKOFF_MS"`
	MaxDurationMS  int `yaml:"max_duration_ms" envconfig:"SENDER_MAX_DURATION_MS"`
}

const (
	// CloseReplyMenu resends the menu when a parked session is closed.
	CloseReplyMenu = "menu"
	// CloseReplyClosing sends the close option's text instead.
	CloseReplyClosing = "closing"

	defaultHandoffTimeoutMS = 30 * 60 * 1000
	defaultCloseToken       = "10"
)

// DialogConfig holds the static configuration of the menu state machine.
type DialogConfig struct {
	HandoffTimeoutMS  int      `yaml:"handoff_timeout_ms" envconfig:"DIALOG_HANDOFF_TIMEOUT_MS"`
	HandoffTokens     []string `yaml:"handoff_tokens" envconfig:"DIALOG_HANDOFF_TOKENS"`
	CloseToken        string   `yaml:"close_token" envconfig:"DIALOG_CLOSE_TOKEN"`
	HandoffCloseReply string   `yaml:"handoff_close_reply" envconfig:"DIALOG_HANDOFF_CLOSE_REPLY"`
	// MenuFile points to a YAML menu; empty uses the built-in menu.
	MenuFile  string `yaml:"menu_file" envconfig:"DIALOG_MENU_FILE"`
	WatchMenu bool   `yaml:"watch_menu" envconfig:"DIALOG_WATCH_MENU"`
}

// HandoffTimeout returns the hand-off window as a duration.
func (d DialogConfig) HandoffTimeout() time.Duration {
	return time.Duration(d.HandoffTimeoutMS) * time.Millisecond
}

// DatabaseConfig holds postgres settings for the transition journal. An empty host disables it.
type DatabaseConfig struct {
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
	MigrationsDir  string `yaml:"migrations_dir" envconfig:"DB_MIGRATIONS_DIR"`
}

// Enabled reports whether the journal database is configured.
func (d DatabaseConfig) Enabled() bool { return strings.TrimSpace(d.Host) != "" }

// RedisConfig holds settings for the hand-off queue. An empty address disables it.
type RedisConfig struct {
	Addr         string `yaml:"addr" envconfig:"REDIS_ADDR"`
	Password     string `yaml:"password" envconfig:"REDIS_PASSWORD"`
	DB           int    `yaml:"db" envconfig:"REDIS_DB"`
	HandoffQueue string `yaml:"handoff_queue" envconfig:"REDIS_HANDOFF_QUEUE"`
}

// Enabled reports whether Redis is configured.
func (r RedisConfig) Enabled() bool { return strings.TrimSpace(r.Addr) != "" }

// HTTPConfig configures the ops API. An empty listen address disables it.
type HTTPConfig struct {
	Listen string `yaml:"listen" envconfig:"HTTP_LISTEN"`
}

// WebChatConfig toggles the websocket chat transport served by the ops API.
type WebChatConfig struct {
	Enabled bool   `yaml:"enabled" envconfig:"WEBCHAT_ENABLED"`
	Path    string `yaml:"path" envconfig:"WEBCHAT_PATH"`
}

// Config aggregates the application configuration.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Sender    SenderConfig    `yaml:"sender"`
	Dialog    DialogConfig    `yaml:"dialog"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	HTTP      HTTPConfig      `yaml:"http"`
	WebChat   WebChatConfig   `yaml:"webchat"`
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment.
// A missing file is not an error; existing variables are not overridden.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from .env, a YAML file and environment variables, in that order of precedence
// (environment wins).
func Load(path string) (*Config, error) {
	if err := LoadDotEnv(os.Getenv("DOTENV_PATH")); err != nil {
		return nil, err
	}

	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize performs validation of configuration fields and fills defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if !cfg.Telegram.Enabled() && !cfg.WebChat.Enabled {
		return fmt.Errorf("no transport configured: set telegram.token or webchat.enabled")
	}

	if err := normalizeTelegram(cfg); err != nil {
		return err
	}
	if err := normalizeDialog(&cfg.Dialog); err != nil {
		return err
	}

	if cfg.WebChat.Enabled {
		if strings.TrimSpace(cfg.HTTP.Listen) == "" {
			return fmt.Errorf("http.listen is required when webchat.enabled is true")
		}
		if cfg.WebChat.Path == "" {
			cfg.WebChat.Path = "/ws"
		}
		if !strings.HasPrefix(cfg.WebChat.Path, "/") {
			return fmt.Errorf("webchat.path must start with '/'")
		}
	}

	if cfg.Database.Enabled() {
		if cfg.Database.Port == "" {
			cfg.Database.Port = "5432"
		}
		if cfg.Database.SSLMode == "" {
			cfg.Database.SSLMode = "disable"
		}
		if cfg.Database.MaxConnections <= 0 {
			cfg.Database.MaxConnections = 4
		}
		if cfg.Database.MigrationsDir == "" {
			cfg.Database.MigrationsDir = "migrations"
		}
	}

	if cfg.Redis.Enabled() && cfg.Redis.HandoffQueue == "" {
		cfg.Redis.HandoffQueue = "queue:handoffs"
	}

	if cfg.Sender.MaxRetries < 0 {
		return fmt.Errorf("sender.max_retries must be >= 0")
	}

	allowed := map[string]struct{}{
		UpdateCallback: {},
		UpdateMessage:  {},
	}
	for i, v := range cfg.RateLimit.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message", v)
		}
		cfg.RateLimit.ExcludeUpdates[i] = key
	}
	return nil
}

func normalizeTelegram(cfg *Config) error {
	if !cfg.Telegram.Enabled() {
		return nil
	}
	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" {
		rm = RunModeLongpoll
	}
	if rm == "polling" { // accept alias
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			return fmt.Errorf("webhook.listen is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm
	return nil
}

func normalizeDialog(d *DialogConfig) error {
	if d.HandoffTimeoutMS < 0 {
		return fmt.Errorf("dialog.handoff_timeout_ms must be >= 0")
	}
	if d.HandoffTimeoutMS == 0 {
		d.HandoffTimeoutMS = defaultHandoffTimeoutMS
	}

	d.CloseToken = strings.TrimSpace(d.CloseToken)
	if d.CloseToken == "" {
		d.CloseToken = defaultCloseToken
	}

	tokens := make([]string, 0, len(d.HandoffTokens))
	for _, t := range d.HandoffTokens {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if t == d.CloseToken {
			return fmt.Errorf("dialog.handoff_tokens must not contain the close token %q", t)
		}
		tokens = append(tokens, t)
	}
	if len(tokens) == 0 {
		tokens = []string{"1", "8"}
	}
	d.HandoffTokens = tokens

	reply := strings.ToLower(strings.TrimSpace(d.HandoffCloseReply))
	switch reply {
	case "":
		reply = CloseReplyMenu
	case CloseReplyMenu, CloseReplyClosing:
	default:
		return fmt.Errorf("invalid dialog.handoff_close_reply %q; allowed: menu, closing", d.HandoffCloseReply)
	}
	d.HandoffCloseReply = reply

	if d.WatchMenu && strings.TrimSpace(d.MenuFile) == "" {
		return fmt.Errorf("dialog.watch_menu requires dialog.menu_file")
	}
	return nil
}
