// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Config holds all application configuration.
type Config struct {
	Port           string
	FrontendURL    string
	DBPath         string
	AllowedOrigins []string
	LogLevel       slog.Level
	LogRequests    bool

	Content  ContentConfig
	Timer    TimerConfig
	Schedule ScheduleConfig
	Telegram TelegramConfig
	Timeout  TimeoutConfig
}

// ContentConfig selects where boss challenges come from. Both empty means
// the built-in list.
type ContentConfig struct {
	URL  string
	Path string
}

// TimerConfig tunes the pomodoro runtime.
type TimerConfig struct {
	IdleTTL        time.Duration
	AutoStartDelay time.Duration
	TickInterval   time.Duration
}

// ScheduleConfig holds cron expressions for background jobs.
type ScheduleConfig struct {
	Sweep    string
	Rollover string
	Reload   string
}

// TelegramConfig enables the Telegram notification sink when Token is set.
type TelegramConfig struct {
	Token  string
	ChatID int64
}

// TimeoutConfig bounds request-scoped work.
type TimeoutConfig struct {
	HealthCheck time.Duration
	Shutdown    time.Duration
	ContentLoad time.Duration
	Notify      time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		FrontendURL:    getEnv("FRONTEND_URL", ""),
		DBPath:         getEnv("DB_PATH", "./data/stemforge.db"),
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", []string{"*"}),
		LogLevel:       getEnvLevel("LOG_LEVEL", slog.LevelInfo),
		LogRequests:    getEnvBool("LOG_REQUESTS", true),
		Content: ContentConfig{
			URL:  getEnv("CONTENT_URL", ""),
			Path: getEnv("CONTENT_PATH", ""),
		},
		Timer: TimerConfig{
			IdleTTL:        getEnvDuration("TIMER_IDLE_TTL", 2*time.Hour),
			AutoStartDelay: getEnvDuration("TIMER_AUTOSTART_DELAY", time.Second),
			TickInterval:   time.Second,
		},
		Schedule: ScheduleConfig{
			Sweep:    getEnv("SWEEP_SCHEDULE", "*/5 * * * *"),
			Rollover: getEnv("ROLLOVER_SCHEDULE", "0 0 * * *"),
			Reload:   getEnv("CONTENT_RELOAD_SCHEDULE", ""),
		},
		Telegram: TelegramConfig{
			Token:  getEnv("TELEGRAM_TOKEN", ""),
			ChatID: int64(getEnvInt("TELEGRAM_CHAT_ID", 0)),
		},
		Timeout: TimeoutConfig{
			HealthCheck: getEnvDuration("HEALTH_CHECK_TIMEOUT", 5*time.Second),
			Shutdown:    getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
			ContentLoad: getEnvDuration("CONTENT_LOAD_TIMEOUT", 10*time.Second),
			Notify:      getEnvDuration("NOTIFY_TIMEOUT", 10*time.Second),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.Content.URL != "" && c.Content.Path != "" {
		return fmt.Errorf("CONTENT_URL and CONTENT_PATH are mutually exclusive")
	}
	if c.Timer.IdleTTL <= 0 {
		return fmt.Errorf("TIMER_IDLE_TTL must be > 0")
	}
	if c.Timer.AutoStartDelay < 0 {
		return fmt.Errorf("TIMER_AUTOSTART_DELAY must be >= 0")
	}
	for name, spec := range map[string]string{
		"SWEEP_SCHEDULE":          c.Schedule.Sweep,
		"ROLLOVER_SCHEDULE":       c.Schedule.Rollover,
		"CONTENT_RELOAD_SCHEDULE": c.Schedule.Reload,
	} {
		if spec == "" {
			continue
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if c.Telegram.Token != "" && c.Telegram.ChatID == 0 {
		return fmt.Errorf("TELEGRAM_CHAT_ID is required when TELEGRAM_TOKEN is set")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func getEnvLevel(key string, fallback slog.Level) slog.Level {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return fallback
	}
	return level
}
