// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port         string
	FrontendURL  string
	DBPath       string
	PersonasPath string

	Completion CompletionConfig
	Slack      SlackConfig

	// SessionMaxTurns caps each persona's in-memory history. When the cap is
	// exceeded the oldest turn pairs are dropped; the system prompt is rebuilt
	// on every call and is never truncated.
	SessionMaxTurns int

	// ThreadLockTimeout bounds how long a request waits for its thread lock
	// before failing closed.
	ThreadLockTimeout time.Duration
}

// CompletionConfig configures the chat-completion upstream.
type CompletionConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// SlackConfig configures the optional Slack transport. The adapter starts
// only when both tokens are present.
type SlackConfig struct {
	BotToken string // xoxb-...
	AppToken string // xapp-..., Socket Mode
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:         getEnv("PORT", "8080"),
		FrontendURL:  getEnv("FRONTEND_URL", ""),
		DBPath:       getEnv("DB_PATH", "./data/infoundr.db"),
		PersonasPath: getEnv("PERSONAS_PATH", "./personas.yaml"),
		Completion: CompletionConfig{
			APIKey:  getEnv("OPENAI_API_KEY", ""),
			BaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Model:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			Timeout: getEnvDuration("COMPLETION_TIMEOUT", 60*time.Second),
		},
		Slack: SlackConfig{
			BotToken: getEnv("SLACK_BOT_TOKEN", ""),
			AppToken: getEnv("SLACK_APP_TOKEN", ""),
		},
		SessionMaxTurns:   getEnvInt("SESSION_MAX_TURNS", 200),
		ThreadLockTimeout: getEnvDuration("THREAD_LOCK_TIMEOUT", 30*time.Second),
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
	if c.PersonasPath == "" {
		return fmt.Errorf("PERSONAS_PATH cannot be empty")
	}
	if c.Completion.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY cannot be empty")
	}
	if c.SessionMaxTurns <= 1 {
		return fmt.Errorf("SESSION_MAX_TURNS must be > 1")
	}
	if c.Slack.Enabled() && c.Slack.BotToken == "" {
		return fmt.Errorf("SLACK_BOT_TOKEN required when SLACK_APP_TOKEN is set")
	}
	return nil
}

// Enabled reports whether the Slack transport should start.
func (s SlackConfig) Enabled() bool {
	return s.AppToken != ""
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
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
