// Package config resolves the agent's inputs and settings from the
// environment, optionally seeded from a .env file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultModel        = "gpt-4.1-mini"
	DefaultPrompt       = "List the worksheets and tables that appear in this workbook."
	DefaultPollInterval = time.Second

	// LM Studio's OpenAI-compatible endpoint, used by chat mode.
	DefaultChatBaseURL = "http://localhost:1234/v1"
	DefaultChatModel   = "local-model"
	DefaultChatAPIKey  = "lm-studio"
)

// Config holds everything the CLI needs besides the two resolved paths.
type Config struct {
	Model        string
	Prompt       string
	PollInterval time.Duration
	// RunTimeout bounds the poll loop; zero means no bound.
	RunTimeout time.Duration
	LogLevel   slog.Level

	OpenAI OpenAIConfig
	Chat   ChatConfig
}

// OpenAIConfig is the remote agent service connection. Empty values defer to
// the SDK's own environment lookups.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	Organization string
}

// ChatConfig is the local chat-completions endpoint used by chat mode.
type ChatConfig struct {
	BaseURL string
	Model   string
	APIKey  string
}

// LoadDotEnv reads a .env file from the working directory when present.
// Variables already set in the environment are kept.
func LoadDotEnv() bool {
	return godotenv.Load() == nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Model:        getEnv("OPENAI_AGENT_MODEL", DefaultModel),
		Prompt:       getEnv("EXCEL_MCP_PROMPT", DefaultPrompt),
		PollInterval: DefaultPollInterval,
		OpenAI: OpenAIConfig{
			APIKey:       os.Getenv("OPENAI_API_KEY"),
			BaseURL:      os.Getenv("OPENAI_BASE_URL"),
			Organization: os.Getenv("OPENAI_ORG_ID"),
		},
		Chat: ChatConfig{
			BaseURL: getEnv("EXCEL_MCP_CHAT_BASE_URL", DefaultChatBaseURL),
			Model:   getEnv("EXCEL_MCP_CHAT_MODEL", DefaultChatModel),
			APIKey:  getEnv("EXCEL_MCP_CHAT_API_KEY", DefaultChatAPIKey),
		},
	}

	var err error
	if cfg.PollInterval, err = getEnvDuration("EXCEL_MCP_POLL_INTERVAL", DefaultPollInterval); err != nil {
		return nil, err
	}
	if cfg.RunTimeout, err = getEnvDuration("EXCEL_MCP_RUN_TIMEOUT", 0); err != nil {
		return nil, err
	}
	if cfg.LogLevel, err = ParseLogLevel(getEnv("EXCEL_MCP_LOG_LEVEL", "info")); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the loaded values.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("OPENAI_AGENT_MODEL cannot be empty")
	}
	if strings.TrimSpace(c.Prompt) == "" {
		return fmt.Errorf("EXCEL_MCP_PROMPT cannot be empty")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("EXCEL_MCP_POLL_INTERVAL must be > 0")
	}
	if c.RunTimeout < 0 {
		return fmt.Errorf("EXCEL_MCP_RUN_TIMEOUT must be >= 0")
	}
	return nil
}

// ParseLogLevel accepts debug, info, warn or error.
func ParseLogLevel(value string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return slog.LevelInfo, fmt.Errorf("EXCEL_MCP_LOG_LEVEL: %w", err)
	}
	return level, nil
}

// getEnv treats an empty value like an unset one.
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
