package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the bridge needs at startup. Values come from
// the environment, optionally seeded by .env / .env.local files.
type Config struct {
	ListenAddr    string
	LogLevel      string
	DBPath        string
	MaxConcurrent int
	WeChat        struct {
		Token     string
		AppID     string
		AppSecret string
		AESKey    string
	}
	LLM struct {
		BaseURL   string
		APIKey    string
		Model     string
		MaxTokens int
		Timeout   time.Duration
	}
	History struct {
		Limit    int
		Lookback time.Duration
		MaxGap   time.Duration
	}
	Dedup struct {
		Attempts int
		Delay    time.Duration
	}
}

// Load reads .env then .env.local (later files win), applies defaults,
// and overrides from the process environment.
func Load() (*Config, error) {
	// Missing files are fine; explicit env always takes precedence
	// because godotenv never overwrites variables that are already set.
	godotenv.Load(".env.local")
	godotenv.Load(".env")

	cfg := &Config{
		ListenAddr:    "0.0.0.0:80",
		LogLevel:      "info",
		DBPath:        "wxbridge.db",
		MaxConcurrent: 2,
	}
	cfg.LLM.BaseURL = "https://api.openai.com/v1"
	cfg.LLM.Model = "gpt-3.5-turbo"
	cfg.LLM.MaxTokens = 1024
	cfg.LLM.Timeout = 50 * time.Second
	cfg.History.Limit = 50
	cfg.History.Lookback = time.Hour
	cfg.History.MaxGap = 5 * time.Minute
	cfg.Dedup.Attempts = 10
	cfg.Dedup.Delay = 500 * time.Millisecond

	setString(&cfg.ListenAddr, "LISTEN_ADDR")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.DBPath, "DB_PATH")
	setString(&cfg.WeChat.Token, "WECHAT_TOKEN")
	setString(&cfg.WeChat.AppID, "WECHAT_APP_ID")
	setString(&cfg.WeChat.AppSecret, "WECHAT_APP_SECRET")
	setString(&cfg.WeChat.AESKey, "WECHAT_AES_KEY")
	setString(&cfg.LLM.APIKey, "OPENAI_API_KEY")
	setString(&cfg.LLM.BaseURL, "OPENAI_BASE_URL")
	setString(&cfg.LLM.Model, "OPENAI_MODEL")

	var err error
	if err = setInt(&cfg.MaxConcurrent, "MAX_CONCURRENT"); err != nil {
		return nil, err
	}
	if err = setInt(&cfg.LLM.MaxTokens, "OPENAI_MAX_TOKENS"); err != nil {
		return nil, err
	}
	if err = setInt(&cfg.History.Limit, "HISTORY_LIMIT"); err != nil {
		return nil, err
	}
	if err = setInt(&cfg.Dedup.Attempts, "DEDUP_ATTEMPTS"); err != nil {
		return nil, err
	}
	if err = setDuration(&cfg.LLM.Timeout, "COMPLETION_TIMEOUT"); err != nil {
		return nil, err
	}
	if err = setDuration(&cfg.History.Lookback, "HISTORY_LOOKBACK"); err != nil {
		return nil, err
	}
	if err = setDuration(&cfg.History.MaxGap, "HISTORY_MAX_GAP"); err != nil {
		return nil, err
	}
	if err = setDuration(&cfg.Dedup.Delay, "DEDUP_DELAY"); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate reports the first missing required setting.
func (c *Config) Validate() error {
	if c.WeChat.Token == "" {
		return fmt.Errorf("WECHAT_TOKEN is required")
	}
	if c.LLM.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = d
	return nil
}
