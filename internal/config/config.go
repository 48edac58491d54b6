// Package config handles gmbot configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./gmbot.yaml, ~/.config/gmbot/gmbot.yaml, /etc/gmbot/gmbot.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"gmbot.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "gmbot", "gmbot.yaml"))
	}

	paths = append(paths, "/etc/gmbot/gmbot.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all gmbot configuration.
type Config struct {
	Twitter     TwitterConfig `yaml:"twitter"`
	OpenAI      OpenAIConfig  `yaml:"openai"`
	Storage     StorageConfig `yaml:"storage"`
	Engage      EngageConfig  `yaml:"engage"`
	Personality string        `yaml:"personality"`
	LogLevel    string        `yaml:"log_level"`
}

// TwitterConfig defines the platform credentials. OAuth 1.0a user context
// is required: app-only bearer tokens cannot post replies or likes.
type TwitterConfig struct {
	APIKey       string `yaml:"api_key"`
	APISecret    string `yaml:"api_secret"`
	AccessToken  string `yaml:"access_token"`
	AccessSecret string `yaml:"access_secret"`
}

// OpenAIConfig defines the language-model API settings.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"` // override for compatible endpoints; default api.openai.com
}

// StorageConfig defines where bot state is persisted.
//
// The file backend is always available. If redis.addr is set, Redis is the
// authoritative store and the local file becomes a best-effort backup.
// If sqlite_path is set (and redis is not), SQLite is used instead of the
// JSON file.
type StorageConfig struct {
	FilePath   string      `yaml:"file_path"`
	SQLitePath string      `yaml:"sqlite_path"`
	Redis      RedisConfig `yaml:"redis"`
}

// RedisConfig defines the remote key-value backend (e.g. Upstash).
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

// EngageConfig defines the decision-pipeline knobs. Every magic number of
// the ranking and admission policy is exposed here rather than hardcoded.
type EngageConfig struct {
	Query           string  `yaml:"query"`
	ReplyBudget     int     `yaml:"reply_budget"`
	SearchCap       int     `yaml:"search_cap"`
	MinFollowers    int64   `yaml:"min_followers"`
	LowValueCutoff  int64   `yaml:"low_value_cutoff"`
	HighValueShare  float64 `yaml:"high_value_share"` // fraction of remaining budget reserved for high-value targets
	CooldownHours   int     `yaml:"cooldown_hours"`
	GraphTTLHours   int     `yaml:"graph_ttl_hours"`
	GraphMaxPages   int     `yaml:"graph_max_pages"`
	ScoreAgeMinutes int     `yaml:"score_age_minutes"`
	MetricsBatch    int     `yaml:"metrics_batch"`
	AutoLike        *bool   `yaml:"auto_like"`
	MaxReplyLen     int     `yaml:"max_reply_len"`

	// Pacing delays, milliseconds. Replies get a short human-cadence pause;
	// likes have a much stricter upstream budget and wait longer.
	ReplyDelayMinMs int `yaml:"reply_delay_min_ms"`
	ReplyDelayMaxMs int `yaml:"reply_delay_max_ms"`
	PageDelayMinMs  int `yaml:"page_delay_min_ms"`
	PageDelayMaxMs  int `yaml:"page_delay_max_ms"`
	LikeDelayMinMs  int `yaml:"like_delay_min_ms"`
	LikeDelayMaxMs  int `yaml:"like_delay_max_ms"`
}

// Load reads configuration from a YAML file, applies environment-variable
// fallbacks for credentials, and fills in defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	cfg.applyEnvFallbacks()
	return cfg, nil
}

// Default returns a default configuration. The engagement knobs mirror the
// values the bot has always run with; see DESIGN.md for their rationale.
func Default() *Config {
	autoLike := true
	return &Config{
		OpenAI: OpenAIConfig{
			Model: "gpt-4o",
		},
		Storage: StorageConfig{
			FilePath: "storage.json",
			Redis:    RedisConfig{Key: "gmbot_state"},
		},
		Engage: EngageConfig{
			Query:           "(gm OR gn) -is:reply -is:retweet -has:links lang:en",
			ReplyBudget:     10,
			SearchCap:       15,
			MinFollowers:    500,
			LowValueCutoff:  50,
			HighValueShare:  0.7,
			CooldownHours:   48,
			GraphTTLHours:   24,
			GraphMaxPages:   10,
			ScoreAgeMinutes: 60,
			MetricsBatch:    100,
			AutoLike:        &autoLike,
			MaxReplyLen:     140,
			ReplyDelayMinMs: 2000,
			ReplyDelayMaxMs: 5000,
			PageDelayMinMs:  1000,
			PageDelayMaxMs:  2000,
			LikeDelayMinMs:  20000,
			LikeDelayMaxMs:  30000,
		},
		Personality: "friendly",
		LogLevel:    "info",
	}
}

// applyEnvFallbacks fills empty credential fields from the environment,
// matching the variable names the bot's deploy jobs have always used.
func (c *Config) applyEnvFallbacks() {
	envOr(&c.Twitter.APIKey, "X_API_KEY")
	envOr(&c.Twitter.APISecret, "X_API_SECRET")
	envOr(&c.Twitter.AccessToken, "X_ACCESS_TOKEN")
	envOr(&c.Twitter.AccessSecret, "X_ACCESS_SECRET")
	envOr(&c.OpenAI.APIKey, "OPENAI_API_KEY")
	envOr(&c.Storage.Redis.Addr, "REDIS_ADDR")
	envOr(&c.Storage.Redis.Password, "REDIS_PASSWORD")
}

func envOr(dst *string, key string) {
	if *dst == "" {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
}

// ValidateLive checks that the credentials required for a live (non-dry,
// non-offline) run are present. Returns a list of missing settings.
func (c *Config) ValidateLive(offline bool) []string {
	var missing []string
	if c.Twitter.APIKey == "" {
		missing = append(missing, "twitter.api_key (X_API_KEY)")
	}
	if c.Twitter.APISecret == "" {
		missing = append(missing, "twitter.api_secret (X_API_SECRET)")
	}
	if c.Twitter.AccessToken == "" {
		missing = append(missing, "twitter.access_token (X_ACCESS_TOKEN)")
	}
	if c.Twitter.AccessSecret == "" {
		missing = append(missing, "twitter.access_secret (X_ACCESS_SECRET)")
	}
	if !offline && c.OpenAI.APIKey == "" {
		missing = append(missing, "openai.api_key (OPENAI_API_KEY)")
	}
	return missing
}
