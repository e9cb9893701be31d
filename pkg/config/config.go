package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/adhocore/gronx"
	"github.com/caarlos0/env/v11"
)

// FlexibleStringSlice is a []string that also accepts JSON numbers,
// so allow lists can contain both "123" and 123.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	// Try []string first
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}

	// Try []interface{} to handle mixed types
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

type Config struct {
	Engine      EngineConfig       `json:"engine"`
	Channels    ChannelsConfig     `json:"channels"`
	Downloaders []DownloaderConfig `json:"downloaders"`
	RateLimits  RateLimitsConfig   `json:"rate_limits"`
	Log         LogConfig          `json:"log"`
	mu          sync.RWMutex
}

// EngineConfig holds the menu engine settings. SessionTimeoutMinutes and
// the allow lists are re-applied on reconfiguration without restart.
type EngineConfig struct {
	Enabled               bool                `json:"enabled" env:"QBREMOTE_ENGINE_ENABLED"`
	SessionTimeoutMinutes int                 `json:"session_timeout_minutes" env:"QBREMOTE_ENGINE_SESSION_TIMEOUT_MINUTES"`
	SweepSchedule         string              `json:"sweep_schedule" env:"QBREMOTE_ENGINE_SWEEP_SCHEDULE"`
	AllowedChannels       FlexibleStringSlice `json:"allowed_channels" env:"QBREMOTE_ENGINE_ALLOWED_CHANNELS"`
	AllowedSources        FlexibleStringSlice `json:"allowed_sources" env:"QBREMOTE_ENGINE_ALLOWED_SOURCES"`
	AllowedUsers          FlexibleStringSlice `json:"allowed_users" env:"QBREMOTE_ENGINE_ALLOWED_USERS"`
}

type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord"`
}

type TelegramConfig struct {
	Enabled   bool                `json:"enabled" env:"QBREMOTE_CHANNELS_TELEGRAM_ENABLED"`
	Token     string              `json:"token" env:"QBREMOTE_CHANNELS_TELEGRAM_TOKEN"`
	Proxy     string              `json:"proxy" env:"QBREMOTE_CHANNELS_TELEGRAM_PROXY"`
	AllowFrom FlexibleStringSlice `json:"allow_from" env:"QBREMOTE_CHANNELS_TELEGRAM_ALLOW_FROM"`
}

type DiscordConfig struct {
	Enabled   bool                `json:"enabled" env:"QBREMOTE_CHANNELS_DISCORD_ENABLED"`
	Token     string              `json:"token" env:"QBREMOTE_CHANNELS_DISCORD_TOKEN"`
	AllowFrom FlexibleStringSlice `json:"allow_from" env:"QBREMOTE_CHANNELS_DISCORD_ALLOW_FROM"`
}

// DownloaderConfig describes one qBittorrent instance reachable over its
// Web API.
type DownloaderConfig struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	Username string `json:"username"`
	Password string `json:"password"`
	Enabled  bool   `json:"enabled"`
}

type RateLimitsConfig struct {
	Enabled           bool `json:"enabled" env:"QBREMOTE_RATE_LIMITS_ENABLED"`
	CommandsPerMinute int  `json:"commands_per_minute" env:"QBREMOTE_RATE_LIMITS_COMMANDS_PER_MINUTE"`
	PerUserLimit      bool `json:"per_user_limit" env:"QBREMOTE_RATE_LIMITS_PER_USER_LIMIT"`
}

type LogConfig struct {
	Level string `json:"level" env:"QBREMOTE_LOG_LEVEL"`
	File  string `json:"file" env:"QBREMOTE_LOG_FILE"`
}

func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			Enabled:               true,
			SessionTimeoutMinutes: 10,
			SweepSchedule:         "*/5 * * * *",
			AllowedChannels:       FlexibleStringSlice{},
			AllowedSources:        FlexibleStringSlice{},
			AllowedUsers:          FlexibleStringSlice{},
		},
		Channels: ChannelsConfig{
			Telegram: TelegramConfig{
				Enabled:   false,
				Token:     "",
				AllowFrom: FlexibleStringSlice{},
			},
			Discord: DiscordConfig{
				Enabled:   false,
				Token:     "",
				AllowFrom: FlexibleStringSlice{},
			},
		},
		Downloaders: []DownloaderConfig{},
		RateLimits: RateLimitsConfig{
			Enabled:           false,
			CommandsPerMinute: 30,
			PerUserLimit:      true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := env.Parse(cfg); err != nil {
				return nil, err
			}
			return cfg, cfg.Validate()
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, cfg.Validate()
}

func SaveConfig(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Engine.SessionTimeoutMinutes <= 0 {
		return fmt.Errorf("engine.session_timeout_minutes must be positive, got %d", c.Engine.SessionTimeoutMinutes)
	}
	if c.Engine.SweepSchedule != "" {
		if !gronx.New().IsValid(c.Engine.SweepSchedule) {
			return fmt.Errorf("engine.sweep_schedule %q is not a valid cron expression", c.Engine.SweepSchedule)
		}
	}
	seen := make(map[string]struct{}, len(c.Downloaders))
	for _, d := range c.Downloaders {
		if d.Name == "" {
			return fmt.Errorf("downloaders entries require a name")
		}
		if _, dup := seen[d.Name]; dup {
			return fmt.Errorf("duplicate downloader name %q", d.Name)
		}
		seen[d.Name] = struct{}{}
		if d.Enabled && d.URL == "" {
			return fmt.Errorf("downloader %q is enabled but has no url", d.Name)
		}
	}
	return nil
}
