// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Discord   DiscordConfig           `yaml:"discord"`
	Downloads DownloadsConfig         `yaml:"downloads"`
	Playback  PlaybackConfig          `yaml:"playback"`
	Prefetch  PrefetchConfig          `yaml:"prefetch"`
	Reclaim   ReclaimConfig           `yaml:"reclaim"`
	Store     StoreConfig             `yaml:"store"`
	Server    ServerConfig            `yaml:"server"`
	Filters   map[string]FilterConfig `yaml:"filters"`
	Messages  MessagesConfig          `yaml:"messages"`
}

// DiscordConfig represents Discord connection settings.
type DiscordConfig struct {
	Token   string `yaml:"token" validate:"required"`
	GuildID string `yaml:"guild_id"` // Register commands to one guild instead of globally
	Status  string `yaml:"status" default:"/play"`
}

// DownloadsConfig represents the audio download settings.
type DownloadsConfig struct {
	Dir              string `yaml:"dir" default:"downloads"`
	AudioFormat      string `yaml:"audio_format" default:"mp3" validate:"oneof=mp3 opus m4a"`
	AudioQuality     string `yaml:"audio_quality" default:"128K"`
	Proxy            string `yaml:"proxy"`
	MaxAgeHours      int    `yaml:"max_age_hours" default:"24" validate:"gte=1,lte=168"`
	SweepIntervalMin int    `yaml:"sweep_interval_min" default:"60" validate:"gte=0"` // 0 disables the periodic sweep
}

// PlaybackConfig represents playback settings.
type PlaybackConfig struct {
	DefaultVolume  int    `yaml:"default_volume" default:"50" validate:"gte=0,lte=100"`
	HistorySize    int    `yaml:"history_size" default:"50" validate:"gte=1,lte=500"`
	IdleTimeoutSec int    `yaml:"idle_timeout_sec" default:"300" validate:"gte=0"`
	PlaylistLimit  int    `yaml:"playlist_limit" default:"25" validate:"gte=1,lte=50"`
	FFmpegPath     string `yaml:"ffmpeg_path" default:"ffmpeg"`
}

// PrefetchConfig represents background download timing.
type PrefetchConfig struct {
	IdlePollMs int `yaml:"idle_poll_ms" default:"2000" validate:"gte=1"`
	BusyPollMs int `yaml:"busy_poll_ms" default:"5000" validate:"gte=1"`
	CooldownMs int `yaml:"cooldown_ms" default:"3000" validate:"gte=1"`
}

// ReclaimConfig represents deferred deletion settings.
type ReclaimConfig struct {
	InitialDelayMs int `yaml:"initial_delay_ms" default:"2000" validate:"gte=0"`
	MaxAttempts    int `yaml:"max_attempts" default:"5" validate:"gte=1,lte=20"`
	BackoffStepMs  int `yaml:"backoff_step_ms" default:"3000" validate:"gte=1"`
}

// StoreConfig represents the settings database.
type StoreConfig struct {
	Path string `yaml:"path" default:"jukebot.db"`
}

// ServerConfig represents the status HTTP server. An empty address disables it.
type ServerConfig struct {
	Addr       string `yaml:"addr"`
	AdminToken string `yaml:"admin_token"` // Required in the X-Admin-Token header when set
}

// FilterConfig represents a filter's configuration.
type FilterConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// MessagesConfig represents user-facing messages for rejected requests.
type MessagesConfig struct {
	DefaultError          string `yaml:"default_error" default:"That song can't be added right now."`
	DuplicateSong         string `yaml:"duplicate_song" default:"That song is already in the queue."`
	DurationLimitExceeded string `yaml:"duration_limit_exceeded" default:"That song's length is outside the allowed range."`
	QueueFull             string `yaml:"queue_full" default:"The queue is full."`
	UserQueueLimit        string `yaml:"user_queue_limit" default:"You already have the maximum number of songs queued."`
	Blocked               string `yaml:"blocked" default:"You are not allowed to add songs."`
}

// Load loads configuration from a YAML file.
// An empty path skips the file and builds the configuration from environment variables and defaults.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read config file")
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.Wrap(err, "failed to parse config file")
		}
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("DISCORD_TOKEN"); v != "" {
		c.Discord.Token = v
	}
	if v := os.Getenv("DISCORD_GUILD_ID"); v != "" {
		c.Discord.GuildID = v
	}
	if v := os.Getenv("JUKEBOT_DOWNLOAD_DIR"); v != "" {
		c.Downloads.Dir = v
	}
	if v := os.Getenv("YOUTUBE_PROXY"); v != "" {
		c.Downloads.Proxy = v
	}
	if v := os.Getenv("JUKEBOT_ADMIN_TOKEN"); v != "" {
		c.Server.AdminToken = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}

// GetMessage returns the message for the given rejection code.
func (c *Config) GetMessage(code string) string {
	switch code {
	case "duplicate_song":
		return c.Messages.DuplicateSong
	case "duration_limit_exceeded":
		return c.Messages.DurationLimitExceeded
	case "queue_full":
		return c.Messages.QueueFull
	case "user_queue_limit":
		return c.Messages.UserQueueLimit
	case "blocked":
		return c.Messages.Blocked
	default:
		return c.Messages.DefaultError
	}
}

// IsFilterEnabled checks if a filter is enabled.
func (c *Config) IsFilterEnabled(filterName string) bool {
	if f, ok := c.Filters[filterName]; ok {
		return f.Enabled
	}
	return false
}

// FilterSettings returns the settings for a filter.
func (c *Config) FilterSettings(filterName string) map[string]any {
	if f, ok := c.Filters[filterName]; ok {
		return f.Settings
	}
	return nil
}

// IdleTimeout returns how long an idle voice connection is kept.
func (c PlaybackConfig) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutSec) * time.Second
}

// MaxAge returns the age after which downloaded files are swept.
func (c DownloadsConfig) MaxAge() time.Duration {
	return time.Duration(c.MaxAgeHours) * time.Hour
}

// SweepInterval returns the period of the age-based sweep.
func (c DownloadsConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMin) * time.Minute
}

// IdlePoll returns the wait when nothing needs fetching.
func (c PrefetchConfig) IdlePoll() time.Duration {
	return time.Duration(c.IdlePollMs) * time.Millisecond
}

// BusyPoll returns the wait when only the playing song is unfetched.
func (c PrefetchConfig) BusyPoll() time.Duration {
	return time.Duration(c.BusyPollMs) * time.Millisecond
}

// Cooldown returns the wait after each prefetch attempt.
func (c PrefetchConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownMs) * time.Millisecond
}

// InitialDelay returns the wait before the first delete attempt.
func (c ReclaimConfig) InitialDelay() time.Duration {
	return time.Duration(c.InitialDelayMs) * time.Millisecond
}

// BackoffStep returns the linear retry step.
func (c ReclaimConfig) BackoffStep() time.Duration {
	return time.Duration(c.BackoffStepMs) * time.Millisecond
}
