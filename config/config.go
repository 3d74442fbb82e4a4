package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/samber/lo"
)

// discordMessageLimit is the most characters Discord accepts in one message.
const discordMessageLimit = 2000

// Config holds all application configuration
type Config struct {
	Discord   DiscordConfig   `json:"discord"`
	YouTube   YouTubeConfig   `json:"youtube"`
	Audio     AudioConfig     `json:"audio"`
	Session   SessionConfig   `json:"session"`
	Queue     QueueConfig     `json:"queue"`
	RateLimit RateLimitConfig `json:"rate_limit"`
	Logging   LoggingConfig   `json:"logging"`
	Features  FeatureConfig   `json:"features"`
}

// DiscordConfig holds Discord-specific configuration
type DiscordConfig struct {
	Token            string `json:"token"`
	CommandPrefix    string `json:"command_prefix"`
	MaxMessageLength int    `json:"max_message_length"`
	// RoleLookupRoles may use about_role. Empty lets everyone use it.
	RoleLookupRoles []string `json:"role_lookup_roles"`
	JDImagePath     string   `json:"jd_image_path"`
}

// YouTubeConfig holds lookup configuration. The API key is optional; without
// it search and playlists go through the keyless clients.
type YouTubeConfig struct {
	APIKey         string        `json:"api_key"`
	RequestTimeout time.Duration `json:"request_timeout"`
	EnableFallback bool          `json:"enable_fallback"`
}

// AudioConfig holds encoder configuration
type AudioConfig struct {
	Bitrate          int    `json:"bitrate"`
	Volume           int    `json:"volume"`
	FrameRate        int    `json:"frame_rate"`
	FrameDuration    int    `json:"frame_duration"`
	CompressionLevel int    `json:"compression_level"`
	PacketLoss       int    `json:"packet_loss"`
	BufferedFrames   int    `json:"buffered_frames"`
	EnableVBR        bool   `json:"enable_vbr"`
	Application      string `json:"application"`
}

// SessionConfig bounds voice session operations
type SessionConfig struct {
	ResolveTimeout  time.Duration `json:"resolve_timeout"`
	JoinTimeout     time.Duration `json:"join_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout"`
	CleanupInterval time.Duration `json:"cleanup_interval"`
}

// QueueConfig holds queue configuration
type QueueConfig struct {
	MaxPlaylistSize int `json:"max_playlist_size"`
	HistorySize     int `json:"history_size"`
}

// RateLimitConfig configures the per-user bucket of the music commands
type RateLimitConfig struct {
	Window time.Duration `json:"window"`
	Burst  int           `json:"burst"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level            string `json:"level"`
	OutputFile       string `json:"output_file"`
	MaxFileSize      int64  `json:"max_file_size"`
	MaxBackups       int    `json:"max_backups"`
	MaxAge           int    `json:"max_age"`
	EnableConsole    bool   `json:"enable_console"`
	EnableFile       bool   `json:"enable_file"`
	EnableJSON       bool   `json:"enable_json"`
	EnableStackTrace bool   `json:"enable_stack_trace"`
}

// FeatureConfig holds feature flags
type FeatureConfig struct {
	EnableMetrics      bool `json:"enable_metrics"`
	EnableRateLimiting bool `json:"enable_rate_limiting"`
	EnableIdleCleanup  bool `json:"enable_idle_cleanup"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Discord: DiscordConfig{
			CommandPrefix:    "!",
			MaxMessageLength: 2000,
			RoleLookupRoles:  []string{"Sugar Daddy", "Pachołek"},
			JDImagePath:      "media/dis.png",
		},
		YouTube: YouTubeConfig{
			RequestTimeout: 30 * time.Second,
			EnableFallback: true,
		},
		Audio: AudioConfig{
			Bitrate:          96,
			Volume:           256,
			FrameRate:        48000,
			FrameDuration:    20,
			CompressionLevel: 10,
			PacketLoss:       1,
			BufferedFrames:   200,
			EnableVBR:        true,
			Application:      "lowdelay",
		},
		Session: SessionConfig{
			ResolveTimeout:  2 * time.Minute,
			JoinTimeout:     10 * time.Second,
			IdleTimeout:     30 * time.Minute,
			CleanupInterval: 5 * time.Minute,
		},
		Queue: QueueConfig{
			MaxPlaylistSize: 100,
			HistorySize:     25,
		},
		RateLimit: RateLimitConfig{
			Window: 5 * time.Second,
			Burst:  2,
		},
		Logging: LoggingConfig{
			Level:            "INFO",
			OutputFile:       "logs/alfred.log",
			MaxFileSize:      100 * 1024 * 1024,
			MaxBackups:       5,
			MaxAge:           30,
			EnableConsole:    true,
			EnableFile:       true,
			EnableStackTrace: false,
		},
		Features: FeatureConfig{
			EnableMetrics:      false,
			EnableRateLimiting: true,
			EnableIdleCleanup:  true,
		},
	}
}

// LoadConfig reads .env files (default ".env") into the environment, then
// applies the environment on top of DefaultConfig. Variables already set in
// the environment win over .env values.
func LoadConfig(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	config := DefaultConfig()
	if err := config.applyEnv(); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) applyEnv() error {
	var errs []error

	setString(&c.Discord.Token, "DISCORD_TOKEN", "BOT_TOKEN")
	setString(&c.Discord.CommandPrefix, "BOT_PREFIX")
	setString(&c.YouTube.APIKey, "YT_TOKEN", "YOUTUBE_API_KEY")
	setString(&c.Logging.OutputFile, "LOG_FILE")
	setString(&c.Discord.JDImagePath, "JD_IMAGE")
	setList(&c.Discord.RoleLookupRoles, "ROLE_LOOKUP_ROLES")

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Logging.Level = strings.ToUpper(level)
	}
	if os.Getenv("DEBUG") == "true" {
		c.Logging.Level = "DEBUG"
	}

	errs = append(errs,
		setDuration(&c.Session.ResolveTimeout, "RESOLVE_TIMEOUT"),
		setDuration(&c.Session.JoinTimeout, "JOIN_TIMEOUT"),
		setDuration(&c.Session.IdleTimeout, "IDLE_TIMEOUT"),
		setDuration(&c.Session.CleanupInterval, "CLEANUP_INTERVAL"),
		setInt(&c.Discord.MaxMessageLength, "MAX_MESSAGE_LENGTH"),
		setDuration(&c.RateLimit.Window, "RATE_LIMIT_WINDOW"),
		setInt(&c.RateLimit.Burst, "RATE_LIMIT_BURST"),
		setInt(&c.Queue.MaxPlaylistSize, "MAX_PLAYLIST_SIZE"),
		setInt(&c.Queue.HistorySize, "HISTORY_SIZE"),
		setInt(&c.Audio.Bitrate, "AUDIO_BITRATE"),
		setBool(&c.Features.EnableMetrics, "ENABLE_METRICS"),
		setBool(&c.Features.EnableRateLimiting, "ENABLE_RATE_LIMITING"),
		setBool(&c.Features.EnableIdleCleanup, "ENABLE_IDLE_CLEANUP"),
		setBool(&c.YouTube.EnableFallback, "ENABLE_FALLBACK"),
		setBool(&c.Logging.EnableFile, "LOG_TO_FILE"),
		setBool(&c.Logging.EnableJSON, "LOG_JSON"),
	)

	return errors.Join(errs...)
}

func setString(dst *string, keys ...string) {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			*dst = v
			return
		}
	}
}

// setList splits a comma separated variable, dropping blank items.
func setList(dst *[]string, key string) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	items := lo.Map(strings.Split(v, ","), func(item string, _ int) string { return strings.TrimSpace(item) })
	*dst = lo.Compact(items)
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []string

	if c.Discord.Token == "" {
		errs = append(errs, "Discord token (DISCORD_TOKEN) is required")
	}
	if strings.TrimSpace(c.Discord.CommandPrefix) == "" {
		errs = append(errs, "command prefix must not be empty")
	}
	if c.Discord.MaxMessageLength < 100 || c.Discord.MaxMessageLength > discordMessageLimit {
		errs = append(errs, fmt.Sprintf("max message length must be between 100 and %d", discordMessageLimit))
	}

	if c.Audio.Bitrate < 8 || c.Audio.Bitrate > 128 {
		errs = append(errs, "audio bitrate must be between 8 and 128 kbps")
	}
	if c.Audio.Volume < 0 || c.Audio.Volume > 512 {
		errs = append(errs, "audio volume must be between 0 and 512")
	}
	if !lo.Contains([]int{20, 40, 60}, c.Audio.FrameDuration) {
		errs = append(errs, "audio frame duration must be 20, 40 or 60")
	}
	if !lo.Contains([]string{"audio", "voip", "lowdelay"}, c.Audio.Application) {
		errs = append(errs, "audio application must be one of: audio, voip, lowdelay")
	}

	if c.Session.ResolveTimeout <= 0 {
		errs = append(errs, "resolve timeout must be greater than 0")
	}
	if c.Session.JoinTimeout <= 0 {
		errs = append(errs, "join timeout must be greater than 0")
	}
	if c.Session.IdleTimeout <= 0 {
		errs = append(errs, "idle timeout must be greater than 0")
	}
	if c.Session.CleanupInterval <= 0 {
		errs = append(errs, "cleanup interval must be greater than 0")
	}

	if c.Queue.MaxPlaylistSize <= 0 {
		errs = append(errs, "max playlist size must be greater than 0")
	}

	if c.RateLimit.Window <= 0 || c.RateLimit.Burst <= 0 {
		errs = append(errs, "rate limit window and burst must be greater than 0")
	}

	validLogLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if !lo.Contains(validLogLevels, c.Logging.Level) {
		errs = append(errs, fmt.Sprintf("log level must be one of: %s", strings.Join(validLogLevels, ", ")))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetRedactedToken returns a redacted version of the token for logging
func (c *Config) GetRedactedToken() string {
	return redact(c.Discord.Token)
}

// GetRedactedAPIKey returns a redacted version of the API key for logging
func (c *Config) GetRedactedAPIKey() string {
	if c.YouTube.APIKey == "" {
		return ""
	}
	return redact(c.YouTube.APIKey)
}

func redact(secret string) string {
	if len(secret) < 8 {
		return "***"
	}
	return secret[:8] + "***"
}
