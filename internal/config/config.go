package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"
	// Embedded zone database so the reference timezone resolves on minimal hosts.
	_ "time/tzdata"

	"github.com/bwmarrin/snowflake"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	Discord  DiscordConfig  `mapstructure:"discord"`
	Tracking TrackingConfig `mapstructure:"tracking"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Server   ServerConfig   `mapstructure:"server"`
}

// DiscordConfig identifies the bot and the voice channel it watches
type DiscordConfig struct {
	Token          string `mapstructure:"token"`
	GuildID        string `mapstructure:"guild_id"`
	VoiceChannelID string `mapstructure:"voice_channel_id"`
}

// TrackingConfig defines session tracking settings
type TrackingConfig struct {
	Timezone        string `mapstructure:"timezone"`
	CacheSize       int    `mapstructure:"cache_size"`
	JobTimeout      string `mapstructure:"job_timeout"`
	ShutdownTimeout string `mapstructure:"shutdown_timeout"`
}

// NotifyConfig defines where notifications go. In bot mode the targets are
// channel IDs; in webhook mode they are webhook URLs.
type NotifyConfig struct {
	Mode             string `mapstructure:"mode"`
	JoinChannel      string `mapstructure:"join_channel"`
	LeaveChannel     string `mapstructure:"leave_channel"`
	TotalTimeChannel string `mapstructure:"total_time_channel"`
	SendTimeout      string `mapstructure:"send_timeout"`
	WebhookTimeout   string `mapstructure:"webhook_timeout"`
	WebhookRetries   int    `mapstructure:"webhook_retries"`
}

// StorageConfig defines storage backend settings
type StorageConfig struct {
	Type           string      `mapstructure:"type"`
	ConnectRetries int         `mapstructure:"connect_retries"`
	Mongo          MongoConfig `mapstructure:"mongo"`
	Redis          RedisConfig `mapstructure:"redis"`
}

// MongoConfig defines MongoDB connection settings
type MongoConfig struct {
	URI            string `mapstructure:"uri"`
	Database       string `mapstructure:"database"`
	ConnectTimeout string `mapstructure:"connect_timeout"`
}

// RedisConfig defines Redis connection settings
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	DialTimeout  string `mapstructure:"dial_timeout"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// ServerConfig defines the HTTP listener for metrics and the stats API
type ServerConfig struct {
	BindAddress string `mapstructure:"bind_address"`
	MetricsPort int    `mapstructure:"metrics_port"`
}

// Load loads configuration from a .env file, the config file and
// environment variables, in increasing order of precedence.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env file: %w", err)
	}

	v := viper.New()

	// Set defaults
	SetDefaults(v)

	// Configure viper
	if configPath != "" {
		v.SetConfigFile(configPath)
	}
	v.SetEnvPrefix("VOICETIME")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if configPath != "" {
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			// Config file not found, use defaults and environment variables
		}
	}

	// Unmarshal config
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate config
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// SetDefaults sets default configuration values. Every key the application
// reads has a default here, so AutomaticEnv can override any of them.
func SetDefaults(v *viper.Viper) {
	// Discord defaults
	v.SetDefault("discord.token", "")
	v.SetDefault("discord.guild_id", "")
	v.SetDefault("discord.voice_channel_id", "")

	// Tracking defaults
	v.SetDefault("tracking.timezone", "Asia/Bangkok")
	v.SetDefault("tracking.cache_size", 4096)
	v.SetDefault("tracking.job_timeout", "30s")
	v.SetDefault("tracking.shutdown_timeout", "10s")

	// Notification defaults
	v.SetDefault("notify.mode", "bot")
	v.SetDefault("notify.join_channel", "")
	v.SetDefault("notify.leave_channel", "")
	v.SetDefault("notify.total_time_channel", "")
	v.SetDefault("notify.send_timeout", "10s")
	v.SetDefault("notify.webhook_timeout", "10s")
	v.SetDefault("notify.webhook_retries", 0)

	// Storage defaults
	v.SetDefault("storage.type", "mongo")
	v.SetDefault("storage.connect_retries", 5)
	v.SetDefault("storage.mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("storage.mongo.database", "voicetime")
	v.SetDefault("storage.mongo.connect_timeout", "10s")
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", 6379)
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.pool_size", 10)
	v.SetDefault("storage.redis.min_idle_conns", 2)
	v.SetDefault("storage.redis.dial_timeout", "5s")
	v.SetDefault("storage.redis.read_timeout", "3s")
	v.SetDefault("storage.redis.write_timeout", "3s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 30)

	// Server defaults
	v.SetDefault("server.bind_address", "0.0.0.0")
	v.SetDefault("server.metrics_port", 9090)
}

// Defaults returns a configuration holding only default values.
func Defaults() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// ValidKeys returns the set of recognised configuration keys.
func ValidKeys() map[string]bool {
	v := viper.New()
	SetDefaults(v)

	keys := make(map[string]bool)
	for _, key := range v.AllKeys() {
		keys[key] = true
	}
	return keys
}

// Location resolves the reference timezone used for day buckets.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Tracking.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Tracking.Timezone, err)
	}
	return loc, nil
}

type idField struct {
	name     string
	value    string
	required bool
}

// validate validates the configuration
func validate(cfg *Config) error {
	if cfg.Discord.Token == "" {
		return errors.New("discord.token is required")
	}

	// Discord identifiers are snowflakes
	ids := []idField{
		{"discord.guild_id", cfg.Discord.GuildID, true},
		{"discord.voice_channel_id", cfg.Discord.VoiceChannelID, true},
	}
	if cfg.Notify.Mode == "bot" {
		ids = append(ids,
			idField{"notify.join_channel", cfg.Notify.JoinChannel, false},
			idField{"notify.leave_channel", cfg.Notify.LeaveChannel, false},
			idField{"notify.total_time_channel", cfg.Notify.TotalTimeChannel, false},
		)
	}
	for _, id := range ids {
		if id.value == "" {
			if id.required {
				return fmt.Errorf("%s is required", id.name)
			}
			continue
		}
		if _, err := snowflake.ParseString(id.value); err != nil {
			return fmt.Errorf("%s is not a valid Discord ID: %q", id.name, id.value)
		}
	}

	if _, err := cfg.Location(); err != nil {
		return err
	}

	switch cfg.Notify.Mode {
	case "bot", "webhook":
	default:
		return fmt.Errorf("invalid notify mode: %q (must be bot or webhook)", cfg.Notify.Mode)
	}

	switch cfg.Storage.Type {
	case "mongo", "redis", "memory":
	default:
		return fmt.Errorf("invalid storage type: %q (must be mongo, redis or memory)", cfg.Storage.Type)
	}

	durations := map[string]string{
		"tracking.job_timeout":          cfg.Tracking.JobTimeout,
		"tracking.shutdown_timeout":     cfg.Tracking.ShutdownTimeout,
		"notify.send_timeout":           cfg.Notify.SendTimeout,
		"notify.webhook_timeout":        cfg.Notify.WebhookTimeout,
		"storage.mongo.connect_timeout": cfg.Storage.Mongo.ConnectTimeout,
		"storage.redis.dial_timeout":    cfg.Storage.Redis.DialTimeout,
		"storage.redis.read_timeout":    cfg.Storage.Redis.ReadTimeout,
		"storage.redis.write_timeout":   cfg.Storage.Redis.WriteTimeout,
	}
	if cfg.Notify.WebhookRetries < 0 {
		return fmt.Errorf("invalid notify.webhook_retries: %d", cfg.Notify.WebhookRetries)
	}
	for name, value := range durations {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}

	if cfg.Server.MetricsPort < 0 || cfg.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.Server.MetricsPort)
	}

	switch cfg.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid logging format: %q (must be json or text)", cfg.Logging.Format)
	}

	return nil
}
