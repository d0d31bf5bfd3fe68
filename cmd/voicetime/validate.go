package main

import (
	"fmt"
	"io"
	"os"
	"reflect"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/goodtune/voicetime/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	validateDump bool
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long:  `Validate the voicetime configuration file for syntax and semantic errors.`,
	RunE:  runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&validateDump, "dump", false, "Dump full configuration with defaults highlighted")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration validation failed: %v\n", err)
		return err
	}

	// Check for unknown keys (always, not just with --dump)
	unknownKeys, err := findUnknownKeys(configPath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "⚠️  Warning: Could not check for unknown keys: %v\n", err)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "✅ Configuration is valid: %s\n", configPath)

	if len(unknownKeys) > 0 {
		red := color.New(color.FgRed, color.Bold)
		_, _ = fmt.Fprintln(out)
		_, _ = red.Fprintf(out, "⚠️  WARNING: Found %d unknown configuration key(s):\n", len(unknownKeys))
		for _, key := range unknownKeys {
			_, _ = red.Fprintf(out, "   - %s\n", key)
		}
		_, _ = fmt.Fprintln(out, "\nThese keys will be ignored and may indicate typos or deprecated settings.")
	}

	if validateDump {
		_, _ = fmt.Fprintln(out, "\n"+strings.Repeat("=", 80))
		_, _ = fmt.Fprintln(out, "FULL CONFIGURATION (values different from defaults are highlighted)")
		_, _ = fmt.Fprintln(out, strings.Repeat("=", 80))

		dumpConfig(out, cfg, config.Defaults(), unknownKeys)
	}

	return nil
}

// findUnknownKeys loads the config file and checks for unknown keys
func findUnknownKeys(configPath string) ([]string, error) {
	v := viper.New()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	return unknownKeys(v.AllKeys(), config.ValidKeys()), nil
}

func unknownKeys(keys []string, valid map[string]bool) []string {
	unknown := []string{}
	for _, key := range keys {
		if !valid[key] {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	return unknown
}

// dumper prints fields, highlighting values that differ from the defaults
type dumper struct {
	out      io.Writer
	modified *color.Color
	def      *color.Color
	section  *color.Color
}

func (d dumper) header(name string) {
	_, _ = d.section.Fprintf(d.out, "\n[%s]\n", name)
}

func (d dumper) field(name string, value, defaultValue interface{}) {
	valueStr := fmt.Sprintf("%v", value)

	if reflect.DeepEqual(value, defaultValue) {
		_, _ = d.def.Fprintf(d.out, "  %s = %s\n", name, valueStr)
	} else {
		_, _ = d.modified.Fprintf(d.out, "  %s = %s  (modified from default: %v)\n", name, valueStr, defaultValue)
	}
}

// dumpConfig dumps configuration with color highlighting for non-default values
func dumpConfig(out io.Writer, cfg, defaultCfg *config.Config, unknownKeys []string) {
	d := dumper{
		out:      out,
		modified: color.New(color.FgYellow, color.Bold),
		def:      color.New(color.FgGreen),
		section:  color.New(color.FgCyan, color.Bold),
	}

	d.header("discord")
	d.field("token", redactSecret(cfg.Discord.Token), redactSecret(defaultCfg.Discord.Token))
	d.field("guild_id", cfg.Discord.GuildID, defaultCfg.Discord.GuildID)
	d.field("voice_channel_id", cfg.Discord.VoiceChannelID, defaultCfg.Discord.VoiceChannelID)

	d.header("tracking")
	d.field("timezone", cfg.Tracking.Timezone, defaultCfg.Tracking.Timezone)
	d.field("cache_size", cfg.Tracking.CacheSize, defaultCfg.Tracking.CacheSize)
	d.field("job_timeout", cfg.Tracking.JobTimeout, defaultCfg.Tracking.JobTimeout)
	d.field("shutdown_timeout", cfg.Tracking.ShutdownTimeout, defaultCfg.Tracking.ShutdownTimeout)

	d.header("notify")
	d.field("mode", cfg.Notify.Mode, defaultCfg.Notify.Mode)
	d.field("join_channel", redactTarget(cfg.Notify.Mode, cfg.Notify.JoinChannel), defaultCfg.Notify.JoinChannel)
	d.field("leave_channel", redactTarget(cfg.Notify.Mode, cfg.Notify.LeaveChannel), defaultCfg.Notify.LeaveChannel)
	d.field("total_time_channel", redactTarget(cfg.Notify.Mode, cfg.Notify.TotalTimeChannel), defaultCfg.Notify.TotalTimeChannel)
	d.field("send_timeout", cfg.Notify.SendTimeout, defaultCfg.Notify.SendTimeout)
	d.field("webhook_timeout", cfg.Notify.WebhookTimeout, defaultCfg.Notify.WebhookTimeout)
	d.field("webhook_retries", cfg.Notify.WebhookRetries, defaultCfg.Notify.WebhookRetries)

	d.header("storage")
	d.field("type", cfg.Storage.Type, defaultCfg.Storage.Type)
	d.field("connect_retries", cfg.Storage.ConnectRetries, defaultCfg.Storage.ConnectRetries)
	d.header("storage.mongo")
	d.field("uri", redactURI(cfg.Storage.Mongo.URI), redactURI(defaultCfg.Storage.Mongo.URI))
	d.field("database", cfg.Storage.Mongo.Database, defaultCfg.Storage.Mongo.Database)
	d.field("connect_timeout", cfg.Storage.Mongo.ConnectTimeout, defaultCfg.Storage.Mongo.ConnectTimeout)
	d.header("storage.redis")
	d.field("host", cfg.Storage.Redis.Host, defaultCfg.Storage.Redis.Host)
	d.field("port", cfg.Storage.Redis.Port, defaultCfg.Storage.Redis.Port)
	d.field("password", redactSecret(cfg.Storage.Redis.Password), redactSecret(defaultCfg.Storage.Redis.Password))
	d.field("db", cfg.Storage.Redis.DB, defaultCfg.Storage.Redis.DB)
	d.field("pool_size", cfg.Storage.Redis.PoolSize, defaultCfg.Storage.Redis.PoolSize)
	d.field("min_idle_conns", cfg.Storage.Redis.MinIdleConns, defaultCfg.Storage.Redis.MinIdleConns)
	d.field("dial_timeout", cfg.Storage.Redis.DialTimeout, defaultCfg.Storage.Redis.DialTimeout)
	d.field("read_timeout", cfg.Storage.Redis.ReadTimeout, defaultCfg.Storage.Redis.ReadTimeout)
	d.field("write_timeout", cfg.Storage.Redis.WriteTimeout, defaultCfg.Storage.Redis.WriteTimeout)

	d.header("logging")
	d.field("level", cfg.Logging.Level, defaultCfg.Logging.Level)
	d.field("format", cfg.Logging.Format, defaultCfg.Logging.Format)
	d.field("file", cfg.Logging.File, defaultCfg.Logging.File)
	d.field("max_size_mb", cfg.Logging.MaxSizeMB, defaultCfg.Logging.MaxSizeMB)
	d.field("max_backups", cfg.Logging.MaxBackups, defaultCfg.Logging.MaxBackups)
	d.field("max_age_days", cfg.Logging.MaxAgeDays, defaultCfg.Logging.MaxAgeDays)

	d.header("server")
	d.field("bind_address", cfg.Server.BindAddress, defaultCfg.Server.BindAddress)
	d.field("metrics_port", cfg.Server.MetricsPort, defaultCfg.Server.MetricsPort)

	if len(unknownKeys) > 0 {
		red := color.New(color.FgRed, color.Bold)
		d.header("UNKNOWN KEYS - These will be ignored!")
		for _, key := range unknownKeys {
			_, _ = red.Fprintf(out, "  %s = (unknown key - check for typos)\n", key)
		}
	}

	_, _ = fmt.Fprintln(out, "\n"+strings.Repeat("=", 80))
}

// redactSecret redacts a secret if not empty
func redactSecret(secret string) string {
	if secret == "" {
		return ""
	}
	return "***REDACTED***"
}

// redactTarget hides webhook URLs, which embed their token
func redactTarget(mode, target string) string {
	if mode == "webhook" {
		return redactSecret(target)
	}
	return target
}

// redactURI hides credentials in a connection URI
func redactURI(uri string) string {
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok {
		return uri
	}
	at := strings.LastIndex(rest, "@")
	if at < 0 {
		return uri
	}
	return scheme + "://***REDACTED***@" + rest[at+1:]
}
