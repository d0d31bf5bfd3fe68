package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/coder/quartz"
	"github.com/goodtune/voicetime/internal/api"
	"github.com/goodtune/voicetime/internal/config"
	"github.com/goodtune/voicetime/internal/dispatch"
	"github.com/goodtune/voicetime/internal/failure"
	"github.com/goodtune/voicetime/internal/gateway"
	"github.com/goodtune/voicetime/internal/metrics"
	"github.com/goodtune/voicetime/internal/notify"
	"github.com/goodtune/voicetime/internal/session"
	"github.com/goodtune/voicetime/internal/statuslog"
	"github.com/goodtune/voicetime/internal/storage"
	"github.com/goodtune/voicetime/internal/storage/memory"
	"github.com/goodtune/voicetime/internal/storage/mongo"
	"github.com/goodtune/voicetime/internal/storage/redis"
	"github.com/goodtune/voicetime/internal/systemd"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start voicetime server",
	Long:  `Connect to the Discord gateway, track the configured voice channel and serve metrics and the stats API.`,
	RunE:  runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Setup logger
	logger, logCloser := setupLogger(cfg.Logging)
	defer func() { _ = logCloser.Close() }()
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Msg("Starting voicetime")

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	// Check for systemd socket activation
	sdListeners, err := systemd.GetListeners()
	if err != nil {
		return fmt.Errorf("failed to get systemd listeners: %w", err)
	}
	if sdListeners.Activated {
		logger.Info().Msg("Running with systemd socket activation")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize storage
	store, err := openStorage(ctx, cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close storage")
		}
	}()

	logger.Info().Str("type", cfg.Storage.Type).Msg("Storage initialized")

	clock := quartz.NewReal()
	reporter := failure.NewLogReporter(logger)

	discord, err := gateway.NewClient(cfg.Discord.Token, logger)
	if err != nil {
		return err
	}

	sender, err := newSender(cfg.Notify, discord)
	if err != nil {
		return err
	}
	notifier := notify.NewDispatcher(sender, notify.Targets{
		Join:      cfg.Notify.JoinChannel,
		Leave:     cfg.Notify.LeaveChannel,
		TotalTime: cfg.Notify.TotalTimeChannel,
	}, loc, parseDuration(cfg.Notify.SendTimeout, notify.DefaultSendTimeout), logger)

	aggregator, err := session.NewAggregator(store, notifier, reporter, session.AggregatorConfig{
		Location:  loc,
		CacheSize: cfg.Tracking.CacheSize,
		Clock:     clock,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize aggregator: %w", err)
	}

	statusLog := statuslog.New(store.Toggles(), loc, logger)

	tracker := session.NewTracker(session.Target{
		GuildID:   cfg.Discord.GuildID,
		ChannelID: cfg.Discord.VoiceChannelID,
	}, store, aggregator, statusLog, notifier, reporter, logger)

	executor := dispatch.New(logger)
	adapter := gateway.NewAdapter(tracker, executor, gateway.AdapterConfig{
		Clock:      clock,
		Location:   loc,
		JobTimeout: parseDuration(cfg.Tracking.JobTimeout, gateway.DefaultJobTimeout),
	}, logger)
	discord.SetAdapter(adapter)

	rollover := session.NewRolloverScheduler(tracker, aggregator, clock, loc, logger)
	rollover.Start()
	defer rollover.Stop()

	logger.Info().
		Str("guild_id", cfg.Discord.GuildID).
		Str("voice_channel_id", cfg.Discord.VoiceChannelID).
		Str("timezone", loc.String()).
		Msg("Session tracker initialized")

	// Initialize Metrics Server with the stats API mounted alongside
	metricsAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.MetricsPort)
	metricsServer := metrics.NewServer(metricsAddr, logger)
	if sdListeners.Activated && sdListeners.Metrics != nil {
		metricsServer.SetListener(sdListeners.Metrics)
	}
	api.NewHandler(tracker, aggregator, statusLog, store, loc, logger).Register(metricsServer.Router())

	if err := discord.Open(); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(metricsServer.Serve)
	g.Go(func() error {
		return systemd.RunWatchdog(gctx, clock, logger)
	})

	logger.Info().Msg("voicetime startup complete")
	logger.Info().Msgf("Metrics: http://%s/metrics", metricsAddr)

	// Notify systemd that we're ready
	if sent, err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd ready notification")
	} else if sent {
		logger.Debug().Msg("Sent systemd ready notification")
	}

	g.Go(func() error {
		<-gctx.Done()
		if ctx.Err() != nil {
			logger.Info().Msg("Shutdown signal received, gracefully stopping...")
		}

		if _, err := systemd.NotifyStopping(); err != nil {
			logger.Warn().Err(err).Msg("Failed to send systemd stopping notification")
		}

		// Stop intake first so no new work is queued
		if err := discord.Close(); err != nil {
			logger.Error().Err(err).Msg("Error closing Discord gateway")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(),
			parseDuration(cfg.Tracking.ShutdownTimeout, 10*time.Second))
		defer cancel()
		if err := executor.Close(shutdownCtx); err != nil {
			logger.Warn().Err(err).Int("pending", executor.Pending()).Msg("Shutdown timed out with queued events")
		}

		dropped := tracker.Shutdown()
		logger.Info().Int("open_sessions", dropped).Msg("Discarded open sessions")

		return metricsServer.Stop()
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info().Msg("voicetime stopped")
	return nil
}

// openStorage connects to the configured backend, retrying with exponential
// backoff while it is unreachable.
func openStorage(ctx context.Context, cfg config.StorageConfig, logger zerolog.Logger) (storage.Store, error) {
	var store storage.Store

	open := func() error {
		var err error
		switch cfg.Type {
		case "mongo", "":
			store, err = mongo.Open(ctx, cfg.Mongo)
		case "redis":
			store, err = redis.Open(cfg.Redis)
		case "memory":
			store = memory.New()
		default:
			return backoff.Permanent(fmt.Errorf("unsupported storage type: %s", cfg.Type))
		}
		if errors.Is(err, storage.ErrInvalidConfig) {
			return backoff.Permanent(err)
		}
		return err
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 500 * time.Millisecond
	eb.MaxInterval = 10 * time.Second

	retries := cfg.ConnectRetries
	if retries < 0 {
		retries = 0
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(retries)), ctx)

	err := backoff.RetryNotify(open, policy, func(err error, wait time.Duration) {
		logger.Warn().Err(err).Dur("retry_in", wait).Str("type", cfg.Type).Msg("Storage unavailable, retrying")
	})
	if err != nil {
		return nil, err
	}
	return store, nil
}

// newSender picks the message transport for notifications.
func newSender(cfg config.NotifyConfig, discord *gateway.Client) (notify.Sender, error) {
	switch cfg.Mode {
	case "bot", "":
		return discord, nil
	case "webhook":
		return notify.NewWebhookSender(notify.WebhookConfig{
			Timeout:  parseDuration(cfg.WebhookTimeout, 10*time.Second),
			RetryMax: cfg.WebhookRetries,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported notify mode: %s", cfg.Mode)
	}
}

// setupLogger configures the logger based on configuration. The returned
// closer releases the log file, if any.
func setupLogger(cfg config.LoggingConfig) (zerolog.Logger, io.Closer) {
	// Set log level
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)

	var out io.Writer = os.Stdout
	if cfg.Format == "text" {
		out = zerolog.ConsoleWriter{Out: os.Stdout}
	}

	var closer io.Closer = io.NopCloser(nil)
	if cfg.File != "" {
		file := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		// The file always gets JSON regardless of console format
		out = io.MultiWriter(out, file)
		closer = file
	}

	return zerolog.New(out).With().Timestamp().Logger(), closer
}

// parseDuration parses a duration string with a fallback
func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
