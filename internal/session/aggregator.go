package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/coder/quartz"
	"github.com/goodtune/voicetime/internal/failure"
	"github.com/goodtune/voicetime/internal/metrics"
	"github.com/goodtune/voicetime/internal/storage"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
)

// DefaultCacheSize bounds the number of users held in the total-time cache.
const DefaultCacheSize = 4096

// TotalNotifier is the part of Notifier the Aggregator needs.
type TotalNotifier interface {
	TotalTime(ctx context.Context, username string, total storage.Duration) error
}

// Aggregator merges ended sessions into day-bucketed totals.
type Aggregator struct {
	totals   storage.TotalStore
	notifier TotalNotifier
	reporter failure.Reporter
	clock    quartz.Clock
	location *time.Location
	logger   zerolog.Logger

	// last session length in minutes, one slot per user
	lastMinutes *lru.Cache[string, float64]
}

// AggregatorConfig holds aggregator configuration
type AggregatorConfig struct {
	Location  *time.Location
	CacheSize int
	Clock     quartz.Clock
}

// NewAggregator creates a new Aggregator
func NewAggregator(store storage.Store, notifier TotalNotifier, reporter failure.Reporter, config AggregatorConfig, logger zerolog.Logger) (*Aggregator, error) {
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.CacheSize <= 0 {
		config.CacheSize = DefaultCacheSize
	}
	if config.Clock == nil {
		config.Clock = quartz.NewReal()
	}

	cache, err := lru.New[string, float64](config.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create total-time cache: %w", err)
	}

	return &Aggregator{
		totals:      store.Totals(),
		notifier:    notifier,
		reporter:    reporter,
		clock:       config.Clock,
		location:    config.Location,
		logger:      logger.With().Str("component", "aggregator").Logger(),
		lastMinutes: cache,
	}, nil
}

// Breakdown splits d into whole hours, minutes within the hour and rounded
// seconds within the minute. Seconds may round up to 60; there is no carry.
func Breakdown(d time.Duration) storage.Duration {
	return breakdownMinutes(d.Minutes())
}

func breakdownMinutes(total float64) storage.Duration {
	whole := math.Floor(total)
	return storage.Duration{
		Hours:   int(math.Floor(total / 60)),
		Minutes: int(math.Floor(math.Mod(total, 60))),
		Seconds: int(math.Round((total - whole) * 60)),
	}
}

// Offset returns the duration as a time.Duration.
func Offset(d storage.Duration) time.Duration {
	return time.Duration(d.Hours)*time.Hour +
		time.Duration(d.Minutes)*time.Minute +
		time.Duration(d.Seconds)*time.Second
}

// Day returns the start of the calendar day containing t in loc.
func Day(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// Aggregate merges an ended session into today's record and caches its
// length. It returns the breakdown for the total-time notification. Errors are
// reported, never returned.
func (a *Aggregator) Aggregate(ctx context.Context, ended Ended) storage.Duration {
	total := Breakdown(ended.Duration)

	if err := a.merge(ctx, ended, total); err != nil {
		a.reporter.Report(ctx, failure.Persistence, "merge_daily_total", err)
	}

	a.lastMinutes.Add(ended.UserID, ended.Duration.Minutes())
	return total
}

// NotifyTotal sends the total-time message for a session already aggregated.
func (a *Aggregator) NotifyTotal(ctx context.Context, username string, total storage.Duration) {
	if err := a.notifier.TotalTime(ctx, username, total); err != nil {
		a.reporter.Report(ctx, failure.Notification, "send_total_time", err)
	}
}

func (a *Aggregator) merge(ctx context.Context, ended Ended, total storage.Duration) error {
	now := a.clock.Now("aggregator", "merge").In(a.location)
	today := Day(now, a.location)

	existing, err := a.totals.Find(ctx, ended.UserID, today)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("failed to find daily total: %w", err)
	}

	if existing != nil {
		joinTime := time.Unix(0, 0).UTC()
		if last := existing.LastEntry(); last != nil {
			joinTime = last.JoinTime
		}
		entry := storage.SessionEntry{
			Devices:  ended.Devices,
			Total:    total,
			JoinTime: joinTime.Add(Offset(total)),
		}
		if err := a.totals.AppendEntry(ctx, existing.ID, entry, ended.ServerName); err != nil {
			return fmt.Errorf("failed to append session entry: %w", err)
		}

		a.logger.Info().
			Str("user_id", ended.UserID).
			Str("username", ended.Username).
			Str("day", today.Format("2006-01-02")).
			Int("entries", len(existing.Sessions)+1).
			Msg("Updated daily total")
		return nil
	}

	record := &storage.DailyTotal{
		DiscordID:   ended.UserID,
		DiscordName: ended.Username,
		ServerName:  ended.ServerName,
		CreatedAt:   now,
		Sessions: []storage.SessionEntry{{
			Devices:  ended.Devices,
			Total:    total,
			JoinTime: time.Unix(0, 0).UTC(),
		}},
	}
	if err := a.totals.Create(ctx, record); err != nil {
		return fmt.Errorf("failed to create daily total: %w", err)
	}

	a.logger.Info().
		Str("user_id", ended.UserID).
		Str("username", ended.Username).
		Str("day", today.Format("2006-01-02")).
		Msg("Created daily total")
	return nil
}

// LastSessionMinutes returns the cached length of the user's most recent
// session.
func (a *Aggregator) LastSessionMinutes(userID string) (float64, bool) {
	return a.lastMinutes.Peek(userID)
}

// ResetCache drops every cached session length.
func (a *Aggregator) ResetCache() int {
	n := a.lastMinutes.Len()
	a.lastMinutes.Purge()
	metrics.CacheResets.Inc()
	return n
}
