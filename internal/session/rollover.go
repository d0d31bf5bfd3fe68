package session

import (
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/goodtune/voicetime/internal/metrics"
	"github.com/rs/zerolog"
)

// RolloverScheduler fires at each midnight of the reference timezone. Day
// buckets are resolved at merge time, so the rollover only logs sessions
// spanning the boundary and clears the total-time cache.
type RolloverScheduler struct {
	tracker    *Tracker
	aggregator *Aggregator
	clock      quartz.Clock
	location   *time.Location
	logger     zerolog.Logger

	mu      sync.Mutex
	timer   *quartz.Timer
	stopped bool
}

// NewRolloverScheduler creates a new rollover scheduler
func NewRolloverScheduler(tracker *Tracker, aggregator *Aggregator, clock quartz.Clock, location *time.Location, logger zerolog.Logger) *RolloverScheduler {
	if clock == nil {
		clock = quartz.NewReal()
	}
	if location == nil {
		location = time.UTC
	}
	return &RolloverScheduler{
		tracker:    tracker,
		aggregator: aggregator,
		clock:      clock,
		location:   location,
		logger:     logger.With().Str("component", "rollover-scheduler").Logger(),
	}
}

// Start schedules the first rollover
func (rs *RolloverScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.scheduleLocked()
	rs.logger.Info().
		Str("timezone", rs.location.String()).
		Msg("Day rollover scheduler started")
}

// Stop cancels the pending rollover
func (rs *RolloverScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.stopped = true
	if rs.timer != nil {
		rs.timer.Stop()
	}
	rs.logger.Info().Msg("Day rollover scheduler stopped")
}

// NextRollover returns the next midnight in the reference timezone strictly
// after now.
func NextRollover(now time.Time, loc *time.Location) time.Time {
	return Day(now, loc).AddDate(0, 0, 1)
}

func (rs *RolloverScheduler) scheduleLocked() {
	if rs.stopped {
		return
	}
	now := rs.clock.Now("rollover", "schedule")
	next := NextRollover(now, rs.location)
	wait := next.Sub(now)

	rs.logger.Debug().
		Time("next_rollover", next).
		Dur("wait_duration", wait).
		Msg("Scheduled next day rollover")

	rs.timer = rs.clock.AfterFunc(wait, rs.rollover, "rollover")
}

func (rs *RolloverScheduler) rollover() {
	carried := rs.tracker.Len()
	cleared := rs.aggregator.ResetCache()
	metrics.DayRollovers.Inc()

	rs.logger.Info().
		Str("day", Day(rs.clock.Now("rollover", "fire"), rs.location).Format("2006-01-02")).
		Int("carried_sessions", carried).
		Int("cleared_cache_entries", cleared).
		Msg("Day rollover")

	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.scheduleLocked()
}
