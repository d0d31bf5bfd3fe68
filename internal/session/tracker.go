package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/goodtune/voicetime/internal/device"
	"github.com/goodtune/voicetime/internal/failure"
	"github.com/goodtune/voicetime/internal/metrics"
	"github.com/goodtune/voicetime/internal/storage"
	"github.com/rs/zerolog"
)

// Tracker owns the table of active voice sessions.
//
// Every operation for one user runs under that user's lock from the table
// lookup through persistence and aggregation. Different users proceed in
// parallel; the table itself is guarded by mu.
type Tracker struct {
	target     Target
	joins      storage.JoinStore
	leaves     storage.LeaveStore
	aggregator *Aggregator
	statusLog  StatusLogger
	notifier   Notifier
	reporter   failure.Reporter
	logger     zerolog.Logger

	users    *keyLock
	sessions map[string]*ActiveSession // key: userID
	mu       sync.RWMutex
}

// NewTracker creates a new session tracker
func NewTracker(target Target, store storage.Store, aggregator *Aggregator, statusLog StatusLogger, notifier Notifier, reporter failure.Reporter, logger zerolog.Logger) *Tracker {
	return &Tracker{
		target:     target,
		joins:      store.Joins(),
		leaves:     store.Leaves(),
		aggregator: aggregator,
		statusLog:  statusLog,
		notifier:   notifier,
		reporter:   reporter,
		logger:     logger.With().Str("component", "session-tracker").Logger(),
		users:      newKeyLock(),
		sessions:   make(map[string]*ActiveSession),
	}
}

// Target returns the tracked guild and channel.
func (t *Tracker) Target() Target {
	return t.target
}

// OnJoin starts a session for a member seen in the target channel. It returns
// true when a new session was created and false when one was already active.
func (t *Tracker) OnJoin(ctx context.Context, sig JoinSignal) (bool, error) {
	if sig.GuildID != t.target.GuildID || sig.ChannelID != t.target.ChannelID {
		return false, ErrNotTarget
	}
	if sig.At.IsZero() {
		t.reporter.Report(ctx, failure.Validation, "join", ErrInvalidTimestamp)
		return false, ErrInvalidTimestamp
	}

	unlock := t.users.Lock(sig.UserID)
	defer unlock()

	if _, ok := t.Active(sig.UserID); ok {
		t.logger.Debug().
			Str("user_id", sig.UserID).
			Msg("Session already active, ignoring join")
		return false, nil
	}

	if sig.ServerName == "" || sig.UserID == "" {
		t.reporter.Report(ctx, failure.MissingContext, "join", ErrMissingContext)
		return false, ErrMissingContext
	}

	devices, ok := device.Classify(sig.Presence)
	if !ok {
		err := fmt.Errorf("user %s: %w", sig.UserID, ErrDeviceUnknown)
		t.reporter.Report(ctx, failure.MissingContext, "classify_devices", err)
		return false, ErrDeviceUnknown
	}

	session := &ActiveSession{
		UserID:     sig.UserID,
		Username:   sig.Username,
		GuildID:    sig.GuildID,
		ServerName: sig.ServerName,
		JoinedAt:   sig.At,
		Devices:    devices,
	}

	t.mu.Lock()
	t.sessions[sig.UserID] = session
	active := len(t.sessions)
	t.mu.Unlock()

	metrics.SessionsStarted.Inc()
	metrics.ActiveSessions.Set(float64(active))

	t.logger.Info().
		Str("user_id", sig.UserID).
		Str("username", sig.Username).
		Str("devices", devices.String()).
		Time("joined_at", sig.At).
		Msg("Started voice session")

	// Persistence and notification failures do not undo the session.
	if err := t.joins.Insert(ctx, storage.JoinRecord{
		UserID:     sig.UserID,
		Username:   sig.Username,
		ServerName: sig.ServerName,
		Timestamp:  sig.At,
		Devices:    devices,
	}); err != nil {
		t.reporter.Report(ctx, failure.Persistence, "insert_join", err)
	}

	if err := t.notifier.Join(ctx, sig.Username, sig.At, sig.ServerName, devices); err != nil {
		t.reporter.Report(ctx, failure.Notification, "send_join", err)
	}

	return true, nil
}

// OnLeave records a member leaving voice from the target channel and ends
// their session if one is active. It returns true when a session was ended.
func (t *Tracker) OnLeave(ctx context.Context, sig LeaveSignal) (bool, error) {
	if sig.GuildID != t.target.GuildID || sig.PrevChannelID != t.target.ChannelID || sig.ChannelID != "" {
		return false, ErrNotTarget
	}
	if sig.At.IsZero() {
		t.reporter.Report(ctx, failure.Validation, "leave", ErrInvalidTimestamp)
		return false, ErrInvalidTimestamp
	}
	if sig.ServerName == "" || sig.UserID == "" {
		t.reporter.Report(ctx, failure.MissingContext, "leave", ErrMissingContext)
		return false, ErrMissingContext
	}

	unlock := t.users.Lock(sig.UserID)
	defer unlock()

	if err := t.leaves.Insert(ctx, storage.LeaveRecord{
		UserID:     sig.UserID,
		Username:   sig.Username,
		ServerName: sig.ServerName,
		Timestamp:  sig.At,
	}); err != nil {
		t.reporter.Report(ctx, failure.Persistence, "insert_leave", err)
	}

	t.mu.Lock()
	session, ok := t.sessions[sig.UserID]
	delete(t.sessions, sig.UserID)
	active := len(t.sessions)
	t.mu.Unlock()

	if !ok {
		t.logger.Debug().
			Str("user_id", sig.UserID).
			Msg("No active session for leave, skipping aggregation")
		t.notifyLeave(ctx, sig)
		return false, nil
	}

	metrics.ActiveSessions.Set(float64(active))
	metrics.SessionsEnded.Inc()

	elapsed := sig.At.Sub(session.JoinedAt)
	if elapsed < 0 {
		t.logger.Warn().
			Str("user_id", sig.UserID).
			Time("joined_at", session.JoinedAt).
			Time("left_at", sig.At).
			Msg("Leave precedes join, clamping duration to zero")
		elapsed = 0
	}
	metrics.SessionDuration.Observe(elapsed.Seconds())

	t.logger.Info().
		Str("user_id", sig.UserID).
		Str("username", sig.Username).
		Dur("duration", elapsed).
		Msg("Ended voice session")

	// All writes complete before the first message is sent.
	total := t.aggregator.Aggregate(ctx, Ended{
		UserID:     session.UserID,
		Username:   sig.Username,
		ServerName: sig.ServerName,
		Devices:    session.Devices,
		JoinedAt:   session.JoinedAt,
		Duration:   elapsed,
	})

	t.notifyLeave(ctx, sig)
	t.aggregator.NotifyTotal(ctx, sig.Username, total)

	return true, nil
}

func (t *Tracker) notifyLeave(ctx context.Context, sig LeaveSignal) {
	if err := t.notifier.Leave(ctx, sig.Username, sig.At, sig.ServerName); err != nil {
		t.reporter.Report(ctx, failure.Notification, "send_leave", err)
	}
}

// OnToggle logs a voice flag change regardless of session state.
func (t *Tracker) OnToggle(ctx context.Context, sig ToggleSignal) error {
	if sig.At.IsZero() {
		t.reporter.Report(ctx, failure.Validation, "toggle", ErrInvalidTimestamp)
		return ErrInvalidTimestamp
	}
	if sig.UserID == "" || sig.Kind == "" {
		t.reporter.Report(ctx, failure.MissingContext, "toggle", ErrMissingContext)
		return ErrMissingContext
	}

	unlock := t.users.Lock(sig.UserID)
	defer unlock()

	metrics.ToggleEvents.WithLabelValues(string(sig.Kind)).Inc()

	if err := t.statusLog.Append(ctx, sig.UserID, sig.Username, sig.Kind, sig.At); err != nil {
		t.reporter.Report(ctx, failure.Persistence, "append_toggle", err)
	}
	return nil
}

// Active returns a copy of the user's active session.
func (t *Tracker) Active(userID string) (ActiveSession, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	session, ok := t.sessions[userID]
	if !ok {
		return ActiveSession{}, false
	}
	out := *session
	out.Devices = session.Devices.Clone()
	return out, true
}

// Snapshot returns copies of all active sessions ordered by join time.
func (t *Tracker) Snapshot() []ActiveSession {
	t.mu.RLock()
	out := make([]ActiveSession, 0, len(t.sessions))
	for _, session := range t.sessions {
		s := *session
		s.Devices = session.Devices.Clone()
		out = append(out, s)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].UserID < out[j].UserID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}

// Len returns the number of active sessions.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}

// Shutdown drops every active session. Sessions are not persisted across
// restarts.
func (t *Tracker) Shutdown() int {
	t.mu.Lock()
	lost := len(t.sessions)
	for userID, session := range t.sessions {
		t.logger.Warn().
			Str("user_id", userID).
			Str("username", session.Username).
			Dur("open_for", time.Since(session.JoinedAt)).
			Msg("Dropping active session on shutdown")
	}
	t.sessions = make(map[string]*ActiveSession)
	t.mu.Unlock()

	metrics.ActiveSessions.Set(0)
	t.logger.Info().Int("lost_sessions", lost).Msg("Session tracker stopped")
	return lost
}
