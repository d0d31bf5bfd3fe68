// Package statuslog appends voice status toggles to each user's event log.
package statuslog

import (
	"context"
	"fmt"
	"time"

	"github.com/goodtune/voicetime/internal/storage"
	"github.com/rs/zerolog"
)

// Logger writes toggle events through a ToggleStore.
type Logger struct {
	store    storage.ToggleStore
	location *time.Location
	logger   zerolog.Logger
}

// New creates a new status event logger. Timestamps are stored in loc.
func New(store storage.ToggleStore, loc *time.Location, logger zerolog.Logger) *Logger {
	if loc == nil {
		loc = time.UTC
	}
	return &Logger{
		store:    store,
		location: loc,
		logger:   logger.With().Str("component", "status-log").Logger(),
	}
}

// Append adds one event to the (userID, username) log, creating it first if
// needed.
func (l *Logger) Append(ctx context.Context, userID, username string, kind storage.ToggleKind, at time.Time) error {
	event := storage.ToggleEvent{
		Event:     kind,
		Timestamp: at.In(l.location),
	}
	if err := l.store.Append(ctx, userID, username, event); err != nil {
		return fmt.Errorf("failed to append %s event for %s: %w", kind, userID, err)
	}

	l.logger.Debug().
		Str("user_id", userID).
		Str("username", username).
		Str("event", string(kind)).
		Time("timestamp", event.Timestamp).
		Msg("Logged status toggle")
	return nil
}

// History returns the user's logged events in order.
func (l *Logger) History(ctx context.Context, userID, username string) ([]storage.ToggleEvent, error) {
	return l.store.List(ctx, userID, username)
}
