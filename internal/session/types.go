package session

import (
	"context"
	"errors"
	"time"

	"github.com/goodtune/voicetime/internal/device"
	"github.com/goodtune/voicetime/internal/storage"
)

var (
	// ErrNotTarget is returned for signals outside the configured guild and channel.
	ErrNotTarget = errors.New("session: signal is not for the target channel")
	// ErrDeviceUnknown is returned when no presence snapshot was available at join.
	ErrDeviceUnknown = errors.New("session: device classification unknown")
	// ErrInvalidTimestamp is returned for signals without a usable timestamp.
	ErrInvalidTimestamp = errors.New("session: invalid timestamp")
	// ErrMissingContext is returned when guild or member data is absent.
	ErrMissingContext = errors.New("session: missing guild or member context")
)

// Target identifies the guild voice channel being tracked.
type Target struct {
	GuildID   string
	ChannelID string
}

// ActiveSession is an in-progress voice session.
type ActiveSession struct {
	UserID     string     `json:"user_id"`
	Username   string     `json:"username"`
	GuildID    string     `json:"guild_id"`
	ServerName string     `json:"server_name"`
	JoinedAt   time.Time  `json:"joined_at"`
	Devices    device.Set `json:"devices"`
}

// JoinSignal reports a member present in a voice channel.
type JoinSignal struct {
	UserID     string
	Username   string
	GuildID    string
	ServerName string
	ChannelID  string
	// Presence is nil when the member's presence could not be resolved.
	Presence *device.Snapshot
	At       time.Time
}

// LeaveSignal reports a member dropping out of voice.
type LeaveSignal struct {
	UserID        string
	Username      string
	GuildID       string
	ServerName    string
	PrevChannelID string
	ChannelID     string
	At            time.Time
}

// ToggleSignal reports a genuine change of one voice flag.
type ToggleSignal struct {
	UserID   string
	Username string
	Kind     storage.ToggleKind
	At       time.Time
}

// Ended is handed to the Aggregator when a tracked session finishes.
type Ended struct {
	UserID     string
	Username   string
	ServerName string
	Devices    device.Set
	JoinedAt   time.Time
	Duration   time.Duration
}

// Notifier sends human readable messages about session activity.
type Notifier interface {
	Join(ctx context.Context, username string, at time.Time, serverName string, devices device.Set) error
	Leave(ctx context.Context, username string, at time.Time, serverName string) error
	TotalTime(ctx context.Context, username string, total storage.Duration) error
}

// StatusLogger appends toggle events to a user's log.
type StatusLogger interface {
	Append(ctx context.Context, userID, username string, kind storage.ToggleKind, at time.Time) error
}
