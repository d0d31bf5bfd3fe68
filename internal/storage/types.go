package storage

import (
	"time"

	"github.com/goodtune/voicetime/internal/device"
)

// ToggleKind is a discrete in-session status change. The values are the
// labels stored in the toggle log.
type ToggleKind string

const (
	ToggleMute         ToggleKind = "Mute"
	ToggleUnmute       ToggleKind = "Unmute"
	ToggleDeaf         ToggleKind = "Deaf"
	ToggleUndeaf       ToggleKind = "Undeaf"
	ToggleStartStream  ToggleKind = "Start Streaming"
	ToggleStopStream   ToggleKind = "Stop Streaming"
	ToggleStartVideo   ToggleKind = "Start Sharing Video"
	ToggleStopVideo    ToggleKind = "Stop Sharing Video"
	ToggleServerDeaf   ToggleKind = "Server Deaf"
	ToggleServerUndeaf ToggleKind = "Server Undeaf"
)

// JoinRecord is written once per session start.
type JoinRecord struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	Username   string     `json:"username"`
	ServerName string     `json:"server_name"`
	Timestamp  time.Time  `json:"timestamp"`
	Devices    device.Set `json:"devices"`
}

// LeaveRecord is written for every leave signal, tracked or not.
type LeaveRecord struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Username   string    `json:"username"`
	ServerName string    `json:"server_name"`
	Timestamp  time.Time `json:"timestamp"`
}

// ToggleEvent is one entry in a user's toggle log.
type ToggleEvent struct {
	Event     ToggleKind `json:"event"`
	Timestamp time.Time  `json:"timestamp"`
}

// Duration is a session length broken into whole units.
type Duration struct {
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
	Seconds int `json:"seconds"`
}

// SessionEntry is one ended session inside a DailyTotal.
type SessionEntry struct {
	Devices device.Set `json:"devices"`
	Total   Duration   `json:"total"`
	// JoinTime is the adjusted join time: the epoch for the first entry of
	// the day, then the previous entry's JoinTime advanced by this entry's
	// duration.
	JoinTime time.Time `json:"join_time"`
}

// DailyTotal aggregates a user's sessions for one calendar day.
type DailyTotal struct {
	ID          string         `json:"id"`
	DiscordID   string         `json:"discord_id"`
	DiscordName string         `json:"discord_name"`
	ServerName  string         `json:"server_name"`
	CreatedAt   time.Time      `json:"created_at"`
	Sessions    []SessionEntry `json:"sessions"`
}

// LastEntry returns the most recent session entry, or nil if there is none.
func (d *DailyTotal) LastEntry() *SessionEntry {
	if len(d.Sessions) == 0 {
		return nil
	}
	return &d.Sessions[len(d.Sessions)-1]
}
