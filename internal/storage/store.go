package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record is missing from storage.
var ErrNotFound = errors.New("storage: record not found")

// ErrInvalidConfig is returned by a backend's Open when its settings cannot
// be parsed. Retrying will not help.
var ErrInvalidConfig = errors.New("storage: invalid configuration")

// Store represents the root storage interface.
type Store interface {
	Close() error
	Joins() JoinStore
	Leaves() LeaveStore
	Toggles() ToggleStore
	Totals() TotalStore
}

// JoinStore persists session start records.
type JoinStore interface {
	Insert(ctx context.Context, record JoinRecord) error
	// FindLatest returns the most recent join for a user by timestamp.
	FindLatest(ctx context.Context, userID string) (*JoinRecord, error)
}

// LeaveStore persists session end records.
type LeaveStore interface {
	Insert(ctx context.Context, record LeaveRecord) error
}

// ToggleStore manages the per-user status toggle log.
type ToggleStore interface {
	// Append creates the document for (userID, username) if needed and pushes
	// the event onto its ordered list.
	Append(ctx context.Context, userID, username string, event ToggleEvent) error
	// List returns the logged events for (userID, username) in order.
	List(ctx context.Context, userID, username string) ([]ToggleEvent, error)
}

// TotalStore manages day-bucketed total time records.
type TotalStore interface {
	// Find returns the record for userID created within [day, day+1 calendar day).
	// day must be the start of the day in the reference timezone.
	Find(ctx context.Context, userID string, day time.Time) (*DailyTotal, error)
	// Create inserts a new record and fills in its ID.
	Create(ctx context.Context, total *DailyTotal) error
	// AppendEntry pushes entry onto the record's session list and overwrites
	// its server name.
	AppendEntry(ctx context.Context, id string, entry SessionEntry, serverName string) error
}

// DayBounds returns the half-open interval covering the calendar day that
// starts at day.
func DayBounds(day time.Time) (time.Time, time.Time) {
	return day, day.AddDate(0, 0, 1)
}
