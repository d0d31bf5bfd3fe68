// Package memory is a process-local storage backend. Nothing survives a
// restart; it backs tests and dry runs against a live gateway.
package memory

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/goodtune/voicetime/internal/storage"
)

// Store implements storage.Store in memory.
type Store struct {
	mu      sync.RWMutex
	seq     int
	joins   []storage.JoinRecord
	leaves  []storage.LeaveRecord
	toggles map[toggleKey][]storage.ToggleEvent
	totals  []*storage.DailyTotal

	// Err, when set, is returned by every write. Tests use it to simulate
	// an unreachable store.
	Err error
}

type toggleKey struct {
	userID   string
	username string
}

// New creates an empty store.
func New() *Store {
	return &Store{toggles: make(map[toggleKey][]storage.ToggleEvent)}
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

// Joins returns the JoinStore implementation
func (s *Store) Joins() storage.JoinStore { return joinStore{s} }

// Leaves returns the LeaveStore implementation
func (s *Store) Leaves() storage.LeaveStore { return leaveStore{s} }

// Toggles returns the ToggleStore implementation
func (s *Store) Toggles() storage.ToggleStore { return toggleStore{s} }

// Totals returns the TotalStore implementation
func (s *Store) Totals() storage.TotalStore { return totalStore{s} }

// JoinRecords returns a copy of all join records in insertion order.
func (s *Store) JoinRecords() []storage.JoinRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]storage.JoinRecord(nil), s.joins...)
}

// LeaveRecords returns a copy of all leave records in insertion order.
func (s *Store) LeaveRecords() []storage.LeaveRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]storage.LeaveRecord(nil), s.leaves...)
}

// DailyTotals returns copies of all daily total records.
func (s *Store) DailyTotals() []storage.DailyTotal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]storage.DailyTotal, 0, len(s.totals))
	for _, t := range s.totals {
		out = append(out, copyTotal(t))
	}
	return out
}

func (s *Store) nextID() string {
	s.seq++
	return strconv.Itoa(s.seq)
}

type joinStore struct{ s *Store }

func (j joinStore) Insert(_ context.Context, record storage.JoinRecord) error {
	j.s.mu.Lock()
	defer j.s.mu.Unlock()
	if j.s.Err != nil {
		return j.s.Err
	}
	record.ID = j.s.nextID()
	record.Devices = record.Devices.Clone()
	j.s.joins = append(j.s.joins, record)
	return nil
}

func (j joinStore) FindLatest(_ context.Context, userID string) (*storage.JoinRecord, error) {
	j.s.mu.RLock()
	defer j.s.mu.RUnlock()

	var latest *storage.JoinRecord
	for i := range j.s.joins {
		r := j.s.joins[i]
		if r.UserID != userID {
			continue
		}
		if latest == nil || !r.Timestamp.Before(latest.Timestamp) {
			found := r
			latest = &found
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}
	return latest, nil
}

type leaveStore struct{ s *Store }

func (l leaveStore) Insert(_ context.Context, record storage.LeaveRecord) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	if l.s.Err != nil {
		return l.s.Err
	}
	record.ID = l.s.nextID()
	l.s.leaves = append(l.s.leaves, record)
	return nil
}

type toggleStore struct{ s *Store }

func (t toggleStore) Append(_ context.Context, userID, username string, event storage.ToggleEvent) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.s.Err != nil {
		return t.s.Err
	}
	key := toggleKey{userID, username}
	t.s.toggles[key] = append(t.s.toggles[key], event)
	return nil
}

func (t toggleStore) List(_ context.Context, userID, username string) ([]storage.ToggleEvent, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	events, ok := t.s.toggles[toggleKey{userID, username}]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]storage.ToggleEvent(nil), events...), nil
}

type totalStore struct{ s *Store }

func (t totalStore) Find(_ context.Context, userID string, day time.Time) (*storage.DailyTotal, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	start, end := storage.DayBounds(day)
	for _, total := range t.s.totals {
		if total.DiscordID != userID {
			continue
		}
		if !total.CreatedAt.Before(start) && total.CreatedAt.Before(end) {
			found := copyTotal(total)
			return &found, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (t totalStore) Create(_ context.Context, total *storage.DailyTotal) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.s.Err != nil {
		return t.s.Err
	}
	total.ID = t.s.nextID()
	stored := copyTotal(total)
	t.s.totals = append(t.s.totals, &stored)
	return nil
}

func (t totalStore) AppendEntry(_ context.Context, id string, entry storage.SessionEntry, serverName string) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.s.Err != nil {
		return t.s.Err
	}
	for _, total := range t.s.totals {
		if total.ID == id {
			entry.Devices = entry.Devices.Clone()
			total.Sessions = append(total.Sessions, entry)
			total.ServerName = serverName
			return nil
		}
	}
	return storage.ErrNotFound
}

func copyTotal(t *storage.DailyTotal) storage.DailyTotal {
	out := *t
	out.Sessions = make([]storage.SessionEntry, len(t.Sessions))
	for i, e := range t.Sessions {
		e.Devices = e.Devices.Clone()
		out.Sessions[i] = e
	}
	return out
}
