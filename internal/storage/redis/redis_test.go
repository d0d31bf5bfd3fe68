package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/goodtune/voicetime/internal/config"
	"github.com/goodtune/voicetime/internal/device"
	"github.com/goodtune/voicetime/internal/storage"
)

func setupTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)

	// miniredis.Addr() returns "host:port", so Port stays zero
	cfg := config.RedisConfig{
		Host:         mr.Addr(),
		Port:         0,
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 1,
		DialTimeout:  "5s",
		ReadTimeout:  "3s",
		WriteTimeout: "3s",
	}

	store, err := Open(cfg)
	if err != nil {
		t.Fatalf("Failed to open Redis store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return store, mr
}

var bangkok = time.FixedZone("ICT", 7*3600)

func TestOpen_InvalidTimeout(t *testing.T) {
	_, err := Open(config.RedisConfig{Host: "localhost", DialTimeout: "soon"})
	if !errors.Is(err, storage.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestJoinStore_FindLatest(t *testing.T) {
	store, mr := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, bangkok)

	records := []storage.JoinRecord{
		{UserID: "u1", Username: "alice", ServerName: "guild", Timestamp: base.Add(time.Hour), Devices: device.Set{device.Mobile}},
		{UserID: "u1", Username: "alice", ServerName: "guild", Timestamp: base, Devices: device.Set{device.Web}},
		{UserID: "u2", Username: "bob", ServerName: "guild", Timestamp: base.Add(2 * time.Hour), Devices: device.Set{device.Desktop}},
	}
	for _, r := range records {
		if err := store.Joins().Insert(ctx, r); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	latest, err := store.Joins().FindLatest(ctx, "u1")
	if err != nil {
		t.Fatalf("FindLatest failed: %v", err)
	}
	if !latest.Timestamp.Equal(base.Add(time.Hour)) {
		t.Errorf("expected latest timestamp %v, got %v", base.Add(time.Hour), latest.Timestamp)
	}
	if latest.Devices.String() != "mobile" {
		t.Errorf("expected devices mobile, got %q", latest.Devices.String())
	}
	if latest.Username != "alice" || latest.ServerName != "guild" {
		t.Errorf("unexpected record fields: %+v", latest)
	}

	members, err := mr.ZMembers("voicetime:joins:user:u1")
	if err != nil {
		t.Fatalf("ZMembers failed: %v", err)
	}
	if len(members) != 2 {
		t.Errorf("expected 2 indexed joins for u1, got %d", len(members))
	}

	if _, err := store.Joins().FindLatest(ctx, "nobody"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestJoinStore_EmptyDevices(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	err := store.Joins().Insert(ctx, storage.JoinRecord{
		UserID:    "u1",
		Timestamp: time.Date(2024, 1, 1, 10, 0, 0, 0, bangkok),
		Devices:   device.Set{},
	})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	latest, err := store.Joins().FindLatest(ctx, "u1")
	if err != nil {
		t.Fatalf("FindLatest failed: %v", err)
	}
	if len(latest.Devices) != 0 {
		t.Errorf("expected empty device set, got %v", latest.Devices)
	}
}

func TestLeaveStore_Insert(t *testing.T) {
	store, mr := setupTestStore(t)
	ctx := context.Background()

	record := storage.LeaveRecord{
		ID:         "leave-1",
		UserID:     "u1",
		Username:   "alice",
		ServerName: "guild",
		Timestamp:  time.Date(2024, 1, 1, 11, 30, 0, 0, bangkok),
	}
	if err := store.Leaves().Insert(ctx, record); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if got := mr.HGet("voicetime:leave:leave-1", "action"); got != "leave" {
		t.Errorf("expected action leave, got %q", got)
	}
	if got := mr.HGet("voicetime:leave:leave-1", "username"); got != "alice" {
		t.Errorf("expected username alice, got %q", got)
	}
	members, err := mr.ZMembers("voicetime:leaves:user:u1")
	if err != nil {
		t.Fatalf("ZMembers failed: %v", err)
	}
	if len(members) != 1 || members[0] != "leave-1" {
		t.Errorf("expected leave-1 indexed, got %v", members)
	}
}

func TestToggleStore_AppendAndList(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, bangkok)

	if _, err := store.Toggles().List(ctx, "u1", "alice"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound before first append, got %v", err)
	}

	events := []storage.ToggleEvent{
		{Event: storage.ToggleMute, Timestamp: base},
		{Event: storage.ToggleStartStream, Timestamp: base.Add(time.Minute)},
		{Event: storage.ToggleUnmute, Timestamp: base.Add(2 * time.Minute)},
	}
	for _, e := range events {
		if err := store.Toggles().Append(ctx, "u1", "alice", e); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	got, err := store.Toggles().List(ctx, "u1", "alice")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(got) != len(events) {
		t.Fatalf("expected %d events, got %d", len(events), len(got))
	}
	for i := range events {
		if got[i].Event != events[i].Event || !got[i].Timestamp.Equal(events[i].Timestamp) {
			t.Errorf("event %d: expected %+v, got %+v", i, events[i], got[i])
		}
	}

	// A different username is a different log
	if _, err := store.Toggles().List(ctx, "u1", "alice2"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound for other username, got %v", err)
	}
}

func TestTotalStore_CreateFindAppend(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, bangkok)

	total := &storage.DailyTotal{
		DiscordID:   "u1",
		DiscordName: "alice",
		ServerName:  "guild",
		CreatedAt:   day.Add(10 * time.Hour),
		Sessions: []storage.SessionEntry{{
			Devices:  device.Set{device.Web},
			Total:    storage.Duration{Hours: 1, Minutes: 30},
			JoinTime: time.Unix(0, 0).UTC(),
		}},
	}
	if err := store.Totals().Create(ctx, total); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if total.ID == "" {
		t.Fatal("expected Create to assign an ID")
	}

	found, err := store.Totals().Find(ctx, "u1", day)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if found.ID != total.ID {
		t.Errorf("expected ID %q, got %q", total.ID, found.ID)
	}
	if len(found.Sessions) != 1 || found.Sessions[0].Total.Minutes != 30 {
		t.Errorf("unexpected sessions: %+v", found.Sessions)
	}
	if !found.CreatedAt.Equal(total.CreatedAt) {
		t.Errorf("expected CreatedAt %v, got %v", total.CreatedAt, found.CreatedAt)
	}

	entry := storage.SessionEntry{
		Devices:  device.Set{device.Desktop, device.Mobile},
		Total:    storage.Duration{Minutes: 5, Seconds: 12},
		JoinTime: time.Unix(0, 0).UTC().Add(95*time.Minute + 12*time.Second),
	}
	if err := store.Totals().AppendEntry(ctx, total.ID, entry, "renamed"); err != nil {
		t.Fatalf("AppendEntry failed: %v", err)
	}

	found, err = store.Totals().Find(ctx, "u1", day)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if found.ServerName != "renamed" {
		t.Errorf("expected server name overwritten, got %q", found.ServerName)
	}
	last := found.LastEntry()
	if last == nil || last.Devices.String() != "desktop, mobile" || !last.JoinTime.Equal(entry.JoinTime) {
		t.Errorf("unexpected last entry: %+v", last)
	}

	if _, err := store.Totals().Find(ctx, "u1", day.AddDate(0, 0, 1)); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound on next day, got %v", err)
	}
}

func TestTotalStore_AppendMissing(t *testing.T) {
	store, _ := setupTestStore(t)

	err := store.Totals().AppendEntry(context.Background(), "missing", storage.SessionEntry{}, "guild")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
