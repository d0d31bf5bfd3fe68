package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goodtune/voicetime/internal/device"
	"github.com/goodtune/voicetime/internal/storage"
)

func TestJoinStore_FindLatest(t *testing.T) {
	store := New()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	_ = store.Joins().Insert(ctx, storage.JoinRecord{UserID: "u1", Timestamp: base, Devices: device.Set{device.Web}})
	_ = store.Joins().Insert(ctx, storage.JoinRecord{UserID: "u1", Timestamp: base.Add(time.Hour), Devices: device.Set{device.Mobile}})
	_ = store.Joins().Insert(ctx, storage.JoinRecord{UserID: "u2", Timestamp: base.Add(2 * time.Hour)})

	latest, err := store.Joins().FindLatest(ctx, "u1")
	if err != nil {
		t.Fatalf("FindLatest failed: %v", err)
	}
	if !latest.Devices.Has(device.Mobile) {
		t.Errorf("expected latest join devices to contain mobile, got %v", latest.Devices)
	}

	if _, err := store.Joins().FindLatest(ctx, "nobody"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestTotalStore_FindWithinDay(t *testing.T) {
	store := New()
	ctx := context.Background()
	loc := time.FixedZone("ICT", 7*3600)
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, loc)

	total := &storage.DailyTotal{
		DiscordID: "u1",
		CreatedAt: day.Add(23 * time.Hour),
		Sessions:  []storage.SessionEntry{{Total: storage.Duration{Minutes: 5}}},
	}
	if err := store.Totals().Create(ctx, total); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if total.ID == "" {
		t.Fatal("expected Create to assign an ID")
	}

	if _, err := store.Totals().Find(ctx, "u1", day); err != nil {
		t.Errorf("expected record on its own day, got %v", err)
	}
	if _, err := store.Totals().Find(ctx, "u1", day.AddDate(0, 0, 1)); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound on next day, got %v", err)
	}

	if err := store.Totals().AppendEntry(ctx, total.ID, storage.SessionEntry{Total: storage.Duration{Hours: 1}}, "new name"); err != nil {
		t.Fatalf("AppendEntry failed: %v", err)
	}
	got, _ := store.Totals().Find(ctx, "u1", day)
	if len(got.Sessions) != 2 || got.ServerName != "new name" {
		t.Errorf("unexpected record after append: %+v", got)
	}
}

func TestStore_Err(t *testing.T) {
	store := New()
	store.Err = errors.New("unreachable")

	err := store.Leaves().Insert(context.Background(), storage.LeaveRecord{UserID: "u1"})
	if err == nil {
		t.Fatal("expected configured error")
	}
	if len(store.LeaveRecords()) != 0 {
		t.Error("expected no leave records to be stored")
	}
}
