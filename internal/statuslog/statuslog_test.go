package statuslog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goodtune/voicetime/internal/storage"
	"github.com/goodtune/voicetime/internal/storage/memory"
	"github.com/rs/zerolog"
)

func TestAppend_CreatesThenPushes(t *testing.T) {
	store := memory.New()
	loc := time.FixedZone("ICT", 7*3600)
	l := New(store.Toggles(), loc, zerolog.Nop())
	ctx := context.Background()
	at := time.Date(2024, 1, 1, 3, 0, 0, 0, time.UTC)

	if _, err := l.History(ctx, "u1", "alice"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected no log before first toggle, got %v", err)
	}

	if err := l.Append(ctx, "u1", "alice", storage.ToggleMute, at); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := l.Append(ctx, "u1", "alice", storage.ToggleUnmute, at.Add(time.Minute)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	events, err := l.History(ctx, "u1", "alice")
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Event != storage.ToggleMute || events[1].Event != storage.ToggleUnmute {
		t.Errorf("unexpected order: %v, %v", events[0].Event, events[1].Event)
	}
	if events[0].Timestamp.Location() != loc {
		t.Errorf("expected timestamp in reference zone, got %v", events[0].Timestamp.Location())
	}
}

func TestAppend_KeyedByUsername(t *testing.T) {
	store := memory.New()
	l := New(store.Toggles(), nil, zerolog.Nop())
	ctx := context.Background()
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_ = l.Append(ctx, "u1", "alice", storage.ToggleDeaf, at)
	_ = l.Append(ctx, "u1", "alice2", storage.ToggleUndeaf, at)

	events, _ := l.History(ctx, "u1", "alice")
	if len(events) != 1 {
		t.Errorf("expected renamed user to get a separate log, got %d events", len(events))
	}
}

func TestAppend_StoreError(t *testing.T) {
	store := memory.New()
	store.Err = errors.New("connection refused")
	l := New(store.Toggles(), nil, zerolog.Nop())

	err := l.Append(context.Background(), "u1", "alice", storage.ToggleMute, time.Now())
	if err == nil || !errors.Is(err, store.Err) {
		t.Errorf("expected wrapped store error, got %v", err)
	}
}
