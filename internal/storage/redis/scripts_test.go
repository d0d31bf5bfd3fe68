package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// setupTestRedis creates a miniredis instance for testing Lua scripts
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { _ = client.Close() })

	return client, mr
}

func TestInsertRecordScript(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()
	script := redis.NewScript(insertRecordScript)

	tests := []struct {
		name   string
		id     string
		score  float64
		fields []interface{}
	}{
		{
			name:   "first record",
			id:     "rec-1",
			score:  1000,
			fields: []interface{}{"id", "rec-1", "action", "join"},
		},
		{
			name:   "second record same user",
			id:     "rec-2",
			score:  2000,
			fields: []interface{}{"id", "rec-2", "action", "join", "devices", "web"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keys := []string{"voicetime:join:" + tt.id, "voicetime:joins:user:u1"}
			args := append([]interface{}{tt.id, tt.score}, tt.fields...)

			if err := script.Run(ctx, client, keys, args...).Err(); err != nil {
				t.Fatalf("script failed: %v", err)
			}

			if got := mr.HGet(keys[0], "id"); got != tt.id {
				t.Errorf("expected id %q, got %q", tt.id, got)
			}
			score, err := mr.ZScore(keys[1], tt.id)
			if err != nil {
				t.Fatalf("ZScore failed: %v", err)
			}
			if score != tt.score {
				t.Errorf("expected score %v, got %v", tt.score, score)
			}
		})
	}
}

func TestCreateTotalScript(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()
	script := redis.NewScript(createTotalScript)
	dayKey := "voicetime:totals:u1:2024-01-01"

	id, err := script.Run(ctx, client, []string{dayKey},
		"t-1", "u1", "alice", "guild", "2024-01-01T10:00:00+07:00", `{"n":1}`).Text()
	if err != nil {
		t.Fatalf("script failed: %v", err)
	}
	if id != "t-1" {
		t.Errorf("expected id t-1, got %q", id)
	}

	// A second create for the same day reuses the slot
	id, err = script.Run(ctx, client, []string{dayKey},
		"t-2", "u1", "alice", "other", "2024-01-01T12:00:00+07:00", `{"n":2}`).Text()
	if err != nil {
		t.Fatalf("script failed: %v", err)
	}
	if id != "t-1" {
		t.Errorf("expected existing id t-1, got %q", id)
	}

	entries, err := mr.List("voicetime:total:t-1:entries")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("expected 2 entries, got %d", len(entries))
	}
	if got := mr.HGet("voicetime:total:t-1", "server_name"); got != "other" {
		t.Errorf("expected server_name other, got %q", got)
	}
	if got := mr.HGet("voicetime:total:t-1", "created_at"); got != "2024-01-01T10:00:00+07:00" {
		t.Errorf("expected original created_at, got %q", got)
	}
	if mr.Exists("voicetime:total:t-2") {
		t.Error("expected no record for t-2")
	}
}

func TestAppendEntryScript(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()
	script := redis.NewScript(appendEntryScript)
	keys := []string{"voicetime:total:t-1", "voicetime:total:t-1:entries"}

	err := script.Run(ctx, client, keys, `{"n":1}`, "guild").Err()
	if err == nil || err.Error() != "NOTFOUND" {
		t.Fatalf("expected NOTFOUND error, got %v", err)
	}

	mr.HSet(keys[0], "id", "t-1", "server_name", "guild")

	n, err := script.Run(ctx, client, keys, `{"n":1}`, "renamed").Int()
	if err != nil {
		t.Fatalf("script failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 entry, got %d", n)
	}
	if got := mr.HGet(keys[0], "server_name"); got != "renamed" {
		t.Errorf("expected server_name renamed, got %q", got)
	}
}
