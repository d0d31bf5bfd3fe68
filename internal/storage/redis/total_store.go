package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/goodtune/voicetime/internal/storage"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type totalStore struct {
	client *redis.Client
	create *redis.Script
	append *redis.Script
}

// dayKey maps a user and reference-zone day to its record ID
func dayKey(userID string, day time.Time) string {
	return fmt.Sprintf("voicetime:totals:%s:%s", userID, day.Format("2006-01-02"))
}

func totalKey(id string) string {
	return fmt.Sprintf("voicetime:total:%s", id)
}

func entriesKey(id string) string {
	return fmt.Sprintf("voicetime:total:%s:entries", id)
}

// Find returns the record for userID on the day starting at day
func (s *totalStore) Find(ctx context.Context, userID string, day time.Time) (*storage.DailyTotal, error) {
	id, err := s.client.Get(ctx, dayKey(userID, day)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	data, err := s.client.HGetAll(ctx, totalKey(id)).Result()
	if err != nil {
		return nil, err
	}

	entries, err := s.client.LRange(ctx, entriesKey(id), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	return parseDailyTotal(data, entries)
}

// Create writes a new record keyed by the day of its CreatedAt. CreatedAt
// must already be in the reference timezone.
func (s *totalStore) Create(ctx context.Context, total *storage.DailyTotal) error {
	if total.ID == "" {
		total.ID = uuid.NewString()
	}

	entries, err := encodeEntries(total.Sessions)
	if err != nil {
		return err
	}

	keys := []string{dayKey(total.DiscordID, total.CreatedAt)}
	args := append([]interface{}{
		total.ID,
		total.DiscordID,
		total.DiscordName,
		total.ServerName,
		total.CreatedAt.Format(time.RFC3339Nano),
	}, entries...)

	id, err := s.create.Run(ctx, s.client, keys, args...).Text()
	if err != nil {
		return err
	}
	total.ID = id
	return nil
}

// AppendEntry pushes entry onto the record and overwrites its server name
func (s *totalStore) AppendEntry(ctx context.Context, id string, entry storage.SessionEntry, serverName string) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode entry: %w", err)
	}

	keys := []string{totalKey(id), entriesKey(id)}
	err = s.append.Run(ctx, s.client, keys, string(raw), serverName).Err()
	if err != nil && err.Error() == "NOTFOUND" {
		return storage.ErrNotFound
	}
	return err
}
