package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/goodtune/voicetime/internal/storage"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type joinStore struct {
	client *redis.Client
	insert *redis.Script
}

// Insert writes a join record
func (s *joinStore) Insert(ctx context.Context, record storage.JoinRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}

	keys := []string{
		fmt.Sprintf("voicetime:join:%s", record.ID),
		fmt.Sprintf("voicetime:joins:user:%s", record.UserID),
	}
	args := []interface{}{
		record.ID,
		score(record.Timestamp),
		"id", record.ID,
		"user_id", record.UserID,
		"username", record.Username,
		"server_name", record.ServerName,
		"action", "join",
		"timestamp", record.Timestamp.Format(time.RFC3339Nano),
		"devices", record.Devices.String(),
	}

	return s.insert.Run(ctx, s.client, keys, args...).Err()
}

// FindLatest returns the user's most recent join by timestamp
func (s *joinStore) FindLatest(ctx context.Context, userID string) (*storage.JoinRecord, error) {
	ids, err := s.client.ZRevRange(ctx, fmt.Sprintf("voicetime:joins:user:%s", userID), 0, 0).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, storage.ErrNotFound
	}

	data, err := s.client.HGetAll(ctx, fmt.Sprintf("voicetime:join:%s", ids[0])).Result()
	if err != nil {
		return nil, err
	}

	return parseJoinRecord(data)
}

type leaveStore struct {
	client *redis.Client
	insert *redis.Script
}

// Insert writes a leave record
func (s *leaveStore) Insert(ctx context.Context, record storage.LeaveRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}

	keys := []string{
		fmt.Sprintf("voicetime:leave:%s", record.ID),
		fmt.Sprintf("voicetime:leaves:user:%s", record.UserID),
	}
	args := []interface{}{
		record.ID,
		score(record.Timestamp),
		"id", record.ID,
		"user_id", record.UserID,
		"username", record.Username,
		"server_name", record.ServerName,
		"action", "leave",
		"timestamp", record.Timestamp.Format(time.RFC3339Nano),
	}

	return s.insert.Run(ctx, s.client, keys, args...).Err()
}

type toggleStore struct {
	client *redis.Client
}

func toggleKey(userID, username string) string {
	return fmt.Sprintf("voicetime:toggles:%s:%s", userID, username)
}

// Append pushes an event onto the (userID, username) list. RPUSH creates the
// list on first use.
func (s *toggleStore) Append(ctx context.Context, userID, username string, event storage.ToggleEvent) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode toggle event: %w", err)
	}
	return s.client.RPush(ctx, toggleKey(userID, username), string(raw)).Err()
}

// List returns the logged events in order
func (s *toggleStore) List(ctx context.Context, userID, username string) ([]storage.ToggleEvent, error) {
	items, err := s.client.LRange(ctx, toggleKey(userID, username), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, storage.ErrNotFound
	}

	events := make([]storage.ToggleEvent, 0, len(items))
	for i, raw := range items {
		var event storage.ToggleEvent
		if err := json.Unmarshal([]byte(raw), &event); err != nil {
			return nil, fmt.Errorf("failed to parse toggle event %d: %w", i, err)
		}
		events = append(events, event)
	}
	return events, nil
}
