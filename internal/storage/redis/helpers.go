package redis

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/goodtune/voicetime/internal/device"
	"github.com/goodtune/voicetime/internal/storage"
)

// parseJoinRecord converts a Redis hash to JoinRecord
func parseJoinRecord(data map[string]string) (*storage.JoinRecord, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	timestamp, err := time.Parse(time.RFC3339Nano, data["timestamp"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse timestamp: %w", err)
	}

	devices, err := device.ParseSet(data["devices"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse devices: %w", err)
	}

	return &storage.JoinRecord{
		ID:         data["id"],
		UserID:     data["user_id"],
		Username:   data["username"],
		ServerName: data["server_name"],
		Timestamp:  timestamp,
		Devices:    devices,
	}, nil
}

// parseDailyTotal converts a Redis hash and its entry list to DailyTotal
func parseDailyTotal(data map[string]string, entries []string) (*storage.DailyTotal, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	createdAt, err := time.Parse(time.RFC3339Nano, data["created_at"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}

	total := &storage.DailyTotal{
		ID:          data["id"],
		DiscordID:   data["discord_id"],
		DiscordName: data["discord_name"],
		ServerName:  data["server_name"],
		CreatedAt:   createdAt,
		Sessions:    make([]storage.SessionEntry, 0, len(entries)),
	}

	for i, raw := range entries {
		var entry storage.SessionEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return nil, fmt.Errorf("failed to parse entry %d: %w", i, err)
		}
		total.Sessions = append(total.Sessions, entry)
	}

	return total, nil
}

// encodeEntries renders session entries as JSON list items
func encodeEntries(entries []storage.SessionEntry) ([]interface{}, error) {
	out := make([]interface{}, 0, len(entries))
	for _, entry := range entries {
		raw, err := json.Marshal(entry)
		if err != nil {
			return nil, fmt.Errorf("failed to encode entry: %w", err)
		}
		out = append(out, string(raw))
	}
	return out, nil
}

// score orders records in a user's sorted set
func score(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
