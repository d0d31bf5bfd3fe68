package mongo

import (
	"time"

	"github.com/goodtune/voicetime/internal/device"
	"github.com/goodtune/voicetime/internal/storage"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Document field names follow the existing collections so records written by
// earlier deployments stay readable.

type logEntry struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	UserID      string             `bson:"userId"`
	Username    string             `bson:"username"`
	ServerName  string             `bson:"serverName"`
	Action      string             `bson:"action"`
	Timestamp   time.Time          `bson:"timestamp"`
	DevicesType string             `bson:"devicesType,omitempty"`
}

type toggleEvent struct {
	Event     string    `bson:"event"`
	Timestamp time.Time `bson:"timestamp"`
}

type voiceEvents struct {
	ID       primitive.ObjectID `bson:"_id,omitempty"`
	UserID   string             `bson:"userId"`
	Username string             `bson:"username"`
	Events   []toggleEvent      `bson:"events"`
}

type totalTime struct {
	Hours   int `bson:"hours"`
	Minutes int `bson:"minutes"`
	Seconds int `bson:"seconds"`
}

type joinMethod struct {
	DevicesType string    `bson:"devicesType"`
	TotalTime   totalTime `bson:"totalTime"`
	JoinTime    time.Time `bson:"joinTime"`
}

type userTotalTime struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	DiscordName string             `bson:"discordName"`
	DiscordID   string             `bson:"discordId"`
	ServerName  string             `bson:"serverName"`
	CreatedAt   time.Time          `bson:"createdAt"`
	JoinMethod  []joinMethod       `bson:"joinMethod"`
}

func fromEntry(e storage.SessionEntry) joinMethod {
	return joinMethod{
		DevicesType: e.Devices.String(),
		TotalTime: totalTime{
			Hours:   e.Total.Hours,
			Minutes: e.Total.Minutes,
			Seconds: e.Total.Seconds,
		},
		JoinTime: e.JoinTime,
	}
}

func (m joinMethod) toEntry() (storage.SessionEntry, error) {
	devices, err := device.ParseSet(m.DevicesType)
	if err != nil {
		return storage.SessionEntry{}, err
	}
	return storage.SessionEntry{
		Devices: devices,
		Total: storage.Duration{
			Hours:   m.TotalTime.Hours,
			Minutes: m.TotalTime.Minutes,
			Seconds: m.TotalTime.Seconds,
		},
		JoinTime: m.JoinTime,
	}, nil
}

func (d userTotalTime) toTotal() (*storage.DailyTotal, error) {
	total := &storage.DailyTotal{
		ID:          d.ID.Hex(),
		DiscordID:   d.DiscordID,
		DiscordName: d.DiscordName,
		ServerName:  d.ServerName,
		CreatedAt:   d.CreatedAt,
		Sessions:    make([]storage.SessionEntry, 0, len(d.JoinMethod)),
	}
	for _, m := range d.JoinMethod {
		entry, err := m.toEntry()
		if err != nil {
			return nil, err
		}
		total.Sessions = append(total.Sessions, entry)
	}
	return total, nil
}
