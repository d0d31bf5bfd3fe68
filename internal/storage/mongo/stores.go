package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goodtune/voicetime/internal/device"
	"github.com/goodtune/voicetime/internal/storage"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type joinStore struct {
	coll *mongo.Collection
}

func (s *joinStore) Insert(ctx context.Context, record storage.JoinRecord) error {
	doc := logEntry{
		ID:          primitive.NewObjectID(),
		UserID:      record.UserID,
		Username:    record.Username,
		ServerName:  record.ServerName,
		Action:      "join",
		Timestamp:   record.Timestamp,
		DevicesType: record.Devices.String(),
	}
	_, err := s.coll.InsertOne(ctx, doc)
	return err
}

func (s *joinStore) FindLatest(ctx context.Context, userID string) (*storage.JoinRecord, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "timestamp", Value: -1}})

	var doc logEntry
	err := s.coll.FindOne(ctx, bson.D{{Key: "userId", Value: userID}}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	devices, err := device.ParseSet(doc.DevicesType)
	if err != nil {
		return nil, fmt.Errorf("failed to parse devices: %w", err)
	}

	return &storage.JoinRecord{
		ID:         doc.ID.Hex(),
		UserID:     doc.UserID,
		Username:   doc.Username,
		ServerName: doc.ServerName,
		Timestamp:  doc.Timestamp,
		Devices:    devices,
	}, nil
}

type leaveStore struct {
	coll *mongo.Collection
}

func (s *leaveStore) Insert(ctx context.Context, record storage.LeaveRecord) error {
	doc := logEntry{
		ID:         primitive.NewObjectID(),
		UserID:     record.UserID,
		Username:   record.Username,
		ServerName: record.ServerName,
		Action:     "leave",
		Timestamp:  record.Timestamp,
	}
	_, err := s.coll.InsertOne(ctx, doc)
	return err
}

type toggleStore struct {
	coll *mongo.Collection
}

// Append upserts the (userId, username) document and pushes the event
func (s *toggleStore) Append(ctx context.Context, userID, username string, event storage.ToggleEvent) error {
	filter := bson.D{
		{Key: "userId", Value: userID},
		{Key: "username", Value: username},
	}
	update := bson.D{{Key: "$push", Value: bson.D{{Key: "events", Value: toggleEvent{
		Event:     string(event.Event),
		Timestamp: event.Timestamp,
	}}}}}

	_, err := s.coll.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

func (s *toggleStore) List(ctx context.Context, userID, username string) ([]storage.ToggleEvent, error) {
	filter := bson.D{
		{Key: "userId", Value: userID},
		{Key: "username", Value: username},
	}

	var doc voiceEvents
	err := s.coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	events := make([]storage.ToggleEvent, 0, len(doc.Events))
	for _, e := range doc.Events {
		events = append(events, storage.ToggleEvent{
			Event:     storage.ToggleKind(e.Event),
			Timestamp: e.Timestamp,
		})
	}
	return events, nil
}

type totalStore struct {
	coll *mongo.Collection
}

func (s *totalStore) Find(ctx context.Context, userID string, day time.Time) (*storage.DailyTotal, error) {
	start, end := storage.DayBounds(day)
	filter := bson.D{
		{Key: "discordId", Value: userID},
		{Key: "createdAt", Value: bson.D{
			{Key: "$gte", Value: start},
			{Key: "$lt", Value: end},
		}},
	}

	var doc userTotalTime
	err := s.coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return doc.toTotal()
}

func (s *totalStore) Create(ctx context.Context, total *storage.DailyTotal) error {
	doc := userTotalTime{
		ID:          primitive.NewObjectID(),
		DiscordName: total.DiscordName,
		DiscordID:   total.DiscordID,
		ServerName:  total.ServerName,
		CreatedAt:   total.CreatedAt,
		JoinMethod:  make([]joinMethod, 0, len(total.Sessions)),
	}
	for _, e := range total.Sessions {
		doc.JoinMethod = append(doc.JoinMethod, fromEntry(e))
	}

	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return err
	}
	total.ID = doc.ID.Hex()
	return nil
}

func (s *totalStore) AppendEntry(ctx context.Context, id string, entry storage.SessionEntry, serverName string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("invalid record id %q: %w", id, err)
	}

	update := bson.D{
		{Key: "$push", Value: bson.D{{Key: "joinMethod", Value: fromEntry(entry)}}},
		{Key: "$set", Value: bson.D{{Key: "serverName", Value: serverName}}},
	}

	result, err := s.coll.UpdateByID(ctx, oid, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}
