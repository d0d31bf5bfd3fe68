package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/goodtune/voicetime/internal/config"
	"github.com/goodtune/voicetime/internal/storage"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Collection names
const (
	joinCollection   = "logentries"
	leaveCollection  = "logleaves"
	toggleCollection = "voiceevents"
	totalCollection  = "usertotaltimes"
)

// Store implements the storage.Store interface using MongoDB
type Store struct {
	client      *mongo.Client
	joinStore   *joinStore
	leaveStore  *leaveStore
	toggleStore *toggleStore
	totalStore  *totalStore
}

// Open connects to MongoDB and verifies the deployment is reachable
func Open(ctx context.Context, cfg config.MongoConfig) (*Store, error) {
	timeout, err := time.ParseDuration(cfg.ConnectTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: connect_timeout: %w", storage.ErrInvalidConfig, err)
	}

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	store := NewWithDatabase(client.Database(cfg.Database))
	store.client = client
	return store, nil
}

// NewWithDatabase wraps an existing database handle. Close is a no-op for
// stores built this way.
func NewWithDatabase(db *mongo.Database) *Store {
	return &Store{
		joinStore:   &joinStore{coll: db.Collection(joinCollection)},
		leaveStore:  &leaveStore{coll: db.Collection(leaveCollection)},
		toggleStore: &toggleStore{coll: db.Collection(toggleCollection)},
		totalStore:  &totalStore{coll: db.Collection(totalCollection)},
	}
}

// Close disconnects the client
func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Joins returns the JoinStore implementation
func (s *Store) Joins() storage.JoinStore {
	return s.joinStore
}

// Leaves returns the LeaveStore implementation
func (s *Store) Leaves() storage.LeaveStore {
	return s.leaveStore
}

// Toggles returns the ToggleStore implementation
func (s *Store) Toggles() storage.ToggleStore {
	return s.toggleStore
}

// Totals returns the TotalStore implementation
func (s *Store) Totals() storage.TotalStore {
	return s.totalStore
}
