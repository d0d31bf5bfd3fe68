package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/goodtune/voicetime/internal/config"
	"github.com/goodtune/voicetime/internal/storage"
	"github.com/redis/go-redis/v9"
)

// Store implements the storage.Store interface using Redis
type Store struct {
	client      *redis.Client
	joinStore   *joinStore
	leaveStore  *leaveStore
	toggleStore *toggleStore
	totalStore  *totalStore
}

// Open creates a new Redis-backed storage instance
func Open(cfg config.RedisConfig) (*Store, error) {
	// Parse timeouts
	dialTimeout, err := time.ParseDuration(cfg.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: dial_timeout: %w", storage.ErrInvalidConfig, err)
	}

	readTimeout, err := time.ParseDuration(cfg.ReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: read_timeout: %w", storage.ErrInvalidConfig, err)
	}

	writeTimeout, err := time.ParseDuration(cfg.WriteTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: write_timeout: %w", storage.ErrInvalidConfig, err)
	}

	// Determine address
	addr := cfg.Host
	if cfg.Port > 0 {
		addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	}

	// Create Redis client
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  dialTimeout,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	})

	// Ping to verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return newStore(client), nil
}

func newStore(client *redis.Client) *Store {
	return &Store{
		client:      client,
		joinStore:   &joinStore{client: client, insert: redis.NewScript(insertRecordScript)},
		leaveStore:  &leaveStore{client: client, insert: redis.NewScript(insertRecordScript)},
		toggleStore: &toggleStore{client: client},
		totalStore: &totalStore{
			client: client,
			create: redis.NewScript(createTotalScript),
			append: redis.NewScript(appendEntryScript),
		},
	}
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
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
