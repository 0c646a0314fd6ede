package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "secrets-fleet:"

// HistoryStore persists run summaries to Valkey/Redis so past runs can be
// inspected. Entirely optional; deployed state always lives in the target
// repositories themselves.
type HistoryStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewHistoryStore creates a history store against addr.
func NewHistoryStore(addr, password string, db int, ttl time.Duration) *HistoryStore {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewHistoryStoreWithClient(client, "", ttl)
}

// NewHistoryStoreWithClient creates a history store with an existing client (for testing).
func NewHistoryStoreWithClient(client *redis.Client, keyPrefix string, ttl time.Duration) *HistoryStore {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &HistoryStore{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
	}
}

func (s *HistoryStore) runKey(runID string) string {
	return s.keyPrefix + "run:" + runID
}

func (s *HistoryStore) runsIndexKey() string {
	return s.keyPrefix + "runs:index"
}

// Save persists a run summary atomically.
func (s *HistoryStore) Save(ctx context.Context, summary Summary) error {
	if summary.RunID == "" {
		return fmt.Errorf("run ID cannot be empty")
	}

	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal run summary: %w", err)
	}

	// TxPipeline wraps in MULTI/EXEC for atomic execution
	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, s.runsIndexKey(), summary.RunID)
	pipe.Set(ctx, s.runKey(summary.RunID), data, s.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save run summary: %w", err)
	}

	return nil
}

// Get retrieves a run summary by ID. Returns nil when the run is unknown
// or its entry has expired.
func (s *HistoryStore) Get(ctx context.Context, runID string) (*Summary, error) {
	if runID == "" {
		return nil, fmt.Errorf("run ID cannot be empty")
	}

	data, err := s.client.Get(ctx, s.runKey(runID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run summary: %w", err)
	}

	var summary Summary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run summary: %w", err)
	}

	return &summary, nil
}

// List returns all known run IDs. Expired runs may linger in the index
// until the next Save prunes nothing; callers tolerate Get returning nil.
func (s *HistoryStore) List(ctx context.Context) ([]string, error) {
	runs, err := s.client.SMembers(ctx, s.runsIndexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// Ping verifies connectivity to the Valkey backend.
func (s *HistoryStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Valkey client connection.
func (s *HistoryStore) Close() error {
	return s.client.Close()
}
