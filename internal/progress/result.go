package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/quizhive/proctor-backend/internal/config"
	"github.com/quizhive/proctor-backend/internal/model"
	"github.com/redis/go-redis/v9"
)

// ResultStore hands the graded payload from the controller to the results
// screen. Results are written once, on successful submission, in the same
// step that clears the progress snapshot.
type ResultStore interface {
	SaveResult(ctx context.Context, sessionID string, res *model.SubmitResult) error
	// LoadResult returns the stored result, or (nil, nil) if absent.
	LoadResult(ctx context.Context, sessionID string) (*model.SubmitResult, error)
}

// RedisResultStore keeps graded payloads in Redis with a TTL.
type RedisResultStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisResultStore creates a Redis-backed result store.
func NewRedisResultStore(rdb *redis.Client, ttl time.Duration) *RedisResultStore {
	return &RedisResultStore{rdb: rdb, ttl: ttl}
}

func (s *RedisResultStore) SaveResult(ctx context.Context, sessionID string, res *model.SubmitResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := s.rdb.Set(ctx, config.CacheKey.SessionResultKey(sessionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	return nil
}

func (s *RedisResultStore) LoadResult(ctx context.Context, sessionID string) (*model.SubmitResult, error) {
	data, err := s.rdb.Get(ctx, config.CacheKey.SessionResultKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load result: %w", err)
	}
	var res model.SubmitResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return &res, nil
}

// MemoryResultStore is the in-process ResultStore used in tests.
type MemoryResultStore struct {
	mu      sync.RWMutex
	results map[string]*model.SubmitResult
}

// NewMemoryResultStore creates an empty in-memory result store.
func NewMemoryResultStore() *MemoryResultStore {
	return &MemoryResultStore{results: make(map[string]*model.SubmitResult)}
}

func (s *MemoryResultStore) SaveResult(_ context.Context, sessionID string, res *model.SubmitResult) error {
	s.mu.Lock()
	s.results[sessionID] = res
	s.mu.Unlock()
	return nil
}

func (s *MemoryResultStore) LoadResult(_ context.Context, sessionID string) (*model.SubmitResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.results[sessionID], nil
}
