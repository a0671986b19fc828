package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/quizhive/proctor-backend/internal/config"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps snapshots in Redis under session:{id}:progress. Every
// save is also queued for the snapshot worker, which mirrors it to Postgres
// so an evicted Redis record still leaves an audit trail.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore creates a Redis-backed snapshot store.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// queuedSnapshot is the payload drained by the snapshot worker.
type queuedSnapshot struct {
	SessionID string          `json:"session_id"`
	Snapshot  json.RawMessage `json:"snapshot"`
	Timestamp int64           `json:"timestamp"`
}

func (s *RedisStore) Save(ctx context.Context, sessionID string, snap *Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := s.rdb.Set(ctx, config.CacheKey.SessionProgressKey(sessionID), data, 0).Err(); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	// Durable mirror is best-effort; the Redis record above is the one the
	// controller reads back.
	queued, _ := json.Marshal(queuedSnapshot{
		SessionID: sessionID,
		Snapshot:  data,
		Timestamp: time.Now().Unix(),
	})
	_ = s.rdb.RPush(ctx, config.WorkerKey.PersistSnapshotsQueue, queued).Err()

	return nil
}

func (s *RedisStore) Load(ctx context.Context, sessionID string) (*Snapshot, error) {
	data, err := s.rdb.Get(ctx, config.CacheKey.SessionProgressKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		// A corrupt snapshot is treated as absent: starting fresh beats
		// refusing the session.
		return nil, nil
	}
	return &snap, nil
}

func (s *RedisStore) Clear(ctx context.Context, sessionID string) error {
	if err := s.rdb.Del(ctx, config.CacheKey.SessionProgressKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}
	return nil
}
