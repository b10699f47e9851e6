package presence

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Store reference-counts live connections per user. Decr never goes below
// zero. Implementations must be safe for concurrent use.
type Store interface {
	Incr(ctx context.Context, userID uuid.UUID) (int64, error)
	Decr(ctx context.Context, userID uuid.UUID) (int64, error)
	Count(ctx context.Context, userID uuid.UUID) (int64, error)
}

// MemoryStore is the default: counts live and die with the process.
type MemoryStore struct {
	mu     sync.Mutex
	counts map[uuid.UUID]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counts: make(map[uuid.UUID]int64)}
}

func (s *MemoryStore) Incr(_ context.Context, userID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[userID]++
	return s.counts[userID], nil
}

func (s *MemoryStore) Decr(_ context.Context, userID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.counts[userID] - 1
	if n <= 0 {
		delete(s.counts, userID)
		return 0, nil
	}
	s.counts[userID] = n
	return n, nil
}

func (s *MemoryStore) Count(_ context.Context, userID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[userID], nil
}

// RedisStore keeps counts in Redis under "presence:<user id>".
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: "presence:"}
}

func (s *RedisStore) key(userID uuid.UUID) string {
	return s.prefix + userID.String()
}

func (s *RedisStore) Incr(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := s.rdb.Incr(ctx, s.key(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("incr presence: %w", err)
	}
	return n, nil
}

// decrScript floors the counter at zero and drops the key when it gets there.
var decrScript = redis.NewScript(`
local n = redis.call("DECR", KEYS[1])
if n <= 0 then
  redis.call("DEL", KEYS[1])
  return 0
end
return n
`)

func (s *RedisStore) Decr(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := decrScript.Run(ctx, s.rdb, []string{s.key(userID)}).Int64()
	if err != nil {
		return 0, fmt.Errorf("decr presence: %w", err)
	}
	return n, nil
}

func (s *RedisStore) Count(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := s.rdb.Get(ctx, s.key(userID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get presence: %w", err)
	}
	return n, nil
}

// Reset deletes every presence key. Called at startup: counts left by a
// previous process are stale because all of its connections are gone.
func (s *RedisStore) Reset(ctx context.Context) error {
	iter := s.rdb.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan presence keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete presence keys: %w", err)
	}
	return nil
}
