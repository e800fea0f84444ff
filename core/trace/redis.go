package trace

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps records in a Redis sorted set scored by their timestamp
// in microseconds. The set is trimmed to maxLen entries when maxLen is
// positive.
type RedisStore struct {
	rdb    *redis.Client
	key    string
	maxLen int64
}

// NewRedisStore connects to Redis and checks connectivity. Records are
// stored under "grocerybot:<namespace>:trace".
func NewRedisStore(ctx context.Context, opts *redis.Options, namespace string, maxLen int64) (*RedisStore, error) {
	if namespace == "" {
		return nil, fmt.Errorf("namespace cannot be empty")
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{rdb: rdb, key: "grocerybot:" + namespace + ":trace", maxLen: maxLen}, nil
}

// Append adds the record to the sorted set.
func (s *RedisStore) Append(ctx context.Context, rec Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.ZAdd(ctx, s.key, redis.Z{Score: float64(rec.Timestamp.UnixMicro()), Member: string(b)})
	if s.maxLen > 0 {
		pipe.ZRemRangeByRank(ctx, s.key, 0, -s.maxLen-1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append trace record: %w", err)
	}
	return nil
}

// Query returns records matching q, oldest first.
func (s *RedisStore) Query(ctx context.Context, q Query) ([]Record, error) {
	rng := &redis.ZRangeBy{Min: "-inf", Max: "+inf"}
	if !q.Start.IsZero() {
		rng.Min = strconv.FormatInt(q.Start.UnixMicro(), 10)
	}
	if !q.End.IsZero() {
		rng.Max = strconv.FormatInt(q.End.UnixMicro(), 10)
	}
	members, err := s.rdb.ZRangeByScore(ctx, s.key, rng).Result()
	if err != nil {
		return nil, fmt.Errorf("query trace records: %w", err)
	}
	res := make([]Record, 0, len(members))
	for _, m := range members {
		var r Record
		if err := json.Unmarshal([]byte(m), &r); err != nil {
			continue
		}
		if q.Match(r) {
			res = append(res, r)
		}
	}
	return limit(res, q.Limit), nil
}

// Len returns the number of stored records.
func (s *RedisStore) Len(ctx context.Context) (int64, error) {
	return s.rdb.ZCard(ctx, s.key).Result()
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error { return s.rdb.Close() }
