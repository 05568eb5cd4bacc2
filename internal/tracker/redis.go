package tracker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "wormwood:consolidation:"

// Redis is a tracker shared by every process serving the same storage
// backend, so an agent's consolidation interval holds across restarts and
// replicas.
type Redis struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(redisURL string, logger *zap.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Redis{rdb: rdb, logger: logger}, nil
}

// Last returns the last consolidation time for the agent, zero if never.
func (r *Redis) Last(ctx context.Context, agentID string) (time.Time, error) {
	val, err := r.rdb.Get(ctx, keyPrefix+agentID).Result()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("read consolidation marker: %w", err)
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse consolidation marker %q: %w", val, err)
	}
	return time.Unix(0, n).UTC(), nil
}

// markScript sets the marker only when the new timestamp is later than the
// stored one, keeping it monotonic under concurrent writers. The marker is
// stored as unix nanoseconds so the comparison is numeric.
var markScript = redis.NewScript(`
	local cur = redis.call('GET', KEYS[1])
	if cur == false or tonumber(ARGV[1]) > tonumber(cur) then
		redis.call('SET', KEYS[1], ARGV[1])
		return 1
	end
	return 0
`)

// Mark records a consolidation at the given time.
func (r *Redis) Mark(ctx context.Context, agentID string, at time.Time) error {
	_, err := markScript.Run(ctx, r.rdb,
		[]string{keyPrefix + agentID},
		strconv.FormatInt(at.UnixNano(), 10),
	).Result()
	if err != nil {
		return fmt.Errorf("write consolidation marker: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (r *Redis) Close() error {
	return r.rdb.Close()
}
