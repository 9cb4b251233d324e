package biometric

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// AttemptLimiter throttles verification attempts per staff member within a
// sliding window, independent of match outcome.
type AttemptLimiter interface {
	// Allow records one attempt for the key and reports whether it is
	// within the limit. The read-modify-write is atomic per key.
	Allow(ctx context.Context, staffID string) (bool, error)
}

// MemoryLimiter is a mutex-guarded sliding-window limiter suitable for a
// single service instance.
type MemoryLimiter struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
	limit    int
	window   time.Duration
	now      func() time.Time
}

// NewMemoryLimiter constructs an in-memory limiter.
func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	if limit <= 0 {
		limit = 5
	}
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &MemoryLimiter{
		attempts: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

// Allow implements AttemptLimiter.
func (l *MemoryLimiter) Allow(ctx context.Context, staffID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	valid := l.attempts[staffID][:0]
	for _, at := range l.attempts[staffID] {
		if at.After(cutoff) {
			valid = append(valid, at)
		}
	}

	if len(valid) >= l.limit {
		l.attempts[staffID] = valid
		return false, nil
	}

	l.attempts[staffID] = append(valid, now)
	return true, nil
}

// allowScript trims, counts, and records in one atomic evaluation so
// concurrent attempts for the same key cannot both slip under the limit.
var allowScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], 0, ARGV[1])
if redis.call('ZCARD', KEYS[1]) >= tonumber(ARGV[2]) then
	return 0
end
redis.call('ZADD', KEYS[1], ARGV[3], ARGV[4])
redis.call('PEXPIRE', KEYS[1], ARGV[5])
return 1
`)

// RedisLimiter is a sliding-window limiter backed by a Redis sorted set so
// the attempt budget holds across multiple service instances. The
// check-and-record runs as a single Lua script keyed per staff member.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
}

// NewRedisLimiter constructs a Redis-backed limiter.
func NewRedisLimiter(client *redis.Client, limit int, window time.Duration) *RedisLimiter {
	if limit <= 0 {
		limit = 5
	}
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &RedisLimiter{client: client, limit: limit, window: window, prefix: "biometric:attempts:"}
}

// Allow implements AttemptLimiter.
func (l *RedisLimiter) Allow(ctx context.Context, staffID string) (bool, error) {
	key := l.prefix + staffID
	now := time.Now()

	res, err := allowScript.Run(ctx, l.client, []string{key},
		now.Add(-l.window).UnixMilli(),
		l.limit,
		now.UnixMilli(),
		uuid.NewString(),
		l.window.Milliseconds(),
	).Int64()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}
