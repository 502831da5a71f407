package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenBucket is the paid-provider admission check. TryTake never blocks:
// when the bucket is empty the task defers instead of sleeping unbounded.
type TokenBucket interface {
	TryTake(ctx context.Context, provider string) (bool, error)
}

// LocalBucket is an in-process leaky bucket per provider.
type LocalBucket struct {
	mu       sync.Mutex
	capacity float64
	rate     float64 // tokens per second
	state    map[string]*bucketState
}

type bucketState struct {
	tokens float64
	last   time.Time
}

// NewLocalBucket creates a bucket set. Capacity is the burst allowance; rate
// is the sustained refill in tokens per second.
func NewLocalBucket(capacity int, rate float64) *LocalBucket {
	if capacity <= 0 {
		capacity = 3
	}
	if rate <= 0 {
		rate = 0.5
	}
	return &LocalBucket{
		capacity: float64(capacity),
		rate:     rate,
		state:    make(map[string]*bucketState),
	}
}

// TryTake consumes one token if available.
func (b *LocalBucket) TryTake(_ context.Context, provider string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	st, ok := b.state[provider]
	if !ok {
		st = &bucketState{tokens: b.capacity, last: now}
		b.state[provider] = st
	}

	elapsed := now.Sub(st.last).Seconds()
	st.tokens += elapsed * b.rate
	if st.tokens > b.capacity {
		st.tokens = b.capacity
	}
	st.last = now

	if st.tokens < 1 {
		return false, nil
	}
	st.tokens--
	return true, nil
}

// fleetBucketScript refills and consumes atomically so multiple pipeline
// processes sharing one paid quota cannot race past it.
// KEYS[1] = bucket key, ARGV = rate, capacity, cost, now (unix seconds).
var fleetBucketScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local cost = tonumber(ARGV[3])
local now = tonumber(ARGV[4])

local state = redis.call("HMGET", key, "tokens", "last_refill")
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])

if not tokens or not last_refill then
    tokens = capacity
    last_refill = now
end

local elapsed = now - last_refill
if elapsed > 0 then
    tokens = tokens + elapsed * rate
    if tokens > capacity then
        tokens = capacity
    end
    last_refill = now
end

local allowed = 0
if tokens >= cost then
    tokens = tokens - cost
    allowed = 1
end

redis.call("HMSET", key, "tokens", tokens, "last_refill", last_refill)
redis.call("EXPIRE", key, 3600)

return allowed
`)

// FleetBucket shares one token bucket per provider across processes via
// Redis. Used when several pipeline instances draw on the same paid keys.
type FleetBucket struct {
	client   *redis.Client
	capacity int
	rate     float64
	fallback *LocalBucket
}

// NewFleetBucket connects to Redis; on any Redis error at take time the
// bucket falls back to the in-process limiter rather than failing the task.
func NewFleetBucket(addr string, capacity int, rate float64) *FleetBucket {
	return &FleetBucket{
		client:   redis.NewClient(&redis.Options{Addr: addr}),
		capacity: capacity,
		rate:     rate,
		fallback: NewLocalBucket(capacity, rate),
	}
}

// TryTake consumes one token from the shared bucket.
func (b *FleetBucket) TryTake(ctx context.Context, provider string) (bool, error) {
	key := fmt.Sprintf("triangulate:bucket:%s", provider)
	now := float64(time.Now().UnixMicro()) / 1e6

	res, err := fleetBucketScript.Run(ctx, b.client, []string{key}, b.rate, b.capacity, 1, now).Result()
	if err != nil {
		return b.fallback.TryTake(ctx, provider)
	}
	allowed, ok := res.(int64)
	if !ok {
		return false, fmt.Errorf("fleet bucket: unexpected script result %T", res)
	}
	return allowed == 1, nil
}
