package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/vietddude/buywatch/internal/core/domain"
)

// slidingWindow trims the window, counts it and adds an entry if below limit.
var slidingWindow = redis.NewScript(`
	redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
	local count = redis.call('ZCARD', KEYS[1])
	if count < tonumber(ARGV[2]) then
		redis.call('ZADD', KEYS[1], ARGV[3], ARGV[4])
		redis.call('PEXPIRE', KEYS[1], ARGV[5])
		return 1
	end
	return 0
`)

// HourlyLimiter caps alerts per token over a sliding window, shared by
// every process using the same Redis.
type HourlyLimiter struct {
	client *Client
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewHourlyLimiter allows limit alerts per token per window.
func NewHourlyLimiter(client *Client, limit int, window time.Duration) *HourlyLimiter {
	if window <= 0 {
		window = time.Hour
	}
	return &HourlyLimiter{client: client, limit: limit, window: window, now: time.Now}
}

// Allow consumes one slot for token. A limit of 0 or less always allows.
func (l *HourlyLimiter) Allow(ctx context.Context, chain domain.Chain, token string) (bool, error) {
	if l.limit <= 0 {
		return true, nil
	}

	now := l.now().UnixMilli()
	res, err := slidingWindow.Run(ctx, l.client.rdb, []string{l.client.rateKey(chain, token)},
		now-l.window.Milliseconds(), // ARGV[1]: window start
		l.limit,                     // ARGV[2]: limit
		now,                         // ARGV[3]: score
		uuid.NewString(),            // ARGV[4]: member, unique per call
		l.window.Milliseconds()*2,   // ARGV[5]: key expiration
	).Int64()
	if err != nil {
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}
	return res == 1, nil
}
