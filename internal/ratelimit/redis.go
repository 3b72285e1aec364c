package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/JakeFAU/contact-intake/internal/intake"
)

// slidingWindow trims entries at or before the cutoff, then adds the current
// timestamp only if the remaining count is below the limit.
//
// KEYS[1] key; ARGV: now ms, cutoff ms, limit, window ms, member.
var slidingWindow = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[2])
if redis.call('ZCARD', KEYS[1]) >= tonumber(ARGV[3]) then
  return 0
end
redis.call('ZADD', KEYS[1], ARGV[1], ARGV[5])
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return 1
`)

// RedisConfig configures the Redis sliding-window backend.
type RedisConfig struct {
	URL     string
	Prefix  string
	Limit   int
	Window  time.Duration
	Timeout time.Duration
}

// Redis is a sliding-window log shared by every instance.
type Redis struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
	clock  intake.Clock
}

// NewRedis connects to cfg.URL and verifies the server answers.
func NewRedis(ctx context.Context, cfg RedisConfig, clock intake.Clock) (*Redis, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis url is empty")
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if cfg.Timeout > 0 {
		opts.DialTimeout = cfg.Timeout
		opts.ReadTimeout = cfg.Timeout
		opts.WriteTimeout = cfg.Timeout
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Redis{
		client: client,
		prefix: cfg.Prefix,
		limit:  cfg.Limit,
		window: cfg.Window,
		clock:  clock,
	}, nil
}

// Name implements Backend.
func (*Redis) Name() string { return "redis" }

// Allow implements Backend atomically on the server.
func (r *Redis) Allow(ctx context.Context, identifier string) (bool, error) {
	now := r.clock.Now().UnixMilli()
	cutoff := now - r.window.Milliseconds()
	member := strconv.FormatInt(now, 10) + "-" + uuid.NewString()

	res, err := slidingWindow.Run(ctx, r.client, []string{r.key(identifier)},
		now, cutoff, r.limit, r.window.Milliseconds(), member).Int64()
	if err != nil {
		return false, fmt.Errorf("redis sliding window: %w", err)
	}
	return res == 1, nil
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	if err := r.client.Close(); err != nil {
		return fmt.Errorf("close redis: %w", err)
	}
	return nil
}

func (r *Redis) key(identifier string) string {
	return r.prefix + ":" + identifier
}
