package guard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// releaseScript deletes the key only if it still holds our token.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// RedisOptions configures a Redis guard.
type RedisOptions struct {
	Prefix string        // default "timesheet:guard:"
	TTL    time.Duration // default 30s; bounds how long a crashed holder blocks the key
	Token  func() string // default uuid.NewString
	Logger *zerolog.Logger
}

// Redis is a Guard shared by every process talking to the same Redis.
type Redis struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
	token  func() string
	log    zerolog.Logger
}

var _ Guard = (*Redis)(nil)

// NewRedis wraps an existing client.
func NewRedis(client redis.Cmdable, opts RedisOptions) *Redis {
	if opts.Prefix == "" {
		opts.Prefix = "timesheet:guard:"
	}
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Second
	}
	if opts.Token == nil {
		opts.Token = uuid.NewString
	}
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = opts.Logger.With().Str("component", "guard").Logger()
	}
	return &Redis{
		client: client,
		prefix: opts.Prefix,
		ttl:    opts.TTL,
		token:  opts.Token,
		log:    log,
	}
}

// NewRedisClient creates a client with the pool and timeout settings used in production.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,

		PoolSize:     10,
		MinIdleConns: 2,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
}

func (r *Redis) Acquire(ctx context.Context, key string) (func(), error) {
	fullKey := r.prefix + key
	token := r.token()

	ok, err := r.client.SetNX(ctx, fullKey, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInFlight, key)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// The request context may already be cancelled.
			if err := r.client.Eval(context.Background(), releaseScript, []string{fullKey}, token).Err(); err != nil {
				r.log.Warn().Err(err).Str("key", key).Msg("failed to release guard; it will expire")
			}
		})
	}, nil
}
