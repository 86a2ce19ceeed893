package redis

import (
	"context"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
)

// Options addresses the Redis server backing the persistent schema tier.
type Options struct {
	Host     string
	Port     string
	Password string
	Attempts int           // initial ping attempts (default: 5)
	Backoff  time.Duration // pause between attempts (default: 2s)
}

// RedisClient dials Redis and pings it until it answers or the attempts run
// out. The returned client is always usable when err is nil.
func RedisClient(ctx context.Context, opts Options) (*redis.Client, error) {
	if opts.Attempts <= 0 {
		opts.Attempts = 5
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 2 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:         net.JoinHostPort(opts.Host, opts.Port),
		Password:     opts.Password,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		PoolSize:     10,
		MaxRetries:   3,
	})

	var err error
	for attempt := 1; attempt <= opts.Attempts; attempt++ {
		if err = client.Ping(ctx).Err(); err == nil {
			log.Printf("Redis -> RedisClient -> Connected to %s", client.Options().Addr)
			return client, nil
		}
		log.Printf("Redis -> RedisClient -> Ping %d/%d failed: %v", attempt, opts.Attempts, err)
		if attempt == opts.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			_ = client.Close()
			return nil, fmt.Errorf("redis connect cancelled: %w", ctx.Err())
		case <-time.After(opts.Backoff):
		}
	}
	_ = client.Close()
	return nil, fmt.Errorf("failed to connect to Redis after %d attempts: %w", opts.Attempts, err)
}
