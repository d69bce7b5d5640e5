package store

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/greymass/abicached/libraries/logger"
	"github.com/greymass/abicached/services/abicached/internal/metrics"
	"github.com/redis/go-redis/v9"
)

type RedisOptions struct {
	Host     string
	Port     int
	Password string
	DB       int
	Timeout  time.Duration
}

func (o RedisOptions) Addr() string {
	return net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
}

// Redis owns one connection; commands on it are serialised.
type Redis struct {
	mu     sync.Mutex
	client *redis.Client
}

// NewRedis connects and pings; an unreachable server is an error.
func NewRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr(),
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     1,
		DialTimeout:  opts.Timeout,
		ReadTimeout:  opts.Timeout,
		WriteTimeout: opts.Timeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", opts.Addr(), err)
	}
	return &Redis{client: client}, nil
}

// OpenRedis opens one connection per worker slot.
func OpenRedis(ctx context.Context, opts RedisOptions, slots int) ([]Store, error) {
	stores := make([]Store, 0, slots)
	for i := 0; i < slots; i++ {
		r, err := NewRedis(ctx, opts)
		if err != nil {
			CloseAll(stores)
			return nil, err
		}
		stores = append(stores, r)
	}
	logger.Printf("store", "Connected %d redis connections to %s (db %d)", slots, opts.Addr(), opts.DB)
	return stores, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte) error {
	start := time.Now()
	r.mu.Lock()
	err := r.client.Set(ctx, key, value, 0).Err()
	r.mu.Unlock()
	observe("set", start, err)
	if err != nil {
		return redisError("set", key, err)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	start := time.Now()
	r.mu.Lock()
	value, err := r.client.Get(ctx, key).Bytes()
	r.mu.Unlock()
	if errors.Is(err, redis.Nil) {
		observe("get", start, nil)
		return nil, false, nil
	}
	observe("get", start, err)
	if err != nil {
		return nil, false, redisError("get", key, err)
	}
	return value, true, nil
}

func (r *Redis) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.client.Close()
}

func redisError(op, key string, err error) error {
	var reply redis.Error
	return &Error{Op: op, Key: key, Reply: errors.As(err, &reply), Err: err}
}

func observe(op string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.StoreOps.WithLabelValues(op, status).Inc()
	metrics.StoreDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
