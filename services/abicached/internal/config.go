package internal

import (
	"fmt"
	"time"
)

type Config struct {
	ThreadPoolSize  int           `name:"thread-pool-size" alias:"workers" default:"4" help:"Number of trace processing workers"`
	TaskQueueSize   int           `name:"task-queue-size" default:"0" help:"Pending traces before the feed is stalled (0 = thread-pool-size*8192)"`
	StallStep       time.Duration `name:"stall-step" default:"5ms" help:"Stall increment per check while the queue is over the limit"`
	StallMax        time.Duration `name:"stall-max" default:"1s" help:"Upper bound on a single stall"`
	RedisIP         string        `name:"redis-ip" help:"Redis host (empty disables the Redis store)"`
	RedisPort       int           `name:"redis-port" default:"6379" help:"Redis port"`
	RedisPassword   string        `name:"redis-password" help:"Redis password"`
	RedisDB         int           `name:"redis-db" default:"0" help:"Redis database number"`
	StorePath       string        `name:"store-path" help:"Local pebble store directory (alternative to Redis)"`
	StoreCompress   bool          `name:"store-compress" default:"true" help:"zstd-compress ABIs in the local store"`
	CacheMaxEntries int           `name:"cache-max-entries" default:"0" help:"Bound the in-memory ABI cache with an LRU (0 = unbounded)"`
	TraceListen     string        `name:"trace-listen" default:"127.0.0.1:9450" help:"Websocket address traces are pushed to ('none' to disable)"`
	AckInterval     int           `name:"ack-interval" default:"1000" help:"Acknowledge the trace producer every N traces"`
	HTTPListen      string        `name:"http-listen" default:":9451" help:"HTTP API TCP address ('none' to disable)"`
	HTTPSocket      string        `name:"http-socket" default:"none" help:"HTTP API Unix socket ('none' to disable)"`
	MetricsListen   string        `name:"metrics-listen" default:"none" help:"Metrics endpoint address (e.g., 'localhost:9090' or '/path/to/metrics.sock')"`
	LogFilter       []string      `name:"log-filter" default:"startup,ingest,cache,store,http,stats" help:"Log category filter (comma-separated)"`
	LogFile         string        `name:"log-file" help:"Log output file path (logs to both stdout and file when set)"`
	LogInterval     string        `name:"log-interval" default:"10s" help:"Stats log interval. Supports duration syntax (500ms, 1s, 3s)."`
	Debug           bool          `help:"Enable debug logging (all categories)"`
	Profile         bool          `help:"Enable periodic CPU profiling"`
	ProfileInterval int           `name:"profile-interval" default:"60" help:"Profile logging interval in seconds"`
	PprofPort       string        `name:"pprof-port" help:"Port for pprof debugging endpoint"`
}

func (c *Config) Validate() error {
	if c.ThreadPoolSize <= 0 {
		return fmt.Errorf("thread-pool-size must be positive")
	}
	if c.TaskQueueSize < 0 {
		return fmt.Errorf("task-queue-size must not be negative")
	}
	if c.StallStep <= 0 || c.StallMax < c.StallStep {
		return fmt.Errorf("stall-step must be positive and no larger than stall-max")
	}
	if c.RedisIP != "" && c.StorePath != "" {
		return fmt.Errorf("redis-ip and store-path are mutually exclusive")
	}
	if c.AckInterval <= 0 {
		return fmt.Errorf("ack-interval must be positive")
	}
	if c.CacheMaxEntries < 0 {
		return fmt.Errorf("cache-max-entries must not be negative")
	}
	return nil
}

// QueueLimit is the pending trace count above which the producer is stalled.
func (c *Config) QueueLimit() int {
	if c.TaskQueueSize > 0 {
		return c.TaskQueueSize
	}
	return c.ThreadPoolSize * 8192
}

func (c *Config) GetLogInterval() time.Duration {
	if c.LogInterval == "" {
		return 10 * time.Second
	}
	if parsed, err := time.ParseDuration(c.LogInterval); err == nil {
		return parsed
	}
	if secs, err := time.ParseDuration(c.LogInterval + "s"); err == nil {
		return secs
	}
	return 10 * time.Second
}
