package bench

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces every key the Redis sink writes.
const DefaultRedisPrefix = "batchtower"

// DefaultRedisTTL is how long run data is kept in Redis.
const DefaultRedisTTL = 30 * 24 * time.Hour

// RedisSink stores runs in Redis:
//
//	<prefix>:runs               sorted set of run IDs scored by start time
//	<prefix>:run:<id>           hash with start, end, status, error
//	<prefix>:run:<id>:timings   list of JSON-encoded [Record] values
type RedisSink struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisSink connects to the Redis server at url
// (redis://[:password@]host:port/db).
func NewRedisSink(ctx context.Context, url string) (*RedisSink, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return NewRedisSinkFromClient(client, DefaultRedisPrefix, DefaultRedisTTL), nil
}

// NewRedisSinkFromClient wraps an existing client. The sink takes
// ownership: Close closes the client.
func NewRedisSinkFromClient(client *redis.Client, prefix string, ttl time.Duration) *RedisSink {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisSink{client: client, prefix: prefix, ttl: ttl}
}

// RunsKey returns the key of the run index.
func (s *RedisSink) RunsKey() string { return s.prefix + ":runs" }

// RunKey returns the key of a run's hash.
func (s *RedisSink) RunKey(runID string) string { return s.prefix + ":run:" + runID }

// TimingsKey returns the key of a run's timing list.
func (s *RedisSink) TimingsKey(runID string) string { return s.RunKey(runID) + ":timings" }

func (s *RedisSink) RunStarted(ctx context.Context, runID string, start time.Time) error {
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZAdd(ctx, s.RunsKey(), redis.Z{Score: float64(start.Unix()), Member: runID})
		p.HSet(ctx, s.RunKey(runID), "start", start.Format(time.RFC3339Nano), "status", "running")
		s.expire(ctx, p, s.RunKey(runID))
		return nil
	})
	return err
}

func (s *RedisSink) NodeStarted(ctx context.Context, runID, node string, start time.Time) error {
	return s.client.HSet(ctx, s.RunKey(runID), "node:"+node+":start", start.Format(time.RFC3339Nano)).Err()
}

func (s *RedisSink) NodeFinished(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.RPush(ctx, s.TimingsKey(rec.RunID), data)
		s.expire(ctx, p, s.TimingsKey(rec.RunID))
		return nil
	})
	return err
}

func (s *RedisSink) RunFinished(ctx context.Context, runID string, _, end time.Time, runErr error) error {
	fields := []any{"end", end.Format(time.RFC3339Nano), "status", runStatus(runErr)}
	if runErr != nil {
		fields = append(fields, "error", runErr.Error())
	}
	return s.client.HSet(ctx, s.RunKey(runID), fields...).Err()
}

func (s *RedisSink) expire(ctx context.Context, p redis.Pipeliner, key string) {
	if s.ttl > 0 {
		p.Expire(ctx, key, s.ttl)
	}
}

func (s *RedisSink) Close() error { return s.client.Close() }

func runStatus(err error) string {
	if err != nil {
		return "aborted"
	}
	return "completed"
}

var _ Sink = (*RedisSink)(nil)
