package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const waitedField = "waited_ms"

// RedisStats records throttle decisions in Redis hashes so several replicas
// can be observed from one place. It does not coordinate budgets.
type RedisStats struct {
	rdb     *redis.Client
	prefix  string
	ttl     time.Duration
	timeout time.Duration
}

// RedisStatsOption configures RedisStats.
type RedisStatsOption func(*RedisStats)

// WithRedisPrefix sets the key prefix (default "painel:throttle").
func WithRedisPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStats) {
		if p := strings.Trim(strings.TrimSpace(prefix), ":"); p != "" {
			s.prefix = p
		}
	}
}

// WithRedisTTL sets the expiry of per-minute bucket keys.
func WithRedisTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStats) { s.ttl = d }
}

// WithRedisTimeout bounds each Record call.
func WithRedisTimeout(d time.Duration) RedisStatsOption {
	return func(s *RedisStats) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewRedisStats wraps an existing client.
func NewRedisStats(rdb *redis.Client, opts ...RedisStatsOption) *RedisStats {
	s := &RedisStats{
		rdb:     rdb,
		prefix:  "painel:throttle",
		ttl:     24 * time.Hour,
		timeout: 250 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStats) Record(ctx context.Context, d Decision) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	at := d.At
	if at.IsZero() {
		at = time.Now()
	}

	endpointKey := s.endpointKey(d.Endpoint)
	bucketKey := fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))

	pipe := s.rdb.Pipeline()
	pipe.SAdd(ctx, s.prefix+":endpoints", d.Endpoint)
	pipe.HIncrBy(ctx, endpointKey, string(d.Outcome), 1)
	if d.Waited > 0 {
		pipe.HIncrBy(ctx, endpointKey, waitedField, d.Waited.Milliseconds())
	}
	pipe.HIncrBy(ctx, bucketKey, d.Endpoint+":"+string(d.Outcome), 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, bucketKey, s.ttl)
	}

	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStats) Counters(ctx context.Context) (map[string]EndpointCounters, error) {
	if s == nil || s.rdb == nil {
		return map[string]EndpointCounters{}, nil
	}

	endpoints, err := s.rdb.SMembers(ctx, s.prefix+":endpoints").Result()
	if err != nil {
		return nil, fmt.Errorf("list throttle endpoints: %w", err)
	}

	out := make(map[string]EndpointCounters, len(endpoints))
	for _, endpoint := range endpoints {
		fields, err := s.rdb.HGetAll(ctx, s.endpointKey(endpoint)).Result()
		if err != nil {
			return nil, fmt.Errorf("read throttle counters for %s: %w", endpoint, err)
		}

		c := EndpointCounters{Outcomes: make(map[Outcome]int64, len(fields))}
		for field, raw := range fields {
			value, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				continue
			}
			if field == waitedField {
				c.Waited = time.Duration(value) * time.Millisecond
				continue
			}
			c.Outcomes[Outcome(field)] = value
		}
		out[endpoint] = c
	}
	return out, nil
}

// Ping checks connectivity; used by the health checker.
func (s *RedisStats) Ping(ctx context.Context) error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Ping(ctx).Err()
}

// Close releases the underlying client.
func (s *RedisStats) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

func (s *RedisStats) endpointKey(endpoint string) string {
	return s.prefix + ":endpoint:" + endpoint
}
