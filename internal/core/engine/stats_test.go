package engine

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestMemoryStatsCountersAreCopies(t *testing.T) {
	stats := NewMemoryStats()
	ctx := context.Background()

	require.NoError(t, stats.Record(ctx, Decision{Endpoint: "deposit", Outcome: OutcomeExecuted, Waited: 30 * time.Second}))
	require.NoError(t, stats.Record(ctx, Decision{Endpoint: "deposit", Outcome: OutcomeExecuted}))

	counters, err := stats.Counters(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), counters["deposit"].Outcomes[OutcomeExecuted])
	require.Equal(t, 30*time.Second, counters["deposit"].Waited)

	counters["deposit"].Outcomes[OutcomeExecuted] = 99
	again, err := stats.Counters(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), again["deposit"].Outcomes[OutcomeExecuted])
}

func TestRedisStats(t *testing.T) {
	addr := os.Getenv("PAINEL_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("PAINEL_TEST_REDIS_ADDR not set")
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	prefix := "painel:test:" + uuid.NewString()
	stats := NewRedisStats(rdb, WithRedisPrefix(prefix), WithRedisTTL(time.Minute))
	t.Cleanup(func() {
		keys, _ := rdb.Keys(context.Background(), prefix+":*").Result()
		if len(keys) > 0 {
			rdb.Del(context.Background(), keys...)
		}
		_ = stats.Close()
	})

	ctx := context.Background()
	require.NoError(t, stats.Ping(ctx))
	require.NoError(t, stats.Record(ctx, Decision{Endpoint: "withdraw", Outcome: OutcomeExecuted, Waited: 1500 * time.Millisecond}))
	require.NoError(t, stats.Record(ctx, Decision{Endpoint: "withdraw", Outcome: OutcomeRejected}))

	counters, err := stats.Counters(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), counters["withdraw"].Outcomes[OutcomeExecuted])
	require.Equal(t, int64(1), counters["withdraw"].Outcomes[OutcomeRejected])
	require.Equal(t, 1500*time.Millisecond, counters["withdraw"].Waited)
}

func TestRedisStatsNilClient(t *testing.T) {
	stats := NewRedisStats(nil)
	require.NoError(t, stats.Record(context.Background(), Decision{Endpoint: "ping", Outcome: OutcomeExecuted}))
	counters, err := stats.Counters(context.Background())
	require.NoError(t, err)
	require.Empty(t, counters)
}
