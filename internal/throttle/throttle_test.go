package throttle

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func TestCalculationPolicyBlocksEleventhRequest(t *testing.T) {
	clk := &testClock{now: time.Date(2026, 7, 1, 10, 0, 5, 0, time.UTC)}
	denied := NewDeniedCounter()
	l, err := NewLimiter(Calculation, NewMemoryStore(), WithClock(clk.Now), WithDeniedCounter(denied.WithLabelValues(Calculation.Name)))
	require.NoError(t, err)
	ctx := context.Background()

	for i := 1; i <= 10; i++ {
		d, err := l.Allow(ctx, "203.0.113.7")
		require.NoError(t, err)
		assert.True(t, d.Allowed, "request %d", i)
	}
	d, err := l.Allow(ctx, "203.0.113.7")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 55*time.Second, d.RetryAfter)
	assert.Equal(t, 1.0, testutil.ToFloat64(denied.WithLabelValues(Calculation.Name)))

	other, err := l.Allow(ctx, "198.51.100.1")
	require.NoError(t, err)
	assert.True(t, other.Allowed, "clients are counted separately")

	clk.Set(time.Date(2026, 7, 1, 10, 1, 0, 0, time.UTC))
	d, err = l.Allow(ctx, "203.0.113.7")
	require.NoError(t, err)
	assert.True(t, d.Allowed, "next window starts from zero")
	assert.EqualValues(t, 1, d.Count)
}

func TestFixedWindowAllowsBoundaryBurst(t *testing.T) {
	clk := &testClock{now: time.Date(2026, 7, 1, 10, 0, 59, 0, time.UTC)}
	l, err := NewLimiter(Calculation, NewMemoryStore(), WithClock(clk.Now))
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		d, _ := l.Allow(context.Background(), "c")
		require.True(t, d.Allowed)
	}
	clk.Set(time.Date(2026, 7, 1, 10, 1, 0, 0, time.UTC))
	for i := 0; i < 10; i++ {
		d, _ := l.Allow(context.Background(), "c")
		require.True(t, d.Allowed)
	}
}

func TestPoliciesAreIndependent(t *testing.T) {
	clk := &testClock{now: time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)}
	login, err := NewLimiter(AdminLogin, NewMemoryStore(), WithClock(clk.Now))
	require.NoError(t, err)
	general, err := NewLimiter(GeneralAPI, NewMemoryStore(), WithClock(clk.Now))
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		d, _ := login.Allow(ctx, "c")
		require.True(t, d.Allowed)
	}
	d, _ := login.Allow(ctx, "c")
	assert.False(t, d.Allowed)

	g, _ := general.Allow(ctx, "c")
	assert.True(t, g.Allowed)
	assert.EqualValues(t, 99, g.Remaining)
}

func TestNewLimiterValidatesPolicy(t *testing.T) {
	_, err := NewLimiter(Policy{Name: "bad"}, NewMemoryStore())
	assert.Error(t, err)
	_, err = NewLimiter(GeneralAPI, nil)
	assert.Error(t, err)
}

func TestMemoryStorePrunesOldWindows(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	_, _ = m.Incr(ctx, "a", 1, time.Minute)
	_, _ = m.Incr(ctx, "b", 1, time.Minute)
	_, _ = m.Incr(ctx, "a", 5, time.Minute)
	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Len(t, m.counters, 1)
}

func TestRetryAfterSeconds(t *testing.T) {
	assert.Equal(t, "1", RetryAfterSeconds(0))
	assert.Equal(t, "1", RetryAfterSeconds(300*time.Millisecond))
	assert.Equal(t, "55", RetryAfterSeconds(55*time.Second))
	assert.Equal(t, "56", RetryAfterSeconds(55*time.Second+time.Millisecond))
}

func TestRedisStoreIntegration(t *testing.T) {
	addr := strings.TrimSpace(os.Getenv("FAIRRATE_TEST_REDIS_ADDR"))
	if addr == "" {
		t.Skip("set FAIRRATE_TEST_REDIS_ADDR to run the redis throttle test")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	ctx := context.Background()
	require.NoError(t, client.Ping(ctx).Err())

	prefix := "fairrate:test:" + time.Now().Format("150405.000000000")
	clk := &testClock{now: time.Now()}
	l, err := NewLimiter(AdminLogin, NewRedisStore(client, prefix), WithClock(clk.Now))
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		d, err := l.Allow(ctx, "c")
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}
	d, err := l.Allow(ctx, "c")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
}
