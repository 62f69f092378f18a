package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront/pkg/config"
)

func TestFixedWindowAllow(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	for hit := int64(1); hit <= 3; hit++ {
		allowed, count, err := client.FixedWindowAllow(ctx, "test-scope", 2, time.Second)
		require.NoError(t, err)
		assert.Equal(t, hit, count)
		assert.Equal(t, hit <= 2, allowed, "hit %d", hit)
	}
	assert.Equal(t, time.Second.Milliseconds(), mock.ttl["sf:rate_limit:test-scope"])
	assert.Equal(t, 1, mock.ttlSets, "window expiry is armed on the first hit only")
}

func TestLockLifecycle(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}
	const job = "payment-reconcile"

	ok, err := client.AcquireLock(ctx, job, "worker-a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = client.AcquireLock(ctx, job, "worker-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second worker must not take a held lease")

	require.NoError(t, client.ReleaseLock(ctx, job, "worker-b"))
	_, err = client.Get(ctx, client.LockKey(job))
	assert.NoError(t, err, "non-owner release keeps the lease")

	require.NoError(t, client.ReleaseLock(ctx, job, "worker-a"))
	_, err = client.Get(ctx, client.LockKey(job))
	assert.ErrorIs(t, err, redis.Nil)

	assert.NoError(t, client.ReleaseLock(ctx, job, "worker-a"), "releasing a missing lease is a no-op")
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	assert.Equal(t, "sf:idempotency:scope:id", client.IdempotencyKey("scope", "id"))
	assert.Equal(t, "sf:rate_limit:scope", client.RateLimitKey("scope"))
	assert.Equal(t, "sf:lock:job", client.LockKey("job"))
	assert.Equal(t, "sf:idempotency:scope", client.IdempotencyKey("scope", ""))

	staging := &Client{keys: keyspace("staging")}
	assert.Equal(t, "staging:lock:job", staging.LockKey(" job "))
}

func TestDialOptions(t *testing.T) {
	cfg := config.RedisConfig{
		URL:         "redis://:secret@cache.internal:6380/3",
		DB:          1,
		PoolSize:    12,
		DialTimeout: 2 * time.Second,
	}
	opts, err := dialOptions(cfg)
	require.NoError(t, err)
	assert.Equal(t, "cache.internal:6380", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 3, opts.DB, "the url database wins")
	assert.Equal(t, 12, opts.PoolSize)
	assert.Equal(t, 2*time.Second, opts.DialTimeout)

	opts, err = dialOptions(config.RedisConfig{Address: "localhost:6379", DB: 2})
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)
	assert.Equal(t, 2, opts.DB)

	_, err = dialOptions(config.RedisConfig{})
	assert.Error(t, err)
}

func TestUninitializedClient(t *testing.T) {
	client := &Client{}
	assert.Error(t, client.Ping(context.Background()))
	_, _, err := client.FixedWindowAllow(context.Background(), "x", 1, time.Second)
	assert.ErrorIs(t, err, errNotConnected)
}

// mockCmdable interprets the two Lua scripts the client ships; EvalSha
// always misses so go-redis falls back to Eval with the full source.
type mockCmdable struct {
	data    map[string]string
	counter map[string]int64
	ttl     map[string]int64
	ttlSets int
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{
		data:    make(map[string]string),
		counter: make(map[string]int64),
		ttl:     make(map[string]int64),
	}
}

func (m *mockCmdable) Eval(_ context.Context, script string, keys []string, args ...any) *redis.Cmd {
	switch script {
	case windowLua:
		m.counter[keys[0]]++
		if m.counter[keys[0]] == 1 {
			m.ttl[keys[0]] = args[0].(int64)
			m.ttlSets++
		}
		return redis.NewCmdResult(m.counter[keys[0]], nil)
	case releaseLua:
		if m.data[keys[0]] == args[0] {
			delete(m.data, keys[0])
			return redis.NewCmdResult(int64(1), nil)
		}
		return redis.NewCmdResult(int64(0), nil)
	}
	return redis.NewCmdResult(nil, fmt.Errorf("unexpected script"))
}

func (m *mockCmdable) EvalSha(context.Context, string, []string, ...any) *redis.Cmd {
	return redis.NewCmdResult(nil, noScriptError{})
}

// noScriptError satisfies redis.Error so Script.Run takes the Eval path.
type noScriptError struct{}

func (noScriptError) Error() string { return "NOSCRIPT No matching script" }
func (noScriptError) RedisError()   {}

func (m *mockCmdable) EvalRO(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd {
	return m.Eval(ctx, script, keys, args...)
}

func (m *mockCmdable) EvalShaRO(ctx context.Context, sha string, keys []string, args ...any) *redis.Cmd {
	return m.EvalSha(ctx, sha, keys, args...)
}

func (m *mockCmdable) ScriptExists(_ context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult(make([]bool, len(hashes)), nil)
}

func (m *mockCmdable) ScriptLoad(context.Context, string) *redis.StringCmd {
	return redis.NewStringResult("", nil)
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Set(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	m.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}
