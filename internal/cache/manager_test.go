package cache

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 Manager 测试
// =============================================================================

// newTestManager 启动 miniredis 并连上 Manager, 两者都挂到 t.Cleanup.
func newTestManager(t *testing.T) (*miniredis.Miniredis, *Manager) {
	t.Helper()

	mr := miniredis.RunT(t)

	manager, err := NewManager(Config{
		Addr:       mr.Addr(),
		DefaultTTL: time.Minute,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	return mr, manager
}

func TestNewManager(t *testing.T) {
	_, manager := newTestManager(t)

	assert.NotNil(t, manager.redis)
	assert.NotNil(t, manager.logger)
}

func TestNewManager_ConnectionRefused(t *testing.T) {
	manager, err := NewManager(Config{Addr: "localhost:1"}, zap.NewNop())

	assert.Nil(t, manager)
	assert.Error(t, err)
}

func TestManager_StringRoundTrip(t *testing.T) {
	_, manager := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "session:s1:latest", "turn-9", time.Minute))

	value, err := manager.Get(ctx, "session:s1:latest")
	require.NoError(t, err)
	assert.Equal(t, "turn-9", value)

	// 删除后读取报未命中
	require.NoError(t, manager.Delete(ctx, "session:s1:latest"))

	value, err = manager.Get(ctx, "session:s1:latest")
	assert.True(t, IsCacheMiss(err))
	assert.Empty(t, value)
}

func TestManager_JSON(t *testing.T) {
	_, manager := newTestManager(t)
	ctx := context.Background()

	type turn struct {
		ID    string `json:"id"`
		Query string `json:"query"`
	}

	t.Run("round trip", func(t *testing.T) {
		want := turn{ID: "turn-1", Query: "営業時間を教えて"}
		require.NoError(t, manager.SetJSON(ctx, "session:s1:turn:1", want, time.Minute))

		var got turn
		require.NoError(t, manager.GetJSON(ctx, "session:s1:turn:1", &got))
		assert.Equal(t, want, got)
	})

	t.Run("miss propagates", func(t *testing.T) {
		var got turn
		err := manager.GetJSON(ctx, "session:s1:turn:404", &got)
		assert.True(t, IsCacheMiss(err))
	})

	t.Run("unmarshalable value", func(t *testing.T) {
		err := manager.SetJSON(ctx, "bad", make(chan int), time.Minute)
		assert.Error(t, err)
	})

	t.Run("corrupt payload", func(t *testing.T) {
		require.NoError(t, manager.Set(ctx, "corrupt", "not a json", time.Minute))

		var got turn
		assert.Error(t, manager.GetJSON(ctx, "corrupt", &got))
	})
}

func TestManager_TTLExpiry(t *testing.T) {
	mr, manager := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "ephemeral", "value", 100*time.Millisecond))

	value, err := manager.Get(ctx, "ephemeral")
	require.NoError(t, err)
	assert.Equal(t, "value", value)

	mr.FastForward(200 * time.Millisecond)

	_, err = manager.Get(ctx, "ephemeral")
	assert.True(t, IsCacheMiss(err))
}

func TestManager_DefaultTTLFallback(t *testing.T) {
	mr, manager := newTestManager(t)
	ctx := context.Background()

	// ttl 为 0 时回退到 DefaultTTL(1 分钟), 而不是永不过期
	require.NoError(t, manager.Set(ctx, "fallback", "value", 0))

	mr.FastForward(2 * time.Minute)

	_, err := manager.Get(ctx, "fallback")
	assert.True(t, IsCacheMiss(err))
}

// =============================================================================
// 🧪 时间线索引测试
// =============================================================================

func TestManager_ZAddAndZRevRange(t *testing.T) {
	_, manager := newTestManager(t)
	ctx := context.Background()

	// 按时间戳插入三个成员
	for i, member := range []string{"turn-1", "turn-2", "turn-3"} {
		require.NoError(t, manager.ZAdd(ctx, "timeline", float64(i+1), member))
	}

	// 按分数降序读取
	members, err := manager.ZRevRange(ctx, "timeline", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"turn-3", "turn-2", "turn-1"}, members)

	// 只取最新两个
	members, err = manager.ZRevRange(ctx, "timeline", 0, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"turn-3", "turn-2"}, members)
}

func TestManager_ZRemRangeByRank(t *testing.T) {
	_, manager := newTestManager(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		require.NoError(t, manager.ZAdd(ctx, "timeline", float64(i), "turn-"+strconv.Itoa(i)))
	}

	// 只保留最新 3 个: 删除排名 0..-(3+1) 的旧成员
	removed, err := manager.ZRemRangeByRank(ctx, "timeline", 0, -4)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	count, err := manager.ZCard(ctx, "timeline")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	members, err := manager.ZRevRange(ctx, "timeline", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"turn-5", "turn-4", "turn-3"}, members)
}

func TestManager_ZRemRangeByScore(t *testing.T) {
	_, manager := newTestManager(t)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		require.NoError(t, manager.ZAdd(ctx, "timeline", float64(i*100), "turn-"+strconv.Itoa(i)))
	}

	// 清理分数 <= 200 的过期项
	removed, err := manager.ZRemRangeByScore(ctx, "timeline", "-inf", "200")
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	members, err := manager.ZRevRange(ctx, "timeline", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"turn-4", "turn-3"}, members)
}

// =============================================================================
// 🧪 哈希、扫描与生命周期
// =============================================================================

func TestManager_HGet(t *testing.T) {
	mr, manager := newTestManager(t)
	ctx := context.Background()

	mr.HSet("flags", "v2_percentage", "25")

	val, err := manager.HGet(ctx, "flags", "v2_percentage")
	require.NoError(t, err)
	assert.Equal(t, "25", val)

	// 缺失字段返回 ErrCacheMiss
	_, err = manager.HGet(ctx, "flags", "missing")
	assert.True(t, IsCacheMiss(err))
}

func TestManager_Scan(t *testing.T) {
	_, manager := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "session:a:turns", "x", time.Minute))
	require.NoError(t, manager.Set(ctx, "session:b:turns", "y", time.Minute))
	require.NoError(t, manager.Set(ctx, "other", "z", time.Minute))

	keys, err := manager.Scan(ctx, "session:*:turns", 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"session:a:turns", "session:b:turns"}, keys)
}

func TestManager_Ping(t *testing.T) {
	_, manager := newTestManager(t)

	assert.NoError(t, manager.Ping(context.Background()))
}

func TestManager_ClosedOperations(t *testing.T) {
	_, manager := newTestManager(t)

	require.NoError(t, manager.Close())

	ctx := context.Background()
	_, err := manager.Get(ctx, "any")
	assert.ErrorIs(t, err, ErrManagerClosed)
	assert.False(t, IsCacheMiss(err))

	assert.ErrorIs(t, manager.ZAdd(ctx, "timeline", 1, "member"), ErrManagerClosed)
	assert.ErrorIs(t, manager.Ping(ctx), ErrManagerClosed)

	// 重复关闭无害
	assert.NoError(t, manager.Close())
}

func TestManager_ConcurrentAccess(t *testing.T) {
	_, manager := newTestManager(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			key := "concurrent-" + strconv.Itoa(id)
			assert.NoError(t, manager.Set(ctx, key, "value", time.Minute))
		}(i)
	}
	wg.Wait()

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			value, err := manager.Get(ctx, "concurrent-"+strconv.Itoa(id))
			assert.NoError(t, err)
			assert.Equal(t, "value", value)
		}(i)
	}
	wg.Wait()
}
