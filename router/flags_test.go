package router

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/kitadake/concierge/internal/cache"
)

func newTestCache(t *testing.T) (*miniredis.Miniredis, *cache.Manager) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	mgr, err := cache.NewManager(cache.Config{
		Addr:       mr.Addr(),
		DefaultTTL: time.Minute,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })

	return mr, mgr
}

func TestBucket_StableAndInRange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		sessionID := rapid.String().Draw(t, "sessionID")

		b := Bucket(sessionID)
		assert.GreaterOrEqual(t, b, 0)
		assert.Less(t, b, 100)

		// 同一会话永远落在同一桶
		assert.Equal(t, b, Bucket(sessionID))
	})
}

func TestStaticFlags_PercentageAndBool(t *testing.T) {
	flags := NewStaticFlags(map[string]int{
		FlagV2Percentage: 100,
		FlagParallel:     0,
		"overflow":       250,
		"negative":       -5,
	})
	ctx := context.Background()

	assert.Equal(t, 100, flags.Percentage(ctx, FlagV2Percentage))
	assert.Equal(t, 0, flags.Percentage(ctx, FlagParallel))
	assert.Equal(t, 0, flags.Percentage(ctx, "missing"))

	// 越界值收敛到 [0,100]
	assert.Equal(t, 100, flags.Percentage(ctx, "overflow"))
	assert.Equal(t, 0, flags.Percentage(ctx, "negative"))

	assert.True(t, flags.Bool(ctx, FlagV2Percentage, "any-session"))
	assert.False(t, flags.Bool(ctx, FlagParallel, "any-session"))
}

func TestRedisFlags_ReadsHashField(t *testing.T) {
	mr, mgr := newTestCache(t)
	mr.HSet("concierge:flags", FlagV2Percentage, "30")

	flags := NewRedisFlags(mgr, "concierge:flags", nil, zap.NewNop())
	ctx := context.Background()

	assert.Equal(t, 30, flags.Percentage(ctx, FlagV2Percentage))
}

func TestRedisFlags_MissingFieldFallsBackToDefault(t *testing.T) {
	_, mgr := newTestCache(t)

	flags := NewRedisFlags(mgr, "concierge:flags", map[string]int{
		FlagV2Percentage: 15,
	}, zap.NewNop())
	ctx := context.Background()

	assert.Equal(t, 15, flags.Percentage(ctx, FlagV2Percentage))
	assert.Equal(t, 0, flags.Percentage(ctx, FlagParallel))
}

func TestRedisFlags_MalformedValueFallsBackToDefault(t *testing.T) {
	mr, mgr := newTestCache(t)
	mr.HSet("concierge:flags", FlagV2Percentage, "lots")

	flags := NewRedisFlags(mgr, "concierge:flags", map[string]int{
		FlagV2Percentage: 40,
	}, zap.NewNop())

	assert.Equal(t, 40, flags.Percentage(context.Background(), FlagV2Percentage))
}

func TestRedisFlags_LiveUpdateChangesBucketing(t *testing.T) {
	mr, mgr := newTestCache(t)
	flags := NewRedisFlags(mgr, "concierge:flags", nil, zap.NewNop())
	ctx := context.Background()

	sessionID := "session-under-test"
	require.False(t, flags.Bool(ctx, FlagV2Percentage, sessionID))

	// 在线放量到 100%, 无需重启即生效
	mr.HSet("concierge:flags", FlagV2Percentage, "100")
	assert.True(t, flags.Bool(ctx, FlagV2Percentage, sessionID))
}
