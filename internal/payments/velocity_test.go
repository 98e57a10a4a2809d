package payments

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestVelocityChecker_CheckOrderVelocity(t *testing.T) {
	redisClient, _ := setupTestRedis(t)

	config := DefaultVelocityConfig()
	config.MaxOrdersPerPatient = 3

	checker := NewVelocityChecker(redisClient, config, nil)
	ctx := context.Background()

	tests := []struct {
		name        string
		patientID   string
		attempts    int
		wantAllowed bool
	}{
		{name: "first attempt allowed", patientID: "p-1", attempts: 1, wantAllowed: true},
		{name: "at limit allowed", patientID: "p-2", attempts: 3, wantAllowed: true},
		{name: "over limit blocked", patientID: "p-3", attempts: 4, wantAllowed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var result *VelocityResult
			var err error
			for i := 0; i < tt.attempts; i++ {
				result, err = checker.CheckOrderVelocity(ctx, tt.patientID)
				require.NoError(t, err)
			}

			assert.Equal(t, tt.wantAllowed, result.Allowed)
			assert.Equal(t, "order", result.CheckType)
			assert.Equal(t, tt.attempts, result.CurrentCount)
			assert.Equal(t, config.MaxOrdersPerPatient, result.MaxAllowed)

			if !tt.wantAllowed {
				assert.Contains(t, result.Message, "exceeded")
			}
		})
	}
}

func TestVelocityChecker_WindowExpires(t *testing.T) {
	redisClient, mr := setupTestRedis(t)

	config := DefaultVelocityConfig()
	config.MaxOrdersPerPatient = 1
	config.OrderWindow = time.Hour
	checker := NewVelocityChecker(redisClient, config, nil)
	ctx := context.Background()

	_, _ = checker.CheckOrderVelocity(ctx, "p-1")
	result, err := checker.CheckOrderVelocity(ctx, "p-1")
	require.NoError(t, err)
	assert.False(t, result.Allowed)

	mr.FastForward(61 * time.Minute)

	result, err = checker.CheckOrderVelocity(ctx, "p-1")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, 1, result.CurrentCount)
}

func TestVelocityChecker_ResetAndStats(t *testing.T) {
	redisClient, _ := setupTestRedis(t)

	config := DefaultVelocityConfig()
	config.MaxOrdersPerPatient = 2
	checker := NewVelocityChecker(redisClient, config, nil)
	ctx := context.Background()

	stats, err := checker.GetOrderStats(ctx, "p-1")
	require.NoError(t, err)
	assert.True(t, stats.Allowed)
	assert.Zero(t, stats.CurrentCount)

	for i := 0; i < 3; i++ {
		_, _ = checker.CheckOrderVelocity(ctx, "p-1")
	}
	stats, err = checker.GetOrderStats(ctx, "p-1")
	require.NoError(t, err)
	assert.False(t, stats.Allowed)
	assert.Equal(t, 3, stats.CurrentCount)

	require.NoError(t, checker.ResetOrderVelocity(ctx, "p-1"))
	result, err := checker.CheckOrderVelocity(ctx, "p-1")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, 1, result.CurrentCount)
}

func TestVelocityChecker_DisabledOrUnavailable(t *testing.T) {
	redisClient, mr := setupTestRedis(t)

	config := DefaultVelocityConfig()
	config.EnableOrderCheck = false
	checker := NewVelocityChecker(redisClient, config, nil)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		result, err := checker.CheckOrderVelocity(ctx, "p-1")
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	}

	live := NewVelocityChecker(redisClient, DefaultVelocityConfig(), nil)
	mr.Close()
	result, err := live.CheckOrderVelocity(ctx, "p-1")
	require.NoError(t, err)
	assert.True(t, result.Allowed, "fails open when redis is down")
	assert.Equal(t, "velocity check unavailable", result.Message)

	var nilChecker *VelocityChecker
	result, err = nilChecker.CheckOrderVelocity(ctx, "p-1")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestDefaultVelocityConfig(t *testing.T) {
	config := DefaultVelocityConfig()
	assert.Equal(t, 5, config.MaxOrdersPerPatient)
	assert.Equal(t, time.Hour, config.OrderWindow)
	assert.True(t, config.EnableOrderCheck)
}
