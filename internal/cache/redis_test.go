package cache

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/gh-risk-server/internal/domain"
)

func setupRedis(t *testing.T) (string, func()) {
	if testing.Short() {
		t.Skip("skipping Redis container test in short mode")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	cleanup := func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate Redis container: %v", err)
		}
	}
	return fmt.Sprintf("redis://%s:%s/0", host, port.Port()), cleanup
}

func TestRedisCache(t *testing.T) {
	url, cleanup := setupRedis(t)
	defer cleanup()
	ctx := context.Background()

	c, err := NewRedisCache(ctx, domain.CacheConfig{RedisURL: url, DefaultTTL: time.Minute}, quietLogger())
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Get(ctx, 1)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	want := assessmentFor(1, domain.TierHigh)
	require.NoError(t, c.Set(ctx, want))

	got, err := c.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, want.RiskClass, got.RiskClass)
	assert.Equal(t, want.Reasons, got.Reasons)
	assert.True(t, want.CreatedAt.Equal(*got.CreatedAt))

	require.NoError(t, c.redis.Set(ctx, key(2), "{not json", time.Minute).Err())
	_, err = c.Get(ctx, 2)
	assert.True(t, errors.Is(err, domain.ErrNotFound), "corrupt entries read as a miss")

	require.NoError(t, c.Invalidate(ctx, 1))
	_, err = c.Get(ctx, 1)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.NoError(t, c.Ping(ctx))
}

func TestNewRedisCache_BadURL(t *testing.T) {
	_, err := NewRedisCache(context.Background(), domain.CacheConfig{RedisURL: "://nope"}, quietLogger())
	assert.Error(t, err)
}
