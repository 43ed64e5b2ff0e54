//go:build integration

package containers

import (
	"context"
	"testing"

	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	redisclient "paykit/internal/platform/redis"
	"paykit/pkg/platform/config"
)

const redisImage = "redis:7-alpine"

// RedisContainer is a Redis instance reached through the same client
// constructor the SDK uses for its redis storage driver.
type RedisContainer struct {
	Container *tcredis.RedisContainer
	URL       string
	Client    *redisclient.Client
}

// NewRedisContainer starts Redis and connects to it.
func NewRedisContainer(t *testing.T) *RedisContainer {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, redisImage)
	if err != nil {
		t.Fatalf("start redis container: %v", err)
	}
	url, err := container.ConnectionString(ctx)
	if err != nil {
		abort(t, ctx, container, "redis connection string", err)
	}
	client, err := redisclient.New(ctx, config.RedisConfig{URL: url})
	if err != nil {
		abort(t, ctx, container, "connect redis", err)
	}
	return &RedisContainer{Container: container, URL: url, Client: client}
}

// Config returns the redis settings that point the SDK at this container.
func (r *RedisContainer) Config() config.RedisConfig {
	return config.RedisConfig{URL: r.URL}
}

// Reset empties the database so suites sharing the container start clean.
func (r *RedisContainer) Reset(ctx context.Context) error {
	return r.Client.FlushDB(ctx).Err()
}
