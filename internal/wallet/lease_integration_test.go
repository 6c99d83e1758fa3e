//go:build integration

package wallet

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	t.Cleanup(func() { client.Close() })
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func TestRedisLeaseSingleHolder(t *testing.T) {
	ctx := context.Background()
	client := startRedis(t)
	a := NewRedisLease(client, "watcher:lease")
	b := NewRedisLease(client, "watcher:lease")

	ok, err := a.Acquire(ctx, 300*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Acquire(ctx, 300*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)

	// the holder renews
	ok, err = a.Acquire(ctx, 300*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ok)

	require.Eventually(t, func() bool {
		ok, err := b.Acquire(ctx, time.Second)
		return err == nil && ok
	}, 2*time.Second, 50*time.Millisecond)

	ok, err = a.Acquire(ctx, time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
}
