package redis

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var testClient *Client

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("Failed to start redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		log.Fatalf("Failed to get container host: %v", err)
	}
	if host == "" || host == "null" {
		host = "localhost"
	}
	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		log.Fatalf("Failed to get mapped port: %v", err)
	}

	testClient = NewFromClient(redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())}))

	code := m.Run()

	_ = testClient.Close()
	_ = container.Terminate(ctx)

	os.Exit(code)
}

func requireClient(t *testing.T) *Client {
	t.Helper()
	if testClient == nil {
		t.Skip("redis integration tests are skipped in -short mode")
	}
	require.NoError(t, testClient.client.Del(context.Background(), latestSessionKey).Err())
	return testClient
}

func TestLatestSessionExpiryRoundTrip(t *testing.T) {
	c := requireClient(t)
	ctx := context.Background()

	_, ok, err := c.GetLatestSessionExpiry(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	expiry := time.Now().Add(24 * time.Hour).UTC()
	require.NoError(t, c.SetLatestSessionExpiry(ctx, expiry))

	got, ok, err := c.GetLatestSessionExpiry(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, expiry.Equal(got))

	ttl, err := c.client.TTL(ctx, latestSessionKey).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 23*time.Hour)
}

func TestSetExpiredSessionIsSkipped(t *testing.T) {
	c := requireClient(t)
	ctx := context.Background()

	require.NoError(t, c.SetLatestSessionExpiry(ctx, time.Now().Add(-time.Minute)))

	_, ok, err := c.GetLatestSessionExpiry(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}
