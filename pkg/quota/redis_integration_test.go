//go:build integration

package quota

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container and returns a client.
func setupRedis(t *testing.T) (*redis.Client, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: endpoint,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}

	return client, cleanup
}

func TestRedisStore_Integration_RoundTrip(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	store := NewRedisStore(redisClient)
	ctx := context.Background()

	block, err := store.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if block != nil {
		t.Fatalf("Get() = %+v, want nil on empty store", block)
	}

	want := &Block{
		Reason:    "QUOTA_EXHAUSTED",
		TrippedAt: time.Now().Truncate(time.Second),
		ResetAt:   time.Now().Add(time.Minute).Truncate(time.Second),
	}
	if err := store.Set(ctx, want); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := store.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got == nil || got.Reason != want.Reason {
		t.Errorf("Get() = %+v, want reason %q", got, want.Reason)
	}

	// The key carries a TTL so blocks expire even if never read.
	ttl, err := redisClient.TTL(ctx, RedisKeyBlock).Result()
	if err != nil {
		t.Fatalf("TTL() error = %v", err)
	}
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("TTL = %v, want within (0, 1m]", ttl)
	}
}

func TestTracker_Integration_CrossInstanceBlock(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	ctx := context.Background()

	// Two trackers sharing one Redis simulate two pipeline replicas.
	first := NewTracker(NewRedisStore(redisClient), time.Minute)
	second := NewTracker(NewRedisStore(redisClient), time.Minute)

	first.Trip(ctx, "captcha challenge")

	blocked, reason := second.Blocked(ctx)
	if !blocked {
		t.Fatal("second tracker should observe the first tracker's trip")
	}
	if reason != "captcha challenge" {
		t.Errorf("reason = %q, want captcha challenge", reason)
	}
}
