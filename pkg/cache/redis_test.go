package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestRedis starts a Redis container for the store tests.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping Redis container test in short mode")
	}

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Redis container not available: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	t.Cleanup(func() {
		client.Close()
		container.Terminate(context.Background())
	})

	return client
}

func TestNewRedisStore_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewRedisStore should panic with nil redis client")
		}
	}()
	NewRedisStore(nil, "gorzdrav")
}

func TestRedisStore_Namespace(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()

	if got := NewRedisStore(client, "gorzdrav").key("districts"); got != "gorzdrav:districts" {
		t.Errorf("key = %q, want gorzdrav:districts", got)
	}
	if got := NewRedisStore(client, "").key("districts"); got != "districts" {
		t.Errorf("key = %q, want districts", got)
	}
}

func TestRedisStore_SetGetDelete(t *testing.T) {
	client := setupTestRedis(t)
	store := NewRedisStore(client, "test")
	ctx := context.Background()

	entry := &Entry{
		Data:     []byte(`[{"id": 5}]`),
		Expires:  time.Now().Add(5 * time.Minute),
		CachedAt: time.Now(),
	}
	if err := store.Set(ctx, "districts", entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := store.Get(ctx, "districts")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got.Data) != string(entry.Data) {
		t.Errorf("Data mismatch: got %s, want %s", got.Data, entry.Data)
	}

	ttl, err := client.TTL(ctx, "test:districts").Result()
	if err != nil {
		t.Fatalf("TTL failed: %v", err)
	}
	if ttl <= 0 || ttl > 5*time.Minute {
		t.Errorf("redis TTL = %v, want (0, 5m]", ttl)
	}

	if err := store.Delete(ctx, "districts"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, "districts"); err != ErrCacheMiss {
		t.Errorf("Expected ErrCacheMiss after delete, got %v", err)
	}
}

func TestRedisStore_Expiry(t *testing.T) {
	client := setupTestRedis(t)
	store := NewRedisStore(client, "test")
	ctx := context.Background()

	_ = store.Set(ctx, "short", &Entry{Data: []byte(`1`), Expires: time.Now().Add(1100 * time.Millisecond)})
	time.Sleep(1500 * time.Millisecond)

	if _, err := store.Get(ctx, "short"); err != ErrCacheMiss {
		t.Errorf("Expected ErrCacheMiss after expiry, got %v", err)
	}
}

func TestRedisStore_InvalidEntry(t *testing.T) {
	client := setupTestRedis(t)
	store := NewRedisStore(client, "test")
	ctx := context.Background()

	client.Set(ctx, "test:broken", "not json", time.Minute)

	if _, err := store.Get(ctx, "broken"); err == nil || err == ErrCacheMiss {
		t.Errorf("Expected ErrInvalidEntry, got %v", err)
	}
}

func TestManager_WithRedisStore(t *testing.T) {
	client := setupTestRedis(t)
	m := NewManager(NewRedisStore(client, "test"), Config{TTL: time.Minute})
	ctx := context.Background()

	calls := 0
	produce := func(ctx context.Context) (map[string]int, error) {
		calls++
		return map[string]int{"lpu": 13}, nil
	}

	for i := 0; i < 3; i++ {
		v, err := Cached(ctx, m, "lpu", map[string]any{"lpu_id": 13}, produce)
		if err != nil {
			t.Fatalf("Cached failed: %v", err)
		}
		if v["lpu"] != 13 {
			t.Errorf("value = %v", v)
		}
	}
	if calls != 1 {
		t.Errorf("producer called %d times, want 1", calls)
	}
}
