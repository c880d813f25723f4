package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestRedisStoreSetGetDelete(t *testing.T) {
	fake := newFakeRedis()
	store := newRedisStore(fake, time.Hour)
	ctx := context.Background()

	got, err := store.Get(ctx, 7)
	if err != nil || got != nil {
		t.Fatalf("expected missing session to be (nil, nil), got (%v, %v)", got, err)
	}

	sess := &Session{UserID: 7, State: StateNotRegistered, AwaitingEmail: true, EmailAttempts: 2}
	if err := store.Set(ctx, sess); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	if fake.ttls["shopbot:session:7"] != time.Hour {
		t.Fatalf("expected key to be written with ttl 1h, got %v", fake.ttls["shopbot:session:7"])
	}

	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(fake.values["shopbot:session:7"]), &raw); err != nil {
		t.Fatalf("expected JSON value, got %q", fake.values["shopbot:session:7"])
	}
	if raw["state"] != string(StateNotRegistered) || raw["awaiting_email"] != true {
		t.Fatalf("unexpected stored document %v", raw)
	}

	got, err = store.Get(ctx, 7)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got.State != StateNotRegistered || !got.AwaitingEmail || got.EmailAttempts != 2 {
		t.Fatalf("unexpected session %+v", got)
	}
	if fake.expireCalls != 1 {
		t.Fatalf("expected Get to refresh ttl once, got %d", fake.expireCalls)
	}

	if err := store.Delete(ctx, 7); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if _, ok := fake.values["shopbot:session:7"]; ok {
		t.Fatalf("expected key to be deleted")
	}
}

func TestRedisStorePropagatesErrors(t *testing.T) {
	fake := newFakeRedis()
	fake.err = errors.New("connection refused")
	store := newRedisStore(fake, 0)
	ctx := context.Background()

	if store.ttl != defaultRedisTTL {
		t.Fatalf("expected default ttl %v, got %v", defaultRedisTTL, store.ttl)
	}

	if _, err := store.Get(ctx, 1); !errors.Is(err, fake.err) {
		t.Fatalf("expected Get to wrap redis error, got %v", err)
	}
	if err := store.Set(ctx, New(1)); !errors.Is(err, fake.err) {
		t.Fatalf("expected Set to wrap redis error, got %v", err)
	}
	if err := store.Delete(ctx, 1); !errors.Is(err, fake.err) {
		t.Fatalf("expected Delete to wrap redis error, got %v", err)
	}
	if err := store.Ping(ctx); !errors.Is(err, fake.err) {
		t.Fatalf("expected Ping to return redis error, got %v", err)
	}
}

func TestRedisStoreRejectsCorruptValues(t *testing.T) {
	fake := newFakeRedis()
	fake.values["shopbot:session:3"] = "{not json"
	store := newRedisStore(fake, time.Minute)

	if _, err := store.Get(context.Background(), 3); err == nil {
		t.Fatalf("expected decode error for corrupt value")
	}
}

func TestNewStoreSelectsDriver(t *testing.T) {
	memory, err := NewStore(StoreTypeMemory)
	if err != nil {
		t.Fatalf("expected memory store, got error: %v", err)
	}
	if _, ok := memory.(*MemoryStore); !ok {
		t.Fatalf("expected *MemoryStore, got %T", memory)
	}

	if _, err := NewStore(StoreTypeRedis); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig without redis client, got %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = client.Close() })

	store, err := NewStore(StoreTypeRedis, WithRedisClient(client), WithRedisTTL(time.Minute))
	if err != nil {
		t.Fatalf("expected redis store, got error: %v", err)
	}
	redisStore, ok := store.(*RedisStore)
	if !ok {
		t.Fatalf("expected *RedisStore, got %T", store)
	}
	if redisStore.ttl != time.Minute {
		t.Fatalf("expected ttl 1m, got %v", redisStore.ttl)
	}

	if _, err := NewStore("disk"); !errors.Is(err, ErrInvalidStoreType) {
		t.Fatalf("expected ErrInvalidStoreType, got %v", err)
	}
}

type fakeRedis struct {
	values      map[string]string
	ttls        map[string]time.Duration
	expireCalls int
	err         error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		values: make(map[string]string),
		ttls:   make(map[string]time.Duration),
	}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	val, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(val, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	switch v := value.(type) {
	case []byte:
		f.values[key] = string(v)
	case string:
		f.values[key] = v
	}
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	var removed int64
	for _, key := range keys {
		if _, ok := f.values[key]; ok {
			delete(f.values, key)
			removed++
		}
	}
	return redis.NewIntResult(removed, nil)
}

func (f *fakeRedis) Expire(_ context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	f.expireCalls++
	f.ttls[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Ping(context.Context) *redis.StatusCmd {
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	return redis.NewStatusResult("PONG", nil)
}

func (f *fakeRedis) Close() error {
	return nil
}
