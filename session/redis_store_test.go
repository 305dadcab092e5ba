package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client, "ac")

	t.Cleanup(func() {
		_ = store.Close()
		mr.Close()
	})

	return store, mr
}

func TestRedisStorePutGetDelete(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	record := memRecord("tok-redis", "subj-redis")
	record.Attributes = map[string]string{"role": "admin"}

	if err := store.Put(ctx, record, time.Minute); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	got, err := store.Get(ctx, "tok-redis")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.SubjectID != "subj-redis" || got.Attributes["role"] != "admin" {
		t.Fatalf("unexpected record: %+v", got)
	}

	if err := store.Delete(ctx, "tok-redis"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if _, err := store.Get(ctx, "tok-redis"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	if err := store.Delete(ctx, "tok-redis"); err != nil {
		t.Fatalf("repeat Delete error: %v", err)
	}
}

func TestRedisStoreTTL(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, memRecord("tok-ttl", "subj"), time.Minute); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	mr.FastForward(2 * time.Minute)
	if _, err := store.Get(ctx, "tok-ttl"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound after TTL", err)
	}
	if err := store.RefreshTTL(ctx, "tok-ttl", time.Minute); !errors.Is(err, ErrNotFound) {
		t.Fatalf("RefreshTTL on expired: got %v, want ErrNotFound", err)
	}
}

func TestRedisStoreRefreshTTLExtends(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, memRecord("tok-r", "subj"), time.Minute); err != nil {
		t.Fatalf("Put error: %v", err)
	}
	if err := store.RefreshTTL(ctx, "tok-r", 10*time.Minute); err != nil {
		t.Fatalf("RefreshTTL error: %v", err)
	}

	mr.FastForward(5 * time.Minute)
	if _, err := store.Get(ctx, "tok-r"); err != nil {
		t.Fatalf("record should have survived refresh: %v", err)
	}
}

func TestRedisStoreListBySubjectPrunesStaleIndex(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, memRecord("tok-live", "subj"), 10*time.Minute); err != nil {
		t.Fatalf("Put error: %v", err)
	}
	if err := store.Put(ctx, memRecord("tok-dead", "subj"), time.Minute); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	records, err := store.ListBySubject(ctx, "subj")
	if err != nil {
		t.Fatalf("ListBySubject error: %v", err)
	}
	if len(records) != 1 || records[0].Token != "tok-live" {
		t.Fatalf("unexpected listing: %+v", records)
	}

	// The expired token's index member must have been pruned.
	members, err := store.client.SMembers(ctx, store.subjectKey("subj")).Result()
	if err != nil {
		t.Fatalf("SMembers error: %v", err)
	}
	if len(members) != 1 || members[0] != "tok-live" {
		t.Fatalf("stale index member survived: %v", members)
	}
}

func TestRedisStoreRejectsForeignPayload(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	// A payload that did not come from the codec must never decode.
	mr.Set(store.key("tok-alien"), `{"subject":"evil"}`)

	if _, err := store.Get(ctx, "tok-alien"); !errors.Is(err, ErrCorruptRecord) {
		t.Fatalf("got %v, want ErrCorruptRecord", err)
	}

	// Delete must still remove the key even though the payload is
	// unreadable, or the garbage survives until TTL.
	if err := store.Delete(ctx, "tok-alien"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if mr.Exists(store.key("tok-alien")) {
		t.Fatal("unreadable record still present after Delete")
	}
}

func TestRedisStoreValidateCleansForeignPayload(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	manager, err := NewManager(store, Config{
		IdleTimeout: 5 * time.Minute,
		MaxLifetime: 30 * time.Minute,
	})
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}

	mr.Set(store.key("tok-planted"), `{"subject":"evil"}`)

	if _, err := manager.Validate(ctx, "tok-planted"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	if mr.Exists(store.key("tok-planted")) {
		t.Fatal("planted record still present after rejection")
	}
}

func TestRedisStoreUnavailable(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	mr.Close()

	if err := store.Put(ctx, memRecord("tok", "subj"), time.Minute); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Put: got %v, want ErrUnavailable", err)
	}
	if _, err := store.Get(ctx, "tok"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Get: got %v, want ErrUnavailable", err)
	}
	if _, err := store.Ping(ctx); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Ping: got %v, want ErrUnavailable", err)
	}
}
