package session

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestMemoryStore(t *testing.T) (*MemoryStore, *time.Time) {
	t.Helper()

	now := time.Now()
	store := NewMemoryStore(time.Hour)
	store.now = func() time.Time { return now }
	t.Cleanup(func() { _ = store.Close() })

	return store, &now
}

func memRecord(token, subject string) *Record {
	created := time.Now().Unix()
	return &Record{
		Token:             token,
		SubjectID:         subject,
		CreatedAt:         created,
		LastActiveAt:      created,
		AbsoluteExpiresAt: created + 3600,
	}
}

func TestMemoryStorePutGetDelete(t *testing.T) {
	store, _ := newTestMemoryStore(t)
	ctx := context.Background()

	record := memRecord("tok-1", "subj-1")
	if err := store.Put(ctx, record, time.Minute); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	got, err := store.Get(ctx, "tok-1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.SubjectID != "subj-1" || got.Token != "tok-1" {
		t.Fatalf("unexpected record: %+v", got)
	}

	if err := store.Delete(ctx, "tok-1"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if _, err := store.Get(ctx, "tok-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}

	// Idempotent.
	if err := store.Delete(ctx, "tok-1"); err != nil {
		t.Fatalf("repeat Delete error: %v", err)
	}
}

func TestMemoryStoreTTLExpiry(t *testing.T) {
	store, now := newTestMemoryStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, memRecord("tok-ttl", "subj"), time.Minute); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	*now = now.Add(2 * time.Minute)
	if _, err := store.Get(ctx, "tok-ttl"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound after TTL", err)
	}
	if err := store.RefreshTTL(ctx, "tok-ttl", time.Minute); !errors.Is(err, ErrNotFound) {
		t.Fatalf("RefreshTTL on expired: got %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreRefreshTTL(t *testing.T) {
	store, now := newTestMemoryStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, memRecord("tok-r", "subj"), time.Minute); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	if err := store.RefreshTTL(ctx, "tok-r", 10*time.Minute); err != nil {
		t.Fatalf("RefreshTTL error: %v", err)
	}

	*now = now.Add(5 * time.Minute)
	if _, err := store.Get(ctx, "tok-r"); err != nil {
		t.Fatalf("record should have survived refresh: %v", err)
	}
}

func TestMemoryStoreListBySubject(t *testing.T) {
	store, _ := newTestMemoryStore(t)
	ctx := context.Background()

	for _, token := range []string{"a", "b", "c"} {
		if err := store.Put(ctx, memRecord("tok-"+token, "multi"), time.Minute); err != nil {
			t.Fatalf("Put error: %v", err)
		}
	}
	if err := store.Put(ctx, memRecord("tok-other", "someone-else"), time.Minute); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	records, err := store.ListBySubject(ctx, "multi")
	if err != nil {
		t.Fatalf("ListBySubject error: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
	for _, record := range records {
		if record.SubjectID != "multi" {
			t.Fatalf("foreign record in listing: %+v", record)
		}
	}

	if err := store.Delete(ctx, "tok-b"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	records, err = store.ListBySubject(ctx, "multi")
	if err != nil {
		t.Fatalf("ListBySubject error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records after delete, want 2", len(records))
	}
}

func TestMemoryStoreJanitorReap(t *testing.T) {
	store, now := newTestMemoryStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, memRecord("tok-reap", "subj"), time.Minute); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	*now = now.Add(time.Hour)
	store.reap()

	store.mu.RLock()
	_, present := store.entries["tok-reap"]
	_, indexed := store.bySubject["subj"]
	store.mu.RUnlock()

	if present || indexed {
		t.Fatal("janitor left expired entry or index behind")
	}
}

func TestMemoryStoreReturnsClones(t *testing.T) {
	store, _ := newTestMemoryStore(t)
	ctx := context.Background()

	record := memRecord("tok-clone", "subj")
	record.Attributes = map[string]string{"role": "member"}
	if err := store.Put(ctx, record, time.Minute); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	first, err := store.Get(ctx, "tok-clone")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	first.Attributes["role"] = "tampered"

	second, err := store.Get(ctx, "tok-clone")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if second.Attributes["role"] != "member" {
		t.Fatal("store state leaked through a returned record")
	}
}
