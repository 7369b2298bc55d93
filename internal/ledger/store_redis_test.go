package ledger

import (
	"context"
	"testing"

	"Go2NetKDD/internal/config"

	"github.com/alicebob/miniredis/v2"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := NewRedisStore(config.RedisConfig{Addr: mr.Addr(), Key: "kdd:ledger"})
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func TestRedisStore_RoundTrip(t *testing.T) {
	store, mr := newRedisStore(t)
	l := New(store)
	if err := l.Load(context.Background()); err != nil {
		t.Fatalf("Load of a missing hash should succeed: %v", err)
	}
	l.Advance("/spool/conn.log", 42)
	l.Advance("/spool/http.log", 7)
	if err := l.Persist(context.Background()); err != nil {
		t.Fatalf("Persist failed: %v", err)
	}
	if got := mr.HGet("kdd:ledger", "/spool/conn.log"); got != "42" {
		t.Errorf("Expected conn.log=42 in redis, got %q", got)
	}

	reloaded := New(store)
	if err := reloaded.Load(context.Background()); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if reloaded.Get("/spool/conn.log") != 42 || reloaded.Get("/spool/http.log") != 7 {
		t.Errorf("Unexpected state after reload: %v", reloaded.Snapshot())
	}
}

func TestRedisStore_SaveReplacesHash(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, map[string]int64{"/a": 1, "/b": 2}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Save(ctx, map[string]int64{"/b": 5}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if keys, _ := mr.HKeys("kdd:ledger"); len(keys) != 1 || keys[0] != "/b" {
		t.Errorf("Expected only /b to remain, got %v", keys)
	}

	if err := store.Save(ctx, map[string]int64{}); err != nil {
		t.Fatalf("Save of an empty ledger failed: %v", err)
	}
	if mr.Exists("kdd:ledger") {
		t.Errorf("Expected an empty ledger to delete the hash")
	}
}

func TestRedisStore_CorruptEntry(t *testing.T) {
	store, mr := newRedisStore(t)
	mr.HSet("kdd:ledger", "/spool/conn.log", "12")
	mr.HSet("kdd:ledger", "/spool/dns.log", "twelve")

	if _, err := store.Load(context.Background()); err == nil {
		t.Fatalf("Expected an error for a non-numeric entry")
	}

	l := New(store)
	l.Advance("/stale", 3)
	if err := l.Load(context.Background()); err == nil {
		t.Fatalf("Expected Ledger.Load to report the corrupt entry")
	}
	if l.Len() != 0 {
		t.Errorf("Expected an empty ledger after a failed load, got %v", l.Snapshot())
	}
}

func TestOpen_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	l, err := Open(config.LedgerConfig{Backend: config.LedgerBackendRedis, Redis: config.RedisConfig{Addr: mr.Addr(), Key: "k"}})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer l.Close()
	l.Advance("/x", 1)
	if err := l.Persist(context.Background()); err != nil {
		t.Fatalf("Persist failed: %v", err)
	}
	if mr.HGet("k", "/x") != "1" {
		t.Errorf("Expected the ledger in redis hash k")
	}
}
