//go:build integration

package snapshot

import (
	"errors"
	"testing"
	"time"

	"github.com/swsync-network/swsync/internal/testutil"
	"github.com/swsync-network/swsync/pkg/util"
)

func newTestRedisStore(t *testing.T, ttl time.Duration) *RedisStore {
	t.Helper()
	testutil.SkipIfNoRedis(t)
	testutil.FlushSnapshotDB(t)

	s, err := NewRedisStore(testutil.Context(t), RedisOptions{
		Addr:      testutil.RedisAddr(),
		DB:        testutil.SnapshotDB,
		TTL:       ttl,
		KeyPrefix: testutil.SnapshotPrefix,
	})
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRedisStore_PutGet(t *testing.T) {
	store := newTestRedisStore(t, time.Hour)
	ctx := testutil.Context(t)

	orig := New("access-sw1", "10.0.0.5", "interface Gi1/0/1\n shutdown\n!\n")
	if err := store.Put(ctx, orig); err != nil {
		t.Fatal(err)
	}

	got, err := store.Get(ctx, "access-sw1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Config != orig.Config || got.Host != orig.Host || got.Digest != orig.Digest {
		t.Errorf("Get() = %+v, want %+v", got, orig)
	}
	if !got.FetchedAt.Equal(orig.FetchedAt) {
		t.Errorf("FetchedAt = %v, want %v", got.FetchedAt, orig.FetchedAt)
	}

	ttl, err := store.TTL(ctx, "access-sw1")
	if err != nil || ttl <= 0 || ttl > time.Hour {
		t.Errorf("TTL() = %v, %v", ttl, err)
	}
}

func TestRedisStore_Missing(t *testing.T) {
	store := newTestRedisStore(t, time.Hour)
	if _, err := store.Get(testutil.Context(t), "nope"); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestRedisStore_CorruptDigest(t *testing.T) {
	store := newTestRedisStore(t, time.Hour)
	ctx := testutil.Context(t)

	if err := store.Put(ctx, New("sw1", "", "original")); err != nil {
		t.Fatal(err)
	}
	testutil.WriteSnapshotField(t, "sw1", "config", "tampered")

	if _, err := store.Get(ctx, "sw1"); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound for corrupt snapshot", err)
	}
}

func TestRedisStore_ListDelete(t *testing.T) {
	store := newTestRedisStore(t, 0)
	ctx := testutil.Context(t)

	for _, name := range []string{"sw2", "sw1", "sw3"} {
		if err := store.Put(ctx, New(name, "", "cfg "+name)); err != nil {
			t.Fatal(err)
		}
	}
	names, err := store.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 3 || names[0] != "sw1" || names[2] != "sw3" {
		t.Errorf("List() = %v", names)
	}

	if err := store.Delete(ctx, "sw2"); err != nil {
		t.Fatal(err)
	}
	if testutil.SnapshotExists(t, "sw2") {
		t.Error("sw2 still present after Delete")
	}
	if !testutil.SnapshotExists(t, "sw1") {
		t.Error("sw1 missing")
	}
}
