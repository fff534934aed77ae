//go:build integration

package testutil

import (
	"context"
	"testing"
)

// SnapshotDB is the Redis database used by snapshot integration tests.
const SnapshotDB = 9

// SnapshotPrefix is the key prefix used by snapshot integration tests.
const SnapshotPrefix = "swsync-test:snapshot:"

// FlushSnapshotDB flushes the snapshot test database.
func FlushSnapshotDB(t *testing.T) {
	t.Helper()

	client := RedisClient(t, SnapshotDB)
	if err := client.FlushDB(context.Background()).Err(); err != nil {
		t.Fatalf("flushing DB %d: %v", SnapshotDB, err)
	}
}

// WriteSnapshotField overwrites one hash field of a device snapshot,
// bypassing the store.
func WriteSnapshotField(t *testing.T, device, field, value string) {
	t.Helper()

	client := RedisClient(t, SnapshotDB)
	if err := client.HSet(context.Background(), SnapshotPrefix+device, field, value).Err(); err != nil {
		t.Fatalf("writing %s.%s: %v", device, field, err)
	}
}

// SnapshotExists checks if a device snapshot key exists.
func SnapshotExists(t *testing.T, device string) bool {
	t.Helper()

	client := RedisClient(t, SnapshotDB)
	n, err := client.Exists(context.Background(), SnapshotPrefix+device).Result()
	if err != nil {
		t.Fatalf("checking existence of %s: %v", device, err)
	}
	return n > 0
}
