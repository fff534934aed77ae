package snapshot

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/swsync-network/swsync/pkg/util"
)

// Hash fields of a snapshot key.
const (
	fieldConfig    = "config"
	fieldDigest    = "digest"
	fieldHost      = "host"
	fieldFetchedAt = "fetched_at"
)

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	TTL       time.Duration
	KeyPrefix string
}

// RedisStore keeps snapshots as Redis hashes at "<prefix><device>" with a
// TTL, so stale configurations age out on their own.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("snapshot redis %s: %w", opts.Addr, err)
	}
	return newRedisStore(client, opts), nil
}

func newRedisStore(client *redis.Client, opts RedisOptions) *RedisStore {
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = "swsync:snapshot:"
	}
	return &RedisStore{client: client, ttl: opts.TTL, prefix: prefix}
}

func (r *RedisStore) key(device string) string {
	return r.prefix + device
}

// Get reads the snapshot of a device.
func (r *RedisStore) Get(ctx context.Context, device string) (*Snapshot, error) {
	vals, err := r.client.HGetAll(ctx, r.key(device)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading snapshot %s: %w", device, err)
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("snapshot %s: %w", device, util.ErrNotFound)
	}

	s := &Snapshot{
		Device: device,
		Host:   vals[fieldHost],
		Config: vals[fieldConfig],
		Digest: vals[fieldDigest],
	}
	if ts := vals[fieldFetchedAt]; ts != "" {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("snapshot %s: bad %s %q: %w", device, fieldFetchedAt, ts, err)
		}
		s.FetchedAt = t
	}
	if s.Digest != "" && s.Digest != Digest(s.Config) {
		util.WithDevice(device).Warn("Snapshot digest mismatch, discarding")
		return nil, fmt.Errorf("snapshot %s corrupt: %w", device, util.ErrNotFound)
	}
	return s, nil
}

// Put replaces the snapshot of a device and resets its TTL.
func (r *RedisStore) Put(ctx context.Context, s *Snapshot) error {
	key := r.key(s.Device)
	digest := s.Digest
	if digest == "" {
		digest = Digest(s.Config)
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key,
		fieldConfig, s.Config,
		fieldDigest, digest,
		fieldHost, s.Host,
		fieldFetchedAt, s.FetchedAt.UTC().Format(time.RFC3339Nano),
	)
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("writing snapshot %s: %w", s.Device, err)
	}
	util.WithDevice(s.Device).Debugf("Snapshot cached (%d bytes, ttl %s)", len(s.Config), r.ttl)
	return nil
}

// Delete removes the snapshot of a device.
func (r *RedisStore) Delete(ctx context.Context, device string) error {
	if err := r.client.Del(ctx, r.key(device)).Err(); err != nil {
		return fmt.Errorf("deleting snapshot %s: %w", device, err)
	}
	return nil
}

// List returns the devices with a snapshot, sorted.
func (r *RedisStore) List(ctx context.Context) ([]string, error) {
	var names []string
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		names = append(names, strings.TrimPrefix(iter.Val(), r.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// TTL returns the remaining lifetime of a device's snapshot.
func (r *RedisStore) TTL(ctx context.Context, device string) (time.Duration, error) {
	return r.client.TTL(ctx, r.key(device)).Result()
}

// Close closes the Redis connection.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
