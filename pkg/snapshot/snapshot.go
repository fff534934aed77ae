// Package snapshot caches the last running configuration read from each
// device, so repeated plans need not open an SSH session every time.
package snapshot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/swsync-network/swsync/pkg/util"
)

// Snapshot is one cached running configuration.
type Snapshot struct {
	Device    string    `json:"device"`
	Host      string    `json:"host,omitempty"`
	Config    string    `json:"config"`
	Digest    string    `json:"digest"`
	FetchedAt time.Time `json:"fetched_at"`
}

// New builds a snapshot stamped with the current time.
func New(device, host, config string) *Snapshot {
	return &Snapshot{
		Device:    device,
		Host:      host,
		Config:    config,
		Digest:    Digest(config),
		FetchedAt: time.Now().UTC(),
	}
}

// Digest returns the hex SHA-256 of a configuration.
func Digest(config string) string {
	sum := sha256.Sum256([]byte(config))
	return hex.EncodeToString(sum[:])
}

// Age returns how long ago the snapshot was taken.
func (s *Snapshot) Age() time.Duration {
	return time.Since(s.FetchedAt)
}

// Store persists snapshots. Get returns an error wrapping util.ErrNotFound
// when no snapshot exists for the device.
type Store interface {
	Get(ctx context.Context, device string) (*Snapshot, error)
	Put(ctx context.Context, s *Snapshot) error
	Delete(ctx context.Context, device string) error
	List(ctx context.Context) ([]string, error)
	Close() error
}

// MemoryStore is an in-process Store. Entries expire after ttl; zero keeps
// them forever.
type MemoryStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[string]*Snapshot
	now   func() time.Time
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, items: make(map[string]*Snapshot), now: time.Now}
}

func (m *MemoryStore) expired(s *Snapshot) bool {
	return m.ttl > 0 && m.now().Sub(s.FetchedAt) > m.ttl
}

func (m *MemoryStore) Get(_ context.Context, device string) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.items[device]
	if !ok || m.expired(s) {
		delete(m.items, device)
		return nil, fmt.Errorf("snapshot %s: %w", device, util.ErrNotFound)
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) Put(_ context.Context, s *Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.items[s.Device] = &cp
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, device string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, device)
	return nil
}

func (m *MemoryStore) List(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for name, s := range m.items {
		if !m.expired(s) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemoryStore) Close() error { return nil }
