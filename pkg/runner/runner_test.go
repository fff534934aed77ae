package runner

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/swsync-network/swsync/pkg/audit"
	"github.com/swsync-network/swsync/pkg/device"
	"github.com/swsync-network/swsync/pkg/metrics"
	"github.com/swsync-network/swsync/pkg/model"
	"github.com/swsync-network/swsync/pkg/netbox"
	"github.com/swsync-network/swsync/pkg/snapshot"
	"github.com/swsync-network/swsync/pkg/util"
)

const runningConfig = `hostname sw1
!
interface GigabitEthernet1/0/1
 description uplink
 switchport mode access
 switchport access vlan 10
!
interface GigabitEthernet1/0/2
 shutdown
!
end
`

type fakeNetBox struct {
	mu      sync.Mutex
	devices map[string]*netbox.Device
	ifaces  map[int][]netbox.Interface
	vlans   []netbox.VLAN
	filters []netbox.VLANFilter
	patches [][]*model.ChangeOperation
}

func newFakeNetBox(names ...string) *fakeNetBox {
	nb := &fakeNetBox{
		devices: map[string]*netbox.Device{},
		ifaces:  map[int][]netbox.Interface{},
		vlans: []netbox.VLAN{
			{ID: 11, VID: util.IntPtr(1), Name: "default"},
			{ID: 100, VID: util.IntPtr(10), Name: "users"},
		},
	}
	for i, name := range names {
		id := i + 1
		nb.devices[name] = &netbox.Device{
			ID:        id,
			Name:      name,
			Site:      &netbox.NestedRef{ID: 7, Slug: "hq"},
			Platform:  &netbox.NestedRef{Slug: "cisco-iosxe", Name: "Cisco IOS XE"},
			PrimaryIP: &netbox.IPAddress{Address: fmt.Sprintf("10.0.0.%d/24", id)},
		}
		nb.ifaces[id] = []netbox.Interface{
			{ID: id*100 + 1, Name: "GigabitEthernet1/0/1", Enabled: true},
			{
				ID:           id*100 + 2,
				Name:         "GigabitEthernet1/0/2",
				Enabled:      true,
				Mode:         &netbox.Choice{Value: "access"},
				UntaggedVLAN: &netbox.NestedVLAN{ID: 11, VID: 1},
			},
		}
	}
	return nb
}

func (f *fakeNetBox) GetDevice(_ context.Context, name string) (*netbox.Device, error) {
	d, ok := f.devices[name]
	if !ok {
		return nil, fmt.Errorf("device %s: %w", name, util.ErrNotFound)
	}
	return d, nil
}

func (f *fakeNetBox) ListInterfaces(_ context.Context, id int) ([]netbox.Interface, error) {
	return f.ifaces[id], nil
}

func (f *fakeNetBox) ListVLANs(_ context.Context, filter netbox.VLANFilter) ([]netbox.VLAN, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filters = append(f.filters, filter)
	return f.vlans, nil
}

func (f *fakeNetBox) BulkUpdateInterfaces(_ context.Context, ops []*model.ChangeOperation) ([]netbox.Interface, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patches = append(f.patches, ops)
	return nil, nil
}

type fakeFetcher struct {
	mu      sync.Mutex
	targets []*device.Target
	fail    map[string]error
	configs map[string]string
	delay   time.Duration

	active, peak int32
}

func (f *fakeFetcher) FetchRunningConfig(ctx context.Context, target *device.Target) (string, error) {
	n := atomic.AddInt32(&f.active, 1)
	defer atomic.AddInt32(&f.active, -1)
	for {
		p := atomic.LoadInt32(&f.peak)
		if n <= p || atomic.CompareAndSwapInt32(&f.peak, p, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.targets = append(f.targets, target)
	f.mu.Unlock()

	if err := f.fail[target.Name]; err != nil {
		return "", err
	}
	if text, ok := f.configs[target.Name]; ok {
		return text, nil
	}
	return runningConfig, nil
}

func (f *fakeFetcher) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.targets)
}

func newRunner(t *testing.T, nb *fakeNetBox, fetcher *fakeFetcher, opts Options) (*Runner, *audit.Journal) {
	t.Helper()
	logger, err := audit.OpenJournal(filepath.Join(t.TempDir(), "audit.log"), audit.JournalOptions{})
	if err != nil {
		t.Fatalf("OpenJournal: %v", err)
	}
	t.Cleanup(func() { logger.Close() })

	r := New(nb, fetcher, nil, opts)
	r.Snapshots = snapshot.NewMemoryStore(0)
	r.Audit = logger
	r.Metrics = metrics.New()
	return r, logger
}

func TestSyncDevice_DryRun(t *testing.T) {
	nb := newFakeNetBox("sw1")
	fetcher := &fakeFetcher{}
	r, logger := newRunner(t, nb, fetcher, Options{User: "alice", RunID: "run-1"})

	rep := r.SyncDevice(context.Background(), "sw1")
	if rep.Err != nil {
		t.Fatalf("SyncDevice: %v", rep.Err)
	}
	if rep.Applied {
		t.Error("dry run reported Applied")
	}
	if len(nb.patches) != 0 {
		t.Errorf("dry run sent %d PATCH requests", len(nb.patches))
	}
	if rep.Source != SourceSSH {
		t.Errorf("Source = %q, want %q", rep.Source, SourceSSH)
	}
	if got := len(rep.Plan.Operations); got != 2 {
		t.Fatalf("planned %d updates, want 2:\n%s", got, rep.Plan)
	}

	first := rep.Plan.Operations[0]
	if first.ID != 101 || first.Description == nil || *first.Description != "uplink" {
		t.Errorf("first op = %s", first)
	}
	if first.UntaggedVLAN == nil || *first.UntaggedVLAN != 100 {
		t.Errorf("first op untagged = %v, want 100", first.UntaggedVLAN)
	}
	second := rep.Plan.Operations[1]
	if second.ID != 102 || second.Enabled == nil || *second.Enabled {
		t.Errorf("second op = %s, want enabled=false only", second)
	}
	if fields := second.Fields(); len(fields) != 1 {
		t.Errorf("second op fields = %v, want [enabled]", fields)
	}

	if _, err := r.Snapshots.Get(context.Background(), "sw1"); err != nil {
		t.Errorf("snapshot not cached: %v", err)
	}

	events, err := logger.Query(audit.Filter{Device: "sw1"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d audit events, want 1", len(events))
	}
	ev := events[0]
	if ev.Operation != audit.EventTypePlan || ev.ExecuteMode || !ev.Success {
		t.Errorf("event = %+v", ev)
	}
	if ev.RunID != "run-1" || ev.User != "alice" || ev.Source != SourceSSH {
		t.Errorf("event identity = %q/%q/%q", ev.RunID, ev.User, ev.Source)
	}
	if len(ev.Changes) != 2 {
		t.Errorf("event has %d changes, want 2", len(ev.Changes))
	}
}

func TestSyncDevice_Execute(t *testing.T) {
	nb := newFakeNetBox("sw1")
	r, logger := newRunner(t, nb, &fakeFetcher{}, Options{Execute: true})

	rep := r.SyncDevice(context.Background(), "sw1")
	if rep.Err != nil {
		t.Fatalf("SyncDevice: %v", rep.Err)
	}
	if !rep.Applied {
		t.Error("Applied = false")
	}
	if len(nb.patches) != 1 {
		t.Fatalf("sent %d PATCH requests, want exactly 1", len(nb.patches))
	}
	if len(nb.patches[0]) != 2 {
		t.Errorf("PATCH carried %d operations, want 2", len(nb.patches[0]))
	}

	events, _ := logger.Query(audit.Filter{Operation: audit.EventTypeSync})
	if len(events) != 1 || !events[0].ExecuteMode {
		t.Errorf("sync events = %+v", events)
	}

	n, err := testutil.GatherAndCount(r.Metrics.Registry(), "swsync_sync_runs_total")
	if err != nil {
		t.Fatalf("GatherAndCount: %v", err)
	}
	if n != 1 {
		t.Errorf("swsync_sync_runs_total series = %d, want 1", n)
	}
}

func TestSyncDevice_ExecuteNoChanges(t *testing.T) {
	nb := newFakeNetBox("sw1")
	// Make NetBox already match the device.
	nb.ifaces[1][0] = netbox.Interface{
		ID: 101, Name: "Gi1/0/1", Enabled: true, Description: "uplink",
		Mode:         &netbox.Choice{Value: "access"},
		UntaggedVLAN: &netbox.NestedVLAN{ID: 100, VID: 10},
	}
	nb.ifaces[1][1].Enabled = false

	r, _ := newRunner(t, nb, &fakeFetcher{}, Options{Execute: true})
	rep := r.SyncDevice(context.Background(), "sw1")
	if rep.Err != nil {
		t.Fatalf("SyncDevice: %v", rep.Err)
	}
	if !rep.Plan.IsEmpty() {
		t.Errorf("plan not empty:\n%s", rep.Plan)
	}
	if rep.Applied || len(nb.patches) != 0 {
		t.Errorf("empty plan sent %d PATCH requests", len(nb.patches))
	}
}

func TestSyncDevice_Snapshots(t *testing.T) {
	tests := []struct {
		name       string
		opts       Options
		age        time.Duration
		wantSource string
		wantFetch  int
	}{
		{"cached fresh", Options{Cached: true}, time.Minute, SourceSnapshot, 0},
		{"cached within max age", Options{Cached: true, MaxAge: time.Hour}, time.Minute, SourceSnapshot, 0},
		{"cached too old", Options{Cached: true, MaxAge: time.Minute}, time.Hour, SourceSSH, 1},
		{"refresh wins over cached", Options{Cached: true, Refresh: true}, time.Minute, SourceSSH, 1},
		{"not cached", Options{}, time.Minute, SourceSSH, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := &fakeFetcher{fail: map[string]error{}}
			r, _ := newRunner(t, newFakeNetBox("sw1"), fetcher, tt.opts)

			snap := snapshot.New("sw1", "10.0.0.1", runningConfig)
			snap.FetchedAt = time.Now().Add(-tt.age)
			if err := r.Snapshots.Put(context.Background(), snap); err != nil {
				t.Fatalf("Put: %v", err)
			}

			rep := r.SyncDevice(context.Background(), "sw1")
			if rep.Err != nil {
				t.Fatalf("SyncDevice: %v", rep.Err)
			}
			if rep.Source != tt.wantSource {
				t.Errorf("Source = %q, want %q", rep.Source, tt.wantSource)
			}
			if got := fetcher.calls(); got != tt.wantFetch {
				t.Errorf("SSH fetches = %d, want %d", got, tt.wantFetch)
			}
		})
	}
}

func TestSyncDevice_CachedMiss(t *testing.T) {
	fetcher := &fakeFetcher{}
	r, _ := newRunner(t, newFakeNetBox("sw1"), fetcher, Options{Cached: true})

	rep := r.SyncDevice(context.Background(), "sw1")
	if rep.Err != nil {
		t.Fatalf("SyncDevice: %v", rep.Err)
	}
	if rep.Source != SourceSSH || fetcher.calls() != 1 {
		t.Errorf("Source = %q, fetches = %d", rep.Source, fetcher.calls())
	}
}

func TestSyncDevice_Target(t *testing.T) {
	tests := []struct {
		name     string
		opts     Options
		override *DeviceOverride
		wantHost string
		wantPort int
	}{
		{"inventory address", Options{}, nil, "10.0.0.1", device.DefaultSSHPort},
		{"global port", Options{SSHPort: 2222}, nil, "10.0.0.1", 2222},
		{"override", Options{SSHPort: 2222}, &DeviceOverride{Host: "sw1.mgmt", Port: 8022}, "sw1.mgmt", 8022},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := &fakeFetcher{}
			r, _ := newRunner(t, newFakeNetBox("sw1"), fetcher, tt.opts)
			if tt.override != nil {
				r.Overrides = map[string]DeviceOverride{"sw1": *tt.override}
			}

			rep := r.SyncDevice(context.Background(), "sw1")
			if rep.Err != nil {
				t.Fatalf("SyncDevice: %v", rep.Err)
			}
			got := fetcher.targets[0]
			if got.Host != tt.wantHost || got.Port != tt.wantPort {
				t.Errorf("target = %s:%d, want %s:%d", got.Host, got.Port, tt.wantHost, tt.wantPort)
			}
			if got.OS != device.OSIOSXE {
				t.Errorf("target OS = %q, want %q", got.OS, device.OSIOSXE)
			}
		})
	}
}

func TestSyncDevice_VLANSite(t *testing.T) {
	tests := []struct {
		name     string
		opts     Options
		override DeviceOverride
		want     netbox.VLANFilter
	}{
		{"device site", Options{}, DeviceOverride{}, netbox.VLANFilter{SiteID: 7}},
		{"device override", Options{}, DeviceOverride{Site: "branch"}, netbox.VLANFilter{SiteSlug: "branch"}},
		{"global override", Options{Site: "dc1"}, DeviceOverride{Site: "branch"}, netbox.VLANFilter{SiteSlug: "dc1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nb := newFakeNetBox("sw1")
			r, _ := newRunner(t, nb, &fakeFetcher{}, tt.opts)
			r.Overrides = map[string]DeviceOverride{"sw1": tt.override}

			if rep := r.SyncDevice(context.Background(), "sw1"); rep.Err != nil {
				t.Fatalf("SyncDevice: %v", rep.Err)
			}
			if len(nb.filters) != 1 || nb.filters[0] != tt.want {
				t.Errorf("VLAN filters = %+v, want [%+v]", nb.filters, tt.want)
			}
		})
	}
}

func TestSyncDevice_Errors(t *testing.T) {
	sshErr := errors.New("ssh: handshake failed")

	tests := []struct {
		name    string
		device  string
		mutate  func(nb *fakeNetBox)
		wantErr error
	}{
		{"unknown device", "sw9", nil, util.ErrNotFound},
		{"no primary ip", "sw1", func(nb *fakeNetBox) { nb.devices["sw1"].PrimaryIP = nil }, util.ErrInvalidConfig},
		{"no site", "sw1", func(nb *fakeNetBox) { nb.devices["sw1"].Site = nil }, util.ErrInvalidConfig},
		{"ssh failure", "sw1", nil, sshErr},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nb := newFakeNetBox("sw1")
			if tt.mutate != nil {
				tt.mutate(nb)
			}
			fetcher := &fakeFetcher{}
			if tt.wantErr == sshErr {
				fetcher.fail = map[string]error{"sw1": sshErr}
			}
			r, logger := newRunner(t, nb, fetcher, Options{Execute: true})

			rep := r.SyncDevice(context.Background(), tt.device)
			if !errors.Is(rep.Err, tt.wantErr) {
				t.Fatalf("Err = %v, want %v", rep.Err, tt.wantErr)
			}
			if rep.Succeeded() {
				t.Error("Succeeded() = true")
			}
			if len(nb.patches) != 0 {
				t.Errorf("failed sync sent %d PATCH requests", len(nb.patches))
			}

			events, _ := logger.Query(audit.Filter{FailureOnly: true})
			if len(events) != 1 || events[0].Error == "" {
				t.Errorf("failure events = %+v", events)
			}
		})
	}
}

func TestSyncDevice_RejectedBlock(t *testing.T) {
	nb := newFakeNetBox("sw1")
	fetcher := &fakeFetcher{configs: map[string]string{
		"sw1": "interface GigabitEthernet1/0/1\n switchport mode trunk\n switchport trunk allowed vlan 1-4095\n!\n" +
			"interface GigabitEthernet1/0/2\n shutdown\n!\n",
	}}
	r, logger := newRunner(t, nb, fetcher, Options{Execute: true})

	rep := r.SyncDevice(context.Background(), "sw1")
	if rep.Err != nil {
		t.Fatalf("SyncDevice: %v", rep.Err)
	}
	if len(rep.ParseErrors) != 1 {
		t.Errorf("ParseErrors = %v, want one", rep.ParseErrors)
	}
	if len(rep.Plan.Missing) != 0 {
		t.Errorf("Missing = %v, want none", rep.Plan.Missing)
	}
	if len(nb.patches) != 1 || len(nb.patches[0]) != 1 || nb.patches[0][0].ID != 102 {
		t.Fatalf("patches = %v, want only the GigabitEthernet1/0/2 update", nb.patches)
	}

	events, _ := logger.Query(audit.Filter{Device: "sw1"})
	if len(events) != 1 {
		t.Fatalf("got %d audit events, want 1", len(events))
	}
	if got := events[0].Rejected; len(got) != 1 || got[0] != "Gi1/0/1" {
		t.Errorf("Rejected = %v, want [Gi1/0/1]", got)
	}
}

func TestRun(t *testing.T) {
	names := []string{"sw1", "sw2", "sw3", "sw4", "sw5"}
	nb := newFakeNetBox(names...)
	fetcher := &fakeFetcher{
		delay: 20 * time.Millisecond,
		fail:  map[string]error{"sw3": errors.New("ssh: connection refused")},
	}
	r, logger := newRunner(t, nb, fetcher, Options{Parallel: 2, RunID: "run-7"})

	reports, err := r.Run(context.Background(), names)
	if err == nil {
		t.Fatal("Run succeeded despite a failing device")
	}
	if len(reports) != len(names) {
		t.Fatalf("got %d reports, want %d", len(reports), len(names))
	}
	for i, rep := range reports {
		if rep.Device != names[i] {
			t.Errorf("reports[%d].Device = %q, want %q", i, rep.Device, names[i])
		}
		if wantErr := rep.Device == "sw3"; (rep.Err != nil) != wantErr {
			t.Errorf("%s: Err = %v", rep.Device, rep.Err)
		}
	}
	if peak := atomic.LoadInt32(&fetcher.peak); peak > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak)
	}

	events, _ := logger.Query(audit.Filter{RunID: "run-7"})
	if len(events) != len(names) {
		t.Errorf("run has %d audit events, want %d", len(events), len(names))
	}
}

func TestWithRunID(t *testing.T) {
	r := New(newFakeNetBox(), &fakeFetcher{}, nil, Options{RunID: "a"})
	cp := r.WithRunID("b")
	if r.Options().RunID != "a" || cp.Options().RunID != "b" {
		t.Errorf("run ids = %q, %q", r.Options().RunID, cp.Options().RunID)
	}
	if cp.Options().Parallel != 1 {
		t.Errorf("Parallel = %d, want 1", cp.Options().Parallel)
	}
}
