// Package runner drives a device sync end to end: inventory lookup, VLAN
// catalog, running configuration, plan, and the optional bulk update.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/swsync-network/swsync/pkg/audit"
	"github.com/swsync-network/swsync/pkg/device"
	"github.com/swsync-network/swsync/pkg/metrics"
	"github.com/swsync-network/swsync/pkg/model"
	"github.com/swsync-network/swsync/pkg/netbox"
	"github.com/swsync-network/swsync/pkg/reconcile"
	"github.com/swsync-network/swsync/pkg/runconfig"
	"github.com/swsync-network/swsync/pkg/snapshot"
	"github.com/swsync-network/swsync/pkg/util"
)

// Running-configuration sources.
const (
	SourceSSH      = "ssh"
	SourceSnapshot = "snapshot"
)

// NetBox is the inventory API the runner needs.
type NetBox interface {
	GetDevice(ctx context.Context, name string) (*netbox.Device, error)
	ListInterfaces(ctx context.Context, deviceID int) ([]netbox.Interface, error)
	ListVLANs(ctx context.Context, f netbox.VLANFilter) ([]netbox.VLAN, error)
	BulkUpdateInterfaces(ctx context.Context, ops []*model.ChangeOperation) ([]netbox.Interface, error)
}

// ConfigFetcher reads a device's running configuration.
type ConfigFetcher interface {
	FetchRunningConfig(ctx context.Context, target *device.Target) (string, error)
}

// DeviceOverride replaces inventory data for one device.
type DeviceOverride struct {
	Site string
	Host string
	Port int
}

// Options controls one run.
type Options struct {
	// Execute applies the plan. Without it the run is a dry run.
	Execute bool

	// Cached reuses a snapshot instead of opening an SSH session when one
	// is available and no older than MaxAge (0 accepts any age).
	Cached bool
	MaxAge time.Duration

	// Refresh ignores snapshots and always reads over SSH.
	Refresh bool

	// Site overrides the VLAN catalog site slug for every device.
	Site string

	// Parallel bounds concurrent device syncs.
	Parallel int

	// SSHPort is used for devices without a port override.
	SSHPort int

	User  string
	RunID string
}

// Runner syncs devices. Snapshots, Audit and Metrics are optional.
type Runner struct {
	NetBox    NetBox
	Fetcher   ConfigFetcher
	Engine    *reconcile.Engine
	Snapshots snapshot.Store
	Audit     audit.Logger
	Metrics   *metrics.Metrics
	Overrides map[string]DeviceOverride

	opts Options
}

// New creates a runner. A nil engine selects the default options.
func New(nb NetBox, fetcher ConfigFetcher, engine *reconcile.Engine, opts Options) *Runner {
	if engine == nil {
		engine = reconcile.NewEngine(reconcile.Options{})
	}
	if opts.Parallel < 1 {
		opts.Parallel = 1
	}
	return &Runner{NetBox: nb, Fetcher: fetcher, Engine: engine, opts: opts}
}

// Options returns the run options.
func (r *Runner) Options() Options {
	return r.opts
}

// WithRunID returns a copy of the runner that tags its audit events with
// id. Scheduled runs use it to give every tick its own id.
func (r *Runner) WithRunID(id string) *Runner {
	cp := *r
	cp.opts.RunID = id
	return &cp
}

// Report is the outcome of one device sync.
type Report struct {
	Device      string                  `json:"device"`
	RunID       string                  `json:"run_id,omitempty"`
	Source      string                  `json:"source,omitempty"`
	Target      *device.Target          `json:"target,omitempty"`
	Plan        *reconcile.Plan         `json:"plan,omitempty"`
	ParseErrors []*runconfig.BlockError `json:"-"`
	Applied     bool                    `json:"applied"`
	Duration    time.Duration           `json:"duration"`
	Err         error                   `json:"-"`
}

// Succeeded reports whether the sync finished without error.
func (r *Report) Succeeded() bool {
	return r.Err == nil
}

// Run syncs every named device, at most Parallel at a time. Reports are
// returned in input order; the error joins every device failure.
func (r *Runner) Run(ctx context.Context, names []string) ([]*Report, error) {
	reports := make([]*Report, len(names))
	sem := make(chan struct{}, r.opts.Parallel)

	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			reports[i] = r.SyncDevice(ctx, name)
		}(i, name)
	}
	wg.Wait()

	var errs []error
	for _, rep := range reports {
		if rep.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", rep.Device, rep.Err))
		}
	}
	return reports, errors.Join(errs...)
}

// SyncDevice syncs one device. Failures are reported in Report.Err.
func (r *Runner) SyncDevice(ctx context.Context, name string) *Report {
	start := time.Now()
	rep := &Report{Device: name, RunID: r.opts.RunID}
	log := util.WithDevice(name)

	rep.Err = r.sync(ctx, rep)
	rep.Duration = time.Since(start)

	if rep.Err != nil {
		log.Errorf("Sync failed: %v", rep.Err)
	} else {
		log.WithField("updates", len(rep.Plan.Operations)).
			WithField("applied", rep.Applied).
			Infof("Sync finished in %s", rep.Duration.Round(time.Millisecond))
	}

	r.record(rep)
	return rep
}

func (r *Runner) sync(ctx context.Context, rep *Report) error {
	log := util.WithDevice(rep.Device)
	override := r.Overrides[rep.Device]

	dev, err := r.NetBox.GetDevice(ctx, rep.Device)
	if err != nil {
		return err
	}

	filter, err := r.vlanFilter(dev, override)
	if err != nil {
		return err
	}
	vlans, err := r.NetBox.ListVLANs(ctx, filter)
	if err != nil {
		return fmt.Errorf("listing VLANs: %w", err)
	}
	table := netbox.BuildVLANTable(vlans)
	log.Debugf("VLAN table has %d entries", len(table))

	ifaces, err := r.NetBox.ListInterfaces(ctx, dev.ID)
	if err != nil {
		return fmt.Errorf("listing interfaces: %w", err)
	}

	text, err := r.runningConfig(ctx, rep, dev, override)
	if err != nil {
		return err
	}

	cfg := runconfig.Parse(text)
	rep.ParseErrors = cfg.Errors
	for _, perr := range cfg.Errors {
		log.Warnf("Skipping interface: %v", perr)
	}

	plan, err := r.Engine.Device(rep.Device, cfg, netbox.Records(ifaces), table)
	if err != nil {
		return err
	}
	rep.Plan = plan
	for _, name := range plan.Missing {
		log.Warnf("NetBox interface %s not in running config, skipped", name)
	}
	for _, name := range plan.Rejected {
		log.Infof("NetBox interface %s left unchanged, its block was rejected", name)
	}
	for _, name := range plan.Unmodelled {
		log.Debugf("Interface %s has no NetBox record", name)
	}

	if !r.opts.Execute || plan.IsEmpty() {
		return nil
	}

	if _, err := r.NetBox.BulkUpdateInterfaces(ctx, plan.Operations); err != nil {
		return fmt.Errorf("applying %d updates: %w", len(plan.Operations), err)
	}
	rep.Applied = true
	return nil
}

func (r *Runner) vlanFilter(dev *netbox.Device, override DeviceOverride) (netbox.VLANFilter, error) {
	switch {
	case r.opts.Site != "":
		return netbox.VLANFilter{SiteSlug: r.opts.Site}, nil
	case override.Site != "":
		return netbox.VLANFilter{SiteSlug: override.Site}, nil
	case dev.Site != nil && dev.Site.ID != 0:
		return netbox.VLANFilter{SiteID: dev.Site.ID}, nil
	}
	return netbox.VLANFilter{}, fmt.Errorf("device %s has no site: %w", dev.Name, util.ErrInvalidConfig)
}

// runningConfig returns the device configuration from a fresh snapshot
// when allowed, otherwise over SSH, caching what SSH returned.
func (r *Runner) runningConfig(ctx context.Context, rep *Report, dev *netbox.Device, override DeviceOverride) (string, error) {
	log := util.WithDevice(rep.Device)

	if r.Snapshots != nil && r.opts.Cached && !r.opts.Refresh {
		snap, err := r.Snapshots.Get(ctx, rep.Device)
		switch {
		case err == nil && (r.opts.MaxAge == 0 || snap.Age() <= r.opts.MaxAge):
			log.Infof("Using snapshot from %s", snap.FetchedAt.Format(time.RFC3339))
			rep.Source = SourceSnapshot
			return snap.Config, nil
		case err == nil:
			log.Infof("Snapshot is %s old, refreshing", snap.Age().Round(time.Second))
		case errors.Is(err, util.ErrNotFound):
			log.Debug("No snapshot, reading over SSH")
		default:
			log.Warnf("Snapshot lookup failed, reading over SSH: %v", err)
		}
	}

	host := override.Host
	if host == "" {
		addr, err := dev.PrimaryAddress()
		if err != nil {
			return "", err
		}
		host = addr
	}
	target := device.NewTarget(rep.Device, host, dev.PlatformSlug(), dev.PlatformName())
	switch {
	case override.Port != 0:
		target.Port = override.Port
	case r.opts.SSHPort != 0:
		target.Port = r.opts.SSHPort
	}
	rep.Target = target

	text, err := r.Fetcher.FetchRunningConfig(ctx, target)
	if err != nil {
		return "", fmt.Errorf("reading running config: %w", err)
	}
	rep.Source = SourceSSH

	if r.Snapshots != nil {
		if err := r.Snapshots.Put(ctx, snapshot.New(rep.Device, host, text)); err != nil {
			log.Warnf("Caching snapshot failed: %v", err)
		}
	}
	return text, nil
}

// record writes the audit event and metrics for a finished sync.
func (r *Runner) record(rep *Report) {
	op := audit.EventTypePlan
	if r.opts.Execute {
		op = audit.EventTypeSync
	}

	event := audit.NewEvent(r.opts.User, rep.Device, op).
		WithRunID(rep.RunID).
		WithSource(rep.Source).
		WithExecuteMode(r.opts.Execute).
		WithDuration(rep.Duration)

	outcome := metrics.Outcome{
		Device:   rep.Device,
		Err:      rep.Err,
		Executed: rep.Applied,
		Duration: rep.Duration,
		Finished: time.Now(),
	}
	outcome.ParseErrors = len(rep.ParseErrors)

	if rep.Plan != nil {
		event.WithChanges(rep.Plan.Operations).WithUnmatched(rep.Plan.Missing, rep.Plan.Unmodelled).
			WithRejected(rep.Plan.Rejected)
		outcome.Updates = len(rep.Plan.Operations)
		outcome.Missing = len(rep.Plan.Missing)
	}
	if len(rep.ParseErrors) > 0 {
		errs := make([]error, len(rep.ParseErrors))
		for i, e := range rep.ParseErrors {
			errs[i] = e
		}
		event.WithParseErrors(errs)
	}
	if rep.Err != nil {
		event.WithError(rep.Err)
	} else {
		event.WithSuccess()
	}

	if r.Audit != nil {
		if err := r.Audit.Log(event); err != nil {
			util.WithDevice(rep.Device).Warnf("Writing audit event failed: %v", err)
		}
	}
	r.Metrics.Observe(outcome)
}
