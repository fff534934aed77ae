package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/swsync-network/swsync/pkg/cli"
	"github.com/swsync-network/swsync/pkg/config"
	"github.com/swsync-network/swsync/pkg/metrics"
	"github.com/swsync-network/swsync/pkg/reconcile"
	"github.com/swsync-network/swsync/pkg/runner"
	"github.com/swsync-network/swsync/pkg/util"
)

var (
	syncExecute  bool
	syncAll      bool
	syncCached   bool
	syncRefresh  bool
	syncMaxAge   time.Duration
	syncParallel int
	syncSite     string
)

var syncCmd = &cobra.Command{
	Use:   "sync [device...]",
	Short: "Reconcile devices into NetBox",
	Long: `Read each device's running configuration and update its NetBox
interfaces to match.

Without -x the plan is printed and NetBox is left untouched. With -x all
updates of a device are sent in one bulk PATCH.

Examples:
  swsync sync sw-floor1
  swsync sync sw-floor1 sw-floor2 -x
  swsync sync --all --parallel 4 -x
  swsync sync sw-floor1 --cached --max-age 2h`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := app.loadConfig()
		if err != nil {
			return err
		}
		names, err := resolveDevices(args, syncAll, cfg)
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
		defer cancel()

		opts := runner.Options{
			Execute:  syncExecute,
			Cached:   syncCached,
			MaxAge:   syncMaxAge,
			Refresh:  syncRefresh,
			Site:     syncSite,
			Parallel: syncParallel,
			SSHPort:  cfg.SSH.Port,
			User:     currentUser(),
			RunID:    uuid.NewString(),
		}
		if opts.Site == "" {
			opts.Site = cfg.Sync.Site
		}
		if opts.Site == "" {
			opts.Site = app.settings.DefaultSite
		}
		if opts.Parallel == 0 {
			opts.Parallel = cfg.Sync.Parallel
		}

		r, cleanup, err := buildRunner(ctx, cfg, opts, nil)
		if err != nil {
			return err
		}
		defer cleanup()

		reports, runErr := r.Run(ctx, names)

		app.settings.LastDevice = names[len(names)-1]
		if err := app.settings.Save(); err != nil {
			util.Debugf("Could not save settings: %v", err)
		}

		if app.jsonOutput {
			if err := printJSON(jsonReports(reports)); err != nil {
				return err
			}
			return runErr
		}

		for _, rep := range reports {
			printReport(rep)
		}
		printDryRunNotice(syncExecute)
		return runErr
	},
}

func init() {
	addWriteFlags(syncCmd, &syncExecute)
	syncCmd.Flags().BoolVar(&syncAll, "all", false, "Sync every device listed in the configuration")
	syncCmd.Flags().BoolVar(&syncCached, "cached", false, "Reuse a cached running config instead of SSH when available")
	syncCmd.Flags().BoolVar(&syncRefresh, "refresh", false, "Always read over SSH, replacing the cached running config")
	syncCmd.Flags().DurationVar(&syncMaxAge, "max-age", 0, "Oldest cached running config --cached accepts (0 = any)")
	syncCmd.Flags().IntVar(&syncParallel, "parallel", 0, "Devices to sync at once (default from sync.parallel)")
	syncCmd.Flags().StringVar(&syncSite, "site", "", "Site slug whose VLAN catalog is used (default: each device's site)")
}

// buildRunner wires the NetBox client, SSH dialer, snapshot cache, audit
// logger and metrics into a runner. The cleanup func closes the cache.
func buildRunner(ctx context.Context, cfg *config.Config, opts runner.Options, m *metrics.Metrics) (*runner.Runner, func(), error) {
	nb, err := newNetBoxClient(cfg)
	if err != nil {
		return nil, nil, err
	}

	dialer, err := newDialer(cfg)
	if err != nil {
		return nil, nil, err
	}

	engine := reconcile.NewEngine(reconcile.Options{Unrestricted: cfg.UnrestrictedPolicy()})
	r := runner.New(nb, dialer, engine, opts)
	r.Metrics = m
	if app.audit != nil {
		r.Audit = app.audit
	}

	r.Overrides = make(map[string]runner.DeviceOverride, len(cfg.Devices))
	for _, d := range cfg.Devices {
		r.Overrides[d.Name] = runner.DeviceOverride{Site: d.Site, Host: d.Host, Port: d.Port}
	}

	cleanup := func() {}
	store, err := openSnapshotStore(ctx, cfg)
	switch {
	case err != nil && opts.Cached:
		return nil, nil, err
	case err != nil:
		util.Warnf("Snapshot cache unavailable: %v", err)
	case store != nil:
		r.Snapshots = store
		cleanup = func() { store.Close() }
	case opts.Cached:
		util.Warnf("--cached given but snapshot.addr is not configured; reading over SSH")
	}
	return r, cleanup, nil
}

func printReport(rep *runner.Report) {
	status := ""
	switch {
	case rep.Err != nil:
		status = cli.Red("FAILED: " + rep.Err.Error())
	case rep.Plan.IsEmpty():
		status = cli.Green("in sync")
	case rep.Applied:
		status = cli.Green(fmt.Sprintf("%d updated", len(rep.Plan.Operations)))
	default:
		status = cli.Yellow(fmt.Sprintf("%d to update", len(rep.Plan.Operations)))
	}
	fmt.Printf("%s %s\n", cli.DotPad(rep.Device, 40), status)

	if rep.Plan == nil {
		return
	}

	t := cli.NewTable("INTERFACE", "ID", "CHANGES").WithPrefix("  ")
	for _, op := range rep.Plan.Operations {
		t.Row(op.Interface, fmt.Sprint(op.ID), changeSummary(op.String()))
	}
	t.Flush()

	if app.verbose {
		for _, name := range rep.Plan.Missing {
			fmt.Println(cli.Dim("  not in running config: " + name))
		}
		for _, name := range rep.Plan.Unmodelled {
			fmt.Println(cli.Dim("  not in NetBox: " + name))
		}
	}
	for _, perr := range rep.ParseErrors {
		fmt.Println(cli.Yellow("  skipped: " + perr.Error()))
	}
}

// changeSummary drops the "name (id N): " lead of a change summary since
// the table already shows both.
func changeSummary(s string) string {
	if _, rest, ok := strings.Cut(s, "): "); ok {
		return rest
	}
	return s
}

type reportJSON struct {
	*runner.Report
	Error       string   `json:"error,omitempty"`
	ParseErrors []string `json:"parse_errors,omitempty"`
}

func jsonReports(reports []*runner.Report) []reportJSON {
	out := make([]reportJSON, 0, len(reports))
	for _, rep := range reports {
		r := reportJSON{Report: rep}
		if rep.Err != nil {
			r.Error = rep.Err.Error()
		}
		for _, perr := range rep.ParseErrors {
			r.ParseErrors = append(r.ParseErrors, perr.Error())
		}
		out = append(out, r)
	}
	return out
}
