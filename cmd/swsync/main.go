// Swsync - switch running-config to NetBox reconciler
//
// Reads the running configuration of IOS-style access switches over SSH,
// compares each interface with its NetBox record, and updates NetBox so it
// matches the device:
//   - Interface state, description, 802.1Q mode and VLAN membership
//   - Dry-run by default (preview changes, require -x to execute)
//   - One bulk PATCH per device
//   - Audit logging of every run
//
// Examples:
//
//	swsync sync sw-floor1                  # Plan one device
//	swsync sync sw-floor1 -x               # Apply the plan
//	swsync sync --all --parallel 4 -x      # Every configured device
//	swsync sync sw-floor1 --cached         # Reuse the cached running config
//	swsync parse running.txt               # Show what the parser sees
//	swsync plan running.txt --interfaces ifaces.json --vlans vlans.json
//	swsync daemon                          # Scheduled sync with /metrics
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/swsync-network/swsync/pkg/audit"
	"github.com/swsync-network/swsync/pkg/cli"
	"github.com/swsync-network/swsync/pkg/config"
	"github.com/swsync-network/swsync/pkg/settings"
	"github.com/swsync-network/swsync/pkg/util"
	"github.com/swsync-network/swsync/pkg/version"
)

// App holds global flags and lazily loaded state.
type App struct {
	configPath string
	verbose    bool
	jsonOutput bool
	logJSON    bool

	settings *settings.Settings
	cfg      *config.Config
	audit    audit.Logger
}

var app = &App{}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, cli.Red("Error: ")+err.Error())
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:               "swsync",
	Short:             "Reconcile switch running-configs into NetBox",
	SilenceUsage:      true,
	SilenceErrors:     true,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	Long: `Swsync reads the running configuration of access switches over SSH
and updates the NetBox interface records so they match the device.

Write commands preview changes by default; use -x to execute.

  swsync sync <device>... [-x]`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if app.verbose {
			util.SetLogLevel("debug")
		} else {
			util.SetLogLevel("warn")
		}
		if app.logJSON {
			util.SetJSONFormat()
		}

		var err error
		app.settings, err = settings.Load()
		if err != nil {
			util.Warnf("Could not load settings: %v", err)
			app.settings = &settings.Settings{}
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&app.configPath, "config", "c", "", "Configuration file (default from settings, then "+settings.DefaultConfigPath+")")
	rootCmd.PersistentFlags().BoolVarP(&app.verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&app.logJSON, "log-json", false, "Log in JSON format")

	for _, cmd := range []*cobra.Command{syncCmd, parseCmd, planCmd, auditListCmd, snapshotListCmd, versionCmd} {
		addOutputFlags(cmd)
	}

	rootCmd.AddGroup(
		&cobra.Group{ID: "sync", Title: "Sync Operations:"},
		&cobra.Group{ID: "offline", Title: "Offline Tools:"},
		&cobra.Group{ID: "meta", Title: "Configuration & Meta:"},
	)

	for _, cmd := range []*cobra.Command{syncCmd, daemonCmd, snapshotCmd} {
		cmd.GroupID = "sync"
		rootCmd.AddCommand(cmd)
	}
	for _, cmd := range []*cobra.Command{parseCmd, planCmd} {
		cmd.GroupID = "offline"
		rootCmd.AddCommand(cmd)
	}
	for _, cmd := range []*cobra.Command{settingsCmd, auditCmd, versionCmd} {
		cmd.GroupID = "meta"
		rootCmd.AddCommand(cmd)
	}
}

func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&app.jsonOutput, "json", false, "JSON output")
}

func addWriteFlags(cmd *cobra.Command, execute *bool) {
	cmd.Flags().BoolVarP(execute, "execute", "x", false, "Apply changes to NetBox (default is dry-run)")
}

// loadConfig loads the configuration once. An explicit -c path must exist;
// the default path may be absent when the environment carries the settings.
func (a *App) loadConfig() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	path, optional := a.configPath, false
	if path == "" {
		path, optional = a.settings.GetConfigPath(), true
	}
	cfg, err := config.Load(path, optional)
	if err != nil {
		return nil, err
	}
	a.cfg = cfg
	a.openAudit(cfg.Audit)
	return cfg, nil
}

func (a *App) openAudit(ac config.AuditConfig) {
	if a.audit != nil {
		return
	}
	journal, err := audit.OpenJournal(ac.Path, audit.JournalOptions{
		MaxSize:    int64(ac.MaxSizeMB) << 20,
		MaxBackups: ac.MaxBackups,
	})
	if err != nil {
		util.Warnf("Could not initialize audit logging: %v", err)
		return
	}
	a.audit = journal
	audit.SetDefaultLogger(journal)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		if app.jsonOutput {
			return printJSON(version.Get())
		}
		if version.Version == "dev" {
			fmt.Println("swsync dev build (use 'make build' for version info)")
		} else {
			fmt.Printf("swsync %s (%s)\n", version.Version, version.GitCommit)
		}
		return nil
	},
}
