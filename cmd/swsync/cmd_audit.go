package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/swsync-network/swsync/pkg/audit"
	"github.com/swsync-network/swsync/pkg/cli"
	"github.com/swsync-network/swsync/pkg/config"
	"github.com/swsync-network/swsync/pkg/model"
	"github.com/swsync-network/swsync/pkg/util"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "View audit logs",
	Long: `View the audit log of sync runs.

Every plan and sync is logged with:
  - Timestamp, user and run id
  - Device and where its running config came from
  - The interface updates planned or applied
  - Success/failure status

Examples:
  swsync audit list --device sw-floor1
  swsync audit list --last 24h --changed
  swsync audit list --interface Gi1/0/1
  swsync audit list --run 3f2a...`,
}

var (
	auditDevice    string
	auditUser      string
	auditInterface string
	auditRun       string
	auditLast      string
	auditLimit     int
	auditFailures  bool
	auditChanged   bool
)

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit events",
	RunE: func(cmd *cobra.Command, args []string) error {
		// The audit log is readable without NetBox credentials.
		if _, err := app.loadConfig(); err != nil {
			util.Debugf("Using default audit path: %v", err)
			app.openAudit(config.Default().Audit)
		}

		filter := audit.Filter{
			Device:      auditDevice,
			User:        auditUser,
			RunID:       auditRun,
			Limit:       auditLimit,
			FailureOnly: auditFailures,
			ChangedOnly: auditChanged,
		}
		if auditInterface != "" {
			filter.Interface = model.NormalizeInterfaceName(auditInterface)
		}

		// Parse --last duration
		if auditLast != "" {
			duration, err := parseAge(auditLast)
			if err != nil {
				return fmt.Errorf("invalid duration: %s", auditLast)
			}
			filter.StartTime = time.Now().Add(-duration)
		}

		events, err := audit.Query(filter)
		if err != nil {
			return fmt.Errorf("querying audit log: %w", err)
		}

		if app.jsonOutput {
			return printJSON(events)
		}

		if len(events) == 0 {
			fmt.Println("No audit events found")
			return nil
		}

		t := cli.NewTable("TIMESTAMP", "USER", "DEVICE", "OPERATION", "CHANGES", "STATUS")
		for _, event := range events {
			status := cli.Green("ok")
			if !event.Success {
				status = cli.Red("failed")
			} else if event.DryRun {
				status = cli.Yellow("dry-run")
			}

			t.Row(
				event.Timestamp.Format("2006-01-02 15:04:05"),
				event.User,
				event.Device,
				string(event.Operation),
				fmt.Sprint(len(event.Changes)),
				status,
			)
		}
		t.Flush()

		if auditInterface != "" {
			fmt.Println()
			for _, event := range events {
				for _, c := range event.Changes {
					if c.Interface == filter.Interface {
						fmt.Printf("%s %s: %s\n", event.Timestamp.Format(time.RFC3339), event.Device, strings.Join(c.Fields, ","))
					}
				}
			}
		}
		return nil
	},
}

// parseAge accepts Go durations plus a "d" day suffix ("7d").
func parseAge(s string) (time.Duration, error) {
	if days, ok := strings.CutSuffix(s, "d"); ok {
		var n int
		if _, err := fmt.Sscanf(days, "%d", &n); err != nil || n < 0 {
			return 0, fmt.Errorf("invalid day count %q", days)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

func init() {
	auditListCmd.Flags().StringVar(&auditDevice, "device", "", "Filter by device")
	auditListCmd.Flags().StringVar(&auditUser, "user", "", "Filter by user")
	auditListCmd.Flags().StringVar(&auditInterface, "interface", "", "Only events that changed this interface")
	auditListCmd.Flags().StringVar(&auditRun, "run", "", "Filter by run id")
	auditListCmd.Flags().StringVar(&auditLast, "last", "", "Show events from last duration (e.g., 24h, 7d)")
	auditListCmd.Flags().IntVar(&auditLimit, "limit", 100, "Maximum events to show, most recent first kept")
	auditListCmd.Flags().BoolVar(&auditFailures, "failures", false, "Show only failed runs")
	auditListCmd.Flags().BoolVar(&auditChanged, "changed", false, "Show only runs with updates")

	auditCmd.AddCommand(auditListCmd)
}
