package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/swsync-network/swsync/pkg/cli"
	"github.com/swsync-network/swsync/pkg/netbox"
	"github.com/swsync-network/swsync/pkg/reconcile"
	"github.com/swsync-network/swsync/pkg/runconfig"
)

var (
	planInterfaces   string
	planVLANs        string
	planDevice       string
	planUnrestricted string
)

var planCmd = &cobra.Command{
	Use:   "plan <running-config|->",
	Short: "Plan updates offline from saved exports",
	Long: `Compute the NetBox updates for a saved running configuration against
saved NetBox API exports. Nothing is contacted and nothing is changed.

The exports are the JSON bodies of /api/dcim/interfaces/?device_id=N and
/api/ipam/vlans/?site=S, either as returned or as a bare array.

Examples:
  swsync plan sw-floor1.txt --interfaces ifaces.json --vlans vlans.json
  swsync plan sw-floor1.txt --interfaces ifaces.json --vlans vlans.json --unrestricted preserve --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		policy, err := reconcile.ParseUnrestrictedPolicy(planUnrestricted)
		if err != nil {
			return err
		}

		text, err := readInput(args[0])
		if err != nil {
			return err
		}
		ifaces, err := decodeExportFile[netbox.Interface](planInterfaces)
		if err != nil {
			return fmt.Errorf("interfaces export: %w", err)
		}
		vlans, err := decodeExportFile[netbox.VLAN](planVLANs)
		if err != nil {
			return fmt.Errorf("VLAN export: %w", err)
		}

		cfg := runconfig.Parse(text)
		engine := reconcile.NewEngine(reconcile.Options{Unrestricted: policy})
		plan, err := engine.Device(planDevice, cfg, netbox.Records(ifaces), netbox.BuildVLANTable(vlans))
		if err != nil {
			return err
		}

		if app.jsonOutput {
			return printJSON(plan)
		}

		if plan.IsEmpty() {
			fmt.Println(plan.String())
		}
		t := cli.NewTable("INTERFACE", "ID", "CHANGES")
		for _, op := range plan.Operations {
			t.Row(op.Interface, fmt.Sprint(op.ID), changeSummary(op.String()))
		}
		t.Flush()

		fmt.Printf("\n%d to update, %d unchanged, %d not in running config, %d rejected, %d not in NetBox\n",
			len(plan.Operations), plan.Unchanged, len(plan.Missing), len(plan.Rejected), len(plan.Unmodelled))
		for _, e := range cfg.Errors {
			fmt.Println(cli.Yellow("skipped: " + e.Error()))
		}
		return nil
	},
}

func init() {
	planCmd.Flags().StringVar(&planInterfaces, "interfaces", "", "NetBox interface export (JSON)")
	planCmd.Flags().StringVar(&planVLANs, "vlans", "", "NetBox VLAN export (JSON)")
	planCmd.Flags().StringVar(&planDevice, "device", "offline", "Device name shown in the plan")
	planCmd.Flags().StringVar(&planUnrestricted, "unrestricted", "", "Unrestricted trunk policy: clear (default) or preserve")
	planCmd.MarkFlagRequired("interfaces")
	planCmd.MarkFlagRequired("vlans")
}

func decodeExportFile[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return netbox.DecodeExport[T](f)
}
