package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/swsync-network/swsync/pkg/cli"
	"github.com/swsync-network/swsync/pkg/model"
	"github.com/swsync-network/swsync/pkg/runconfig"
)

var parseCmd = &cobra.Command{
	Use:   "parse <file|->",
	Short: "Parse a saved running config and show its interfaces",
	Long: `Parse a running configuration from a file (or stdin with "-") and
print the canonical interface descriptors. Nothing is contacted.

Examples:
  swsync parse sw-floor1.txt
  ssh sw-floor1 'show running-config all' | swsync parse - --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := readInput(args[0])
		if err != nil {
			return err
		}
		cfg := runconfig.Parse(text)

		if app.jsonOutput {
			errs := make([]string, 0, len(cfg.Errors))
			for _, e := range cfg.Errors {
				errs = append(errs, e.Error())
			}
			return printJSON(struct {
				Interfaces map[string]*model.ParsedInterface `json:"interfaces"`
				Errors     []string                          `json:"errors"`
			}{cfg.Interfaces, errs})
		}

		t := cli.NewTable("INTERFACE", "ENABLED", "MODE", "VLAN", "ALLOWED", "DESCRIPTION")
		for _, name := range cfg.Names() {
			p := cfg.Interfaces[name]
			vlan, allowed := "", ""
			switch p.Mode {
			case model.ModeTrunk:
				vlan = optInt(p.NativeVLAN, "native ")
				allowed = p.AllowedVLANs.String()
			default:
				vlan = optInt(p.AccessVLAN, "")
			}
			if p.IsChannelMember() {
				vlan = fmt.Sprintf("channel-group %d", *p.ChannelGroup)
			}
			desc := ""
			if p.Description != nil {
				desc = *p.Description
			}
			t.Row(name, fmt.Sprint(p.Enabled), string(p.Mode), vlan, allowed, desc)
		}
		t.Flush()

		for _, e := range cfg.Errors {
			fmt.Println(cli.Yellow("skipped: " + e.Error()))
		}
		fmt.Printf("\n%d interfaces, %d skipped\n", len(cfg.Interfaces), len(cfg.Errors))
		return nil
	},
}

func optInt(v *int, prefix string) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%s%d", prefix, *v)
}

func readInput(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
