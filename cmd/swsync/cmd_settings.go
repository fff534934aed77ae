package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/swsync-network/swsync/pkg/cli"
	"github.com/swsync-network/swsync/pkg/settings"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage persistent settings",
	Long: `Manage persistent settings stored in ~/.swsync/settings.json.

Settings provide defaults for flags:
  - config_path:    Used when -c is not specified
  - default_device: Synced when no device is named
  - default_site:   VLAN catalog site when neither --site nor sync.site is set

Examples:
  swsync settings show
  swsync settings set config ~/swsync.yaml
  swsync settings set device sw-floor1
  swsync settings clear`,
}

const validSettings = "config, device, site"

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := settings.Load()
		if err != nil {
			return fmt.Errorf("loading settings: %w", err)
		}

		fmt.Printf("Settings file: %s\n\n", settings.DefaultSettingsPath())

		t := cli.NewTable("SETTING", "VALUE")

		printSetting := func(name, value string) {
			if value == "" {
				value = "(not set)"
			}
			t.Row(name, value)
		}

		printSetting("config_path", s.ConfigPath)
		printSetting("default_device", s.DefaultDevice)
		printSetting("default_site", s.DefaultSite)
		printSetting("last_device", s.LastDevice)

		t.Flush()
		return nil
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <setting> <value>",
	Short: "Set a setting value",
	Long: `Set a persistent setting value.

Available settings:
  config - Configuration file (-c flag default)
  device - Device synced when none is named
  site   - Default VLAN catalog site slug

Examples:
  swsync settings set config /etc/swsync/lab.yaml
  swsync settings set device sw-floor1
  swsync settings set site hq`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		setting := args[0]
		value := args[1]

		s, err := settings.Load()
		if err != nil {
			s = &settings.Settings{}
		}

		switch setting {
		case "config", "config_path":
			s.SetConfigPath(value)
			fmt.Printf("Configuration file set to: %s\n", value)
		case "device", "default_device":
			s.SetDevice(value)
			fmt.Printf("Default device set to: %s\n", value)
		case "site", "default_site":
			s.SetSite(value)
			fmt.Printf("Default site set to: %s\n", value)
		default:
			return fmt.Errorf("unknown setting: %s (valid: %s)", setting, validSettings)
		}

		if err := s.Save(); err != nil {
			return fmt.Errorf("saving settings: %w", err)
		}
		return nil
	},
}

var settingsGetCmd = &cobra.Command{
	Use:   "get <setting>",
	Short: "Get a setting value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := settings.Load()
		if err != nil {
			return fmt.Errorf("loading settings: %w", err)
		}

		var value string
		switch args[0] {
		case "config", "config_path":
			value = s.GetConfigPath()
		case "device", "default_device":
			value = s.DefaultDevice
		case "site", "default_site":
			value = s.DefaultSite
		case "last_device":
			value = s.LastDevice
		default:
			return fmt.Errorf("unknown setting: %s (valid: %s)", args[0], validSettings)
		}

		if value == "" {
			fmt.Println("(not set)")
		} else {
			fmt.Println(value)
		}
		return nil
	},
}

var settingsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear all settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		s := &settings.Settings{}
		if err := s.Save(); err != nil {
			return fmt.Errorf("saving settings: %w", err)
		}
		fmt.Println("All settings cleared.")
		return nil
	},
}

var settingsPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show settings file path",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(settings.DefaultSettingsPath())
	},
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	settingsCmd.AddCommand(settingsGetCmd)
	settingsCmd.AddCommand(settingsClearCmd)
	settingsCmd.AddCommand(settingsPathCmd)
}
