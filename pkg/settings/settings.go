// Package settings manages persistent user settings for the swsync CLI.
package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// DefaultConfigPath is used when neither -c nor the config_path setting
// names a configuration file.
const DefaultConfigPath = "/etc/swsync/config.yaml"

// Settings holds persistent user preferences
type Settings struct {
	// ConfigPath overrides the default configuration file
	ConfigPath string `json:"config_path,omitempty"`

	// DefaultDevice is the device to sync when none is given
	DefaultDevice string `json:"default_device,omitempty"`

	// DefaultSite overrides the site whose VLAN catalog is used
	DefaultSite string `json:"default_site,omitempty"`

	// LastDevice is the most recently synced device
	LastDevice string `json:"last_device,omitempty"`
}

// DefaultSettingsPath returns the default path for the settings file
func DefaultSettingsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "swsync_settings.json"
	}
	return filepath.Join(home, ".swsync", "settings.json")
}

// Load reads settings from the default location
func Load() (*Settings, error) {
	return LoadFrom(DefaultSettingsPath())
}

// LoadFrom reads settings from a specific path
func LoadFrom(path string) (*Settings, error) {
	s := &Settings{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return empty settings if file doesn't exist
			return s, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, s); err != nil {
		return nil, err
	}

	return s, nil
}

// Save writes settings to the default location
func (s *Settings) Save() error {
	return s.SaveTo(DefaultSettingsPath())
}

// SaveTo writes settings to a specific path
func (s *Settings) SaveTo(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// SetConfigPath sets the configuration file path
func (s *Settings) SetConfigPath(path string) {
	s.ConfigPath = path
}

// GetConfigPath returns the configuration file path (with fallback)
func (s *Settings) GetConfigPath() string {
	if s.ConfigPath != "" {
		return s.ConfigPath
	}
	return DefaultConfigPath
}

// SetDevice sets the default device
func (s *Settings) SetDevice(device string) {
	s.DefaultDevice = device
}

// SetSite sets the default site
func (s *Settings) SetSite(site string) {
	s.DefaultSite = site
}

// Clear resets all settings to defaults
func (s *Settings) Clear() {
	*s = Settings{}
}
