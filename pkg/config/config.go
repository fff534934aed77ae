// Package config loads the swsync YAML configuration file and applies
// environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/swsync-network/swsync/pkg/reconcile"
	"github.com/swsync-network/swsync/pkg/util"
)

// Environment variables that override file values when set.
const (
	EnvNetBoxURL   = "NETBOX_URL"
	EnvNetBoxToken = "NETBOX_TOKEN"
	EnvSiteSlug    = "NETBOX_SITE_SLUG"
	EnvSSHUsername = "DEFAULT_SSH_USERNAME"
	EnvSSHPassword = "DEFAULT_SSH_PASSWORD"
)

// Config is the top-level configuration.
type Config struct {
	NetBox   NetBoxConfig   `yaml:"netbox"`
	SSH      SSHConfig      `yaml:"ssh"`
	Sync     SyncConfig     `yaml:"sync"`
	Devices  []DeviceConfig `yaml:"devices"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	Audit    AuditConfig    `yaml:"audit"`
	Daemon   DaemonConfig   `yaml:"daemon"`
}

// NetBoxConfig configures the NetBox API client.
type NetBoxConfig struct {
	URL          string        `yaml:"url"`
	Token        string        `yaml:"token"`
	VerifyTLS    bool          `yaml:"verify_tls"`
	PageSize     int           `yaml:"page_size"`
	Timeout      time.Duration `yaml:"timeout"`
	PatchTimeout time.Duration `yaml:"patch_timeout"`
}

// SSHConfig configures device sessions.
type SSHConfig struct {
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	KnownHosts     string        `yaml:"known_hosts"`
	Command        string        `yaml:"command"`
	Port           int           `yaml:"port"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	CommandTimeout time.Duration `yaml:"command_timeout"`
}

// SyncConfig tunes reconciliation.
type SyncConfig struct {
	// Site selects the VLAN catalog by site slug. Empty uses each
	// device's own site.
	Site string `yaml:"site"`

	// UnrestrictedTrunks is "clear" or "preserve".
	UnrestrictedTrunks string `yaml:"unrestricted_trunks"`

	// Parallel bounds how many devices sync at once.
	Parallel int `yaml:"parallel"`
}

// DeviceConfig names a device to sync, with optional per-device overrides.
type DeviceConfig struct {
	Name string `yaml:"name"`
	Site string `yaml:"site,omitempty"`
	Host string `yaml:"host,omitempty"`
	Port int    `yaml:"port,omitempty"`
}

// SnapshotConfig configures the Redis running-config cache. The cache is
// disabled when Addr is empty.
type SnapshotConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	TTL       time.Duration `yaml:"ttl"`
	KeyPrefix string        `yaml:"key_prefix"`

	// Tunnel reaches Redis through an SSH bastion when Host is set.
	Tunnel TunnelConfig `yaml:"tunnel"`
}

// TunnelConfig names an SSH bastion. Credentials default to the ssh
// section's.
type TunnelConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// AuditConfig configures the audit log.
type AuditConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// DaemonConfig configures scheduled sync.
type DaemonConfig struct {
	Schedule string `yaml:"schedule"`
	Listen   string `yaml:"listen"`
	Execute  bool   `yaml:"execute"`
}

// Enabled reports whether the snapshot cache is configured.
func (s SnapshotConfig) Enabled() bool {
	return s.Addr != ""
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.NetBox.Timeout == 0 {
		c.NetBox.Timeout = 60 * time.Second
	}
	if c.NetBox.PatchTimeout == 0 {
		c.NetBox.PatchTimeout = 300 * time.Second
	}
	if c.SSH.Command == "" {
		c.SSH.Command = "show running-config all"
	}
	if c.SSH.Port == 0 {
		c.SSH.Port = 22
	}
	if c.SSH.ConnectTimeout == 0 {
		c.SSH.ConnectTimeout = 20 * time.Second
	}
	if c.SSH.CommandTimeout == 0 {
		c.SSH.CommandTimeout = 300 * time.Second
	}
	if c.Sync.UnrestrictedTrunks == "" {
		c.Sync.UnrestrictedTrunks = string(reconcile.UnrestrictedClear)
	}
	if c.Sync.Parallel == 0 {
		c.Sync.Parallel = 1
	}
	if c.Snapshot.TTL == 0 {
		c.Snapshot.TTL = 24 * time.Hour
	}
	if c.Snapshot.KeyPrefix == "" {
		c.Snapshot.KeyPrefix = "swsync:snapshot:"
	}
	if c.Snapshot.Tunnel.Port == 0 {
		c.Snapshot.Tunnel.Port = 22
	}
	if c.Audit.Path == "" {
		c.Audit.Path = defaultAuditPath()
	}
	if c.Audit.MaxSizeMB == 0 {
		c.Audit.MaxSizeMB = 10
	}
	if c.Audit.MaxBackups == 0 {
		c.Audit.MaxBackups = 5
	}
	if c.Daemon.Schedule == "" {
		c.Daemon.Schedule = "@every 1h"
	}
	if c.Daemon.Listen == "" {
		c.Daemon.Listen = ":9273"
	}
}

func defaultAuditPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "swsync-audit.jsonl"
	}
	return filepath.Join(home, ".swsync", "audit.jsonl")
}

// Load reads the configuration file at path, applies environment overrides
// and defaults, and validates the result. A missing file is an error
// unless optional is set, in which case only the environment and defaults
// are used.
func Load(path string, optional bool) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	case os.IsNotExist(err) && optional:
		util.WithField("path", path).Debug("No config file, using environment and defaults")
	default:
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg.ApplyEnv(os.LookupEnv)
	cfg.applyDefaults()
	cfg.expandPaths()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides file values with the environment. lookup is usually
// os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set(&c.NetBox.URL, EnvNetBoxURL)
	set(&c.NetBox.Token, EnvNetBoxToken)
	set(&c.Sync.Site, EnvSiteSlug)
	set(&c.SSH.Username, EnvSSHUsername)
	set(&c.SSH.Password, EnvSSHPassword)
}

func (c *Config) expandPaths() {
	c.SSH.KnownHosts = expandHome(c.SSH.KnownHosts)
	c.Audit.Path = expandHome(c.Audit.Path)
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// Validate checks the configuration. The SSH password is not required
// here since the CLI may prompt for it.
func (c *Config) Validate() error {
	vb := &util.ValidationBuilder{}

	vb.Add(c.NetBox.URL != "", "netbox.url is required (or set "+EnvNetBoxURL+")")
	vb.Add(c.NetBox.Token != "", "netbox.token is required (or set "+EnvNetBoxToken+")")
	vb.Add(c.NetBox.PageSize >= 0, "netbox.page_size must not be negative")

	if _, err := reconcile.ParseUnrestrictedPolicy(c.Sync.UnrestrictedTrunks); err != nil {
		vb.AddErrorf("sync.unrestricted_trunks: %v", err)
	}
	vb.Add(c.Sync.Parallel >= 1, "sync.parallel must be at least 1")
	vb.Add(c.SSH.Port > 0 && c.SSH.Port < 65536, "ssh.port must be between 1 and 65535")

	seen := make(map[string]bool, len(c.Devices))
	for i, d := range c.Devices {
		if d.Name == "" {
			vb.AddErrorf("devices[%d]: name is required", i)
			continue
		}
		if seen[d.Name] {
			vb.AddErrorf("devices[%d]: duplicate device %q", i, d.Name)
		}
		seen[d.Name] = true
	}

	vb.Add(c.Snapshot.TTL > 0, "snapshot.ttl must be positive")
	vb.Add(c.Audit.MaxSizeMB > 0, "audit.max_size_mb must be positive")

	return vb.Build()
}

// UnrestrictedPolicy returns the parsed sync.unrestricted_trunks value.
func (c *Config) UnrestrictedPolicy() reconcile.UnrestrictedPolicy {
	p, err := reconcile.ParseUnrestrictedPolicy(c.Sync.UnrestrictedTrunks)
	if err != nil {
		return reconcile.UnrestrictedClear
	}
	return p
}

// Device returns the entry for a device name, or a bare entry when the
// device is not listed.
func (c *Config) Device(name string) DeviceConfig {
	for _, d := range c.Devices {
		if d.Name == name {
			return d
		}
	}
	return DeviceConfig{Name: name}
}

// DeviceNames returns the configured device names in file order.
func (c *Config) DeviceNames() []string {
	names := make([]string, 0, len(c.Devices))
	for _, d := range c.Devices {
		names = append(names, d.Name)
	}
	return names
}
