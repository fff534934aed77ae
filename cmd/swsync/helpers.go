package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/user"
	"strings"

	"golang.org/x/term"

	"github.com/swsync-network/swsync/pkg/cli"
	"github.com/swsync-network/swsync/pkg/config"
	"github.com/swsync-network/swsync/pkg/device"
	"github.com/swsync-network/swsync/pkg/netbox"
	"github.com/swsync-network/swsync/pkg/snapshot"
	"github.com/swsync-network/swsync/pkg/util"
)

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printDryRunNotice(execute bool) {
	if !execute {
		fmt.Println("\n" + cli.Yellow("DRY-RUN: No changes applied. Use -x to execute."))
	}
}

func currentUser() string {
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return os.Getenv("USER")
}

// promptPassword reads a password from the terminal without echo. It fails
// when stdin is not a terminal.
func promptPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("no password configured and stdin is not a terminal: %w", util.ErrInvalidConfig)
	}
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(pw), nil
}

// confirm asks a yes/no question on the terminal.
func confirm(question string) bool {
	fmt.Fprintf(os.Stderr, "%s [y/N]: ", question)
	line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func newNetBoxClient(cfg *config.Config) (*netbox.Client, error) {
	return netbox.NewClient(netbox.Options{
		URL:          cfg.NetBox.URL,
		Token:        cfg.NetBox.Token,
		VerifyTLS:    cfg.NetBox.VerifyTLS,
		PageSize:     cfg.NetBox.PageSize,
		Timeout:      cfg.NetBox.Timeout,
		PatchTimeout: cfg.NetBox.PatchTimeout,
	})
}

// newDialer creates the device SSH dialer, prompting for the password when
// the configuration and environment carry none.
func newDialer(cfg *config.Config) (*device.SSHDialer, error) {
	if cfg.SSH.Password == "" {
		pw, err := promptPassword(fmt.Sprintf("SSH password for %s: ", cfg.SSH.Username))
		if err != nil {
			return nil, err
		}
		cfg.SSH.Password = pw
	}
	return device.NewSSHDialer(device.SSHOptions{
		Credentials:    device.Credentials{Username: cfg.SSH.Username, Password: cfg.SSH.Password},
		KnownHostsFile: cfg.SSH.KnownHosts,
		Command:        cfg.SSH.Command,
		ConnectTimeout: cfg.SSH.ConnectTimeout,
		CommandTimeout: cfg.SSH.CommandTimeout,
	})
}

// tunneledStore closes the SSH tunnel together with the store behind it.
type tunneledStore struct {
	snapshot.Store
	tunnel *device.Tunnel
}

func (s *tunneledStore) Close() error {
	err := s.Store.Close()
	if terr := s.tunnel.Close(); err == nil {
		err = terr
	}
	return err
}

// openSnapshotStore connects to the snapshot cache, through an SSH bastion
// when one is configured. It returns nil, nil when the cache is disabled.
func openSnapshotStore(ctx context.Context, cfg *config.Config) (snapshot.Store, error) {
	sc := cfg.Snapshot
	if !sc.Enabled() {
		return nil, nil
	}
	opts := snapshot.RedisOptions{
		Addr:      sc.Addr,
		Password:  sc.Password,
		DB:        sc.DB,
		TTL:       sc.TTL,
		KeyPrefix: sc.KeyPrefix,
	}

	if sc.Tunnel.Host == "" {
		return snapshot.NewRedisStore(ctx, opts)
	}

	creds := device.Credentials{Username: sc.Tunnel.Username, Password: sc.Tunnel.Password}
	if creds.Username == "" {
		creds = device.Credentials{Username: cfg.SSH.Username, Password: cfg.SSH.Password}
	}
	dialer, err := device.NewSSHDialer(device.SSHOptions{
		Credentials:    creds,
		KnownHostsFile: cfg.SSH.KnownHosts,
		ConnectTimeout: cfg.SSH.ConnectTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot tunnel: %w", err)
	}
	bastion := &device.Target{Name: "snapshot-bastion", Host: sc.Tunnel.Host, Port: sc.Tunnel.Port}
	tunnel, err := dialer.OpenTunnel(ctx, bastion, sc.Addr)
	if err != nil {
		return nil, fmt.Errorf("snapshot tunnel: %w", err)
	}
	util.WithField("bastion", bastion.Address()).Debugf("Snapshot cache tunneled via %s", tunnel.LocalAddr())

	opts.Addr = tunnel.LocalAddr()
	store, err := snapshot.NewRedisStore(ctx, opts)
	if err != nil {
		tunnel.Close()
		return nil, err
	}
	return &tunneledStore{Store: store, tunnel: tunnel}, nil
}

// resolveDevices picks the devices to act on: arguments (each may be a
// comma-separated list), then --all, then the default_device setting.
func resolveDevices(args []string, all bool, cfg *config.Config) ([]string, error) {
	var names []string
	for _, arg := range args {
		names = append(names, util.SplitCommaSeparated(arg)...)
	}

	switch {
	case len(names) > 0:
		return names, nil
	case all:
		names = cfg.DeviceNames()
		if len(names) == 0 {
			return nil, fmt.Errorf("--all given but the configuration lists no devices")
		}
		return names, nil
	case app.settings.DefaultDevice != "":
		return []string{app.settings.DefaultDevice}, nil
	}
	return nil, fmt.Errorf("device required: name one, use --all, or set a default with 'swsync settings set device <name>'")
}
