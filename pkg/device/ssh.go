package device

import (
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/swsync-network/swsync/pkg/util"
)

// Defaults for SSH sessions.
const (
	DefaultCommand        = "show running-config all"
	DefaultConnectTimeout = 20 * time.Second
	DefaultCommandTimeout = 300 * time.Second
)

// Credentials authenticate an SSH login.
type Credentials struct {
	Username string
	Password string
}

// SSHOptions configures an SSHDialer.
type SSHOptions struct {
	Credentials Credentials

	// KnownHostsFile enables host key checking. When empty, host keys are
	// not verified.
	KnownHostsFile string

	// Command overrides DefaultCommand.
	Command string

	ConnectTimeout time.Duration
	CommandTimeout time.Duration
}

// SSHDialer opens SSH connections to devices.
type SSHDialer struct {
	opts     SSHOptions
	hostKeys ssh.HostKeyCallback
}

// NewSSHDialer creates a dialer. The known hosts file, if any, is loaded
// once here.
func NewSSHDialer(opts SSHOptions) (*SSHDialer, error) {
	if opts.Credentials.Username == "" {
		return nil, fmt.Errorf("ssh username is required: %w", util.ErrInvalidConfig)
	}
	if opts.Command == "" {
		opts.Command = DefaultCommand
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.CommandTimeout == 0 {
		opts.CommandTimeout = DefaultCommandTimeout
	}

	d := &SSHDialer{opts: opts}
	if opts.KnownHostsFile != "" {
		cb, err := knownhosts.New(opts.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("loading known hosts %s: %w", opts.KnownHostsFile, err)
		}
		d.hostKeys = cb
	} else {
		util.Logger.Warn("SSH host key verification is disabled (no known_hosts file configured)")
		d.hostKeys = ssh.InsecureIgnoreHostKey() //nolint:gosec
	}
	return d, nil
}

// Conn is an open SSH connection to one device.
type Conn struct {
	target  *Target
	client  *ssh.Client
	command string
	timeout time.Duration
}

// Dial connects and authenticates to the target. The context bounds the
// TCP connect and the SSH handshake.
func (d *SSHDialer) Dial(ctx context.Context, target *Target) (*Conn, error) {
	return d.dial(ctx, target.Address(), target)
}

func (d *SSHDialer) dial(ctx context.Context, addr string, target *Target) (*Conn, error) {
	config := &ssh.ClientConfig{
		User: d.opts.Credentials.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(d.opts.Credentials.Password),
			ssh.KeyboardInteractive(passwordChallenge(d.opts.Credentials.Password)),
		},
		HostKeyCallback: d.hostKeys,
		Timeout:         d.opts.ConnectTimeout,
	}

	ctx, cancel := context.WithTimeout(ctx, d.opts.ConnectTimeout)
	defer cancel()

	var nd net.Dialer
	nc, err := nd.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("SSH dial %s: %w", addr, err)
	}

	// The handshake has no context of its own; bound it with a deadline.
	if deadline, ok := ctx.Deadline(); ok {
		_ = nc.SetDeadline(deadline)
	}
	sc, chans, reqs, err := ssh.NewClientConn(nc, addr, config)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("SSH handshake %s: %w", addr, err)
	}
	_ = nc.SetDeadline(time.Time{})

	util.WithDevice(target.Name).Debugf("Connected to %s", addr)
	return &Conn{
		target:  target,
		client:  ssh.NewClient(sc, chans, reqs),
		command: d.opts.Command,
		timeout: d.opts.CommandTimeout,
	}, nil
}

// FetchRunningConfig dials the target, reads its running configuration and
// disconnects.
func (d *SSHDialer) FetchRunningConfig(ctx context.Context, target *Target) (string, error) {
	conn, err := d.Dial(ctx, target)
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return conn.RunningConfig(ctx)
}

// passwordChallenge answers keyboard-interactive prompts with the password,
// which many IOS images require instead of plain password auth.
func passwordChallenge(password string) ssh.KeyboardInteractiveChallenge {
	return func(user, instruction string, questions []string, echos []bool) ([]string, error) {
		answers := make([]string, len(questions))
		for i := range answers {
			answers[i] = password
		}
		return answers, nil
	}
}

// RunningConfig runs the configured show command and returns its output.
func (c *Conn) RunningConfig(ctx context.Context) (string, error) {
	util.WithDevice(c.target.Name).Infof("Fetching '%s'", c.command)
	return c.Exec(ctx, c.command)
}

// Exec runs a command on a fresh session and returns the combined output.
// The session is closed when ctx is done or the command timeout expires.
func (c *Conn) Exec(ctx context.Context, cmd string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	session, err := c.client.NewSession()
	if err != nil {
		return "", fmt.Errorf("SSH session: %w", err)
	}
	defer session.Close()

	type result struct {
		out []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := session.CombinedOutput(cmd)
		done <- result{out, err}
	}()

	select {
	case <-ctx.Done():
		session.Close()
		return "", fmt.Errorf("SSH exec '%s': %w", cmd, ctx.Err())
	case r := <-done:
		if r.err != nil {
			return string(r.out), fmt.Errorf("SSH exec '%s': %w", cmd, r.err)
		}
		return string(r.out), nil
	}
}

// Target returns the device this connection belongs to.
func (c *Conn) Target() *Target {
	return c.target
}

// Close closes the SSH connection.
func (c *Conn) Close() error {
	util.WithDevice(c.target.Name).Debug("Disconnected")
	return c.client.Close()
}
