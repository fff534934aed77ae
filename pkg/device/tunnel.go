package device

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/swsync-network/swsync/pkg/util"
)

// Tunnel forwards a local TCP port to a remote address through an SSH
// connection. It lets the snapshot cache reach a Redis server that only
// listens on a bastion's loopback.
type Tunnel struct {
	localAddr  string // "127.0.0.1:<port>"
	remoteAddr string
	conn       *Conn
	listener   net.Listener
	done       chan struct{}
	wg         sync.WaitGroup
}

// OpenTunnel dials target and opens a local listener on a random port.
// Connections to the local port are forwarded to remoteAddr as seen from
// the SSH host.
func (d *SSHDialer) OpenTunnel(ctx context.Context, target *Target, remoteAddr string) (*Tunnel, error) {
	conn, err := d.Dial(ctx, target)
	if err != nil {
		return nil, err
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("local listen: %w", err)
	}

	t := &Tunnel{
		localAddr:  listener.Addr().String(),
		remoteAddr: remoteAddr,
		conn:       conn,
		listener:   listener,
		done:       make(chan struct{}),
	}

	t.wg.Add(1)
	go t.acceptLoop()

	util.WithDevice(target.Name).Infof("Tunnel %s -> %s open", t.localAddr, remoteAddr)
	return t, nil
}

// LocalAddr returns the local address (e.g. "127.0.0.1:54321") that
// forwards to the remote address.
func (t *Tunnel) LocalAddr() string {
	return t.localAddr
}

// Close stops the listener, closes the SSH connection, and waits for
// all forwarding goroutines to finish.
func (t *Tunnel) Close() error {
	close(t.done)
	t.listener.Close()
	err := t.conn.Close()
	t.wg.Wait()
	return err
}

func (t *Tunnel) acceptLoop() {
	defer t.wg.Done()
	for {
		local, err := t.listener.Accept()
		if err != nil {
			select {
			case <-t.done:
				return
			default:
				continue
			}
		}
		t.wg.Add(1)
		go t.forward(local)
	}
}

func (t *Tunnel) forward(local net.Conn) {
	defer t.wg.Done()
	defer local.Close()

	remote, err := t.conn.client.Dial("tcp", t.remoteAddr)
	if err != nil {
		util.WithField("remote", t.remoteAddr).Warnf("Tunnel dial failed: %v", err)
		return
	}
	defer remote.Close()

	done := make(chan struct{}, 2)
	go func() {
		io.Copy(remote, local)
		done <- struct{}{}
	}()
	go func() {
		io.Copy(local, remote)
		done <- struct{}{}
	}()
	<-done
}
