// Package client implements the client side of the overlay: the uplink and
// downlink goroutines that move IP frames between the local TUN device and
// the relay's UDP socket under one established session key (component C9).
package client

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"

	"github.com/pqtun/pqtun/internal/logging"
	"github.com/pqtun/pqtun/pkg/aead"
)

const udpReadBufferSize = 2048

// Stats are the client datapath's lifetime counters.
type Stats struct {
	FramesSent     atomic.Uint64
	FramesReceived atomic.Uint64
	FramesDropped  atomic.Uint64
}

// TUNDevice is the subset of *tun.Device the datapath needs.
type TUNDevice interface {
	ReadPacket() ([]byte, error)
	WritePacket([]byte) error
}

// Datapath moves frames between a TUN device and the relay over one fixed
// session key. It does not re-handshake on AEAD failure or connection
// loss — a frame that fails to open or comes from another source is
// dropped, the session stays live, matching the server's drop-not-teardown
// behavior. Frame order is not checked.
type Datapath struct {
	conn       net.PacketConn
	serverAddr net.Addr
	tun        TUNDevice
	sessionKey [aead.KeySize]byte
	log        *logging.Logger

	stats Stats
}

// New constructs a Datapath. conn may receive from any address; the
// downlink drops every datagram whose source is not serverAddr. The caller
// is responsible for having completed the handshake that produced
// sessionKey.
func New(conn net.PacketConn, serverAddr net.Addr, tunDevice TUNDevice,
	sessionKey [aead.KeySize]byte, log *logging.Logger) *Datapath {
	return &Datapath{
		conn:       conn,
		serverAddr: serverAddr,
		tun:        tunDevice,
		sessionKey: sessionKey,
		log:        log,
	}
}

// Stats returns the datapath's live counters.
func (d *Datapath) Stats() *Stats { return &d.stats }

// Run drives the uplink and downlink loops until ctx is cancelled or
// either loop hits an unrecoverable error.
func (d *Datapath) Run(ctx context.Context) error {
	errc := make(chan error, 2)
	go func() { errc <- d.uplink(ctx) }()
	go func() { errc <- d.downlink(ctx) }()

	select {
	case <-ctx.Done():
		d.conn.Close()
		<-errc
		<-errc
		return ctx.Err()
	case err := <-errc:
		d.conn.Close()
		return err
	}
}

// uplink reads IP frames from the TUN device, seals them, and sends them
// to the relay.
func (d *Datapath) uplink(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		plaintext, err := d.tun.ReadPacket()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("client: tun read: %w", err)
		}

		sealed, err := aead.Seal(d.sessionKey, plaintext)
		if err != nil {
			d.stats.FramesDropped.Add(1)
			continue
		}
		if _, err := d.conn.WriteTo(sealed, d.serverAddr); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("client: udp write: %w", err)
		}
		d.stats.FramesSent.Add(1)
	}
}

// downlink reads datagrams from the relay, opens them, and writes the
// recovered IP frame to the TUN device. A datagram that fails to open or
// does not come from the relay's address is dropped; the session is never
// torn down on this path.
func (d *Datapath) downlink(ctx context.Context) error {
	buf := make([]byte, udpReadBufferSize)
	for {
		if ctx.Err() != nil {
			return nil
		}
		n, from, err := d.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("client: udp read: %w", err)
		}
		if from.String() != d.serverAddr.String() {
			d.stats.FramesDropped.Add(1)
			continue
		}

		plaintext, err := aead.Open(d.sessionKey, buf[:n])
		if err != nil {
			d.stats.FramesDropped.Add(1)
			continue
		}

		if err := d.tun.WritePacket(plaintext); err != nil {
			d.stats.FramesDropped.Add(1)
			continue
		}
		d.stats.FramesReceived.Add(1)
	}
}
