// Package server implements the relay daemon: a single UDP socket that
// either completes a handshake or forwards an already-established peer's
// encrypted datagram toward its overlay destination (component C8), plus
// the optional gateway/NAT path (component C5).
package server

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"

	"github.com/pqtun/pqtun/internal/logging"
	"github.com/pqtun/pqtun/pkg/aead"
	"github.com/pqtun/pqtun/pkg/handshake"
	"github.com/pqtun/pqtun/pkg/ippacket"
	"github.com/pqtun/pqtun/pkg/session"
	"github.com/pqtun/pqtun/pkg/sessiontable"
)

// TUNDevice is the subset of *tun.Device the dispatcher needs, narrowed to
// an interface so tests can exercise the gateway fallback path without a
// real kernel TUN device.
type TUNDevice interface {
	ReadPacket() ([]byte, error)
	WritePacket([]byte) error
	Close() error
}

// udpReadBufferSize bounds one recvfrom; larger than any legal overlay
// frame (MTU 1500 plus AEAD overhead plus handshake framing headroom).
const udpReadBufferSize = 2048

// Stats are the dispatcher's lifetime counters, read concurrently with the
// hot path via atomics.
type Stats struct {
	FramesRouted  atomic.Uint64
	FramesDropped atomic.Uint64
	BytesForwarded atomic.Uint64
	HandshakesOK  atomic.Uint64
	HandshakesDropped atomic.Uint64
}

// Dispatcher owns the relay's UDP socket and TUN device and runs the
// server's two datapath loops.
type Dispatcher struct {
	conn net.PacketConn
	tun  TUNDevice
	log  *logging.Logger

	sessions *sessiontable.Manager

	signingKey []byte
	psk        []byte

	gateway bool

	stats Stats
}

// New constructs a Dispatcher bound to conn and tun, ready to Run.
func New(conn net.PacketConn, tunDevice TUNDevice, sessions *sessiontable.Manager,
	signingKey, psk []byte, gateway bool, log *logging.Logger) *Dispatcher {
	return &Dispatcher{
		conn:       conn,
		tun:        tunDevice,
		log:        log,
		sessions:   sessions,
		signingKey: signingKey,
		psk:        psk,
		gateway:    gateway,
	}
}

// Stats returns the dispatcher's live counters.
func (d *Dispatcher) Stats() *Stats { return &d.stats }

// Run drives both datapath loops until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	errc := make(chan error, 2)
	go func() { errc <- d.udpLoop(ctx) }()
	go func() { errc <- d.tunLoop(ctx) }()

	select {
	case <-ctx.Done():
		d.conn.Close()
		d.tun.Close()
		<-errc
		<-errc
		return ctx.Err()
	case err := <-errc:
		d.conn.Close()
		d.tun.Close()
		return err
	}
}

// udpLoop reads every inbound datagram, classifies it as a handshake or a
// data frame, and dispatches accordingly.
func (d *Dispatcher) udpLoop(ctx context.Context) error {
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
			return fmt.Errorf("server: udp read: %w", err)
		}

		frame := make([]byte, n)
		copy(frame, buf[:n])
		peerEndpoint := from.String()

		if handshake.IsClientHello(frame) {
			d.handleClientHello(frame, from, peerEndpoint)
			continue
		}
		d.handleDataFrame(frame, peerEndpoint)
	}
}

// handleClientHello runs the server side of the handshake (component C3)
// and, capacity permitting, installs the resulting session and route.
func (d *Dispatcher) handleClientHello(frame []byte, from net.Addr, peerEndpoint string) {
	hello, err := handshake.DecodeClientHello(frame)
	if err != nil {
		d.log.Warn("dropping malformed client hello", logging.Fields{"peer": peerEndpoint, "error": err.Error()})
		return
	}

	established, err := handshake.Respond(hello, d.signingKey, d.psk)
	if err != nil {
		d.log.Warn("handshake response failed", logging.Fields{"peer": peerEndpoint, "error": err.Error()})
		d.stats.HandshakesDropped.Add(1)
		return
	}

	entry := &session.Entry{
		SessionKey:   established.SessionKey,
		VirtualIP:    established.VirtualIP,
		PeerEndpoint: peerEndpoint,
		ClientID:     established.ClientID,
	}
	if err := d.sessions.Establish(peerEndpoint, entry); err != nil {
		// Table at capacity: drop silently, no reply, so an attacker
		// gets no signal distinguishing "full" from "packet lost".
		d.stats.HandshakesDropped.Add(1)
		return
	}

	if _, err := d.conn.WriteTo(established.Reply, from); err != nil {
		d.log.Warn("failed to send server hello", logging.Fields{"peer": peerEndpoint, "error": err.Error()})
		return
	}
	d.stats.HandshakesOK.Add(1)
	d.log.Info("handshake established", logging.Fields{
		"peer": peerEndpoint, "client_id": established.ClientID, "virtual_ip": established.VirtualIP,
	})
}

// handleDataFrame decrypts a data frame under the sender's session, routes
// it by inner destination address, and either re-encrypts it toward
// another peer, writes it cleartext to the TUN device (gateway mode, no
// matching route), or drops it.
func (d *Dispatcher) handleDataFrame(frame []byte, peerEndpoint string) {
	entry, ok := d.sessions.Session(peerEndpoint)
	if !ok {
		d.stats.FramesDropped.Add(1)
		return
	}

	plaintext, err := aead.Open(entry.SessionKey, frame)
	if err != nil {
		// AEAD failure drops the frame but never tears down the session:
		// a corrupted or forged frame is not evidence the peer is gone.
		d.stats.FramesDropped.Add(1)
		return
	}

	pkt, err := ippacket.Parse(plaintext)
	if err != nil || !pkt.IsIPv4() {
		d.stats.FramesDropped.Add(1)
		return
	}

	destEndpoint, ok := d.sessions.RouteEndpoint(pkt.DstIP.String())
	if ok {
		d.forwardToPeer(destEndpoint, plaintext)
		return
	}

	if d.gateway {
		if err := d.tun.WritePacket(plaintext); err != nil {
			d.stats.FramesDropped.Add(1)
			return
		}
		d.stats.FramesRouted.Add(1)
		d.stats.BytesForwarded.Add(uint64(len(plaintext)))
		return
	}

	d.stats.FramesDropped.Add(1)
}

// forwardToPeer re-encrypts plaintext under destEndpoint's own session key
// and sends it on. A route with no matching session means the peer
// disconnected without being evicted cleanly; treat it as a drop.
func (d *Dispatcher) forwardToPeer(destEndpoint string, plaintext []byte) {
	destEntry, ok := d.sessions.Session(destEndpoint)
	if !ok {
		d.stats.FramesDropped.Add(1)
		return
	}

	ciphertext, err := aead.Seal(destEntry.SessionKey, plaintext)
	if err != nil {
		d.stats.FramesDropped.Add(1)
		return
	}

	addr, err := net.ResolveUDPAddr("udp", destEndpoint)
	if err != nil {
		d.stats.FramesDropped.Add(1)
		return
	}
	if _, err := d.conn.WriteTo(ciphertext, addr); err != nil {
		d.stats.FramesDropped.Add(1)
		return
	}
	d.stats.FramesRouted.Add(1)
	d.stats.BytesForwarded.Add(uint64(len(plaintext)))
}

// tunLoop reads frames arriving from outside the overlay (gateway mode's
// return traffic) and forwards them to whichever client owns the
// destination virtual IP.
func (d *Dispatcher) tunLoop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		frame, err := d.tun.ReadPacket()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("server: tun read: %w", err)
		}

		pkt, err := ippacket.Parse(frame)
		if err != nil || !pkt.IsIPv4() {
			d.stats.FramesDropped.Add(1)
			continue
		}

		destEndpoint, ok := d.sessions.RouteEndpoint(pkt.DstIP.String())
		if !ok {
			d.stats.FramesDropped.Add(1)
			continue
		}
		d.forwardToPeer(destEndpoint, frame)
	}
}
