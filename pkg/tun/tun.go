// Package tun wraps a TUN device for reading and writing raw IP frames,
// the server and client's sole collaborator for injecting and capturing
// overlay traffic (component C4).
package tun

import (
	"fmt"
	"log"
	"os/exec"
	"runtime"
	"sync"

	"github.com/songgao/water"
)

// mtu bounds a single read/write; IP frames larger than this are not
// expected to arrive from the kernel's TUN queue.
const mtu = 1500

// bsdAFHeaderSize is the 4-byte address-family header BSD-derived kernels
// (including Darwin's utun) prepend to every frame read from or written to
// a TUN device. Linux TUN devices created with IFF_NO_PI carry no such
// header. Reads strip it; writes restore it.
const bsdAFHeaderSize = 4

// af-header values utun prepends: AF_INET or AF_INET6 in network byte
// order, big-endian uint32.
var (
	afHeaderInet  = [bsdAFHeaderSize]byte{0x00, 0x00, 0x00, 0x02}
	afHeaderInet6 = [bsdAFHeaderSize]byte{0x00, 0x00, 0x00, 0x1e}
)

var bufferPool = sync.Pool{
	New: func() interface{} {
		b := make([]byte, mtu+bsdAFHeaderSize)
		return &b
	},
}

// Device is an open TUN interface.
type Device struct {
	iface *water.Interface
	name  string

	mu     sync.RWMutex
	closed bool
}

// Open creates (or attaches to) a TUN device with the given name (empty
// lets the OS assign one) and brings it up with the given point-to-point
// virtual IP under the overlay CIDR prefix length.
func Open(name, virtualIP string, prefixLen int) (*Device, error) {
	cfg := water.Config{DeviceType: water.TUN}
	if name != "" {
		cfg.Name = name
	}

	iface, err := water.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("tun: create device: %w", err)
	}

	d := &Device{iface: iface, name: iface.Name()}

	if err := d.configureAddress(virtualIP, prefixLen); err != nil {
		_ = iface.Close()
		return nil, err
	}

	log.Printf("tun: device %s up with overlay address %s/%d", d.name, virtualIP, prefixLen)
	return d, nil
}

// Name returns the kernel-assigned or requested interface name.
func (d *Device) Name() string { return d.name }

// ReadPacket reads one IP frame, stripping the BSD address-family header
// where the platform adds one.
func (d *Device) ReadPacket() ([]byte, error) {
	bufPtr := bufferPool.Get().(*[]byte)
	defer bufferPool.Put(bufPtr)
	buf := *bufPtr

	n, err := d.iface.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("tun: read: %w", err)
	}

	frame := buf[:n]
	if runtime.GOOS == "darwin" {
		if len(frame) < bsdAFHeaderSize {
			return nil, fmt.Errorf("tun: frame shorter than af header: %d bytes", len(frame))
		}
		frame = frame[bsdAFHeaderSize:]
	}

	out := make([]byte, len(frame))
	copy(out, frame)
	return out, nil
}

// WritePacket writes one IP frame, prepending the BSD address-family
// header where the platform expects one.
func (d *Device) WritePacket(packet []byte) error {
	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return fmt.Errorf("tun: device closed")
	}
	d.mu.RUnlock()

	if runtime.GOOS != "darwin" {
		_, err := d.iface.Write(packet)
		if err != nil {
			return fmt.Errorf("tun: write: %w", err)
		}
		return nil
	}

	header := afHeaderInet
	if len(packet) > 0 && packet[0]>>4 == 6 {
		header = afHeaderInet6
	}
	framed := make([]byte, 0, bsdAFHeaderSize+len(packet))
	framed = append(framed, header[:]...)
	framed = append(framed, packet...)

	if _, err := d.iface.Write(framed); err != nil {
		return fmt.Errorf("tun: write: %w", err)
	}
	return nil
}

// Close closes the underlying device.
func (d *Device) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return d.iface.Close()
}

// configureAddress assigns the point-to-point overlay address to the
// interface and brings it up, using the platform's native tool the way a
// human operator would.
func (d *Device) configureAddress(virtualIP string, prefixLen int) error {
	if runtime.GOOS == "darwin" {
		return d.configureAddressDarwin(virtualIP)
	}
	return d.configureAddressLinux(virtualIP, prefixLen)
}

func (d *Device) configureAddressLinux(virtualIP string, prefixLen int) error {
	if err := exec.Command("ip", "link", "set", "dev", d.name, "up").Run(); err != nil {
		return fmt.Errorf("tun: bring up %s: %w", d.name, err)
	}
	cidr := fmt.Sprintf("%s/%d", virtualIP, prefixLen)
	if err := exec.Command("ip", "addr", "add", cidr, "dev", d.name).Run(); err != nil {
		log.Printf("tun: warning: failed to assign %s to %s (may already be set): %v", cidr, d.name, err)
	}
	return nil
}

func (d *Device) configureAddressDarwin(virtualIP string) error {
	// macOS utun interfaces are strictly point-to-point: local and remote
	// addresses are the same overlay address for a two-node link.
	out, err := exec.Command("ifconfig", d.name, virtualIP, virtualIP, "up").CombinedOutput()
	if err != nil {
		return fmt.Errorf("tun: configure %s: %w (output: %s)", d.name, err, out)
	}
	return nil
}
