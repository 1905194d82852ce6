// Package ippacket parses just enough of an IP header to route a frame by
// destination address. IPv6 is recognized but never routed — the overlay
// only assigns IPv4 virtual addresses, so an IPv6 frame has no route by
// construction and is dropped by the caller.
package ippacket

import (
	"errors"
	"fmt"
	"net"
)

// ErrTooShort indicates a frame shorter than a minimal IP header.
var ErrTooShort = errors.New("ippacket: frame too short")

// ErrUnsupportedVersion indicates the first nibble isn't 4 or 6.
var ErrUnsupportedVersion = errors.New("ippacket: unsupported IP version")

// Packet is a parsed IP frame; only the fields the router needs.
type Packet struct {
	Version uint8
	SrcIP   net.IP
	DstIP   net.IP
	Raw     []byte
}

// IsIPv4 reports whether the parsed frame is IPv4, the only version the
// overlay routes.
func (p *Packet) IsIPv4() bool { return p.Version == 4 }

// Parse extracts the version and source/destination addresses from an IP
// frame. It does not validate checksums or options — only enough structure
// to make a routing decision.
func Parse(frame []byte) (*Packet, error) {
	if len(frame) < 1 {
		return nil, ErrTooShort
	}

	version := frame[0] >> 4
	switch version {
	case 4:
		return parseV4(frame)
	case 6:
		return parseV6(frame)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
}

func parseV4(frame []byte) (*Packet, error) {
	if len(frame) < 20 {
		return nil, ErrTooShort
	}
	headerLen := int(frame[0]&0x0F) * 4
	if headerLen < 20 || len(frame) < headerLen {
		return nil, ErrTooShort
	}
	return &Packet{
		Version: 4,
		SrcIP:   net.IP(append([]byte(nil), frame[12:16]...)),
		DstIP:   net.IP(append([]byte(nil), frame[16:20]...)),
		Raw:     frame,
	}, nil
}

func parseV6(frame []byte) (*Packet, error) {
	if len(frame) < 40 {
		return nil, ErrTooShort
	}
	return &Packet{
		Version: 6,
		SrcIP:   net.IP(append([]byte(nil), frame[8:24]...)),
		DstIP:   net.IP(append([]byte(nil), frame[24:40]...)),
		Raw:     frame,
	}, nil
}
