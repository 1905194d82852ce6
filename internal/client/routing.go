package client

import (
	"fmt"
	"net"
	"os/exec"
	"runtime"

	"github.com/pqtun/pqtun/internal/logging"
)

// InstallRoutes points traffic at the TUN interface according to the
// client's tunnel mode. Split-tunnel (the default) only routes the
// overlay's own CIDR through the tunnel; full-tunnel first adds a host
// route to the relay's own address over the original egress path, so the
// tunnel connection itself doesn't loop back through itself, and then
// routes all IPv4 traffic through the tunnel.
func InstallRoutes(log *logging.Logger, tunName, overlayCIDR string, fullTunnel bool, serverAddr net.Addr) error {
	if fullTunnel {
		if err := addHostRoute(serverAddr); err != nil {
			return fmt.Errorf("routing: pin relay route before full-tunnel: %w", err)
		}
		if err := addDefaultRoute(tunName); err != nil {
			return fmt.Errorf("routing: install full-tunnel default route: %w", err)
		}
		log.Info("full-tunnel routing installed", logging.Fields{"tun": tunName})
		return nil
	}

	if err := addCIDRRoute(tunName, overlayCIDR); err != nil {
		return fmt.Errorf("routing: install split-tunnel route: %w", err)
	}
	log.Info("split-tunnel routing installed", logging.Fields{"tun": tunName, "cidr": overlayCIDR})
	return nil
}

func addCIDRRoute(tunName, cidr string) error {
	switch runtime.GOOS {
	case "linux":
		return run("ip", "route", "add", cidr, "dev", tunName)
	case "darwin":
		return run("route", "add", "-net", cidr, "-interface", tunName)
	default:
		return fmt.Errorf("unsupported platform %q", runtime.GOOS)
	}
}

// addDefaultRoute covers the whole IPv4 space with two /1 routes, which
// take precedence over the host's own 0.0.0.0/0 default route.
func addDefaultRoute(tunName string) error {
	for _, half := range []string{"0.0.0.0/1", "128.0.0.0/1"} {
		var err error
		switch runtime.GOOS {
		case "linux":
			err = run("ip", "route", "add", half, "dev", tunName)
		case "darwin":
			err = run("route", "add", "-net", half, "-interface", tunName)
		default:
			return fmt.Errorf("unsupported platform %q", runtime.GOOS)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// addHostRoute keeps the relay's own traffic off the tunnel so a
// full-tunnel client doesn't try to route its own handshake/datapath
// packets through the interface it's still setting up.
func addHostRoute(serverAddr net.Addr) error {
	host, _, err := net.SplitHostPort(serverAddr.String())
	if err != nil {
		host = serverAddr.String()
	}
	switch runtime.GOOS {
	case "linux":
		return run("ip", "route", "add", host+"/32", "dev", defaultLinuxEgress())
	case "darwin":
		return run("route", "add", "-host", host, defaultDarwinGateway())
	default:
		return fmt.Errorf("unsupported platform %q", runtime.GOOS)
	}
}

func defaultLinuxEgress() string {
	out, err := exec.Command("sh", "-c", "ip route show default | awk '{print $5; exit}'").Output()
	if err != nil {
		return ""
	}
	return trimNewline(out)
}

func defaultDarwinGateway() string {
	out, err := exec.Command("sh", "-c", "route -n get default | awk '/gateway/{print $2}'").Output()
	if err != nil {
		return ""
	}
	return trimNewline(out)
}

func trimNewline(b []byte) string {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return string(b)
}

func run(name string, args ...string) error {
	out, err := exec.Command(name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %v: %w (output: %s)", name, args, err, out)
	}
	return nil
}
