package server

import (
	"fmt"
	"os/exec"
	"runtime"

	"github.com/pqtun/pqtun/internal/logging"
)

// ConfigureGateway enables IP forwarding and NAT so overlay clients can
// reach the public internet through this host. On Linux it sets
// net.ipv4.ip_forward, adds a MASQUERADE rule for traffic leaving
// egressIface, and accepts forwarded traffic between tunIface and
// egressIface. On Darwin there is no scriptable equivalent the daemon can
// apply unattended, so it logs the manual steps instead of guessing at
// pfctl/ipfw rules that vary by OS version.
func ConfigureGateway(log *logging.Logger, tunIface, egressIface string) error {
	switch runtime.GOOS {
	case "linux":
		return configureGatewayLinux(log, tunIface, egressIface)
	case "darwin":
		log.Warn("gateway mode has no automated configuration on darwin",
			logging.Fields{
				"action_required": fmt.Sprintf(
					"enable net.inet.ip.forwarding=1 and add a NAT rule from %s to %s manually (pfctl)",
					tunIface, egressIface),
			})
		return nil
	default:
		return fmt.Errorf("gateway: unsupported platform %q", runtime.GOOS)
	}
}

func configureGatewayLinux(log *logging.Logger, tunIface, egressIface string) error {
	if out, err := exec.Command("sysctl", "-w", "net.ipv4.ip_forward=1").CombinedOutput(); err != nil {
		return fmt.Errorf("gateway: enable ip forwarding: %w (output: %s)", err, out)
	}

	if out, err := exec.Command("iptables", "-t", "nat", "-A", "POSTROUTING",
		"-o", egressIface, "-j", "MASQUERADE").CombinedOutput(); err != nil {
		return fmt.Errorf("gateway: add masquerade rule: %w (output: %s)", err, out)
	}

	if out, err := exec.Command("iptables", "-A", "FORWARD",
		"-i", tunIface, "-o", egressIface, "-j", "ACCEPT").CombinedOutput(); err != nil {
		return fmt.Errorf("gateway: accept tun->egress forwarding: %w (output: %s)", err, out)
	}
	if out, err := exec.Command("iptables", "-A", "FORWARD",
		"-i", egressIface, "-o", tunIface, "-m", "state",
		"--state", "RELATED,ESTABLISHED", "-j", "ACCEPT").CombinedOutput(); err != nil {
		return fmt.Errorf("gateway: accept egress->tun forwarding: %w (output: %s)", err, out)
	}

	log.Info("gateway mode configured", logging.Fields{
		"tun_iface": tunIface, "egress_iface": egressIface,
	})
	return nil
}

// DefaultEgressInterface picks the interface carrying the default route,
// the conventional way to name "the internet-facing interface" without
// requiring the operator to specify it.
func DefaultEgressInterface() (string, error) {
	switch runtime.GOOS {
	case "linux":
		out, err := exec.Command("sh", "-c", "ip route show default | awk '{print $5; exit}'").Output()
		if err != nil {
			return "", fmt.Errorf("gateway: determine default egress interface: %w", err)
		}
		iface := trimNewline(out)
		if iface == "" {
			return "", fmt.Errorf("gateway: no default route found")
		}
		return iface, nil
	default:
		return "", fmt.Errorf("gateway: egress interface auto-detection unsupported on %q", runtime.GOOS)
	}
}

func trimNewline(b []byte) string {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return string(b)
}
