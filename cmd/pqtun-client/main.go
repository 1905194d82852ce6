// Command pqtun-client connects to a pqtun relay, completes the hybrid
// post-quantum handshake, and bridges a local TUN device to the resulting
// encrypted session.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pqtun/pqtun/internal/client"
	"github.com/pqtun/pqtun/internal/config"
	"github.com/pqtun/pqtun/internal/logging"
	"github.com/pqtun/pqtun/pkg/handshake"
	"github.com/pqtun/pqtun/pkg/identity"
	"github.com/pqtun/pqtun/pkg/tun"
)

var (
	flagFullTunnel bool
	flagConfig     string
	flagKeysDir    string
	flagPSK        string
	flagClientID   string
)

var rootCmd = &cobra.Command{
	Use:   "pqtun-client <virtual_ip> [server_host:port]",
	Short: "Post-quantum VPN client",
	Long: `pqtun-client establishes a hybrid X25519/ML-KEM-768 session with a
pqtun relay and bridges a local TUN device to it.

virtual_ip is this client's address inside the relay's overlay subnet.
server_host:port defaults to the configured or built-in relay address.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runClient,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.Flags().BoolVar(&flagFullTunnel, "full-tunnel", false, "route all traffic through the tunnel, not just the overlay subnet")
	rootCmd.Flags().StringVar(&flagConfig, "config", "", "path to a YAML config file")
	rootCmd.Flags().StringVar(&flagKeysDir, "keys-dir", "", "directory holding the pinned server_public.key")
	rootCmd.Flags().StringVar(&flagPSK, "psk", "", "pre-shared key, used as its raw bytes")
	rootCmd.Flags().StringVar(&flagClientID, "client-id", "", "identifier presented to the relay in the handshake")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "pqtun-client: %v\n", err)
		os.Exit(1)
	}
}

func runClient(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadClientConfig(flagConfig)
	if err != nil {
		return err
	}
	applyClientFlags(cfg, args)

	log := logging.New("client", logging.INFO)

	serverVerifyKey, err := identity.LoadVerifyingKey(cfg.ServerVerifyKeyPath)
	if err != nil {
		return fmt.Errorf("load pinned server key: %w", err)
	}

	serverAddr, err := net.ResolveUDPAddr("udp", cfg.ServerAddress)
	if err != nil {
		return fmt.Errorf("resolve server address %q: %w", cfg.ServerAddress, err)
	}

	conn, err := net.ListenPacket("udp", "0.0.0.0:0")
	if err != nil {
		return fmt.Errorf("open local udp socket: %w", err)
	}
	defer conn.Close()

	log.Info("starting handshake", logging.Fields{"server": cfg.ServerAddress, "virtual_ip": cfg.VirtualIP})
	hs := handshake.NewClient(cfg.ClientID, cfg.VirtualIP, []byte(cfg.PSK), serverVerifyKey)
	sessionKey, err := handshake.Run(conn, serverAddr, hs)
	if err != nil {
		return fmt.Errorf("handshake failed: %w", err)
	}
	log.Info("handshake established", logging.Fields{"virtual_ip": cfg.VirtualIP})

	tunDevice, err := tun.Open(cfg.TUNName, cfg.VirtualIP, cfg.OverlayPrefixLen)
	if err != nil {
		return fmt.Errorf("open tun device: %w", err)
	}
	defer tunDevice.Close()

	overlayCIDR := fmt.Sprintf("%s/%d", networkAddress(cfg.VirtualIP, cfg.OverlayPrefixLen), cfg.OverlayPrefixLen)
	if err := client.InstallRoutes(log, tunDevice.Name(), overlayCIDR, cfg.FullTunnel, serverAddr); err != nil {
		log.Warn("route installation failed, traffic may not reach the tunnel", logging.Fields{"error": err.Error()})
	}

	dp := client.New(conn, serverAddr, tunDevice, sessionKey, log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err = dp.Run(ctx)
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("datapath: %w", err)
	}
	log.Info("client shutting down", nil)
	return nil
}

func applyClientFlags(cfg *config.ClientConfig, args []string) {
	cfg.VirtualIP = args[0]
	if len(args) > 1 {
		cfg.ServerAddress = args[1]
	}
	if flagFullTunnel {
		cfg.FullTunnel = true
	}
	if flagKeysDir != "" {
		cfg.ServerVerifyKeyPath = flagKeysDir + "/server_public.key"
	}
	if flagPSK != "" {
		cfg.PSK = flagPSK
	}
	if flagClientID != "" {
		cfg.ClientID = flagClientID
	}
}

// networkAddress zeroes the host bits of ip under prefixLen, for deriving
// the overlay network's CIDR from a single client's address.
func networkAddress(ip string, prefixLen int) string {
	parsed := net.ParseIP(ip).To4()
	if parsed == nil {
		return ip
	}
	mask := net.CIDRMask(prefixLen, 32)
	return parsed.Mask(mask).String()
}
