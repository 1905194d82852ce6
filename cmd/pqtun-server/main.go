// Command pqtun-server runs the relay: it terminates client handshakes,
// forwards encrypted overlay traffic between peers, and optionally NATs
// overlay traffic out to the internet in gateway mode.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pqtun/pqtun/internal/config"
	"github.com/pqtun/pqtun/internal/logging"
	"github.com/pqtun/pqtun/internal/server"
	"github.com/pqtun/pqtun/pkg/identity"
	"github.com/pqtun/pqtun/pkg/sessiontable"
	"github.com/pqtun/pqtun/pkg/tun"
)

var (
	flagGateway     bool
	flagListen      string
	flagKeysDir     string
	flagConfig      string
	flagOverlayCIDR string
	flagPSK         string
)

var rootCmd = &cobra.Command{
	Use:   "pqtun-server",
	Short: "Post-quantum VPN relay server",
	Long: `pqtun-server terminates hybrid post-quantum handshakes from overlay
clients and forwards their encrypted traffic by virtual IP.

In gateway mode it also NATs unrouted overlay traffic out to the internet
and carries return traffic back to the originating client.`,
	RunE: runServer,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.Flags().BoolVar(&flagGateway, "gateway", false, "enable NAT/forwarding to the internet")
	rootCmd.Flags().StringVar(&flagListen, "listen", "", "UDP listen address, e.g. :9000")
	rootCmd.Flags().StringVar(&flagKeysDir, "keys-dir", "", "directory holding server_{private,public}.key")
	rootCmd.Flags().StringVar(&flagConfig, "config", "", "path to a YAML config file")
	rootCmd.Flags().StringVar(&flagOverlayCIDR, "overlay-cidr", "", "overlay subnet, e.g. 10.0.0.0/24")
	rootCmd.Flags().StringVar(&flagPSK, "psk", "", "pre-shared key, used as its raw bytes")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "pqtun-server: %v\n", err)
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadServerConfig(flagConfig)
	if err != nil {
		return err
	}
	applyServerFlags(cfg)

	log := logging.New("server", logging.INFO)

	signingKeys, err := identity.LoadOrGenerate(cfg.KeysDir)
	if err != nil {
		return fmt.Errorf("load signing identity: %w", err)
	}

	prefixLen, err := cidrPrefixLen(cfg.OverlayCIDR)
	if err != nil {
		return err
	}

	tunDevice, err := tun.Open(cfg.TUNName, cfg.TUNAddress, prefixLen)
	if err != nil {
		return fmt.Errorf("open tun device: %w", err)
	}

	if cfg.Gateway {
		egress, err := defaultEgressOrFail()
		if err != nil {
			log.Warn("gateway mode requested but egress interface could not be determined", logging.Fields{"error": err.Error()})
		} else if err := configureGatewayOrWarn(log, tunDevice.Name(), egress); err != nil {
			log.Warn("gateway configuration failed", logging.Fields{"error": err.Error()})
		}
	}

	conn, err := net.ListenPacket("udp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Listen, err)
	}

	sessions := sessiontable.NewManager(cfg.SessionCapacity)
	dispatcher := server.New(conn, tunDevice, sessions, signingKeys.PrivateKey, []byte(cfg.PSK), cfg.Gateway, log)

	log.Info("server listening", logging.Fields{
		"listen": cfg.Listen, "overlay_cidr": cfg.OverlayCIDR, "gateway": cfg.Gateway,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err = dispatcher.Run(ctx)
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("dispatcher: %w", err)
	}
	log.Info("server shutting down", nil)
	return nil
}

func applyServerFlags(cfg *config.ServerConfig) {
	if flagGateway {
		cfg.Gateway = true
	}
	if flagListen != "" {
		cfg.Listen = flagListen
	}
	if flagKeysDir != "" {
		cfg.KeysDir = flagKeysDir
	}
	if flagOverlayCIDR != "" {
		cfg.OverlayCIDR = flagOverlayCIDR
	}
	if flagPSK != "" {
		cfg.PSK = flagPSK
	}
}

func cidrPrefixLen(cidr string) (int, error) {
	parts := strings.SplitN(cidr, "/", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid overlay CIDR %q", cidr)
	}
	n, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid overlay CIDR prefix %q: %w", cidr, err)
	}
	return n, nil
}

func defaultEgressOrFail() (string, error) {
	return server.DefaultEgressInterface()
}

func configureGatewayOrWarn(log *logging.Logger, tunName, egress string) error {
	return server.ConfigureGateway(log, tunName, egress)
}
