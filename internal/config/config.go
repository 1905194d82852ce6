// Package config loads YAML configuration for both daemons, following the
// Default/Load/validate pattern the rest of the codebase uses for its own
// node configuration.
package config

import (
	"fmt"
	"net"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pqtun/pqtun/pkg/sessiontable"
)

// ServerConfig configures the relay/gateway daemon.
type ServerConfig struct {
	Listen         string `yaml:"listen"`           // UDP listen address, default ":9000"
	KeysDir        string `yaml:"keys_dir"`         // directory holding server_{private,public}.key
	OverlayCIDR    string `yaml:"overlay_cidr"`     // e.g. "10.0.0.0/24"
	TUNName        string `yaml:"tun_name"`         // empty lets the OS assign one
	TUNAddress     string `yaml:"tun_address"`      // server's own address inside OverlayCIDR
	Gateway        bool   `yaml:"gateway"`          // enable NAT/forwarding to the internet
	PSK            string `yaml:"psk"`              // pre-shared key, used as its raw bytes; length is not checked
	SessionCapacity int   `yaml:"session_capacity"` // max concurrent sessions
	LogLevel       string `yaml:"log_level"`
}

// ClientConfig configures the client daemon.
type ClientConfig struct {
	VirtualIP         string `yaml:"virtual_ip"`          // this client's overlay address
	ServerAddress     string `yaml:"server_address"`      // host:port of the relay
	ClientID          string `yaml:"client_id"`
	KeysDir           string `yaml:"keys_dir"`            // not read by the client; the pinned key path is ServerVerifyKeyPath
	ServerVerifyKeyPath string `yaml:"server_verify_key"` // path to the server's public signing key
	PSK               string `yaml:"psk"`
	TUNName           string `yaml:"tun_name"`
	OverlayPrefixLen  int    `yaml:"overlay_prefix_len"`
	FullTunnel        bool   `yaml:"full_tunnel"`
	LogLevel          string `yaml:"log_level"`
}

// DefaultListenPort is the well-known relay UDP port.
const DefaultListenPort = "9000"

// DefaultOverlayCIDR is the overlay subnet absent configuration.
const DefaultOverlayCIDR = "10.0.0.0/24"

// DefaultServerConfig returns a ServerConfig with every field at its
// specified default.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Listen:          ":" + DefaultListenPort,
		KeysDir:         "keys",
		OverlayCIDR:     DefaultOverlayCIDR,
		TUNName:         "",
		TUNAddress:      "10.0.0.1",
		Gateway:         false,
		SessionCapacity: sessiontable.DefaultCapacity,
		LogLevel:        "info",
	}
}

// DefaultClientConfig returns a ClientConfig with every field at its
// specified default.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		ServerAddress:       "127.0.0.1:" + DefaultListenPort,
		KeysDir:             "keys",
		ServerVerifyKeyPath: "keys/server_public.key",
		TUNName:             "",
		OverlayPrefixLen:    24,
		FullTunnel:          false,
		LogLevel:            "info",
	}
}

// LoadServerConfig loads a ServerConfig from a YAML file over the default,
// so an operator need only specify fields that differ from the default.
func LoadServerConfig(path string) (*ServerConfig, error) {
	cfg := DefaultServerConfig()
	if path == "" {
		return cfg, validateServer(cfg)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, validateServer(cfg)
}

// LoadClientConfig loads a ClientConfig from a YAML file over the default.
func LoadClientConfig(path string) (*ClientConfig, error) {
	cfg := DefaultClientConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, validateClient(cfg)
}

func validateServer(c *ServerConfig) error {
	if _, _, err := net.ParseCIDR(c.OverlayCIDR); err != nil {
		return fmt.Errorf("config: invalid overlay_cidr %q: %w", c.OverlayCIDR, err)
	}
	if net.ParseIP(c.TUNAddress) == nil {
		return fmt.Errorf("config: invalid tun_address %q", c.TUNAddress)
	}
	if c.SessionCapacity <= 0 {
		return fmt.Errorf("config: session_capacity must be positive, got %d", c.SessionCapacity)
	}
	return nil
}

func validateClient(c *ClientConfig) error {
	if net.ParseIP(c.VirtualIP) == nil && c.VirtualIP != "" {
		return fmt.Errorf("config: invalid virtual_ip %q", c.VirtualIP)
	}
	if c.OverlayPrefixLen <= 0 || c.OverlayPrefixLen > 32 {
		return fmt.Errorf("config: invalid overlay_prefix_len %d", c.OverlayPrefixLen)
	}
	return nil
}
