package config

import (
	"net"
	"path/filepath"
	"strconv"
)

// MaxTimeLimit is the longest allowed duration in hours. Longer selections use 0.
const MaxTimeLimit = 366 * 24

type Config struct {
	// General holds general configuration.
	General GeneralConfig `toml:"general" json:"general"`
	// Web is the HTTP listener serving the selection page and the JSON API.
	Web WebConfig `toml:"web" json:"web"`
	// SSH is the keypress menu served over SSH.
	SSH SSHConfig `toml:"ssh" json:"ssh"`
	// Metrics exposes Prometheus metrics on the web listener.
	Metrics MetricsConfig `toml:"metrics" json:"metrics"`
	// Nftables locates the mark map inside the kernel. The table, chains and map must already exist.
	Nftables NftablesConfig `toml:"nftables" json:"nftables"`
	// Labels are the display strings shared by all front-ends.
	Labels LabelsConfig `toml:"labels" json:"labels"`
	// TimeLimits are the allowed durations in hours, at most MaxTimeLimit. 0 means the entry never expires.
	TimeLimits []int `toml:"time_limits" json:"time_limits"`
	// OutletGroups are the outlet groups, in display order. Each group owns the bits of its mask.
	OutletGroups []*OutletGroupConfig `toml:"outlet_groups" json:"outlet_groups"`

	_absConfigFilePath string
}

type GeneralConfig struct {
	// Verbose enables debug logging.
	Verbose bool `toml:"verbose" json:"verbose"`
}

type WebConfig struct {
	// Enable enables the web page and JSON API (default: true).
	Enable bool `toml:"enable" json:"enable"`
	// Host is the listen address (default: 0.0.0.0).
	Host string `toml:"host" json:"host" validate:"omitempty,hostname_rfc1123|ip"`
	// Port is the listen port (default: 80).
	Port uint16 `toml:"port" json:"port" validate:"required_if=Enable true"`
	// TrustProxyHeaders takes the caller address from X-Forwarded-For / X-Real-IP. Only enable behind a reverse proxy.
	TrustProxyHeaders bool `toml:"trust_proxy_headers" json:"trust_proxy_headers"`
	// CORSOrigins may call the JSON API from other sites, e.g. "https://portal.lan". "*" allows any origin.
	// Empty keeps the API same-origin.
	CORSOrigins []string `toml:"cors_origins" json:"cors_origins" validate:"dive,url|eq=*"`
}

type SSHConfig struct {
	// Enable enables the SSH menu (default: true).
	Enable bool `toml:"enable" json:"enable"`
	// Host is the listen address (default: all addresses).
	Host string `toml:"host" json:"host" validate:"omitempty,hostname_rfc1123|ip"`
	// Port is the listen port (default: 2222).
	Port uint16 `toml:"port" json:"port" validate:"required_if=Enable true"`
	// HostKeyPath is the server host key. Generated on first start when missing.
	HostKeyPath string `toml:"host_key_path" json:"host_key_path" validate:"required_if=Enable true"`
}

type MetricsConfig struct {
	// Enable serves Prometheus metrics on the web listener (default: true).
	Enable bool `toml:"enable" json:"enable"`
	// Path is the metrics endpoint path (default: /metrics).
	Path string `toml:"path" json:"path" validate:"startswith=/"`
}

type NftablesConfig struct {
	// Backend selects how the map is accessed: netlink (default), nft (exec the nft binary) or memory (no kernel access).
	Backend string `toml:"backend" json:"backend" validate:"oneof=netlink nft memory"`
	// Family is the table family (default: inet).
	Family string `toml:"family" json:"family" validate:"oneof=ip ip6 inet"`
	// Table is the table name (default: wlt).
	Table string `toml:"table" json:"table" validate:"required,nft_identifier"`
	// Map is the source address to mark map (default: src2mark).
	Map string `toml:"map" json:"map" validate:"required,nft_identifier"`
	// Map6 is an optional separate map for IPv6 sources. When empty, IPv6 sources
	// are rejected as malformed keys unless Family is ip6 and Map holds them.
	Map6 string `toml:"map6" json:"map6,omitempty" validate:"omitempty,nft_identifier"`
	// NftPath is the nft binary used by the nft backend (default: nft).
	NftPath string `toml:"nft_path" json:"nft_path" validate:"required"`
}

type LabelsConfig struct {
	// Duration renders a non-permanent duration. {hours} is replaced by the number of hours.
	Duration string `toml:"duration" json:"duration" validate:"required,contains={hours}"`
	// Permanent is shown for entries that never expire.
	Permanent string `toml:"permanent" json:"permanent" validate:"required"`
	// Remaining renders the time left on a timed entry. {seconds} is replaced by the number of seconds.
	Remaining string `toml:"remaining" json:"remaining" validate:"required,contains={seconds}"`
	// Default is shown when an address has no entry.
	Default string `toml:"default" json:"default" validate:"required"`
}

type OutletGroupConfig struct {
	// Title is the group label.
	Title string `toml:"title" json:"title" validate:"required"`
	// Mask is the set of mark bits owned by this group.
	Mask uint32 `toml:"mask" json:"mask" validate:"required"`
	// Outlets are the choices of this group, in display order.
	Outlets []*OutletConfig `toml:"outlets" json:"outlets" validate:"required,min=1,dive,required"`
}

type OutletConfig struct {
	// Name is the outlet label.
	Name string `toml:"name" json:"name" validate:"required"`
	// Value is the mark value of this outlet. It must fit inside the group mask.
	Value uint32 `toml:"value" json:"value"`
}

// DefaultConfig returns a configuration with every optional key filled in.
// The file is decoded on top of it.
func DefaultConfig() *Config {
	return &Config{
		Web: WebConfig{
			Enable: true,
			Host:   "0.0.0.0",
			Port:   80,
		},
		SSH: SSHConfig{
			Enable:      true,
			Port:        2222,
			HostKeyPath: "ssh_host_key",
		},
		Metrics: MetricsConfig{
			Enable: true,
			Path:   "/metrics",
		},
		Nftables: NftablesConfig{
			Backend: "netlink",
			Family:  "inet",
			Table:   "wlt",
			Map:     "src2mark",
			NftPath: "nft",
		},
		Labels: LabelsConfig{
			Duration:  "{hours}小时",
			Permanent: "永久",
			Remaining: "{seconds}秒",
			Default:   "默认",
		},
	}
}

// ListenAddr returns the host:port the web server binds to.
func (w WebConfig) ListenAddr() string {
	return net.JoinHostPort(w.Host, strconv.Itoa(int(w.Port)))
}

// ListenAddr returns the host:port the SSH server binds to.
func (s SSHConfig) ListenAddr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(int(s.Port)))
}

func (c *Config) GetConfigDir() string {
	return filepath.Dir(c._absConfigFilePath)
}

// GetAbsHostKeyPath resolves the SSH host key path relative to the config file.
func (c *Config) GetAbsHostKeyPath() string {
	if filepath.IsAbs(c.SSH.HostKeyPath) || c._absConfigFilePath == "" {
		return c.SSH.HostKeyPath
	}
	return filepath.Join(c.GetConfigDir(), c.SSH.HostKeyPath)
}
