// Package config handles router configuration loading using viper.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"firestige.xyz/srouter/internal/core"
	"firestige.xyz/srouter/internal/route"
)

// Link types accepted by link.type.
const (
	LinkAFPacket = "afpacket"
	LinkPcap     = "pcap"
)

// RouterConfig represents the top-level router configuration.
// Maps to the `router:` root key in YAML.
type RouterConfig struct {
	Node       NodeConfig        `mapstructure:"node"`
	Interfaces []InterfaceConfig `mapstructure:"interfaces"`
	Routes     []route.Entry     `mapstructure:"routes"`
	RoutesFile string            `mapstructure:"routes_file"` // rtable or YAML; appended after inline routes
	ARP        ARPConfig         `mapstructure:"arp"`
	ICMP       ICMPConfig        `mapstructure:"icmp"`
	Link       LinkConfig        `mapstructure:"link"`
	Log        LogConfig         `mapstructure:"log"`
	Metrics    MetricsConfig     `mapstructure:"metrics"`
	Control    ControlConfig     `mapstructure:"control"`

	// StaticRoutes holds Routes and RoutesFile resolved by ValidateAndApplyDefaults.
	StaticRoutes []core.Route `mapstructure:"-"`
}

// ─── Node Identity ───

// NodeConfig contains node identification settings.
type NodeConfig struct {
	Hostname string `mapstructure:"hostname"` // Empty = os.Hostname()
}

// ─── Ports ───

// InterfaceConfig describes one router port.
type InterfaceConfig struct {
	Name string     `mapstructure:"name"`
	MAC  core.MAC   `mapstructure:"mac"`
	IP   netip.Addr `mapstructure:"ip"`
}

// ─── ARP ───

// ARPConfig contains ARP cache and resolution timing.
type ARPConfig struct {
	EntryTimeout    time.Duration `mapstructure:"entry_timeout"`
	RetryInterval   time.Duration `mapstructure:"retry_interval"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval"`
	MaxQueuedFrames int           `mapstructure:"max_queued_frames"` // per pending request
}

// ─── ICMP ───

// ICMPConfig controls ICMP error rate limiting. RateLimit 0 disables it.
type ICMPConfig struct {
	RateLimit float64 `mapstructure:"rate_limit"` // messages per second per destination
	Burst     int     `mapstructure:"burst"`
}

// ─── Link ───

// LinkConfig selects and tunes the frame transport.
type LinkConfig struct {
	Type         string     `mapstructure:"type"` // afpacket | pcap
	SnapLen      int        `mapstructure:"snap_len"`
	BufferSizeMB int        `mapstructure:"buffer_size_mb"`
	TimeoutMs    int        `mapstructure:"timeout_ms"`
	TraceFile    string     `mapstructure:"trace_file"`
	Pcap         PcapConfig `mapstructure:"pcap"`
}

// PcapConfig configures the offline transport.
type PcapConfig struct {
	Inputs    []PcapInput `mapstructure:"inputs"`
	OutputDir string      `mapstructure:"output_dir"`
}

// PcapInput binds a capture file to the interface it is replayed on.
type PcapInput struct {
	Interface string `mapstructure:"interface"`
	File      string `mapstructure:"file"`
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string           `mapstructure:"level"`  // debug / info / warn / error
	Format  string           `mapstructure:"format"` // json / text
	Outputs LogOutputsConfig `mapstructure:"outputs"`
}

// LogOutputsConfig contains structured log output destinations.
type LogOutputsConfig struct {
	File FileOutputConfig `mapstructure:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Path     string         `mapstructure:"path"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups"`
	Compress   bool `mapstructure:"compress"`
}

// ─── Control ───

// ControlConfig contains local process control settings.
type ControlConfig struct {
	PIDFile string `mapstructure:"pid_file"`
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `router: ...`.
type configRoot struct {
	Router RouterConfig `mapstructure:"router"`
}

// Load loads configuration from file.
// The YAML file uses `router:` as root key; env vars map through the key
// replacer (e.g., key "router.log.level" → env "ROUTER_LOG_LEVEL").
func Load(path string) (*RouterConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root, viper.DecodeHook(decodeHook())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Router

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func decodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToNetIPAddrHookFunc(),
		stringToMACHookFunc(),
	)
}

// stringToMACHookFunc decodes "aa:bb:cc:dd:ee:ff" into core.MAC.
func stringToMACHookFunc() mapstructure.DecodeHookFuncType {
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(core.MAC{}) {
			return data, nil
		}
		return core.ParseMAC(data.(string))
	}
}

// setDefaults sets default values for configuration.
// All keys use "router." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	// Control defaults
	v.SetDefault("router.control.pid_file", "/var/run/srouter.pid")

	// ARP defaults
	v.SetDefault("router.arp.entry_timeout", "15s")
	v.SetDefault("router.arp.retry_interval", "1s")
	v.SetDefault("router.arp.max_attempts", 5)
	v.SetDefault("router.arp.sweep_interval", "1s")
	v.SetDefault("router.arp.max_queued_frames", 256)

	// ICMP defaults
	v.SetDefault("router.icmp.rate_limit", 0)
	v.SetDefault("router.icmp.burst", 0)

	// Link defaults
	v.SetDefault("router.link.type", LinkAFPacket)
	v.SetDefault("router.link.snap_len", 65535)
	v.SetDefault("router.link.buffer_size_mb", 8)
	v.SetDefault("router.link.timeout_ms", 100)

	// Log defaults
	v.SetDefault("router.log.level", "info")
	v.SetDefault("router.log.format", "json")
	v.SetDefault("router.log.outputs.file.enabled", false)
	v.SetDefault("router.log.outputs.file.path", "/var/log/srouter/srouter.log")
	v.SetDefault("router.log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("router.log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("router.log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("router.log.outputs.file.rotation.compress", true)

	// Metrics defaults
	v.SetDefault("router.metrics.enabled", true)
	v.SetDefault("router.metrics.listen", ":9091")
	v.SetDefault("router.metrics.path", "/metrics")
}

// ValidateAndApplyDefaults validates configuration, resolves the static
// routes and fills runtime defaults.
func (cfg *RouterConfig) ValidateAndApplyDefaults() error {
	// ── Log validation ──
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug/info/warn/error)", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("invalid log format: %s (must be json/text)", cfg.Log.Format)
	}

	// ── Node hostname auto-detect ──
	if cfg.Node.Hostname == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("failed to get hostname: %w", err)
		}
		cfg.Node.Hostname = hostname
	}

	if err := cfg.validateInterfaces(); err != nil {
		return err
	}

	routes, err := cfg.resolveRoutes()
	if err != nil {
		return err
	}
	cfg.StaticRoutes = routes

	if err := cfg.ARP.validate(); err != nil {
		return err
	}

	if cfg.ICMP.RateLimit < 0 || cfg.ICMP.Burst < 0 {
		return fmt.Errorf("%w: icmp.rate_limit and icmp.burst must not be negative", core.ErrConfigInvalid)
	}

	if err := cfg.validateLink(); err != nil {
		return err
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		return fmt.Errorf("%w: metrics.listen is required when metrics.enabled=true", core.ErrConfigInvalid)
	}
	return nil
}

func (cfg *RouterConfig) validateInterfaces() error {
	if len(cfg.Interfaces) == 0 {
		return fmt.Errorf("%w: at least one interface is required", core.ErrConfigInvalid)
	}
	for i, ic := range cfg.Interfaces {
		if ic.Name == "" {
			return fmt.Errorf("%w: interfaces[%d]: name is required", core.ErrConfigInvalid, i)
		}
		if ic.MAC == (core.MAC{}) {
			return fmt.Errorf("%w: interface %s: mac is required", core.ErrConfigInvalid, ic.Name)
		}
		if !ic.IP.Is4() {
			return fmt.Errorf("%w: interface %s: ip must be an IPv4 address", core.ErrConfigInvalid, ic.Name)
		}
	}
	// Duplicate names and addresses are caught by the interface table itself.
	_, err := route.NewInterfaceTable(cfg.CoreInterfaces())
	return err
}

func (cfg *RouterConfig) resolveRoutes() ([]core.Route, error) {
	routes, err := route.Routes(cfg.Routes)
	if err != nil {
		return nil, err
	}
	if cfg.RoutesFile != "" {
		fromFile, err := route.LoadFile(cfg.RoutesFile)
		if err != nil {
			return nil, err
		}
		routes = append(routes, fromFile...)
	}
	if len(routes) == 0 {
		return nil, fmt.Errorf("%w: no routes configured (routes or routes_file)", core.ErrConfigInvalid)
	}

	ifaces, err := route.NewInterfaceTable(cfg.CoreInterfaces())
	if err != nil {
		return nil, err
	}
	if err := ifaces.CheckRoutes(routes); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrConfigInvalid, err)
	}
	return routes, nil
}

func (a ARPConfig) validate() error {
	var errs []error
	if a.EntryTimeout <= 0 {
		errs = append(errs, errors.New("arp.entry_timeout must be positive"))
	}
	if a.RetryInterval <= 0 {
		errs = append(errs, errors.New("arp.retry_interval must be positive"))
	}
	if a.SweepInterval <= 0 {
		errs = append(errs, errors.New("arp.sweep_interval must be positive"))
	}
	if a.SweepInterval > a.RetryInterval {
		errs = append(errs, errors.New("arp.sweep_interval must not exceed arp.retry_interval"))
	}
	if a.MaxAttempts < 1 {
		errs = append(errs, errors.New("arp.max_attempts must be at least 1"))
	}
	if a.MaxQueuedFrames < 1 {
		errs = append(errs, errors.New("arp.max_queued_frames must be at least 1"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", core.ErrConfigInvalid, errors.Join(errs...))
	}
	return nil
}

func (cfg *RouterConfig) validateLink() error {
	l := &cfg.Link
	if l.SnapLen <= 0 {
		return fmt.Errorf("%w: link.snap_len must be positive", core.ErrConfigInvalid)
	}
	switch l.Type {
	case LinkAFPacket:
		if l.BufferSizeMB <= 0 {
			return fmt.Errorf("%w: link.buffer_size_mb must be positive", core.ErrConfigInvalid)
		}
	case LinkPcap:
		names := make(map[string]bool, len(cfg.Interfaces))
		for _, ic := range cfg.Interfaces {
			names[ic.Name] = true
		}
		for _, in := range l.Pcap.Inputs {
			if !names[in.Interface] {
				return fmt.Errorf("%w: link.pcap input %s: %w", core.ErrConfigInvalid, in.Interface, core.ErrUnknownInterface)
			}
			if in.File == "" {
				return fmt.Errorf("%w: link.pcap input %s: file is required", core.ErrConfigInvalid, in.Interface)
			}
		}
	default:
		return fmt.Errorf("%w: unsupported link.type: %s (must be afpacket/pcap)", core.ErrConfigInvalid, l.Type)
	}
	return nil
}

// CoreInterfaces returns the configured ports in configuration order.
func (cfg *RouterConfig) CoreInterfaces() []core.Interface {
	out := make([]core.Interface, 0, len(cfg.Interfaces))
	for _, ic := range cfg.Interfaces {
		out = append(out, core.Interface{Name: ic.Name, MAC: ic.MAC, IP: ic.IP})
	}
	return out
}

// InterfaceNames returns the configured port names in configuration order.
func (cfg *RouterConfig) InterfaceNames() []string {
	out := make([]string, 0, len(cfg.Interfaces))
	for _, ic := range cfg.Interfaces {
		out = append(out, ic.Name)
	}
	return out
}
