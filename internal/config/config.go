// Package config is pktgen's YAML-backed configuration, one field per CLI
// flag in §6 of the operator surface. Validate enforces every startup
// constraint; a failure here is always a class-1 fatal error.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jihwankim/pktgen/internal/packet"
)

// DistKind selects the flow-index distribution.
type DistKind string

const (
	DistUniform DistKind = "uniform"
	DistZipf    DistKind = "zipf"
)

const (
	MinPktSize = packet.MinPktSize
	MaxPktSize = packet.MaxPktSize

	// NBDevicesMin is the minimum number of NIC ports a host must expose for
	// tx_port and rx_port to be distinct, addressable ports.
	NBDevicesMin = 2
)

// Config is the full startup configuration, loaded from flags and
// optionally from a YAML file for repeatable runs.
type Config struct {
	Logging LoggingConfig `yaml:"logging"`

	TestMode bool `yaml:"test_mode"`

	TotalFlows  uint32 `yaml:"total_flows"`
	PktSize     int    `yaml:"pkt_size"`
	TXPort      int    `yaml:"tx_port"`
	RXPort      int    `yaml:"rx_port"`
	TXCores     int    `yaml:"tx_cores"`
	NBDevices   int    `yaml:"nb_devices"`
	NBCores     int    `yaml:"nb_cores"`
	UniqueFlows bool   `yaml:"unique_flows"`

	Seed uint64 `yaml:"seed"`

	MarkWarmupPackets bool          `yaml:"mark_warmup_packets"`
	WarmupDuration    time.Duration `yaml:"warmup_duration"`

	DumpFlowsToFile bool   `yaml:"dump_flows_to_file"`
	PcapPath        string `yaml:"pcap_path"`

	KVSMode      bool     `yaml:"kvs_mode"`
	KVSGetRatio  float64  `yaml:"kvs_get_ratio"`
	Dist         DistKind `yaml:"dist"`
	ZipfParam    float64  `yaml:"zipf_param"`

	MetricsAddr string `yaml:"metrics_addr"`
}

// LoggingConfig mirrors internal/logging.Config in YAML-serializable form.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the out-of-the-box configuration.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		TotalFlows:  1024,
		PktSize:     64,
		TXPort:      0,
		RXPort:      1,
		TXCores:     1,
		NBDevices:   2,
		NBCores:     2,
		UniqueFlows: false,
		Seed:        0, // 0 means "derive from wall-clock time at startup"
		Dist:        DistUniform,
		ZipfParam:   1.26,
		KVSGetRatio: 0.5,
		MetricsAddr: ":9090",
		PcapPath:    "flows.pcap",
	}
}

// Load reads a YAML config file on top of DefaultConfig, so partial files
// only override what they mention.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	expanded := []byte(os.ExpandEnv(string(data)))
	if err := yaml.Unmarshal(expanded, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path as YAML.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate enforces every constraint in spec.md §6. A non-nil error here is
// always a class-1 startup failure: fatal, single-line.
func (c *Config) Validate() error {
	if c.TotalFlows < 2 {
		return fmt.Errorf("total-flows must be >= 2, got %d", c.TotalFlows)
	}
	if int(c.TotalFlows) < c.TXCores {
		return fmt.Errorf("total-flows (%d) must be >= tx-cores (%d)", c.TotalFlows, c.TXCores)
	}
	if c.PktSize < MinPktSize || c.PktSize > MaxPktSize {
		return fmt.Errorf("pkt-size must be in [%d, %d], got %d", MinPktSize, MaxPktSize, c.PktSize)
	}
	if c.NBDevices < NBDevicesMin {
		return fmt.Errorf("nb-devices must be >= %d, got %d", NBDevicesMin, c.NBDevices)
	}
	if c.TXPort >= c.NBDevices || c.RXPort >= c.NBDevices {
		return fmt.Errorf("tx-port/rx-port must be < nb-devices (%d)", c.NBDevices)
	}
	if c.TXPort == c.RXPort {
		return fmt.Errorf("tx-port and rx-port must differ")
	}
	if c.TXCores+1 > c.NBCores {
		return fmt.Errorf("tx-cores+1 (%d) must be <= nb-cores (%d)", c.TXCores+1, c.NBCores)
	}
	if c.KVSGetRatio < 0 || c.KVSGetRatio > 1 {
		return fmt.Errorf("kvs-get-ratio must be in [0, 1], got %f", c.KVSGetRatio)
	}
	if c.Dist != DistUniform && c.Dist != DistZipf {
		return fmt.Errorf("dist must be %q or %q, got %q", DistUniform, DistZipf, c.Dist)
	}
	if c.ZipfParam < 0 {
		return fmt.Errorf("zipf-param must be >= 0, got %f", c.ZipfParam)
	}
	return nil
}

// ResolveKVSPktSize forces pkt_size to the minimum KVS-capable frame when
// kvs_mode is set and the configured size doesn't already fit, returning
// whether an override happened (the caller logs a WARN, this is a class-2
// soft error, not fatal).
func (c *Config) ResolveKVSPktSize() (overridden bool) {
	if !c.KVSMode {
		return false
	}
	min := packet.MinSizeForKVS()
	if c.PktSize < min {
		c.PktSize = min
		return true
	}
	return false
}
