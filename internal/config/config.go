// Package config provides configuration management for meshmap.
//
// Config file locations (priority order):
//  1. $MESHMAP_CONFIG
//  2. ./meshmap.yaml
//  3. $XDG_CONFIG_HOME/meshmap/config.yaml
//  4. ~/.config/meshmap/config.yaml
//  5. /etc/meshmap/config.yaml
//
// Without a config file the defaults describe a sink listening on the
// standard ports with a 64-node registry.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"meshmap/internal/domain"
	"meshmap/internal/printer"
	"meshmap/internal/service"
)

// ErrInvalidConfig wraps every validation failure
var ErrInvalidConfig = errors.New("invalid config")

// Load finds and loads the config file, or returns defaults if none found
func Load() (*Config, string, error) {
	path := FindConfigPath()

	if path == "" {
		return DefaultConfig(), "", nil
	}

	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// Parse decodes YAML config and fills in defaults
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// DefaultConfig returns sensible defaults for a new installation
func DefaultConfig() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.Posture == "" {
		c.Posture = PostureBalanced
	}
	if c.Transport.ListenPort == 0 {
		c.Transport.ListenPort = DefaultListenPort
	}
	if c.Transport.ProbePort == 0 {
		c.Transport.ProbePort = DefaultProbePort
	}
	if c.Topology.RegistryCapacity == 0 {
		c.Topology.RegistryCapacity = DefaultRegistryCapacity
	}
	if c.Topology.MaxPrintDepth == 0 {
		c.Topology.MaxPrintDepth = printer.DefaultMaxDepth
	}
	if c.Topology.ScopePrefix == "" {
		c.Topology.ScopePrefix = fmt.Sprintf("%04x", domain.DefaultScopePrefix)
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = DefaultHTTPAddr
	}
	if c.HTTP.Enabled == nil {
		enabled := true
		c.HTTP.Enabled = &enabled
	}
	if c.Console == nil {
		enabled := true
		c.Console = &enabled
	}
}

// EffectiveSweep returns the posture's sweep profile with overrides applied
func (c *Config) EffectiveSweep() SweepProfile {
	base := c.Posture.GetProfile()

	if c.Scheduler.FastInterval != nil {
		base.FastInterval = c.Scheduler.FastInterval.Duration()
	}
	if c.Scheduler.SlowInterval != nil {
		base.SlowInterval = c.Scheduler.SlowInterval.Duration()
	}

	return base
}

// ScopePrefix parses the configured two-byte prefix
func (c *Config) ScopePrefix() (uint16, error) {
	s := strings.TrimPrefix(strings.ToLower(c.Topology.ScopePrefix), "0x")
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: scope_prefix %q: %v", ErrInvalidConfig, c.Topology.ScopePrefix, err)
	}
	return uint16(v), nil
}

// Validate checks the values the mapper cannot run with
func (c *Config) Validate() error {
	if _, err := ParsePosture(string(c.Posture)); err != nil {
		return err
	}
	if c.Topology.RegistryCapacity < 1 {
		return fmt.Errorf("%w: registry_capacity must be at least 1", ErrInvalidConfig)
	}
	if c.Topology.MaxPrintDepth < 0 {
		return fmt.Errorf("%w: max_print_depth must not be negative", ErrInvalidConfig)
	}
	if _, err := c.ScopePrefix(); err != nil {
		return err
	}

	sweep := c.EffectiveSweep()
	if sweep.FastInterval <= 0 || sweep.SlowInterval <= 0 {
		return fmt.Errorf("%w: scheduler intervals must be positive", ErrInvalidConfig)
	}
	if sweep.SlowInterval <= sweep.FastInterval {
		return fmt.Errorf("%w: slow_interval %s must exceed fast_interval %s",
			ErrInvalidConfig, sweep.SlowInterval, sweep.FastInterval)
	}

	for name, port := range map[string]int{"listen_port": c.Transport.ListenPort, "probe_port": c.Transport.ProbePort} {
		if port < 1 || port > 65535 {
			return fmt.Errorf("%w: %s %d out of range", ErrInvalidConfig, name, port)
		}
	}
	if c.Transport.ListenPort == c.Transport.ProbePort {
		return fmt.Errorf("%w: listen_port and probe_port must differ", ErrInvalidConfig)
	}

	if c.Mesh.RootAddress != "" {
		if _, err := domain.ParseAddress(c.Mesh.RootAddress); err != nil {
			return fmt.Errorf("%w: root_address: %v", ErrInvalidConfig, err)
		}
	}
	return nil
}

// MapperConfig converts the file settings into the mapper's tunables
func (c *Config) MapperConfig() (service.MapperConfig, error) {
	prefix, err := c.ScopePrefix()
	if err != nil {
		return service.MapperConfig{}, err
	}
	sweep := c.EffectiveSweep()
	return service.MapperConfig{
		RegistryCapacity: c.Topology.RegistryCapacity,
		MaxPrintDepth:    c.Topology.MaxPrintDepth,
		ScopePrefix:      prefix,
		FastInterval:     sweep.FastInterval,
		SlowInterval:     sweep.SlowInterval,
	}, nil
}

// HTTPEnabled reports whether the diagnostic API should be served
func (c *Config) HTTPEnabled() bool {
	return c.HTTP.Enabled == nil || *c.HTTP.Enabled
}

// ConsoleEnabled reports whether the tree is printed to stdout
func (c *Config) ConsoleEnabled() bool {
	return c.Console == nil || *c.Console
}

// Summary returns a human-readable config summary
func (c *Config) Summary() string {
	sweep := c.EffectiveSweep()

	summary := fmt.Sprintf("Posture: %s, fast tick: %s, slow tick: %s\n",
		c.Posture, sweep.FastInterval, sweep.SlowInterval)
	summary += fmt.Sprintf("Registry: %d nodes, print depth %d, scope prefix %s\n",
		c.Topology.RegistryCapacity, c.Topology.MaxPrintDepth, c.Topology.ScopePrefix)
	summary += fmt.Sprintf("Ports: reports %d, probes %d", c.Transport.ListenPort, c.Transport.ProbePort)

	return summary
}
