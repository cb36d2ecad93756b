package config

import (
	"time"
)

const (
	DefaultListenPort       = 5688
	DefaultProbePort        = 5689
	DefaultRegistryCapacity = 64
	DefaultHTTPAddr         = ":3000"
)

// Config is the root configuration structure
type Config struct {
	Version   int             `yaml:"version"`
	Posture   Posture         `yaml:"posture"`
	Mesh      MeshConfig      `yaml:"mesh"`
	Transport TransportConfig `yaml:"transport"`
	Topology  TopologyConfig  `yaml:"topology"`
	Scheduler SchedulerConfig `yaml:"scheduler,omitempty"`
	HTTP      HTTPConfig      `yaml:"http"`
	Journal   JournalConfig   `yaml:"journal"`
	Console   *bool           `yaml:"console,omitempty"` // nil = print the tree
}

// MeshConfig locates the routing layer's state and the sink's identity
type MeshConfig struct {
	StateFile   string `yaml:"state_file,omitempty"`
	RootAddress string `yaml:"root_address,omitempty"` // wins over Interface
	Interface   string `yaml:"interface,omitempty"`
}

// TransportConfig holds the UDP ports
type TransportConfig struct {
	ListenPort int `yaml:"listen_port"`
	ProbePort  int `yaml:"probe_port"`
}

// TopologyConfig sizes the registry and printer
type TopologyConfig struct {
	RegistryCapacity int    `yaml:"registry_capacity"`
	MaxPrintDepth    int    `yaml:"max_print_depth"`
	ScopePrefix      string `yaml:"scope_prefix"` // hex, e.g. "aaaa"
}

// SchedulerConfig allows overriding posture defaults
type SchedulerConfig struct {
	FastInterval *Duration `yaml:"fast_interval,omitempty"`
	SlowInterval *Duration `yaml:"slow_interval,omitempty"`
}

// HTTPConfig holds diagnostic API settings
type HTTPConfig struct {
	Addr    string `yaml:"addr"`
	Enabled *bool  `yaml:"enabled,omitempty"`
}

// JournalConfig holds event journal settings. An empty path disables it.
type JournalConfig struct {
	Path string `yaml:"path,omitempty"`
}

// Duration wraps time.Duration for YAML unmarshaling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
