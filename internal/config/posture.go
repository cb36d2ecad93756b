package config

import (
	"fmt"
	"time"
)

// Posture defines how hard the sink sweeps the mesh
type Posture string

const (
	PostureStealth    Posture = "stealth"    // Rare probes, minimal radio use
	PostureCautious   Posture = "cautious"   // Conservative on duty-cycled links
	PostureBalanced   Posture = "balanced"   // Default
	PostureAggressive Posture = "aggressive" // Fast convergence on small meshes
)

// ParsePosture converts a string to Posture. The empty string is balanced.
func ParsePosture(s string) (Posture, error) {
	if s == "" {
		return PostureBalanced, nil
	}
	p := Posture(s)
	if _, ok := PostureProfiles[p]; !ok {
		return "", fmt.Errorf("%w: unknown posture %q", ErrInvalidConfig, s)
	}
	return p, nil
}

// SweepProfile defines the scheduler timing
type SweepProfile struct {
	FastInterval time.Duration `yaml:"fast_interval"`
	SlowInterval time.Duration `yaml:"slow_interval"` // one probe per slow tick
}

// PostureProfiles maps postures to their default sweep profiles
var PostureProfiles = map[Posture]SweepProfile{
	PostureStealth: {
		FastInterval: 5 * time.Second,
		SlowInterval: 60 * time.Second,
	},
	PostureCautious: {
		FastInterval: 2 * time.Second,
		SlowInterval: 30 * time.Second,
	},
	PostureBalanced: {
		FastInterval: 1 * time.Second,
		SlowInterval: 10 * time.Second,
	},
	PostureAggressive: {
		FastInterval: 500 * time.Millisecond,
		SlowInterval: 2 * time.Second,
	},
}

// GetProfile returns the sweep profile for a posture
func (p Posture) GetProfile() SweepProfile {
	if profile, ok := PostureProfiles[p]; ok {
		return profile
	}
	return PostureProfiles[PostureBalanced]
}
