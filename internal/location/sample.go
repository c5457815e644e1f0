// ABOUTME: Location sample, accuracy tiers and sensor request options
// ABOUTME: Tiers order sensor configurations from most to least precise

package location

import (
	"fmt"
	"time"
)

// Sample is a single position fix.
type Sample struct {
	Lat            float64   `json:"lat" yaml:"lat"`
	Lng            float64   `json:"lng" yaml:"lng"`
	AccuracyMeters float64   `json:"accuracy" yaml:"accuracy"`
	Timestamp      time.Time `json:"timestamp" yaml:"timestamp"`
}

// Tier is an accuracy level. Lower values are more precise.
type Tier int

const (
	TierHigh Tier = iota
	TierMedium
	TierLow
)

// String returns the lowercase tier name.
func (t Tier) String() string {
	switch t {
	case TierHigh:
		return "high"
	case TierMedium:
		return "medium"
	case TierLow:
		return "low"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// ParseTier converts a tier name into a Tier.
func ParseTier(s string) (Tier, error) {
	switch s {
	case "high":
		return TierHigh, nil
	case "medium":
		return TierMedium, nil
	case "low":
		return TierLow, nil
	default:
		return 0, fmt.Errorf("unknown accuracy tier %q", s)
	}
}

// Options are the per-request sensor parameters.
type Options struct {
	HighAccuracy bool
	Timeout      time.Duration
	MaxSampleAge time.Duration
}

// Tiers maps each tier to its sensor options.
type Tiers [3]Options

// DefaultTiers returns the stock tier configuration.
func DefaultTiers() Tiers {
	return Tiers{
		TierHigh:   {HighAccuracy: true, Timeout: 15 * time.Second, MaxSampleAge: 10 * time.Second},
		TierMedium: {Timeout: 10 * time.Second, MaxSampleAge: 30 * time.Second},
		TierLow:    {Timeout: 10 * time.Second, MaxSampleAge: 60 * time.Second},
	}
}
