package quality

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TierConfig holds the acceptance threshold and the assumed confidence for
// values that arrive without one.
type TierConfig struct {
	MinConfidence     float64 `yaml:"min_confidence"`
	AssumedConfidence float64 `yaml:"assumed_confidence"`
}

// Thresholds is the tunable part of the scorer. The defaults are heuristic
// constants without a derivation; treat them as configuration, not contract.
type Thresholds struct {
	Critical  TierConfig `yaml:"critical"`
	Important TierConfig `yaml:"important"`
	Optional  TierConfig `yaml:"optional"`

	Weights struct {
		Critical  float64 `yaml:"critical"`
		Important float64 `yaml:"important"`
		Optional  float64 `yaml:"optional"`
	} `yaml:"weights"`
}

// DefaultThresholds returns the stock configuration.
func DefaultThresholds() Thresholds {
	var t Thresholds
	t.Critical = TierConfig{MinConfidence: 0.7, AssumedConfidence: 0.8}
	t.Important = TierConfig{MinConfidence: 0.6, AssumedConfidence: 0.7}
	t.Optional = TierConfig{MinConfidence: 0.5, AssumedConfidence: 0.6}
	t.Weights.Critical = 0.5
	t.Weights.Important = 0.3
	t.Weights.Optional = 0.2
	return t
}

func (t Thresholds) withDefaults() Thresholds {
	d := DefaultThresholds()
	if t.Critical == (TierConfig{}) {
		t.Critical = d.Critical
	}
	if t.Important == (TierConfig{}) {
		t.Important = d.Important
	}
	if t.Optional == (TierConfig{}) {
		t.Optional = d.Optional
	}
	if t.Weights.Critical == 0 && t.Weights.Important == 0 && t.Weights.Optional == 0 {
		t.Weights = d.Weights
	}
	return t
}

// LoadThresholds reads a YAML thresholds file. Omitted sections fall back to
// the defaults.
func LoadThresholds(path string) (Thresholds, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Thresholds{}, fmt.Errorf("read quality config: %w", err)
	}
	var t Thresholds
	if err := yaml.Unmarshal(b, &t); err != nil {
		return Thresholds{}, fmt.Errorf("parse quality config: %w", err)
	}
	return t.withDefaults(), nil
}
