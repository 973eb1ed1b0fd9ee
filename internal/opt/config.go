package opt

import (
	"fmt"
	"time"
)

const (
	StrategyBinary     = "binary"
	StrategyPartition  = "partition"
	StrategyScan       = "scan"
	StrategyDinkelbach = "dinkelbach"
)

// Config holds the search and oracle parameters of one solve.
type Config struct {
	Strategy string  `yaml:"strategy" json:"strategy"`
	Variant  Variant `yaml:"variant" json:"variant"`

	TimeLimit    time.Duration `yaml:"timeLimit" json:"timeLimit"`
	SafetyMargin time.Duration `yaml:"safetyMargin" json:"safetyMargin"`
	MinCallTime  time.Duration `yaml:"minCallTime" json:"minCallTime"`
	MaxCallTime  time.Duration `yaml:"maxCallTime" json:"maxCallTime"`

	Gap       float64 `yaml:"gap" json:"gap"`
	Tolerance float64 `yaml:"tolerance" json:"tolerance"`
	Threads   int     `yaml:"threads" json:"threads"`

	PruneAisles    bool `yaml:"pruneAisles" json:"pruneAisles"`
	SkewFirstSplit bool `yaml:"skewFirstSplit" json:"skewFirstSplit"`

	DinkelbachEpsilon    float64 `yaml:"dinkelbachEpsilon" json:"dinkelbachEpsilon"`
	DinkelbachIterations int     `yaml:"dinkelbachIterations" json:"dinkelbachIterations"`
}

func DefaultConfig() Config {
	return Config{
		Strategy: StrategyPartition,
		Variant:  VariantPooled,

		TimeLimit:    600 * time.Second,
		SafetyMargin: 20 * time.Second,
		MinCallTime:  20 * time.Second,
		MaxCallTime:  100 * time.Second,

		Gap:       0.02,
		Tolerance: 0.001,
		Threads:   0,

		PruneAisles:    true,
		SkewFirstSplit: true,

		DinkelbachEpsilon:    1e-6,
		DinkelbachIterations: 50,
	}
}

func (c Config) Validate() error {
	switch c.Strategy {
	case StrategyBinary, StrategyPartition, StrategyScan, StrategyDinkelbach:
	default:
		return fmt.Errorf("unknown strategy %q", c.Strategy)
	}
	switch c.Variant {
	case VariantPooled, VariantCapacity:
	default:
		return fmt.Errorf("unknown variant %q", c.Variant)
	}
	if c.TimeLimit <= 0 {
		return fmt.Errorf("timeLimit must be > 0 (got %s)", c.TimeLimit)
	}
	if c.SafetyMargin <= 0 {
		return fmt.Errorf("safetyMargin must be > 0 (got %s)", c.SafetyMargin)
	}
	if c.MinCallTime < 0 || c.MaxCallTime < 0 {
		return fmt.Errorf("minCallTime and maxCallTime must be >= 0")
	}
	if c.Gap < 0 || c.Gap >= 1 {
		return fmt.Errorf("gap must be in [0,1) (got %g)", c.Gap)
	}
	if c.Tolerance <= 0 || c.Tolerance >= 0.5 {
		return fmt.Errorf("tolerance must be in (0,0.5) (got %g)", c.Tolerance)
	}
	if c.Strategy == StrategyDinkelbach && c.DinkelbachIterations <= 0 {
		return fmt.Errorf("dinkelbachIterations must be > 0")
	}
	return nil
}
