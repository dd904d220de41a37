package catalog

import (
	"errors"
	"fmt"
)

// Tier is one bracket of a fixed-tier formula.
type Tier struct {
	MinLevel int     `yaml:"min_level"`
	Value    float64 `yaml:"value"`
}

// Formula maps a level to a magnitude. When Tiers is empty the formula is
// linear: Base + level*Slope. Otherwise the magnitude is the Value of the
// highest tier whose MinLevel does not exceed the level.
type Formula struct {
	Base  float64 `yaml:"base"`
	Slope float64 `yaml:"slope"`
	Tiers []Tier  `yaml:"tiers"`
}

// Validate checks that tiers are ascending and start at MinLevel.
func (f Formula) Validate() error {
	if len(f.Tiers) == 0 {
		return nil
	}
	if f.Base != 0 || f.Slope != 0 {
		return errors.New("tiered formulas must not declare base or slope")
	}
	if f.Tiers[0].MinLevel != MinLevel {
		return fmt.Errorf("first tier must start at level %d, got %d", MinLevel, f.Tiers[0].MinLevel)
	}
	for i := 1; i < len(f.Tiers); i++ {
		if f.Tiers[i].MinLevel <= f.Tiers[i-1].MinLevel {
			return fmt.Errorf("tier %d min_level %d must exceed previous %d", i, f.Tiers[i].MinLevel, f.Tiers[i-1].MinLevel)
		}
	}
	return nil
}

// At evaluates the formula at level, clamped to [MinLevel, MaxLevel].
//
// Postcondition: deterministic; identical inputs yield identical outputs.
func (f Formula) At(level int) float64 {
	level = ClampLevel(level)
	if len(f.Tiers) == 0 {
		return f.Base + float64(level)*f.Slope
	}
	v := f.Tiers[0].Value
	for _, t := range f.Tiers {
		if t.MinLevel > level {
			break
		}
		v = t.Value
	}
	return v
}
