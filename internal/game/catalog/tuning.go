package catalog

import "fmt"

// Rarity is the modifier tag carried by every loadout item.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityUncommon  Rarity = "uncommon"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// Multiplier returns the scaling factor for r. The empty rarity is common.
//
// Postcondition: Returns >= 1.0.
func (r Rarity) Multiplier() float64 {
	switch r {
	case RarityCommon, "":
		return 1.0
	case RarityUncommon:
		return 1.05
	case RarityRare:
		return 1.10
	case RarityEpic:
		return 1.20
	case RarityLegendary:
		return 1.30
	default:
		return 1.0
	}
}

// Valid reports whether r is a declared rarity or empty.
func (r Rarity) Valid() bool {
	switch r {
	case "", RarityCommon, RarityUncommon, RarityRare, RarityEpic, RarityLegendary:
		return true
	default:
		return false
	}
}

// DefaultNightmareMultiplier is used when Tuning.NightmareMultiplier is unset.
const DefaultNightmareMultiplier = 2.5

// Tuning is a versioned snapshot of the operational multipliers. A Tuning
// value is immutable once published; callers pass it into every scaling call.
type Tuning struct {
	Version             uint64
	Global              float64
	PerAbility          map[string]float64
	NightmareMultiplier float64
}

// DefaultTuning returns the neutral snapshot: every multiplier is 1.0.
func DefaultTuning() Tuning {
	return Tuning{Global: 1.0, NightmareMultiplier: DefaultNightmareMultiplier}
}

// For returns the combined multiplier for ability id. A zero Global is the
// unset zero value and counts as 1.0; Validate never lets one be published.
func (t Tuning) For(id string) float64 {
	g := t.Global
	if g == 0 {
		g = 1.0
	}
	if m, ok := t.PerAbility[id]; ok {
		return g * m
	}
	return g
}

// Nightmare returns the nightmare difficulty multiplier.
func (t Tuning) Nightmare() float64 {
	if t.NightmareMultiplier <= 0 {
		return DefaultNightmareMultiplier
	}
	return t.NightmareMultiplier
}

// Validate checks that the global multiplier is positive, per-ability
// multipliers are non-negative, and the nightmare multiplier lies within
// [2.5, 3.0] when set.
func (t Tuning) Validate() error {
	if t.Global <= 0 {
		return fmt.Errorf("tuning: global multiplier must be > 0, got %v", t.Global)
	}
	for id, m := range t.PerAbility {
		if m < 0 {
			return fmt.Errorf("tuning: multiplier for %q must not be negative, got %v", id, m)
		}
	}
	if t.NightmareMultiplier != 0 && (t.NightmareMultiplier < 2.5 || t.NightmareMultiplier > 3.0) {
		return fmt.Errorf("tuning: nightmare multiplier must be within [2.5, 3.0], got %v", t.NightmareMultiplier)
	}
	return nil
}
