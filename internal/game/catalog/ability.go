// Package catalog provides the read-only item, ability, and monster definitions
// consumed by the encounter engine, together with their level-scaling formulas.
package catalog

import (
	"errors"
	"fmt"

	"github.com/cory-johannsen/skirmish/internal/game/status"
)

// MinLevel and MaxLevel bound every level the catalog scales against.
const (
	MinLevel = 1
	MaxLevel = 100
)

// ClampLevel returns level clamped to [MinLevel, MaxLevel].
func ClampLevel(level int) int {
	switch {
	case level < MinLevel:
		return MinLevel
	case level > MaxLevel:
		return MaxLevel
	default:
		return level
	}
}

// Slot identifies where an ability sits in a loadout.
type Slot string

const (
	// SlotWeapon is the single primary ability.
	SlotWeapon Slot = "weapon"
	// SlotGadget is a secondary ability with its own cooldown.
	SlotGadget Slot = "gadget"
	// SlotPassive is a modifier-only ability with no action cost.
	SlotPassive Slot = "passive"
)

// Valid reports whether s is one of the declared slots.
func (s Slot) Valid() bool {
	switch s {
	case SlotWeapon, SlotGadget, SlotPassive:
		return true
	default:
		return false
	}
}

// Category is the damage-shape classification of an ability. It selects the
// multiplier applied against swarm unit groups.
type Category string

const (
	CategorySingleTarget Category = "single_target"
	CategoryArea         Category = "area"
	CategoryMultiHit     Category = "multi_hit"
	CategoryAura         Category = "aura"
)

// AllCategories lists every declared Category.
var AllCategories = []Category{CategorySingleTarget, CategoryArea, CategoryMultiHit, CategoryAura}

// Aura swarm multipliers are configurable per ability inside this range.
const (
	DefaultAuraSwarmMultiplier = 2.0
	MinAuraSwarmMultiplier     = 2.0
	MaxAuraSwarmMultiplier     = 3.0
)

// Valid reports whether c is one of the declared categories.
func (c Category) Valid() bool {
	switch c {
	case CategorySingleTarget, CategoryArea, CategoryMultiHit, CategoryAura:
		return true
	default:
		return false
	}
}

// EffectKind is what an active ability does to its target.
type EffectKind string

const (
	EffectDamage EffectKind = "damage"
	EffectHeal   EffectKind = "heal"
	EffectShield EffectKind = "shield"
)

// Valid reports whether k is one of the declared effect kinds.
func (k EffectKind) Valid() bool {
	switch k {
	case EffectDamage, EffectHeal, EffectShield:
		return true
	default:
		return false
	}
}

// ModifierKind identifies how a passive modifies its wielder.
type ModifierKind string

const (
	ModDamageFlat    ModifierKind = "damage_flat"
	ModDamagePercent ModifierKind = "damage_percent"
	ModHealPercent   ModifierKind = "heal_percent"
	ModHPFlat        ModifierKind = "hp_flat"
	ModHPPercent     ModifierKind = "hp_percent"
)

// Valid reports whether k is one of the declared modifier kinds.
func (k ModifierKind) Valid() bool {
	switch k {
	case ModDamageFlat, ModDamagePercent, ModHealPercent, ModHPFlat, ModHPPercent:
		return true
	default:
		return false
	}
}

// Modifier is one passive effect. AppliesTo restricts damage and heal
// modifiers to abilities in the listed slots; empty means every active slot.
type Modifier struct {
	Kind      ModifierKind `yaml:"kind"`
	AppliesTo []Slot       `yaml:"applies_to"`
	Value     Formula      `yaml:"value"`
}

// Applies reports whether m affects abilities in slot.
func (m Modifier) Applies(slot Slot) bool {
	if len(m.AppliesTo) == 0 {
		return slot != SlotPassive
	}
	for _, s := range m.AppliesTo {
		if s == slot {
			return true
		}
	}
	return false
}

// StatusSpec describes a timed status an ability applies on hit.
type StatusSpec struct {
	Kind            status.Kind `yaml:"kind"`
	DurationSeconds float64     `yaml:"duration_seconds"`
	Magnitude       Formula     `yaml:"magnitude"`
}

// AbilityDef is the static definition of a weapon, gadget, or passive.
type AbilityDef struct {
	ID              string      `yaml:"id"`
	Name            string      `yaml:"name"`
	Slot            Slot        `yaml:"slot"`
	Category        Category    `yaml:"category"`
	Effect          EffectKind  `yaml:"effect"`
	Formula         Formula     `yaml:"formula"`
	CooldownSeconds float64     `yaml:"cooldown_seconds"`
	SwarmMultiplier float64     `yaml:"swarm_multiplier"` // aura only; 0 = default
	Status          *StatusSpec `yaml:"status"`
	Modifiers       []Modifier  `yaml:"modifiers"`
}

// Validate checks that the AbilityDef satisfies its invariants.
//
// Precondition: a is non-nil.
// Postcondition: returns nil iff all fields are valid.
func (a *AbilityDef) Validate() error {
	var errs []error
	if a.ID == "" {
		errs = append(errs, errors.New("id must not be empty"))
	}
	if a.Name == "" {
		errs = append(errs, errors.New("name must not be empty"))
	}
	if !a.Slot.Valid() {
		errs = append(errs, fmt.Errorf("slot %q is not one of [weapon, gadget, passive]", a.Slot))
	}
	if !a.Category.Valid() {
		errs = append(errs, fmt.Errorf("category %q is not one of [single_target, area, multi_hit, aura]", a.Category))
	}
	if a.Slot != SlotPassive && !a.Effect.Valid() {
		errs = append(errs, fmt.Errorf("effect %q is not one of [damage, heal, shield]", a.Effect))
	}
	if err := a.Formula.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("formula: %w", err))
	}
	if a.CooldownSeconds < 0 {
		errs = append(errs, errors.New("cooldown_seconds must not be negative"))
	}
	if a.SwarmMultiplier != 0 {
		if a.Category != CategoryAura {
			errs = append(errs, errors.New("swarm_multiplier is only allowed on aura abilities"))
		} else if a.SwarmMultiplier < MinAuraSwarmMultiplier || a.SwarmMultiplier > MaxAuraSwarmMultiplier {
			errs = append(errs, fmt.Errorf("swarm_multiplier must be within [%.1f, %.1f], got %.2f",
				MinAuraSwarmMultiplier, MaxAuraSwarmMultiplier, a.SwarmMultiplier))
		}
	}
	if a.Status != nil {
		if !a.Status.Kind.Valid() {
			errs = append(errs, fmt.Errorf("status.kind %q is invalid", a.Status.Kind))
		}
		if a.Status.DurationSeconds <= 0 {
			errs = append(errs, errors.New("status.duration_seconds must be > 0"))
		}
		if err := a.Status.Magnitude.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("status.magnitude: %w", err))
		}
	}
	if a.Effect == EffectShield && (a.Status == nil || a.Status.Kind != status.Shield) {
		errs = append(errs, errors.New("shield abilities must declare a shield status for their duration"))
	}
	for i, m := range a.Modifiers {
		if !m.Kind.Valid() {
			errs = append(errs, fmt.Errorf("modifiers[%d].kind %q is invalid", i, m.Kind))
		}
		for _, s := range m.AppliesTo {
			if !s.Valid() {
				errs = append(errs, fmt.Errorf("modifiers[%d].applies_to %q is invalid", i, s))
			}
		}
		if err := m.Value.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("modifiers[%d].value: %w", i, err))
		}
	}
	if a.Slot == SlotPassive && len(a.Modifiers) == 0 {
		errs = append(errs, errors.New("passive abilities must declare at least one modifier"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("ability %q validation failed: %w", a.ID, errors.Join(errs...))
	}
	return nil
}

// SwarmMultiplierFor returns the multiplier applied when an ability of this
// definition hits a swarm unit group.
//
// Postcondition: Returns a value >= 1.0 for every declared Category.
func (a *AbilityDef) SwarmMultiplierFor() float64 {
	switch a.Category {
	case CategoryArea:
		return 4.0
	case CategoryMultiHit:
		return 2.5
	case CategoryAura:
		if a.SwarmMultiplier != 0 {
			return a.SwarmMultiplier
		}
		return DefaultAuraSwarmMultiplier
	case CategorySingleTarget:
		return 1.0
	default:
		return 1.0
	}
}
