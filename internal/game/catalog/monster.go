package catalog

import (
	"errors"
	"fmt"
)

// BehaviorKind selects the rule a computer-controlled hostile uses to pick
// its action each tick.
type BehaviorKind string

const (
	// BehaviorBasic attacks an aggro-weighted random opponent every tick.
	BehaviorBasic BehaviorKind = "basic"
	// BehaviorPeriodicArea uses AreaAbility every PeriodSeconds, otherwise attacks.
	BehaviorPeriodicArea BehaviorKind = "periodic_area"
	// BehaviorScripted delegates the choice to a Lua hook.
	BehaviorScripted BehaviorKind = "scripted"
)

// Valid reports whether k is one of the declared behaviour kinds.
func (k BehaviorKind) Valid() bool {
	switch k {
	case BehaviorBasic, BehaviorPeriodicArea, BehaviorScripted:
		return true
	default:
		return false
	}
}

// Behavior is a hostile unit type's decision rule.
type Behavior struct {
	Kind          BehaviorKind `yaml:"kind"`
	AreaAbility   string       `yaml:"area_ability"`
	PeriodSeconds float64      `yaml:"period_seconds"`
	Script        string       `yaml:"script"` // Lua hook name for BehaviorScripted
}

// MonsterDef defines a hostile unit type. UnitHP > 0 marks a swarm: the
// group's total HP is Units x UnitHP and HP is ignored.
type MonsterDef struct {
	ID       string   `yaml:"id"`
	Name     string   `yaml:"name"`
	Level    int      `yaml:"level"`
	HP       Formula  `yaml:"hp"`
	UnitHP   int      `yaml:"unit_hp"`
	Units    int      `yaml:"units"`
	Weapon   string   `yaml:"weapon"`
	Gadgets  []string `yaml:"gadgets"`
	Behavior Behavior `yaml:"behavior"`
}

// IsSwarm reports whether the monster is a swarm unit group.
func (m *MonsterDef) IsSwarm() bool { return m.UnitHP > 0 }

// Validate checks the monster's local invariants. Cross references to
// abilities are checked by Catalog.validateRefs.
//
// Postcondition: returns nil iff all fields are valid.
func (m *MonsterDef) Validate() error {
	var errs []error
	if m.ID == "" {
		errs = append(errs, errors.New("id must not be empty"))
	}
	if m.Name == "" {
		errs = append(errs, errors.New("name must not be empty"))
	}
	if m.Level < MinLevel || m.Level > MaxLevel {
		errs = append(errs, fmt.Errorf("level must be within [%d, %d], got %d", MinLevel, MaxLevel, m.Level))
	}
	if m.Weapon == "" {
		errs = append(errs, errors.New("weapon must not be empty"))
	}
	if m.UnitHP < 0 {
		errs = append(errs, errors.New("unit_hp must not be negative"))
	}
	if m.IsSwarm() && m.Units < 1 {
		errs = append(errs, errors.New("swarm monsters must declare units >= 1"))
	}
	if !m.IsSwarm() && m.HP.At(m.Level) < 1 {
		errs = append(errs, errors.New("hp formula must yield at least 1 at the monster's level"))
	}
	if err := m.HP.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("hp: %w", err))
	}
	if !m.Behavior.Kind.Valid() {
		errs = append(errs, fmt.Errorf("behavior.kind %q is not one of [basic, periodic_area, scripted]", m.Behavior.Kind))
	}
	switch m.Behavior.Kind {
	case BehaviorPeriodicArea:
		if m.Behavior.AreaAbility == "" {
			errs = append(errs, errors.New("periodic_area behavior requires area_ability"))
		}
		if m.Behavior.PeriodSeconds <= 0 {
			errs = append(errs, errors.New("periodic_area behavior requires period_seconds > 0"))
		}
	case BehaviorScripted:
		if m.Behavior.Script == "" {
			errs = append(errs, errors.New("scripted behavior requires script"))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("monster %q validation failed: %w", m.ID, errors.Join(errs...))
	}
	return nil
}

// MaxHPAt returns the monster's total hit points at level for the given unit
// count. Swarms ignore level; units < 1 falls back to the definition's Units.
//
// Postcondition: Returns >= 1.
func (m *MonsterDef) MaxHPAt(level, units int) int {
	if m.IsSwarm() {
		if units < 1 {
			units = m.Units
		}
		return units * m.UnitHP
	}
	hp := int(m.HP.At(level))
	if hp < 1 {
		hp = 1
	}
	return hp
}
