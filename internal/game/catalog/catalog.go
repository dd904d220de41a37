package catalog

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownAbility is returned when an ability id is not in the catalog.
var ErrUnknownAbility = errors.New("unknown ability")

// ErrUnknownMonster is returned when a monster id is not in the catalog.
var ErrUnknownMonster = errors.New("unknown monster")

// Catalog holds every AbilityDef and MonsterDef indexed by ID. A Catalog is
// immutable after Build and safe to share between goroutines.
type Catalog struct {
	abilities map[string]*AbilityDef
	monsters  map[string]*MonsterDef
}

// Build validates abilities and monsters, including cross references, and
// returns the resulting Catalog.
//
// Postcondition: Returns a non-nil Catalog or the first validation error.
// Duplicate ids are errors.
func Build(abilities []*AbilityDef, monsters []*MonsterDef) (*Catalog, error) {
	c := &Catalog{
		abilities: make(map[string]*AbilityDef, len(abilities)),
		monsters:  make(map[string]*MonsterDef, len(monsters)),
	}
	for _, a := range abilities {
		if err := a.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.abilities[a.ID]; dup {
			return nil, fmt.Errorf("catalog: ability id %q already registered", a.ID)
		}
		c.abilities[a.ID] = a
	}
	for _, m := range monsters {
		if err := m.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.monsters[m.ID]; dup {
			return nil, fmt.Errorf("catalog: monster id %q already registered", m.ID)
		}
		c.monsters[m.ID] = m
	}
	if err := c.validateRefs(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) validateRefs() error {
	for _, m := range c.monsters {
		if err := c.expectSlot(m.Weapon, SlotWeapon); err != nil {
			return fmt.Errorf("monster %q weapon: %w", m.ID, err)
		}
		for _, g := range m.Gadgets {
			if err := c.expectSlot(g, SlotGadget); err != nil {
				return fmt.Errorf("monster %q gadget: %w", m.ID, err)
			}
		}
		if m.Behavior.Kind == BehaviorPeriodicArea {
			a, err := c.Ability(m.Behavior.AreaAbility)
			if err != nil {
				return fmt.Errorf("monster %q area_ability: %w", m.ID, err)
			}
			if a.Category != CategoryArea {
				return fmt.Errorf("monster %q area_ability %q has category %q, want area", m.ID, a.ID, a.Category)
			}
		}
	}
	return nil
}

func (c *Catalog) expectSlot(id string, slot Slot) error {
	a, err := c.Ability(id)
	if err != nil {
		return err
	}
	if a.Slot != slot {
		return fmt.Errorf("ability %q is a %s, want %s", id, a.Slot, slot)
	}
	return nil
}

// Ability returns the AbilityDef for id.
//
// Postcondition: err wraps ErrUnknownAbility iff id is not registered.
func (c *Catalog) Ability(id string) (*AbilityDef, error) {
	a, ok := c.abilities[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAbility, id)
	}
	return a, nil
}

// Monster returns the MonsterDef for id.
//
// Postcondition: err wraps ErrUnknownMonster iff id is not registered.
func (c *Catalog) Monster(id string) (*MonsterDef, error) {
	m, ok := c.monsters[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMonster, id)
	}
	return m, nil
}

// AbilityIDs returns all registered ability ids in sorted order.
func (c *Catalog) AbilityIDs() []string {
	out := make([]string, 0, len(c.abilities))
	for id := range c.abilities {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// MonsterIDs returns all registered monster ids in sorted order.
func (c *Catalog) MonsterIDs() []string {
	out := make([]string, 0, len(c.monsters))
	for id := range c.monsters {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Scale evaluates ability id's formula at level and applies the tuning
// multipliers for that id. Tuning is read on every call; nothing is cached.
//
// Precondition: none; level is clamped to [MinLevel, MaxLevel].
// Postcondition: err wraps ErrUnknownAbility iff id is not registered;
// otherwise the result is deterministic in (id, level, tuning).
func (c *Catalog) Scale(id string, level int, tuning Tuning) (float64, error) {
	a, err := c.Ability(id)
	if err != nil {
		return 0, err
	}
	return a.Formula.At(level) * tuning.For(id), nil
}
