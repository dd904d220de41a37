// Package status implements per-combatant timed status effects.
package status

import (
	"sort"
	"time"
)

// Kind names a status effect. Every kind is exclusive: at most one instance
// is active per combatant.
type Kind string

const (
	// Stun suppresses action resolution.
	Stun Kind = "stun"
	// Slow reduces cooldown decay by Magnitude percent.
	Slow Kind = "slow"
	// Shield absorbs up to Magnitude incoming damage.
	Shield Kind = "shield"
	// Haste increases cooldown decay by Magnitude percent.
	Haste Kind = "haste"
	// Airborne evades non-area damage.
	Airborne Kind = "airborne"
	// DamageOverTime deals Magnitude damage each tick.
	DamageOverTime Kind = "dot"
)

// AllKinds lists every declared Kind.
var AllKinds = []Kind{Stun, Slow, Shield, Haste, Airborne, DamageOverTime}

// Valid reports whether k is a declared kind.
func (k Kind) Valid() bool {
	switch k {
	case Stun, Slow, Shield, Haste, Airborne, DamageOverTime:
		return true
	default:
		return false
	}
}

// Effect is one active status on a combatant. SourceID and AbilityID
// attribute the effect to whoever applied it.
type Effect struct {
	Kind      Kind
	Remaining time.Duration
	Magnitude int
	SourceID  string
	AbilityID string
}

// Table tracks the status effects applied to one combatant.
// It is not safe for concurrent use; the owning encounter serialises access.
type Table struct {
	effects map[Kind]*Effect
}

// NewTable creates an empty Table.
func NewTable() *Table {
	return &Table{effects: make(map[Kind]*Effect)}
}

// Apply adds e or refreshes the active effect of the same kind.
// Refreshing sets Remaining to max(old, new) and replaces Magnitude and
// attribution; magnitudes never stack. Non-positive durations are ignored.
//
// Postcondition: if e.Remaining > 0, Has(e.Kind) is true.
func (t *Table) Apply(e Effect) {
	if e.Remaining <= 0 {
		return
	}
	if existing, ok := t.effects[e.Kind]; ok {
		if e.Remaining > existing.Remaining {
			existing.Remaining = e.Remaining
		}
		existing.Magnitude = e.Magnitude
		existing.SourceID = e.SourceID
		existing.AbilityID = e.AbilityID
		return
	}
	cp := e
	t.effects[e.Kind] = &cp
}

// Has reports whether an effect of kind is active.
func (t *Table) Has(kind Kind) bool {
	_, ok := t.effects[kind]
	return ok
}

// Get returns a copy of the active effect of kind.
func (t *Table) Get(kind Kind) (Effect, bool) {
	e, ok := t.effects[kind]
	if !ok {
		return Effect{}, false
	}
	return *e, true
}

// Magnitude returns the magnitude of the active effect of kind, or 0.
func (t *Table) Magnitude(kind Kind) int {
	if e, ok := t.effects[kind]; ok {
		return e.Magnitude
	}
	return 0
}

// Remove deletes the effect of kind. Removing an absent kind is a no-op.
func (t *Table) Remove(kind Kind) {
	delete(t.effects, kind)
}

// Tick decrements every effect by dt and removes those whose remaining
// duration reaches zero or below.
//
// Postcondition: For every kind in the returned slice, Has(kind) is false.
// The returned slice is sorted.
func (t *Table) Tick(dt time.Duration) []Kind {
	var expired []Kind
	// Deleting map entries during range iteration is safe per the Go specification.
	for kind, e := range t.effects {
		e.Remaining -= dt
		if e.Remaining <= 0 {
			expired = append(expired, kind)
			delete(t.effects, kind)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i] < expired[j] })
	return expired
}

// ClearExpired removes effects with no remaining duration and shields with
// no remaining magnitude.
func (t *Table) ClearExpired() {
	for kind, e := range t.effects {
		if e.Remaining <= 0 || (kind == Shield && e.Magnitude <= 0) {
			delete(t.effects, kind)
		}
	}
}

// Absorb consumes up to amount from the active shield.
//
// Precondition: amount >= 0.
// Postcondition: absorbed + remainder == amount; the shield is removed when
// its magnitude reaches 0.
func (t *Table) Absorb(amount int) (absorbed, remainder int) {
	e, ok := t.effects[Shield]
	if !ok || amount <= 0 {
		return 0, amount
	}
	if amount <= e.Magnitude {
		e.Magnitude -= amount
		absorbed = amount
	} else {
		absorbed = e.Magnitude
		e.Magnitude = 0
	}
	if e.Magnitude <= 0 {
		delete(t.effects, Shield)
	}
	return absorbed, amount - absorbed
}

// All returns copies of the active effects sorted by kind.
func (t *Table) All() []Effect {
	out := make([]Effect, 0, len(t.effects))
	for _, e := range t.effects {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

// Len returns the number of active effects.
func (t *Table) Len() int { return len(t.effects) }
