package combat

import (
	"math"
	"time"

	"github.com/cory-johannsen/skirmish/internal/game/catalog"
	"github.com/cory-johannsen/skirmish/internal/game/status"
)

// Difficulty is the encounter-level scaling tier.
type Difficulty string

const (
	DifficultyNormal    Difficulty = "normal"
	DifficultyHard      Difficulty = "hard"
	DifficultyNightmare Difficulty = "nightmare"
)

// Valid reports whether d is a declared difficulty.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyNormal, DifficultyHard, DifficultyNightmare:
		return true
	default:
		return false
	}
}

// Multiplier returns the scaling factor for d under tuning t.
// Unknown difficulties scale like Normal.
func (d Difficulty) Multiplier(t catalog.Tuning) float64 {
	switch d {
	case DifficultyHard:
		return 1.5
	case DifficultyNightmare:
		return t.Nightmare()
	default:
		return 1.0
	}
}

// AbilityRef identifies the loadout item being used and the slot it is used from.
type AbilityRef struct {
	Item Item
	Slot catalog.Slot
}

// Context carries the per-call inputs the resolver reads. The encounter
// builds one per tick from the store so that tuning changes take effect on
// the next tick without touching combatant state.
type Context struct {
	Catalog    *catalog.Catalog
	Tuning     catalog.Tuning
	Difficulty Difficulty
}

// Flag annotates a resolved Effect.
type Flag uint8

const (
	// FlagNoOp marks an effect that changed nothing: the target was already
	// defeated or the ability is no longer in the catalog.
	FlagNoOp Flag = 1 << iota
	// FlagEvaded marks damage evaded by an airborne target.
	FlagEvaded
	// FlagSwarm marks an effect that received the swarm multiplier.
	FlagSwarm
	// FlagDefeated marks the effect that reduced the target to 0 HP.
	FlagDefeated
)

// Has reports whether all bits of o are set in f.
func (f Flag) Has(o Flag) bool { return f&o == o }

// Effect is the attributed outcome of one resolution.
//
// Amount is the final resolved value. For damage, Absorbed is the part taken
// by a shield and Applied is the HP actually removed; for heals Applied is
// the HP actually restored; for shields Applied is the shield magnitude.
type Effect struct {
	SourceID  string
	AbilityID string
	TargetID  string
	Kind      catalog.EffectKind
	Amount    int
	Absorbed  int
	Applied   int
	Flags     Flag
	// Status is the status kind applied on hit, or "" if none.
	Status status.Kind
}

func noOp(src *Combatant, abilityID string, tgt *Combatant) Effect {
	return Effect{SourceID: src.ID, AbilityID: abilityID, TargetID: tgt.ID, Flags: FlagNoOp}
}

// EffectiveLevel returns min(item level, wielder level) clamped to the
// catalog range.
func EffectiveLevel(itemLevel, wielderLevel int) int {
	return catalog.ClampLevel(min(itemLevel, wielderLevel))
}

// passiveTotals sums the flat and percent modifiers of src's passives that
// apply to an ability of kind effect in slot.
func passiveTotals(src *Combatant, effect catalog.EffectKind, slot catalog.Slot, cat *catalog.Catalog) (flat, pct float64) {
	for _, p := range src.Loadout.Passives {
		def, err := cat.Ability(p.AbilityID)
		if err != nil {
			continue
		}
		lvl := EffectiveLevel(p.Level, src.Level)
		for _, m := range def.Modifiers {
			if !m.Applies(slot) {
				continue
			}
			v := m.Value.At(lvl)
			switch {
			case effect == catalog.EffectDamage && m.Kind == catalog.ModDamageFlat:
				flat += v
			case effect == catalog.EffectDamage && m.Kind == catalog.ModDamagePercent:
				pct += v
			case effect != catalog.EffectDamage && m.Kind == catalog.ModHealPercent:
				pct += v
			}
		}
	}
	return flat, pct
}

// Compute runs the scaling steps of the pipeline without mutating any state.
//
// Precondition: src and tgt must be non-nil.
// Postcondition: amount >= 0. err wraps catalog.ErrUnknownAbility iff the
// ability is not in ctx.Catalog.
func Compute(src *Combatant, ref AbilityRef, tgt *Combatant, ctx Context) (amount int, def *catalog.AbilityDef, flags Flag, err error) {
	def, err = ctx.Catalog.Ability(ref.Item.AbilityID)
	if err != nil {
		return 0, nil, 0, err
	}
	lvl := EffectiveLevel(ref.Item.Level, src.Level)
	base, err := ctx.Catalog.Scale(def.ID, lvl, ctx.Tuning)
	if err != nil {
		return 0, nil, 0, err
	}
	v := base * ref.Item.Rarity.Multiplier()

	flat, pct := passiveTotals(src, def.Effect, ref.Slot, ctx.Catalog)
	v = (v + flat) * (1 + pct/100)

	if def.Effect == catalog.EffectDamage && tgt.Swarm != nil {
		v *= def.SwarmMultiplierFor()
		flags |= FlagSwarm
	}
	if src.Team == TeamHostiles {
		v *= ctx.Difficulty.Multiplier(ctx.Tuning)
	}

	v = math.Floor(v)
	if v < 0 || math.IsNaN(v) {
		v = 0
	}
	if v > math.MaxInt32 {
		v = math.MaxInt32
	}
	return int(v), def, flags, nil
}

// Resolve computes and applies one use of ref by src against tgt.
//
// Resolving against a defeated target, or with an ability no longer in the
// catalog, returns a zero Effect flagged FlagNoOp and changes nothing.
//
// Precondition: src and tgt must be non-nil.
// Postcondition: 0 <= tgt.CurrentHP <= tgt.MaxHP.
func Resolve(src *Combatant, ref AbilityRef, tgt *Combatant, ctx Context) Effect {
	if tgt.IsDefeated() {
		return noOp(src, ref.Item.AbilityID, tgt)
	}
	amount, def, flags, err := Compute(src, ref, tgt, ctx)
	if err != nil {
		return noOp(src, ref.Item.AbilityID, tgt)
	}
	e := Effect{
		SourceID:  src.ID,
		AbilityID: def.ID,
		TargetID:  tgt.ID,
		Kind:      def.Effect,
		Amount:    amount,
		Flags:     flags,
	}
	switch def.Effect {
	case catalog.EffectDamage:
		if tgt.Status.Has(status.Airborne) && def.Category != catalog.CategoryArea {
			e.Amount = 0
			e.Flags |= FlagEvaded
			return e
		}
		applyDamage(&e, tgt)
	case catalog.EffectHeal:
		e.Applied = tgt.Heal(amount)
	case catalog.EffectShield:
		d := time.Duration(0)
		if def.Status != nil {
			d = seconds(def.Status.DurationSeconds)
		}
		if amount > 0 {
			tgt.Status.Apply(status.Effect{
				Kind:      status.Shield,
				Remaining: d,
				Magnitude: amount,
				SourceID:  src.ID,
				AbilityID: def.ID,
			})
			e.Applied = amount
			e.Status = status.Shield
		}
		return e
	}
	if def.Status != nil && !tgt.IsDefeated() {
		tgt.Status.Apply(status.Effect{
			Kind:      def.Status.Kind,
			Remaining: seconds(def.Status.DurationSeconds),
			Magnitude: int(def.Status.Magnitude.At(EffectiveLevel(ref.Item.Level, src.Level))),
			SourceID:  src.ID,
			AbilityID: def.ID,
		})
		e.Status = def.Status.Kind
	}
	return e
}

// ResolveDamageOverTime applies one tick of tgt's active damage-over-time
// effect, attributed to whoever applied it.
//
// Postcondition: ok is false iff tgt has no dot effect or is defeated.
func ResolveDamageOverTime(tgt *Combatant) (Effect, bool) {
	dot, ok := tgt.Status.Get(status.DamageOverTime)
	if !ok || tgt.IsDefeated() || dot.Magnitude <= 0 {
		return Effect{}, false
	}
	e := Effect{
		SourceID:  dot.SourceID,
		AbilityID: dot.AbilityID,
		TargetID:  tgt.ID,
		Kind:      catalog.EffectDamage,
		Amount:    dot.Magnitude,
	}
	applyDamage(&e, tgt)
	return e, true
}

// applyDamage routes e.Amount through tgt's shield and then its HP.
func applyDamage(e *Effect, tgt *Combatant) {
	absorbed, rem := tgt.Status.Absorb(e.Amount)
	e.Absorbed = absorbed
	e.Applied = tgt.ApplyDamage(rem)
	if e.Applied > 0 && tgt.IsDefeated() {
		e.Flags |= FlagDefeated
	}
}

// DeriveMaxHP returns base HP adjusted by the hp_flat and hp_percent
// modifiers of passives: (base + Σflat) × (1 + Σpercent/100).
//
// Postcondition: Returns >= 1. Unknown passive ids contribute nothing.
func DeriveMaxHP(base, level int, passives []Item, cat *catalog.Catalog) int {
	var flat, pct float64
	for _, p := range passives {
		def, err := cat.Ability(p.AbilityID)
		if err != nil {
			continue
		}
		lvl := EffectiveLevel(p.Level, level)
		for _, m := range def.Modifiers {
			switch m.Kind {
			case catalog.ModHPFlat:
				flat += m.Value.At(lvl)
			case catalog.ModHPPercent:
				pct += m.Value.At(lvl)
			}
		}
	}
	hp := int(math.Floor((float64(base) + flat) * (1 + pct/100)))
	if hp < 1 {
		hp = 1
	}
	return hp
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
