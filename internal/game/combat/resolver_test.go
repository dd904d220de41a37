package combat_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/skirmish/internal/game/catalog"
	"github.com/cory-johannsen/skirmish/internal/game/combat"
	"github.com/cory-johannsen/skirmish/internal/game/status"
)

func linear(base, slope float64) catalog.Formula {
	return catalog.Formula{Base: base, Slope: slope}
}

func testCatalog(t testing.TB) *catalog.Catalog {
	t.Helper()
	abilities := []*catalog.AbilityDef{
		{ID: "rifle", Name: "Rifle", Slot: catalog.SlotWeapon, Category: catalog.CategorySingleTarget,
			Effect: catalog.EffectDamage, Formula: linear(250, 15)},
		{ID: "grenade", Name: "Grenade", Slot: catalog.SlotGadget, Category: catalog.CategoryArea,
			Effect: catalog.EffectDamage, Formula: linear(250, 15), CooldownSeconds: 8},
		{ID: "chain", Name: "Chain Lightning", Slot: catalog.SlotGadget, Category: catalog.CategoryMultiHit,
			Effect: catalog.EffectDamage, Formula: linear(100, 0), CooldownSeconds: 5},
		{ID: "thorns", Name: "Thorns", Slot: catalog.SlotGadget, Category: catalog.CategoryAura,
			Effect: catalog.EffectDamage, Formula: linear(100, 0), SwarmMultiplier: 3.0},
		{ID: "medkit", Name: "Medkit", Slot: catalog.SlotGadget, Category: catalog.CategorySingleTarget,
			Effect: catalog.EffectHeal, Formula: linear(100, 0), CooldownSeconds: 10},
		{ID: "barrier", Name: "Barrier", Slot: catalog.SlotGadget, Category: catalog.CategorySingleTarget,
			Effect: catalog.EffectShield, Formula: linear(150, 0), CooldownSeconds: 12,
			Status: &catalog.StatusSpec{Kind: status.Shield, DurationSeconds: 10}},
		{ID: "taser", Name: "Taser", Slot: catalog.SlotGadget, Category: catalog.CategorySingleTarget,
			Effect: catalog.EffectDamage, Formula: linear(10, 0), CooldownSeconds: 6,
			Status: &catalog.StatusSpec{Kind: status.Stun, DurationSeconds: 2, Magnitude: linear(1, 0)}},
		{ID: "scope", Name: "Scope", Slot: catalog.SlotPassive, Category: catalog.CategorySingleTarget,
			Modifiers: []catalog.Modifier{
				{Kind: catalog.ModDamageFlat, AppliesTo: []catalog.Slot{catalog.SlotWeapon}, Value: linear(100, 0)},
				{Kind: catalog.ModDamagePercent, Value: linear(10, 0)},
			}},
		{ID: "rage", Name: "Rage", Slot: catalog.SlotPassive, Category: catalog.CategorySingleTarget,
			Modifiers: []catalog.Modifier{{Kind: catalog.ModDamagePercent, Value: linear(40, 0)}}},
		{ID: "vitality", Name: "Vitality", Slot: catalog.SlotPassive, Category: catalog.CategorySingleTarget,
			Modifiers: []catalog.Modifier{
				{Kind: catalog.ModHPFlat, Value: linear(100, 0)},
				{Kind: catalog.ModHPPercent, Value: linear(50, 0)},
			}},
	}
	cat, err := catalog.Build(abilities, nil)
	require.NoError(t, err)
	return cat
}

func normalCtx(cat *catalog.Catalog) combat.Context {
	return combat.Context{Catalog: cat, Tuning: catalog.DefaultTuning(), Difficulty: combat.DifficultyNormal}
}

func weapon(id string, level int) combat.AbilityRef {
	return combat.AbilityRef{Item: combat.Item{AbilityID: id, Level: level}, Slot: catalog.SlotWeapon}
}

func gadget(id string, level int) combat.AbilityRef {
	return combat.AbilityRef{Item: combat.Item{AbilityID: id, Level: level}, Slot: catalog.SlotGadget}
}

func TestResolve_LevelTenWeapon_Is400(t *testing.T) {
	cat := testCatalog(t)
	src := newFighter("p1", combat.TeamAllies, 1000)
	tgt := newFighter("m1", combat.TeamHostiles, 5000)

	e := combat.Resolve(src, weapon("rifle", 10), tgt, normalCtx(cat))
	assert.Equal(t, 400, e.Amount)
	assert.Equal(t, 400, e.Applied)
	assert.Equal(t, 4600, tgt.CurrentHP)
	assert.Equal(t, "p1", e.SourceID)
	assert.Equal(t, "rifle", e.AbilityID)
	assert.Equal(t, "m1", e.TargetID)
	assert.Equal(t, catalog.EffectDamage, e.Kind)
}

func TestResolve_AreaAgainstSwarm_Is1600(t *testing.T) {
	cat := testCatalog(t)
	src := newFighter("p1", combat.TeamAllies, 1000)
	swarm := combat.NewCombatant("rats", "Rats", combat.TeamHostiles, combat.ControllerMonster, 10, 2000, combat.Loadout{})
	swarm.Swarm = &combat.Swarm{UnitHP: 100}
	require.Equal(t, 20, swarm.UnitCount())

	e := combat.Resolve(src, gadget("grenade", 10), swarm, normalCtx(cat))
	assert.Equal(t, 1600, e.Amount)
	assert.True(t, e.Flags.Has(combat.FlagSwarm))
	assert.Equal(t, 400, swarm.CurrentHP)
	assert.Equal(t, 4, swarm.UnitCount())
}

func TestResolve_SwarmMultiplierByCategory(t *testing.T) {
	cat := testCatalog(t)
	cases := []struct {
		ability string
		want    int
	}{
		{"chain", 250},
		{"thorns", 300},
	}
	for _, tc := range cases {
		t.Run(tc.ability, func(t *testing.T) {
			src := newFighter("p1", combat.TeamAllies, 1000)
			swarm := combat.NewCombatant("s", "S", combat.TeamHostiles, combat.ControllerMonster, 10, 10000, combat.Loadout{})
			swarm.Swarm = &combat.Swarm{UnitHP: 10}
			e := combat.Resolve(src, gadget(tc.ability, 10), swarm, normalCtx(cat))
			assert.Equal(t, tc.want, e.Amount)
		})
	}
}

func TestResolve_SingleTargetAgainstSwarm_NoBonus(t *testing.T) {
	cat := testCatalog(t)
	src := newFighter("p1", combat.TeamAllies, 1000)
	swarm := combat.NewCombatant("s", "S", combat.TeamHostiles, combat.ControllerMonster, 10, 10000, combat.Loadout{})
	swarm.Swarm = &combat.Swarm{UnitHP: 10}
	assert.Equal(t, 400, combat.Resolve(src, weapon("rifle", 10), swarm, normalCtx(cat)).Amount)
}

func TestResolve_ItemAboveWielderLevel_UsesWielderLevel(t *testing.T) {
	cat := testCatalog(t)
	src := combat.NewCombatant("p1", "P", combat.TeamAllies, combat.ControllerHuman, 10, 100, combat.Loadout{})
	tgt := newFighter("m1", combat.TeamHostiles, 5000)
	assert.Equal(t, 400, combat.Resolve(src, weapon("rifle", 60), tgt, normalCtx(cat)).Amount)
}

func TestResolve_Rarity(t *testing.T) {
	cat := testCatalog(t)
	src := newFighter("p1", combat.TeamAllies, 1000)
	tgt := newFighter("m1", combat.TeamHostiles, 5000)
	ref := weapon("rifle", 10)
	ref.Item.Rarity = catalog.RarityLegendary
	assert.Equal(t, 520, combat.Resolve(src, ref, tgt, normalCtx(cat)).Amount)
}

func TestResolve_Passives_FlatThenAggregatePercent(t *testing.T) {
	cat := testCatalog(t)
	src := newFighter("p1", combat.TeamAllies, 1000)
	src.Loadout.Passives = []combat.Item{{AbilityID: "scope", Level: 10}, {AbilityID: "rage", Level: 10}}
	tgt := newFighter("m1", combat.TeamHostiles, 5000)

	// (400 + 100) × (1 + (10+40)/100)
	assert.Equal(t, 750, combat.Resolve(src, weapon("rifle", 10), tgt, normalCtx(cat)).Amount)

	// scope's flat bonus is weapon-only; both percent bonuses apply to gadgets.
	tgt2 := newFighter("m2", combat.TeamHostiles, 5000)
	assert.Equal(t, 600, combat.Resolve(src, gadget("grenade", 10), tgt2, normalCtx(cat)).Amount)
}

func TestResolve_Passives_OrderIndependent(t *testing.T) {
	cat := testCatalog(t)
	a := newFighter("a", combat.TeamAllies, 1000)
	a.Loadout.Passives = []combat.Item{{AbilityID: "scope", Level: 10}, {AbilityID: "rage", Level: 10}}
	b := newFighter("b", combat.TeamAllies, 1000)
	b.Loadout.Passives = []combat.Item{{AbilityID: "rage", Level: 10}, {AbilityID: "scope", Level: 10}}
	ta := newFighter("t", combat.TeamHostiles, 5000)
	tb := newFighter("t", combat.TeamHostiles, 5000)
	assert.Equal(t,
		combat.Resolve(a, weapon("rifle", 10), ta, normalCtx(cat)).Amount,
		combat.Resolve(b, weapon("rifle", 10), tb, normalCtx(cat)).Amount)
}

func TestResolve_Difficulty_HostileOnly(t *testing.T) {
	cat := testCatalog(t)
	ctx := normalCtx(cat)
	ctx.Difficulty = combat.DifficultyHard

	hostile := newFighter("m1", combat.TeamHostiles, 5000)
	ally := newFighter("p1", combat.TeamAllies, 5000)
	assert.Equal(t, 600, combat.Resolve(hostile, weapon("rifle", 10), ally, ctx).Amount)
	assert.Equal(t, 400, combat.Resolve(ally, weapon("rifle", 10), hostile, ctx).Amount)

	ctx.Difficulty = combat.DifficultyNightmare
	assert.Equal(t, 1000, combat.Resolve(hostile, weapon("rifle", 10), ally, ctx).Amount)
	ctx.Tuning.NightmareMultiplier = 3.0
	assert.Equal(t, 1200, combat.Resolve(hostile, weapon("rifle", 10), ally, ctx).Amount)
}

func TestResolve_TuningIsReadPerCall(t *testing.T) {
	cat := testCatalog(t)
	ctx := normalCtx(cat)
	src := newFighter("p1", combat.TeamAllies, 1000)
	tgt := newFighter("m1", combat.TeamHostiles, 50000)
	assert.Equal(t, 400, combat.Resolve(src, weapon("rifle", 10), tgt, ctx).Amount)
	ctx.Tuning = catalog.Tuning{Global: 1.0, PerAbility: map[string]float64{"rifle": 0.5}}
	assert.Equal(t, 200, combat.Resolve(src, weapon("rifle", 10), tgt, ctx).Amount)
}

func TestResolve_ShieldAbsorbsFirst(t *testing.T) {
	cat := testCatalog(t)
	src := newFighter("p1", combat.TeamAllies, 1000)
	tgt := newFighter("m1", combat.TeamHostiles, 1000)
	tgt.Status.Apply(status.Effect{Kind: status.Shield, Remaining: time.Minute, Magnitude: 150})

	e := combat.Resolve(src, weapon("rifle", 10), tgt, normalCtx(cat))
	assert.Equal(t, 150, e.Absorbed)
	assert.Equal(t, 250, e.Applied)
	assert.Equal(t, 750, tgt.CurrentHP)
	assert.False(t, tgt.Status.Has(status.Shield))
}

func TestResolve_ShieldAbility_AppliesShieldStatus(t *testing.T) {
	cat := testCatalog(t)
	src := newFighter("p1", combat.TeamAllies, 1000)
	e := combat.Resolve(src, gadget("barrier", 10), src, normalCtx(cat))
	assert.Equal(t, catalog.EffectShield, e.Kind)
	assert.Equal(t, 150, e.Applied)
	got, ok := src.Status.Get(status.Shield)
	require.True(t, ok)
	assert.Equal(t, 150, got.Magnitude)
	assert.Equal(t, 10*time.Second, got.Remaining)
	assert.Equal(t, "p1", got.SourceID)
}

func TestResolve_Heal_CapsAtMax(t *testing.T) {
	cat := testCatalog(t)
	src := newFighter("p1", combat.TeamAllies, 1000)
	src.ApplyDamage(30)
	e := combat.Resolve(src, gadget("medkit", 10), src, normalCtx(cat))
	assert.Equal(t, 100, e.Amount)
	assert.Equal(t, 30, e.Applied)
	assert.Equal(t, 1000, src.CurrentHP)
}

func TestResolve_AirborneEvadesNonArea(t *testing.T) {
	cat := testCatalog(t)
	src := newFighter("p1", combat.TeamAllies, 1000)
	tgt := newFighter("m1", combat.TeamHostiles, 1000)
	tgt.Status.Apply(status.Effect{Kind: status.Airborne, Remaining: time.Second})

	e := combat.Resolve(src, weapon("rifle", 10), tgt, normalCtx(cat))
	assert.True(t, e.Flags.Has(combat.FlagEvaded))
	assert.Equal(t, 0, e.Amount)
	assert.Equal(t, 1000, tgt.CurrentHP)

	e = combat.Resolve(src, gadget("grenade", 1), tgt, normalCtx(cat))
	assert.False(t, e.Flags.Has(combat.FlagEvaded))
	assert.Equal(t, 735, tgt.CurrentHP)
}

func TestResolve_AppliesStatusOnHit(t *testing.T) {
	cat := testCatalog(t)
	src := newFighter("p1", combat.TeamAllies, 1000)
	tgt := newFighter("m1", combat.TeamHostiles, 1000)
	e := combat.Resolve(src, gadget("taser", 10), tgt, normalCtx(cat))
	assert.Equal(t, status.Stun, e.Status)
	assert.True(t, tgt.Status.Has(status.Stun))
}

func TestResolve_DefeatedTarget_NoOp(t *testing.T) {
	cat := testCatalog(t)
	src := newFighter("p1", combat.TeamAllies, 1000)
	tgt := newFighter("m1", combat.TeamHostiles, 10)
	tgt.ApplyDamage(10)
	e := combat.Resolve(src, weapon("rifle", 10), tgt, normalCtx(cat))
	assert.True(t, e.Flags.Has(combat.FlagNoOp))
	assert.Equal(t, 0, e.Amount)
	assert.Equal(t, "p1", e.SourceID)
}

func TestResolve_UnknownAbility_NoOp(t *testing.T) {
	cat := testCatalog(t)
	src := newFighter("p1", combat.TeamAllies, 1000)
	tgt := newFighter("m1", combat.TeamHostiles, 10)
	e := combat.Resolve(src, weapon("removed-in-reload", 10), tgt, normalCtx(cat))
	assert.True(t, e.Flags.Has(combat.FlagNoOp))
	assert.Equal(t, 10, tgt.CurrentHP)
}

func TestResolve_KillingBlow_FlagsDefeated(t *testing.T) {
	cat := testCatalog(t)
	src := newFighter("p1", combat.TeamAllies, 1000)
	tgt := newFighter("m1", combat.TeamHostiles, 300)
	e := combat.Resolve(src, weapon("rifle", 10), tgt, normalCtx(cat))
	assert.True(t, e.Flags.Has(combat.FlagDefeated))
	assert.Equal(t, 300, e.Applied)
}

func TestResolveDamageOverTime_Attributed(t *testing.T) {
	tgt := newFighter("m1", combat.TeamHostiles, 100)
	_, ok := combat.ResolveDamageOverTime(tgt)
	assert.False(t, ok)

	tgt.Status.Apply(status.Effect{Kind: status.DamageOverTime, Remaining: 3 * time.Second, Magnitude: 15, SourceID: "p1", AbilityID: "napalm"})
	e, ok := combat.ResolveDamageOverTime(tgt)
	require.True(t, ok)
	assert.Equal(t, "p1", e.SourceID)
	assert.Equal(t, "napalm", e.AbilityID)
	assert.Equal(t, 85, tgt.CurrentHP)
}

func TestDeriveMaxHP(t *testing.T) {
	cat := testCatalog(t)
	assert.Equal(t, 1000, combat.DeriveMaxHP(1000, 10, nil, cat))
	// (1000 + 100) × 1.5
	assert.Equal(t, 1650, combat.DeriveMaxHP(1000, 10, []combat.Item{{AbilityID: "vitality", Level: 10}}, cat))
	assert.Equal(t, 1000, combat.DeriveMaxHP(1000, 10, []combat.Item{{AbilityID: "missing"}}, cat))
}

func TestDifficulty_Valid(t *testing.T) {
	assert.True(t, combat.DifficultyHard.Valid())
	assert.False(t, combat.Difficulty("ultra").Valid())
	assert.Equal(t, 1.0, combat.Difficulty("ultra").Multiplier(catalog.DefaultTuning()))
}

func TestResolve_Property_ShieldAccounting(t *testing.T) {
	cat := testCatalog(t)
	rapid.Check(t, func(rt *rapid.T) {
		shield := rapid.IntRange(1, 1000).Draw(rt, "shield")
		level := rapid.IntRange(1, 100).Draw(rt, "level")
		src := combat.NewCombatant("p1", "P", combat.TeamAllies, combat.ControllerHuman, 100, 100, combat.Loadout{})
		tgt := newFighter("m1", combat.TeamHostiles, 100000)
		tgt.Status.Apply(status.Effect{Kind: status.Shield, Remaining: time.Minute, Magnitude: shield})

		e := combat.Resolve(src, weapon("rifle", level), tgt, normalCtx(cat))
		a := e.Amount
		if a <= shield {
			assert.Equal(rt, 100000, tgt.CurrentHP)
			assert.Equal(rt, shield-a, tgt.Status.Magnitude(status.Shield))
		} else {
			assert.False(rt, tgt.Status.Has(status.Shield))
			assert.Equal(rt, 100000-(a-shield), tgt.CurrentHP)
		}
	})
}

func TestResolve_Property_NeverNegativeAndHPBounded(t *testing.T) {
	cat := testCatalog(t)
	ids := []string{"rifle", "grenade", "chain", "thorns", "medkit", "taser"}
	rapid.Check(t, func(rt *rapid.T) {
		src := combat.NewCombatant("p1", "P", combat.TeamAllies, combat.ControllerHuman,
			rapid.IntRange(1, 100).Draw(rt, "src_level"), 100, combat.Loadout{})
		tgt := newFighter("m1", combat.TeamHostiles, rapid.IntRange(1, 3000).Draw(rt, "hp"))
		if rapid.Bool().Draw(rt, "swarm") {
			tgt.Swarm = &combat.Swarm{UnitHP: rapid.IntRange(1, 100).Draw(rt, "unit_hp")}
		}
		for _, id := range rapid.SliceOfN(rapid.SampledFrom(ids), 1, 10).Draw(rt, "uses") {
			e := combat.Resolve(src, gadget(id, rapid.IntRange(1, 100).Draw(rt, "lvl")), tgt, normalCtx(cat))
			assert.GreaterOrEqual(rt, e.Amount, 0)
			assert.GreaterOrEqual(rt, tgt.CurrentHP, 0)
			assert.LessOrEqual(rt, tgt.CurrentHP, tgt.MaxHP)
		}
	})
}
