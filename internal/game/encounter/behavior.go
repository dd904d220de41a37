package encounter

import (
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/skirmish/internal/game/catalog"
	"github.com/cory-johannsen/skirmish/internal/game/combat"
	"github.com/cory-johannsen/skirmish/internal/game/dice"
)

// chooseBot picks a bot ally's action: the first ready gadget that has a
// useful target, otherwise an attack on the lowest-HP hostile.
func (e *Encounter) chooseBot(c *combat.Combatant, ctx combat.Context) combat.Action {
	for i, g := range c.Loadout.Gadgets {
		if !c.Ready(combat.GadgetCooldownKey(i)) {
			continue
		}
		def, err := ctx.Catalog.Ability(g.AbilityID)
		if err != nil {
			continue
		}
		if def.Effect == catalog.EffectHeal && !anyHurt(e.allies) {
			continue
		}
		return combat.Action{Kind: combat.ActionGadget, Gadget: i}
	}
	return combat.Action{Kind: combat.ActionAttack}
}

func anyHurt(cs []*combat.Combatant) bool {
	for _, c := range cs {
		if !c.IsDefeated() && c.CurrentHP < c.MaxHP {
			return true
		}
	}
	return false
}

// chooseHostile applies the hostile's behaviour rule.
func (e *Encounter) chooseHostile(c *combat.Combatant, ctx combat.Context) combat.Action {
	switch c.Behavior.Kind {
	case catalog.BehaviorScripted:
		if a, ok := e.chooseScripted(c); ok {
			return a
		}
	case catalog.BehaviorPeriodicArea:
		if idx, ok := e.areaGadget[c.ID]; ok && c.Ready(combat.GadgetCooldownKey(idx)) {
			return combat.Action{Kind: combat.ActionGadget, Gadget: idx}
		}
	}
	return e.chooseBasic(c, ctx)
}

// chooseBasic uses the first ready gadget, otherwise the weapon, against an
// aggro-weighted random ally. An ally's weight is the damage it has dealt to
// this hostile plus one.
func (e *Encounter) chooseBasic(c *combat.Combatant, ctx combat.Context) combat.Action {
	target := e.aggroTarget(c)
	area, hasArea := e.areaGadget[c.ID]
	for i, g := range c.Loadout.Gadgets {
		if (hasArea && i == area) || !c.Ready(combat.GadgetCooldownKey(i)) {
			continue
		}
		if _, err := ctx.Catalog.Ability(g.AbilityID); err != nil {
			continue
		}
		return combat.Action{Kind: combat.ActionGadget, Gadget: i, Target: target}
	}
	return combat.Action{Kind: combat.ActionAttack, Target: target}
}

func (e *Encounter) aggroTarget(c *combat.Combatant) string {
	alive := living(e.allies)
	if len(alive) == 0 {
		return ""
	}
	weights := make([]int, len(alive))
	for i, a := range alive {
		weights[i] = e.aggro[c.ID][a.ID] + 1
	}
	idx := dice.WeightedIndex(e.rng, weights)
	if idx < 0 {
		idx = 0
	}
	return alive[idx].ID
}

func (e *Encounter) chooseScripted(c *combat.Combatant) (combat.Action, bool) {
	if e.script == nil {
		return combat.Action{}, false
	}
	in := ScriptInput{
		Self:      viewOf(c),
		Allies:    viewsOf(e.hostiles),
		Opponents: viewsOf(e.allies),
		Tick:      e.ticks,
		Elapsed:   e.elapsed,
	}
	a, err := e.script.ChooseAction(c.Behavior.Script, in)
	if err != nil {
		e.logger.Warn("behavior script failed; using basic behavior",
			zap.String("combatant", c.ID),
			zap.String("hook", c.Behavior.Script),
			zap.Error(err),
		)
		return combat.Action{}, false
	}
	return a, true
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
