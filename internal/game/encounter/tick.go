package encounter

import (
	"go.uber.org/zap"

	"github.com/cory-johannsen/skirmish/internal/game/catalog"
	"github.com/cory-johannsen/skirmish/internal/game/combat"
	"github.com/cory-johannsen/skirmish/internal/game/status"
)

// Tick advances the encounter by exactly one fixed step.
//
// In PRE_START the grace countdown decrements and statuses and cooldowns
// tick passively. In RUNNING the clock ages, the time budget and survival
// rule are checked, allies act in roster order, then hostiles act, then the
// win and loss conditions are evaluated. Once TERMINATED, Tick returns the
// same outcome on every call.
//
// Postcondition: the returned Summary is non-nil iff the encounter is
// terminated with WIN, LOSE, or TIMEOUT.
func (e *Encounter) Tick() TickOutcome {
	if e.final != nil {
		return *e.final
	}
	if e.cancelled.Load() {
		e.terminate(OutcomeAbandoned)
		return e.finish()
	}
	e.ticks++
	switch e.phase {
	case PhasePreStart:
		e.tickGrace()
	case PhaseRunning:
		e.tickRunning(e.context())
	}
	if e.phase == PhaseTerminated {
		return e.finish()
	}
	e.publish()
	return TickOutcome{Snapshot: e.Snapshot()}
}

// tickGrace counts down PRE_START. Pending actions are consumed without
// effect: nothing is buffered across ticks.
func (e *Encounter) tickGrace() {
	for _, c := range e.roster {
		c.TakePending()
		c.Status.Tick(e.setup.Step)
		c.TickCooldowns(e.setup.Step)
	}
	e.graceLeft--
	if e.graceLeft <= 0 {
		e.graceLeft = 0
		e.begin()
	}
}

// begin transitions to RUNNING and starts the time budget clock.
func (e *Encounter) begin() {
	e.phase = PhaseRunning
	e.startedAt = e.now()
	for _, h := range e.hostiles {
		if idx, ok := e.areaGadget[h.ID]; ok {
			h.StartCooldown(combat.GadgetCooldownKey(idx), seconds(h.Behavior.PeriodSeconds))
		}
	}
	e.log.appendf("Fight!")
}

func (e *Encounter) tickRunning(ctx combat.Context) {
	e.elapsed += e.setup.Step
	if e.elapsed >= e.setup.TimeBudget {
		e.log.appendf("Time is up.")
		e.terminate(OutcomeTimeout)
		return
	}
	if e.lost() {
		e.terminate(OutcomeLose)
		return
	}
	for _, c := range e.allies {
		e.act(c, ctx)
	}
	for _, c := range e.hostiles {
		e.act(c, ctx)
	}
	switch {
	case e.won():
		e.log.appendf("All hostiles defeated.")
		e.terminate(OutcomeWin)
	case e.lost():
		e.terminate(OutcomeLose)
	}
}

// act runs one combatant's per-tick state machine.
func (e *Encounter) act(c *combat.Combatant, ctx combat.Context) {
	if c.IsDefeated() {
		c.TakePending()
		return
	}
	if eff, ok := combat.ResolveDamageOverTime(c); ok {
		e.record(eff, ctx)
	}
	c.Status.Tick(e.setup.Step)
	c.TickCooldowns(e.setup.Step)
	if c.IsDefeated() {
		c.TakePending()
		return
	}
	if c.Status.Has(status.Stun) {
		c.TakePending()
		e.log.appendf("%s is stunned.", c.Name)
		return
	}
	action, ok := e.choose(c, ctx)
	if !ok {
		return
	}
	e.perform(c, action, ctx)
}

// choose returns the action c takes this tick.
func (e *Encounter) choose(c *combat.Combatant, ctx combat.Context) (combat.Action, bool) {
	switch c.Controller {
	case combat.ControllerHuman:
		return c.TakePending()
	case combat.ControllerBot:
		return e.chooseBot(c, ctx), true
	default:
		return e.chooseHostile(c, ctx), true
	}
}

// perform resolves a. Stale actions (cooldown not elapsed, unknown gadget)
// are dropped without error.
func (e *Encounter) perform(c *combat.Combatant, a combat.Action, ctx combat.Context) {
	switch a.Kind {
	case combat.ActionAttack:
		e.use(c, combat.AbilityRef{Item: c.Loadout.Weapon, Slot: catalog.SlotWeapon}, a.Target, ctx)
	case combat.ActionGadget:
		if a.Gadget < 0 || a.Gadget >= len(c.Loadout.Gadgets) || !c.Ready(a.CooldownKey()) {
			return
		}
		item := c.Loadout.Gadgets[a.Gadget]
		def := e.use(c, combat.AbilityRef{Item: item, Slot: catalog.SlotGadget}, a.Target, ctx)
		if def == nil {
			return
		}
		cd := seconds(def.CooldownSeconds)
		if idx, ok := e.areaGadget[c.ID]; ok && idx == a.Gadget {
			cd = seconds(c.Behavior.PeriodSeconds)
		}
		c.StartCooldown(a.CooldownKey(), cd)
	case combat.ActionDefend:
		if !c.Ready(combat.DefendCooldownKey) {
			return
		}
		c.Status.Apply(status.Effect{Kind: status.Airborne, Remaining: combat.DefendDuration, SourceID: c.ID})
		c.StartCooldown(combat.DefendCooldownKey, combat.DefendCooldown)
		e.log.appendf("%s takes evasive action.", c.Name)
	}
}

// use resolves ref from c against the targets its definition selects and
// returns the definition, or nil if the ability is no longer in the catalog.
func (e *Encounter) use(c *combat.Combatant, ref combat.AbilityRef, focus string, ctx combat.Context) *catalog.AbilityDef {
	def, err := ctx.Catalog.Ability(ref.Item.AbilityID)
	if err != nil {
		e.logger.Warn("ability missing from catalog",
			zap.String("combatant", c.ID),
			zap.String("ability", ref.Item.AbilityID),
			zap.Error(err),
		)
		return nil
	}
	for _, tgt := range e.targets(c, def, focus) {
		e.record(combat.Resolve(c, ref, tgt, ctx), ctx)
	}
	return def
}

// targets applies the targeting policy: area damage hits every living
// opponent; otherwise the focus target if it is alive and legal, else the
// legal target with the lowest current HP, ties broken by roster order.
// Heals and shields target the combatant's own team.
func (e *Encounter) targets(c *combat.Combatant, def *catalog.AbilityDef, focus string) []*combat.Combatant {
	side := c.Team.Opponent()
	if def.Effect != catalog.EffectDamage {
		side = c.Team
	}
	pool := e.team(side)
	if def.Effect == catalog.EffectDamage && def.Category == catalog.CategoryArea {
		return living(pool)
	}
	if t, ok := e.byID[focus]; ok && !t.IsDefeated() && t.Team == side {
		return []*combat.Combatant{t}
	}
	if t := lowestHP(pool); t != nil {
		return []*combat.Combatant{t}
	}
	return nil
}

func (e *Encounter) team(t combat.Team) []*combat.Combatant {
	if t == combat.TeamAllies {
		return e.allies
	}
	return e.hostiles
}

func living(cs []*combat.Combatant) []*combat.Combatant {
	var out []*combat.Combatant
	for _, c := range cs {
		if !c.IsDefeated() {
			out = append(out, c)
		}
	}
	return out
}

func lowestHP(cs []*combat.Combatant) *combat.Combatant {
	var best *combat.Combatant
	for _, c := range cs {
		if c.IsDefeated() {
			continue
		}
		if best == nil || c.CurrentHP < best.CurrentHP {
			best = c
		}
	}
	return best
}

// record feeds eff into statistics, aggro, and the event log.
func (e *Encounter) record(eff combat.Effect, ctx combat.Context) {
	if eff.Flags.Has(combat.FlagNoOp) {
		return
	}
	e.tracker.record(eff)
	src, tgt := e.byID[eff.SourceID], e.byID[eff.TargetID]
	srcName, tgtName := eff.SourceID, eff.TargetID
	if src != nil {
		srcName = src.Name
	}
	if tgt != nil {
		tgtName = tgt.Name
	}
	ability := eff.AbilityID
	if def, err := ctx.Catalog.Ability(eff.AbilityID); err == nil {
		ability = def.Name
	}
	switch {
	case eff.Flags.Has(combat.FlagEvaded):
		e.log.appendf("%s evades %s's %s.", tgtName, srcName, ability)
	case eff.Kind == catalog.EffectDamage:
		if src != nil && src.Team == combat.TeamAllies && tgt != nil {
			e.addAggro(tgt.ID, src.ID, eff.Applied+eff.Absorbed)
		}
		line := "%s hits %s with %s for %d."
		if eff.Absorbed > 0 {
			e.log.appendf(line+" (%d absorbed)", srcName, tgtName, ability, eff.Applied+eff.Absorbed, eff.Absorbed)
		} else {
			e.log.appendf(line, srcName, tgtName, ability, eff.Applied)
		}
		if tgt != nil && tgt.Swarm != nil && !tgt.IsDefeated() {
			e.log.appendf("%s has %d unit(s) left.", tgtName, tgt.UnitCount())
		}
	case eff.Kind == catalog.EffectHeal:
		e.log.appendf("%s heals %s with %s for %d.", srcName, tgtName, ability, eff.Applied)
	case eff.Kind == catalog.EffectShield:
		e.log.appendf("%s shields %s with %s for %d.", srcName, tgtName, ability, eff.Applied)
	}
	if eff.Flags.Has(combat.FlagDefeated) {
		e.log.appendf("%s is defeated.", tgtName)
	}
}

func (e *Encounter) addAggro(hostile, ally string, amount int) {
	m, ok := e.aggro[hostile]
	if !ok {
		m = make(map[string]int)
		e.aggro[hostile] = m
	}
	m[ally] += amount
}

func (e *Encounter) won() bool {
	return len(living(e.hostiles)) == 0
}

// lost applies the survival rule. With no human allies the humans rule
// degrades to all_allies.
func (e *Encounter) lost() bool {
	if e.setup.SurvivalRule == SurvivalHumans {
		humans := 0
		for _, c := range e.allies {
			if !c.IsHuman() {
				continue
			}
			humans++
			if c.IsDefeated() {
				return true
			}
		}
		if humans > 0 {
			return false
		}
	}
	return len(living(e.allies)) == 0
}

func (e *Encounter) terminate(o Outcome) {
	e.phase = PhaseTerminated
	e.outcome = o
	e.endedAt = e.now()
	if o != OutcomeAbandoned {
		e.log.appendf("Encounter over: %s.", o)
	}
	e.logger.Info("encounter terminated",
		zap.String("outcome", string(o)),
		zap.Uint64("tick", e.ticks),
		zap.Duration("elapsed", e.elapsed),
	)
}

// finish freezes the terminal outcome so repeated ticks return it unchanged.
func (e *Encounter) finish() TickOutcome {
	out := TickOutcome{Snapshot: e.Snapshot()}
	if e.outcome != OutcomeAbandoned {
		out.Summary = e.tracker.summary(e)
	}
	e.final = &out
	e.publish()
	return out
}
