// Package combat implements the per-participant combat state and the
// damage/heal resolution pipeline.
package combat

import (
	"fmt"
	"sync"
	"time"

	"github.com/cory-johannsen/skirmish/internal/game/catalog"
	"github.com/cory-johannsen/skirmish/internal/game/status"
)

// Team is the faction tag of a combatant.
type Team string

const (
	TeamAllies   Team = "allies"
	TeamHostiles Team = "hostiles"
)

// Opponent returns the opposing team.
func (t Team) Opponent() Team {
	if t == TeamAllies {
		return TeamHostiles
	}
	return TeamAllies
}

// Controller distinguishes who chooses a combatant's actions.
type Controller string

const (
	// ControllerHuman actions arrive through Submit.
	ControllerHuman Controller = "human"
	// ControllerBot is a computer-controlled ally.
	ControllerBot Controller = "bot"
	// ControllerMonster is a computer-controlled hostile.
	ControllerMonster Controller = "monster"
)

// Item is one equipped ability with its rarity tag and item level.
type Item struct {
	AbilityID string
	Rarity    catalog.Rarity
	Level     int
}

// Loadout is a combatant's equipped abilities.
type Loadout struct {
	Weapon   Item
	Gadgets  []Item
	Passives []Item
}

// Swarm marks a hostile unit group whose total HP is split into equal units.
type Swarm struct {
	UnitHP int
}

// DefendCooldownKey is the cooldown slot of the defensive maneuver.
const DefendCooldownKey = "defend"

// GadgetCooldownKey returns the cooldown slot of gadget index i.
func GadgetCooldownKey(i int) string { return fmt.Sprintf("gadget:%d", i) }

// Combatant represents one participant in an encounter.
//
// All fields except the pending-action slot are owned by the encounter's
// goroutine. Submit, and only Submit, may be called from other goroutines.
type Combatant struct {
	ID         string
	Name       string
	Team       Team
	Controller Controller
	Level      int
	MaxHP      int
	CurrentHP  int
	Loadout    Loadout
	Status     *status.Table
	// MonsterID and Behavior are set for hostile units only.
	MonsterID string
	Behavior  catalog.Behavior
	// Swarm is non-nil for swarm unit groups.
	Swarm *Swarm

	cooldowns map[string]time.Duration

	pendingMu  sync.Mutex
	pending    Action
	hasPending bool
}

// NewCombatant creates a combatant at full HP with an empty status table.
//
// Precondition: id must be non-empty; maxHP >= 1.
// Postcondition: Level is clamped to [catalog.MinLevel, catalog.MaxLevel];
// CurrentHP == MaxHP.
func NewCombatant(id, name string, team Team, controller Controller, level, maxHP int, loadout Loadout) *Combatant {
	if maxHP < 1 {
		maxHP = 1
	}
	return &Combatant{
		ID:         id,
		Name:       name,
		Team:       team,
		Controller: controller,
		Level:      catalog.ClampLevel(level),
		MaxHP:      maxHP,
		CurrentHP:  maxHP,
		Loadout:    loadout,
		Status:     status.NewTable(),
		cooldowns:  make(map[string]time.Duration),
	}
}

// IsDefeated reports whether the combatant has 0 HP.
func (c *Combatant) IsDefeated() bool { return c.CurrentHP <= 0 }

// IsHuman reports whether actions for this combatant arrive through Submit.
func (c *Combatant) IsHuman() bool { return c.Controller == ControllerHuman }

// ApplyDamage reduces CurrentHP by amount, flooring at zero.
//
// Precondition: amount must be >= 0.
// Postcondition: 0 <= CurrentHP; returns the HP actually removed.
func (c *Combatant) ApplyDamage(amount int) int {
	if amount <= 0 {
		return 0
	}
	before := c.CurrentHP
	c.CurrentHP -= amount
	if c.CurrentHP < 1 {
		c.CurrentHP = 0
	}
	return before - c.CurrentHP
}

// Heal increases CurrentHP by amount, capped at MaxHP.
//
// Precondition: amount must be >= 0.
// Postcondition: CurrentHP <= MaxHP; returns the HP actually restored.
func (c *Combatant) Heal(amount int) int {
	if amount <= 0 || c.IsDefeated() {
		return 0
	}
	before := c.CurrentHP
	c.CurrentHP += amount
	if c.CurrentHP > c.MaxHP {
		c.CurrentHP = c.MaxHP
	}
	return c.CurrentHP - before
}

// UnitCount returns the number of living units in a swarm group:
// ceil(CurrentHP / UnitHP). Non-swarm combatants count as one unit while
// alive.
//
// Postcondition: Returns 0 iff CurrentHP == 0.
func (c *Combatant) UnitCount() int {
	if c.CurrentHP <= 0 {
		return 0
	}
	if c.Swarm == nil || c.Swarm.UnitHP <= 0 {
		return 1
	}
	return (c.CurrentHP + c.Swarm.UnitHP - 1) / c.Swarm.UnitHP
}

// StartCooldown sets the remaining cooldown for key.
func (c *Combatant) StartCooldown(key string, d time.Duration) {
	if d <= 0 {
		delete(c.cooldowns, key)
		return
	}
	c.cooldowns[key] = d
}

// CooldownRemaining returns the remaining cooldown for key, or 0.
func (c *Combatant) CooldownRemaining(key string) time.Duration {
	return c.cooldowns[key]
}

// Ready reports whether key has no remaining cooldown.
func (c *Combatant) Ready(key string) bool { return c.cooldowns[key] <= 0 }

// Cooldowns returns a copy of all non-zero cooldowns.
func (c *Combatant) Cooldowns() map[string]time.Duration {
	out := make(map[string]time.Duration, len(c.cooldowns))
	for k, v := range c.cooldowns {
		out[k] = v
	}
	return out
}

// TickCooldowns decays every cooldown by dt adjusted for haste and slow.
//
// Postcondition: no cooldown is negative; zeroed cooldowns are removed.
func (c *Combatant) TickCooldowns(dt time.Duration) {
	step := c.cooldownStep(dt)
	for k, v := range c.cooldowns {
		v -= step
		if v <= 0 {
			delete(c.cooldowns, k)
			continue
		}
		c.cooldowns[k] = v
	}
}

// CooldownsAfter returns the cooldowns as they will stand once the next
// TickCooldowns(dt) has run, under the current haste and slow.
func (c *Combatant) CooldownsAfter(dt time.Duration) map[string]time.Duration {
	step := c.cooldownStep(dt)
	out := make(map[string]time.Duration, len(c.cooldowns))
	for k, v := range c.cooldowns {
		if v -= step; v > 0 {
			out[k] = v
		}
	}
	return out
}

func (c *Combatant) cooldownStep(dt time.Duration) time.Duration {
	rate := 100 + c.Status.Magnitude(status.Haste) - c.Status.Magnitude(status.Slow)
	if rate < 0 {
		rate = 0
	}
	return dt * time.Duration(rate) / 100
}

// Submit stores a as the pending action, replacing any earlier submission.
// Safe to call concurrently with the owning encounter's tick.
func (c *Combatant) Submit(a Action) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	c.pending = a
	c.hasPending = a.Kind != ActionNone
}

// TakePending returns and clears the pending action.
//
// Postcondition: a subsequent TakePending returns (Action{}, false) unless
// Submit was called in between.
func (c *Combatant) TakePending() (Action, bool) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	a, ok := c.pending, c.hasPending
	c.pending = Action{}
	c.hasPending = false
	return a, ok
}
